// Package identity supplies the acting (userId, role) pair for every operation.
// The core never authenticates; it only authorizes against the supplied role.
package identity

import (
	"context"

	"github.com/carepoint/pharmacy-core/internal/domain/fault"
)

// Role is the workflow role of an actor.
type Role string

const (
	RoleDoctor     Role = "doctor"
	RolePharmacist Role = "pharmacist"
	RoleCashier    Role = "cashier"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleDoctor, RolePharmacist, RoleCashier:
		return true
	}
	return false
}

// Actor is the identity performing an operation.
type Actor struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Provider resolves the current actor for a request context.
type Provider interface {
	CurrentActor(ctx context.Context) (Actor, error)
}

// Directory is a static lookup-table identity provider: bearer token to actor.
// It also resolves actors by id for display purposes (receipts, audit lines).
type Directory struct {
	byToken map[string]Actor
	byID    map[string]Actor
}

// NewDirectory builds a directory from a token-to-actor table.
func NewDirectory(tokens map[string]Actor) *Directory {
	d := &Directory{
		byToken: make(map[string]Actor, len(tokens)),
		byID:    make(map[string]Actor, len(tokens)),
	}
	for token, actor := range tokens {
		d.byToken[token] = actor
		d.byID[actor.ID] = actor
	}
	return d
}

// Authenticate resolves a bearer token to an actor.
func (d *Directory) Authenticate(token string) (Actor, bool) {
	a, ok := d.byToken[token]
	return a, ok
}

// ByID resolves an actor by id.
func (d *Directory) ByID(id string) (Actor, bool) {
	a, ok := d.byID[id]
	return a, ok
}

type contextKey struct{}

// WithActor stores the actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// FromContext extracts the actor stored by WithActor.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}

// CurrentActor implements Provider against the request context.
func (d *Directory) CurrentActor(ctx context.Context) (Actor, error) {
	a, ok := FromContext(ctx)
	if !ok {
		return Actor{}, fault.New(fault.Authorization, "no actor in context")
	}
	return a, nil
}
