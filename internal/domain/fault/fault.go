// Package fault defines the error taxonomy shared by the workflow engines.
// Every rejected operation is one of these kinds; none is fatal to the process.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a workflow error.
type Kind int

const (
	// Validation covers malformed input: discount out of range, empty line list.
	Validation Kind = iota
	// Authorization covers a wrong role or a non-owner attempting a transition.
	Authorization
	// InvalidTransition covers transitions not legal from the current status,
	// including double-billing an already completed prescription.
	InvalidTransition
	// Conflict covers concurrent modification detected by the version check.
	Conflict
	// NotFound covers lookups by unknown id.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Authorization:
		return "authorization"
	case InvalidTransition:
		return "invalid_transition"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a classified workflow error.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// New creates an error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf creates a formatted error of the given kind.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err if it is (or wraps) a fault error.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// Is reports whether err is a fault error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
