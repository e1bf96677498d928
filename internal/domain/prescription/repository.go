package prescription

import "context"

// Repository is the persistence boundary for prescriptions. The query methods
// are the read views used by every role-specific screen; they re-evaluate
// against current state on every call and never mutate the collection.
type Repository interface {
	// Create stores a new prescription. Fails with fault.Conflict if the id
	// already exists.
	Create(ctx context.Context, p *Prescription) error
	// Update replaces a prescription if p.Version still matches the stored
	// version, then increments it. A stale version fails with fault.Conflict
	// and leaves the stored entity untouched.
	Update(ctx context.Context, p *Prescription) error
	// ByID returns the prescription or a fault.NotFound error.
	ByID(ctx context.Context, id string) (*Prescription, error)
	// ByDoctor returns all prescriptions referencing the doctor.
	ByDoctor(ctx context.Context, doctorID string) ([]*Prescription, error)
	// ByStatus returns all prescriptions with the given status.
	ByStatus(ctx context.Context, status Status) ([]*Prescription, error)
	// List returns the whole collection.
	List(ctx context.Context) ([]*Prescription, error)
}
