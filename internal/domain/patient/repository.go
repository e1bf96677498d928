package patient

import "context"

// Repository is the persistence boundary for patient reference data.
type Repository interface {
	// ByID returns the patient or a fault.NotFound error.
	ByID(ctx context.Context, id string) (*Patient, error)
	// List returns all patients.
	List(ctx context.Context) ([]*Patient, error)
	// Create stores a new record. Fails with fault.Conflict if the id exists.
	Create(ctx context.Context, p *Patient) error
}
