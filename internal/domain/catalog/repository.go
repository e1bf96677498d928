package catalog

import "context"

// Repository is the persistence boundary for the medicine catalog.
type Repository interface {
	// ByID returns the medicine or a fault.NotFound error.
	ByID(ctx context.Context, id string) (*Medicine, error)
	// List returns all medicines.
	List(ctx context.Context) ([]*Medicine, error)
	// Save creates or replaces a medicine.
	Save(ctx context.Context, m *Medicine) error
	// AdjustStock atomically applies a stock delta and returns the updated
	// medicine. Fails with fault.Validation if the delta would drive stock
	// negative; the stored count is left unchanged on failure.
	AdjustStock(ctx context.Context, id string, delta int) (*Medicine, error)
}
