package billing

import (
	"context"

	"github.com/carepoint/pharmacy-core/internal/domain/prescription"
)

// Repository is the persistence boundary for transactions.
type Repository interface {
	// Commit atomically stores the transaction and the completed prescription.
	// Either both apply or neither does. A second transaction for the same
	// prescription, or a stale prescription version, fails with fault.Conflict.
	Commit(ctx context.Context, t *Transaction, p *prescription.Prescription) error
	// ByPrescription returns the transaction billing a prescription, or a
	// fault.NotFound error.
	ByPrescription(ctx context.Context, prescriptionID string) (*Transaction, error)
	// List returns all transactions.
	List(ctx context.Context) ([]*Transaction, error)
}
