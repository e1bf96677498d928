package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/domain/billing"
	"github.com/carepoint/pharmacy-core/internal/domain/fault"
	"github.com/carepoint/pharmacy-core/internal/domain/prescription"
)

// uniqueViolation is the Postgres error code raised by the one-transaction-
// per-prescription unique index.
const uniqueViolation = "23505"

// TransactionRepository persists billing transactions. Commit couples the
// transaction insert with the prescription's completion in one database
// transaction so neither is ever visible without the other.
type TransactionRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewTransactionRepository creates a repository.
func NewTransactionRepository(pool *pgxpool.Pool, logger *zap.Logger) *TransactionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionRepository{pool: pool, logger: logger}
}

const transactionColumns = `
	id, prescription_id, cashier_id, subtotal, discount, tax, total,
	payment_method, invoice_number, created_at
`

// Commit atomically stores the transaction and the completed prescription.
func (r *TransactionRepository) Commit(ctx context.Context, t *billing.Transaction, p *prescription.Prescription) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lines, err := json.Marshal(p.Lines)
	if err != nil {
		return fmt.Errorf("marshal lines: %w", err)
	}

	updateQuery := `
		UPDATE prescriptions
		SET lines = $2, pharmacist_notes = $3, status = $4, pharmacist_id = $5,
		    cashier_id = $6, updated_at = $7, version = version + 1
		WHERE id = $1 AND version = $8
	`
	tag, err := tx.Exec(ctx, updateQuery,
		p.ID, lines, p.PharmacistNotes, p.Status, p.PharmacistID,
		p.CashierID, p.UpdatedAt, p.Version,
	)
	if err != nil {
		return fmt.Errorf("complete prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.Errorf(fault.Conflict, "prescription %s: version %d is stale", p.ID, p.Version)
	}

	insertQuery := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = tx.Exec(ctx, insertQuery,
		t.ID, t.PrescriptionID, t.CashierID, t.Subtotal, t.Discount, t.Tax, t.Total,
		t.PaymentMethod, t.InvoiceNumber, t.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fault.Errorf(fault.Conflict, "prescription %s is already billed", t.PrescriptionID)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	p.Version++
	return nil
}

// ByPrescription returns the transaction billing a prescription.
func (r *TransactionRepository) ByPrescription(ctx context.Context, prescriptionID string) (*billing.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE prescription_id = $1`, prescriptionID)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.Errorf(fault.NotFound, "no transaction for prescription %s", prescriptionID)
	}
	return t, err
}

// List returns all transactions, newest first.
func (r *TransactionRepository) List(ctx context.Context) ([]*billing.Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []*billing.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*billing.Transaction, error) {
	t := &billing.Transaction{}
	err := row.Scan(
		&t.ID, &t.PrescriptionID, &t.CashierID, &t.Subtotal, &t.Discount, &t.Tax, &t.Total,
		&t.PaymentMethod, &t.InvoiceNumber, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
