package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/domain/catalog"
	"github.com/carepoint/pharmacy-core/internal/domain/fault"
)

// CatalogRepository persists the medicine catalog. Stock adjustments are
// guarded in SQL so concurrent decrements can never drive the counter negative.
type CatalogRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewCatalogRepository creates a repository.
func NewCatalogRepository(pool *pgxpool.Pool, logger *zap.Logger) *CatalogRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogRepository{pool: pool, logger: logger}
}

const medicineColumns = `
	id, name, generic_name, manufacturer, category, price, stock,
	dosage_form, strength, instructions
`

// ByID returns a medicine.
func (r *CatalogRepository) ByID(ctx context.Context, id string) (*catalog.Medicine, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1`, id)
	m, err := scanMedicine(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.Errorf(fault.NotFound, "medicine %s not found", id)
	}
	return m, err
}

// List returns all medicines.
func (r *CatalogRepository) List(ctx context.Context) ([]*catalog.Medicine, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+medicineColumns+` FROM medicines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query medicines: %w", err)
	}
	defer rows.Close()

	var out []*catalog.Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Save creates or replaces a medicine.
func (r *CatalogRepository) Save(ctx context.Context, m *catalog.Medicine) error {
	if err := m.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO medicines (` + medicineColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = $2, generic_name = $3, manufacturer = $4, category = $5,
			price = $6, stock = $7, dosage_form = $8, strength = $9, instructions = $10
	`
	_, err := r.pool.Exec(ctx, query,
		m.ID, m.Name, m.GenericName, m.Manufacturer, m.Category, m.Price, m.Stock,
		m.DosageForm, m.Strength, m.Instructions,
	)
	if err != nil {
		return fmt.Errorf("save medicine: %w", err)
	}
	return nil
}

// AdjustStock applies a delta with a compare-and-swap: the row only changes
// when the result stays non-negative.
func (r *CatalogRepository) AdjustStock(ctx context.Context, id string, delta int) (*catalog.Medicine, error) {
	query := `
		UPDATE medicines
		SET stock = stock + $2
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING ` + medicineColumns
	row := r.pool.QueryRow(ctx, query, id, delta)
	m, err := scanMedicine(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing row from a delta that would go negative.
		var stock int
		checkErr := r.pool.QueryRow(ctx, `SELECT stock FROM medicines WHERE id = $1`, id).Scan(&stock)
		if errors.Is(checkErr, pgx.ErrNoRows) {
			return nil, fault.Errorf(fault.NotFound, "medicine %s not found", id)
		}
		if checkErr != nil {
			return nil, fmt.Errorf("check stock: %w", checkErr)
		}
		return nil, fault.Errorf(fault.Validation, "medicine %s: stock %d cannot absorb delta %d", id, stock, delta)
	}
	return m, err
}

func scanMedicine(row pgx.Row) (*catalog.Medicine, error) {
	m := &catalog.Medicine{}
	err := row.Scan(
		&m.ID, &m.Name, &m.GenericName, &m.Manufacturer, &m.Category, &m.Price, &m.Stock,
		&m.DosageForm, &m.Strength, &m.Instructions,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}
