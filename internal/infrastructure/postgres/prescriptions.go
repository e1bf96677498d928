// Package postgres provides pgx-backed repositories and the transactional
// outbox for the pharmacy workflow.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/domain/fault"
	"github.com/carepoint/pharmacy-core/internal/domain/prescription"
)

// PrescriptionRepository persists prescriptions with optimistic locking on a
// version column.
type PrescriptionRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPrescriptionRepository creates a repository.
func NewPrescriptionRepository(pool *pgxpool.Pool, logger *zap.Logger) *PrescriptionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionRepository{pool: pool, logger: logger}
}

const prescriptionColumns = `
	id, patient_id, doctor_id, lines, symptoms, diagnosis, doctor_notes,
	pharmacist_notes, status, pharmacist_id, cashier_id, created_at, updated_at, version
`

// Create stores a new prescription.
func (r *PrescriptionRepository) Create(ctx context.Context, p *prescription.Prescription) error {
	lines, err := json.Marshal(p.Lines)
	if err != nil {
		return fmt.Errorf("marshal lines: %w", err)
	}

	query := `
		INSERT INTO prescriptions (` + prescriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		p.ID, p.PatientID, p.DoctorID, lines, p.Symptoms, p.Diagnosis, p.DoctorNotes,
		p.PharmacistNotes, p.Status, p.PharmacistID, p.CashierID, p.CreatedAt, p.UpdatedAt, p.Version,
	)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.Errorf(fault.Conflict, "prescription %s already exists", p.ID)
	}
	return nil
}

// Update replaces a prescription if the version still matches, bumping it.
func (r *PrescriptionRepository) Update(ctx context.Context, p *prescription.Prescription) error {
	lines, err := json.Marshal(p.Lines)
	if err != nil {
		return fmt.Errorf("marshal lines: %w", err)
	}

	query := `
		UPDATE prescriptions
		SET lines = $2, symptoms = $3, diagnosis = $4, doctor_notes = $5,
		    pharmacist_notes = $6, status = $7, pharmacist_id = $8, cashier_id = $9,
		    updated_at = $10, version = version + 1
		WHERE id = $1 AND version = $11
	`
	tag, err := r.pool.Exec(ctx, query,
		p.ID, lines, p.Symptoms, p.Diagnosis, p.DoctorNotes,
		p.PharmacistNotes, p.Status, p.PharmacistID, p.CashierID,
		p.UpdatedAt, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, p.ID, p.Version)
	}
	p.Version++
	return nil
}

// staleOrMissing decides which failure an empty update was.
func (r *PrescriptionRepository) staleOrMissing(ctx context.Context, id string, version int) error {
	var stored int
	err := r.pool.QueryRow(ctx, `SELECT version FROM prescriptions WHERE id = $1`, id).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return fault.Errorf(fault.NotFound, "prescription %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("check prescription version: %w", err)
	}
	return fault.Errorf(fault.Conflict, "prescription %s: version %d is stale (stored %d)", id, version, stored)
}

// ByID returns a single prescription.
func (r *PrescriptionRepository) ByID(ctx context.Context, id string) (*prescription.Prescription, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1`, id)
	p, err := scanPrescription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.Errorf(fault.NotFound, "prescription %s not found", id)
	}
	return p, err
}

// ByDoctor returns all prescriptions issued by the doctor.
func (r *PrescriptionRepository) ByDoctor(ctx context.Context, doctorID string) ([]*prescription.Prescription, error) {
	return r.query(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE doctor_id = $1 ORDER BY created_at`, doctorID)
}

// ByStatus returns all prescriptions with the given status.
func (r *PrescriptionRepository) ByStatus(ctx context.Context, status prescription.Status) ([]*prescription.Prescription, error) {
	return r.query(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE status = $1 ORDER BY created_at`, status)
}

// List returns the whole collection.
func (r *PrescriptionRepository) List(ctx context.Context) ([]*prescription.Prescription, error) {
	return r.query(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions ORDER BY created_at`)
}

func (r *PrescriptionRepository) query(ctx context.Context, sql string, args ...interface{}) ([]*prescription.Prescription, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query prescriptions: %w", err)
	}
	defer rows.Close()

	var out []*prescription.Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPrescription(row pgx.Row) (*prescription.Prescription, error) {
	p := &prescription.Prescription{}
	var lines []byte
	err := row.Scan(
		&p.ID, &p.PatientID, &p.DoctorID, &lines, &p.Symptoms, &p.Diagnosis, &p.DoctorNotes,
		&p.PharmacistNotes, &p.Status, &p.PharmacistID, &p.CashierID, &p.CreatedAt, &p.UpdatedAt, &p.Version,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lines, &p.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal lines: %w", err)
	}
	return p, nil
}
