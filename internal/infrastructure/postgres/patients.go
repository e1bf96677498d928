package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/domain/fault"
	"github.com/carepoint/pharmacy-core/internal/domain/patient"
)

// PatientRepository persists patient reference data. Records never change
// after creation, so there is no update path.
type PatientRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPatientRepository creates a repository.
func NewPatientRepository(pool *pgxpool.Pool, logger *zap.Logger) *PatientRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientRepository{pool: pool, logger: logger}
}

const patientColumns = `
	id, name, age, gender, phone, email, address, medical_id, blood_type,
	allergies, emergency_contact
`

// ByID returns a patient.
func (r *PatientRepository) ByID(ctx context.Context, id string) (*patient.Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.Errorf(fault.NotFound, "patient %s not found", id)
	}
	return p, err
}

// List returns all patients.
func (r *PatientRepository) List(ctx context.Context) ([]*patient.Patient, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	var out []*patient.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create stores a new record.
func (r *PatientRepository) Create(ctx context.Context, p *patient.Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		p.ID, p.Name, p.Age, p.Gender, p.Phone, p.Email, p.Address, p.MedicalID, p.BloodType,
		p.Allergies, p.EmergencyContact,
	)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.Errorf(fault.Conflict, "patient %s already exists", p.ID)
	}
	return nil
}

func scanPatient(row pgx.Row) (*patient.Patient, error) {
	p := &patient.Patient{}
	err := row.Scan(
		&p.ID, &p.Name, &p.Age, &p.Gender, &p.Phone, &p.Email, &p.Address, &p.MedicalID, &p.BloodType,
		&p.Allergies, &p.EmergencyContact,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
