// Package prescription implements the prescription entity and its lifecycle
// state machine. A prescription is the unit of work flowing from doctor to
// pharmacist to cashier.
package prescription

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/carepoint/pharmacy-core/internal/domain/fault"
	"github.com/carepoint/pharmacy-core/internal/identity"
)

// Status represents where a prescription sits in the workflow.
type Status string

const (
	StatusPending         Status = "pending"
	StatusPharmacyReview  Status = "pharmacy_review"
	StatusReadyForBilling Status = "ready_for_billing"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPharmacyReview, StatusReadyForBilling, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Line is one medicine entry within a prescription. The unit price is
// snapshotted from the catalog at creation time so billing stays deterministic
// across later price changes.
type Line struct {
	MedicineID   string          `json:"medicine_id"`
	MedicineName string          `json:"medicine_name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	Dosage       string          `json:"dosage,omitempty"`
	Frequency    string          `json:"frequency,omitempty"`
	Duration     string          `json:"duration,omitempty"`
	Instructions string          `json:"instructions,omitempty"`
}

// Validate checks a single line.
func (l Line) Validate() error {
	if l.MedicineID == "" {
		return fault.New(fault.Validation, "line: medicine id is required")
	}
	if l.Quantity <= 0 {
		return fault.Errorf(fault.Validation, "line %s: quantity must be positive", l.MedicineID)
	}
	if l.UnitPrice.IsNegative() {
		return fault.Errorf(fault.Validation, "line %s: unit price must not be negative", l.MedicineID)
	}
	return nil
}

// Prescription is the workflow aggregate. Lines are exclusively owned; their
// order is display order only.
type Prescription struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	DoctorID        string    `json:"doctor_id"`
	Lines           []Line    `json:"lines"`
	Symptoms        string    `json:"symptoms,omitempty"`
	Diagnosis       string    `json:"diagnosis,omitempty"`
	DoctorNotes     string    `json:"doctor_notes,omitempty"`
	PharmacistNotes string    `json:"pharmacist_notes,omitempty"`
	Status          Status    `json:"status"`
	PharmacistID    string    `json:"pharmacist_id,omitempty"`
	CashierID       string    `json:"cashier_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int       `json:"version"`
}

// CreateCommand carries the doctor's input for a new prescription.
type CreateCommand struct {
	PatientID   string
	Lines       []Line
	Symptoms    string
	Diagnosis   string
	DoctorNotes string
}

// Validate checks the creation guard: a patient and at least one valid line.
func (c CreateCommand) Validate() error {
	if c.PatientID == "" {
		return fault.New(fault.Validation, "patient id is required")
	}
	if len(c.Lines) == 0 {
		return fault.New(fault.Validation, "at least one line item is required")
	}
	for _, l := range c.Lines {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// New creates a pending prescription for a doctor actor.
func New(id string, doctor identity.Actor, cmd CreateCommand, now time.Time) (*Prescription, error) {
	if doctor.Role != identity.RoleDoctor {
		return nil, fault.Errorf(fault.Authorization, "role %s may not create prescriptions", doctor.Role)
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return &Prescription{
		ID:          id,
		PatientID:   cmd.PatientID,
		DoctorID:    doctor.ID,
		Lines:       append([]Line(nil), cmd.Lines...),
		Symptoms:    cmd.Symptoms,
		Diagnosis:   cmd.Diagnosis,
		DoctorNotes: cmd.DoctorNotes,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Submit moves pending -> pharmacy_review. Doctor-owned.
func (p *Prescription) Submit(actor identity.Actor, now time.Time) error {
	if err := p.guard(actor, StatusPharmacyReview); err != nil {
		return err
	}
	p.Status = StatusPharmacyReview
	p.UpdatedAt = now
	return nil
}

// Approve moves pharmacy_review -> ready_for_billing. Records the pharmacist
// and clears any earlier rejection reason.
func (p *Prescription) Approve(actor identity.Actor, now time.Time) error {
	if err := p.guard(actor, StatusReadyForBilling); err != nil {
		return err
	}
	p.Status = StatusReadyForBilling
	p.PharmacistID = actor.ID
	p.PharmacistNotes = ""
	p.UpdatedAt = now
	return nil
}

// Reject moves pharmacy_review -> pending with a reason. The pharmacist id
// set by an earlier approval attempt is kept.
func (p *Prescription) Reject(actor identity.Actor, reason string, now time.Time) error {
	if reason == "" {
		return fault.New(fault.Validation, "a rejection reason is required")
	}
	if err := p.guard(actor, StatusPending); err != nil {
		return err
	}
	p.Status = StatusPending
	p.PharmacistNotes = reason
	p.UpdatedAt = now
	return nil
}

// Complete moves ready_for_billing -> completed, recording the cashier. Only
// the billing engine calls this; completion never happens by direct status edit.
func (p *Prescription) Complete(actor identity.Actor, now time.Time) error {
	if err := p.guard(actor, StatusCompleted); err != nil {
		return err
	}
	p.Status = StatusCompleted
	p.CashierID = actor.ID
	p.UpdatedAt = now
	return nil
}

// Cancel moves any non-terminal status to cancelled.
func (p *Prescription) Cancel(now time.Time) error {
	if !allowed(p.Status, StatusCancelled) {
		return fault.Errorf(fault.InvalidTransition, "prescription %s: cannot cancel from %s", p.ID, p.Status)
	}
	p.Status = StatusCancelled
	p.UpdatedAt = now
	return nil
}

// guard validates a transition without mutating anything. Transition legality
// is checked before role/ownership so an illegal edge reports
// InvalidTransition even for a correctly-authorized actor.
func (p *Prescription) guard(actor identity.Actor, target Status) error {
	if !allowed(p.Status, target) {
		return fault.Errorf(fault.InvalidTransition, "prescription %s: %s -> %s is not a legal transition", p.ID, p.Status, target)
	}
	if !CanTransition(actor.Role, actor.ID, p, target) {
		return fault.Errorf(fault.Authorization, "prescription %s: %s %s may not move it to %s", p.ID, actor.Role, actor.ID, target)
	}
	return nil
}

// Clone returns a deep copy.
func (p *Prescription) Clone() *Prescription {
	c := *p
	c.Lines = append([]Line(nil), p.Lines...)
	return &c
}
