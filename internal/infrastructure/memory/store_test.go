package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carepoint/pharmacy-core/internal/domain/billing"
	"github.com/carepoint/pharmacy-core/internal/domain/fault"
	"github.com/carepoint/pharmacy-core/internal/domain/prescription"
)

func testRx(id, doctorID string, status prescription.Status) *prescription.Prescription {
	return &prescription.Prescription{
		ID:        id,
		PatientID: "pat-1",
		DoctorID:  doctorID,
		Status:    status,
		Lines: []prescription.Line{
			{MedicineID: "med-1", MedicineName: "Amoxicillin", UnitPrice: decimal.RequireFromString("12.99"), Quantity: 30},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestUpdateRejectsStaleVersion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Prescriptions()

	if err := repo.Create(ctx, testRx("rx-1", "doc-1", prescription.StatusPending)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	a, _ := repo.ByID(ctx, "rx-1")
	b, _ := repo.ByID(ctx, "rx-1")

	a.Status = prescription.StatusPharmacyReview
	if err := repo.Update(ctx, a); err != nil {
		t.Fatalf("first Update: %v", err)
	}

	b.Status = prescription.StatusCancelled
	if err := repo.Update(ctx, b); !fault.Is(err, fault.Conflict) {
		t.Fatalf("stale Update: err = %v, want Conflict", err)
	}

	stored, _ := repo.ByID(ctx, "rx-1")
	if stored.Status != prescription.StatusPharmacyReview {
		t.Errorf("status = %s, want pharmacy_review (first writer wins)", stored.Status)
	}
}

func TestUpdateBumpsVersion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Prescriptions()

	repo.Create(ctx, testRx("rx-1", "doc-1", prescription.StatusPending))
	p, _ := repo.ByID(ctx, "rx-1")
	v0 := p.Version

	p.Status = prescription.StatusPharmacyReview
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.Version != v0+1 {
		t.Errorf("caller version = %d, want %d", p.Version, v0+1)
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Prescriptions()

	repo.Create(ctx, testRx("rx-1", "doc-1", prescription.StatusPending))
	if err := repo.Create(ctx, testRx("rx-1", "doc-2", prescription.StatusPending)); !fault.Is(err, fault.Conflict) {
		t.Errorf("duplicate Create: err = %v, want Conflict", err)
	}
}

// Reads hand out copies; mutating a result must not leak into the store.
func TestByIDReturnsClone(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Prescriptions()

	repo.Create(ctx, testRx("rx-1", "doc-1", prescription.StatusPending))

	p, _ := repo.ByID(ctx, "rx-1")
	p.Status = prescription.StatusCancelled
	p.Lines[0].Quantity = 999

	stored, _ := repo.ByID(ctx, "rx-1")
	if stored.Status != prescription.StatusPending {
		t.Errorf("status leaked: %s", stored.Status)
	}
	if stored.Lines[0].Quantity != 30 {
		t.Errorf("line mutation leaked: %d", stored.Lines[0].Quantity)
	}
}

func TestFilters(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Prescriptions()

	repo.Create(ctx, testRx("rx-1", "doc-1", prescription.StatusPending))
	repo.Create(ctx, testRx("rx-2", "doc-1", prescription.StatusPharmacyReview))
	repo.Create(ctx, testRx("rx-3", "doc-2", prescription.StatusPending))

	byDoctor, err := repo.ByDoctor(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ByDoctor: %v", err)
	}
	if len(byDoctor) != 2 {
		t.Errorf("ByDoctor(doc-1) = %d results, want 2", len(byDoctor))
	}
	// Insertion order is stable.
	if byDoctor[0].ID != "rx-1" || byDoctor[1].ID != "rx-2" {
		t.Errorf("order = %s, %s", byDoctor[0].ID, byDoctor[1].ID)
	}

	byStatus, err := repo.ByStatus(ctx, prescription.StatusPending)
	if err != nil {
		t.Fatalf("ByStatus: %v", err)
	}
	if len(byStatus) != 2 {
		t.Errorf("ByStatus(pending) = %d results, want 2", len(byStatus))
	}

	all, _ := repo.List(ctx)
	if len(all) != 3 {
		t.Errorf("List = %d results, want 3", len(all))
	}

	none, _ := repo.ByDoctor(ctx, "doc-9")
	if len(none) != 0 {
		t.Errorf("ByDoctor(doc-9) = %d results, want 0", len(none))
	}
}

func TestTransactionCommitUniquePerPrescription(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	p := testRx("rx-1", "doc-1", prescription.StatusReadyForBilling)
	if err := s.Prescriptions().Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	p, _ = s.Prescriptions().ByID(ctx, "rx-1")
	p.Status = prescription.StatusCompleted

	tx := &billing.Transaction{
		ID:             "tx-1",
		PrescriptionID: "rx-1",
		CashierID:      "cas-1",
		Total:          decimal.RequireFromString("420.88"),
		InvoiceNumber:  "INV-20260201-TX000001",
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Transactions().Commit(ctx, tx, p); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	stored, _ := s.Prescriptions().ByID(ctx, "rx-1")
	if stored.Status != prescription.StatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}

	dup := &billing.Transaction{ID: "tx-2", PrescriptionID: "rx-1"}
	if err := s.Transactions().Commit(ctx, dup, p); !fault.Is(err, fault.Conflict) {
		t.Fatalf("second Commit: err = %v, want Conflict", err)
	}

	got, err := s.Transactions().ByPrescription(ctx, "rx-1")
	if err != nil {
		t.Fatalf("ByPrescription: %v", err)
	}
	if got.ID != "tx-1" {
		t.Errorf("transaction = %s, want tx-1", got.ID)
	}

	all, _ := s.Transactions().List(ctx)
	if len(all) != 1 {
		t.Errorf("transactions = %d, want 1", len(all))
	}
}

func TestTransactionCommitStaleVersion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.Prescriptions().Create(ctx, testRx("rx-1", "doc-1", prescription.StatusReadyForBilling)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	stale, _ := s.Prescriptions().ByID(ctx, "rx-1")

	fresh, _ := s.Prescriptions().ByID(ctx, "rx-1")
	fresh.Status = prescription.StatusCancelled
	if err := s.Prescriptions().Update(ctx, fresh); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stale.Status = prescription.StatusCompleted
	tx := &billing.Transaction{ID: "tx-1", PrescriptionID: "rx-1"}
	if err := s.Transactions().Commit(ctx, tx, stale); !fault.Is(err, fault.Conflict) {
		t.Fatalf("Commit with stale version: err = %v, want Conflict", err)
	}
	if _, err := s.Transactions().ByPrescription(ctx, "rx-1"); !fault.Is(err, fault.NotFound) {
		t.Errorf("transaction created despite conflict")
	}
}
