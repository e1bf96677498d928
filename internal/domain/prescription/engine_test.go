package prescription_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/carepoint/pharmacy-core/internal/domain/catalog"
	"github.com/carepoint/pharmacy-core/internal/domain/event"
	"github.com/carepoint/pharmacy-core/internal/domain/fault"
	"github.com/carepoint/pharmacy-core/internal/domain/prescription"
	"github.com/carepoint/pharmacy-core/internal/identity"
	"github.com/carepoint/pharmacy-core/internal/infrastructure/memory"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []event.Event
	fail   error
}

func (c *capturePublisher) Publish(_ context.Context, e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.events = append(c.events, e)
	return nil
}

func (c *capturePublisher) byName(name string) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Event
	for _, e := range c.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

var (
	drChen  = identity.Actor{ID: "usr-doc-1", Role: identity.RoleDoctor}
	mTorres = identity.Actor{ID: "usr-pha-1", Role: identity.RolePharmacist}
)

func newFixture(t *testing.T) (*prescription.Engine, *memory.Store, *capturePublisher) {
	t.Helper()
	store := memory.NewStore()
	meds := []*catalog.Medicine{
		{ID: "med-001", Name: "Amoxicillin 500mg", Price: decimal.RequireFromString("12.99"), Stock: 200},
		{ID: "med-002", Name: "Lisinopril 10mg", Price: decimal.RequireFromString("5.99"), Stock: 120},
		{ID: "med-003", Name: "Metformin 850mg", Price: decimal.RequireFromString("8.49"), Stock: 35},
		{ID: "med-004", Name: "Atorvastatin 20mg", Price: decimal.RequireFromString("15.25"), Stock: 0},
	}
	for _, m := range meds {
		if err := store.Medicines().Save(context.Background(), m); err != nil {
			t.Fatalf("seed medicine %s: %v", m.ID, err)
		}
	}
	pub := &capturePublisher{}
	engine := prescription.NewEngine(store.Prescriptions(), store.Medicines(), pub, nil)
	return engine, store, pub
}

func createCmd(medicineID string, qty int) prescription.CreateCommand {
	return prescription.CreateCommand{
		PatientID: "pat-001",
		Lines: []prescription.Line{
			// Unit price is deliberately wrong; the engine must snapshot
			// the catalog price, not trust the caller.
			{MedicineID: medicineID, UnitPrice: decimal.RequireFromString("999.99"), Quantity: qty},
		},
	}
}

func TestEngineCreateSnapshotsCatalog(t *testing.T) {
	engine, store, pub := newFixture(t)
	ctx := context.Background()

	p, err := engine.Create(ctx, drChen, createCmd("med-001", 30))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if p.Lines[0].MedicineName != "Amoxicillin 500mg" {
		t.Errorf("medicine name = %q", p.Lines[0].MedicineName)
	}
	if got := p.Lines[0].UnitPrice.StringFixed(2); got != "12.99" {
		t.Errorf("unit price = %s, want catalog price 12.99", got)
	}

	stored, err := store.Prescriptions().ByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if stored.Status != prescription.StatusPending {
		t.Errorf("stored status = %s, want pending", stored.Status)
	}

	created := pub.byName(event.PrescriptionCreated)
	if len(created) != 1 {
		t.Fatalf("created events = %d, want 1", len(created))
	}
	var payload event.PrescriptionCreatedPayload
	if err := json.Unmarshal(created[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.PrescriptionID != p.ID || payload.DoctorID != drChen.ID {
		t.Errorf("payload = %+v", payload)
	}
}

// The engine stamps catalog data onto its own copy of the lines; the caller's
// command must come back exactly as it went in.
func TestEngineCreateDoesNotMutateCommand(t *testing.T) {
	engine, _, _ := newFixture(t)
	cmd := createCmd("med-001", 30)

	if _, err := engine.Create(context.Background(), drChen, cmd); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if cmd.Lines[0].MedicineName != "" {
		t.Errorf("caller line name stamped to %q", cmd.Lines[0].MedicineName)
	}
	if got := cmd.Lines[0].UnitPrice.StringFixed(2); got != "999.99" {
		t.Errorf("caller line price overwritten to %s", got)
	}
}

func TestEngineCreateUnknownMedicine(t *testing.T) {
	engine, _, _ := newFixture(t)
	_, err := engine.Create(context.Background(), drChen, createCmd("med-999", 1))
	if !fault.Is(err, fault.NotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestEngineTransitionEmitsStatusChange(t *testing.T) {
	engine, _, pub := newFixture(t)
	ctx := context.Background()

	p, err := engine.Create(ctx, drChen, createCmd("med-001", 30))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := engine.Submit(ctx, drChen, p.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	changed := pub.byName(event.PrescriptionStatusChanged)
	if len(changed) != 1 {
		t.Fatalf("status_changed events = %d, want 1", len(changed))
	}
	var payload event.StatusChangedPayload
	if err := json.Unmarshal(changed[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.From != "pending" || payload.To != "pharmacy_review" || payload.ActorID != drChen.ID {
		t.Errorf("payload = %+v", payload)
	}
}

func TestEngineRejectCarriesReason(t *testing.T) {
	engine, _, pub := newFixture(t)
	ctx := context.Background()

	p, _ := engine.Create(ctx, drChen, createCmd("med-001", 30))
	if _, err := engine.Submit(ctx, drChen, p.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	rejected, err := engine.Reject(ctx, mTorres, p.ID, "dosage unclear")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != prescription.StatusPending {
		t.Errorf("status = %s, want pending", rejected.Status)
	}

	changed := pub.byName(event.PrescriptionStatusChanged)
	last := changed[len(changed)-1]
	var payload event.StatusChangedPayload
	if err := json.Unmarshal(last.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Reason != "dosage unclear" {
		t.Errorf("reason = %q", payload.Reason)
	}
}

// A failed guard must leave the stored entity and its version unchanged.
func TestEngineFailedTransitionLeavesStore(t *testing.T) {
	engine, store, _ := newFixture(t)
	ctx := context.Background()

	p, _ := engine.Create(ctx, drChen, createCmd("med-001", 30))

	if _, err := engine.Approve(ctx, mTorres, p.ID); !fault.Is(err, fault.InvalidTransition) {
		t.Fatalf("approve pending: err = %v, want InvalidTransition", err)
	}

	stored, err := store.Prescriptions().ByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if stored.Status != prescription.StatusPending {
		t.Errorf("status = %s, want pending", stored.Status)
	}
	if stored.Version != p.Version {
		t.Errorf("version = %d, want %d", stored.Version, p.Version)
	}
}

func TestEngineReviewAvailability(t *testing.T) {
	engine, _, _ := newFixture(t)
	ctx := context.Background()

	p, err := engine.Create(ctx, drChen, prescription.CreateCommand{
		PatientID: "pat-001",
		Lines: []prescription.Line{
			{MedicineID: "med-001", Quantity: 30},
			{MedicineID: "med-003", Quantity: 10},
			{MedicineID: "med-004", Quantity: 5},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	avail, err := engine.ReviewAvailability(ctx, p.ID)
	if err != nil {
		t.Fatalf("ReviewAvailability: %v", err)
	}
	if len(avail) != 3 {
		t.Fatalf("lines = %d, want 3", len(avail))
	}

	want := map[string]catalog.StockLevel{
		"med-001": catalog.StockAvailable,
		"med-003": catalog.StockLow,
		"med-004": catalog.StockOut,
	}
	for _, a := range avail {
		if a.Level != want[a.MedicineID] {
			t.Errorf("%s: level = %s, want %s", a.MedicineID, a.Level, want[a.MedicineID])
		}
	}
}

// Out-of-stock lines never block the approve transition; availability is
// advisory only.
func TestEngineApproveDespiteOutOfStock(t *testing.T) {
	engine, _, _ := newFixture(t)
	ctx := context.Background()

	p, _ := engine.Create(ctx, drChen, createCmd("med-004", 5))
	if _, err := engine.Submit(ctx, drChen, p.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	approved, err := engine.Approve(ctx, mTorres, p.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != prescription.StatusReadyForBilling {
		t.Errorf("status = %s, want ready_for_billing", approved.Status)
	}
}

// Event delivery is best-effort: a broken publisher must not fail commands.
func TestEnginePublishFailureNonFatal(t *testing.T) {
	engine, store, pub := newFixture(t)
	pub.fail = errors.New("broker down")
	ctx := context.Background()

	p, err := engine.Create(ctx, drChen, createCmd("med-001", 30))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := engine.Submit(ctx, drChen, p.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	stored, _ := store.Prescriptions().ByID(ctx, p.ID)
	if stored.Status != prescription.StatusPharmacyReview {
		t.Errorf("status = %s, want pharmacy_review", stored.Status)
	}
}
