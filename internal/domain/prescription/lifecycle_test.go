package prescription

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carepoint/pharmacy-core/internal/domain/fault"
	"github.com/carepoint/pharmacy-core/internal/identity"
)

var (
	doctor     = identity.Actor{ID: "doc-1", Role: identity.RoleDoctor}
	pharmacist = identity.Actor{ID: "pha-1", Role: identity.RolePharmacist}
	cashier    = identity.Actor{ID: "cas-1", Role: identity.RoleCashier}

	t0 = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
)

func validCommand() CreateCommand {
	return CreateCommand{
		PatientID: "pat-1",
		Lines: []Line{
			{MedicineID: "med-1", UnitPrice: decimal.RequireFromString("12.99"), Quantity: 30},
		},
	}
}

func at(t *testing.T, status Status) *Prescription {
	t.Helper()
	p, err := New("rx-1", doctor, validCommand(), t0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Status = status
	return p
}

func TestNewRequiresDoctor(t *testing.T) {
	for _, actor := range []identity.Actor{pharmacist, cashier} {
		if _, err := New("rx-1", actor, validCommand(), t0); !fault.Is(err, fault.Authorization) {
			t.Errorf("New as %s: err = %v, want Authorization", actor.Role, err)
		}
	}
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*CreateCommand)
	}{
		{"missing patient", func(c *CreateCommand) { c.PatientID = "" }},
		{"no lines", func(c *CreateCommand) { c.Lines = nil }},
		{"zero quantity", func(c *CreateCommand) { c.Lines[0].Quantity = 0 }},
		{"negative price", func(c *CreateCommand) { c.Lines[0].UnitPrice = decimal.RequireFromString("-1") }},
		{"missing medicine", func(c *CreateCommand) { c.Lines[0].MedicineID = "" }},
	}
	for _, tc := range cases {
		cmd := validCommand()
		tc.mod(&cmd)
		if _, err := New("rx-1", doctor, cmd, t0); !fault.Is(err, fault.Validation) {
			t.Errorf("%s: err = %v, want Validation", tc.name, err)
		}
	}
}

func TestNewStartsPending(t *testing.T) {
	p, err := New("rx-1", doctor, validCommand(), t0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Status != StatusPending {
		t.Errorf("status = %s, want pending", p.Status)
	}
	if p.DoctorID != doctor.ID {
		t.Errorf("doctor = %s, want %s", p.DoctorID, doctor.ID)
	}
}

// Every (from, to) pair outside the transition table must fail with
// InvalidTransition and leave the prescription untouched, whoever asks.
func TestTransitionTable(t *testing.T) {
	legal := map[[2]Status]bool{
		{StatusPending, StatusPharmacyReview}:          true,
		{StatusPharmacyReview, StatusReadyForBilling}:  true,
		{StatusPharmacyReview, StatusPending}:          true,
		{StatusReadyForBilling, StatusCompleted}:       true,
		{StatusPending, StatusCancelled}:               true,
		{StatusPharmacyReview, StatusCancelled}:        true,
		{StatusReadyForBilling, StatusCancelled}:       true,
	}

	all := []Status{StatusPending, StatusPharmacyReview, StatusReadyForBilling, StatusCompleted, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			if got := allowed(from, to); got != legal[[2]Status{from, to}] {
				t.Errorf("allowed(%s, %s) = %v, want %v", from, to, got, legal[[2]Status{from, to}])
			}
		}
	}
}

// A pharmacist pushing ready_for_billing back to pending skips review and
// must be rejected as an illegal edge, not an authorization failure.
func TestRejectFromReadyForBilling(t *testing.T) {
	p := at(t, StatusReadyForBilling)

	err := p.Reject(pharmacist, "changed my mind", t0)
	if !fault.Is(err, fault.InvalidTransition) {
		t.Fatalf("err = %v, want InvalidTransition", err)
	}
	if p.Status != StatusReadyForBilling {
		t.Errorf("status mutated to %s", p.Status)
	}
	if p.PharmacistNotes != "" {
		t.Errorf("notes mutated to %q", p.PharmacistNotes)
	}
}

// Edge legality is checked before role, so a wrong actor on an illegal edge
// still reports InvalidTransition.
func TestIllegalEdgeBeatsWrongRole(t *testing.T) {
	p := at(t, StatusPending)
	if err := p.Approve(cashier, t0); !fault.Is(err, fault.InvalidTransition) {
		t.Errorf("approve pending as cashier: err = %v, want InvalidTransition", err)
	}
}

func TestAuthorizationPerTransition(t *testing.T) {
	cases := []struct {
		name  string
		from  Status
		act   func(*Prescription, identity.Actor) error
		allow identity.Actor
		deny  []identity.Actor
	}{
		{
			name:  "submit",
			from:  StatusPending,
			act:   func(p *Prescription, a identity.Actor) error { return p.Submit(a, t0) },
			allow: doctor,
			deny:  []identity.Actor{pharmacist, cashier},
		},
		{
			name:  "approve",
			from:  StatusPharmacyReview,
			act:   func(p *Prescription, a identity.Actor) error { return p.Approve(a, t0) },
			allow: pharmacist,
			deny:  []identity.Actor{doctor, cashier},
		},
		{
			name:  "reject",
			from:  StatusPharmacyReview,
			act:   func(p *Prescription, a identity.Actor) error { return p.Reject(a, "illegible dosage", t0) },
			allow: pharmacist,
			deny:  []identity.Actor{doctor, cashier},
		},
		{
			name:  "complete",
			from:  StatusReadyForBilling,
			act:   func(p *Prescription, a identity.Actor) error { return p.Complete(a, t0) },
			allow: cashier,
			deny:  []identity.Actor{doctor, pharmacist},
		},
	}

	for _, tc := range cases {
		p := at(t, tc.from)
		if err := tc.act(p, tc.allow); err != nil {
			t.Errorf("%s as %s: unexpected err %v", tc.name, tc.allow.Role, err)
		}

		for _, actor := range tc.deny {
			p := at(t, tc.from)
			if err := tc.act(p, actor); !fault.Is(err, fault.Authorization) {
				t.Errorf("%s as %s: err = %v, want Authorization", tc.name, actor.Role, err)
			}
			if p.Status != tc.from {
				t.Errorf("%s as %s: status mutated to %s", tc.name, actor.Role, p.Status)
			}
		}
	}
}

// Only the prescribing doctor may submit; another doctor is denied.
func TestSubmitOwnership(t *testing.T) {
	p := at(t, StatusPending)
	other := identity.Actor{ID: "doc-2", Role: identity.RoleDoctor}
	if err := p.Submit(other, t0); !fault.Is(err, fault.Authorization) {
		t.Errorf("submit as other doctor: err = %v, want Authorization", err)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	p := at(t, StatusPharmacyReview)
	if err := p.Reject(pharmacist, "", t0); !fault.Is(err, fault.Validation) {
		t.Errorf("err = %v, want Validation", err)
	}
	if p.Status != StatusPharmacyReview {
		t.Errorf("status mutated to %s", p.Status)
	}
}

func TestRejectRecordsReason(t *testing.T) {
	p := at(t, StatusPharmacyReview)
	if err := p.Reject(pharmacist, "interaction risk", t0); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if p.Status != StatusPending {
		t.Errorf("status = %s, want pending", p.Status)
	}
	if p.PharmacistNotes != "interaction risk" {
		t.Errorf("notes = %q", p.PharmacistNotes)
	}
}

func TestApproveClearsRejectionReason(t *testing.T) {
	p := at(t, StatusPharmacyReview)
	if err := p.Reject(pharmacist, "interaction risk", t0); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if err := p.Submit(doctor, t0.Add(time.Hour)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.Approve(pharmacist, t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if p.Status != StatusReadyForBilling {
		t.Errorf("status = %s, want ready_for_billing", p.Status)
	}
	if p.PharmacistNotes != "" {
		t.Errorf("notes not cleared: %q", p.PharmacistNotes)
	}
	if p.PharmacistID != pharmacist.ID {
		t.Errorf("pharmacist = %s, want %s", p.PharmacistID, pharmacist.ID)
	}
}

func TestCancelFromNonTerminal(t *testing.T) {
	for _, from := range []Status{StatusPending, StatusPharmacyReview, StatusReadyForBilling} {
		p := at(t, from)
		if err := p.Cancel(t0); err != nil {
			t.Errorf("cancel from %s: %v", from, err)
		}
	}
	for _, from := range []Status{StatusCompleted, StatusCancelled} {
		p := at(t, from)
		if err := p.Cancel(t0); !fault.Is(err, fault.InvalidTransition) {
			t.Errorf("cancel from %s: err = %v, want InvalidTransition", from, err)
		}
	}
}

func TestFullLifecycle(t *testing.T) {
	p, err := New("rx-1", doctor, validCommand(), t0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	created := p.CreatedAt

	steps := []struct {
		name string
		fn   func() error
		want Status
	}{
		{"submit", func() error { return p.Submit(doctor, t0.Add(time.Minute)) }, StatusPharmacyReview},
		{"approve", func() error { return p.Approve(pharmacist, t0.Add(2*time.Minute)) }, StatusReadyForBilling},
		{"complete", func() error { return p.Complete(cashier, t0.Add(3*time.Minute)) }, StatusCompleted},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if p.Status != s.want {
			t.Fatalf("%s: status = %s, want %s", s.name, p.Status, s.want)
		}
	}

	if p.CreatedAt != created {
		t.Errorf("createdAt changed from %v to %v", created, p.CreatedAt)
	}
	if p.CashierID != cashier.ID {
		t.Errorf("cashier = %s, want %s", p.CashierID, cashier.ID)
	}
}
