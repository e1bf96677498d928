package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/carepoint/pharmacy-core/internal/api/handlers"
	"github.com/carepoint/pharmacy-core/internal/api/middleware"
	"github.com/carepoint/pharmacy-core/internal/domain/billing"
	"github.com/carepoint/pharmacy-core/internal/domain/prescription"
	"github.com/carepoint/pharmacy-core/internal/infrastructure/memory"
	"github.com/carepoint/pharmacy-core/internal/observability/metrics"
)

const (
	doctorToken     = "demo-doctor-token"
	pharmacistToken = "demo-pharmacist-token"
	cashierToken    = "demo-cashier-token"
)

func newServer(t *testing.T) *httptest.Server {
	return newServerWith(t, nil)
}

func newServerWith(t *testing.T, m *metrics.Metrics) *httptest.Server {
	t.Helper()
	store := memory.NewStore()
	dir, err := memory.Seed(store)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rxEngine := prescription.NewEngine(store.Prescriptions(), store.Medicines(), nil, nil)
	billEngine := billing.NewEngine(store.Prescriptions(), store.Transactions(), nil, nil)

	r := chi.NewRouter()
	r.Use(middleware.ActorAuth(dir))
	r.Mount("/prescriptions", handlers.NewPrescriptionHandler(rxEngine, store.Prescriptions(), m, nil).Routes())
	r.Mount("/billing", handlers.NewBillingHandler(billEngine, store.Transactions(), store.Prescriptions(), store.Patients(), m, nil).Routes())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, token, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func createRx(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := do(t, srv, doctorToken, http.MethodPost, "/prescriptions", map[string]interface{}{
		"patient_id": "pat-001",
		"lines": []map[string]interface{}{
			{"medicine_id": "med-002", "quantity": 30},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d: %s", resp.StatusCode, body)
	}
	var p prescription.Prescription
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return p.ID
}

func advance(t *testing.T, srv *httptest.Server, id string, to prescription.Status) {
	t.Helper()
	steps := []struct {
		token string
		verb  string
		until prescription.Status
	}{
		{doctorToken, "submit", prescription.StatusPharmacyReview},
		{pharmacistToken, "approve", prescription.StatusReadyForBilling},
	}
	for _, s := range steps {
		resp, body := do(t, srv, s.token, http.MethodPost, fmt.Sprintf("/prescriptions/%s/%s", id, s.verb), nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d: %s", s.verb, resp.StatusCode, body)
		}
		if s.until == to {
			return
		}
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newServer(t)

	resp, _ := do(t, srv, "", http.MethodGet, "/prescriptions", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", resp.StatusCode)
	}

	resp, _ = do(t, srv, "bogus-token", http.MethodGet, "/prescriptions", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: status %d, want 401", resp.StatusCode)
	}
}

func TestFullWorkflowOverHTTP(t *testing.T) {
	srv := newServer(t)
	id := createRx(t, srv)
	advance(t, srv, id, prescription.StatusReadyForBilling)

	resp, body := do(t, srv, cashierToken, http.MethodPost, "/billing", map[string]interface{}{
		"prescription_id":  id,
		"discount_percent": "10",
		"payment_method":   "card",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("bill: status %d: %s", resp.StatusCode, body)
	}
	var tx billing.Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := tx.Total.StringFixed(2); got != "378.79" {
		t.Errorf("total = %s, want 378.79", got)
	}
	if !strings.HasPrefix(tx.InvoiceNumber, "INV-") {
		t.Errorf("invoice = %q", tx.InvoiceNumber)
	}

	resp, body = do(t, srv, cashierToken, http.MethodGet, "/prescriptions/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status %d", resp.StatusCode)
	}
	var p prescription.Prescription
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Status != prescription.StatusCompleted {
		t.Errorf("status = %s, want completed", p.Status)
	}

	resp, body = do(t, srv, cashierToken, http.MethodGet, "/billing/"+id+"/receipt", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("receipt: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %s", ct)
	}
	if !strings.Contains(string(body), tx.InvoiceNumber) {
		t.Errorf("receipt missing invoice number:\n%s", body)
	}
}

func TestWrongRoleForbidden(t *testing.T) {
	srv := newServer(t)
	id := createRx(t, srv)

	resp, _ := do(t, srv, pharmacistToken, http.MethodPost, "/prescriptions/"+id+"/submit", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("submit as pharmacist: status %d, want 403", resp.StatusCode)
	}
}

func TestInvalidTransitionConflict(t *testing.T) {
	srv := newServer(t)
	id := createRx(t, srv)

	resp, _ := do(t, srv, pharmacistToken, http.MethodPost, "/prescriptions/"+id+"/approve", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("approve pending: status %d, want 409", resp.StatusCode)
	}
}

// Billing a prescription still under review is a 409 and leaves nothing behind.
func TestBillBeforeReadyConflict(t *testing.T) {
	srv := newServer(t)
	id := createRx(t, srv)
	advance(t, srv, id, prescription.StatusPharmacyReview)

	resp, _ := do(t, srv, cashierToken, http.MethodPost, "/billing", map[string]interface{}{
		"prescription_id": id,
		"payment_method":  "cash",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("bill under review: status %d, want 409", resp.StatusCode)
	}

	resp, _ = do(t, srv, cashierToken, http.MethodGet, "/billing/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("transaction lookup: status %d, want 404", resp.StatusCode)
	}
}

func TestDoubleBillConflict(t *testing.T) {
	srv := newServer(t)
	id := createRx(t, srv)
	advance(t, srv, id, prescription.StatusReadyForBilling)

	bill := map[string]interface{}{
		"prescription_id": id,
		"payment_method":  "cash",
	}
	if resp, body := do(t, srv, cashierToken, http.MethodPost, "/billing", bill); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first bill: status %d: %s", resp.StatusCode, body)
	}
	if resp, _ := do(t, srv, cashierToken, http.MethodPost, "/billing", bill); resp.StatusCode != http.StatusConflict {
		t.Errorf("second bill: status %d, want 409", resp.StatusCode)
	}

	resp, body := do(t, srv, cashierToken, http.MethodGet, "/billing", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	var all []billing.Transaction
	if err := json.Unmarshal(body, &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("transactions = %d, want 1", len(all))
	}
}

func TestNotFound(t *testing.T) {
	srv := newServer(t)

	resp, _ := do(t, srv, doctorToken, http.MethodGet, "/prescriptions/rx-missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want 404", resp.StatusCode)
	}
}

func TestListFilters(t *testing.T) {
	srv := newServer(t)
	id := createRx(t, srv)

	resp, body := do(t, srv, doctorToken, http.MethodGet, "/prescriptions?doctor_id=usr-doc-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out []prescription.Prescription
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].ID != id {
		t.Errorf("by doctor = %d results", len(out))
	}

	resp, body = do(t, srv, doctorToken, http.MethodGet, "/prescriptions?status=pending", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("by status = %d results", len(out))
	}

	resp, _ = do(t, srv, doctorToken, http.MethodGet, "/prescriptions?status=garbage", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad status filter: status %d, want 400", resp.StatusCode)
	}
}

func TestRejectRequiresReasonOverHTTP(t *testing.T) {
	srv := newServer(t)
	id := createRx(t, srv)
	advance(t, srv, id, prescription.StatusPharmacyReview)

	resp, _ := do(t, srv, pharmacistToken, http.MethodPost, "/prescriptions/"+id+"/reject", map[string]string{"reason": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty reason: status %d, want 400", resp.StatusCode)
	}

	resp, body := do(t, srv, pharmacistToken, http.MethodPost, "/prescriptions/"+id+"/reject", map[string]string{"reason": "dosage unclear"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reject: status %d: %s", resp.StatusCode, body)
	}
	var p prescription.Prescription
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Status != prescription.StatusPending {
		t.Errorf("status = %s, want pending", p.Status)
	}
}

// The in-review gauge follows prescriptions entering and leaving
// pharmacy_review, whichever edge they take out of it.
func TestReviewGaugeTracksTransitions(t *testing.T) {
	m := metrics.NewWith(prometheus.NewRegistry())
	srv := newServerWith(t, m)

	gauge := func() float64 { return testutil.ToFloat64(m.PrescriptionsInReview) }

	id := createRx(t, srv)
	if got := gauge(); got != 0 {
		t.Fatalf("gauge after create = %v, want 0", got)
	}

	if resp, body := do(t, srv, doctorToken, http.MethodPost, "/prescriptions/"+id+"/submit", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: status %d: %s", resp.StatusCode, body)
	}
	if got := gauge(); got != 1 {
		t.Fatalf("gauge after submit = %v, want 1", got)
	}

	if resp, body := do(t, srv, pharmacistToken, http.MethodPost, "/prescriptions/"+id+"/approve", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: status %d: %s", resp.StatusCode, body)
	}
	if got := gauge(); got != 0 {
		t.Fatalf("gauge after approve = %v, want 0", got)
	}

	// The rejection edge leaves review too.
	id2 := createRx(t, srv)
	do(t, srv, doctorToken, http.MethodPost, "/prescriptions/"+id2+"/submit", nil)
	if got := gauge(); got != 1 {
		t.Fatalf("gauge after second submit = %v, want 1", got)
	}
	if resp, body := do(t, srv, pharmacistToken, http.MethodPost, "/prescriptions/"+id2+"/reject", map[string]string{"reason": "dosage unclear"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("reject: status %d: %s", resp.StatusCode, body)
	}
	if got := gauge(); got != 0 {
		t.Fatalf("gauge after reject = %v, want 0", got)
	}

	// A failed transition attempt never moves the gauge.
	do(t, srv, pharmacistToken, http.MethodPost, "/prescriptions/"+id2+"/approve", nil)
	if got := gauge(); got != 0 {
		t.Fatalf("gauge after rejected approve = %v, want 0", got)
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, srv, doctorToken, http.MethodPost, "/prescriptions", map[string]interface{}{
		"patient_id": "pat-001",
		"lines": []map[string]interface{}{
			{"medicine_id": "med-003", "quantity": 10},
			{"medicine_id": "med-004", "quantity": 5},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d: %s", resp.StatusCode, body)
	}
	var p prescription.Prescription
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp, body = do(t, srv, pharmacistToken, http.MethodGet, "/prescriptions/"+p.ID+"/availability", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("availability: status %d", resp.StatusCode)
	}
	var lines []prescription.LineAvailability
	if err := json.Unmarshal(body, &lines); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0].Level != "low_stock" || lines[1].Level != "out_of_stock" {
		t.Errorf("levels = %s, %s", lines[0].Level, lines[1].Level)
	}
}
