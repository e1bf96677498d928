package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/domain/billing"
	"github.com/carepoint/pharmacy-core/internal/domain/fault"
	"github.com/carepoint/pharmacy-core/internal/domain/patient"
	"github.com/carepoint/pharmacy-core/internal/domain/prescription"
	"github.com/carepoint/pharmacy-core/internal/identity"
	"github.com/carepoint/pharmacy-core/internal/observability/metrics"
	"github.com/carepoint/pharmacy-core/internal/render"
)

// BillingHandler serves quoting, commit and receipt endpoints.
type BillingHandler struct {
	engine        *billing.Engine
	transactions  billing.Repository
	prescriptions prescription.Repository
	patients      patient.Repository
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewBillingHandler creates a handler. The metrics parameter may be nil.
func NewBillingHandler(engine *billing.Engine, transactions billing.Repository, prescriptions prescription.Repository, patients patient.Repository, m *metrics.Metrics, logger *zap.Logger) *BillingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingHandler{
		engine:        engine,
		transactions:  transactions,
		prescriptions: prescriptions,
		patients:      patients,
		metrics:       m,
		logger:        logger,
	}
}

// Routes returns the handler routes.
func (h *BillingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/quote", h.Quote)
	r.Post("/", h.Commit)
	r.Get("/", h.List)
	r.Get("/{prescriptionID}", h.ByPrescription)
	r.Get("/{prescriptionID}/receipt", h.Receipt)
	return r
}

// BillRequest is the request body for quoting and committing.
type BillRequest struct {
	PrescriptionID  string          `json:"prescription_id"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	PaymentMethod   string          `json:"payment_method"`
}

// Quote handles POST /billing/quote. Nothing is persisted.
func (h *BillingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req BillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, fault.New(fault.Validation, "invalid request body"))
		return
	}

	method, err := billing.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	quote, err := h.engine.Quote(r.Context(), req.PrescriptionID, req.DiscountPercent, method)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// Commit handles POST /billing: it bills the prescription and completes it.
func (h *BillingHandler) Commit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("billing-handler")
	ctx, span := tracer.Start(ctx, "commit_transaction")
	defer span.End()

	actor, ok := identity.FromContext(ctx)
	if !ok {
		respondError(w, h.logger, fault.New(fault.Authorization, "no actor in context"))
		return
	}

	var req BillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, fault.New(fault.Validation, "invalid request body"))
		return
	}
	span.SetAttributes(attribute.String("prescription_id", req.PrescriptionID))

	method, err := billing.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	start := time.Now()
	t, err := h.engine.Commit(ctx, actor, req.PrescriptionID, req.DiscountPercent, method)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	if h.metrics != nil {
		h.metrics.TransactionsCreated.Inc()
		h.metrics.BillingDuration.Observe(time.Since(start).Seconds())
		cents := t.Total.Mul(decimal.New(100, 0)).IntPart()
		h.metrics.RevenueCents.Add(float64(cents))
	}
	respondJSON(w, http.StatusCreated, t)
}

// List handles GET /billing.
func (h *BillingHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.transactions.List(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if out == nil {
		out = []*billing.Transaction{}
	}
	respondJSON(w, http.StatusOK, out)
}

// ByPrescription handles GET /billing/{prescriptionID}.
func (h *BillingHandler) ByPrescription(w http.ResponseWriter, r *http.Request) {
	t, err := h.transactions.ByPrescription(r.Context(), chi.URLParam(r, "prescriptionID"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// Receipt handles GET /billing/{prescriptionID}/receipt as plain text.
func (h *BillingHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "prescriptionID")

	t, err := h.transactions.ByPrescription(ctx, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	p, err := h.prescriptions.ByID(ctx, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	// The receipt degrades gracefully without patient details.
	pat, err := h.patients.ByID(ctx, p.PatientID)
	if err != nil {
		pat = nil
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := render.Receipt(w, t, p, pat); err != nil {
		h.logger.Error("receipt render failed", zap.Error(err))
	}
}
