package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/domain/fault"
	"github.com/carepoint/pharmacy-core/internal/domain/prescription"
	"github.com/carepoint/pharmacy-core/internal/identity"
	"github.com/carepoint/pharmacy-core/internal/observability/metrics"
)

// PrescriptionHandler serves the prescription lifecycle endpoints.
type PrescriptionHandler struct {
	engine  *prescription.Engine
	repo    prescription.Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewPrescriptionHandler creates a handler. The metrics parameter may be nil.
func NewPrescriptionHandler(engine *prescription.Engine, repo prescription.Repository, m *metrics.Metrics, logger *zap.Logger) *PrescriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionHandler{engine: engine, repo: repo, metrics: m, logger: logger}
}

// Routes returns the handler routes.
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/availability", h.Availability)
	r.Post("/{id}/submit", h.Submit)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/reject", h.Reject)
	r.Post("/{id}/cancel", h.Cancel)
	return r
}

// CreateRequest is the request body for creating a prescription.
type CreateRequest struct {
	PatientID   string              `json:"patient_id"`
	Lines       []prescription.Line `json:"lines"`
	Symptoms    string              `json:"symptoms,omitempty"`
	Diagnosis   string              `json:"diagnosis,omitempty"`
	DoctorNotes string              `json:"doctor_notes,omitempty"`
}

// Create handles POST /prescriptions.
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("prescription-handler")
	ctx, span := tracer.Start(ctx, "create_prescription")
	defer span.End()

	actor, ok := identity.FromContext(ctx)
	if !ok {
		respondError(w, h.logger, fault.New(fault.Authorization, "no actor in context"))
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, fault.New(fault.Validation, "invalid request body"))
		return
	}

	p, err := h.engine.Create(ctx, actor, prescription.CreateCommand{
		PatientID:   req.PatientID,
		Lines:       req.Lines,
		Symptoms:    req.Symptoms,
		Diagnosis:   req.Diagnosis,
		DoctorNotes: req.DoctorNotes,
	})
	if err != nil {
		h.countRejection(err)
		respondError(w, h.logger, err)
		return
	}
	span.SetAttributes(attribute.String("prescription_id", p.ID))

	if h.metrics != nil {
		h.metrics.PrescriptionsCreated.Inc()
	}
	respondJSON(w, http.StatusCreated, p)
}

// List handles GET /prescriptions with optional doctor_id and status filters.
func (h *PrescriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		out []*prescription.Prescription
		err error
	)
	switch {
	case r.URL.Query().Get("doctor_id") != "":
		out, err = h.repo.ByDoctor(ctx, r.URL.Query().Get("doctor_id"))
	case r.URL.Query().Get("status") != "":
		status := prescription.Status(r.URL.Query().Get("status"))
		if !status.Valid() {
			respondError(w, h.logger, fault.Errorf(fault.Validation, "unknown status %q", status))
			return
		}
		out, err = h.repo.ByStatus(ctx, status)
	default:
		out, err = h.repo.List(ctx)
	}
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if out == nil {
		out = []*prescription.Prescription{}
	}
	respondJSON(w, http.StatusOK, out)
}

// Get handles GET /prescriptions/{id}.
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.ByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Availability handles GET /prescriptions/{id}/availability. The stock
// classification is advisory and never blocks approval.
func (h *PrescriptionHandler) Availability(w http.ResponseWriter, r *http.Request) {
	lines, err := h.engine.ReviewAvailability(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, lines)
}

// Submit handles POST /prescriptions/{id}/submit.
func (h *PrescriptionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Submit)
}

// Approve handles POST /prescriptions/{id}/approve.
func (h *PrescriptionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Approve)
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// Reject handles POST /prescriptions/{id}/reject.
func (h *PrescriptionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, fault.New(fault.Validation, "invalid request body"))
		return
	}
	h.transition(w, r, func(ctx context.Context, actor identity.Actor, id string) (*prescription.Prescription, error) {
		return h.engine.Reject(ctx, actor, id, req.Reason)
	})
}

// Cancel handles POST /prescriptions/{id}/cancel.
func (h *PrescriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Cancel)
}

func (h *PrescriptionHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, identity.Actor, string) (*prescription.Prescription, error)) {
	ctx := r.Context()
	actor, ok := identity.FromContext(ctx)
	if !ok {
		respondError(w, h.logger, fault.New(fault.Authorization, "no actor in context"))
		return
	}

	from := prescription.Status("")
	if p, err := h.repo.ByID(ctx, chi.URLParam(r, "id")); err == nil {
		from = p.Status
	}

	p, err := fn(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		h.countRejection(err)
		respondError(w, h.logger, err)
		return
	}

	if h.metrics != nil {
		h.metrics.StatusTransitions.WithLabelValues(string(from), string(p.Status)).Inc()
		if from == prescription.StatusPharmacyReview {
			h.metrics.PrescriptionsInReview.Dec()
		}
		if p.Status == prescription.StatusPharmacyReview {
			h.metrics.PrescriptionsInReview.Inc()
		}
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *PrescriptionHandler) countRejection(err error) {
	if h.metrics == nil {
		return
	}
	if kind, ok := fault.KindOf(err); ok {
		h.metrics.TransitionsRejected.WithLabelValues(kind.String()).Inc()
	}
}
