package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/domain/fault"
	"github.com/carepoint/pharmacy-core/internal/domain/patient"
)

// PatientHandler serves patient reference data.
type PatientHandler struct {
	repo   patient.Repository
	logger *zap.Logger
}

// NewPatientHandler creates a handler.
func NewPatientHandler(repo patient.Repository, logger *zap.Logger) *PatientHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientHandler{repo: repo, logger: logger}
}

// Routes returns the handler routes.
func (h *PatientHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	return r
}

// List handles GET /patients.
func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.repo.List(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if out == nil {
		out = []*patient.Patient{}
	}
	respondJSON(w, http.StatusOK, out)
}

// Get handles GET /patients/{id}.
func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.ByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Create handles POST /patients.
func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p patient.Patient
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, h.logger, fault.New(fault.Validation, "invalid request body"))
		return
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if err := h.repo.Create(r.Context(), &p); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, &p)
}
