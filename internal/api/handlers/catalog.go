package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/domain/catalog"
	"github.com/carepoint/pharmacy-core/internal/domain/fault"
)

// CatalogHandler serves the medicine catalog.
type CatalogHandler struct {
	repo   catalog.Repository
	logger *zap.Logger
}

// NewCatalogHandler creates a handler.
func NewCatalogHandler(repo catalog.Repository, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandler{repo: repo, logger: logger}
}

// Routes returns the handler routes.
func (h *CatalogHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Put("/", h.Save)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/stock", h.AdjustStock)
	return r
}

// medicineView decorates a medicine with its stock classification.
type medicineView struct {
	*catalog.Medicine
	StockLevel catalog.StockLevel `json:"stock_level"`
}

func view(m *catalog.Medicine) medicineView {
	return medicineView{Medicine: m, StockLevel: catalog.LevelForStock(m.Stock)}
}

// List handles GET /medicines.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	ms, err := h.repo.List(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	out := make([]medicineView, 0, len(ms))
	for _, m := range ms {
		out = append(out, view(m))
	}
	respondJSON(w, http.StatusOK, out)
}

// Get handles GET /medicines/{id}.
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.repo.ByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view(m))
}

// Save handles PUT /medicines.
func (h *CatalogHandler) Save(w http.ResponseWriter, r *http.Request) {
	var m catalog.Medicine
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		respondError(w, h.logger, fault.New(fault.Validation, "invalid request body"))
		return
	}
	if err := h.repo.Save(r.Context(), &m); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view(&m))
}

// AdjustStockRequest carries the stock delta, negative for dispensing.
type AdjustStockRequest struct {
	Delta int `json:"delta"`
}

// AdjustStock handles POST /medicines/{id}/stock.
func (h *CatalogHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req AdjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, fault.New(fault.Validation, "invalid request body"))
		return
	}
	m, err := h.repo.AdjustStock(r.Context(), chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view(m))
}
