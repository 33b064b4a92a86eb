package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/service"
	"github.com/warehousetch/warehouse-backend/pkg/httputil"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
)

// StocktakeHandler handles counting round endpoints
type StocktakeHandler struct {
	stocktake *service.StocktakeService
	logger    *logger.Logger
}

// NewStocktakeHandler creates a new stocktake handler
func NewStocktakeHandler(stocktake *service.StocktakeService, log *logger.Logger) *StocktakeHandler {
	return &StocktakeHandler{
		stocktake: stocktake,
		logger:    log,
	}
}

// Start opens a new counting round
func (h *StocktakeHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	round, err := h.stocktake.StartRound(r.Context(), req.Name)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, round)
}

// Assign links lots into a round
func (h *StocktakeHandler) Assign(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "id")

	var req struct {
		LotIDs       []string `json:"lot_ids"`
		ProductCodes []string `json:"product_codes"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	inserted, err := h.stocktake.AssignLots(r.Context(), roundID, req.LotIDs, req.ProductCodes)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"round_id":       roundID,
		"lines_assigned": inserted,
	})
}

// SubmitCount records a physical count on a line
func (h *StocktakeHandler) SubmitCount(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "lineID")

	var req struct {
		ActualQuantity int     `json:"actual_quantity" validate:"gte=0"`
		Note           *string `json:"note,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.stocktake.SubmitCount(r.Context(), lineID, req.ActualQuantity, req.Note); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Reset clears count results for one product in a round
func (h *StocktakeHandler) Reset(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "id")

	var req struct {
		ProductCode string `json:"product_code" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	reset, err := h.stocktake.ResetLines(r.Context(), roundID, req.ProductCode)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"round_id":    roundID,
		"lines_reset": reset,
	})
}

// RemoveLines drops products from a round
func (h *StocktakeHandler) RemoveLines(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "id")

	var req struct {
		ProductCodes []string `json:"product_codes" validate:"required,min=1"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	removed, err := h.stocktake.RemoveLines(r.Context(), roundID, req.ProductCodes)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"round_id":      roundID,
		"lines_removed": removed,
	})
}

// Finalize closes a round
func (h *StocktakeHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "id")

	round, err := h.stocktake.FinalizeRound(r.Context(), roundID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, round)
}

// Cancel deletes an in-progress round and its lines
func (h *StocktakeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "id")

	if err := h.stocktake.CancelRound(r.Context(), roundID); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Report builds the reconciliation report for a round
func (h *StocktakeHandler) Report(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "id")

	report, err := h.stocktake.Report(r.Context(), roundID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}

// Active returns the newest in-progress round
func (h *StocktakeHandler) Active(w http.ResponseWriter, r *http.Request) {
	round, err := h.stocktake.ActiveRound(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, round)
}

// List lists rounds, optionally filtered by status
func (h *StocktakeHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	rounds, err := h.stocktake.ListRounds(r.Context(), status)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rounds)
}

// Lines lists a round's lines with their lots
func (h *StocktakeHandler) Lines(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "id")

	lines, err := h.stocktake.Lines(r.Context(), roundID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lines)
}
