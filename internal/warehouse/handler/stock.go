package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/service"
	"github.com/warehousetch/warehouse-backend/pkg/httputil"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
)

// StockHandler handles availability checks and export deductions
type StockHandler struct {
	availability *service.AvailabilityService
	deduction    *service.DeductionService
	logger       *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(
	availability *service.AvailabilityService,
	deduction *service.DeductionService,
	log *logger.Logger,
) *StockHandler {
	return &StockHandler{
		availability: availability,
		deduction:    deduction,
		logger:       log,
	}
}

// CheckAvailability pre-checks whether an export can be covered
func (h *StockHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductCode string `json:"product_code" validate:"required"`
		Quantity    int    `json:"quantity" validate:"gt=0"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.availability.Check(r.Context(), req.ProductCode, req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Deduct withdraws export quantity from the product's lots
func (h *StockHandler) Deduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductCode string `json:"product_code" validate:"required"`
		Quantity    int    `json:"quantity" validate:"gt=0"`
		ExportRef   string `json:"export_ref" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	logs, err := h.deduction.Deduct(r.Context(), req.ProductCode, req.Quantity, req.ExportRef)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, logs)
}

// DeductionLogsByProduct lists deduction history for a product
func (h *StockHandler) DeductionLogsByProduct(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	logs, err := h.deduction.LogsByProduct(r.Context(), code)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, logs)
}

// DeductionLogsByExport lists the lots an export was drawn from
func (h *StockHandler) DeductionLogsByExport(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	logs, err := h.deduction.LogsByExport(r.Context(), ref)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, logs)
}
