package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/service"
	"github.com/warehousetch/warehouse-backend/pkg/httputil"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
)

// LotHandler handles lot endpoints: intake, queries, resize and distribution
type LotHandler struct {
	allocator *service.AllocatorService
	lots      *service.LotService
	capacity  *service.CapacityService
	logger    *logger.Logger
}

// NewLotHandler creates a new lot handler
func NewLotHandler(
	allocator *service.AllocatorService,
	lots *service.LotService,
	capacity *service.CapacityService,
	log *logger.Logger,
) *LotHandler {
	return &LotHandler{
		allocator: allocator,
		lots:      lots,
		capacity:  capacity,
		logger:    log,
	}
}

// Intake receives goods and allocates them into zone locations
func (h *LotHandler) Intake(w http.ResponseWriter, r *http.Request) {
	var req service.IntakeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	lots, err := h.allocator.Allocate(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, lots)
}

// Get gets a lot by ID
func (h *LotHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	lot, err := h.lots.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}

// ListAll lists the full inventory
func (h *LotHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	lots, err := h.lots.ListAll(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// ListByProduct lists a product's lots
func (h *LotHandler) ListByProduct(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	lots, err := h.lots.ListByProductCode(r.Context(), code)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// GetByLocation returns the pallet view for a location
func (h *LotHandler) GetByLocation(w http.ResponseWriter, r *http.Request) {
	location := chi.URLParam(r, "location")

	view, err := h.lots.LotsAtLocation(r.Context(), location)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// ListExpiring lists lots expiring soon
func (h *LotHandler) ListExpiring(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	lots, err := h.lots.ListExpiring(r.Context(), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// ListLowStock lists products running low
func (h *LotHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	threshold, _ := strconv.Atoi(r.URL.Query().Get("threshold"))

	stocks, err := h.lots.ListLowStock(r.Context(), threshold)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stocks)
}

// UpdateQuantity resizes a lot in place
func (h *LotHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Quantity int `json:"quantity" validate:"gte=0"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	lot, err := h.lots.UpdateQuantity(r.Context(), id, req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}

// Distribute splits a lot across locations
func (h *LotHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Targets []service.DistributeTarget `json:"targets" validate:"required,min=1,dive"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	lots, err := h.allocator.Distribute(r.Context(), id, req.Targets)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// DeleteByProduct removes every lot of a product
func (h *LotHandler) DeleteByProduct(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	removed, err := h.lots.DeleteByProductCode(r.Context(), code)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"product_code": code,
		"lots_removed": removed,
	})
}

// AvailableWeight reports the free weight at a location
func (h *LotHandler) AvailableWeight(w http.ResponseWriter, r *http.Request) {
	location := chi.URLParam(r, "location")

	var excludeLotID *string
	if id := r.URL.Query().Get("exclude_lot_id"); id != "" {
		excludeLotID = &id
	}

	free, err := h.capacity.AvailableWeight(r.Context(), location, excludeLotID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"location":     location,
		"available_kg": free,
		"capacity_kg":  h.capacity.LocationCapacityKG(),
	})
}

// Headroom reports how many more units of a lot fit at a location
func (h *LotHandler) Headroom(w http.ResponseWriter, r *http.Request) {
	location := chi.URLParam(r, "location")
	lotID := chi.URLParam(r, "lotID")

	headroom, err := h.capacity.MaxAddableQuantity(r.Context(), location, lotID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, headroom)
}
