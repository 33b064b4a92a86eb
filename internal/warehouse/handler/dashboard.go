package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/service"
	"github.com/warehousetch/warehouse-backend/pkg/errors"
	"github.com/warehousetch/warehouse-backend/pkg/httputil"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
)

// DashboardHandler handles overview and zone endpoints
type DashboardHandler struct {
	dashboard *service.DashboardService
	zoneRepo  *repository.ZoneRepository
	logger    *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard *service.DashboardService, zoneRepo *repository.ZoneRepository, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		zoneRepo:  zoneRepo,
		logger:    log,
	}
}

// GetStats returns the warehouse overview
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboard.Stats(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}

// ListZones lists all zones
func (h *DashboardHandler) ListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.zoneRepo.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, zones)
}

// GetZone gets a zone by ID
func (h *DashboardHandler) GetZone(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("zone id must be numeric"))
		return
	}

	zone, err := h.zoneRepo.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, zone)
}

// ZoneUtilization reports occupied weight per zone
func (h *DashboardHandler) ZoneUtilization(w http.ResponseWriter, r *http.Request) {
	utils, err := h.zoneRepo.Utilization(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, utils)
}
