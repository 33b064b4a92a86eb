package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/service"
	"github.com/warehousetch/warehouse-backend/pkg/httputil"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
)

// TransferHandler handles location transfer endpoints
type TransferHandler struct {
	transfer *service.TransferService
	logger   *logger.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(transfer *service.TransferService, log *logger.Logger) *TransferHandler {
	return &TransferHandler{
		transfer: transfer,
		logger:   log,
	}
}

// Transfer moves a batch of lots to a destination location
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req service.TransferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	logs, err := h.transfer.Transfer(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, logs)
}

// LogsByActor lists transfers performed by one user
func (h *TransferHandler) LogsByActor(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	logs, err := h.transfer.LogsByActor(r.Context(), email)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, logs)
}

// Recent lists the most recent transfers
func (h *TransferHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.transfer.RecentLogs(r.Context(), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, logs)
}
