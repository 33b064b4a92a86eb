package handler_test

import (
	"bytes"
	"context"
	"flag"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/handler"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/service"
	"github.com/warehousetch/warehouse-backend/pkg/httputil"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
	"github.com/warehousetch/warehouse-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}
	defer testutil.TerminateContainer(ctx)

	os.Exit(m.Run())
}

func newTestStockHandler() *handler.StockHandler {
	lotRepo := repository.NewLotRepository(suite.DB)
	logRepo := repository.NewDeductionLogRepository(suite.DB)
	log := logger.New("test", "test")

	availability := service.NewAvailabilityService(lotRepo, log)
	deduction := service.NewDeductionService(suite.DB, lotRepo, logRepo, nil, log)
	return handler.NewStockHandler(availability, deduction, log)
}

func newStockRouter() *chi.Mux {
	h := newTestStockHandler()
	r := chi.NewRouter()
	r.Use(httputil.ActorMiddleware)
	r.Post("/api/v1/warehouse/stock/availability", h.CheckAvailability)
	r.Post("/api/v1/warehouse/stock/deduct", h.Deduct)
	r.Get("/api/v1/warehouse/stock/deductions/export/{ref}", h.DeductionLogsByExport)
	return r
}

// createTestZone inserts a zone row so lot foreign keys resolve.
func createTestZone(t *testing.T, ctx context.Context, id int) {
	t.Helper()
	_, err := suite.RawDB.ExecContext(ctx,
		`INSERT INTO zones (id, code, name, capacity_kg) VALUES ($1, $2, $3, 10000)
		 ON CONFLICT (id) DO NOTHING`,
		id, fmt.Sprintf("KV%d", id), "Test Zone")
	require.NoError(t, err)
}

// createTestLot inserts a lot built from a fixture.
func createTestLot(t *testing.T, ctx context.Context, fixture testutil.LotFixture) *repository.ProductLot {
	t.Helper()
	lotRepo := repository.NewLotRepository(suite.DB)
	lot := &repository.ProductLot{
		ID:              fixture.ID,
		ProductCode:     fixture.ProductCode,
		ProductName:     fixture.ProductName,
		Unit:            testutil.PtrString(fixture.Unit),
		UnitPrice:       fixture.UnitPrice,
		WeightPerUnit:   fixture.WeightPerUnit,
		Quantity:        fixture.Quantity,
		ManufactureDate: testutil.PtrTime(fixture.ManufactureDate),
		ExpiryDate:      testutil.PtrTime(fixture.ExpiryDate),
		Location:        fixture.Location,
		ZoneID:          &fixture.ZoneID,
		ReceiptCode:     testutil.PtrString(fixture.ReceiptCode),
		SupplierName:    testutil.PtrString(fixture.SupplierName),
	}
	err := lotRepo.Create(ctx, lot)
	require.NoError(t, err)
	return lot
}

func postJSON(t *testing.T, r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Email", "picker@warehousetch.io")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

// --- CheckAvailability Tests ---

func TestCheckAvailability_Sufficient(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1)

	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-AVAIL-1"),
		testutil.WithQuantity(80),
		testutil.WithLotLocation("KV1_L001", 1),
	))

	r := newStockRouter()
	rr := postJSON(t, r, "/api/v1/warehouse/stock/availability", map[string]interface{}{
		"product_code": "SP-AVAIL-1",
		"quantity":     50,
	})

	assert.Equal(t, http.StatusOK, rr.Code, "unexpected status code. Body: %s", rr.Body.String())

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "sufficient", data["status"])
	assert.Equal(t, float64(80), data["total_quantity"])
	assert.Equal(t, float64(0), data["shortfall"])
}

func TestCheckAvailability_ExpiredOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1)

	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-EXPIRED-1"),
		testutil.WithQuantity(40),
		testutil.WithLotLocation("KV1_L001", 1),
		testutil.Expired(),
	))

	r := newStockRouter()
	rr := postJSON(t, r, "/api/v1/warehouse/stock/availability", map[string]interface{}{
		"product_code": "SP-EXPIRED-1",
		"quantity":     10,
	})

	assert.Equal(t, http.StatusOK, rr.Code, "unexpected status code. Body: %s", rr.Body.String())

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "expired_only", data["status"])
	assert.Equal(t, float64(10), data["shortfall"])
}

func TestCheckAvailability_MissingQuantity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	r := newStockRouter()
	rr := postJSON(t, r, "/api/v1/warehouse/stock/availability", map[string]interface{}{
		"product_code": "SP-AVAIL-1",
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected 400 when quantity missing. Body: %s", rr.Body.String())

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

// --- Deduct Tests ---

func TestDeduct_DrainsSmallestLotFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1)

	big := createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-DEDUCT-1"),
		testutil.WithQuantity(50),
		testutil.WithLotLocation("KV1_L001", 1),
	))
	small := createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-DEDUCT-1"),
		testutil.WithQuantity(10),
		testutil.WithLotLocation("KV1_L002", 1),
	))

	r := newStockRouter()
	rr := postJSON(t, r, "/api/v1/warehouse/stock/deduct", map[string]interface{}{
		"product_code": "SP-DEDUCT-1",
		"quantity":     15,
		"export_ref":   "PX-2026-001",
	})

	assert.Equal(t, http.StatusOK, rr.Code, "unexpected status code. Body: %s", rr.Body.String())

	// The emptied small lot is pruned; the big lot keeps the remainder
	lotRepo := repository.NewLotRepository(suite.DB)
	_, err := lotRepo.GetByID(ctx, small.ID)
	assert.Error(t, err, "emptied lot should be pruned")

	remaining, err := lotRepo.GetByID(ctx, big.ID)
	require.NoError(t, err)
	assert.Equal(t, 45, remaining.Quantity)

	// Two log rows, smallest lot's contribution first
	logRepo := repository.NewDeductionLogRepository(suite.DB)
	logs, err := logRepo.ListByExportRef(ctx, "PX-2026-001")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 10, logs[0].Quantity)
	assert.Equal(t, "KV1__KV1_L002", logs[0].SourceLocation)
	assert.Equal(t, 5, logs[1].Quantity)
}

func TestDeduct_InsufficientStockLeavesLotsUntouched(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1)

	lot := createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-SHORT-1"),
		testutil.WithQuantity(10),
		testutil.WithLotLocation("KV1_L001", 1),
	))

	r := newStockRouter()
	rr := postJSON(t, r, "/api/v1/warehouse/stock/deduct", map[string]interface{}{
		"product_code": "SP-SHORT-1",
		"quantity":     15,
		"export_ref":   "PX-2026-002",
	})

	assert.Equal(t, http.StatusConflict, rr.Code, "expected 409 for insufficient stock. Body: %s", rr.Body.String())

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INSUFFICIENT_STOCK", resp.Error.Code)
	assert.Equal(t, "5", resp.Error.Details["shortfall"])

	// Nothing moved
	lotRepo := repository.NewLotRepository(suite.DB)
	unchanged, err := lotRepo.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, unchanged.Quantity)

	logRepo := repository.NewDeductionLogRepository(suite.DB)
	logs, err := logRepo.ListByExportRef(ctx, "PX-2026-002")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestDeduct_ExpiredStockStillLeaves(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1)

	// Deduction is a physical removal and does not filter by expiry
	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-OLD-1"),
		testutil.WithQuantity(30),
		testutil.WithLotLocation("KV1_L001", 1),
		testutil.Expired(),
	))

	r := newStockRouter()
	rr := postJSON(t, r, "/api/v1/warehouse/stock/deduct", map[string]interface{}{
		"product_code": "SP-OLD-1",
		"quantity":     20,
		"export_ref":   "PX-2026-003",
	})

	assert.Equal(t, http.StatusOK, rr.Code, "unexpected status code. Body: %s", rr.Body.String())
}
