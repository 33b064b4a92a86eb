package repository_test

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/pkg/errors"
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

// createTestZone inserts a zone row so lot foreign keys resolve.
func createTestZone(t *testing.T, ctx context.Context, id int, capacityKG float64) {
	t.Helper()
	_, err := suite.RawDB.ExecContext(ctx,
		`INSERT INTO zones (id, code, name, capacity_kg) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		id, fmt.Sprintf("KV%d", id), fmt.Sprintf("Zone %d", id), capacityKG)
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

func TestLotCreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1, 10000)

	lotRepo := repository.NewLotRepository(suite.DB)
	created := createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-CRUD-1"),
		testutil.WithLotLocation("KV1_L001", 1),
	))
	assert.False(t, created.CreatedAt.IsZero())

	got, err := lotRepo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "SP-CRUD-1", got.ProductCode)
	assert.Equal(t, "KV1_L001", got.Location)
	require.NotNil(t, got.ZoneID)
	assert.Equal(t, 1, *got.ZoneID)

	_, err = lotRepo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLockLotsForDeduction_Ordering(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1, 10000)
	createTestZone(t, ctx, 2, 10000)

	// Same quantity in zones 1 and 2, plus a smaller lot and two lots whose
	// locations only differ in the numeric suffix (L999 before L1000, which
	// lexical ordering would get backwards).
	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-ORDER-1"), testutil.WithQuantity(30),
		testutil.WithLotLocation("KV2_L001", 2)))
	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-ORDER-1"), testutil.WithQuantity(30),
		testutil.WithLotLocation("KV1_L1000", 1)))
	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-ORDER-1"), testutil.WithQuantity(30),
		testutil.WithLotLocation("KV1_L999", 1)))
	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-ORDER-1"), testutil.WithQuantity(5),
		testutil.WithLotLocation("KV2_L007", 2)))

	lotRepo := repository.NewLotRepository(suite.DB)
	tx, err := suite.DB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	lots, err := lotRepo.LockLotsForDeduction(tx, "SP-ORDER-1")
	require.NoError(t, err)
	require.Len(t, lots, 4)

	// Smallest quantity first, then zone, then numeric location suffix
	assert.Equal(t, "KV2_L007", lots[0].Location)
	assert.Equal(t, "KV1_L999", lots[1].Location)
	assert.Equal(t, "KV1_L1000", lots[2].Location)
	assert.Equal(t, "KV2_L001", lots[3].Location)
}

func TestSumValidByCode_ExcludesExpired(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1, 10000)

	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-VALID-1"), testutil.WithQuantity(40),
		testutil.WithLotLocation("KV1_L001", 1)))
	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-VALID-1"), testutil.WithQuantity(25),
		testutil.WithLotLocation("KV1_L002", 1), testutil.Expired()))

	lotRepo := repository.NewLotRepository(suite.DB)

	total, err := lotRepo.SumByCode(ctx, "SP-VALID-1")
	require.NoError(t, err)
	assert.Equal(t, 65, total)

	valid, err := lotRepo.SumValidByCode(ctx, "SP-VALID-1")
	require.NoError(t, err)
	assert.Equal(t, 40, valid)
}

func TestLocationWeight_ExcludesGivenLot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1, 10000)

	a := createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-WEIGHT-1"), testutil.WithQuantity(10),
		testutil.WithWeightPerUnit(5), testutil.WithLotLocation("KV1_L001", 1)))
	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-WEIGHT-2"), testutil.WithQuantity(20),
		testutil.WithWeightPerUnit(2), testutil.WithLotLocation("KV1_L001", 1)))

	lotRepo := repository.NewLotRepository(suite.DB)

	used, err := lotRepo.LocationWeight(ctx, "KV1_L001", nil)
	require.NoError(t, err)
	assert.InDelta(t, 90.0, used, 0.001)

	usedByOthers, err := lotRepo.LocationWeight(ctx, "KV1_L001", &a.ID)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, usedByOthers, 0.001)

	empty, err := lotRepo.LocationWeight(ctx, "KV1_L099", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty)
}

func TestZoneLocationUsage_NumericSuffixOrdering(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1, 10000)

	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-USAGE-1"), testutil.WithQuantity(10),
		testutil.WithWeightPerUnit(1), testutil.WithLotLocation("KV1_L1000", 1)))
	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-USAGE-2"), testutil.WithQuantity(20),
		testutil.WithWeightPerUnit(1), testutil.WithLotLocation("KV1_L999", 1)))

	lotRepo := repository.NewLotRepository(suite.DB)
	usage, err := lotRepo.ZoneLocationUsage(ctx, 1)
	require.NoError(t, err)
	require.Len(t, usage, 2)

	// L999 sorts before L1000 numerically, not lexically
	assert.Equal(t, "KV1_L999", usage[0].Location)
	assert.InDelta(t, 20.0, usage[0].UsedKG, 0.001)
	assert.Equal(t, "KV1_L1000", usage[1].Location)
}

func TestListLowStock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1, 10000)

	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-LOW-1"), testutil.WithQuantity(3),
		testutil.WithLotLocation("KV1_L001", 1)))
	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-LOW-1"), testutil.WithQuantity(4),
		testutil.WithLotLocation("KV1_L002", 1)))
	createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-PLENTY-1"), testutil.WithQuantity(80),
		testutil.WithLotLocation("KV1_L003", 1)))

	lotRepo := repository.NewLotRepository(suite.DB)
	stocks, err := lotRepo.ListLowStock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stocks, 1)

	assert.Equal(t, "SP-LOW-1", stocks[0].ProductCode)
	assert.Equal(t, 7, stocks[0].TotalQuantity)
}
