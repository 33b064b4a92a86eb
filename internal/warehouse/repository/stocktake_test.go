package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/pkg/errors"
	"github.com/warehousetch/warehouse-backend/pkg/testutil"
)

// createTestRound inserts a round built from a fixture.
func createTestRound(t *testing.T, ctx context.Context, fixture testutil.RoundFixture) *repository.StocktakeRound {
	t.Helper()
	repo := repository.NewStocktakeRepository(suite.DB)

	round := &repository.StocktakeRound{
		ID:        fixture.ID,
		Code:      fixture.Code,
		Name:      fixture.Name,
		CreatedBy: fixture.CreatedBy,
		Status:    fixture.Status,
	}

	tx, err := suite.DB.Beginx()
	require.NoError(t, err)
	require.NoError(t, repo.CreateRoundTx(tx, round))
	require.NoError(t, tx.Commit())
	return round
}

// assignLots links lots into a round and returns the inserted line count.
func assignLots(t *testing.T, roundID string, lotIDs []string) int64 {
	t.Helper()
	repo := repository.NewStocktakeRepository(suite.DB)

	tx, err := suite.DB.Beginx()
	require.NoError(t, err)
	inserted, err := repo.AssignLinesTx(tx, roundID, lotIDs)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return inserted
}

func TestCreateRound_DuplicateCodeRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	fixture := suite.Fixtures.Round()
	createTestRound(t, ctx, fixture)

	repo := repository.NewStocktakeRepository(suite.DB)
	tx, err := suite.DB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	dup := &repository.StocktakeRound{
		Code:      fixture.Code,
		Name:      "duplicate",
		CreatedBy: "counter@test.warehousetch.local",
	}
	err = repo.CreateRoundTx(tx, dup)
	assert.Error(t, err, "round codes are unique per day")
}

func TestAssignLines_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1, 10000)

	a := createTestLot(t, ctx, suite.Fixtures.Lot(testutil.WithLotLocation("KV1_L001", 1)))
	b := createTestLot(t, ctx, suite.Fixtures.Lot(testutil.WithLotLocation("KV1_L002", 1)))
	round := createTestRound(t, ctx, suite.Fixtures.Round())

	inserted := assignLots(t, round.ID, []string{a.ID, b.ID})
	assert.Equal(t, int64(2), inserted)

	// Re-assigning the same lots plus one new lot only inserts the new line
	c := createTestLot(t, ctx, suite.Fixtures.Lot(testutil.WithLotLocation("KV1_L003", 1)))
	inserted = assignLots(t, round.ID, []string{a.ID, b.ID, c.ID})
	assert.Equal(t, int64(1), inserted)
}

func TestLotIDsInOtherActiveRounds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1, 10000)

	lot := createTestLot(t, ctx, suite.Fixtures.Lot(testutil.WithLotLocation("KV1_L001", 1)))
	first := createTestRound(t, ctx, suite.Fixtures.Round())
	assignLots(t, first.ID, []string{lot.ID})

	second := createTestRound(t, ctx, suite.Fixtures.Round())

	repo := repository.NewStocktakeRepository(suite.DB)
	tx, err := suite.DB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	conflicting, err := repo.LotIDsInOtherActiveRoundsTx(tx, []string{lot.ID}, second.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{lot.ID}, conflicting)

	// A finished round does not block assignment
	require.NoError(t, repo.UpdateRoundStatusTx(tx, first.ID, repository.RoundStatusFinished))
	conflicting, err = repo.LotIDsInOtherActiveRoundsTx(tx, []string{lot.ID}, second.ID)
	require.NoError(t, err)
	assert.Empty(t, conflicting)
}

func TestUnderCount_FollowsActiveRoundMembership(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1, 10000)

	lot := createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-COUNT-1"),
		testutil.WithLotLocation("KV1_L001", 1)))

	lotRepo := repository.NewLotRepository(suite.DB)

	lots, err := lotRepo.ListByProductCode(ctx, "SP-COUNT-1")
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.False(t, lots[0].UnderCount)

	round := createTestRound(t, ctx, suite.Fixtures.Round())
	assignLots(t, round.ID, []string{lot.ID})

	lots, err = lotRepo.ListByProductCode(ctx, "SP-COUNT-1")
	require.NoError(t, err)
	assert.True(t, lots[0].UnderCount)

	// Cancelling the round deletes its lines; the lot is free again
	repo := repository.NewStocktakeRepository(suite.DB)
	tx, err := suite.DB.Beginx()
	require.NoError(t, err)
	require.NoError(t, repo.DeleteRoundTx(tx, round.ID))
	require.NoError(t, tx.Commit())

	lots, err = lotRepo.ListByProductCode(ctx, "SP-COUNT-1")
	require.NoError(t, err)
	assert.False(t, lots[0].UnderCount)
}

func TestUpdateLineCount_LastWriteWins(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1, 10000)

	lot := createTestLot(t, ctx, suite.Fixtures.Lot(testutil.WithLotLocation("KV1_L001", 1)))
	round := createTestRound(t, ctx, suite.Fixtures.Round())
	assignLots(t, round.ID, []string{lot.ID})

	repo := repository.NewStocktakeRepository(suite.DB)
	lines, err := repo.ListLines(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	lineID := lines[0].ID

	err = repo.UpdateLineCount(ctx, lineID, 48, testutil.PtrString("first pass"), "alice@warehousetch.io")
	require.NoError(t, err)
	err = repo.UpdateLineCount(ctx, lineID, 50, nil, "bob@warehousetch.io")
	require.NoError(t, err)

	line, err := repo.GetLineWithRound(ctx, lineID)
	require.NoError(t, err)
	require.NotNil(t, line.ActualQuantity)
	assert.Equal(t, 50, *line.ActualQuantity)
	require.NotNil(t, line.CountedBy)
	assert.Equal(t, "bob@warehousetch.io", *line.CountedBy)
	assert.Nil(t, line.Note)
}

func TestResetLinesByProduct_KeepsMembership(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	createTestZone(t, ctx, 1, 10000)

	lot := createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-RESET-1"),
		testutil.WithLotLocation("KV1_L001", 1)))
	other := createTestLot(t, ctx, suite.Fixtures.Lot(
		testutil.WithProductCode("SP-KEEP-1"),
		testutil.WithLotLocation("KV1_L002", 1)))
	round := createTestRound(t, ctx, suite.Fixtures.Round())
	assignLots(t, round.ID, []string{lot.ID, other.ID})

	repo := repository.NewStocktakeRepository(suite.DB)
	lines, err := repo.ListLines(ctx, round.ID)
	require.NoError(t, err)
	for _, line := range lines {
		require.NoError(t, repo.UpdateLineCount(ctx, line.ID, 42, nil, "alice@warehousetch.io"))
	}

	reset, err := repo.ResetLinesByProduct(ctx, round.ID, "SP-RESET-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	lines, err = repo.ListLines(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2, "reset keeps the lines")
	for _, line := range lines {
		if line.ProductCode == "SP-RESET-1" {
			assert.Nil(t, line.ActualQuantity)
			assert.Nil(t, line.CountedBy)
		} else {
			require.NotNil(t, line.ActualQuantity)
			assert.Equal(t, 42, *line.ActualQuantity)
		}
	}
}

func TestGetActiveRound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewStocktakeRepository(suite.DB)

	_, err := repo.GetActiveRound(ctx)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	createTestRound(t, ctx, suite.Fixtures.Round(
		testutil.WithRoundStatus(repository.RoundStatusFinished)))
	active := createTestRound(t, ctx, suite.Fixtures.Round())

	got, err := repo.GetActiveRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)
}
