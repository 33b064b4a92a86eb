package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/service"
	"github.com/warehousetch/warehouse-backend/pkg/database"
	"github.com/warehousetch/warehouse-backend/pkg/errors"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
	"github.com/warehousetch/warehouse-backend/pkg/testutil"
)

func newStocktakeService(mockDB *testutil.MockDB) *service.StocktakeService {
	log := logger.New("test", "test")
	db := database.Wrap(mockDB.DB, log)
	stocktakeRepo := repository.NewStocktakeRepository(db)
	lotRepo := repository.NewLotRepository(db)
	return service.NewStocktakeService(db, stocktakeRepo, lotRepo, nil, log)
}

func detailLine(productCode, location string, systemQty int, actual *int) *repository.StocktakeLineDetail {
	return &repository.StocktakeLineDetail{
		StocktakeLine: repository.StocktakeLine{
			ID:             "line-" + productCode + "-" + location,
			ActualQuantity: actual,
		},
		ProductCode:    productCode,
		Location:       location,
		SystemQuantity: systemQty,
	}
}

func TestBuildRoundReport_MixedLines(t *testing.T) {
	round := &repository.StocktakeRound{ID: "r1", Code: "KK001_29082026"}
	lines := []*repository.StocktakeLineDetail{
		detailLine("SP-0001", "KV1_L001", 50, testutil.PtrInt(48)),
		detailLine("SP-0001", "KV1_L002", 30, testutil.PtrInt(30)),
		detailLine("SP-0002", "KV2_L001", 20, nil),
	}

	report := service.BuildRoundReport(round, lines)

	assert.Equal(t, 3, report.TotalLines)
	assert.Equal(t, 2, report.CountedLines)
	assert.Equal(t, 1, report.DiscrepancyLines)
	assert.Equal(t, 100, report.TotalSystem)
	assert.Equal(t, 78, report.TotalActual)
	assert.Equal(t, -2, report.TotalDiscrepancy)

	require.Len(t, report.Lines, 3)
	assert.True(t, report.Lines[0].Counted)
	require.NotNil(t, report.Lines[0].Discrepancy)
	assert.Equal(t, -2, *report.Lines[0].Discrepancy)

	assert.True(t, report.Lines[1].Counted)
	assert.Equal(t, 0, *report.Lines[1].Discrepancy)

	// Uncounted lines have no discrepancy and do not move the totals
	assert.False(t, report.Lines[2].Counted)
	assert.Nil(t, report.Lines[2].Discrepancy)
}

func TestBuildRoundReport_Empty(t *testing.T) {
	round := &repository.StocktakeRound{ID: "r1"}

	report := service.BuildRoundReport(round, nil)

	assert.Equal(t, 0, report.TotalLines)
	assert.Equal(t, 0, report.CountedLines)
	assert.Empty(t, report.Lines)
}

func TestBuildRoundReport_OvercountPositiveDiscrepancy(t *testing.T) {
	round := &repository.StocktakeRound{ID: "r1"}
	lines := []*repository.StocktakeLineDetail{
		detailLine("SP-0003", "KV1_L001", 10, testutil.PtrInt(13)),
	}

	report := service.BuildRoundReport(round, lines)

	require.Len(t, report.Lines, 1)
	assert.Equal(t, 3, *report.Lines[0].Discrepancy)
	assert.Equal(t, 1, report.DiscrepancyLines)
	assert.Equal(t, 3, report.TotalDiscrepancy)
}

func TestStartRound_GeneratesDayScopedCode(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	svc := newStocktakeService(mockDB)

	mockDB.ExpectBegin()
	day := time.Now().Format("02012006")
	mockDB.ExpectQuery("SELECT COUNT(*) FROM stocktake_rounds WHERE split_part(code, '_', 2) = $1").
		WithArgs(day).
		WillReturnRows(testutil.MockRows("count").AddRow(2))
	mockDB.ExpectQuery("INSERT INTO stocktake_rounds").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectCommit()

	round, err := svc.StartRound(context.Background(), "August full count")
	require.NoError(t, err)

	// Two rounds exist today, so this one is the third
	assert.Equal(t, fmt.Sprintf("KK003_%s", day), round.Code)
	assert.Equal(t, "August full count", round.Name)
	assert.Equal(t, repository.RoundStatusInProgress, round.Status)
	assert.Equal(t, "system", round.CreatedBy)

	mockDB.ExpectationsWereMet(t)
}

func TestStartRound_RequiresName(t *testing.T) {
	svc := newStocktakeService(testutil.NewMockDB(t))

	_, err := svc.StartRound(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestAssignLots_RequiresLotsOrProducts(t *testing.T) {
	svc := newStocktakeService(testutil.NewMockDB(t))

	_, err := svc.AssignLots(context.Background(), "r1", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestFinalizeRound_AlreadyFinished(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	svc := newStocktakeService(mockDB)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM stocktake_rounds WHERE id = $1 FOR UPDATE").
		WithArgs("r1").
		WillReturnRows(testutil.MockRows("id", "code", "name", "created_by", "status").
			AddRow("r1", "KK001_29082026", "done", "alice@warehousetch.io", repository.RoundStatusFinished))
	mockDB.ExpectRollback()

	_, err := svc.FinalizeRound(context.Background(), "r1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	mockDB.ExpectationsWereMet(t)
}

func TestCancelRound_DeletesRoundAndLines(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	svc := newStocktakeService(mockDB)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM stocktake_rounds WHERE id = $1 FOR UPDATE").
		WithArgs("r1").
		WillReturnRows(testutil.MockRows("id", "code", "name", "created_by", "status").
			AddRow("r1", "KK002_29082026", "misfire", "alice@warehousetch.io", repository.RoundStatusInProgress))
	mockDB.ExpectExec("DELETE FROM stocktake_lines WHERE round_id = $1").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mockDB.ExpectExec("DELETE FROM stocktake_rounds WHERE id = $1").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	err := svc.CancelRound(context.Background(), "r1")
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestCancelRound_FinishedRoundRejected(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	svc := newStocktakeService(mockDB)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM stocktake_rounds WHERE id = $1 FOR UPDATE").
		WithArgs("r1").
		WillReturnRows(testutil.MockRows("id", "code", "name", "created_by", "status").
			AddRow("r1", "KK001_29082026", "done", "alice@warehousetch.io", repository.RoundStatusFinished))
	mockDB.ExpectRollback()

	err := svc.CancelRound(context.Background(), "r1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	mockDB.ExpectationsWereMet(t)
}
