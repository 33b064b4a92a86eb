package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/events"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/pkg/actor"
	"github.com/warehousetch/warehouse-backend/pkg/database"
	"github.com/warehousetch/warehouse-backend/pkg/errors"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
	"github.com/warehousetch/warehouse-backend/pkg/messaging"
)

// StocktakeService runs counting rounds: start, assign lots, record counts,
// and reconcile against system quantities. Counting never mutates lot stock.
type StocktakeService struct {
	db            *database.DB
	stocktakeRepo *repository.StocktakeRepository
	lotRepo       *repository.LotRepository
	publisher     *events.WarehouseEventPublisher
	logger        *logger.Logger
}

// NewStocktakeService creates a new stocktake service
func NewStocktakeService(
	db *database.DB,
	stocktakeRepo *repository.StocktakeRepository,
	lotRepo *repository.LotRepository,
	publisher *events.WarehouseEventPublisher,
	log *logger.Logger,
) *StocktakeService {
	return &StocktakeService{
		db:            db,
		stocktakeRepo: stocktakeRepo,
		lotRepo:       lotRepo,
		publisher:     publisher,
		logger:        log,
	}
}

// roundCode builds the day-scoped sequential round code, e.g. KK003_29082026
func roundCode(seq int, day string) string {
	return fmt.Sprintf("KK%03d_%s", seq, day)
}

// StartRound opens a new counting round
func (s *StocktakeService) StartRound(ctx context.Context, name string) (*repository.StocktakeRound, error) {
	if name == "" {
		return nil, errors.Validation(map[string]string{"name": "this field is required"})
	}

	round := &repository.StocktakeRound{
		Name:      name,
		CreatedBy: actor.Email(ctx),
	}

	// The day in the code and the sequence lookup come from one clock reading.
	day := time.Now().Format("02012006")
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		count, err := s.stocktakeRepo.CountRoundsForDayTx(tx, day)
		if err != nil {
			return err
		}
		round.Code = roundCode(count+1, day)
		return s.stocktakeRepo.CreateRoundTx(tx, round)
	})
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}

	s.logger.Info().
		Str("round_code", round.Code).
		Str("created_by", round.CreatedBy).
		Msg("stocktake round started")

	return round, nil
}

// AssignLots links lots into an in-progress round, by lot ID and/or by product
// code. Already-assigned lots are skipped; lots sitting in another active round
// reject the whole call. Returns the number of lines created.
func (s *StocktakeService) AssignLots(ctx context.Context, roundID string, lotIDs, productCodes []string) (int64, error) {
	if len(lotIDs) == 0 && len(productCodes) == 0 {
		return 0, errors.Validation(map[string]string{"lot_ids": "lot_ids or product_codes is required"})
	}

	var inserted int64
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		round, err := s.stocktakeRepo.GetRoundForUpdateTx(tx, roundID)
		if err != nil {
			return err
		}
		if round.Status != repository.RoundStatusInProgress {
			return errors.Conflict("round is not in progress")
		}

		resolved, err := s.stocktakeRepo.LotIDsByProductCodesTx(tx, productCodes)
		if err != nil {
			return err
		}

		seen := make(map[string]bool)
		all := make([]string, 0, len(lotIDs)+len(resolved))
		for _, id := range append(lotIDs, resolved...) {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
			}
		}

		conflicting, err := s.stocktakeRepo.LotIDsInOtherActiveRoundsTx(tx, all, roundID)
		if err != nil {
			return err
		}
		if len(conflicting) > 0 {
			return errors.Conflict(fmt.Sprintf("%d lots are already in another active round", len(conflicting)))
		}

		inserted, err = s.stocktakeRepo.AssignLinesTx(tx, roundID, all)
		return err
	})
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return 0, mapped
		}
		return 0, err
	}

	return inserted, nil
}

// SubmitCount records a physical count on a line. Repeated submissions
// overwrite each other; the newest count and counter win.
func (s *StocktakeService) SubmitCount(ctx context.Context, lineID string, actualQuantity int, note *string) error {
	if actualQuantity < 0 {
		return errors.Validation(map[string]string{"actual_quantity": "must be at least 0"})
	}

	line, err := s.stocktakeRepo.GetLineWithRound(ctx, lineID)
	if err != nil {
		return err
	}
	if line.RoundStatus != repository.RoundStatusInProgress {
		return errors.Conflict("round is not in progress")
	}

	return s.stocktakeRepo.UpdateLineCount(ctx, lineID, actualQuantity, note, actor.Email(ctx))
}

// ResetLines clears count results for one product in a round, keeping the lines
func (s *StocktakeService) ResetLines(ctx context.Context, roundID, productCode string) (int64, error) {
	if productCode == "" {
		return 0, errors.Validation(map[string]string{"product_code": "this field is required"})
	}

	round, err := s.stocktakeRepo.GetRound(ctx, roundID)
	if err != nil {
		return 0, err
	}
	if round.Status != repository.RoundStatusInProgress {
		return 0, errors.Conflict("round is not in progress")
	}

	return s.stocktakeRepo.ResetLinesByProduct(ctx, roundID, productCode)
}

// RemoveLines drops products from a round entirely
func (s *StocktakeService) RemoveLines(ctx context.Context, roundID string, productCodes []string) (int64, error) {
	if len(productCodes) == 0 {
		return 0, errors.Validation(map[string]string{"product_codes": "this field is required"})
	}

	round, err := s.stocktakeRepo.GetRound(ctx, roundID)
	if err != nil {
		return 0, err
	}
	if round.Status != repository.RoundStatusInProgress {
		return 0, errors.Conflict("round is not in progress")
	}

	return s.stocktakeRepo.DeleteLinesByProductCodes(ctx, roundID, productCodes)
}

// FinalizeRound closes a round. Finished is terminal; no further counts land.
func (s *StocktakeService) FinalizeRound(ctx context.Context, roundID string) (*repository.StocktakeRound, error) {
	var round *repository.StocktakeRound

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		r, err := s.stocktakeRepo.GetRoundForUpdateTx(tx, roundID)
		if err != nil {
			return err
		}
		if r.Status != repository.RoundStatusInProgress {
			return errors.Conflict("round is not in progress")
		}

		if err := s.stocktakeRepo.UpdateRoundStatusTx(tx, roundID, repository.RoundStatusFinished); err != nil {
			return err
		}
		r.Status = repository.RoundStatusFinished
		round = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishStocktakeFinalized(ctx, messaging.StocktakeRoundEvent{
		RoundID: round.ID,
		Code:    round.Code,
		Status:  round.Status,
	})

	s.logger.Info().Str("round_code", round.Code).Msg("stocktake round finalized")
	return round, nil
}

// CancelRound deletes an in-progress round and all its lines. The lots it
// covered are no longer under count since their line items are gone.
func (s *StocktakeService) CancelRound(ctx context.Context, roundID string) error {
	var round *repository.StocktakeRound

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		r, err := s.stocktakeRepo.GetRoundForUpdateTx(tx, roundID)
		if err != nil {
			return err
		}
		if r.Status != repository.RoundStatusInProgress {
			return errors.Conflict("only in-progress rounds can be cancelled")
		}

		round = r
		return s.stocktakeRepo.DeleteRoundTx(tx, roundID)
	})
	if err != nil {
		return err
	}

	s.publisher.PublishStocktakeCancelled(ctx, messaging.StocktakeRoundEvent{
		RoundID: round.ID,
		Code:    round.Code,
		Status:  "cancelled",
	})

	s.logger.Info().Str("round_code", round.Code).Msg("stocktake round cancelled")
	return nil
}

// ReportLine is one reconciled line; Discrepancy is nil until counted
type ReportLine struct {
	*repository.StocktakeLineDetail
	Counted     bool `json:"counted"`
	Discrepancy *int `json:"discrepancy,omitempty"`
}

// RoundReport is the reconciliation view of a round. Computed on demand, never
// persisted.
type RoundReport struct {
	Round            *repository.StocktakeRound `json:"round"`
	Lines            []*ReportLine              `json:"lines"`
	TotalLines       int                        `json:"total_lines"`
	CountedLines     int                        `json:"counted_lines"`
	DiscrepancyLines int                        `json:"discrepancy_lines"`
	TotalSystem      int                        `json:"total_system"`
	TotalActual      int                        `json:"total_actual"`
	TotalDiscrepancy int                        `json:"total_discrepancy"`
}

// BuildRoundReport reconciles lines against system quantities. Pure function.
func BuildRoundReport(round *repository.StocktakeRound, lines []*repository.StocktakeLineDetail) *RoundReport {
	report := &RoundReport{
		Round:      round,
		Lines:      make([]*ReportLine, 0, len(lines)),
		TotalLines: len(lines),
	}

	for _, line := range lines {
		rl := &ReportLine{StocktakeLineDetail: line}
		report.TotalSystem += line.SystemQuantity

		if line.ActualQuantity != nil {
			rl.Counted = true
			d := *line.ActualQuantity - line.SystemQuantity
			rl.Discrepancy = &d

			report.CountedLines++
			report.TotalActual += *line.ActualQuantity
			report.TotalDiscrepancy += d
			if d != 0 {
				report.DiscrepancyLines++
			}
		}

		report.Lines = append(report.Lines, rl)
	}

	return report
}

// Report builds the reconciliation report for a round
func (s *StocktakeService) Report(ctx context.Context, roundID string) (*RoundReport, error) {
	round, err := s.stocktakeRepo.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}

	lines, err := s.stocktakeRepo.ListLines(ctx, roundID)
	if err != nil {
		return nil, err
	}

	return BuildRoundReport(round, lines), nil
}

// ActiveRound returns the newest in-progress round
func (s *StocktakeService) ActiveRound(ctx context.Context) (*repository.StocktakeRound, error) {
	return s.stocktakeRepo.GetActiveRound(ctx)
}

// ListRounds lists rounds, optionally filtered by status
func (s *StocktakeService) ListRounds(ctx context.Context, status string) ([]*repository.StocktakeRound, error) {
	return s.stocktakeRepo.ListRounds(ctx, status)
}

// Lines lists a round's lines with their lots
func (s *StocktakeService) Lines(ctx context.Context, roundID string) ([]*repository.StocktakeLineDetail, error) {
	if _, err := s.stocktakeRepo.GetRound(ctx, roundID); err != nil {
		return nil, err
	}
	return s.stocktakeRepo.ListLines(ctx, roundID)
}
