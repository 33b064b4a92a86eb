package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/events"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/pkg/database"
	"github.com/warehousetch/warehouse-backend/pkg/errors"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
	"github.com/warehousetch/warehouse-backend/pkg/messaging"
)

// DeductionService withdraws export quantity from lots and keeps the audit trail
type DeductionService struct {
	db        *database.DB
	lotRepo   *repository.LotRepository
	logRepo   *repository.DeductionLogRepository
	publisher *events.WarehouseEventPublisher
	logger    *logger.Logger
}

// NewDeductionService creates a new deduction service
func NewDeductionService(
	db *database.DB,
	lotRepo *repository.LotRepository,
	logRepo *repository.DeductionLogRepository,
	publisher *events.WarehouseEventPublisher,
	log *logger.Logger,
) *DeductionService {
	return &DeductionService{
		db:        db,
		lotRepo:   lotRepo,
		logRepo:   logRepo,
		publisher: publisher,
		logger:    log,
	}
}

// WithdrawalStep is one lot's contribution to covering a deduction
type WithdrawalStep struct {
	LotID          string
	SourceLocation string
	Take           int
	NewQuantity    int
}

// BuildWithdrawalPlan walks lots in the given order taking from each until the
// quantity is covered. Returns the steps and any uncovered remainder. Pure
// function; lots must already be ordered (smallest first) by the caller.
func BuildWithdrawalPlan(lots []*repository.ProductLot, quantity int) ([]WithdrawalStep, int) {
	remaining := quantity
	var steps []WithdrawalStep

	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		if lot.Quantity <= 0 {
			continue
		}

		take := lot.Quantity
		if remaining < take {
			take = remaining
		}

		steps = append(steps, WithdrawalStep{
			LotID:          lot.ID,
			SourceLocation: sourceLocation(lot.ZoneID, lot.Location),
			Take:           take,
			NewQuantity:    lot.Quantity - take,
		})
		remaining -= take
	}

	return steps, remaining
}

// sourceLocation encodes where a deduction came from as "KV{zone}__{location}"
func sourceLocation(zoneID *int, location string) string {
	zone := "?"
	if zoneID != nil {
		zone = fmt.Sprintf("%d", *zoneID)
	}
	return fmt.Sprintf("KV%s__%s", zone, location)
}

// Deduct withdraws quantity of a product for an export. Lots are drained
// smallest first so small remnants disappear before large lots are broken into.
// The whole withdrawal commits as one unit or not at all.
func (s *DeductionService) Deduct(ctx context.Context, productCode string, quantity int, exportRef string) ([]*repository.DeductionLog, error) {
	details := make(map[string]string)
	if productCode == "" {
		details["product_code"] = "this field is required"
	}
	if quantity <= 0 {
		details["quantity"] = "must be greater than 0"
	}
	if exportRef == "" {
		details["export_ref"] = "this field is required"
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	var logs []*repository.DeductionLog

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		lots, err := s.lotRepo.LockLotsForDeduction(tx, productCode)
		if err != nil {
			return err
		}

		// Availability is re-checked under the row locks; the advisory check
		// the caller may have run earlier does not hold here.
		steps, shortfall := BuildWithdrawalPlan(lots, quantity)
		if shortfall > 0 {
			return errors.InsufficientStock(productCode, shortfall)
		}

		for _, step := range steps {
			if err := s.lotRepo.UpdateQuantityTx(tx, step.LotID, step.NewQuantity); err != nil {
				return err
			}

			entry := &repository.DeductionLog{
				ProductCode:    productCode,
				SourceLocation: step.SourceLocation,
				Quantity:       step.Take,
				ExportRef:      exportRef,
			}
			if err := s.logRepo.InsertTx(tx, entry); err != nil {
				return err
			}
			logs = append(logs, entry)
		}

		return s.lotRepo.PruneZeroTx(tx, productCode)
	})
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}

	s.publisher.PublishStockDeducted(ctx, messaging.StockDeductedEvent{
		ProductCode: productCode,
		Quantity:    quantity,
		ExportRef:   exportRef,
		LotsTouched: len(logs),
	})

	s.logger.Info().
		Str("product_code", productCode).
		Str("export_ref", exportRef).
		Int("quantity", quantity).
		Int("lots_touched", len(logs)).
		Msg("stock deducted")

	return logs, nil
}

// LogsByProduct lists deduction logs for a product
func (s *DeductionService) LogsByProduct(ctx context.Context, productCode string) ([]*repository.DeductionLog, error) {
	return s.logRepo.ListByProductCode(ctx, productCode)
}

// LogsByExport lists deduction logs for one export reference
func (s *DeductionService) LogsByExport(ctx context.Context, exportRef string) ([]*repository.DeductionLog, error) {
	return s.logRepo.ListByExportRef(ctx, exportRef)
}
