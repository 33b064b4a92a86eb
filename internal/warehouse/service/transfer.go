package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/events"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/pkg/actor"
	"github.com/warehousetch/warehouse-backend/pkg/database"
	"github.com/warehousetch/warehouse-backend/pkg/errors"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
	"github.com/warehousetch/warehouse-backend/pkg/messaging"
)

// TransferService moves lots between locations
type TransferService struct {
	db         *database.DB
	lotRepo    *repository.LotRepository
	logRepo    *repository.TransferLogRepository
	publisher  *events.WarehouseEventPublisher
	capacityKG float64
	logger     *logger.Logger
}

// NewTransferService creates a new transfer service
func NewTransferService(
	db *database.DB,
	lotRepo *repository.LotRepository,
	logRepo *repository.TransferLogRepository,
	publisher *events.WarehouseEventPublisher,
	capacityKG float64,
	log *logger.Logger,
) *TransferService {
	return &TransferService{
		db:         db,
		lotRepo:    lotRepo,
		logRepo:    logRepo,
		publisher:  publisher,
		capacityKG: capacityKG,
		logger:     log,
	}
}

// TransferRequest moves a batch of lots to one destination location
type TransferRequest struct {
	LotIDs     []string `json:"lot_ids" validate:"required,min=1"`
	ToLocation string   `json:"to_location" validate:"required"`
	ToZoneID   *int     `json:"to_zone_id,omitempty"`
}

// Transfer moves the given lots to the destination. Every lot is checked
// against the destination's remaining capacity, counting lots moved earlier in
// the same batch; one failed check aborts the whole batch.
func (s *TransferService) Transfer(ctx context.Context, req *TransferRequest) ([]*repository.TransferLog, error) {
	actorEmail := actor.Email(ctx)
	var logs []*repository.TransferLog
	var moved []*repository.ProductLot

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		// Capacity reads against the destination run under its lock, so a
		// concurrent intake or split into the same location waits its turn.
		if err := s.lotRepo.LockLocationTx(tx, req.ToLocation); err != nil {
			return err
		}

		// Lock and check everything before the first write.
		lots := make([]*repository.ProductLot, 0, len(req.LotIDs))
		planned := 0.0
		for _, lotID := range req.LotIDs {
			lot, err := s.lotRepo.GetByIDForUpdateTx(tx, lotID)
			if err != nil {
				return err
			}
			if lot.Location == req.ToLocation {
				return errors.BadRequest(fmt.Sprintf("lot %s is already at %s", lot.ID, req.ToLocation))
			}

			used, err := s.lotRepo.LocationWeightTx(tx, req.ToLocation, &lot.ID)
			if err != nil {
				return err
			}

			footprint := float64(lot.Quantity) * lot.WeightPerUnit
			if used+planned+footprint > s.capacityKG {
				return errors.CapacityExceeded(
					fmt.Sprintf("location %s cannot take lot %s (%0.1fkg)", req.ToLocation, lot.ID, footprint))
			}

			planned += footprint
			lots = append(lots, lot)
		}

		for _, lot := range lots {
			zoneID := lot.ZoneID
			if req.ToZoneID != nil {
				zoneID = req.ToZoneID
			}
			if err := s.lotRepo.UpdateLocationTx(tx, lot.ID, req.ToLocation, zoneID); err != nil {
				return err
			}

			entry := &repository.TransferLog{
				LotID:        &lot.ID,
				ProductCode:  lot.ProductCode,
				FromLocation: lot.Location,
				ToLocation:   req.ToLocation,
				ActorEmail:   actorEmail,
			}
			if err := s.logRepo.InsertTx(tx, entry); err != nil {
				return err
			}
			logs = append(logs, entry)
		}

		moved = lots
		return nil
	})
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}

	for _, lot := range moved {
		s.publisher.PublishLotTransferred(ctx, messaging.LotTransferredEvent{
			ProductCode:  lot.ProductCode,
			FromLocation: lot.Location,
			ToLocation:   req.ToLocation,
			Actor:        actorEmail,
		})
	}

	s.logger.Info().
		Int("lots", len(moved)).
		Str("to_location", req.ToLocation).
		Str("actor", actorEmail).
		Msg("lots transferred")

	return logs, nil
}

// LogsByActor lists transfers performed by one user
func (s *TransferService) LogsByActor(ctx context.Context, actorEmail string) ([]*repository.TransferLog, error) {
	return s.logRepo.ListByActor(ctx, actorEmail)
}

// RecentLogs lists the most recent transfers
func (s *TransferService) RecentLogs(ctx context.Context, limit int) ([]*repository.TransferLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.logRepo.List(ctx, limit)
}
