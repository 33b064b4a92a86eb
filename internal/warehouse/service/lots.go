package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/pkg/database"
	"github.com/warehousetch/warehouse-backend/pkg/errors"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
)

// LotService serves lot queries and in-place lot maintenance
type LotService struct {
	db         *database.DB
	lotRepo    *repository.LotRepository
	capacityKG float64
	logger     *logger.Logger
}

// NewLotService creates a new lot service
func NewLotService(db *database.DB, lotRepo *repository.LotRepository, capacityKG float64, log *logger.Logger) *LotService {
	return &LotService{
		db:         db,
		lotRepo:    lotRepo,
		capacityKG: capacityKG,
		logger:     log,
	}
}

// Get gets a lot by ID
func (s *LotService) Get(ctx context.Context, id string) (*repository.ProductLot, error) {
	return s.lotRepo.GetByID(ctx, id)
}

// ListByProductCode lists a product's lots with zone names
func (s *LotService) ListByProductCode(ctx context.Context, productCode string) ([]*repository.ProductLot, error) {
	return s.lotRepo.ListByProductCode(ctx, productCode)
}

// PalletView is everything at one location plus where else each product sits
type PalletView struct {
	Location string        `json:"location"`
	Lots     []*PalletSlot `json:"lots"`
}

// PalletSlot is one lot at the location with the product's other locations
type PalletSlot struct {
	*repository.ProductLot
	OtherLocations []string `json:"other_locations"`
}

// LotsAtLocation builds the pallet view for a location
func (s *LotService) LotsAtLocation(ctx context.Context, location string) (*PalletView, error) {
	lots, err := s.lotRepo.ListByLocation(ctx, location)
	if err != nil {
		return nil, err
	}

	view := &PalletView{Location: location, Lots: make([]*PalletSlot, 0, len(lots))}
	for _, lot := range lots {
		others, err := s.lotRepo.OtherLocations(ctx, lot.ProductCode, location)
		if err != nil {
			return nil, err
		}
		view.Lots = append(view.Lots, &PalletSlot{ProductLot: lot, OtherLocations: others})
	}

	return view, nil
}

// ListAll lists the full inventory
func (s *LotService) ListAll(ctx context.Context) ([]*repository.ProductLot, error) {
	return s.lotRepo.ListAll(ctx)
}

// ListExpiring lists lots expiring within the given number of days
func (s *LotService) ListExpiring(ctx context.Context, withinDays int) ([]*repository.ProductLot, error) {
	if withinDays <= 0 {
		withinDays = 30
	}
	return s.lotRepo.ListExpiring(ctx, withinDays)
}

// ListLowStock lists products at or below the quantity threshold
func (s *LotService) ListLowStock(ctx context.Context, threshold int) ([]*repository.ProductStock, error) {
	if threshold <= 0 {
		threshold = 10
	}
	return s.lotRepo.ListLowStock(ctx, threshold)
}

// DeleteByProductCode removes every lot of a product
func (s *LotService) DeleteByProductCode(ctx context.Context, productCode string) (int64, error) {
	removed, err := s.lotRepo.DeleteByProductCode(ctx, productCode)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, errors.NotFound("product")
	}

	s.logger.Info().
		Str("product_code", productCode).
		Int64("lots_removed", removed).
		Msg("product lots deleted")

	return removed, nil
}

// UpdateQuantity resizes a lot in place. Growing the lot is checked against the
// location's capacity with the lot's own current footprint excluded.
func (s *LotService) UpdateQuantity(ctx context.Context, lotID string, quantity int) (*repository.ProductLot, error) {
	if quantity < 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be at least 0"})
	}

	var lot *repository.ProductLot
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		l, err := s.lotRepo.GetByIDForUpdateTx(tx, lotID)
		if err != nil {
			return err
		}

		if quantity > l.Quantity {
			if err := s.lotRepo.LockLocationTx(tx, l.Location); err != nil {
				return err
			}
			usedByOthers, err := s.lotRepo.LocationWeightTx(tx, l.Location, &l.ID)
			if err != nil {
				return err
			}
			newWeight := float64(quantity) * l.WeightPerUnit
			if usedByOthers+newWeight > s.capacityKG {
				return errors.CapacityExceeded(
					fmt.Sprintf("total weight at %s would exceed %0.0fkg", l.Location, s.capacityKG))
			}
		}

		if err := s.lotRepo.UpdateQuantityTx(tx, l.ID, quantity); err != nil {
			return err
		}
		l.Quantity = quantity
		lot = l
		return nil
	})
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}

	return lot, nil
}
