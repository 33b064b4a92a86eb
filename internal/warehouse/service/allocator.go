package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/events"
	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/pkg/database"
	"github.com/warehousetch/warehouse-backend/pkg/errors"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
	"github.com/warehousetch/warehouse-backend/pkg/messaging"
)

// AllocatorService places intake quantity into zone locations and splits
// existing lots across locations.
type AllocatorService struct {
	db         *database.DB
	lotRepo    *repository.LotRepository
	zoneRepo   *repository.ZoneRepository
	publisher  *events.WarehouseEventPublisher
	capacityKG float64
	logger     *logger.Logger
}

// NewAllocatorService creates a new allocator service
func NewAllocatorService(
	db *database.DB,
	lotRepo *repository.LotRepository,
	zoneRepo *repository.ZoneRepository,
	publisher *events.WarehouseEventPublisher,
	capacityKG float64,
	log *logger.Logger,
) *AllocatorService {
	return &AllocatorService{
		db:         db,
		lotRepo:    lotRepo,
		zoneRepo:   zoneRepo,
		publisher:  publisher,
		capacityKG: capacityKG,
		logger:     log,
	}
}

// IntakeRequest describes a goods receipt to be placed into a zone
type IntakeRequest struct {
	ProductCode     string   `json:"product_code" validate:"required"`
	OldProductCode  *string  `json:"old_product_code,omitempty"`
	ProductName     string   `json:"product_name" validate:"required"`
	ProductType     *string  `json:"product_type,omitempty"`
	Unit            *string  `json:"unit,omitempty"`
	UnitPrice       float64  `json:"unit_price" validate:"gte=0"`
	WeightPerUnit   float64  `json:"weight_per_unit" validate:"gt=0"`
	AreaPerUnit     *float64 `json:"area_per_unit,omitempty"`
	Quantity        int      `json:"quantity" validate:"gt=0"`
	ManufactureDate string   `json:"manufacture_date" validate:"required"`
	ExpiryDate      string   `json:"expiry_date" validate:"required"`
	ZoneID          int      `json:"zone_id" validate:"gt=0"`
	ReceiptCode     *string  `json:"receipt_code,omitempty"`
	SupplierName    *string  `json:"supplier_name,omitempty"`
}

// Placement is one location assignment produced by the planner
type Placement struct {
	Location string `json:"location"`
	Quantity int    `json:"quantity"`
}

// DistributeTarget is one destination when splitting a lot
type DistributeTarget struct {
	Location string `json:"location" validate:"required"`
	ZoneID   *int   `json:"zone_id,omitempty"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

const dateLayout = "2006-01-02"

// validateDates checks manufacture < today < expiry
func validateDates(manufacture, expiry string) (*time.Time, *time.Time, error) {
	details := make(map[string]string)

	mfg, err := time.ParseInLocation(dateLayout, manufacture, time.Local)
	if err != nil {
		details["manufacture_date"] = "must be a date in YYYY-MM-DD format"
	}
	exp, err := time.ParseInLocation(dateLayout, expiry, time.Local)
	if err != nil {
		details["expiry_date"] = "must be a date in YYYY-MM-DD format"
	}
	if len(details) > 0 {
		return nil, nil, errors.Validation(details)
	}

	// Dates and "today" share one zone so the straddle check cannot shift
	// around midnight.
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !mfg.Before(today) {
		details["manufacture_date"] = "must be before today"
	}
	if !exp.After(today) {
		details["expiry_date"] = "must be after today"
	}
	if len(details) > 0 {
		return nil, nil, errors.Validation(details)
	}

	return &mfg, &exp, nil
}

// PlanPlacements distributes quantity across a zone's locations. Partially used
// locations are topped up first (ascending numeric suffix), then unused
// positions are opened in order. Pure function; callers own persistence.
func PlanPlacements(zoneID int, capacityKG, weightPerUnit float64, quantity, maxPositions int, existing []*repository.LocationUsage) ([]Placement, error) {
	if weightPerUnit <= 0 {
		return nil, errors.Validation(map[string]string{"weight_per_unit": "must be greater than 0"})
	}
	if quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be greater than 0"})
	}

	usedByLocation := make(map[string]float64, len(existing))
	for _, u := range existing {
		usedByLocation[u.Location] = u.UsedKG
	}

	remaining := quantity
	var placements []Placement

	place := func(location string, used float64) {
		if remaining == 0 {
			return
		}
		free := capacityKG - used
		if free <= 0 {
			return
		}
		fits := int(math.Floor(free / weightPerUnit))
		if fits <= 0 {
			return
		}
		take := fits
		if remaining < take {
			take = remaining
		}
		placements = append(placements, Placement{Location: location, Quantity: take})
		remaining -= take
	}

	// Top up locations already holding stock.
	for seq := 1; seq <= maxPositions && remaining > 0; seq++ {
		location := locationName(zoneID, seq)
		if used, ok := usedByLocation[location]; ok {
			place(location, used)
		}
	}

	// Open empty positions.
	for seq := 1; seq <= maxPositions && remaining > 0; seq++ {
		location := locationName(zoneID, seq)
		if _, ok := usedByLocation[location]; !ok {
			place(location, 0)
		}
	}

	if remaining > 0 {
		return nil, errors.CapacityExceeded(
			fmt.Sprintf("zone cannot hold %d more units, %d left unplaced", quantity, remaining))
	}

	return placements, nil
}

// locationName builds the canonical location name for a zone position.
// The sequence is zero-padded to three digits: KV1_L001.
func locationName(zoneID, seq int) string {
	return fmt.Sprintf("KV%d_L%03d", zoneID, seq)
}

// Allocate places an intake into a zone and returns the created lots
func (s *AllocatorService) Allocate(ctx context.Context, req *IntakeRequest) ([]*repository.ProductLot, error) {
	mfg, exp, err := validateDates(req.ManufactureDate, req.ExpiryDate)
	if err != nil {
		return nil, err
	}

	var lots []*repository.ProductLot
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		// Planning and inserts run under the zone row lock so two intakes
		// into the same zone cannot both claim the same free space.
		zone, err := s.zoneRepo.GetByIDForUpdateTx(tx, req.ZoneID)
		if err != nil {
			return err
		}

		usage, err := s.lotRepo.ZoneLocationUsageTx(tx, zone.ID)
		if err != nil {
			return err
		}

		maxPositions := int(math.Floor(zone.CapacityKG / s.capacityKG))
		placements, err := PlanPlacements(zone.ID, s.capacityKG, req.WeightPerUnit, req.Quantity, maxPositions, usage)
		if err != nil {
			return err
		}

		lots = make([]*repository.ProductLot, 0, len(placements))
		for _, p := range placements {
			// Transfers and splits into this location hold the same lock,
			// so the re-read below sees their committed weight.
			if err := s.lotRepo.LockLocationTx(tx, p.Location); err != nil {
				return err
			}
			used, err := s.lotRepo.LocationWeightTx(tx, p.Location, nil)
			if err != nil {
				return err
			}
			if used+float64(p.Quantity)*req.WeightPerUnit > s.capacityKG {
				return errors.CapacityExceeded(
					fmt.Sprintf("location %s can no longer hold %d units", p.Location, p.Quantity))
			}

			lot := &repository.ProductLot{
				ProductCode:     req.ProductCode,
				OldProductCode:  req.OldProductCode,
				ProductName:     req.ProductName,
				ProductType:     req.ProductType,
				Unit:            req.Unit,
				UnitPrice:       req.UnitPrice,
				WeightPerUnit:   req.WeightPerUnit,
				AreaPerUnit:     req.AreaPerUnit,
				Quantity:        p.Quantity,
				ManufactureDate: mfg,
				ExpiryDate:      exp,
				Location:        p.Location,
				ZoneID:          &zone.ID,
				ReceiptCode:     req.ReceiptCode,
				SupplierName:    req.SupplierName,
			}
			if err := s.lotRepo.CreateTx(tx, lot); err != nil {
				return err
			}
			lots = append(lots, lot)
		}
		return nil
	})
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}

	locations := make([]string, len(lots))
	for i, lot := range lots {
		locations[i] = lot.Location
	}
	s.publisher.PublishLotAllocated(ctx, messaging.LotAllocatedEvent{
		ProductCode: req.ProductCode,
		ZoneID:      req.ZoneID,
		Quantity:    req.Quantity,
		Locations:   locations,
	})

	s.logger.Info().
		Str("product_code", req.ProductCode).
		Int("quantity", req.Quantity).
		Int("lots", len(lots)).
		Msg("intake allocated")

	return lots, nil
}

// Distribute splits one lot into several locations. The original row is removed
// and one new lot per target is created in a single transaction; the quantities
// must add up to the original exactly.
func (s *AllocatorService) Distribute(ctx context.Context, lotID string, targets []DistributeTarget) ([]*repository.ProductLot, error) {
	if len(targets) == 0 {
		return nil, errors.Validation(map[string]string{"targets": "this field is required"})
	}

	var created []*repository.ProductLot
	var original *repository.ProductLot

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		lot, err := s.lotRepo.GetByIDForUpdateTx(tx, lotID)
		if err != nil {
			return err
		}
		original = lot

		sum := 0
		for _, t := range targets {
			if t.Quantity <= 0 {
				return errors.Validation(map[string]string{"quantity": "must be greater than 0"})
			}
			sum += t.Quantity
		}
		if sum != lot.Quantity {
			return errors.Validation(map[string]string{
				"targets": fmt.Sprintf("target quantities sum to %d, lot holds %d", sum, lot.Quantity),
			})
		}

		// Lock every destination before the first capacity read. Sorted
		// order keeps concurrent splits from deadlocking.
		seen := make(map[string]bool, len(targets))
		locations := make([]string, 0, len(targets))
		for _, t := range targets {
			if !seen[t.Location] {
				seen[t.Location] = true
				locations = append(locations, t.Location)
			}
		}
		sort.Strings(locations)
		for _, location := range locations {
			if err := s.lotRepo.LockLocationTx(tx, location); err != nil {
				return err
			}
		}

		// Capacity check per destination; the original lot's footprint is
		// excluded since it is being removed, and earlier targets in the batch
		// count against later ones at the same location.
		planned := make(map[string]float64)
		for _, t := range targets {
			used, err := s.lotRepo.LocationWeightTx(tx, t.Location, &lot.ID)
			if err != nil {
				return err
			}
			add := float64(t.Quantity) * lot.WeightPerUnit
			if used+planned[t.Location]+add > s.capacityKG {
				return errors.CapacityExceeded(
					fmt.Sprintf("location %s cannot hold %d more units", t.Location, t.Quantity))
			}
			planned[t.Location] += add
		}

		if err := s.lotRepo.DeleteTx(tx, lot.ID); err != nil {
			return err
		}

		for _, t := range targets {
			zoneID := lot.ZoneID
			if t.ZoneID != nil {
				zoneID = t.ZoneID
			}
			split := &repository.ProductLot{
				ProductCode:     lot.ProductCode,
				OldProductCode:  lot.OldProductCode,
				ProductName:     lot.ProductName,
				ProductType:     lot.ProductType,
				Unit:            lot.Unit,
				UnitPrice:       lot.UnitPrice,
				WeightPerUnit:   lot.WeightPerUnit,
				AreaPerUnit:     lot.AreaPerUnit,
				Quantity:        t.Quantity,
				ManufactureDate: lot.ManufactureDate,
				ExpiryDate:      lot.ExpiryDate,
				Location:        t.Location,
				ZoneID:          zoneID,
				ReceiptCode:     lot.ReceiptCode,
				SupplierName:    lot.SupplierName,
			}
			if err := s.lotRepo.CreateTx(tx, split); err != nil {
				return err
			}
			created = append(created, split)
		}

		return nil
	})
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}

	locations := make([]string, len(targets))
	for i, t := range targets {
		locations[i] = t.Location
	}
	s.publisher.PublishLotDistributed(ctx, messaging.LotDistributedEvent{
		ProductCode:   original.ProductCode,
		OriginalLotID: original.ID,
		Locations:     locations,
		TotalQuantity: original.Quantity,
	})

	return created, nil
}
