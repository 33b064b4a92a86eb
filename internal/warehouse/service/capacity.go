package service

import (
	"context"
	"math"

	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
)

// CapacityService answers weight capacity questions for single locations.
// Every location holds the same configured maximum weight.
type CapacityService struct {
	lotRepo    *repository.LotRepository
	capacityKG float64
	logger     *logger.Logger
}

// NewCapacityService creates a new capacity service
func NewCapacityService(lotRepo *repository.LotRepository, capacityKG float64, log *logger.Logger) *CapacityService {
	return &CapacityService{
		lotRepo:    lotRepo,
		capacityKG: capacityKG,
		logger:     log,
	}
}

// LocationCapacityKG returns the configured per-location capacity
func (s *CapacityService) LocationCapacityKG() float64 {
	return s.capacityKG
}

// AvailableWeight returns the free weight at a location. When excludeLotID is
// set, that lot's own footprint does not count against the location (used when
// resizing a lot in place). Never negative.
func (s *CapacityService) AvailableWeight(ctx context.Context, location string, excludeLotID *string) (float64, error) {
	used, err := s.lotRepo.LocationWeight(ctx, location, excludeLotID)
	if err != nil {
		return 0, err
	}

	free := s.capacityKG - used
	if free < 0 {
		free = 0
	}
	return free, nil
}

// Headroom describes how much more of a lot's product fits at its location
type Headroom struct {
	Location        string  `json:"location"`
	LotID           string  `json:"lot_id"`
	CurrentQuantity int     `json:"current_quantity"`
	WeightPerUnit   float64 `json:"weight_per_unit"`
	AvailableKG     float64 `json:"available_kg"`
	MaxAddable      int     `json:"max_addable"`
	MaxQuantity     int     `json:"max_quantity"`
}

// MaxAddableQuantity computes how many more units of a lot fit at its location,
// given everything currently stored there including the lot itself.
func (s *CapacityService) MaxAddableQuantity(ctx context.Context, location, lotID string) (*Headroom, error) {
	lot, err := s.lotRepo.GetByID(ctx, lotID)
	if err != nil {
		return nil, err
	}

	used, err := s.lotRepo.LocationWeight(ctx, location, nil)
	if err != nil {
		return nil, err
	}

	free := s.capacityKG - used
	if free < 0 {
		free = 0
	}

	maxAddable := 0
	if lot.WeightPerUnit > 0 {
		maxAddable = int(math.Floor(free / lot.WeightPerUnit))
	}

	return &Headroom{
		Location:        location,
		LotID:           lotID,
		CurrentQuantity: lot.Quantity,
		WeightPerUnit:   lot.WeightPerUnit,
		AvailableKG:     free,
		MaxAddable:      maxAddable,
		MaxQuantity:     lot.Quantity + maxAddable,
	}, nil
}
