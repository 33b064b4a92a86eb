package service

import (
	"context"
	"math"

	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
)

// DashboardService aggregates warehouse-wide statistics for the overview screen
type DashboardService struct {
	lotRepo       *repository.LotRepository
	zoneRepo      *repository.ZoneRepository
	stocktakeRepo *repository.StocktakeRepository
	capacityKG    float64
	logger        *logger.Logger
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(
	lotRepo *repository.LotRepository,
	zoneRepo *repository.ZoneRepository,
	stocktakeRepo *repository.StocktakeRepository,
	capacityKG float64,
	log *logger.Logger,
) *DashboardService {
	return &DashboardService{
		lotRepo:       lotRepo,
		zoneRepo:      zoneRepo,
		stocktakeRepo: stocktakeRepo,
		capacityKG:    capacityKG,
		logger:        log,
	}
}

// DashboardStats is the warehouse overview
type DashboardStats struct {
	Zones              []*repository.ZoneUtilization `json:"zones"`
	TotalFreePositions int                           `json:"total_free_positions"`
	TotalStockValue    float64                       `json:"total_stock_value"`
	UncountedLines     int                           `json:"uncounted_lines"`
}

// Stats builds the dashboard snapshot
func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	zones, err := s.zoneRepo.Utilization(ctx)
	if err != nil {
		return nil, err
	}

	freePositions := 0
	for _, z := range zones {
		free := z.CapacityKG - z.UsedKG
		if free > 0 {
			freePositions += int(math.Floor(free / s.capacityKG))
		}
	}

	value, err := s.lotRepo.TotalStockValue(ctx)
	if err != nil {
		return nil, err
	}

	uncounted, err := s.stocktakeRepo.CountUncountedLines(ctx)
	if err != nil {
		return nil, err
	}

	return &DashboardStats{
		Zones:              zones,
		TotalFreePositions: freePositions,
		TotalStockValue:    value,
		UncountedLines:     uncounted,
	}, nil
}
