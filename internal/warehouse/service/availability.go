package service

import (
	"context"

	"github.com/warehousetch/warehouse-backend/internal/warehouse/repository"
	"github.com/warehousetch/warehouse-backend/pkg/errors"
	"github.com/warehousetch/warehouse-backend/pkg/logger"
)

// Availability statuses
const (
	AvailabilitySufficient   = "sufficient"
	AvailabilityInsufficient = "insufficient"
	AvailabilityExpiredOnly  = "expired_only"
)

// AvailabilityResult is an advisory snapshot; it takes no locks and a later
// deduction may still fail if stock moves in between.
type AvailabilityResult struct {
	ProductCode      string `json:"product_code"`
	RequiredQuantity int    `json:"required_quantity"`
	TotalQuantity    int    `json:"total_quantity"`
	ValidQuantity    int    `json:"valid_quantity"`
	Shortfall        int    `json:"shortfall"`
	Status           string `json:"status"`
}

// AvailabilityService pre-checks whether an export can be covered
type AvailabilityService struct {
	lotRepo *repository.LotRepository
	logger  *logger.Logger
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(lotRepo *repository.LotRepository, log *logger.Logger) *AvailabilityService {
	return &AvailabilityService{
		lotRepo: lotRepo,
		logger:  log,
	}
}

// Check reports whether requiredQuantity of a product is on hand and still valid.
// Lots without an expiry date always count as valid.
func (s *AvailabilityService) Check(ctx context.Context, productCode string, requiredQuantity int) (*AvailabilityResult, error) {
	if productCode == "" {
		return nil, errors.Validation(map[string]string{"product_code": "this field is required"})
	}
	if requiredQuantity <= 0 {
		return nil, errors.Validation(map[string]string{"required_quantity": "must be greater than 0"})
	}

	total, err := s.lotRepo.SumByCode(ctx, productCode)
	if err != nil {
		return nil, err
	}

	valid, err := s.lotRepo.SumValidByCode(ctx, productCode)
	if err != nil {
		return nil, err
	}

	result := &AvailabilityResult{
		ProductCode:      productCode,
		RequiredQuantity: requiredQuantity,
		TotalQuantity:    total,
		ValidQuantity:    valid,
	}

	switch {
	case total > 0 && valid == 0:
		result.Status = AvailabilityExpiredOnly
		result.Shortfall = requiredQuantity
	case valid < requiredQuantity:
		result.Status = AvailabilityInsufficient
		result.Shortfall = requiredQuantity - valid
	default:
		result.Status = AvailabilitySufficient
	}

	return result, nil
}
