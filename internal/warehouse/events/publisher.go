package events

import (
	"context"

	"github.com/warehousetch/warehouse-backend/pkg/logger"
	"github.com/warehousetch/warehouse-backend/pkg/messaging"
)

// WarehouseEventPublisher publishes warehouse stock events.
// A nil publisher is a no-op, so the service runs without a broker in tests.
type WarehouseEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewWarehouseEventPublisher creates a new warehouse event publisher
func NewWarehouseEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*WarehouseEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeWarehouseEvents, "warehouse-service", log)
	if err != nil {
		return nil, err
	}

	return &WarehouseEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishLotAllocated publishes a lot allocated event
func (p *WarehouseEventPublisher) PublishLotAllocated(ctx context.Context, data messaging.LotAllocatedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventLotAllocated, data); err != nil {
		p.logger.Error().Err(err).Str("product_code", data.ProductCode).Msg("failed to publish lot allocated event")
	}
}

// PublishLotDistributed publishes a lot distributed event
func (p *WarehouseEventPublisher) PublishLotDistributed(ctx context.Context, data messaging.LotDistributedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventLotDistributed, data); err != nil {
		p.logger.Error().Err(err).Str("product_code", data.ProductCode).Msg("failed to publish lot distributed event")
	}
}

// PublishStockDeducted publishes a stock deducted event
func (p *WarehouseEventPublisher) PublishStockDeducted(ctx context.Context, data messaging.StockDeductedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventStockDeducted, data); err != nil {
		p.logger.Error().Err(err).Str("export_ref", data.ExportRef).Msg("failed to publish stock deducted event")
	}
}

// PublishLotTransferred publishes a lot transferred event
func (p *WarehouseEventPublisher) PublishLotTransferred(ctx context.Context, data messaging.LotTransferredEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventLotTransferred, data); err != nil {
		p.logger.Error().Err(err).Str("product_code", data.ProductCode).Msg("failed to publish lot transferred event")
	}
}

// PublishStocktakeFinalized publishes a stocktake finalized event
func (p *WarehouseEventPublisher) PublishStocktakeFinalized(ctx context.Context, data messaging.StocktakeRoundEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventStocktakeFinalized, data); err != nil {
		p.logger.Error().Err(err).Str("round_code", data.Code).Msg("failed to publish stocktake finalized event")
	}
}

// PublishStocktakeCancelled publishes a stocktake cancelled event
func (p *WarehouseEventPublisher) PublishStocktakeCancelled(ctx context.Context, data messaging.StocktakeRoundEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventStocktakeCancelled, data); err != nil {
		p.logger.Error().Err(err).Str("round_code", data.Code).Msg("failed to publish stocktake cancelled event")
	}
}
