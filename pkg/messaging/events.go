package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Lot events
	EventLotAllocated   = "warehouse.lot.allocated"
	EventLotDistributed = "warehouse.lot.distributed"
	EventLotTransferred = "warehouse.lot.transferred"

	// Stock events
	EventStockDeducted = "warehouse.stock.deducted"

	// Stocktake events
	EventStocktakeFinalized = "warehouse.stocktake.finalized"
	EventStocktakeCancelled = "warehouse.stocktake.cancelled"
)

// Exchange names
const (
	ExchangeWarehouseEvents = "warehouse.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// LotAllocatedEvent is published when intake quantity is placed into locations
type LotAllocatedEvent struct {
	ProductCode string   `json:"product_code"`
	ZoneID      int      `json:"zone_id"`
	Quantity    int      `json:"quantity"`
	Locations   []string `json:"locations"`
}

// LotDistributedEvent is published when a lot is split across locations
type LotDistributedEvent struct {
	ProductCode   string   `json:"product_code"`
	OriginalLotID string   `json:"original_lot_id"`
	Locations     []string `json:"locations"`
	TotalQuantity int      `json:"total_quantity"`
}

// StockDeductedEvent is published when an export deduction commits
type StockDeductedEvent struct {
	ProductCode string `json:"product_code"`
	Quantity    int    `json:"quantity"`
	ExportRef   string `json:"export_ref"`
	LotsTouched int    `json:"lots_touched"`
}

// LotTransferredEvent is published when lots move between locations
type LotTransferredEvent struct {
	ProductCode  string `json:"product_code"`
	FromLocation string `json:"from_location"`
	ToLocation   string `json:"to_location"`
	Actor        string `json:"actor"`
}

// StocktakeRoundEvent is published when a round is finalized or cancelled
type StocktakeRoundEvent struct {
	RoundID string `json:"round_id"`
	Code    string `json:"code"`
	Status  string `json:"status"`
}
