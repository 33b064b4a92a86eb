package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ZoneFixture represents test zone data
type ZoneFixture struct {
	ID         int
	Code       string
	Name       string
	CapacityKG float64
	CreatedAt  time.Time
}

// LotFixture represents test product lot data
type LotFixture struct {
	ID              string
	ProductCode     string
	ProductName     string
	Unit            string
	UnitPrice       float64
	WeightPerUnit   float64
	Quantity        int
	ManufactureDate time.Time
	ExpiryDate      time.Time
	Location        string
	ZoneID          int
	ReceiptCode     string
	SupplierName    string
	CreatedAt       time.Time
}

// RoundFixture represents test stocktake round data
type RoundFixture struct {
	ID        string
	Code      string
	Name      string
	CreatedBy string
	Status    string
	CreatedAt time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Zone creates a zone fixture with defaults
func (f *FixtureFactory) Zone(opts ...func(*ZoneFixture)) ZoneFixture {
	seq := f.nextSeq()

	zone := ZoneFixture{
		ID:         seq,
		Code:       fmt.Sprintf("KV%d", seq),
		Name:       fmt.Sprintf("Zone %d", seq),
		CapacityKG: 10000,
		CreatedAt:  time.Now(),
	}

	for _, opt := range opts {
		opt(&zone)
	}

	return zone
}

// WithZoneCapacity sets the zone capacity in kilograms
func WithZoneCapacity(kg float64) func(*ZoneFixture) {
	return func(z *ZoneFixture) {
		z.CapacityKG = kg
	}
}

// Lot creates a product lot fixture with defaults
func (f *FixtureFactory) Lot(opts ...func(*LotFixture)) LotFixture {
	seq := f.nextSeq()

	lot := LotFixture{
		ID:              uuid.New().String(),
		ProductCode:     fmt.Sprintf("SP-%04d", seq),
		ProductName:     fmt.Sprintf("Test Product %d", seq),
		Unit:            "piece",
		UnitPrice:       100,
		WeightPerUnit:   1,
		Quantity:        50,
		ManufactureDate: time.Now().AddDate(0, -1, 0),
		ExpiryDate:      time.Now().AddDate(1, 0, 0),
		Location:        fmt.Sprintf("KV1_L%03d", seq),
		ZoneID:          1,
		ReceiptCode:     fmt.Sprintf("PN-%04d", seq),
		SupplierName:    "Test Supplier",
		CreatedAt:       time.Now(),
	}

	for _, opt := range opts {
		opt(&lot)
	}

	return lot
}

// WithProductCode sets the lot's product code
func WithProductCode(code string) func(*LotFixture) {
	return func(l *LotFixture) {
		l.ProductCode = code
	}
}

// WithQuantity sets the lot's quantity
func WithQuantity(qty int) func(*LotFixture) {
	return func(l *LotFixture) {
		l.Quantity = qty
	}
}

// WithWeightPerUnit sets the lot's unit weight in kilograms
func WithWeightPerUnit(kg float64) func(*LotFixture) {
	return func(l *LotFixture) {
		l.WeightPerUnit = kg
	}
}

// WithLotLocation sets the lot's location and zone
func WithLotLocation(location string, zoneID int) func(*LotFixture) {
	return func(l *LotFixture) {
		l.Location = location
		l.ZoneID = zoneID
	}
}

// WithExpiryDate sets the lot's expiry date
func WithExpiryDate(t time.Time) func(*LotFixture) {
	return func(l *LotFixture) {
		l.ExpiryDate = t
	}
}

// Expired marks the lot as already expired
func Expired() func(*LotFixture) {
	return func(l *LotFixture) {
		l.ExpiryDate = time.Now().AddDate(0, 0, -7)
	}
}

// Round creates a stocktake round fixture with defaults
func (f *FixtureFactory) Round(opts ...func(*RoundFixture)) RoundFixture {
	seq := f.nextSeq()

	round := RoundFixture{
		ID:        uuid.New().String(),
		Code:      fmt.Sprintf("KK%03d_%s", seq, time.Now().Format("02012006")),
		Name:      fmt.Sprintf("Round %d", seq),
		CreatedBy: "counter@test.warehousetch.local",
		Status:    "in_progress",
		CreatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&round)
	}

	return round
}

// WithRoundStatus sets the round status
func WithRoundStatus(status string) func(*RoundFixture) {
	return func(r *RoundFixture) {
		r.Status = status
	}
}
