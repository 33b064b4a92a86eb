package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/warehousetch/warehouse-backend/pkg/database"
	"github.com/warehousetch/warehouse-backend/pkg/errors"
)

// ProductLot represents a physical lot of one product sitting at one location.
// A product's total stock is the sum of its lots.
type ProductLot struct {
	ID              string     `db:"id" json:"id"`
	ProductCode     string     `db:"product_code" json:"product_code"`
	OldProductCode  *string    `db:"old_product_code" json:"old_product_code,omitempty"`
	ProductName     string     `db:"product_name" json:"product_name"`
	ProductType     *string    `db:"product_type" json:"product_type,omitempty"`
	Unit            *string    `db:"unit" json:"unit,omitempty"`
	UnitPrice       float64    `db:"unit_price" json:"unit_price"`
	WeightPerUnit   float64    `db:"weight_per_unit" json:"weight_per_unit"`
	AreaPerUnit     *float64   `db:"area_per_unit" json:"area_per_unit,omitempty"`
	Quantity        int        `db:"quantity" json:"quantity"`
	ManufactureDate *time.Time `db:"manufacture_date" json:"manufacture_date,omitempty"`
	ExpiryDate      *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	Location        string     `db:"location" json:"location"`
	ZoneID          *int       `db:"zone_id" json:"zone_id,omitempty"`
	ReceiptCode     *string    `db:"receipt_code" json:"receipt_code,omitempty"`
	SupplierName    *string    `db:"supplier_name" json:"supplier_name,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`

	// Derived columns, populated only by queries that select them.
	ZoneName   *string `db:"zone_name" json:"zone_name,omitempty"`
	UnderCount bool    `db:"under_count" json:"under_count"`
}

// LocationUsage is the aggregated weight currently occupying a location
type LocationUsage struct {
	Location string  `db:"location" json:"location"`
	UsedKG   float64 `db:"used_kg" json:"used_kg"`
}

// underCountExpr derives whether a lot is part of an in-progress stocktake round.
// Membership in a line item of an active round is the single source of truth.
const underCountExpr = `EXISTS (
		SELECT 1 FROM stocktake_lines sl
		JOIN stocktake_rounds sr ON sr.id = sl.round_id
		WHERE sl.lot_id = pl.id AND sr.status = 'in_progress'
	) AS under_count`

// LotRepository handles product lot persistence
type LotRepository struct {
	db *database.DB
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *database.DB) *LotRepository {
	return &LotRepository{db: db}
}

// Create creates a new lot
func (r *LotRepository) Create(ctx context.Context, lot *ProductLot) error {
	if lot.ID == "" {
		lot.ID = uuid.New().String()
	}

	query := `
		INSERT INTO product_lots (
			id, product_code, old_product_code, product_name, product_type, unit,
			unit_price, weight_per_unit, area_per_unit, quantity, manufacture_date,
			expiry_date, location, zone_id, receipt_code, supplier_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRowxContext(ctx, query,
		lot.ID, lot.ProductCode, lot.OldProductCode, lot.ProductName, lot.ProductType,
		lot.Unit, lot.UnitPrice, lot.WeightPerUnit, lot.AreaPerUnit, lot.Quantity,
		lot.ManufactureDate, lot.ExpiryDate, lot.Location, lot.ZoneID,
		lot.ReceiptCode, lot.SupplierName,
	).Scan(&lot.CreatedAt, &lot.UpdatedAt)
}

// CreateTx creates a new lot inside an existing transaction
func (r *LotRepository) CreateTx(tx *sqlx.Tx, lot *ProductLot) error {
	if lot.ID == "" {
		lot.ID = uuid.New().String()
	}

	query := `
		INSERT INTO product_lots (
			id, product_code, old_product_code, product_name, product_type, unit,
			unit_price, weight_per_unit, area_per_unit, quantity, manufacture_date,
			expiry_date, location, zone_id, receipt_code, supplier_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at
	`

	return tx.QueryRowx(query,
		lot.ID, lot.ProductCode, lot.OldProductCode, lot.ProductName, lot.ProductType,
		lot.Unit, lot.UnitPrice, lot.WeightPerUnit, lot.AreaPerUnit, lot.Quantity,
		lot.ManufactureDate, lot.ExpiryDate, lot.Location, lot.ZoneID,
		lot.ReceiptCode, lot.SupplierName,
	).Scan(&lot.CreatedAt, &lot.UpdatedAt)
}

// GetByID gets a lot by ID
func (r *LotRepository) GetByID(ctx context.Context, id string) (*ProductLot, error) {
	var lot ProductLot
	query := `SELECT * FROM product_lots WHERE id = $1`
	if err := r.db.GetContext(ctx, &lot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// GetByIDForUpdateTx gets a lot by ID with a row lock
func (r *LotRepository) GetByIDForUpdateTx(tx *sqlx.Tx, id string) (*ProductLot, error) {
	var lot ProductLot
	query := `SELECT * FROM product_lots WHERE id = $1 FOR UPDATE`
	if err := tx.Get(&lot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// ListByProductCode lists lots of a product with zone names and stocktake membership
func (r *LotRepository) ListByProductCode(ctx context.Context, productCode string) ([]*ProductLot, error) {
	var lots []*ProductLot
	query := `
		SELECT pl.*, z.name AS zone_name, ` + underCountExpr + `
		FROM product_lots pl
		LEFT JOIN zones z ON z.id = pl.zone_id
		WHERE pl.product_code = $1
		ORDER BY pl.location ASC
	`
	if err := r.db.SelectContext(ctx, &lots, query, productCode); err != nil {
		return nil, err
	}
	return lots, nil
}

// ListByLocation lists non-empty lots at a location (pallet view)
func (r *LotRepository) ListByLocation(ctx context.Context, location string) ([]*ProductLot, error) {
	var lots []*ProductLot
	query := `
		SELECT * FROM product_lots
		WHERE location = $1 AND quantity > 0
		ORDER BY product_code ASC
	`
	if err := r.db.SelectContext(ctx, &lots, query, location); err != nil {
		return nil, err
	}
	return lots, nil
}

// OtherLocations lists locations other than the given one still holding the product
func (r *LotRepository) OtherLocations(ctx context.Context, productCode, excludeLocation string) ([]string, error) {
	var locations []string
	query := `
		SELECT DISTINCT location FROM product_lots
		WHERE product_code = $1 AND location != $2 AND quantity > 0
		ORDER BY location ASC
	`
	if err := r.db.SelectContext(ctx, &locations, query, productCode, excludeLocation); err != nil {
		return nil, err
	}
	return locations, nil
}

// ListAll lists the full inventory with zone names
func (r *LotRepository) ListAll(ctx context.Context) ([]*ProductLot, error) {
	var lots []*ProductLot
	query := `
		SELECT pl.*, z.name AS zone_name, ` + underCountExpr + `
		FROM product_lots pl
		LEFT JOIN zones z ON z.id = pl.zone_id
		ORDER BY pl.product_code ASC, pl.location ASC
	`
	if err := r.db.SelectContext(ctx, &lots, query); err != nil {
		return nil, err
	}
	return lots, nil
}

// ListExpiring lists non-empty lots expiring within the given number of days
func (r *LotRepository) ListExpiring(ctx context.Context, withinDays int) ([]*ProductLot, error) {
	var lots []*ProductLot
	query := `
		SELECT * FROM product_lots
		WHERE quantity > 0 AND expiry_date IS NOT NULL
		AND expiry_date <= CURRENT_DATE + INTERVAL '1 day' * $1
		ORDER BY expiry_date ASC
	`
	if err := r.db.SelectContext(ctx, &lots, query, withinDays); err != nil {
		return nil, err
	}
	return lots, nil
}

// ListLowStock lists products whose total quantity is at or below the threshold
func (r *LotRepository) ListLowStock(ctx context.Context, threshold int) ([]*ProductStock, error) {
	var stocks []*ProductStock
	query := `
		SELECT product_code, MAX(product_name) AS product_name, SUM(quantity) AS total_quantity
		FROM product_lots
		GROUP BY product_code
		HAVING SUM(quantity) <= $1
		ORDER BY total_quantity ASC
	`
	if err := r.db.SelectContext(ctx, &stocks, query, threshold); err != nil {
		return nil, err
	}
	return stocks, nil
}

// ProductStock is a product-level stock aggregate
type ProductStock struct {
	ProductCode   string `db:"product_code" json:"product_code"`
	ProductName   string `db:"product_name" json:"product_name"`
	TotalQuantity int    `db:"total_quantity" json:"total_quantity"`
}

// SumByCode returns the total quantity across all lots of a product
func (r *LotRepository) SumByCode(ctx context.Context, productCode string) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(quantity) FROM product_lots WHERE product_code = $1`
	if err := r.db.GetContext(ctx, &total, query, productCode); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// SumValidByCode returns the total quantity across non-expired lots of a product.
// Lots without an expiry date always count.
func (r *LotRepository) SumValidByCode(ctx context.Context, productCode string) (int, error) {
	var total sql.NullInt64
	query := `
		SELECT SUM(quantity) FROM product_lots
		WHERE product_code = $1
		AND (expiry_date IS NULL OR expiry_date >= CURRENT_DATE)
	`
	if err := r.db.GetContext(ctx, &total, query, productCode); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// SumByCodeTx returns the total quantity across all lots of a product inside a transaction
func (r *LotRepository) SumByCodeTx(tx *sqlx.Tx, productCode string) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(quantity) FROM product_lots WHERE product_code = $1`
	if err := tx.Get(&total, query, productCode); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// LockLotsForDeduction locks all non-empty lots of a product in deduction order:
// smallest lots first, then zone, then the numeric suffix of the location name.
func (r *LotRepository) LockLotsForDeduction(tx *sqlx.Tx, productCode string) ([]*ProductLot, error) {
	var lots []*ProductLot
	query := `
		SELECT * FROM product_lots
		WHERE product_code = $1 AND quantity > 0
		ORDER BY quantity ASC, zone_id ASC,
			COALESCE(NULLIF(SUBSTRING(location FROM '([0-9]+)$'), ''), '0')::int ASC
		FOR UPDATE
	`
	if err := tx.Select(&lots, query, productCode); err != nil {
		return nil, err
	}
	return lots, nil
}

// UpdateQuantityTx sets a lot's quantity inside a transaction
func (r *LotRepository) UpdateQuantityTx(tx *sqlx.Tx, id string, quantity int) error {
	query := `UPDATE product_lots SET quantity = $2, updated_at = NOW() WHERE id = $1`
	result, err := tx.Exec(query, id, quantity)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("lot")
	}

	return nil
}

// UpdateLocationTx moves a lot to another location inside a transaction
func (r *LotRepository) UpdateLocationTx(tx *sqlx.Tx, id, location string, zoneID *int) error {
	query := `UPDATE product_lots SET location = $2, zone_id = $3, updated_at = NOW() WHERE id = $1`
	result, err := tx.Exec(query, id, location, zoneID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("lot")
	}

	return nil
}

// DeleteTx deletes a lot inside a transaction
func (r *LotRepository) DeleteTx(tx *sqlx.Tx, id string) error {
	query := `DELETE FROM product_lots WHERE id = $1`
	result, err := tx.Exec(query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("lot")
	}

	return nil
}

// DeleteByProductCode removes every lot of a product. Returns the rows removed.
func (r *LotRepository) DeleteByProductCode(ctx context.Context, productCode string) (int64, error) {
	query := `DELETE FROM product_lots WHERE product_code = $1`
	result, err := r.db.ExecContext(ctx, query, productCode)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// PruneZeroTx removes emptied lots of a product inside a transaction
func (r *LotRepository) PruneZeroTx(tx *sqlx.Tx, productCode string) error {
	query := `DELETE FROM product_lots WHERE product_code = $1 AND quantity = 0`
	_, err := tx.Exec(query, productCode)
	return err
}

// LocationWeight returns the weight occupying a location, optionally excluding one lot
func (r *LotRepository) LocationWeight(ctx context.Context, location string, excludeLotID *string) (float64, error) {
	var used sql.NullFloat64

	if excludeLotID != nil {
		query := `
			SELECT SUM(quantity * weight_per_unit) FROM product_lots
			WHERE location = $1 AND id != $2
		`
		if err := r.db.GetContext(ctx, &used, query, location, *excludeLotID); err != nil {
			return 0, err
		}
	} else {
		query := `SELECT SUM(quantity * weight_per_unit) FROM product_lots WHERE location = $1`
		if err := r.db.GetContext(ctx, &used, query, location); err != nil {
			return 0, err
		}
	}

	if !used.Valid {
		return 0, nil
	}
	return used.Float64, nil
}

// LocationWeightTx is LocationWeight inside a transaction
func (r *LotRepository) LocationWeightTx(tx *sqlx.Tx, location string, excludeLotID *string) (float64, error) {
	var used sql.NullFloat64

	if excludeLotID != nil {
		query := `
			SELECT SUM(quantity * weight_per_unit) FROM product_lots
			WHERE location = $1 AND id != $2
		`
		if err := tx.Get(&used, query, location, *excludeLotID); err != nil {
			return 0, err
		}
	} else {
		query := `SELECT SUM(quantity * weight_per_unit) FROM product_lots WHERE location = $1`
		if err := tx.Get(&used, query, location); err != nil {
			return 0, err
		}
	}

	if !used.Valid {
		return 0, nil
	}
	return used.Float64, nil
}

// ZoneLocationUsage aggregates occupied weight per location in a zone,
// ordered by the numeric suffix of the location name.
func (r *LotRepository) ZoneLocationUsage(ctx context.Context, zoneID int) ([]*LocationUsage, error) {
	var usage []*LocationUsage
	if err := r.db.SelectContext(ctx, &usage, zoneLocationUsageQuery, zoneID); err != nil {
		return nil, err
	}
	return usage, nil
}

// ZoneLocationUsageTx is ZoneLocationUsage inside a transaction
func (r *LotRepository) ZoneLocationUsageTx(tx *sqlx.Tx, zoneID int) ([]*LocationUsage, error) {
	var usage []*LocationUsage
	if err := tx.Select(&usage, zoneLocationUsageQuery, zoneID); err != nil {
		return nil, err
	}
	return usage, nil
}

const zoneLocationUsageQuery = `
		SELECT location, SUM(quantity * weight_per_unit) AS used_kg
		FROM product_lots
		WHERE zone_id = $1
		GROUP BY location
		ORDER BY COALESCE(NULLIF(SUBSTRING(location FROM '([0-9]+)$'), ''), '0')::int ASC
	`

// LockLocationTx takes a transaction-scoped advisory lock on a location name.
// Every writer that checks a location's remaining capacity takes this lock
// first, so the check and the write commit as one unit even when the location
// holds no rows yet.
func (r *LotRepository) LockLocationTx(tx *sqlx.Tx, location string) error {
	_, err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext($1))`, location)
	return err
}

// TotalStockValue returns the value of everything on hand (quantity x unit price)
func (r *LotRepository) TotalStockValue(ctx context.Context) (float64, error) {
	var total sql.NullFloat64
	query := `SELECT SUM(quantity * unit_price) FROM product_lots`
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Float64, nil
}
