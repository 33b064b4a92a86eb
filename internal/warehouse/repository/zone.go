package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/warehousetch/warehouse-backend/pkg/database"
	"github.com/warehousetch/warehouse-backend/pkg/errors"
)

// Zone represents a warehouse zone holding numbered locations
type Zone struct {
	ID         int       `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	Name       string    `db:"name" json:"name"`
	CapacityKG float64   `db:"capacity_kg" json:"capacity_kg"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ZoneUtilization is a zone with its current occupied weight
type ZoneUtilization struct {
	ID         int     `db:"id" json:"id"`
	Code       string  `db:"code" json:"code"`
	Name       string  `db:"name" json:"name"`
	CapacityKG float64 `db:"capacity_kg" json:"capacity_kg"`
	UsedKG     float64 `db:"used_kg" json:"used_kg"`
}

// ZoneRepository handles zone persistence
type ZoneRepository struct {
	db *database.DB
}

// NewZoneRepository creates a new zone repository
func NewZoneRepository(db *database.DB) *ZoneRepository {
	return &ZoneRepository{db: db}
}

// List lists all zones
func (r *ZoneRepository) List(ctx context.Context) ([]*Zone, error) {
	var zones []*Zone
	query := `SELECT * FROM zones ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &zones, query); err != nil {
		return nil, err
	}
	return zones, nil
}

// GetByID gets a zone by ID
func (r *ZoneRepository) GetByID(ctx context.Context, id int) (*Zone, error) {
	var zone Zone
	query := `SELECT * FROM zones WHERE id = $1`
	if err := r.db.GetContext(ctx, &zone, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("zone")
		}
		return nil, err
	}
	return &zone, nil
}

// GetByIDForUpdateTx gets a zone by ID with a row lock. Holding the zone row
// serializes concurrent intakes into the same zone.
func (r *ZoneRepository) GetByIDForUpdateTx(tx *sqlx.Tx, id int) (*Zone, error) {
	var zone Zone
	query := `SELECT * FROM zones WHERE id = $1 FOR UPDATE`
	if err := tx.Get(&zone, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("zone")
		}
		return nil, err
	}
	return &zone, nil
}

// Create creates a new zone
func (r *ZoneRepository) Create(ctx context.Context, zone *Zone) error {
	query := `
		INSERT INTO zones (code, name, capacity_kg)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	return r.db.QueryRowxContext(ctx, query,
		zone.Code, zone.Name, zone.CapacityKG,
	).Scan(&zone.ID, &zone.CreatedAt)
}

// Utilization aggregates occupied weight per zone
func (r *ZoneRepository) Utilization(ctx context.Context) ([]*ZoneUtilization, error) {
	var utils []*ZoneUtilization
	query := `
		SELECT z.id, z.code, z.name, z.capacity_kg,
			COALESCE(SUM(pl.quantity * pl.weight_per_unit), 0) AS used_kg
		FROM zones z
		LEFT JOIN product_lots pl ON pl.zone_id = z.id
		GROUP BY z.id, z.code, z.name, z.capacity_kg
		ORDER BY z.id ASC
	`
	if err := r.db.SelectContext(ctx, &utils, query); err != nil {
		return nil, err
	}
	return utils, nil
}
