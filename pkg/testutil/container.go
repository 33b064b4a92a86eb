// Package testutil provides testing utilities for the warehouse backend.
// It includes a testcontainers PostgreSQL harness, sqlmock helpers,
// fixture factories, and common HTTP test helpers.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "warehouse_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    // Run tests
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "warehouse_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// CreateWarehouseSchema creates the warehouse tables used by the service
func (c *PostgresContainer) CreateWarehouseSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS zones (
			id SERIAL PRIMARY KEY,
			code VARCHAR(20) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			capacity_kg NUMERIC(12,2) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS product_lots (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			product_code VARCHAR(100) NOT NULL,
			old_product_code VARCHAR(100),
			product_name VARCHAR(255) NOT NULL,
			product_type VARCHAR(100),
			unit VARCHAR(50),
			unit_price NUMERIC(14,2) NOT NULL DEFAULT 0,
			weight_per_unit NUMERIC(10,3) NOT NULL DEFAULT 0,
			area_per_unit NUMERIC(10,4),
			quantity INT NOT NULL CHECK (quantity >= 0),
			manufacture_date DATE,
			expiry_date DATE,
			location VARCHAR(50) NOT NULL,
			zone_id INT REFERENCES zones(id),
			receipt_code VARCHAR(100),
			supplier_name VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_product_lots_product_code ON product_lots(product_code);
		CREATE INDEX IF NOT EXISTS idx_product_lots_location ON product_lots(location);

		CREATE TABLE IF NOT EXISTS deduction_logs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			product_code VARCHAR(100) NOT NULL,
			source_location VARCHAR(100) NOT NULL,
			quantity INT NOT NULL,
			export_ref VARCHAR(100) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_deduction_logs_product_code ON deduction_logs(product_code);
		CREATE INDEX IF NOT EXISTS idx_deduction_logs_export_ref ON deduction_logs(export_ref);

		CREATE TABLE IF NOT EXISTS location_transfer_logs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			lot_id UUID,
			product_code VARCHAR(100) NOT NULL,
			from_location VARCHAR(50) NOT NULL,
			to_location VARCHAR(50) NOT NULL,
			actor_email VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS stocktake_rounds (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			code VARCHAR(50) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			created_by VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'in_progress',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS stocktake_lines (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			round_id UUID NOT NULL REFERENCES stocktake_rounds(id) ON DELETE CASCADE,
			lot_id UUID NOT NULL REFERENCES product_lots(id) ON DELETE CASCADE,
			actual_quantity INT,
			note TEXT,
			counted_by VARCHAR(255),
			counted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (round_id, lot_id)
		);
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create warehouse schema: %w", err)
	}

	return nil
}

// TruncateWarehouseTables clears all warehouse tables between tests
func (c *PostgresContainer) TruncateWarehouseTables(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		TRUNCATE stocktake_lines, stocktake_rounds, location_transfer_logs,
			deduction_logs, product_lots, zones RESTART IDENTITY CASCADE
	`)
	if err != nil {
		return fmt.Errorf("failed to truncate warehouse tables: %w", err)
	}
	return nil
}
