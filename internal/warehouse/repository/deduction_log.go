package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/warehousetch/warehouse-backend/pkg/database"
)

// DeductionLog records one lot's contribution to an export deduction.
// The source location is encoded "KV{zone}__{location}".
type DeductionLog struct {
	ID             string    `db:"id" json:"id"`
	ProductCode    string    `db:"product_code" json:"product_code"`
	SourceLocation string    `db:"source_location" json:"source_location"`
	Quantity       int       `db:"quantity" json:"quantity"`
	ExportRef      string    `db:"export_ref" json:"export_ref"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// DeductionLogRepository handles deduction log persistence. Logs are append-only.
type DeductionLogRepository struct {
	db *database.DB
}

// NewDeductionLogRepository creates a new deduction log repository
func NewDeductionLogRepository(db *database.DB) *DeductionLogRepository {
	return &DeductionLogRepository{db: db}
}

// InsertTx appends a log row inside a transaction
func (r *DeductionLogRepository) InsertTx(tx *sqlx.Tx, log *DeductionLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	query := `
		INSERT INTO deduction_logs (id, product_code, source_location, quantity, export_ref)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	return tx.QueryRowx(query,
		log.ID, log.ProductCode, log.SourceLocation, log.Quantity, log.ExportRef,
	).Scan(&log.CreatedAt)
}

// ListByProductCode lists deduction logs for a product, newest first
func (r *DeductionLogRepository) ListByProductCode(ctx context.Context, productCode string) ([]*DeductionLog, error) {
	var logs []*DeductionLog
	query := `
		SELECT * FROM deduction_logs
		WHERE product_code = $1
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &logs, query, productCode); err != nil {
		return nil, err
	}
	return logs, nil
}

// ListByExportRef lists deduction logs belonging to one export
func (r *DeductionLogRepository) ListByExportRef(ctx context.Context, exportRef string) ([]*DeductionLog, error) {
	var logs []*DeductionLog
	query := `
		SELECT * FROM deduction_logs
		WHERE export_ref = $1
		ORDER BY created_at ASC
	`
	if err := r.db.SelectContext(ctx, &logs, query, exportRef); err != nil {
		return nil, err
	}
	return logs, nil
}
