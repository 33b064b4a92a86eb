package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/warehousetch/warehouse-backend/pkg/database"
)

// TransferLog records one lot moving between locations
type TransferLog struct {
	ID           string    `db:"id" json:"id"`
	LotID        *string   `db:"lot_id" json:"lot_id,omitempty"`
	ProductCode  string    `db:"product_code" json:"product_code"`
	FromLocation string    `db:"from_location" json:"from_location"`
	ToLocation   string    `db:"to_location" json:"to_location"`
	ActorEmail   string    `db:"actor_email" json:"actor_email"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// TransferLogRepository handles transfer log persistence. Logs are append-only.
type TransferLogRepository struct {
	db *database.DB
}

// NewTransferLogRepository creates a new transfer log repository
func NewTransferLogRepository(db *database.DB) *TransferLogRepository {
	return &TransferLogRepository{db: db}
}

// InsertTx appends a log row inside a transaction
func (r *TransferLogRepository) InsertTx(tx *sqlx.Tx, log *TransferLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	query := `
		INSERT INTO location_transfer_logs (id, lot_id, product_code, from_location, to_location, actor_email)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return tx.QueryRowx(query,
		log.ID, log.LotID, log.ProductCode, log.FromLocation, log.ToLocation, log.ActorEmail,
	).Scan(&log.CreatedAt)
}

// ListByActor lists transfers performed by one user, newest first
func (r *TransferLogRepository) ListByActor(ctx context.Context, actorEmail string) ([]*TransferLog, error) {
	var logs []*TransferLog
	query := `
		SELECT * FROM location_transfer_logs
		WHERE actor_email = $1
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &logs, query, actorEmail); err != nil {
		return nil, err
	}
	return logs, nil
}

// List lists all transfers, newest first
func (r *TransferLogRepository) List(ctx context.Context, limit int) ([]*TransferLog, error) {
	var logs []*TransferLog
	query := `
		SELECT * FROM location_transfer_logs
		ORDER BY created_at DESC
		LIMIT $1
	`
	if err := r.db.SelectContext(ctx, &logs, query, limit); err != nil {
		return nil, err
	}
	return logs, nil
}
