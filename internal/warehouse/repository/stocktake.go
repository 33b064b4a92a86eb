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

// Stocktake round statuses
const (
	RoundStatusInProgress = "in_progress"
	RoundStatusFinished   = "finished"
)

// StocktakeRound represents one counting campaign
type StocktakeRound struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StocktakeLine links one lot into a round and carries its count
type StocktakeLine struct {
	ID             string     `db:"id" json:"id"`
	RoundID        string     `db:"round_id" json:"round_id"`
	LotID          string     `db:"lot_id" json:"lot_id"`
	ActualQuantity *int       `db:"actual_quantity" json:"actual_quantity,omitempty"`
	Note           *string    `db:"note" json:"note,omitempty"`
	CountedBy      *string    `db:"counted_by" json:"counted_by,omitempty"`
	CountedAt      *time.Time `db:"counted_at" json:"counted_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// StocktakeLineDetail is a line joined with its lot for reporting
type StocktakeLineDetail struct {
	StocktakeLine
	ProductCode    string  `db:"product_code" json:"product_code"`
	ProductName    string  `db:"product_name" json:"product_name"`
	Location       string  `db:"location" json:"location"`
	SystemQuantity int     `db:"system_quantity" json:"system_quantity"`
	Unit           *string `db:"unit" json:"unit,omitempty"`
	RoundStatus    string  `db:"round_status" json:"round_status"`
}

// StocktakeRepository handles stocktake round and line persistence
type StocktakeRepository struct {
	db *database.DB
}

// NewStocktakeRepository creates a new stocktake repository
func NewStocktakeRepository(db *database.DB) *StocktakeRepository {
	return &StocktakeRepository{db: db}
}

// CountRoundsForDayTx counts rounds whose code carries the given day suffix,
// used for day-scoped round codes. Counting by code keeps the sequence on the
// application clock instead of the database clock.
func (r *StocktakeRepository) CountRoundsForDayTx(tx *sqlx.Tx, day string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM stocktake_rounds WHERE split_part(code, '_', 2) = $1`
	if err := tx.Get(&count, query, day); err != nil {
		return 0, err
	}
	return count, nil
}

// CreateRoundTx creates a round inside a transaction
func (r *StocktakeRepository) CreateRoundTx(tx *sqlx.Tx, round *StocktakeRound) error {
	if round.ID == "" {
		round.ID = uuid.New().String()
	}
	if round.Status == "" {
		round.Status = RoundStatusInProgress
	}

	query := `
		INSERT INTO stocktake_rounds (id, code, name, created_by, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	return tx.QueryRowx(query,
		round.ID, round.Code, round.Name, round.CreatedBy, round.Status,
	).Scan(&round.CreatedAt)
}

// GetRound gets a round by ID
func (r *StocktakeRepository) GetRound(ctx context.Context, id string) (*StocktakeRound, error) {
	var round StocktakeRound
	query := `SELECT * FROM stocktake_rounds WHERE id = $1`
	if err := r.db.GetContext(ctx, &round, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("stocktake round")
		}
		return nil, err
	}
	return &round, nil
}

// GetRoundForUpdateTx gets a round by ID with a row lock
func (r *StocktakeRepository) GetRoundForUpdateTx(tx *sqlx.Tx, id string) (*StocktakeRound, error) {
	var round StocktakeRound
	query := `SELECT * FROM stocktake_rounds WHERE id = $1 FOR UPDATE`
	if err := tx.Get(&round, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("stocktake round")
		}
		return nil, err
	}
	return &round, nil
}

// GetActiveRound returns the newest in-progress round, or NotFound
func (r *StocktakeRepository) GetActiveRound(ctx context.Context) (*StocktakeRound, error) {
	var round StocktakeRound
	query := `
		SELECT * FROM stocktake_rounds
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &round, query, RoundStatusInProgress); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("active stocktake round")
		}
		return nil, err
	}
	return &round, nil
}

// ListRounds lists rounds, optionally filtered by status, newest first
func (r *StocktakeRepository) ListRounds(ctx context.Context, status string) ([]*StocktakeRound, error) {
	var rounds []*StocktakeRound

	if status != "" {
		query := `SELECT * FROM stocktake_rounds WHERE status = $1 ORDER BY created_at DESC`
		if err := r.db.SelectContext(ctx, &rounds, query, status); err != nil {
			return nil, err
		}
		return rounds, nil
	}

	query := `SELECT * FROM stocktake_rounds ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &rounds, query); err != nil {
		return nil, err
	}
	return rounds, nil
}

// UpdateRoundStatusTx updates a round's status inside a transaction
func (r *StocktakeRepository) UpdateRoundStatusTx(tx *sqlx.Tx, id, status string) error {
	query := `UPDATE stocktake_rounds SET status = $2 WHERE id = $1`
	result, err := tx.Exec(query, id, status)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("stocktake round")
	}

	return nil
}

// DeleteRoundTx deletes a round and its lines inside a transaction
func (r *StocktakeRepository) DeleteRoundTx(tx *sqlx.Tx, id string) error {
	if _, err := tx.Exec(`DELETE FROM stocktake_lines WHERE round_id = $1`, id); err != nil {
		return err
	}

	result, err := tx.Exec(`DELETE FROM stocktake_rounds WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("stocktake round")
	}

	return nil
}

// AssignLinesTx inserts line items for the given lots. Existing assignments in the
// same round are skipped, so repeated calls are idempotent. Returns rows inserted.
func (r *StocktakeRepository) AssignLinesTx(tx *sqlx.Tx, roundID string, lotIDs []string) (int64, error) {
	var inserted int64

	query := `
		INSERT INTO stocktake_lines (id, round_id, lot_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (round_id, lot_id) DO NOTHING
	`
	for _, lotID := range lotIDs {
		result, err := tx.Exec(query, uuid.New().String(), roundID, lotID)
		if err != nil {
			return inserted, err
		}
		n, _ := result.RowsAffected()
		inserted += n
	}

	return inserted, nil
}

// LotIDsInOtherActiveRoundsTx returns the subset of lotIDs already assigned to a
// different in-progress round. A lot may only sit in one active round.
func (r *StocktakeRepository) LotIDsInOtherActiveRoundsTx(tx *sqlx.Tx, lotIDs []string, roundID string) ([]string, error) {
	if len(lotIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT DISTINCT sl.lot_id FROM stocktake_lines sl
		JOIN stocktake_rounds sr ON sr.id = sl.round_id
		WHERE sl.lot_id IN (?) AND sr.status = ? AND sr.id != ?
	`, lotIDs, RoundStatusInProgress, roundID)
	if err != nil {
		return nil, err
	}

	var conflicting []string
	if err := tx.Select(&conflicting, tx.Rebind(query), args...); err != nil {
		return nil, err
	}
	return conflicting, nil
}

// LotIDsByProductCodesTx resolves product codes to their lot IDs
func (r *StocktakeRepository) LotIDsByProductCodesTx(tx *sqlx.Tx, productCodes []string) ([]string, error) {
	if len(productCodes) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT id FROM product_lots WHERE product_code IN (?)`, productCodes)
	if err != nil {
		return nil, err
	}

	var lotIDs []string
	if err := tx.Select(&lotIDs, tx.Rebind(query), args...); err != nil {
		return nil, err
	}
	return lotIDs, nil
}

// GetLineWithRound gets a line joined with its lot and round status
func (r *StocktakeRepository) GetLineWithRound(ctx context.Context, lineID string) (*StocktakeLineDetail, error) {
	var line StocktakeLineDetail
	query := `
		SELECT sl.*, pl.product_code, pl.product_name, pl.location,
			pl.quantity AS system_quantity, pl.unit, sr.status AS round_status
		FROM stocktake_lines sl
		JOIN product_lots pl ON pl.id = sl.lot_id
		JOIN stocktake_rounds sr ON sr.id = sl.round_id
		WHERE sl.id = $1
	`
	if err := r.db.GetContext(ctx, &line, query, lineID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("stocktake line")
		}
		return nil, err
	}
	return &line, nil
}

// UpdateLineCount records a count result. Last write wins; counted_at always advances.
func (r *StocktakeRepository) UpdateLineCount(ctx context.Context, lineID string, actualQuantity int, note *string, countedBy string) error {
	query := `
		UPDATE stocktake_lines
		SET actual_quantity = $2, note = $3, counted_by = $4, counted_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, lineID, actualQuantity, note, countedBy)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("stocktake line")
	}

	return nil
}

// ResetLinesByProduct clears count results for a product's lines in a round.
// Membership is kept; only the count fields are nulled.
func (r *StocktakeRepository) ResetLinesByProduct(ctx context.Context, roundID, productCode string) (int64, error) {
	query := `
		UPDATE stocktake_lines
		SET actual_quantity = NULL, note = NULL, counted_by = NULL, counted_at = NULL
		WHERE round_id = $1
		AND lot_id IN (SELECT id FROM product_lots WHERE product_code = $2)
	`
	result, err := r.db.ExecContext(ctx, query, roundID, productCode)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteLinesByProductCodes removes line items for the given products from a round
func (r *StocktakeRepository) DeleteLinesByProductCodes(ctx context.Context, roundID string, productCodes []string) (int64, error) {
	if len(productCodes) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`
		DELETE FROM stocktake_lines
		WHERE round_id = ?
		AND lot_id IN (SELECT id FROM product_lots WHERE product_code IN (?))
	`, roundID, productCodes)
	if err != nil {
		return 0, err
	}

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListLines lists a round's lines joined with their lots
func (r *StocktakeRepository) ListLines(ctx context.Context, roundID string) ([]*StocktakeLineDetail, error) {
	var lines []*StocktakeLineDetail
	query := `
		SELECT sl.*, pl.product_code, pl.product_name, pl.location,
			pl.quantity AS system_quantity, pl.unit, sr.status AS round_status
		FROM stocktake_lines sl
		JOIN product_lots pl ON pl.id = sl.lot_id
		JOIN stocktake_rounds sr ON sr.id = sl.round_id
		WHERE sl.round_id = $1
		ORDER BY pl.product_code ASC, pl.location ASC
	`
	if err := r.db.SelectContext(ctx, &lines, query, roundID); err != nil {
		return nil, err
	}
	return lines, nil
}

// CountUncountedLines counts lines in active rounds still waiting for a count
func (r *StocktakeRepository) CountUncountedLines(ctx context.Context) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM stocktake_lines sl
		JOIN stocktake_rounds sr ON sr.id = sl.round_id
		WHERE sr.status = $1 AND sl.actual_quantity IS NULL
	`
	if err := r.db.GetContext(ctx, &count, query, RoundStatusInProgress); err != nil {
		return 0, err
	}
	return count, nil
}
