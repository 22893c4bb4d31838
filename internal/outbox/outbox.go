// Package outbox stores order events in the same transaction as the state
// change that produced them and relays them to the event stream afterwards.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Druid-alpha/shoplux-BE/internal/domain"
	"github.com/Druid-alpha/shoplux-BE/internal/postgres"
)

type Record struct {
	ID          int64           `json:"id"`
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	SentAt      *time.Time      `json:"sent_at"`
}

// Insert must run on the caller's transaction so the event commits or rolls
// back together with the order it describes.
func Insert(ctx context.Context, db postgres.DBTX, event domain.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO outbox (event_id, event_type, aggregate_id, payload)
		VALUES ($1, $2, $3, $4)
	`, event.ID, event.Type, event.OrderID, data)
	return err
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Dispatch claims up to limit unsent records, hands each to fn in insertion
// order and marks the ones fn accepted as sent. The first failure stops the
// batch; the remaining rows stay pending for the next pass. SKIP LOCKED lets
// several relays share the table without delivering a row twice.
func (r *Repository) Dispatch(ctx context.Context, limit int, fn func(context.Context, Record) error) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, event_id, event_type, aggregate_id, payload, created_at
		FROM outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, err
	}

	var batch []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.EventType, &rec.AggregateID, &rec.Payload, &rec.CreatedAt); err != nil {
			_ = rows.Close()
			return 0, err
		}
		batch = append(batch, rec)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	sent := 0
	var deliverErr error
	for _, rec := range batch {
		if deliverErr = fn(ctx, rec); deliverErr != nil {
			break
		}
		if _, err := tx.ExecContext(ctx, `UPDATE outbox SET sent_at = NOW() WHERE id = $1`, rec.ID); err != nil {
			return 0, err
		}
		sent++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	if deliverErr != nil {
		return sent, fmt.Errorf("deliver outbox record: %w", deliverErr)
	}
	return sent, nil
}

// Pending counts records that have not been relayed yet.
func (r *Repository) Pending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE sent_at IS NULL`).Scan(&n)
	return n, err
}
