package db

import (
	"context"
	"fmt"
	"time"
)

// Outcome values recorded in the journal.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Event is one lifecycle outcome. The journal is append-only and never read
// back to restore state.
type Event struct {
	ID        int64
	OpID      string
	Op        string
	Symbol    string
	Side      string
	Price     string
	Size      string
	OrderID   int64
	Outcome   string
	Detail    string
	Balance   string
	CreatedAt time.Time
}

// Journal appends lifecycle events to SQLite.
type Journal struct {
	db *Database
}

// NewJournal wraps an opened and migrated database.
func NewJournal(d *Database) *Journal {
	return &Journal{db: d}
}

// Record appends e. A nil journal discards the event.
func (j *Journal) Record(ctx context.Context, e Event) error {
	if j == nil || j.db == nil {
		return nil
	}
	created := nowMillis()
	if !e.CreatedAt.IsZero() {
		created = e.CreatedAt.UnixMilli()
	}
	_, err := j.db.DB.ExecContext(ctx, `
		INSERT INTO lifecycle_events (op_id, op, symbol, side, price, size, order_id, outcome, detail, balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.OpID, e.Op, e.Symbol, e.Side, e.Price, e.Size, e.OrderID, e.Outcome, e.Detail, e.Balance, created)
	if err != nil {
		return fmt.Errorf("insert lifecycle event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.DB.QueryContext(ctx, `
		SELECT id, op_id, op, symbol, side, price, size, order_id, outcome, detail, balance, created_at
		FROM lifecycle_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query lifecycle events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			created int64
		)
		if err := rows.Scan(&e.ID, &e.OpID, &e.Op, &e.Symbol, &e.Side, &e.Price, &e.Size, &e.OrderID, &e.Outcome, &e.Detail, &e.Balance, &created); err != nil {
			return nil, fmt.Errorf("scan lifecycle event: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
