// Package history is the append-only audit trail of trade transitions.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"cardswap/trade"
)

var ErrEmptyEntry = errors.New("history: listing, actor and message are required")

// Entry is one stored history row.
type Entry struct {
	ID        int64     `json:"id"`
	ListingID string    `json:"listingId"`
	RequestID *string   `json:"requestId,omitempty"`
	ActorID   string    `json:"actorId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Log is the append-only trade history backed by PostgreSQL.
type Log struct {
	db DB
}

// NewLog creates a history log.
func NewLog(db DB) *Log {
	return &Log{db: db}
}

// Record appends one entry. Rows are never updated or deleted.
func (l *Log) Record(ctx context.Context, e trade.HistoryEntry) error {
	msg := strings.TrimSpace(e.Message)
	if e.ListingID == "" || e.ActorID == "" || msg == "" {
		return ErrEmptyEntry
	}
	const query = `
		INSERT INTO trade_history (listing_id, request_id, actor_id, message)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := l.db.Exec(ctx, query, e.ListingID, e.RequestID, e.ActorID, msg); err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// List returns a listing's entries oldest first.
func (l *Log) List(ctx context.Context, listingID string) ([]Entry, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, listing_id::text, request_id::text, actor_id::text, message, created_at
		FROM trade_history
		WHERE listing_id = $1
		ORDER BY id`, listingID)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, 8)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ListingID, &e.RequestID, &e.ActorID, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate: %w", err)
	}
	return out, nil
}
