// Package reputation keeps per-user trade counters. Rows are created lazily
// and every mutation is a single atomic upsert run inside the caller's
// transaction.
package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"cardswap/trade"
)

var (
	ErrInvalidUser   = errors.New("reputation: invalid user id")
	ErrNegativeDelta = errors.New("reputation: credit deltas must be non-negative")
)

// Record mirrors the reputation table.
type Record struct {
	UserID              string    `json:"userId"`
	CompletedTradeCount int       `json:"completedTradeCount"`
	ReportCount         int       `json:"reportCount"`
	Experience          int64     `json:"experience"`
	Points              int64     `json:"points"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Ledger stores per-user reputation counters. Rows are created lazily.
type Ledger struct {
	pool trade.Querier
}

// NewLedger creates a reputation ledger.
func NewLedger(pool trade.Querier) *Ledger {
	return &Ledger{pool: pool}
}

// Credit adds a settlement delta to a user's counters.
func (l *Ledger) Credit(ctx context.Context, tx pgx.Tx, userID string, c trade.Credit) error {
	if _, err := uuid.Parse(userID); err != nil {
		return ErrInvalidUser
	}
	if c.Points < 0 || c.Experience < 0 || c.CompletedTrades < 0 {
		return ErrNegativeDelta
	}
	const query = `
		INSERT INTO reputation (user_id, completed_trade_count, experience, points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET completed_trade_count = reputation.completed_trade_count + EXCLUDED.completed_trade_count,
		    experience = reputation.experience + EXCLUDED.experience,
		    points = reputation.points + EXCLUDED.points,
		    updated_at = now()
	`
	if _, err := tx.Exec(ctx, query, userID, c.CompletedTrades, c.Experience, c.Points); err != nil {
		return fmt.Errorf("reputation: credit: %w", err)
	}
	return nil
}

// IncrementReports bumps a user's report count by one.
func (l *Ledger) IncrementReports(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return ErrInvalidUser
	}
	const query = `
		INSERT INTO reputation (user_id, report_count)
		VALUES ($1, 1)
		ON CONFLICT (user_id) DO UPDATE
		SET report_count = reputation.report_count + 1,
		    updated_at = now()
	`
	if _, err := tx.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("reputation: increment reports: %w", err)
	}
	return nil
}

// Get returns a user's record, creating a zeroed row on first read.
func (l *Ledger) Get(ctx context.Context, userID string) (Record, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return Record{}, ErrInvalidUser
	}
	const query = `
		WITH created AS (
			INSERT INTO reputation (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING
			RETURNING user_id::text, completed_trade_count, report_count, experience, points, created_at, updated_at
		)
		SELECT * FROM created
		UNION ALL
		SELECT user_id::text, completed_trade_count, report_count, experience, points, created_at, updated_at
		FROM reputation WHERE user_id = $1
		LIMIT 1
	`
	var rec Record
	err := l.pool.QueryRow(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.CompletedTradeCount,
		&rec.ReportCount,
		&rec.Experience,
		&rec.Points,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("reputation: get: %w", err)
	}
	return rec, nil
}
