package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cardswap/trade"
)

var (
	ErrNotFound      = errors.New("report: not found")
	ErrForbidden     = errors.New("report: forbidden")
	ErrBadStatus     = errors.New("report: invalid status transition")
	ErrInvalidReason = errors.New("report: reason must be between 1 and 500 characters")
	ErrNoCounterpart = errors.New("report: trade has no counterpart to report")
)

// Repository handles data access for reports.
type Repository interface {
	LoadSubject(ctx context.Context, tx pgx.Tx, listingID string, requestID *string) (Subject, error)
	Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error)
	List(ctx context.Context, q trade.Querier, f Filter) ([]Record, error)
	Resolve(ctx context.Context, q trade.Querier, id string) (Record, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

const reportColumns = `id::text, listing_id::text, request_id::text, reporter_id::text, reported_user_id::text,
       reason, trade_status, status, created_at, updated_at, resolved_at`

// LoadSubject share-locks the listing so a report snapshots a status that
// cannot change until the report commits.
func (r *PGRepository) LoadSubject(ctx context.Context, tx pgx.Tx, listingID string, requestID *string) (Subject, error) {
	var (
		s          Subject
		status     int16
		selectedID *string
	)
	err := tx.QueryRow(ctx, `
		SELECT id::text, owner_id::text, status, selected_request_id::text
		FROM listings
		WHERE id = $1
		FOR SHARE`, listingID).Scan(&s.ListingID, &s.OwnerID, &status, &selectedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subject{}, ErrNotFound
		}
		return Subject{}, fmt.Errorf("report: load listing: %w", err)
	}
	s.ListingStatus = trade.DecodeListingStatus(status)

	if selectedID != nil {
		p, err := loadParty(ctx, tx, *selectedID, listingID)
		if err != nil {
			return Subject{}, err
		}
		s.Selected = &p
	}
	if requestID != nil {
		p, err := loadParty(ctx, tx, *requestID, listingID)
		if err != nil {
			return Subject{}, err
		}
		s.Request = &p
	}
	return s, nil
}

func loadParty(ctx context.Context, tx pgx.Tx, requestID, listingID string) (Party, error) {
	var (
		p      Party
		status int16
	)
	err := tx.QueryRow(ctx, `
		SELECT id::text, requester_id::text, status
		FROM trade_requests
		WHERE id = $1 AND listing_id = $2`, requestID, listingID).Scan(&p.RequestID, &p.RequesterID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Party{}, ErrNotFound
		}
		return Party{}, fmt.Errorf("report: load request: %w", err)
	}
	p.Status = trade.DecodeRequestStatus(status)
	return p, nil
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	query := `
		INSERT INTO reports (listing_id, request_id, reporter_id, reported_user_id, reason, trade_status, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'under_review')
		RETURNING ` + reportColumns
	out, err := scanRecord(tx.QueryRow(ctx, query,
		rec.ListingID,
		rec.RequestID,
		rec.ReporterID,
		rec.ReportedUserID,
		rec.Reason,
		rec.TradeStatus,
	))
	if err != nil {
		return Record{}, fmt.Errorf("report: insert: %w", err)
	}
	return out, nil
}

func (r *PGRepository) List(ctx context.Context, q trade.Querier, f Filter) ([]Record, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE 1=1`
	args := []any{}
	if f.ReporterID != "" {
		args = append(args, f.ReporterID)
		query += fmt.Sprintf(" AND reporter_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("report: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("report: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report: iterate: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Resolve(ctx context.Context, q trade.Querier, id string) (Record, error) {
	query := `
		UPDATE reports
		SET status = 'resolved', resolved_at = now(), updated_at = now()
		WHERE id = $1 AND status <> 'resolved'
		RETURNING ` + reportColumns
	rec, err := scanRecord(q.QueryRow(ctx, query, id))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("report: resolve: %w", err)
	}

	var status Status
	if err := q.QueryRow(ctx, `SELECT status FROM reports WHERE id = $1`, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("report: resolve fetch: %w", err)
	}
	return Record{}, ErrBadStatus
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.ListingID,
		&rec.RequestID,
		&rec.ReporterID,
		&rec.ReportedUserID,
		&rec.Reason,
		&rec.TradeStatus,
		&rec.Status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.ResolvedAt,
	)
	return rec, err
}
