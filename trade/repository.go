package trade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"cardswap/db"
)

// Querier is the read surface shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is what the service needs from the connection pool.
type Pool interface {
	db.TxBeginner
	Querier
}

// Repository is the persistence surface of the coordinator. Mutating methods
// run inside the caller's transaction.
type Repository interface {
	InsertListing(ctx context.Context, tx pgx.Tx, l Listing) (Listing, error)
	GetListing(ctx context.Context, q Querier, id string) (Listing, error)
	GetListingForUpdate(ctx context.Context, tx pgx.Tx, id string) (Listing, error)
	UpdateListingStatus(ctx context.Context, tx pgx.Tx, id string, status ListingStatus, selectedRequestID *string) (Listing, error)
	MarkRewarded(ctx context.Context, tx pgx.Tx, id string, at time.Time) error
	ListUnrewarded(ctx context.Context, q Querier, limit int) ([]string, error)

	InsertRequest(ctx context.Context, tx pgx.Tx, r Request) (Request, error)
	GetRequest(ctx context.Context, q Querier, id string) (Request, error)
	GetRequestForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error)
	UpdateRequestStatus(ctx context.Context, tx pgx.Tx, id string, status RequestStatus) (Request, error)

	SearchListings(ctx context.Context, q Querier, f listingFilter) ([]Listing, int, error)
	SearchRequests(ctx context.Context, q Querier, f requestFilter) ([]Request, int, error)
}

type listingFilter struct {
	Statuses []int16
	OwnerID  string
	CardCode string
	SortKey  string
	Order    string
	Limit    int
	Offset   int
}

type requestFilter struct {
	Statuses    []int16
	ListingID   string
	RequesterID string
	CardCode    string
	SortKey     string
	Order       string
	Limit       int
	Offset      int
}

// PGRepository implements Repository on PostgreSQL. It holds no state; every
// call runs on the tx or querier it is given.
type PGRepository struct{}

// NewRepository creates a trade repository.
func NewRepository() *PGRepository {
	return &PGRepository{}
}

const listingColumns = `id::text, owner_id::text, owner_display_name, offered_card_code, wanted_card_codes,
       contact_code, status, selected_request_id::text, rewarded_at, created_at, updated_at`

const requestColumns = `id::text, listing_id::text, requester_id::text, requester_display_name, offered_card_code,
       contact_code, status, created_at, updated_at`

func (r *PGRepository) InsertListing(ctx context.Context, tx pgx.Tx, l Listing) (Listing, error) {
	query := `
		INSERT INTO listings (id, owner_id, owner_display_name, offered_card_code, wanted_card_codes, contact_code, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + listingColumns

	out, err := scanListing(tx.QueryRow(ctx, query,
		l.ID,
		l.OwnerID,
		l.OwnerDisplayName,
		l.OfferedCardCode,
		l.WantedCardCodes,
		l.ContactCode,
		l.Status.Code(),
	))
	if err != nil {
		return Listing{}, fmt.Errorf("trade: insert listing: %w", err)
	}
	return out, nil
}

func (r *PGRepository) GetListing(ctx context.Context, q Querier, id string) (Listing, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Listing{}, ErrListingNotFound
	}
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	l, err := scanListing(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrListingNotFound
		}
		return Listing{}, fmt.Errorf("trade: get listing: %w", err)
	}
	return l, nil
}

func (r *PGRepository) GetListingForUpdate(ctx context.Context, tx pgx.Tx, id string) (Listing, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Listing{}, ErrListingNotFound
	}
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1 FOR UPDATE`
	l, err := scanListing(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrListingNotFound
		}
		return Listing{}, fmt.Errorf("trade: lock listing: %w", lockConflict(err))
	}
	return l, nil
}

func (r *PGRepository) UpdateListingStatus(ctx context.Context, tx pgx.Tx, id string, status ListingStatus, selectedRequestID *string) (Listing, error) {
	query := `
		UPDATE listings
		SET status = $2,
		    selected_request_id = COALESCE($3::uuid, selected_request_id),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + listingColumns

	l, err := scanListing(tx.QueryRow(ctx, query, id, status.Code(), selectedRequestID))
	if err != nil {
		return Listing{}, fmt.Errorf("trade: update listing status: %w", lockConflict(err))
	}
	return l, nil
}

func (r *PGRepository) MarkRewarded(ctx context.Context, tx pgx.Tx, id string, at time.Time) error {
	tag, err := tx.Exec(ctx, `UPDATE listings SET rewarded_at = $2 WHERE id = $1 AND rewarded_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("trade: mark rewarded: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("trade: mark rewarded: listing %s already rewarded", id)
	}
	return nil
}

func (r *PGRepository) ListUnrewarded(ctx context.Context, q Querier, limit int) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text FROM listings
		WHERE status = $1 AND rewarded_at IS NULL
		ORDER BY updated_at
		LIMIT $2`, ListingCompleted.Code(), limit)
	if err != nil {
		return nil, fmt.Errorf("trade: list unrewarded: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("trade: list unrewarded: %w", err)
	}
	return ids, nil
}

func (r *PGRepository) InsertRequest(ctx context.Context, tx pgx.Tx, req Request) (Request, error) {
	query := `
		INSERT INTO trade_requests (id, listing_id, requester_id, requester_display_name, offered_card_code, contact_code, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + requestColumns

	out, err := scanRequest(tx.QueryRow(ctx, query,
		req.ID,
		req.ListingID,
		req.RequesterID,
		req.RequesterDisplayName,
		req.OfferedCardCode,
		req.ContactCode,
		req.Status.Code(),
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Request{}, ErrTradeAlreadyInProgress
		}
		return Request{}, fmt.Errorf("trade: insert request: %w", err)
	}
	return out, nil
}

func (r *PGRepository) GetRequest(ctx context.Context, q Querier, id string) (Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Request{}, ErrRequestNotFound
	}
	query := `SELECT ` + requestColumns + ` FROM trade_requests WHERE id = $1`
	req, err := scanRequest(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, fmt.Errorf("trade: get request: %w", err)
	}
	return req, nil
}

func (r *PGRepository) GetRequestForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Request{}, ErrRequestNotFound
	}
	query := `SELECT ` + requestColumns + ` FROM trade_requests WHERE id = $1 FOR UPDATE`
	req, err := scanRequest(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, fmt.Errorf("trade: lock request: %w", lockConflict(err))
	}
	return req, nil
}

func (r *PGRepository) UpdateRequestStatus(ctx context.Context, tx pgx.Tx, id string, status RequestStatus) (Request, error) {
	query := `
		UPDATE trade_requests
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + requestColumns

	req, err := scanRequest(tx.QueryRow(ctx, query, id, status.Code()))
	if err != nil {
		return Request{}, fmt.Errorf("trade: update request status: %w", lockConflict(err))
	}
	return req, nil
}

func (r *PGRepository) SearchListings(ctx context.Context, q Querier, f listingFilter) ([]Listing, int, error) {
	where := []string{"status = ANY($1)"}
	args := []any{f.Statuses}
	if f.OwnerID != "" {
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, f.OwnerID)
	}
	if f.CardCode != "" {
		where = append(where, fmt.Sprintf("(offered_card_code = $%d OR $%d = ANY(wanted_card_codes))", len(args)+1, len(args)+1))
		args = append(args, f.CardCode)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	query := fmt.Sprintf(`SELECT %s FROM listings%s ORDER BY %s %s, id %s LIMIT %d OFFSET %d`,
		listingColumns, whereClause, listingSortColumn(f.SortKey), f.Order, f.Order, f.Limit, f.Offset)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("trade: query listings: %w", err)
	}
	defer rows.Close()

	list := []Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("trade: scan listing: %w", err)
		}
		list = append(list, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("trade: iterate listings: %w", err)
	}

	var total int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM listings"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("trade: count listings: %w", err)
	}
	return list, total, nil
}

func (r *PGRepository) SearchRequests(ctx context.Context, q Querier, f requestFilter) ([]Request, int, error) {
	where := []string{"status = ANY($1)"}
	args := []any{f.Statuses}
	if f.ListingID != "" {
		where = append(where, fmt.Sprintf("listing_id = $%d", len(args)+1))
		args = append(args, f.ListingID)
	}
	if f.RequesterID != "" {
		where = append(where, fmt.Sprintf("requester_id = $%d", len(args)+1))
		args = append(args, f.RequesterID)
	}
	if f.CardCode != "" {
		where = append(where, fmt.Sprintf("offered_card_code = $%d", len(args)+1))
		args = append(args, f.CardCode)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	query := fmt.Sprintf(`SELECT %s FROM trade_requests%s ORDER BY %s %s, id %s LIMIT %d OFFSET %d`,
		requestColumns, whereClause, requestSortColumn(f.SortKey), f.Order, f.Order, f.Limit, f.Offset)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("trade: query requests: %w", err)
	}
	defer rows.Close()

	list := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("trade: scan request: %w", err)
		}
		list = append(list, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("trade: iterate requests: %w", err)
	}

	var total int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM trade_requests"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("trade: count requests: %w", err)
	}
	return list, total, nil
}

func scanListing(row pgx.Row) (Listing, error) {
	var (
		l      Listing
		status int16
	)
	err := row.Scan(
		&l.ID,
		&l.OwnerID,
		&l.OwnerDisplayName,
		&l.OfferedCardCode,
		&l.WantedCardCodes,
		&l.ContactCode,
		&status,
		&l.SelectedRequestID,
		&l.RewardedAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	l.Status = DecodeListingStatus(status)
	return l, err
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req    Request
		status int16
	)
	err := row.Scan(
		&req.ID,
		&req.ListingID,
		&req.RequesterID,
		&req.RequesterDisplayName,
		&req.OfferedCardCode,
		&req.ContactCode,
		&status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	req.Status = DecodeRequestStatus(status)
	return req, err
}
