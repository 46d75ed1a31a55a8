package report

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"cardswap/trade"
)

const maxReasonLength = 500

// ReportCounter bumps the reported user's report count inside the filing
// transaction.
type ReportCounter interface {
	IncrementReports(ctx context.Context, tx pgx.Tx, userID string) error
}

// Service files and resolves abuse reports.
type Service struct {
	pool    trade.Pool
	repo    Repository
	counter ReportCounter
	outbox  trade.OutboxWriter
}

// NewService creates a report service. outbox may be nil.
func NewService(pool trade.Pool, repo Repository, counter ReportCounter, outbox trade.OutboxWriter) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{pool: pool, repo: repo, counter: counter, outbox: outbox}
}

// File records a report against the other party of a trade and increments
// that user's report count in the same transaction.
func (s *Service) File(ctx context.Context, reporter trade.Actor, params FileParams) (Record, error) {
	reason := strings.TrimSpace(params.Reason)
	if reason == "" || utf8.RuneCountInString(reason) > maxReasonLength {
		return Record{}, ErrInvalidReason
	}
	if reporter.UserID == "" {
		return Record{}, ErrForbidden
	}
	if _, err := uuid.Parse(params.ListingID); err != nil {
		return Record{}, ErrNotFound
	}
	if params.RequestID != nil {
		if _, err := uuid.Parse(*params.RequestID); err != nil {
			return Record{}, ErrNotFound
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("report: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	subject, err := s.repo.LoadSubject(ctx, tx, params.ListingID, params.RequestID)
	if err != nil {
		return Record{}, err
	}
	reported, err := counterpart(reporter.UserID, subject)
	if err != nil {
		return Record{}, err
	}

	rec, err := s.repo.Insert(ctx, tx, Record{
		ListingID:      subject.ListingID,
		RequestID:      params.RequestID,
		ReporterID:     reporter.UserID,
		ReportedUserID: reported,
		Reason:         reason,
		TradeStatus:    snapshot(subject),
	})
	if err != nil {
		return Record{}, err
	}
	if s.counter != nil {
		if err := s.counter.IncrementReports(ctx, tx, reported); err != nil {
			return Record{}, fmt.Errorf("report: increment count: %w", err)
		}
	}
	if s.outbox != nil {
		payload := map[string]any{
			"report_id":        rec.ID,
			"listing_id":       rec.ListingID,
			"reported_user_id": rec.ReportedUserID,
		}
		if err := s.outbox.Enqueue(ctx, tx, "report.filed", payload); err != nil {
			return Record{}, fmt.Errorf("report: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("report: commit tx: %w", err)
	}
	return rec, nil
}

// List returns every report for admins and the caller's own reports
// otherwise.
func (s *Service) List(ctx context.Context, caller trade.Actor, status Status) ([]Record, error) {
	if status != "" && status != StatusUnderReview && status != StatusResolved {
		return nil, ErrBadStatus
	}
	f := Filter{Status: status}
	if !caller.Admin {
		if caller.UserID == "" {
			return nil, ErrForbidden
		}
		f.ReporterID = caller.UserID
	}
	return s.repo.List(ctx, s.pool, f)
}

// Resolve closes a report. Admin only.
func (s *Service) Resolve(ctx context.Context, caller trade.Actor, reportID string) (Record, error) {
	if !caller.Admin {
		return Record{}, ErrForbidden
	}
	if _, err := uuid.Parse(reportID); err != nil {
		return Record{}, ErrNotFound
	}
	return s.repo.Resolve(ctx, s.pool, reportID)
}

// counterpart picks the user being reported. The owner reports the named
// request's author, or the selected requester; a requester reports the owner.
func counterpart(reporterID string, s Subject) (string, error) {
	if reporterID == s.OwnerID {
		switch {
		case s.Request != nil:
			return s.Request.RequesterID, nil
		case s.Selected != nil:
			return s.Selected.RequesterID, nil
		default:
			return "", ErrNoCounterpart
		}
	}
	if s.Request != nil && s.Request.RequesterID == reporterID {
		return s.OwnerID, nil
	}
	if s.Selected != nil && s.Selected.RequesterID == reporterID {
		return s.OwnerID, nil
	}
	return "", ErrForbidden
}

func snapshot(s Subject) string {
	out := "listing:" + s.ListingStatus.String()
	if s.Request != nil {
		out += ";request:" + s.Request.Status.String()
	}
	return out
}
