package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Settle credits both parties of a completed listing exactly once. It returns
// false with a nil error when the listing was already rewarded.
func (s *Service) Settle(ctx context.Context, listingID string) (bool, error) {
	if s.deps.Ledger == nil {
		return false, fmt.Errorf("trade: settle: no reputation ledger configured")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("trade: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	l, err := s.repo.GetListingForUpdate(ctx, tx, listingID)
	if err != nil {
		return false, err
	}
	if l.Status != ListingCompleted {
		return false, ErrInvalidTradeStatus
	}
	if l.RewardedAt != nil {
		return false, nil
	}
	if l.SelectedRequestID == nil {
		return false, fmt.Errorf("trade: settle %s: completed listing has no selected request", l.ID)
	}
	req, err := s.repo.GetRequest(ctx, tx, *l.SelectedRequestID)
	if err != nil {
		return false, err
	}

	// Upserts run in user-id order so concurrent settlements touching the
	// same users never deadlock.
	parties := []string{l.OwnerID, req.RequesterID}
	sort.Strings(parties)
	credit := Credit{Points: RewardPoints, Experience: RewardExperience, CompletedTrades: 1}
	for _, userID := range parties {
		if err := s.deps.Ledger.Credit(ctx, tx, userID, credit); err != nil {
			return false, fmt.Errorf("trade: credit %s: %w", userID, err)
		}
	}

	if err := s.repo.MarkRewarded(ctx, tx, l.ID, s.now().UTC()); err != nil {
		return false, err
	}
	if err := s.enqueue(ctx, tx, TopicListingRewarded, map[string]any{
		"listing_id": l.ID,
		"users":      parties,
		"points":     RewardPoints,
		"experience": RewardExperience,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("trade: commit settlement: %w", lockConflict(err))
	}
	return true, nil
}

// settleWithRetry is the in-request settlement path. It reports whether the
// listing ends up rewarded; false leaves the listing for SettlePending.
func (s *Service) settleWithRetry(ctx context.Context, listingID string) bool {
	ctx = context.WithoutCancel(ctx)
	var lastErr error
	for attempt := 1; attempt <= s.settleTries; attempt++ {
		_, err := s.Settle(ctx, listingID)
		if err == nil {
			return true
		}
		lastErr = err
		s.logger.WarnContext(ctx, "trade: settlement attempt failed",
			slog.String("listing_id", listingID),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		if attempt < s.settleTries && s.settleBackoff > 0 {
			time.Sleep(time.Duration(attempt) * s.settleBackoff)
		}
	}
	settlementFailures.Inc()
	s.logger.ErrorContext(ctx, "trade: settlement deferred to sweeper",
		slog.String("listing_id", listingID),
		slog.Any("error", lastErr))
	return false
}

// SettlePending retries settlement for completed listings that were never
// rewarded. It returns how many listings it rewarded.
func (s *Service) SettlePending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.repo.ListUnrewarded(ctx, s.pool, limit)
	if err != nil {
		return 0, err
	}

	var (
		settled int
		errs    []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		ok, err := s.Settle(ctx, id)
		if err != nil {
			settlementFailures.Inc()
			s.logger.ErrorContext(ctx, "trade: sweeper settlement failed",
				slog.String("listing_id", id),
				slog.Any("error", err))
			errs = append(errs, fmt.Errorf("listing %s: %w", id, err))
			continue
		}
		if ok {
			settled++
		}
	}
	return settled, errors.Join(errs...)
}
