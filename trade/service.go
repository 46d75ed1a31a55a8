package trade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Collaborators groups the services the coordinator consumes. Only Contacts
// and Ledger are required for writes; the rest are optional.
type Collaborators struct {
	Contacts ContactRegistry
	Ledger   ReputationLedger
	History  HistoryRecorder
	Outbox   OutboxWriter
	Catalog  CardCatalog
}

// Service coordinates listings, requests and reward settlement. Every
// transition runs in one transaction with the listing row locked.
type Service struct {
	pool          Pool
	repo          Repository
	deps          Collaborators
	logger        *slog.Logger
	idGenerator   func() string
	now           func() time.Time
	settleTries   int
	settleBackoff time.Duration
}

// NewService creates a trade service. A nil repo falls back to the
// PostgreSQL repository.
func NewService(pool Pool, repo Repository, deps Collaborators) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{
		pool:          pool,
		repo:          repo,
		deps:          deps,
		logger:        slog.Default(),
		idGenerator:   func() string { return uuid.NewString() },
		now:           time.Now,
		settleTries:   3,
		settleBackoff: 200 * time.Millisecond,
	}
}

// WithIDGenerator overrides the uuid generator used for new listings and requests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithLogger sets the logger for degraded paths. Nil keeps the default.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithSettlementRetry sets the in-request attempts for settlement and history
// appends, and the linear backoff step between them.
func (s *Service) WithSettlementRetry(attempts int, backoff time.Duration) *Service {
	if attempts < 1 {
		attempts = 1
	}
	s.settleTries = attempts
	s.settleBackoff = backoff
	return s
}

// CreateListing validates the input and stores a new listing in Requested.
func (s *Service) CreateListing(ctx context.Context, actor Actor, in ListingInput) (l Listing, err error) {
	defer func() { observe("create_listing", err) }()
	if actor.UserID == "" {
		return Listing{}, ErrUnauthorizedAccess
	}
	in.OwnerID = actor.UserID

	valid, err := ValidateNewListing(ctx, s.deps.Contacts, in)
	if err != nil {
		return Listing{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("trade: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.InsertListing(ctx, tx, Listing{
		ID:               s.idGenerator(),
		OwnerID:          valid.OwnerID,
		OwnerDisplayName: actor.DisplayName,
		OfferedCardCode:  valid.OfferedCode,
		WantedCardCodes:  valid.WantedCodes,
		ContactCode:      valid.ContactCode,
		Status:           ListingRequested,
	})
	if err != nil {
		return Listing{}, err
	}

	if err := s.enqueue(ctx, tx, TopicListingCreated, map[string]any{
		"listing_id":   created.ID,
		"owner_id":     created.OwnerID,
		"offered_card": created.OfferedCardCode,
		"wanted_cards": created.WantedCardCodes,
	}); err != nil {
		return Listing{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Listing{}, fmt.Errorf("trade: commit tx: %w", lockConflict(err))
	}

	s.recordHistory(ctx, HistoryEntry{ListingID: created.ID, ActorID: actor.UserID, Message: "listing created"})
	return created, nil
}

// GetListing returns a listing. Deleted listings are only visible to their
// owner and to admins.
func (s *Service) GetListing(ctx context.Context, actor Actor, id string) (Listing, error) {
	l, err := s.repo.GetListing(ctx, s.pool, id)
	if err != nil {
		return Listing{}, err
	}
	if l.Status == ListingDeleted && !actor.Admin && actor.UserID != l.OwnerID {
		return Listing{}, ErrListingNotFound
	}
	return l, nil
}

// SelectRequest picks the winning request: the listing moves to Selected and
// the request to Processing. Other open requests are left as they are.
func (s *Service) SelectRequest(ctx context.Context, actor Actor, listingID, requestID string) (l Listing, err error) {
	defer func() { observe("select_request", err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("trade: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	l, err = s.repo.GetListingForUpdate(ctx, tx, listingID)
	if err != nil {
		return Listing{}, err
	}
	if l.OwnerID != actor.UserID {
		return Listing{}, ErrUnauthorizedAccess
	}
	if !l.Status.CanTransition(ListingSelected) {
		return Listing{}, ErrInvalidTradeStatus
	}

	req, err := s.repo.GetRequestForUpdate(ctx, tx, requestID)
	if err != nil {
		return Listing{}, err
	}
	if req.ListingID != l.ID {
		return Listing{}, ErrRequestNotFound
	}
	if req.Status != RequestRequested {
		return Listing{}, ErrInvalidTradeStatus
	}

	updated, err := s.repo.UpdateListingStatus(ctx, tx, l.ID, ListingSelected, &req.ID)
	if err != nil {
		return Listing{}, err
	}
	if _, err := s.repo.UpdateRequestStatus(ctx, tx, req.ID, RequestProcessing); err != nil {
		return Listing{}, err
	}

	if err := s.enqueue(ctx, tx, TopicListingSelected, map[string]any{
		"listing_id":   updated.ID,
		"request_id":   req.ID,
		"owner_id":     updated.OwnerID,
		"requester_id": req.RequesterID,
	}); err != nil {
		return Listing{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Listing{}, fmt.Errorf("trade: commit tx: %w", lockConflict(err))
	}

	s.recordHistory(ctx, HistoryEntry{ListingID: updated.ID, RequestID: &req.ID, ActorID: actor.UserID, Message: "request selected"})
	return updated, nil
}

// AdvanceListing moves a Selected listing to Processing. Either party may
// call it.
func (s *Service) AdvanceListing(ctx context.Context, actor Actor, listingID string) (l Listing, err error) {
	defer func() { observe("advance_listing", err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("trade: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	l, req, err := s.lockParties(ctx, tx, listingID)
	if err != nil {
		return Listing{}, err
	}
	if !isParty(actor, l, req) {
		return Listing{}, ErrUnauthorizedAccess
	}
	if l.Status != ListingSelected {
		return Listing{}, statusError(l.Status)
	}

	updated, err := s.repo.UpdateListingStatus(ctx, tx, l.ID, ListingProcessing, nil)
	if err != nil {
		return Listing{}, err
	}
	if err := s.enqueue(ctx, tx, TopicListingAdvanced, map[string]any{
		"listing_id": updated.ID,
		"request_id": req.ID,
	}); err != nil {
		return Listing{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Listing{}, fmt.Errorf("trade: commit tx: %w", lockConflict(err))
	}

	s.recordHistory(ctx, HistoryEntry{ListingID: updated.ID, RequestID: &req.ID, ActorID: actor.UserID, Message: "trade processing"})
	return updated, nil
}

// CompleteListing closes the trade: the listing and the winning request both
// move to Completed in one transaction. Rewards are settled after commit.
func (s *Service) CompleteListing(ctx context.Context, actor Actor, listingID string) (Completion, error) {
	c, err := s.complete(ctx, actor, listingID, "")
	observe("complete_listing", err)
	return c, err
}

// complete optionally pins the expected winning request so AdvanceRequest
// cannot complete a listing through a request that was not selected.
func (s *Service) complete(ctx context.Context, actor Actor, listingID, expectRequestID string) (Completion, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Completion{}, fmt.Errorf("trade: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	l, req, err := s.lockParties(ctx, tx, listingID)
	if err != nil {
		return Completion{}, err
	}
	if !isParty(actor, l, req) {
		return Completion{}, ErrUnauthorizedAccess
	}
	if l.Status != ListingSelected && l.Status != ListingProcessing {
		return Completion{}, statusError(l.Status)
	}
	if req.ID == "" || req.Status != RequestProcessing {
		return Completion{}, ErrInvalidTradeStatus
	}
	if expectRequestID != "" && req.ID != expectRequestID {
		return Completion{}, ErrInvalidTradeStatus
	}

	updated, err := s.repo.UpdateListingStatus(ctx, tx, l.ID, ListingCompleted, nil)
	if err != nil {
		return Completion{}, err
	}
	if _, err := s.repo.UpdateRequestStatus(ctx, tx, req.ID, RequestCompleted); err != nil {
		return Completion{}, err
	}
	if err := s.enqueue(ctx, tx, TopicListingCompleted, map[string]any{
		"listing_id":   updated.ID,
		"request_id":   req.ID,
		"owner_id":     updated.OwnerID,
		"requester_id": req.RequesterID,
	}); err != nil {
		return Completion{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Completion{}, fmt.Errorf("trade: commit tx: %w", lockConflict(err))
	}

	recorded := s.recordHistory(ctx, HistoryEntry{ListingID: updated.ID, RequestID: &req.ID, ActorID: actor.UserID, Message: "trade completed"})
	rewarded := s.settleWithRetry(ctx, updated.ID)
	return Completion{Listing: updated, Rewarded: rewarded, HistoryRecorded: recorded}, nil
}

// CancelListing soft-deletes a listing that has not completed. Requests are
// left untouched.
func (s *Service) CancelListing(ctx context.Context, actor Actor, listingID string) (l Listing, err error) {
	defer func() { observe("cancel_listing", err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("trade: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	l, err = s.repo.GetListingForUpdate(ctx, tx, listingID)
	if err != nil {
		return Listing{}, err
	}
	if l.OwnerID != actor.UserID {
		return Listing{}, ErrUnauthorizedAccess
	}
	switch l.Status {
	case ListingCompleted:
		return Listing{}, ErrTradeAlreadyCompleted
	case ListingDeleted:
		return Listing{}, ErrAlreadyDeleted
	}

	updated, err := s.repo.UpdateListingStatus(ctx, tx, l.ID, ListingDeleted, nil)
	if err != nil {
		return Listing{}, err
	}
	if err := s.enqueue(ctx, tx, TopicListingDeleted, map[string]any{
		"listing_id":  updated.ID,
		"prev_status": l.Status.String(),
	}); err != nil {
		return Listing{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Listing{}, fmt.Errorf("trade: commit tx: %w", lockConflict(err))
	}

	s.recordHistory(ctx, HistoryEntry{ListingID: updated.ID, ActorID: actor.UserID, Message: "listing deleted"})
	return updated, nil
}

// CreateRequest files a counter-offer against an open listing.
func (s *Service) CreateRequest(ctx context.Context, actor Actor, in RequestInput) (r Request, err error) {
	defer func() { observe("create_request", err) }()
	if actor.UserID == "" {
		return Request{}, ErrUnauthorizedAccess
	}
	in.RequesterID = actor.UserID

	valid, err := ValidateNewRequest(ctx, s.deps.Contacts, in)
	if err != nil {
		return Request{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("trade: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	l, err := s.repo.GetListingForUpdate(ctx, tx, valid.ListingID)
	if err != nil {
		return Request{}, err
	}
	if l.OwnerID == actor.UserID {
		return Request{}, ErrCannotRequestOwn
	}
	if l.Status != ListingRequested {
		return Request{}, ErrListingNotOpen
	}

	created, err := s.repo.InsertRequest(ctx, tx, Request{
		ID:                   s.idGenerator(),
		ListingID:            l.ID,
		RequesterID:          actor.UserID,
		RequesterDisplayName: actor.DisplayName,
		OfferedCardCode:      valid.OfferedCode,
		ContactCode:          valid.ContactCode,
		Status:               RequestRequested,
	})
	if err != nil {
		return Request{}, err
	}
	if err := s.enqueue(ctx, tx, TopicRequestCreated, map[string]any{
		"listing_id":   l.ID,
		"request_id":   created.ID,
		"requester_id": created.RequesterID,
		"owner_id":     l.OwnerID,
	}); err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("trade: commit tx: %w", lockConflict(err))
	}

	s.recordHistory(ctx, HistoryEntry{ListingID: l.ID, RequestID: &created.ID, ActorID: actor.UserID, Message: "request created"})
	return created, nil
}

// AdvanceRequest drives a request one step forward. From Requested the
// parent listing selects it; from Processing the parent listing completes.
func (s *Service) AdvanceRequest(ctx context.Context, actor Actor, requestID string) (status RequestStatus, err error) {
	defer func() { observe("advance_request", err) }()

	req, err := s.repo.GetRequest(ctx, s.pool, requestID)
	if err != nil {
		return 0, err
	}
	next, err := NextRequestStatus(req.Status)
	if err != nil {
		return req.Status, err
	}

	switch next {
	case RequestProcessing:
		_, err = s.SelectRequest(ctx, actor, req.ListingID, req.ID)
	case RequestCompleted:
		_, err = s.complete(ctx, actor, req.ListingID, req.ID)
		observe("complete_listing", err)
	}
	if err != nil {
		return req.Status, err
	}
	return next, nil
}

// DeleteRequest retracts a request. It never moves the listing.
func (s *Service) DeleteRequest(ctx context.Context, actor Actor, requestID string) (r Request, err error) {
	defer func() { observe("delete_request", err) }()

	current, err := s.repo.GetRequest(ctx, s.pool, requestID)
	if err != nil {
		return Request{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("trade: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Listing before request, the same order every transition locks in.
	if _, err := s.repo.GetListingForUpdate(ctx, tx, current.ListingID); err != nil {
		return Request{}, err
	}
	req, err := s.repo.GetRequestForUpdate(ctx, tx, requestID)
	if err != nil {
		return Request{}, err
	}
	if req.RequesterID != actor.UserID {
		return Request{}, ErrUnauthorizedAccess
	}
	switch req.Status {
	case RequestCompleted:
		return Request{}, ErrAlreadyCompleted
	case RequestDeleted:
		return Request{}, ErrAlreadyDeleted
	}

	updated, err := s.repo.UpdateRequestStatus(ctx, tx, req.ID, RequestDeleted)
	if err != nil {
		return Request{}, err
	}
	if err := s.enqueue(ctx, tx, TopicRequestDeleted, map[string]any{
		"listing_id":  updated.ListingID,
		"request_id":  updated.ID,
		"prev_status": req.Status.String(),
	}); err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("trade: commit tx: %w", lockConflict(err))
	}

	s.recordHistory(ctx, HistoryEntry{ListingID: updated.ListingID, RequestID: &updated.ID, ActorID: actor.UserID, Message: "request deleted"})
	return updated, nil
}

// lockParties locks the listing and, when one is selected, the winning
// request. The returned Request is zero when nothing has been selected.
func (s *Service) lockParties(ctx context.Context, tx pgx.Tx, listingID string) (Listing, Request, error) {
	l, err := s.repo.GetListingForUpdate(ctx, tx, listingID)
	if err != nil {
		return Listing{}, Request{}, err
	}
	if l.SelectedRequestID == nil {
		return l, Request{}, nil
	}
	req, err := s.repo.GetRequestForUpdate(ctx, tx, *l.SelectedRequestID)
	if err != nil {
		return Listing{}, Request{}, err
	}
	return l, req, nil
}

func isParty(actor Actor, l Listing, req Request) bool {
	if actor.UserID == "" {
		return false
	}
	return actor.UserID == l.OwnerID || (req.ID != "" && actor.UserID == req.RequesterID)
}

func statusError(current ListingStatus) error {
	if current == ListingCompleted {
		return ErrTradeAlreadyCompleted
	}
	return ErrInvalidTradeStatus
}

func (s *Service) enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	if s.deps.Outbox == nil {
		return nil
	}
	if err := s.deps.Outbox.Enqueue(ctx, tx, topic, payload); err != nil {
		return fmt.Errorf("trade: enqueue %s: %w", topic, err)
	}
	return nil
}

// recordHistory runs after commit and retries with the settlement schedule.
// A final failure is logged and counted but never undoes the transition; it
// reports whether the entry was stored.
func (s *Service) recordHistory(ctx context.Context, e HistoryEntry) bool {
	if s.deps.History == nil {
		return true
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= s.settleTries; attempt++ {
		if err = s.deps.History.Record(ctx, e); err == nil {
			return true
		}
		if attempt < s.settleTries && s.settleBackoff > 0 {
			time.Sleep(time.Duration(attempt) * s.settleBackoff)
		}
	}
	historyFailures.Inc()
	attrs := []any{slog.String("listing_id", e.ListingID), slog.String("message", e.Message), slog.Any("error", err)}
	if e.RequestID != nil {
		attrs = append(attrs, slog.String("request_id", *e.RequestID))
	}
	s.logger.ErrorContext(ctx, "trade: history append failed", attrs...)
	return false
}
