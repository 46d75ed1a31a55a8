package trade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakePool struct {
	mu  sync.Mutex
	txs []*fakeTx
}

func (f *fakePool) Begin(context.Context) (pgx.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakePool) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakePool) last() *fakeTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.txs) == 0 {
		return nil
	}
	return f.txs[len(f.txs)-1]
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolled = true
	}
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}

// memRepo applies writes immediately. The service performs every check
// before its first write, so the lack of rollback does not leak state.
type memRepo struct {
	mu       sync.Mutex
	listings map[string]Listing
	requests map[string]Request
	clock    time.Time

	lastListingFilter listingFilter
	lastRequestFilter requestFilter
}

func newMemRepo() *memRepo {
	return &memRepo{
		listings: map[string]Listing{},
		requests: map[string]Request{},
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memRepo) InsertListing(_ context.Context, _ pgx.Tx, l Listing) (Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.CreatedAt = m.tick()
	l.UpdatedAt = l.CreatedAt
	l.WantedCardCodes = append([]string(nil), l.WantedCardCodes...)
	m.listings[l.ID] = l
	return l, nil
}

func (m *memRepo) GetListing(_ context.Context, _ Querier, id string) (Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return Listing{}, ErrListingNotFound
	}
	return l, nil
}

func (m *memRepo) GetListingForUpdate(ctx context.Context, tx pgx.Tx, id string) (Listing, error) {
	return m.GetListing(ctx, tx, id)
}

func (m *memRepo) UpdateListingStatus(_ context.Context, _ pgx.Tx, id string, status ListingStatus, selected *string) (Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return Listing{}, fmt.Errorf("trade: update listing status: %s missing", id)
	}
	l.Status = status
	if selected != nil {
		v := *selected
		l.SelectedRequestID = &v
	}
	l.UpdatedAt = m.tick()
	m.listings[id] = l
	return l, nil
}

func (m *memRepo) MarkRewarded(_ context.Context, _ pgx.Tx, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.listings[id]
	if l.RewardedAt != nil {
		return fmt.Errorf("trade: mark rewarded: listing %s already rewarded", id)
	}
	l.RewardedAt = &at
	m.listings[id] = l
	return nil
}

func (m *memRepo) ListUnrewarded(_ context.Context, _ Querier, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, l := range m.listings {
		if l.Status == ListingCompleted && l.RewardedAt == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memRepo) InsertRequest(_ context.Context, _ pgx.Tx, r Request) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.requests {
		if existing.ListingID == r.ListingID && existing.RequesterID == r.RequesterID && existing.Status != RequestDeleted {
			return Request{}, ErrTradeAlreadyInProgress
		}
	}
	r.CreatedAt = m.tick()
	r.UpdatedAt = r.CreatedAt
	m.requests[r.ID] = r
	return r, nil
}

func (m *memRepo) GetRequest(_ context.Context, _ Querier, id string) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return Request{}, ErrRequestNotFound
	}
	return r, nil
}

func (m *memRepo) GetRequestForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error) {
	return m.GetRequest(ctx, tx, id)
}

func (m *memRepo) UpdateRequestStatus(_ context.Context, _ pgx.Tx, id string, status RequestStatus) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return Request{}, fmt.Errorf("trade: update request status: %s missing", id)
	}
	r.Status = status
	r.UpdatedAt = m.tick()
	m.requests[id] = r
	return r, nil
}

func (m *memRepo) SearchListings(_ context.Context, _ Querier, f listingFilter) ([]Listing, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastListingFilter = f
	var out []Listing
	for _, l := range m.listings {
		if !containsCode(f.Statuses, l.Status.Code()) {
			continue
		}
		if f.OwnerID != "" && l.OwnerID != f.OwnerID {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memRepo) SearchRequests(_ context.Context, _ Querier, f requestFilter) ([]Request, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRequestFilter = f
	var out []Request
	for _, r := range m.requests {
		if !containsCode(f.Statuses, r.Status.Code()) {
			continue
		}
		if f.ListingID != "" && r.ListingID != f.ListingID {
			continue
		}
		if f.RequesterID != "" && r.RequesterID != f.RequesterID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func containsCode(codes []int16, c int16) bool {
	for _, v := range codes {
		if v == c {
			return true
		}
	}
	return false
}

type fakeContacts map[string]bool

func (f fakeContacts) IsActive(_ context.Context, userID, code string) (bool, error) {
	return f[userID+"/"+code], nil
}

type fakeLedger struct {
	mu      sync.Mutex
	credits map[string]Credit
	fail    error
}

func (f *fakeLedger) Credit(_ context.Context, _ pgx.Tx, userID string, c Credit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	if f.credits == nil {
		f.credits = map[string]Credit{}
	}
	cur := f.credits[userID]
	cur.Points += c.Points
	cur.Experience += c.Experience
	cur.CompletedTrades += c.CompletedTrades
	f.credits[userID] = cur
	return nil
}

func (f *fakeLedger) get(userID string) Credit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[userID]
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
	err     error
	flaky   int
	calls   int
}

func (f *fakeHistory) Record(_ context.Context, e HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.flaky > 0 {
		f.flaky--
		return errors.New("history unavailable")
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeHistory) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Message
	}
	return out
}

type fakeOutbox struct {
	mu     sync.Mutex
	topics []string
}

func (f *fakeOutbox) Enqueue(_ context.Context, _ pgx.Tx, topic string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return nil
}

type fakeCatalog map[string]CardSummary

func (f fakeCatalog) Exists(_ context.Context, code string) bool {
	_, ok := f[code]
	return ok
}

func (f fakeCatalog) Describe(_ context.Context, code string) (CardSummary, error) {
	c, ok := f[code]
	if !ok {
		return CardSummary{}, errors.New("catalog: not found")
	}
	return c, nil
}
