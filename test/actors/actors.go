// Package actors drives the trade coordinator from many goroutines against a
// real database.
package actors

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"cardswap/outbox"
	"cardswap/report"
	"cardswap/trade"
)

// Participant is a seeded user with an active contact code.
type Participant struct {
	Actor   trade.Actor
	Contact string
}

// Deps are the services the actors call.
type Deps struct {
	Trades  *trade.Service
	Reports *report.Service
	Relay   *outbox.Relay
	Cards   []string
}

// Stats counts outcomes. Internal errors are expected only from chaos.
type Stats struct {
	Ops       atomic.Int64
	Rejected  atomic.Int64
	Internal  atomic.Int64
	Completed atomic.Int64
	Published atomic.Int64
}

func (s *Stats) record(err error) {
	s.Ops.Add(1)
	switch {
	case err == nil:
	case trade.KindOf(err) != trade.KindInternal:
		s.Rejected.Add(1)
	case errors.Is(err, report.ErrForbidden), errors.Is(err, report.ErrNoCounterpart), errors.Is(err, report.ErrNotFound):
		s.Rejected.Add(1)
	default:
		s.Internal.Add(1)
	}
}

// Board is the shared set of listings actors pick targets from.
type Board struct {
	mu       sync.Mutex
	listings []trade.Listing
}

func (b *Board) Add(l trade.Listing) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listings = append(b.listings, l)
}

// Pick returns a random listing, optionally restricted to one owner.
func (b *Board) Pick(rng *rand.Rand, ownerID string) (trade.Listing, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var pool []trade.Listing
	for _, l := range b.listings {
		if ownerID == "" || l.OwnerID == ownerID {
			pool = append(pool, l)
		}
	}
	if len(pool) == 0 {
		return trade.Listing{}, false
	}
	return pool[rng.Intn(len(pool))], true
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// Trader performs a random mix of listing and request operations as me.
// Rejections by the coordinator are normal under contention.
func Trader(ctx context.Context, d Deps, me Participant, board *Board, stats *Stats, seed int64, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))
	for !stopped(ctx, stop) {
		switch n := rng.Intn(100); {
		case n < 10:
			stats.record(createListing(ctx, d, me, board, rng))
		case n < 40:
			stats.record(createRequest(ctx, d, me, board, rng))
		case n < 55:
			stats.record(selectRequest(ctx, d, me, board, rng))
		case n < 62:
			stats.record(advanceListing(ctx, d, me, board, rng))
		case n < 87:
			err := completeListing(ctx, d, me, board, rng, stats)
			stats.record(err)
		case n < 92:
			stats.record(deleteRequest(ctx, d, me, rng))
		case n < 96:
			stats.record(cancelListing(ctx, d, me, board, rng))
		default:
			stats.record(fileReport(ctx, d, me, board, rng))
		}
		time.Sleep(time.Duration(5+rng.Intn(20)) * time.Millisecond)
	}
	return nil
}

func pickCard(d Deps, rng *rand.Rand, not string) string {
	for {
		c := d.Cards[rng.Intn(len(d.Cards))]
		if c != not {
			return c
		}
	}
}

func createListing(ctx context.Context, d Deps, me Participant, board *Board, rng *rand.Rand) error {
	offered := pickCard(d, rng, "")
	l, err := d.Trades.CreateListing(ctx, me.Actor, trade.ListingInput{
		OfferedCode: offered,
		WantedCodes: []string{pickCard(d, rng, offered), pickCard(d, rng, offered)},
		ContactCode: me.Contact,
	})
	if err == nil {
		board.Add(l)
	}
	return err
}

func createRequest(ctx context.Context, d Deps, me Participant, board *Board, rng *rand.Rand) error {
	l, ok := board.Pick(rng, "")
	if !ok {
		return nil
	}
	_, err := d.Trades.CreateRequest(ctx, me.Actor, trade.RequestInput{
		ListingID:   l.ID,
		OfferedCode: pickCard(d, rng, ""),
		ContactCode: me.Contact,
	})
	return err
}

func selectRequest(ctx context.Context, d Deps, me Participant, board *Board, rng *rand.Rand) error {
	l, ok := board.Pick(rng, me.Actor.UserID)
	if !ok {
		return nil
	}
	page, err := d.Trades.SearchRequests(ctx, trade.RequestSearch{Bucket: "request", Caller: me.Actor, ListingID: l.ID})
	if err != nil || len(page.Items) == 0 {
		return err
	}
	r := page.Items[rng.Intn(len(page.Items))].Request
	_, err = d.Trades.SelectRequest(ctx, me.Actor, l.ID, r.ID)
	return err
}

func advanceListing(ctx context.Context, d Deps, me Participant, board *Board, rng *rand.Rand) error {
	l, ok := board.Pick(rng, me.Actor.UserID)
	if !ok {
		return nil
	}
	_, err := d.Trades.AdvanceListing(ctx, me.Actor, l.ID)
	return err
}

// completeListing targets any listing; both parties of a selected trade race
// here, and strangers are rejected.
func completeListing(ctx context.Context, d Deps, me Participant, board *Board, rng *rand.Rand, stats *Stats) error {
	l, ok := board.Pick(rng, "")
	if !ok {
		return nil
	}
	c, err := d.Trades.CompleteListing(ctx, me.Actor, l.ID)
	if err == nil && c.Listing.Status == trade.ListingCompleted {
		stats.Completed.Add(1)
	}
	return err
}

func deleteRequest(ctx context.Context, d Deps, me Participant, rng *rand.Rand) error {
	page, err := d.Trades.SearchRequests(ctx, trade.RequestSearch{Bucket: "my-request", Caller: me.Actor})
	if err != nil || len(page.Items) == 0 {
		return err
	}
	_, err = d.Trades.DeleteRequest(ctx, me.Actor, page.Items[rng.Intn(len(page.Items))].Request.ID)
	return err
}

func cancelListing(ctx context.Context, d Deps, me Participant, board *Board, rng *rand.Rand) error {
	l, ok := board.Pick(rng, me.Actor.UserID)
	if !ok {
		return nil
	}
	_, err := d.Trades.CancelListing(ctx, me.Actor, l.ID)
	return err
}

func fileReport(ctx context.Context, d Deps, me Participant, board *Board, rng *rand.Rand) error {
	if d.Reports == nil {
		return nil
	}
	l, ok := board.Pick(rng, "")
	if !ok {
		return nil
	}
	_, err := d.Reports.File(ctx, me.Actor, report.FileParams{ListingID: l.ID, Reason: "did not send the card"})
	return err
}

// RelayWorker drains the outbox until stopped.
func RelayWorker(ctx context.Context, d Deps, stats *Stats, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		n, err := d.Relay.ProcessBatch(ctx)
		if err == nil {
			stats.Published.Add(int64(n))
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

// Sweeper retries settlement of completed listings left unrewarded by chaos.
func Sweeper(ctx context.Context, d Deps, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		_, _ = d.Trades.SettlePending(ctx, 50)
		time.Sleep(250 * time.Millisecond)
	}
	return nil
}

// FlakyPublisher fails roughly one publish in ten.
type FlakyPublisher struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewFlakyPublisher(seed int64) *FlakyPublisher {
	return &FlakyPublisher{rng: rand.New(rand.NewSource(seed))}
}

func (f *FlakyPublisher) Publish(context.Context, outbox.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rng.Intn(10) == 0 {
		return errors.New("simulated broker failure")
	}
	return nil
}
