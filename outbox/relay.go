package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cardswap/db"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardswap_outbox_published_total",
		Help: "Outbox events delivered to the publisher, labeled by topic",
	}, []string{"topic"})

	deadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardswap_outbox_dead_total",
		Help: "Outbox events given up on after exhausting their attempts",
	})
)

const (
	defaultBatchSize   = 50
	defaultMaxAttempts = 5
)

// Relay moves pending outbox rows to a Publisher. Each batch runs in one
// transaction so a crashed relay leaves its rows pending.
type Relay struct {
	pool        db.TxBeginner
	repo        Repository
	publisher   Publisher
	logger      *slog.Logger
	batchSize   int
	maxAttempts int
}

// NewRelay creates a relay with a batch of 50 and 5 attempts per message.
func NewRelay(pool db.TxBeginner, repo Repository, publisher Publisher) *Relay {
	return &Relay{
		pool:        pool,
		repo:        repo,
		publisher:   publisher,
		logger:      slog.Default(),
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
	}
}

func (r *Relay) WithLogger(logger *slog.Logger) *Relay {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithLimits overrides the batch size and the attempts before a row is
// marked dead. Non-positive values keep the defaults.
func (r *Relay) WithLimits(batchSize, maxAttempts int) *Relay {
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if maxAttempts > 0 {
		r.maxAttempts = maxAttempts
	}
	return r
}

// ProcessBatch claims one batch and publishes it. It returns the number of
// rows delivered.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	msgs, err := r.repo.ClaimPending(ctx, tx, r.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, m := range msgs {
		if perr := r.publisher.Publish(ctx, m); perr != nil {
			dead := m.Attempts+1 >= r.maxAttempts
			if err := r.repo.MarkFailed(ctx, tx, m.ID, dead); err != nil {
				return 0, err
			}
			if dead {
				deadTotal.Inc()
			}
			r.logger.Warn("outbox publish failed", "id", m.ID, "topic", m.Topic, "attempt", m.Attempts+1, "dead", dead, "error", perr)
			continue
		}
		if err := r.repo.MarkProcessed(ctx, tx, m.ID); err != nil {
			return 0, err
		}
		publishedTotal.WithLabelValues(m.Topic).Inc()
		delivered++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("outbox: commit: %w", err)
	}
	return delivered, nil
}

// Run drains the outbox every interval until ctx is cancelled. A full batch
// is followed immediately by another one.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for {
			n, err := r.ProcessBatch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("outbox batch failed", "error", err)
				break
			}
			if n < r.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
