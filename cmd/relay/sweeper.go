package main

import (
	"context"
	"log/slog"
	"time"
)

const sweepBatch = 100

type pendingSettler interface {
	SettlePending(ctx context.Context, limit int) (int, error)
}

// settlementSweeper retries reward settlement for completed listings whose
// post-commit settlement did not finish.
type settlementSweeper struct {
	trades   pendingSettler
	interval time.Duration
	logger   *slog.Logger
}

func (s *settlementSweeper) sweep(ctx context.Context) {
	n, err := s.trades.SettlePending(ctx, sweepBatch)
	if err != nil {
		s.logger.Error("settlement sweep failed", "settled", n, "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("settled pending listings", "count", n)
	}
}

func (s *settlementSweeper) Run(ctx context.Context) error {
	interval := s.interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
