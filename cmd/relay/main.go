package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"cardswap/config"
	"cardswap/contact"
	"cardswap/db"
	"cardswap/history"
	"cardswap/outbox"
	"cardswap/reputation"
	"cardswap/trade"
)

func main() {
	configPath := flag.String("config", os.Getenv("CARDSWAP_CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Log.Logger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DB.URL, db.PoolOptions{MaxConns: cfg.DB.MaxConns})
	if err != nil {
		logger.Error("bootstrap database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var publisher outbox.Publisher = outbox.LogPublisher{Logger: logger}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := outbox.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
	} else {
		logger.Warn("no kafka brokers configured, events will only be logged")
	}

	relay := outbox.NewRelay(pool, outbox.NewRepository(), publisher).
		WithLogger(logger).
		WithLimits(cfg.Relay.BatchSize, cfg.Relay.MaxAttempts)

	trades := trade.NewService(pool, trade.NewRepository(), trade.Collaborators{
		Contacts: contact.NewRegistry(pool),
		Ledger:   reputation.NewLedger(pool),
		History:  history.NewLog(pool),
		Outbox:   outbox.NewWriter(),
	}).WithLogger(logger)

	sweeper := &settlementSweeper{trades: trades, interval: cfg.Relay.SettleInterval, logger: logger}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx, cfg.Relay.Interval) })
	g.Go(func() error { return sweeper.Run(gctx) })

	logger.Info("cardswap relay started", "interval", cfg.Relay.Interval, "settle_interval", cfg.Relay.SettleInterval)
	if err := g.Wait(); err != nil {
		logger.Error("relay stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}
