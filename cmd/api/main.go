package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardswap/auth"
	"cardswap/catalog"
	"cardswap/config"
	"cardswap/contact"
	"cardswap/db"
	"cardswap/history"
	"cardswap/migrations"
	"cardswap/outbox"
	"cardswap/report"
	"cardswap/reputation"
	"cardswap/trade"
)

func main() {
	configPath := flag.String("config", os.Getenv("CARDSWAP_CONFIG"), "path to a TOML config file")
	migrate := flag.Bool("migrate", false, "apply embedded migrations before serving")
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

	if *migrate {
		if err := migrations.Apply(ctx, pool); err != nil {
			logger.Error("apply migrations", "error", err)
			os.Exit(1)
		}
	}

	ledger := reputation.NewLedger(pool)
	contacts := contact.NewRegistry(pool)
	historyLog := history.NewLog(pool)
	cards := catalog.NewService(catalog.NewRepository(pool), cfg.Catalog.CacheTTL)
	events := outbox.NewWriter()

	trades := trade.NewService(pool, trade.NewRepository(), trade.Collaborators{
		Contacts: contacts,
		Ledger:   ledger,
		History:  historyLog,
		Outbox:   events,
		Catalog:  cards,
	}).WithLogger(logger)

	accounts := auth.NewService(auth.NewRepository(pool), cfg.Auth.JWTSecret).
		WithTokenTTL(cfg.Auth.TokenTTL).
		WithAdminEmails(cfg.Auth.AdminEmails)

	server := &Server{
		trades:     trades,
		accounts:   accounts,
		reputation: ledger,
		history:    historyLog,
		contacts:   contacts,
		reports:    report.NewService(pool, report.NewRepository(), ledger, events),
		cards:      cards,
		logger:     logger,
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      server.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("cardswap api listening", "addr", cfg.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
