package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cardswap/auth"
	"cardswap/catalog"
	"cardswap/contact"
	"cardswap/history"
	"cardswap/report"
	"cardswap/reputation"
	"cardswap/trade"
)

type tradeService interface {
	CreateListing(ctx context.Context, actor trade.Actor, in trade.ListingInput) (trade.Listing, error)
	GetListing(ctx context.Context, actor trade.Actor, id string) (trade.Listing, error)
	SelectRequest(ctx context.Context, actor trade.Actor, listingID, requestID string) (trade.Listing, error)
	AdvanceListing(ctx context.Context, actor trade.Actor, listingID string) (trade.Listing, error)
	CompleteListing(ctx context.Context, actor trade.Actor, listingID string) (trade.Completion, error)
	CancelListing(ctx context.Context, actor trade.Actor, listingID string) (trade.Listing, error)
	CreateRequest(ctx context.Context, actor trade.Actor, in trade.RequestInput) (trade.Request, error)
	AdvanceRequest(ctx context.Context, actor trade.Actor, requestID string) (trade.RequestStatus, error)
	DeleteRequest(ctx context.Context, actor trade.Actor, requestID string) (trade.Request, error)
	SearchListings(ctx context.Context, q trade.ListingSearch) (trade.Page[trade.ListingSummary], error)
	SearchRequests(ctx context.Context, q trade.RequestSearch) (trade.Page[trade.RequestSummary], error)
}

type accountService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (auth.Claims, error)
}

type reputationReader interface {
	Get(ctx context.Context, userID string) (reputation.Record, error)
}

type historyReader interface {
	List(ctx context.Context, listingID string) ([]history.Entry, error)
}

type contactService interface {
	Register(ctx context.Context, userID, code, label string) (contact.Code, error)
	SetActive(ctx context.Context, userID, code string, active bool) (contact.Code, error)
	List(ctx context.Context, userID string) ([]contact.Code, error)
}

type reportService interface {
	File(ctx context.Context, reporter trade.Actor, params report.FileParams) (report.Record, error)
	List(ctx context.Context, caller trade.Actor, status report.Status) ([]report.Record, error)
	Resolve(ctx context.Context, caller trade.Actor, reportID string) (report.Record, error)
}

type cardService interface {
	Get(ctx context.Context, code string) (catalog.Card, error)
	Search(ctx context.Context, query string, limit int) ([]catalog.Card, error)
}

// Server wires the domain services to HTTP.
type Server struct {
	trades     tradeService
	accounts   accountService
	reputation reputationReader
	history    historyReader
	contacts   contactService
	reports    reportService
	cards      cardService
	logger     *slog.Logger
}

func (s *Server) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// Routes builds the router. Everything under /api requires a bearer token.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", s.handleListListings)
			r.Post("/", s.handleCreateListing)
			r.Route("/{listingID}", func(r chi.Router) {
				r.Get("/", s.handleGetListing)
				r.Delete("/", s.handleCancelListing)
				r.Get("/requests", s.handleListingRequests)
				r.Post("/requests", s.handleCreateRequest)
				r.Post("/select", s.handleSelectRequest)
				r.Post("/processing", s.handleAdvanceListing)
				r.Post("/complete", s.handleCompleteListing)
				r.Get("/history", s.handleHistory)
			})
		})

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", s.handleSearchRequests)
			r.Post("/{requestID}/advance", s.handleAdvanceRequest)
			r.Delete("/{requestID}", s.handleDeleteRequest)
		})

		r.Get("/users/{userID}/reputation", s.handleReputation)

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", s.handleListContacts)
			r.Post("/", s.handleRegisterContact)
			r.Patch("/{code}", s.handleUpdateContact)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", s.handleListReports)
			r.Post("/", s.handleFileReport)
			r.Patch("/{reportID}", s.handleResolveReport)
		})

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", s.handleSearchCards)
			r.Get("/{code}", s.handleGetCard)
		})
	})
	return r
}
