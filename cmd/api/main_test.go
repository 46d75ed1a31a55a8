package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cardswap/auth"
	"cardswap/catalog"
	"cardswap/contact"
	"cardswap/history"
	"cardswap/report"
	"cardswap/reputation"
	"cardswap/trade"
)

const (
	ownerID     = "11111111-1111-4111-8111-111111111111"
	requesterID = "22222222-2222-4222-8222-222222222222"
	listingID   = "33333333-3333-4333-8333-333333333333"
	requestID   = "44444444-4444-4444-8444-444444444444"
)

type stubAccounts struct {
	loginErr error
}

func (s *stubAccounts) Register(_ context.Context, req auth.RegisterRequest) (*auth.User, error) {
	return &auth.User{ID: ownerID, Email: req.Email, DisplayName: req.DisplayName, Role: auth.RoleUser}, nil
}

func (s *stubAccounts) Login(_ context.Context, _ auth.LoginRequest) (auth.LoginResult, error) {
	if s.loginErr != nil {
		return auth.LoginResult{}, s.loginErr
	}
	return auth.LoginResult{Token: "owner-token", User: auth.User{ID: ownerID}}, nil
}

func (s *stubAccounts) VerifyToken(token string) (auth.Claims, error) {
	switch token {
	case "owner-token":
		return auth.Claims{UserID: ownerID, Role: auth.RoleUser, DisplayName: "Ash"}, nil
	case "requester-token":
		return auth.Claims{UserID: requesterID, Role: auth.RoleUser, DisplayName: "Misty"}, nil
	case "admin-token":
		return auth.Claims{UserID: "admin", Role: auth.RoleAdmin}, nil
	}
	return auth.Claims{}, auth.ErrInvalidToken
}

type stubTrades struct {
	listing      trade.Listing
	requests     []trade.Request
	completion   trade.Completion
	err          error
	lastActor    trade.Actor
	lastListing  trade.ListingInput
	lastSearch   trade.ListingSearch
	lastRequests trade.RequestSearch
}

func (s *stubTrades) CreateListing(_ context.Context, a trade.Actor, in trade.ListingInput) (trade.Listing, error) {
	s.lastActor, s.lastListing = a, in
	if s.err != nil {
		return trade.Listing{}, s.err
	}
	l := s.listing
	l.OwnerID = a.UserID
	l.ContactCode = in.ContactCode
	return l, nil
}

func (s *stubTrades) GetListing(_ context.Context, a trade.Actor, _ string) (trade.Listing, error) {
	s.lastActor = a
	return s.listing, s.err
}

func (s *stubTrades) SelectRequest(_ context.Context, a trade.Actor, _, _ string) (trade.Listing, error) {
	s.lastActor = a
	return s.listing, s.err
}

func (s *stubTrades) AdvanceListing(_ context.Context, a trade.Actor, _ string) (trade.Listing, error) {
	s.lastActor = a
	return s.listing, s.err
}

func (s *stubTrades) CompleteListing(_ context.Context, a trade.Actor, _ string) (trade.Completion, error) {
	s.lastActor = a
	return s.completion, s.err
}

func (s *stubTrades) CancelListing(_ context.Context, a trade.Actor, _ string) (trade.Listing, error) {
	s.lastActor = a
	return s.listing, s.err
}

func (s *stubTrades) CreateRequest(_ context.Context, a trade.Actor, in trade.RequestInput) (trade.Request, error) {
	s.lastActor = a
	if s.err != nil {
		return trade.Request{}, s.err
	}
	return trade.Request{ID: requestID, ListingID: in.ListingID, RequesterID: a.UserID, OfferedCardCode: in.OfferedCode, ContactCode: in.ContactCode}, nil
}

func (s *stubTrades) AdvanceRequest(_ context.Context, a trade.Actor, _ string) (trade.RequestStatus, error) {
	s.lastActor = a
	return trade.RequestProcessing, s.err
}

func (s *stubTrades) DeleteRequest(_ context.Context, a trade.Actor, _ string) (trade.Request, error) {
	s.lastActor = a
	return trade.Request{ID: requestID, Status: trade.RequestDeleted}, s.err
}

func (s *stubTrades) SearchListings(_ context.Context, q trade.ListingSearch) (trade.Page[trade.ListingSummary], error) {
	s.lastSearch = q
	if s.err != nil {
		return trade.Page[trade.ListingSummary]{}, s.err
	}
	return trade.Page[trade.ListingSummary]{
		Items:    []trade.ListingSummary{{Listing: s.listing, OfferedCard: &trade.CardSummary{Code: "PIKA-001", Name: "Pikachu"}}},
		Total:    1,
		Page:     1,
		PageSize: 20,
	}, nil
}

func (s *stubTrades) SearchRequests(_ context.Context, q trade.RequestSearch) (trade.Page[trade.RequestSummary], error) {
	s.lastRequests = q
	out := trade.Page[trade.RequestSummary]{Page: 1, PageSize: 20}
	for _, r := range s.requests {
		if q.Bucket == "my-all" && r.RequesterID != q.Caller.UserID {
			continue
		}
		out.Items = append(out.Items, trade.RequestSummary{Request: r})
	}
	out.Total = len(out.Items)
	return out, nil
}

type stubReports struct{ err error }

func (s stubReports) File(_ context.Context, a trade.Actor, p report.FileParams) (report.Record, error) {
	return report.Record{ID: "r1", ListingID: p.ListingID, ReporterID: a.UserID, Reason: p.Reason}, s.err
}

func (s stubReports) List(context.Context, trade.Actor, report.Status) ([]report.Record, error) {
	return nil, s.err
}

func (s stubReports) Resolve(context.Context, trade.Actor, string) (report.Record, error) {
	return report.Record{}, s.err
}

type stubMisc struct{}

func (stubMisc) Get(_ context.Context, userID string) (reputation.Record, error) {
	return reputation.Record{UserID: userID, Points: 10}, nil
}

func (stubMisc) List(_ context.Context, listingID string) ([]history.Entry, error) {
	return []history.Entry{{ID: 1, ListingID: listingID, Message: "listing created"}}, nil
}

type stubContacts struct{}

func (stubContacts) Register(_ context.Context, userID, code, label string) (contact.Code, error) {
	if len(code) != 16 {
		return contact.Code{}, contact.ErrInvalidCode
	}
	return contact.Code{UserID: userID, Code: code, Label: label, Active: true}, nil
}

func (stubContacts) SetActive(_ context.Context, userID, code string, active bool) (contact.Code, error) {
	return contact.Code{UserID: userID, Code: code, Active: active}, nil
}

func (stubContacts) List(_ context.Context, userID string) ([]contact.Code, error) {
	return nil, nil
}

type stubCards struct{}

func (stubCards) Get(_ context.Context, code string) (catalog.Card, error) {
	if code != "PIKA-001" {
		return catalog.Card{}, catalog.ErrNotFound
	}
	return catalog.Card{Code: code, Name: "Pikachu"}, nil
}

func (stubCards) Search(_ context.Context, q string, _ int) ([]catalog.Card, error) {
	if strings.TrimSpace(q) == "" {
		return nil, catalog.ErrEmptyQuery
	}
	return []catalog.Card{{Code: "PIKA-001", Name: "Pikachu"}}, nil
}

func baseListing() trade.Listing {
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	return trade.Listing{
		ID:              listingID,
		OwnerID:         ownerID,
		OfferedCardCode: "PIKA-001",
		WantedCardCodes: []string{"CHAR-004"},
		ContactCode:     "1234567812345678",
		Status:          trade.ListingRequested,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func newTestServer(trades *stubTrades) (*Server, http.Handler) {
	s := &Server{
		trades:     trades,
		accounts:   &stubAccounts{},
		reputation: stubMisc{},
		history:    stubMisc{},
		contacts:   stubContacts{},
		reports:    stubReports{},
		cards:      stubCards{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return s, s.Routes()
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndAuthGate(t *testing.T) {
	_, h := newTestServer(&stubTrades{listing: baseListing()})

	if rec := do(t, h, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/listings", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/listings", "forged", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
	if p := decode[problem](t, rec); p.Code != "UNAUTHENTICATED" {
		t.Fatalf("unexpected problem %+v", p)
	}
}

func TestCreateListing(t *testing.T) {
	trades := &stubTrades{listing: baseListing()}
	_, h := newTestServer(trades)

	rec := do(t, h, http.MethodPost, "/api/listings", "owner-token",
		`{"offeredCardCode":"PIKA-001","wantedCardCodes":["CHAR-004"],"contactCode":"1234567812345678"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	v := decode[listingView](t, rec)
	if v.OwnerID != ownerID || v.ContactCode != "1234567812345678" || v.Status != "requested" {
		t.Fatalf("unexpected listing %+v", v)
	}
	if v.CreatedAt != "2026-05-01T09:30:00Z" {
		t.Fatalf("unexpected createdAt %q", v.CreatedAt)
	}
	if trades.lastActor.UserID != ownerID || trades.lastActor.DisplayName != "Ash" {
		t.Fatalf("actor not threaded from token: %+v", trades.lastActor)
	}
	if trades.lastListing.OfferedCode != "PIKA-001" || len(trades.lastListing.WantedCodes) != 1 {
		t.Fatalf("input not forwarded: %+v", trades.lastListing)
	}

	if rec := do(t, h, http.MethodPost, "/api/listings", "owner-token", `{"offered":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestTradeErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{trade.ErrTooManyWantedCards, http.StatusBadRequest, "TOO_MANY_WANTED_CARDS"},
		{trade.ErrListingNotFound, http.StatusNotFound, "LISTING_NOT_FOUND"},
		{trade.ErrTradeAlreadyInProgress, http.StatusConflict, "TRADE_ALREADY_IN_PROGRESS"},
		{trade.ErrUnauthorizedAccess, http.StatusForbidden, "UNAUTHORIZED_ACCESS"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			_, h := newTestServer(&stubTrades{err: tc.err})
			rec := do(t, h, http.MethodPost, "/api/listings/"+listingID+"/complete", "owner-token", "")
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			p := decode[problem](t, rec)
			if p.Code != tc.code {
				t.Fatalf("expected code %s, got %+v", tc.code, p)
			}
			if tc.code == "INTERNAL" && p.Message != "internal server error" {
				t.Fatalf("internal details leaked: %+v", p)
			}
		})
	}
}

func TestGetListing_ContactVisibility(t *testing.T) {
	l := baseListing()
	l.Status = trade.ListingSelected
	sel := requestID
	l.SelectedRequestID = &sel
	trades := &stubTrades{
		listing:  l,
		requests: []trade.Request{{ID: requestID, ListingID: listingID, RequesterID: requesterID, ContactCode: "8765432187654321"}},
	}
	_, h := newTestServer(trades)

	v := decode[listingView](t, do(t, h, http.MethodGet, "/api/listings/"+listingID, "requester-token", ""))
	if v.ContactCode != l.ContactCode {
		t.Fatalf("selected requester should see the owner's contact, got %+v", v)
	}
	if trades.lastRequests.ListingID != listingID || trades.lastRequests.Bucket != "my-all" {
		t.Fatalf("unexpected lookup %+v", trades.lastRequests)
	}

	trades.requests = nil
	v = decode[listingView](t, do(t, h, http.MethodGet, "/api/listings/"+listingID, "requester-token", ""))
	if v.ContactCode != "" {
		t.Fatalf("other users must not see the contact code, got %+v", v)
	}

	trades.requests = []trade.Request{{ID: requestID, ListingID: listingID, RequesterID: requesterID, ContactCode: "8765432187654321"}}
	page := decode[pageView[requestView]](t, do(t, h, http.MethodGet, "/api/listings/"+listingID+"/requests", "owner-token", ""))
	if len(page.Items) != 1 || page.Items[0].ContactCode != "8765432187654321" {
		t.Fatalf("owner should see the selected requester's contact, got %+v", page.Items)
	}
}

func TestListListings_ForwardsQuery(t *testing.T) {
	trades := &stubTrades{listing: baseListing()}
	_, h := newTestServer(trades)

	rec := do(t, h, http.MethodGet, "/api/listings?status=my-progress&card=PIKA-001&page=2&pageSize=50&sort=updatedAt&order=asc", "requester-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	q := trades.lastSearch
	if q.Bucket != "my-progress" || q.CardCode != "PIKA-001" || q.Page != 2 || q.PageSize != 50 || q.SortKey != "updatedAt" || q.SortOrder != "asc" {
		t.Fatalf("query not forwarded: %+v", q)
	}
	if q.Caller.UserID != requesterID {
		t.Fatalf("caller not forwarded: %+v", q.Caller)
	}
	page := decode[pageView[listingView]](t, rec)
	if page.Total != 1 || page.Items[0].OfferedCard == nil || page.Items[0].ContactCode != "" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestCompleteListing_ReportsSettlement(t *testing.T) {
	l := baseListing()
	l.Status = trade.ListingCompleted
	_, h := newTestServer(&stubTrades{completion: trade.Completion{Listing: l, Rewarded: false, HistoryRecorded: true}})

	rec := do(t, h, http.MethodPost, "/api/listings/"+listingID+"/complete", "owner-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	v := decode[completionView](t, rec)
	if v.Rewarded || !v.HistoryRecorded || v.Listing.Status != "completed" {
		t.Fatalf("unexpected completion %+v", v)
	}
}

func TestAdvanceAndDeleteRequest(t *testing.T) {
	_, h := newTestServer(&stubTrades{listing: baseListing()})

	rec := do(t, h, http.MethodPost, "/api/requests/"+requestID+"/advance", "owner-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("advance: expected 200, got %d", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["status"] != "processing" || body["advanced"] != true {
		t.Fatalf("unexpected body %v", body)
	}

	rec = do(t, h, http.MethodDelete, "/api/requests/"+requestID, "requester-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	if v := decode[requestView](t, rec); v.Status != "deleted" {
		t.Fatalf("unexpected request %+v", v)
	}
}

func TestSupportingRoutes(t *testing.T) {
	s, h := newTestServer(&stubTrades{listing: baseListing()})

	if rec := do(t, h, http.MethodGet, "/api/cards/MEW-151", "owner-token", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown card: expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/cards?q=", "owner-token", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty search: expected 400, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/contacts", "owner-token", `{"code":"123","label":"phone"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad contact: expected 400, got %d", rec.Code)
	}
	rec := do(t, h, http.MethodPatch, "/api/contacts/1234567812345678", "owner-token", `{"active":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate: expected 200, got %d", rec.Code)
	}
	if c := decode[contact.Code](t, rec); c.Active || c.UserID != ownerID {
		t.Fatalf("unexpected contact %+v", c)
	}
	rec = do(t, h, http.MethodGet, "/api/users/"+ownerID+"/reputation", "requester-token", "")
	if r := decode[reputation.Record](t, rec); r.UserID != ownerID || r.Points != 10 {
		t.Fatalf("unexpected reputation %+v", r)
	}
	if rec := do(t, h, http.MethodGet, "/api/listings/"+listingID+"/history", "owner-token", ""); rec.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", rec.Code)
	}

	s.reports = stubReports{err: report.ErrNoCounterpart}
	h = s.Routes()
	rec = do(t, h, http.MethodPost, "/api/reports", "owner-token", `{"listingId":"`+listingID+`","reason":"no show"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("report without counterpart: expected 409, got %d", rec.Code)
	}
}

func TestAuthRoutes(t *testing.T) {
	s, h := newTestServer(&stubTrades{})

	rec := do(t, h, http.MethodPost, "/auth/register", "", `{"email":"ash@example.com","password":"supersafe","displayName":"Ash"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", rec.Code)
	}
	if u := decode[userView](t, rec); u.Role != "user" || u.DisplayName != "Ash" {
		t.Fatalf("unexpected user %+v", u)
	}

	rec = do(t, h, http.MethodPost, "/auth/login", "", `{"email":"ash@example.com","password":"supersafe"}`)
	if body := decode[map[string]any](t, rec); body["token"] != "owner-token" {
		t.Fatalf("unexpected login body %v", body)
	}

	s.accounts = &stubAccounts{loginErr: auth.ErrInvalidCredentials}
	h = s.Routes()
	rec = do(t, h, http.MethodPost, "/auth/login", "", `{"email":"ash@example.com","password":"nope"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if p := decode[problem](t, rec); p.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("unexpected problem %+v", p)
	}
}
