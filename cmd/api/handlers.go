package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cardswap/auth"
	"cardswap/report"
)

type userView struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	CreatedAt   string `json:"createdAt"`
}

func newUserView(u auth.User) userView {
	return userView{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body auth.RegisterRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	user, err := s.accounts.Register(r.Context(), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserView(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body auth.LoginRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	res, err := s.accounts.Login(r.Context(), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": res.Token, "user": newUserView(res.User)})
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.reputation.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleHistory returns the audit trail of a listing the caller can see.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	l, err := s.trades.GetListing(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "listingID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.history.List(r.Context(), l.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

type contactBody struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

type contactPatch struct {
	Active *bool `json:"active"`
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	codes, err := s.contacts.List(r.Context(), actorFrom(r.Context()).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": codes})
}

func (s *Server) handleRegisterContact(w http.ResponseWriter, r *http.Request) {
	var body contactBody
	if !decodeJSON(w, r, &body) {
		return
	}
	code, err := s.contacts.Register(r.Context(), actorFrom(r.Context()).UserID, body.Code, body.Label)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, code)
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	var body contactPatch
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Active == nil {
		writeProblem(w, http.StatusBadRequest, "INVALID_JSON", "active is required")
		return
	}
	code, err := s.contacts.SetActive(r.Context(), actorFrom(r.Context()).UserID, chi.URLParam(r, "code"), *body.Active)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, code)
}

type reportBody struct {
	ListingID string  `json:"listingId"`
	RequestID *string `json:"requestId"`
	Reason    string  `json:"reason"`
}

func (s *Server) handleFileReport(w http.ResponseWriter, r *http.Request) {
	var body reportBody
	if !decodeJSON(w, r, &body) {
		return
	}
	rec, err := s.reports.File(r.Context(), actorFrom(r.Context()), report.FileParams{
		ListingID: body.ListingID,
		RequestID: body.RequestID,
		Reason:    body.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	recs, err := s.reports.List(r.Context(), actorFrom(r.Context()), report.Status(r.URL.Query().Get("status")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": recs})
}

func (s *Server) handleResolveReport(w http.ResponseWriter, r *http.Request) {
	rec, err := s.reports.Resolve(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "reportID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.cards.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleSearchCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.cards.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cards})
}
