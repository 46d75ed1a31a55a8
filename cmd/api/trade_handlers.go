package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cardswap/trade"
)

type createListingBody struct {
	OfferedCardCode string   `json:"offeredCardCode"`
	WantedCardCodes []string `json:"wantedCardCodes"`
	ContactCode     string   `json:"contactCode"`
}

type createRequestBody struct {
	OfferedCardCode string `json:"offeredCardCode"`
	ContactCode     string `json:"contactCode"`
}

type selectBody struct {
	RequestID string `json:"requestId"`
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var body createListingBody
	if !decodeJSON(w, r, &body) {
		return
	}
	caller := actorFrom(r.Context())
	l, err := s.trades.CreateListing(r.Context(), caller, trade.ListingInput{
		OfferedCode: body.OfferedCardCode,
		WantedCodes: body.WantedCardCodes,
		ContactCode: body.ContactCode,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newListingView(l, nil, true))
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	caller := actorFrom(r.Context())
	page, err := s.trades.SearchListings(r.Context(), trade.ListingSearch{
		Bucket:    q.Get("status"),
		Caller:    caller,
		CardCode:  q.Get("card"),
		Page:      queryInt(r, "page"),
		PageSize:  queryInt(r, "pageSize"),
		SortKey:   q.Get("sort"),
		SortOrder: q.Get("order"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := pageView[listingView]{Items: make([]listingView, 0, len(page.Items)), Total: page.Total, Page: page.Page, PageSize: page.PageSize}
	for _, it := range page.Items {
		out.Items = append(out.Items, newListingView(it.Listing, it.OfferedCard, canSeeListingContact(caller, it.Listing)))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	caller := actorFrom(r.Context())
	l, err := s.trades.GetListing(r.Context(), caller, chi.URLParam(r, "listingID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reveal := canSeeListingContact(caller, l)
	if !reveal && l.SelectedRequestID != nil {
		reveal, err = s.isSelectedRequester(r.Context(), caller, l)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newListingView(l, nil, reveal))
}

// isSelectedRequester reports whether caller authored the listing's selected
// request.
func (s *Server) isSelectedRequester(ctx context.Context, caller trade.Actor, l trade.Listing) (bool, error) {
	page, err := s.trades.SearchRequests(ctx, trade.RequestSearch{
		Bucket:    "my-all",
		Caller:    caller,
		ListingID: l.ID,
		PageSize:  trade.MaxPageSize,
	})
	if err != nil {
		return false, err
	}
	for _, it := range page.Items {
		if selectedFor(l, it.Request.ID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	caller := actorFrom(r.Context())
	l, err := s.trades.CancelListing(r.Context(), caller, chi.URLParam(r, "listingID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListingView(l, nil, canSeeListingContact(caller, l)))
}

func (s *Server) handleSelectRequest(w http.ResponseWriter, r *http.Request) {
	var body selectBody
	if !decodeJSON(w, r, &body) {
		return
	}
	caller := actorFrom(r.Context())
	l, err := s.trades.SelectRequest(r.Context(), caller, chi.URLParam(r, "listingID"), body.RequestID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListingView(l, nil, canSeeListingContact(caller, l)))
}

func (s *Server) handleAdvanceListing(w http.ResponseWriter, r *http.Request) {
	caller := actorFrom(r.Context())
	l, err := s.trades.AdvanceListing(r.Context(), caller, chi.URLParam(r, "listingID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListingView(l, nil, canSeeListingContact(caller, l)))
}

type completionView struct {
	Listing         listingView `json:"listing"`
	Rewarded        bool        `json:"rewarded"`
	HistoryRecorded bool        `json:"historyRecorded"`
}

func (s *Server) handleCompleteListing(w http.ResponseWriter, r *http.Request) {
	caller := actorFrom(r.Context())
	c, err := s.trades.CompleteListing(r.Context(), caller, chi.URLParam(r, "listingID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completionView{
		Listing:         newListingView(c.Listing, nil, canSeeListingContact(caller, c.Listing)),
		Rewarded:        c.Rewarded,
		HistoryRecorded: c.HistoryRecorded,
	})
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}
	req, err := s.trades.CreateRequest(r.Context(), actorFrom(r.Context()), trade.RequestInput{
		ListingID:   chi.URLParam(r, "listingID"),
		OfferedCode: body.OfferedCardCode,
		ContactCode: body.ContactCode,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRequestView(req, nil, true))
}

// handleListingRequests lists requests on one listing. The listing owner sees
// the contact code of the selected request.
func (s *Server) handleListingRequests(w http.ResponseWriter, r *http.Request) {
	caller := actorFrom(r.Context())
	l, err := s.trades.GetListing(r.Context(), caller, chi.URLParam(r, "listingID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	page, err := s.trades.SearchRequests(r.Context(), trade.RequestSearch{
		Bucket:         q.Get("status"),
		Caller:         caller,
		ListingID:      l.ID,
		CardCode:       q.Get("card"),
		IncludeDeleted: queryBool(r, "includeDeleted"),
		Page:           queryInt(r, "page"),
		PageSize:       queryInt(r, "pageSize"),
		SortKey:        q.Get("sort"),
		SortOrder:      q.Get("order"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := pageView[requestView]{Items: make([]requestView, 0, len(page.Items)), Total: page.Total, Page: page.Page, PageSize: page.PageSize}
	for _, it := range page.Items {
		reveal := canSeeRequestContact(caller, it.Request) ||
			(caller.UserID == l.OwnerID && selectedFor(l, it.Request.ID))
		out.Items = append(out.Items, newRequestView(it.Request, it.OfferedCard, reveal))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSearchRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	caller := actorFrom(r.Context())
	page, err := s.trades.SearchRequests(r.Context(), trade.RequestSearch{
		Bucket:         q.Get("status"),
		Caller:         caller,
		CardCode:       q.Get("card"),
		IncludeDeleted: queryBool(r, "includeDeleted"),
		Page:           queryInt(r, "page"),
		PageSize:       queryInt(r, "pageSize"),
		SortKey:        q.Get("sort"),
		SortOrder:      q.Get("order"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := pageView[requestView]{Items: make([]requestView, 0, len(page.Items)), Total: page.Total, Page: page.Page, PageSize: page.PageSize}
	for _, it := range page.Items {
		out.Items = append(out.Items, newRequestView(it.Request, it.OfferedCard, canSeeRequestContact(caller, it.Request)))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdvanceRequest(w http.ResponseWriter, r *http.Request) {
	status, err := s.trades.AdvanceRequest(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "requestID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"advanced": true, "status": status.String()})
}

func (s *Server) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.trades.DeleteRequest(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "requestID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRequestView(req, nil, true))
}
