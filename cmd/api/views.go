package main

import (
	"time"

	"cardswap/trade"
)

type listingView struct {
	ID                string             `json:"id"`
	OwnerID           string             `json:"ownerId"`
	OwnerDisplayName  string             `json:"ownerDisplayName"`
	OfferedCardCode   string             `json:"offeredCardCode"`
	OfferedCard       *trade.CardSummary `json:"offeredCard,omitempty"`
	WantedCardCodes   []string           `json:"wantedCardCodes"`
	ContactCode       string             `json:"contactCode,omitempty"`
	Status            string             `json:"status"`
	SelectedRequestID *string            `json:"selectedRequestId,omitempty"`
	Rewarded          bool               `json:"rewarded"`
	CreatedAt         string             `json:"createdAt"`
	UpdatedAt         string             `json:"updatedAt"`
}

type requestView struct {
	ID                   string             `json:"id"`
	ListingID            string             `json:"listingId"`
	RequesterID          string             `json:"requesterId"`
	RequesterDisplayName string             `json:"requesterDisplayName"`
	OfferedCardCode      string             `json:"offeredCardCode"`
	OfferedCard          *trade.CardSummary `json:"offeredCard,omitempty"`
	ContactCode          string             `json:"contactCode,omitempty"`
	Status               string             `json:"status"`
	CreatedAt            string             `json:"createdAt"`
	UpdatedAt            string             `json:"updatedAt"`
}

type pageView[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// newListingView renders a listing. The contact code is only included when
// revealContact is set; callers decide who may see it.
func newListingView(l trade.Listing, card *trade.CardSummary, revealContact bool) listingView {
	v := listingView{
		ID:                l.ID,
		OwnerID:           l.OwnerID,
		OwnerDisplayName:  l.OwnerDisplayName,
		OfferedCardCode:   l.OfferedCardCode,
		OfferedCard:       card,
		WantedCardCodes:   l.WantedCardCodes,
		Status:            l.Status.String(),
		SelectedRequestID: l.SelectedRequestID,
		Rewarded:          l.RewardedAt != nil,
		CreatedAt:         l.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         l.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if v.WantedCardCodes == nil {
		v.WantedCardCodes = []string{}
	}
	if revealContact {
		v.ContactCode = l.ContactCode
	}
	return v
}

func newRequestView(r trade.Request, card *trade.CardSummary, revealContact bool) requestView {
	v := requestView{
		ID:                   r.ID,
		ListingID:            r.ListingID,
		RequesterID:          r.RequesterID,
		RequesterDisplayName: r.RequesterDisplayName,
		OfferedCardCode:      r.OfferedCardCode,
		OfferedCard:          card,
		Status:               r.Status.String(),
		CreatedAt:            r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if revealContact {
		v.ContactCode = r.ContactCode
	}
	return v
}

// Contact codes are exchanged once a request has been selected: each party
// then sees the other's code.
func selectedFor(l trade.Listing, requestID string) bool {
	if l.SelectedRequestID == nil || *l.SelectedRequestID != requestID {
		return false
	}
	switch l.Status {
	case trade.ListingSelected, trade.ListingProcessing, trade.ListingCompleted:
		return true
	default:
		return false
	}
}

func canSeeListingContact(caller trade.Actor, l trade.Listing) bool {
	return caller.Admin || caller.UserID == l.OwnerID
}

func canSeeRequestContact(caller trade.Actor, r trade.Request) bool {
	return caller.Admin || caller.UserID == r.RequesterID
}
