package report

import (
	"time"

	"cardswap/trade"
)

// Status represents the lifecycle of a report.
type Status string

const (
	StatusUnderReview Status = "under_review"
	StatusResolved    Status = "resolved"
)

// Record mirrors the reports table.
type Record struct {
	ID             string     `json:"id"`
	ListingID      string     `json:"listingId"`
	RequestID      *string    `json:"requestId,omitempty"`
	ReporterID     string     `json:"reporterId"`
	ReportedUserID string     `json:"reportedUserId"`
	Reason         string     `json:"reason"`
	TradeStatus    string     `json:"tradeStatus"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

// Subject is the trade a report is filed against, read under lock.
type Subject struct {
	ListingID     string
	OwnerID       string
	ListingStatus trade.ListingStatus
	Selected      *Party
	Request       *Party
}

// Party is one request on the subject listing.
type Party struct {
	RequestID   string
	RequesterID string
	Status      trade.RequestStatus
}

type FileParams struct {
	ListingID string
	RequestID *string
	Reason    string
}

type Filter struct {
	ReporterID string
	Status     Status
}
