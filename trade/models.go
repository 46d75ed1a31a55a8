package trade

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Listing is a posted offer of one card in exchange for one of several
// acceptable cards.
type Listing struct {
	ID                string
	OwnerID           string
	OwnerDisplayName  string
	OfferedCardCode   string
	WantedCardCodes   []string
	ContactCode       string
	Status            ListingStatus
	SelectedRequestID *string
	RewardedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Request is a counter-offer against a Listing made by a different user.
type Request struct {
	ID                   string
	ListingID            string
	RequesterID          string
	RequesterDisplayName string
	OfferedCardCode      string
	ContactCode          string
	Status               RequestStatus
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Actor is the authenticated caller. The transport builds it from a verified
// token and passes it into every operation.
type Actor struct {
	UserID      string
	DisplayName string
	Admin       bool
}

// Completion is the result of CompleteListing. Rewarded is false when the
// listing reached Completed but settlement is still pending. HistoryRecorded
// is false when the audit entry could not be stored after retries.
type Completion struct {
	Listing         Listing
	Rewarded        bool
	HistoryRecorded bool
}

// CardSummary is the catalog view used to enrich read responses.
type CardSummary struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Element  string `json:"element,omitempty"`
	Rarity   string `json:"rarity,omitempty"`
	Series   string `json:"series,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Credit is a reputation delta applied by settlement.
type Credit struct {
	Points          int64
	Experience      int64
	CompletedTrades int
}

// HistoryEntry is one audit line for a listing.
type HistoryEntry struct {
	ListingID string
	RequestID *string
	ActorID   string
	Message   string
}

const (
	RewardPoints     int64 = 10
	RewardExperience int64 = 20
)

// ContactRegistry answers whether a contact code is registered and active for
// a user.
type ContactRegistry interface {
	IsActive(ctx context.Context, userID, code string) (bool, error)
}

// CardCatalog is the read-only card lookup used for enrichment.
type CardCatalog interface {
	Exists(ctx context.Context, code string) bool
	Describe(ctx context.Context, code string) (CardSummary, error)
}

// ReputationLedger applies credits inside the caller's transaction.
type ReputationLedger interface {
	Credit(ctx context.Context, tx pgx.Tx, userID string, c Credit) error
}

// HistoryRecorder appends audit entries after a transition commits.
type HistoryRecorder interface {
	Record(ctx context.Context, e HistoryEntry) error
}

// OutboxWriter enqueues a domain event inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload any) error
}

const (
	TopicListingCreated   = "trade.listing.created"
	TopicListingSelected  = "trade.listing.selected"
	TopicListingAdvanced  = "trade.listing.processing"
	TopicListingCompleted = "trade.listing.completed"
	TopicListingDeleted   = "trade.listing.deleted"
	TopicRequestCreated   = "trade.request.created"
	TopicRequestDeleted   = "trade.request.deleted"
	TopicListingRewarded  = "trade.listing.rewarded"
)
