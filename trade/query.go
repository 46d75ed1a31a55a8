package trade

import (
	"context"
	"math"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 30
	// MaxPage keeps (page-1)*size within a 32-bit OFFSET.
	MaxPage         = math.MaxInt32 / MaxPageSize
	enrichWorkers   = 8
)

// ListingSearch is one listing query. Caller is explicit so the facade holds
// no per-request state.
type ListingSearch struct {
	Bucket    string
	Caller    Actor
	CardCode  string
	Page      int
	PageSize  int
	SortKey   string
	SortOrder string
}

// RequestSearch is one request query. IncludeDeleted is honoured for admins
// on the "all" bucket only.
type RequestSearch struct {
	Bucket         string
	Caller         Actor
	ListingID      string
	CardCode       string
	IncludeDeleted bool
	Page           int
	PageSize       int
	SortKey        string
	SortOrder      string
}

// Page is one page of search results. Total counts every match.
type Page[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
}

type ListingSummary struct {
	Listing     Listing
	OfferedCard *CardSummary
}

type RequestSummary struct {
	Request     Request
	OfferedCard *CardSummary
}

// SearchListings returns one page of listings in the requested bucket.
func (s *Service) SearchListings(ctx context.Context, q ListingSearch) (Page[ListingSummary], error) {
	bucket, err := ParseBucket(q.Bucket)
	if err != nil {
		return Page[ListingSummary]{}, err
	}
	card, err := cardFilter(q.CardCode)
	if err != nil {
		return Page[ListingSummary]{}, err
	}
	page, size := NormalizePage(q.Page, q.PageSize)

	f := listingFilter{
		Statuses: bucket.ListingStatuses(q.Caller.Admin),
		CardCode: card,
		SortKey:  q.SortKey,
		Order:    normalizeOrder(q.SortOrder),
		Limit:    size,
		Offset:   (page - 1) * size,
	}
	if bucket.Mine {
		if q.Caller.UserID == "" {
			return Page[ListingSummary]{}, ErrUnauthorizedAccess
		}
		f.OwnerID = q.Caller.UserID
	}

	rows, total, err := s.repo.SearchListings(ctx, s.pool, f)
	if err != nil {
		return Page[ListingSummary]{}, err
	}

	items := make([]ListingSummary, len(rows))
	codes := make([]string, len(rows))
	for i, l := range rows {
		items[i].Listing = l
		codes[i] = l.OfferedCardCode
	}
	for i, card := range s.describeAll(ctx, codes) {
		items[i].OfferedCard = card
	}
	return Page[ListingSummary]{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// SearchRequests returns one page of requests in the requested bucket,
// optionally narrowed to a single listing.
func (s *Service) SearchRequests(ctx context.Context, q RequestSearch) (Page[RequestSummary], error) {
	bucket, err := ParseBucket(q.Bucket)
	if err != nil {
		return Page[RequestSummary]{}, err
	}
	card, err := cardFilter(q.CardCode)
	if err != nil {
		return Page[RequestSummary]{}, err
	}
	listingID := strings.TrimSpace(q.ListingID)
	if listingID != "" {
		if _, err := uuid.Parse(listingID); err != nil {
			return Page[RequestSummary]{}, ErrListingNotFound
		}
	}
	page, size := NormalizePage(q.Page, q.PageSize)

	f := requestFilter{
		Statuses:  bucket.RequestStatuses(q.Caller.Admin && q.IncludeDeleted),
		ListingID: listingID,
		CardCode:  card,
		SortKey:   q.SortKey,
		Order:     normalizeOrder(q.SortOrder),
		Limit:     size,
		Offset:    (page - 1) * size,
	}
	if bucket.Mine {
		if q.Caller.UserID == "" {
			return Page[RequestSummary]{}, ErrUnauthorizedAccess
		}
		f.RequesterID = q.Caller.UserID
	}

	rows, total, err := s.repo.SearchRequests(ctx, s.pool, f)
	if err != nil {
		return Page[RequestSummary]{}, err
	}

	items := make([]RequestSummary, len(rows))
	codes := make([]string, len(rows))
	for i, r := range rows {
		items[i].Request = r
		codes[i] = r.OfferedCardCode
	}
	for i, card := range s.describeAll(ctx, codes) {
		items[i].OfferedCard = card
	}
	return Page[RequestSummary]{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// describeAll looks up catalog summaries concurrently. A failed lookup leaves
// its slot nil.
func (s *Service) describeAll(ctx context.Context, codes []string) []*CardSummary {
	out := make([]*CardSummary, len(codes))
	if s.deps.Catalog == nil || len(codes) == 0 {
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichWorkers)
	for i, code := range codes {
		i, code := i, code
		g.Go(func() error {
			card, err := s.deps.Catalog.Describe(gctx, code)
			if err != nil {
				return nil
			}
			out[i] = &card
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// NormalizePage clamps paging input: page to [1, MaxPage], size to [1, 30]
// with 0 meaning the default.
func NormalizePage(page, size int) (int, int) {
	switch {
	case page < 1:
		page = 1
	case page > MaxPage:
		page = MaxPage
	}
	switch {
	case size == 0:
		size = DefaultPageSize
	case size < 1:
		size = 1
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return page, size
}

func normalizeOrder(order string) string {
	if strings.EqualFold(strings.TrimSpace(order), "asc") {
		return "ASC"
	}
	return "DESC"
}

func cardFilter(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code != "" && !ValidCardCode(code) {
		return "", ErrInvalidCardCodeFormat
	}
	return code, nil
}

func listingSortColumn(key string) string {
	switch key {
	case "updatedAt":
		return "updated_at"
	case "status":
		return "status"
	case "offeredCardCode":
		return "offered_card_code"
	case "createdAt":
		fallthrough
	default:
		return "created_at"
	}
}

func requestSortColumn(key string) string {
	return listingSortColumn(key)
}
