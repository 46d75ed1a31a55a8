// Package catalog is the read-only card lookup used to enrich trade views.
package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sahilm/fuzzy"

	"cardswap/trade"
)

const (
	cacheSize      = 2048
	indexLimit     = 10000
	maxSearchLimit = 50
)

var ErrEmptyQuery = errors.New("catalog: search query is empty")

// CardReader abstracts repository operations for the service.
type CardReader interface {
	GetByCode(ctx context.Context, code string) (Card, error)
	List(ctx context.Context, limit int) ([]Card, error)
}

type cachedCard struct {
	card     Card
	found    bool
	cachedAt time.Time
}

// Service serves card lookups through an LRU cache and fuzzy name search
// over a periodically refreshed index.
type Service struct {
	repo CardReader
	ttl  time.Duration
	now  func() time.Time

	cache *lru.Cache

	mu       sync.Mutex
	index    *searchIndex
	loadedAt time.Time
}

// NewService builds a Service. Entries older than ttl are reloaded.
func NewService(repo CardReader, ttl time.Duration) *Service {
	cache, _ := lru.New(cacheSize)
	return &Service{
		repo:  repo,
		ttl:   ttl,
		now:   time.Now,
		cache: cache,
	}
}

// Get returns a card, serving from cache while fresh. Misses are cached too.
func (s *Service) Get(ctx context.Context, code string) (Card, error) {
	code = strings.TrimSpace(code)
	if !trade.ValidCardCode(code) {
		return Card{}, ErrNotFound
	}
	if v, ok := s.cache.Get(code); ok {
		entry := v.(cachedCard)
		if s.now().Sub(entry.cachedAt) < s.ttl {
			if !entry.found {
				return Card{}, ErrNotFound
			}
			return entry.card, nil
		}
	}

	card, err := s.repo.GetByCode(ctx, code)
	switch {
	case err == nil:
		s.cache.Add(code, cachedCard{card: card, found: true, cachedAt: s.now()})
		return card, nil
	case errors.Is(err, ErrNotFound):
		s.cache.Add(code, cachedCard{cachedAt: s.now()})
		return Card{}, ErrNotFound
	default:
		return Card{}, err
	}
}

// Exists reports whether code names a catalog card. Lookup failures count
// as absent.
func (s *Service) Exists(ctx context.Context, code string) bool {
	_, err := s.Get(ctx, code)
	return err == nil
}

// Describe returns the enrichment summary for a card.
func (s *Service) Describe(ctx context.Context, code string) (trade.CardSummary, error) {
	card, err := s.Get(ctx, code)
	if err != nil {
		return trade.CardSummary{}, err
	}
	return card.Summary(), nil
}

// Search fuzzy-matches card names, best match first.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Card, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	index, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	matches := fuzzy.FindFrom(query, index)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]Card, len(matches))
	for i, m := range matches {
		out[i] = index.cards[m.Index]
	}
	return out, nil
}

func (s *Service) loadIndex(ctx context.Context) (*searchIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil && s.now().Sub(s.loadedAt) < s.ttl {
		return s.index, nil
	}
	cards, err := s.repo.List(ctx, indexLimit)
	if err != nil {
		return nil, err
	}
	index := &searchIndex{cards: cards, names: make([]string, len(cards))}
	for i, c := range cards {
		index.names[i] = strings.ToLower(c.Name)
	}
	s.index = index
	s.loadedAt = s.now()
	return index, nil
}
