package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cardswap/trade"
)

// ErrNotFound signals the requested card does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Repository provides read access to the cards table.
type Repository struct {
	db trade.Querier
}

// NewRepository wires a pgx-backed repository implementation.
func NewRepository(db trade.Querier) *Repository {
	return &Repository{db: db}
}

// GetByCode fetches a card by its code.
func (r *Repository) GetByCode(ctx context.Context, code string) (Card, error) {
	const query = `
		SELECT code, name, element, rarity, series, image_url
		FROM cards
		WHERE code = $1
	`

	var card Card
	err := r.db.QueryRow(ctx, query, code).Scan(
		&card.Code,
		&card.Name,
		&card.Element,
		&card.Rarity,
		&card.Series,
		&card.ImageURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, ErrNotFound
		}
		return Card{}, fmt.Errorf("catalog: query by code: %w", err)
	}
	return card, nil
}

// List fetches up to limit cards ordered by name.
func (r *Repository) List(ctx context.Context, limit int) ([]Card, error) {
	if limit <= 0 {
		limit = 100
	}

	const query = `
		SELECT code, name, element, rarity, series, image_url
		FROM cards
		ORDER BY name ASC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	cards := make([]Card, 0, 64)
	for rows.Next() {
		var card Card
		if err := rows.Scan(&card.Code, &card.Name, &card.Element, &card.Rarity, &card.Series, &card.ImageURL); err != nil {
			return nil, fmt.Errorf("catalog: scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate cards: %w", err)
	}
	return cards, nil
}
