// Package contact manages the out-of-band contact codes users exchange to
// finish a trade.
package contact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"cardswap/trade"
)

var (
	ErrInvalidCode  = errors.New("contact: code must be exactly 16 digits")
	ErrNotFound     = errors.New("contact: code not found")
	ErrLabelTooLong = errors.New("contact: label exceeds 64 characters")
)

const maxLabelLength = 64

type Code struct {
	UserID    string    `json:"userId"`
	Code      string    `json:"code"`
	Label     string    `json:"label"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Registry manages the contact codes users trade with.
type Registry struct {
	db trade.Querier
}

// NewRegistry creates a contact-code registry.
func NewRegistry(db trade.Querier) *Registry {
	return &Registry{db: db}
}

const codeColumns = `user_id::text, code, label, active, created_at, updated_at`

// Register stores a code for a user. Registering an existing code reactivates
// it and replaces its label.
func (r *Registry) Register(ctx context.Context, userID, code, label string) (Code, error) {
	code = strings.TrimSpace(code)
	label = strings.TrimSpace(label)
	if !trade.ValidContactCode(code) {
		return Code{}, ErrInvalidCode
	}
	if len([]rune(label)) > maxLabelLength {
		return Code{}, ErrLabelTooLong
	}
	query := `
		INSERT INTO contact_codes (user_id, code, label, active)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (user_id, code) DO UPDATE
		SET label = EXCLUDED.label, active = true, updated_at = now()
		RETURNING ` + codeColumns
	c, err := scanCode(r.db.QueryRow(ctx, query, userID, code, label))
	if err != nil {
		return Code{}, fmt.Errorf("contact: register: %w", err)
	}
	return c, nil
}

// SetActive toggles a code the user already owns.
func (r *Registry) SetActive(ctx context.Context, userID, code string, active bool) (Code, error) {
	code = strings.TrimSpace(code)
	if !trade.ValidContactCode(code) {
		return Code{}, ErrInvalidCode
	}
	query := `
		UPDATE contact_codes
		SET active = $3, updated_at = now()
		WHERE user_id = $1 AND code = $2
		RETURNING ` + codeColumns
	c, err := scanCode(r.db.QueryRow(ctx, query, userID, code, active))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Code{}, ErrNotFound
		}
		return Code{}, fmt.Errorf("contact: set active: %w", err)
	}
	return c, nil
}

// List returns a user's codes, newest first.
func (r *Registry) List(ctx context.Context, userID string) ([]Code, error) {
	rows, err := r.db.Query(ctx, `SELECT `+codeColumns+` FROM contact_codes WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("contact: list: %w", err)
	}
	defer rows.Close()

	out := []Code{}
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("contact: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contact: iterate: %w", err)
	}
	return out, nil
}

// IsActive reports whether code is registered and active for userID.
func (r *Registry) IsActive(ctx context.Context, userID, code string) (bool, error) {
	if !trade.ValidContactCode(code) {
		return false, nil
	}
	var active bool
	err := r.db.QueryRow(ctx, `SELECT active FROM contact_codes WHERE user_id = $1 AND code = $2`, userID, code).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("contact: lookup: %w", err)
	}
	return active, nil
}

func scanCode(row pgx.Row) (Code, error) {
	var c Code
	err := row.Scan(&c.UserID, &c.Code, &c.Label, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
