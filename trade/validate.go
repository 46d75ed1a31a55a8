package trade

import (
	"context"
	"fmt"
	"strings"
)

const (
	MaxWantedCards    = 10
	maxCardCodeLength = 20
	contactCodeLength = 16
)

// ListingInput is the caller-supplied payload for CreateListing.
type ListingInput struct {
	OwnerID     string
	OfferedCode string
	WantedCodes []string
	ContactCode string
}

// ValidatedListing is a ListingInput after normalisation.
type ValidatedListing struct {
	OwnerID     string
	OfferedCode string
	WantedCodes []string
	ContactCode string
}

// RequestInput is the caller-supplied payload for CreateRequest.
type RequestInput struct {
	ListingID   string
	RequesterID string
	OfferedCode string
	ContactCode string
}

// ValidCardCode reports whether code is 1-20 ASCII letters, digits or hyphens.
func ValidCardCode(code string) bool {
	if len(code) == 0 || len(code) > maxCardCodeLength {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

// ValidContactCode reports whether code is exactly 16 ASCII digits.
func ValidContactCode(code string) bool {
	if len(code) != contactCodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DedupeCodes trims each code and drops repeats and blanks, keeping the
// first-seen order.
func DedupeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// ValidateNewListing checks every listing invariant that does not need the
// listing row. The contact lookup is the only I/O.
func ValidateNewListing(ctx context.Context, contacts ContactRegistry, in ListingInput) (ValidatedListing, error) {
	offered := strings.TrimSpace(in.OfferedCode)
	if !ValidCardCode(offered) {
		return ValidatedListing{}, ErrInvalidCardCodeFormat
	}
	for _, c := range in.WantedCodes {
		if c = strings.TrimSpace(c); c != "" && !ValidCardCode(c) {
			return ValidatedListing{}, ErrInvalidCardCodeFormat
		}
	}

	wanted := DedupeCodes(in.WantedCodes)
	if len(wanted) == 0 {
		return ValidatedListing{}, ErrEmptyWantList
	}
	if len(wanted) > MaxWantedCards {
		return ValidatedListing{}, ErrTooManyWantedCards
	}
	for _, c := range wanted {
		if c == offered {
			return ValidatedListing{}, ErrSelfTradeConflict
		}
	}

	contact := strings.TrimSpace(in.ContactCode)
	if err := checkContact(ctx, contacts, in.OwnerID, contact); err != nil {
		return ValidatedListing{}, err
	}

	return ValidatedListing{
		OwnerID:     in.OwnerID,
		OfferedCode: offered,
		WantedCodes: wanted,
		ContactCode: contact,
	}, nil
}

// ValidateNewRequest applies the card and contact checks to a request. The
// listing itself is checked under lock by CreateRequest.
func ValidateNewRequest(ctx context.Context, contacts ContactRegistry, in RequestInput) (RequestInput, error) {
	in.OfferedCode = strings.TrimSpace(in.OfferedCode)
	in.ContactCode = strings.TrimSpace(in.ContactCode)
	if !ValidCardCode(in.OfferedCode) {
		return RequestInput{}, ErrInvalidCardCodeFormat
	}
	if err := checkContact(ctx, contacts, in.RequesterID, in.ContactCode); err != nil {
		return RequestInput{}, err
	}
	return in, nil
}

func checkContact(ctx context.Context, contacts ContactRegistry, userID, code string) error {
	if !ValidContactCode(code) {
		return ErrUnregisteredContact
	}
	if contacts == nil {
		return ErrUnregisteredContact
	}
	ok, err := contacts.IsActive(ctx, userID, code)
	if err != nil {
		return fmt.Errorf("trade: contact lookup: %w", err)
	}
	if !ok {
		return ErrUnregisteredContact
	}
	return nil
}
