package trade

import (
	"errors"

	"cardswap/db"
)

// Kind classifies an Error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	default:
		return "internal"
	}
}

// Error is a coordinator failure with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return "trade: " + e.Message }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrEmptyWantList          = newError(KindValidation, "EMPTY_WANT_LIST", "wanted card list is empty")
	ErrTooManyWantedCards     = newError(KindValidation, "TOO_MANY_WANTED_CARDS", "at most 10 distinct wanted cards are allowed")
	ErrSelfTradeConflict      = newError(KindValidation, "SELF_TRADE_CONFLICT", "offered card cannot also be wanted")
	ErrInvalidCardCodeFormat  = newError(KindValidation, "INVALID_CARD_CODE_FORMAT", "card codes use letters, digits and hyphens, up to 20 characters")
	ErrUnregisteredContact    = newError(KindValidation, "UNREGISTERED_CONTACT_CODE", "contact code is not registered and active for this user")
	ErrInvalidSearchStatus    = newError(KindValidation, "INVALID_SEARCH_STATUS", "unknown status filter")
	ErrCannotRequestOwn       = newError(KindValidation, "CANNOT_REQUEST_OWN_LISTING", "cannot make a request on your own listing")
	ErrListingNotFound        = newError(KindNotFound, "LISTING_NOT_FOUND", "listing not found")
	ErrRequestNotFound        = newError(KindNotFound, "REQUEST_NOT_FOUND", "request not found")
	ErrInvalidTradeStatus     = newError(KindConflict, "INVALID_TRADE_STATUS", "operation not allowed in the current status")
	ErrListingNotOpen         = newError(KindConflict, "LISTING_NOT_OPEN", "listing is no longer accepting requests")
	ErrTradeAlreadyCompleted  = newError(KindConflict, "TRADE_ALREADY_COMPLETED", "trade is already completed")
	ErrTradeAlreadyInProgress = newError(KindConflict, "TRADE_ALREADY_IN_PROGRESS", "another change to this trade is in progress")
	ErrAlreadyDeleted         = newError(KindConflict, "ALREADY_DELETED", "already deleted")
	ErrAlreadyCompleted       = newError(KindConflict, "ALREADY_COMPLETED", "a completed request cannot be retracted")
	ErrUnauthorizedAccess     = newError(KindAuthorization, "UNAUTHORIZED_ACCESS", "caller is not allowed to change this trade")
)

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternal
}

// lockConflict rewrites Postgres lock and serialization failures into the
// coordinator's conflict error; other errors pass through untouched.
func lockConflict(err error) error {
	if db.IsLockConflict(err) {
		return ErrTradeAlreadyInProgress
	}
	return err
}
