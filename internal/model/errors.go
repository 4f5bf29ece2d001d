package model

import "errors"

// Kind classifies an error for callers deciding how to surface it.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuth:
		return "auth"
	}
	return "internal"
}

// Error is a domain error. Two Errors match under errors.Is when their
// codes are equal, so wrapped sentinels still compare.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidOutcome  = newError(KindValidation, "invalid_outcome", "outcome must be YES or NO")
	ErrInvalidShares   = newError(KindValidation, "invalid_shares", "invalid share quantity")
	ErrInvalidPrice    = newError(KindValidation, "invalid_price", "invalid market prices")
	ErrInvalidCategory = newError(KindValidation, "invalid_category", "invalid market category")
	ErrUsernameTaken   = newError(KindValidation, "username_taken", "username already taken")
	ErrEmailTaken      = newError(KindValidation, "email_taken", "email already registered")

	ErrMarketNotFound = newError(KindNotFound, "market_not_found", "market not found")
	ErrUserNotFound   = newError(KindNotFound, "user_not_found", "user not found")

	ErrMarketNotOpen       = newError(KindConflict, "market_not_open", "market is not open for trading")
	ErrAlreadyResolved     = newError(KindConflict, "already_resolved", "market already resolved")
	ErrInsufficientBalance = newError(KindConflict, "insufficient_balance", "insufficient balance")
	ErrInvalidTransition   = newError(KindConflict, "invalid_transition", "market status transition not allowed")

	ErrInvalidCredentials = newError(KindAuth, "invalid_credentials", "invalid username or password")
	ErrInvalidToken       = newError(KindAuth, "invalid_token", "could not validate credentials")
)

// Validation returns a validation error with a caller-facing message.
func Validation(msg string) error {
	return newError(KindValidation, "validation", msg)
}

// KindOf reports the kind of the first domain error in err's chain,
// or KindInternal if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
