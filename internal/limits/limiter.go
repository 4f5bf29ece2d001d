// Package limits enforces the trade-size policy applied before any trade is
// priced: a buy must be for a positive whole number of shares no larger than
// the configured per-trade maximum.
package limits

import (
	"fmt"

	"github.com/atmx/college-market/internal/model"
)

// DefaultMaxShares is the reference per-trade maximum.
const DefaultMaxShares = 10000

// TradeLimiter holds the per-trade share bounds.
type TradeLimiter struct {
	// MaxShares is the largest share quantity accepted in a single trade.
	MaxShares int64
}

// NewTradeLimiter creates a limiter. A non-positive maximum falls back to
// DefaultMaxShares.
func NewTradeLimiter(maxShares int64) *TradeLimiter {
	if maxShares < 1 {
		maxShares = DefaultMaxShares
	}
	return &TradeLimiter{MaxShares: maxShares}
}

// CheckShares returns nil if shares is within [1, MaxShares], or an
// ErrInvalidShares describing the violation.
func (l *TradeLimiter) CheckShares(shares int64) error {
	if shares < 1 {
		return fmt.Errorf("%w: shares must be positive, got %d", model.ErrInvalidShares, shares)
	}
	if shares > l.MaxShares {
		return fmt.Errorf("%w: at most %d shares per trade, got %d", model.ErrInvalidShares, l.MaxShares, shares)
	}
	return nil
}
