// Package model defines the core domain types shared across the market engine.
// All monetary values are integer cents.
//
// Records reference each other by integer ID only; the store resolves
// references by lookup.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// ParseOutcome accepts exactly "YES" or "NO".
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeYes, OutcomeNo:
		return Outcome(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
}

// Opposite returns the complementary outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// MarketStatus moves one way only: open → closed → resolved.
type MarketStatus string

const (
	StatusOpen     MarketStatus = "open"
	StatusClosed   MarketStatus = "closed"
	StatusResolved MarketStatus = "resolved"
)

func ParseMarketStatus(s string) (MarketStatus, error) {
	switch MarketStatus(s) {
	case StatusOpen, StatusClosed, StatusResolved:
		return MarketStatus(s), nil
	}
	return "", fmt.Errorf("invalid market status %q", s)
}

// CanBecome reports whether the status may transition to next.
func (s MarketStatus) CanBecome(next MarketStatus) bool {
	switch s {
	case StatusOpen:
		return next == StatusClosed || next == StatusResolved
	case StatusClosed:
		return next == StatusResolved
	}
	return false
}

// TransactionType of a ledger record. Only BUY is produced; SELL is reserved.
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(s) {
	case TransactionBuy, TransactionSell:
		return TransactionType(s), nil
	}
	return "", fmt.Errorf("invalid transaction type %q", s)
}

// Category groups markets for listing.
type Category string

const (
	CategoryUC            Category = "uc"
	CategoryIvy           Category = "ivy"
	CategoryCSU           Category = "csu"
	CategoryInternational Category = "international"
	CategoryOther         Category = "other"
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryUC, CategoryIvy, CategoryCSU, CategoryInternational, CategoryOther}

// ParseCategory is case-insensitive; the empty string means CategoryOther.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CategoryOther, nil
	}
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// User is an account holder. Balance is in cents and never negative.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	Balance        int64     `json:"balance"`
	CreatedAt      time.Time `json:"created_at"`
}

// Market is a binary YES/NO market on a college event.
// Invariant: YesPrice + NoPrice == 100, both within [MinPrice, MaxPrice].
type Market struct {
	ID              int64        `json:"id"`
	CollegeName     string       `json:"college_name"`
	Description     *string      `json:"description"`
	Category        Category     `json:"category"`
	Status          MarketStatus `json:"status"`
	YesPrice        int64        `json:"yes_price"`
	NoPrice         int64        `json:"no_price"`
	TotalYesShares  int64        `json:"total_yes_shares"`
	TotalNoShares   int64        `json:"total_no_shares"`
	ResolvedOutcome *Outcome     `json:"resolved_outcome"`
	ResolutionDate  *time.Time   `json:"resolution_date"`
	CreatedAt       time.Time    `json:"created_at"`
}

const (
	MinPrice = 1
	MaxPrice = 99
	// PayoutPerShare is credited for every winning share at resolution.
	PayoutPerShare = 100
)

// PriceOf returns the live price of the given outcome.
func (m *Market) PriceOf(o Outcome) int64 {
	if o == OutcomeYes {
		return m.YesPrice
	}
	return m.NoPrice
}

// Validate checks the invariants a persisted market must hold.
func (m *Market) Validate() error {
	if m.YesPrice < MinPrice || m.YesPrice > MaxPrice || m.NoPrice < MinPrice || m.NoPrice > MaxPrice {
		return fmt.Errorf("%w: prices must be within [%d, %d]", ErrInvalidPrice, MinPrice, MaxPrice)
	}
	if m.YesPrice+m.NoPrice != 100 {
		return fmt.Errorf("%w: yes_price and no_price must sum to 100", ErrInvalidPrice)
	}
	if _, err := ParseMarketStatus(string(m.Status)); err != nil {
		return err
	}
	if _, err := ParseCategory(string(m.Category)); err != nil {
		return err
	}
	if m.TotalYesShares < 0 || m.TotalNoShares < 0 {
		return fmt.Errorf("market %d: negative share totals", m.ID)
	}
	return nil
}

// Position is a user's holding in one outcome of one market.
// Unique per (UserID, MarketID, Outcome).
type Position struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	MarketID    int64   `json:"market_id"`
	Outcome     Outcome `json:"outcome"`
	Shares      int64   `json:"shares"`
	AverageCost int64   `json:"average_cost"` // cents per share, truncated weighted average
}

// PositionKey identifies the single position row for a user/market/outcome.
type PositionKey struct {
	UserID   int64
	MarketID int64
	Outcome  Outcome
}

func (p *Position) Key() PositionKey {
	return PositionKey{UserID: p.UserID, MarketID: p.MarketID, Outcome: p.Outcome}
}

// Transaction is an immutable record of one trade execution.
// Once created, these are never modified or deleted (except by market purge).
type Transaction struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	MarketID      int64           `json:"market_id"`
	Type          TransactionType `json:"transaction_type"`
	Outcome       Outcome         `json:"outcome"`
	Shares        int64           `json:"shares"`
	PricePerShare int64           `json:"price_per_share"`
	TotalCost     int64           `json:"total_cost"`
	Timestamp     time.Time       `json:"timestamp"`
}
