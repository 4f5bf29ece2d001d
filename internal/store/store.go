// Package store defines the persistence interface for the market engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// Every state-changing engine operation runs inside InTx: the callback sees
// a Tx whose writes become visible all at once when it returns nil, and not
// at all when it returns an error.
package store

import (
	"context"
	"errors"

	"github.com/atmx/college-market/internal/model"
)

var (
	// ErrNotFound is returned (wrapped) when a record does not exist.
	ErrNotFound = errors.New("store: record not found")

	// ErrDuplicate is returned (wrapped) when a unique constraint is violated.
	ErrDuplicate = errors.New("store: duplicate record")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- User operations ---

	// CreateUser persists a new user and assigns its ID. Returns
	// model.ErrUsernameTaken or model.ErrEmailTaken on collision.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id int64) (*model.User, error)

	// GetUserByUsername retrieves a user by (lower-case) username.
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	// --- Market operations ---

	// CreateMarket persists a new market and assigns its ID.
	CreateMarket(ctx context.Context, m *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id int64) (*model.Market, error)

	// ListMarkets returns markets ordered by ID; an empty category returns all.
	ListMarkets(ctx context.Context, category model.Category) ([]model.Market, error)

	// DeleteMarket removes a market together with its positions and
	// transactions.
	DeleteMarket(ctx context.Context, id int64) error

	// --- Read-only queries ---

	// ListUserPositions returns all positions held by a user.
	ListUserPositions(ctx context.Context, userID int64) ([]model.Position, error)

	// ListUserTransactions returns a user's trades, newest first.
	ListUserTransactions(ctx context.Context, userID int64) ([]model.Transaction, error)

	// ListMarketTransactions returns a market's trades, oldest first.
	ListMarketTransactions(ctx context.Context, marketID int64) ([]model.Transaction, error)

	// --- Unit of work ---

	// InTx runs fn inside a single atomic transaction.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view handed to InTx callbacks. Lock* methods take
// an exclusive lock on the row that is held until the transaction ends.
// Callers lock the market before any user to keep a single lock order.
type Tx interface {
	// LockMarket loads a market and holds its write lock.
	LockMarket(ctx context.Context, id int64) (*model.Market, error)

	// LockUser loads a user and holds its write lock.
	LockUser(ctx context.Context, id int64) (*model.User, error)

	// UpdateMarket writes back prices, volume, status and resolution fields.
	UpdateMarket(ctx context.Context, m *model.Market) error

	// SetUserBalance overwrites a locked user's balance.
	SetUserBalance(ctx context.Context, userID, balance int64) error

	// GetPosition loads the position for key. Returns ErrNotFound if absent.
	GetPosition(ctx context.Context, key model.PositionKey) (*model.Position, error)

	// SavePosition inserts the position when ID is zero (assigning it) and
	// updates it otherwise.
	SavePosition(ctx context.Context, p *model.Position) error

	// InsertTransaction appends an immutable trade record and assigns its ID.
	InsertTransaction(ctx context.Context, t *model.Transaction) error

	// ListMarketPositions returns every position on a market ordered by ID.
	ListMarketPositions(ctx context.Context, marketID int64) ([]model.Position, error)
}

// validateMarket and validatePosition guard every write crossing into a store.
func validateMarket(m *model.Market) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.ResolvedOutcome != nil {
		if _, err := model.ParseOutcome(string(*m.ResolvedOutcome)); err != nil {
			return err
		}
	}
	return nil
}

func validatePosition(p *model.Position) error {
	if _, err := model.ParseOutcome(string(p.Outcome)); err != nil {
		return err
	}
	if p.Shares < 0 {
		return errors.New("store: position shares must be non-negative")
	}
	return nil
}

func validateTransaction(t *model.Transaction) error {
	if _, err := model.ParseOutcome(string(t.Outcome)); err != nil {
		return err
	}
	if _, err := model.ParseTransactionType(string(t.Type)); err != nil {
		return err
	}
	return nil
}
