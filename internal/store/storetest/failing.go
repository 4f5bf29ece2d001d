// Package storetest provides store wrappers for testing failure paths.
package storetest

import (
	"context"

	"github.com/atmx/college-market/internal/model"
	"github.com/atmx/college-market/internal/store"
)

// Method names accepted by FailingStore.FailOn.
const (
	LockMarket          = "LockMarket"
	LockUser            = "LockUser"
	UpdateMarket        = "UpdateMarket"
	SetUserBalance      = "SetUserBalance"
	GetPosition         = "GetPosition"
	SavePosition        = "SavePosition"
	InsertTransaction   = "InsertTransaction"
	ListMarketPositions = "ListMarketPositions"
)

// FailingStore wraps a Store so that the Tx method named FailOn returns Err
// on its After+1'th call within a transaction. Everything else delegates.
type FailingStore struct {
	store.Store
	FailOn string
	After  int
	Err    error
}

func (s *FailingStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.InTx(ctx, func(tx store.Tx) error {
		return fn(&failingTx{Tx: tx, s: s})
	})
}

type failingTx struct {
	store.Tx
	s     *FailingStore
	calls int
}

func (t *failingTx) fail(method string) error {
	if method != t.s.FailOn {
		return nil
	}
	t.calls++
	if t.calls > t.s.After {
		return t.s.Err
	}
	return nil
}

func (t *failingTx) LockMarket(ctx context.Context, id int64) (*model.Market, error) {
	if err := t.fail(LockMarket); err != nil {
		return nil, err
	}
	return t.Tx.LockMarket(ctx, id)
}

func (t *failingTx) LockUser(ctx context.Context, id int64) (*model.User, error) {
	if err := t.fail(LockUser); err != nil {
		return nil, err
	}
	return t.Tx.LockUser(ctx, id)
}

func (t *failingTx) UpdateMarket(ctx context.Context, m *model.Market) error {
	if err := t.fail(UpdateMarket); err != nil {
		return err
	}
	return t.Tx.UpdateMarket(ctx, m)
}

func (t *failingTx) SetUserBalance(ctx context.Context, userID, balance int64) error {
	if err := t.fail(SetUserBalance); err != nil {
		return err
	}
	return t.Tx.SetUserBalance(ctx, userID, balance)
}

func (t *failingTx) GetPosition(ctx context.Context, key model.PositionKey) (*model.Position, error) {
	if err := t.fail(GetPosition); err != nil {
		return nil, err
	}
	return t.Tx.GetPosition(ctx, key)
}

func (t *failingTx) SavePosition(ctx context.Context, p *model.Position) error {
	if err := t.fail(SavePosition); err != nil {
		return err
	}
	return t.Tx.SavePosition(ctx, p)
}

func (t *failingTx) InsertTransaction(ctx context.Context, tr *model.Transaction) error {
	if err := t.fail(InsertTransaction); err != nil {
		return err
	}
	return t.Tx.InsertTransaction(ctx, tr)
}

func (t *failingTx) ListMarketPositions(ctx context.Context, marketID int64) ([]model.Position, error) {
	if err := t.fail(ListMarketPositions); err != nil {
		return nil, err
	}
	return t.Tx.ListMarketPositions(ctx, marketID)
}
