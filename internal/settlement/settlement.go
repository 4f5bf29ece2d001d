// Package settlement moves markets through their lifecycle: closing them to
// trading and resolving them with a payout to every winning position.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/atmx/college-market/internal/metrics"
	"github.com/atmx/college-market/internal/model"
	"github.com/atmx/college-market/internal/store"
	"github.com/atmx/college-market/internal/stream"
)

// Broadcaster receives committed market events. *stream.Hub implements it.
type Broadcaster interface {
	Broadcast(msg stream.Message)
}

// Payout is the credit paid to one winning position.
type Payout struct {
	UserID     int64 `json:"user_id"`
	PositionID int64 `json:"position_id"`
	Shares     int64 `json:"shares"`
	Amount     int64 `json:"amount"`
}

// Resolution is the outcome of resolving a market.
type Resolution struct {
	Market    *model.Market `json:"market"`
	Payouts   []Payout      `json:"payouts"`
	TotalPaid int64         `json:"total_paid"`
}

// Resolver applies lifecycle transitions inside a single store transaction
// each. Holding the market lock for the whole resolution keeps trades from
// interleaving with it: a trade either commits first or sees the resolved
// status and is rejected.
type Resolver struct {
	store store.Store
	hub   Broadcaster // optional
	now   func() time.Time
}

// NewResolver creates a resolver. Pass nil for hub if broadcasting is not
// needed.
func NewResolver(st store.Store, hub Broadcaster) *Resolver {
	return &Resolver{
		store: st,
		hub:   hub,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Resolve marks the market resolved with the given outcome and credits
// PayoutPerShare for every winning share. Losing positions are kept
// unchanged. A market can be resolved only once.
func (r *Resolver) Resolve(ctx context.Context, marketID int64, outcome model.Outcome) (*Resolution, error) {
	if _, err := model.ParseOutcome(string(outcome)); err != nil {
		return nil, err
	}

	var res *Resolution
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		m, err := tx.LockMarket(ctx, marketID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return model.ErrMarketNotFound
			}
			return err
		}
		if m.Status == model.StatusResolved {
			return fmt.Errorf("%w: market %d", model.ErrAlreadyResolved, m.ID)
		}
		if !m.Status.CanBecome(model.StatusResolved) {
			return fmt.Errorf("%w: %s to %s", model.ErrInvalidTransition, m.Status, model.StatusResolved)
		}

		resolvedAt := r.now()
		m.Status = model.StatusResolved
		m.ResolvedOutcome = &outcome
		m.ResolutionDate = &resolvedAt
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}

		positions, err := tx.ListMarketPositions(ctx, m.ID)
		if err != nil {
			return err
		}
		payouts := Payouts(positions, outcome)

		var total int64
		for _, p := range payouts {
			u, err := tx.LockUser(ctx, p.UserID)
			if err != nil {
				return fmt.Errorf("credit user %d: %w", p.UserID, err)
			}
			if err := tx.SetUserBalance(ctx, u.ID, u.Balance+p.Amount); err != nil {
				return err
			}
			total += p.Amount
		}

		res = &Resolution{Market: m, Payouts: payouts, TotalPaid: total}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.MarketsResolved.WithLabelValues(string(outcome)).Inc()
	metrics.PayoutCents.Add(float64(res.TotalPaid))
	slog.Info("market resolved",
		"market", marketID,
		"outcome", outcome,
		"payouts", len(res.Payouts),
		"total_paid", res.TotalPaid,
	)

	if r.hub != nil {
		r.hub.Broadcast(stream.MarketResolved(res.Market))
	}
	return res, nil
}

// Payouts returns the credit owed to each position holding shares of the
// winning outcome, ordered by user ID so users are locked in a fixed order.
func Payouts(positions []model.Position, winner model.Outcome) []Payout {
	payouts := []Payout{}
	for _, p := range positions {
		if p.Shares <= 0 || p.Outcome != winner {
			continue
		}
		payouts = append(payouts, Payout{
			UserID:     p.UserID,
			PositionID: p.ID,
			Shares:     p.Shares,
			Amount:     p.Shares * model.PayoutPerShare,
		})
	}
	sort.Slice(payouts, func(i, j int) bool {
		if payouts[i].UserID != payouts[j].UserID {
			return payouts[i].UserID < payouts[j].UserID
		}
		return payouts[i].PositionID < payouts[j].PositionID
	})
	return payouts
}

// Close stops trading on an open market. It is the only way into the
// closed state.
func (r *Resolver) Close(ctx context.Context, marketID int64) (*model.Market, error) {
	var closed *model.Market
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		m, err := tx.LockMarket(ctx, marketID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return model.ErrMarketNotFound
			}
			return err
		}
		if !m.Status.CanBecome(model.StatusClosed) {
			return fmt.Errorf("%w: %s to %s", model.ErrInvalidTransition, m.Status, model.StatusClosed)
		}
		m.Status = model.StatusClosed
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}
		closed = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("market closed", "market", marketID)
	return closed, nil
}
