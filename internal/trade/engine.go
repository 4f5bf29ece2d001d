// Package trade executes buys against binary markets and serves the market,
// trading, portfolio and resolution HTTP endpoints.
//
// All monetary values are integer cents.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atmx/college-market/internal/limits"
	"github.com/atmx/college-market/internal/metrics"
	"github.com/atmx/college-market/internal/model"
	"github.com/atmx/college-market/internal/portfolio"
	"github.com/atmx/college-market/internal/pricing"
	"github.com/atmx/college-market/internal/store"
	"github.com/atmx/college-market/internal/stream"
)

// Broadcaster receives committed market events. *stream.Hub implements it.
type Broadcaster interface {
	Broadcast(msg stream.Message)
}

// Result describes a committed trade.
type Result struct {
	Success       bool                   `json:"success"`
	Message       string                 `json:"message"`
	TransactionID int64                  `json:"transaction_id"`
	Shares        int64                  `json:"shares"`
	PricePerShare int64                  `json:"price_per_share"`
	TotalCost     int64                  `json:"total_cost"`
	PriceDelta    int64                  `json:"price_delta"`
	NewBalance    int64                  `json:"new_balance"`
	Position      portfolio.PositionView `json:"position"`
}

// Engine runs each trade as one store transaction. The market row is locked
// before the user row, so concurrent trades on a market serialize on it and
// a user's balance check and debit cannot interleave with another trade.
type Engine struct {
	store   store.Store
	limiter *limits.TradeLimiter
	hub     Broadcaster // optional
	now     func() time.Time
}

// NewEngine creates a trading engine. Pass nil for hub if broadcasting is
// not needed.
func NewEngine(st store.Store, limiter *limits.TradeLimiter, hub Broadcaster) *Engine {
	if limiter == nil {
		limiter = limits.NewTradeLimiter(limits.DefaultMaxShares)
	}
	return &Engine{
		store:   st,
		limiter: limiter,
		hub:     hub,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteTrade buys shares of outcome in a market for a user at the
// outcome's current price, then moves the market's prices.
func (e *Engine) ExecuteTrade(ctx context.Context, userID, marketID int64, outcome model.Outcome, shares int64) (*Result, error) {
	start := time.Now()

	res, market, err := e.execute(ctx, userID, marketID, outcome, shares)
	if err != nil {
		var de *model.Error
		if errors.As(err, &de) {
			metrics.TradeRejections.WithLabelValues(de.Code).Inc()
		} else {
			slog.Error("trade failed", "user", userID, "market", marketID, "error", err)
		}
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(string(outcome)).Inc()
	metrics.TradeVolumeCents.WithLabelValues(string(outcome)).Add(float64(res.TotalCost))
	metrics.TradeLatency.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"transaction_id", res.TransactionID,
		"user", userID,
		"market", marketID,
		"outcome", outcome,
		"shares", shares,
		"price", res.PricePerShare,
		"cost", res.TotalCost,
		"new_yes_price", market.YesPrice,
		"new_no_price", market.NoPrice,
	)

	if e.hub != nil {
		e.hub.Broadcast(stream.TradeExecuted(market, outcome, shares))
	}
	return res, nil
}

func (e *Engine) execute(ctx context.Context, userID, marketID int64, outcome model.Outcome, shares int64) (*Result, *model.Market, error) {
	if _, err := model.ParseOutcome(string(outcome)); err != nil {
		return nil, nil, err
	}
	if err := e.limiter.CheckShares(shares); err != nil {
		return nil, nil, err
	}

	var (
		res    *Result
		market *model.Market
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		m, err := tx.LockMarket(ctx, marketID)
		if err != nil {
			return notFound(err, model.ErrMarketNotFound)
		}
		if m.Status != model.StatusOpen {
			return fmt.Errorf("%w: market %d is %s", model.ErrMarketNotOpen, m.ID, m.Status)
		}

		quote, err := pricing.ForMarket(m, outcome, shares)
		if err != nil {
			return err
		}

		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return notFound(err, model.ErrUserNotFound)
		}
		if user.Balance < quote.TotalCost {
			return fmt.Errorf("%w: need %d cents, have %d cents",
				model.ErrInsufficientBalance, quote.TotalCost, user.Balance)
		}
		newBalance := user.Balance - quote.TotalCost
		if err := tx.SetUserBalance(ctx, user.ID, newBalance); err != nil {
			return err
		}

		pos, err := tx.GetPosition(ctx, model.PositionKey{UserID: user.ID, MarketID: m.ID, Outcome: outcome})
		switch {
		case errors.Is(err, store.ErrNotFound):
			pos = &model.Position{
				UserID:      user.ID,
				MarketID:    m.ID,
				Outcome:     outcome,
				Shares:      shares,
				AverageCost: quote.ExecutionPrice,
			}
		case err != nil:
			return err
		default:
			pos.AverageCost = AverageCost(pos.Shares, pos.AverageCost, shares, quote.ExecutionPrice)
			pos.Shares += shares
		}
		if err := tx.SavePosition(ctx, pos); err != nil {
			return err
		}

		record := &model.Transaction{
			UserID:        user.ID,
			MarketID:      m.ID,
			Type:          model.TransactionBuy,
			Outcome:       outcome,
			Shares:        shares,
			PricePerShare: quote.ExecutionPrice,
			TotalCost:     quote.TotalCost,
			Timestamp:     e.now(),
		}
		if err := tx.InsertTransaction(ctx, record); err != nil {
			return err
		}

		if outcome == model.OutcomeYes {
			m.TotalYesShares += shares
		} else {
			m.TotalNoShares += shares
		}
		m.YesPrice, m.NoPrice = quote.NewYesPrice, quote.NewNoPrice
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}

		market = m
		res = &Result{
			Success:       true,
			Message:       fmt.Sprintf("Successfully bought %d %s shares", shares, outcome),
			TransactionID: record.ID,
			Shares:        shares,
			PricePerShare: quote.ExecutionPrice,
			TotalCost:     quote.TotalCost,
			PriceDelta:    quote.PriceDelta,
			NewBalance:    newBalance,
			Position:      portfolio.NewPositionView(*pos, m),
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res, market, nil
}

// AverageCost returns the weighted average cost per share after adding
// addShares at addPrice to a holding of oldShares at oldAvg. The division
// truncates.
func AverageCost(oldShares, oldAvg, addShares, addPrice int64) int64 {
	total := oldShares + addShares
	if total == 0 {
		return 0
	}
	return (oldShares*oldAvg + addShares*addPrice) / total
}

// notFound replaces a store miss with the given domain error.
func notFound(err error, domainErr error) error {
	if errors.Is(err, store.ErrNotFound) {
		return domainErr
	}
	return err
}
