// Package portfolio computes read-only views over a user's positions and
// trade history. Nothing here mutates state.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/college-market/internal/model"
	"github.com/atmx/college-market/internal/store"
)

var hundred = decimal.NewFromInt(100)

// PositionView is a position valued at its market's live price.
type PositionView struct {
	ID          int64         `json:"id"`
	MarketID    int64         `json:"market_id"`
	Outcome     model.Outcome `json:"outcome"`
	Shares      int64         `json:"shares"`
	AverageCost int64         `json:"average_cost"`

	CurrentValue         int64   `json:"current_value"`
	CostBasis            int64   `json:"cost_basis"`
	UnrealizedPnL        int64   `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64 `json:"unrealized_pnl_percent"`

	MarketCollegeName string             `json:"market_college_name"`
	MarketYesPrice    int64              `json:"market_yes_price"`
	MarketNoPrice     int64              `json:"market_no_price"`
	MarketStatus      model.MarketStatus `json:"market_status"`
}

// NewPositionView values p against m, which must be p's market.
func NewPositionView(p model.Position, m *model.Market) PositionView {
	costBasis := p.Shares * p.AverageCost
	currentValue := p.Shares * m.PriceOf(p.Outcome)
	pnl := currentValue - costBasis

	return PositionView{
		ID:                   p.ID,
		MarketID:             p.MarketID,
		Outcome:              p.Outcome,
		Shares:               p.Shares,
		AverageCost:          p.AverageCost,
		CurrentValue:         currentValue,
		CostBasis:            costBasis,
		UnrealizedPnL:        pnl,
		UnrealizedPnLPercent: Percent(pnl, costBasis),
		MarketCollegeName:    m.CollegeName,
		MarketYesPrice:       m.YesPrice,
		MarketNoPrice:        m.NoPrice,
		MarketStatus:         m.Status,
	}
}

// Summary aggregates every open holding of one user.
type Summary struct {
	Balance                   int64          `json:"balance"`
	TotalInvested             int64          `json:"total_invested"`
	TotalCurrentValue         int64          `json:"total_current_value"`
	TotalUnrealizedPnL        int64          `json:"total_unrealized_pnl"`
	TotalUnrealizedPnLPercent float64        `json:"total_unrealized_pnl_percent"`
	Positions                 []PositionView `json:"positions"`
}

// Summarize totals the views holding at least one share. The percentage is
// computed from the totals, not averaged across positions.
func Summarize(balance int64, views []PositionView) Summary {
	s := Summary{Balance: balance, Positions: []PositionView{}}
	for _, v := range views {
		if v.Shares <= 0 {
			continue
		}
		s.TotalInvested += v.CostBasis
		s.TotalCurrentValue += v.CurrentValue
		s.Positions = append(s.Positions, v)
	}
	s.TotalUnrealizedPnL = s.TotalCurrentValue - s.TotalInvested
	s.TotalUnrealizedPnLPercent = Percent(s.TotalUnrealizedPnL, s.TotalInvested)
	return s
}

// Percent returns pnl / basis * 100 at full precision, or 0 when basis is
// not positive. Rounding is left to the presentation layer.
func Percent(pnl, basis int64) float64 {
	if basis <= 0 {
		return 0
	}
	return decimal.NewFromInt(pnl).
		Div(decimal.NewFromInt(basis)).
		Mul(hundred).
		InexactFloat64()
}

// TransactionView is a trade record labelled with its market's name.
type TransactionView struct {
	ID                int64                 `json:"id"`
	MarketID          int64                 `json:"market_id"`
	Type              model.TransactionType `json:"transaction_type"`
	Outcome           model.Outcome         `json:"outcome"`
	Shares            int64                 `json:"shares"`
	PricePerShare     int64                 `json:"price_per_share"`
	TotalCost         int64                 `json:"total_cost"`
	Timestamp         time.Time             `json:"timestamp"`
	MarketCollegeName string                `json:"market_college_name"`
}

// Service loads portfolio and history views from the store.
type Service struct {
	store store.Store
}

// NewService creates a portfolio service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Portfolio returns the user's balance and every position with shares,
// valued at live prices.
func (s *Service) Portfolio(ctx context.Context, userID int64) (*Summary, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, userErr(err)
	}

	positions, err := s.store.ListUserPositions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	markets := newMarketCache(s.store)
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		if p.Shares <= 0 {
			continue
		}
		m, err := markets.get(ctx, p.MarketID)
		if err != nil {
			return nil, err
		}
		views = append(views, NewPositionView(p, m))
	}

	summary := Summarize(user.Balance, views)
	return &summary, nil
}

// History returns the user's trades, newest first.
func (s *Service) History(ctx context.Context, userID int64) ([]TransactionView, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, userErr(err)
	}

	txs, err := s.store.ListUserTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	markets := newMarketCache(s.store)
	views := make([]TransactionView, 0, len(txs))
	for _, t := range txs {
		m, err := markets.get(ctx, t.MarketID)
		if err != nil {
			return nil, err
		}
		views = append(views, TransactionView{
			ID:                t.ID,
			MarketID:          t.MarketID,
			Type:              t.Type,
			Outcome:           t.Outcome,
			Shares:            t.Shares,
			PricePerShare:     t.PricePerShare,
			TotalCost:         t.TotalCost,
			Timestamp:         t.Timestamp,
			MarketCollegeName: m.CollegeName,
		})
	}
	return views, nil
}

func userErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return model.ErrUserNotFound
	}
	return fmt.Errorf("load user: %w", err)
}

// marketCache avoids reloading the same market for every row.
type marketCache struct {
	store store.Store
	byID  map[int64]*model.Market
}

func newMarketCache(st store.Store) *marketCache {
	return &marketCache{store: st, byID: make(map[int64]*model.Market)}
}

func (c *marketCache) get(ctx context.Context, id int64) (*model.Market, error) {
	if m, ok := c.byID[id]; ok {
		return m, nil
	}
	m, err := c.store.GetMarket(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load market %d: %w", id, err)
	}
	c.byID[id] = m
	return m, nil
}
