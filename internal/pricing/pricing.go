// Package pricing implements the linear price-impact rule used to move a
// binary market's prices after each buy.
//
// The rule:
//   - A trade executes at the traded outcome's current price.
//   - For every 100 shares bought the traded price rises by one cent
//     (at least one cent per trade), saturating at MaxPrice.
//   - The complementary price is forced to 100 - traded price, so the
//     two prices always sum to 100.
//
// All values are integer cents. Market prices are passed in, never stored.
package pricing

import (
	"fmt"

	"github.com/atmx/college-market/internal/model"
)

// SharesPerCent is the number of shares that moves a price by one cent.
const SharesPerCent = 100

// Quote is the result of pricing one buy against a market's current prices.
type Quote struct {
	Outcome        model.Outcome `json:"outcome"`
	Shares         int64         `json:"shares"`
	ExecutionPrice int64         `json:"execution_price"` // traded outcome's price before the trade
	TotalCost      int64         `json:"total_cost"`      // shares * execution price
	PriceDelta     int64         `json:"price_delta"`     // applied move of the traded price
	NewYesPrice    int64         `json:"new_yes_price"`
	NewNoPrice     int64         `json:"new_no_price"`
}

// NewPriceOf returns the post-trade price of the given outcome.
func (q Quote) NewPriceOf(o model.Outcome) int64 {
	if o == model.OutcomeYes {
		return q.NewYesPrice
	}
	return q.NewNoPrice
}

// Delta returns the raw price move for a buy of the given size:
// max(1, floor(shares / SharesPerCent)).
func Delta(shares int64) int64 {
	d := shares / SharesPerCent
	if d < 1 {
		return 1
	}
	return d
}

// Price computes the execution price, total cost and post-trade prices for
// buying shares of outcome at the given prices. It has no side effects.
//
// Share quantity bounds are enforced by the caller's trade policy; Price
// only rejects values it cannot price at all.
func Price(yesPrice, noPrice int64, outcome model.Outcome, shares int64) (Quote, error) {
	if _, err := model.ParseOutcome(string(outcome)); err != nil {
		return Quote{}, err
	}
	if shares <= 0 {
		return Quote{}, fmt.Errorf("%w: shares must be positive, got %d", model.ErrInvalidShares, shares)
	}

	current := yesPrice
	if outcome == model.OutcomeNo {
		current = noPrice
	}

	delta := Delta(shares)
	// Cap so the traded price never exceeds MaxPrice.
	if headroom := model.MaxPrice - current; delta > headroom {
		delta = max(headroom, 0)
	}
	traded := min(model.MaxPrice, current+delta)
	complement := 100 - traded

	q := Quote{
		Outcome:        outcome,
		Shares:         shares,
		ExecutionPrice: current,
		TotalCost:      shares * current,
		PriceDelta:     delta,
	}
	if outcome == model.OutcomeYes {
		q.NewYesPrice, q.NewNoPrice = traded, complement
	} else {
		q.NewYesPrice, q.NewNoPrice = complement, traded
	}
	return q, nil
}

// ForMarket prices a buy against the market's live prices.
func ForMarket(m *model.Market, outcome model.Outcome, shares int64) (Quote, error) {
	return Price(m.YesPrice, m.NoPrice, outcome, shares)
}
