// Package catalog validates new market listings and builds the initial
// market record for them.
package catalog

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/atmx/college-market/internal/model"
)

// MaxCollegeNameLen bounds the display name of a market.
const MaxCollegeNameLen = 100

// Listing describes a market to be created.
type Listing struct {
	CollegeName string  `json:"college_name"`
	Description *string `json:"description,omitempty"`
	YesPrice    int64   `json:"yes_price"`
	NoPrice     int64   `json:"no_price"`
	Category    string  `json:"category"`
}

// NewMarket validates a listing and returns an open market with zero
// volume. The ID is assigned by the store.
func NewMarket(l Listing, now time.Time) (*model.Market, error) {
	name := strings.TrimSpace(l.CollegeName)
	if name == "" {
		return nil, model.Validation("college_name is required")
	}
	if utf8.RuneCountInString(name) > MaxCollegeNameLen {
		return nil, model.Validation(fmt.Sprintf("college_name must be at most %d characters", MaxCollegeNameLen))
	}

	if err := CheckPrices(l.YesPrice, l.NoPrice); err != nil {
		return nil, err
	}

	category, err := model.ParseCategory(l.Category)
	if err != nil {
		return nil, err
	}

	var desc *string
	if l.Description != nil {
		if d := strings.TrimSpace(*l.Description); d != "" {
			desc = &d
		}
	}

	return &model.Market{
		CollegeName: name,
		Description: desc,
		Category:    category,
		Status:      model.StatusOpen,
		YesPrice:    l.YesPrice,
		NoPrice:     l.NoPrice,
		CreatedAt:   now.UTC(),
	}, nil
}

// CheckPrices enforces both prices in [1, 99] and summing to 100.
func CheckPrices(yes, no int64) error {
	if yes < model.MinPrice || yes > model.MaxPrice {
		return fmt.Errorf("%w: yes_price must be between %d and %d, got %d",
			model.ErrInvalidPrice, model.MinPrice, model.MaxPrice, yes)
	}
	if no < model.MinPrice || no > model.MaxPrice {
		return fmt.Errorf("%w: no_price must be between %d and %d, got %d",
			model.ErrInvalidPrice, model.MinPrice, model.MaxPrice, no)
	}
	if yes+no != 100 {
		return fmt.Errorf("%w: yes_price and no_price must sum to 100, got %d", model.ErrInvalidPrice, yes+no)
	}
	return nil
}
