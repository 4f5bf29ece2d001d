package trade

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/atmx/college-market/internal/auth"
	"github.com/atmx/college-market/internal/catalog"
	"github.com/atmx/college-market/internal/httpapi"
	"github.com/atmx/college-market/internal/model"
	"github.com/atmx/college-market/internal/portfolio"
	"github.com/atmx/college-market/internal/settlement"
	"github.com/atmx/college-market/internal/store"
)

// Service serves the market, trade, portfolio and resolution endpoints.
type Service struct {
	store     store.Store
	engine    *Engine
	resolver  *settlement.Resolver
	portfolio *portfolio.Service
}

// NewService wires the HTTP handlers to the engines.
func NewService(st store.Store, engine *Engine, resolver *settlement.Resolver, pf *portfolio.Service) *Service {
	return &Service{
		store:     st,
		engine:    engine,
		resolver:  resolver,
		portfolio: pf,
	}
}

// --- Request types ---

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	CollegeName string  `json:"college_name" validate:"required,max=100"`
	Description *string `json:"description"`
	YesPrice    int64   `json:"yes_price" validate:"min=1,max=99"`
	NoPrice     int64   `json:"no_price" validate:"min=1,max=99"`
	Category    string  `json:"category"`
}

// TradeRequest is the JSON body for POST /trade. The share ceiling is
// configurable and enforced by the engine.
type TradeRequest struct {
	MarketID int64  `json:"market_id" validate:"gt=0"`
	Outcome  string `json:"outcome" validate:"required,oneof=YES NO"`
	Shares   int64  `json:"shares" validate:"gt=0"`
}

// ResolveRequest is the JSON body for POST /markets/{marketID}/resolve.
type ResolveRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=YES NO"`
}

// PriceResponse is the body of GET /markets/{marketID}/price.
type PriceResponse struct {
	MarketID int64 `json:"market_id"`
	Yes      int64 `json:"yes"`
	No       int64 `json:"no"`
}

// --- HTTP Handlers ---

// CreateMarket handles POST /markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.WriteError(w, err)
		return
	}

	market, err := catalog.NewMarket(catalog.Listing{
		CollegeName: req.CollegeName,
		Description: req.Description,
		YesPrice:    req.YesPrice,
		NoPrice:     req.NoPrice,
		Category:    req.Category,
	}, time.Now())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	if err := s.store.CreateMarket(r.Context(), market); err != nil {
		httpapi.WriteError(w, err)
		return
	}

	slog.Info("market created",
		"id", market.ID,
		"college", market.CollegeName,
		"category", market.Category,
		"yes_price", market.YesPrice,
	)
	httpapi.WriteJSON(w, http.StatusCreated, market)
}

// ListMarkets handles GET /markets
// Optionally filtered by ?category=<uc|ivy|csu|international|other>.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	var category model.Category
	if c := r.URL.Query().Get("category"); c != "" {
		parsed, err := model.ParseCategory(c)
		if err != nil {
			httpapi.WriteError(w, err)
			return
		}
		category = parsed
	}

	markets, err := s.store.ListMarkets(r.Context(), category)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}
	httpapi.WriteJSON(w, http.StatusOK, markets)
}

// GetMarket handles GET /markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	market, err := s.loadMarket(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, market)
}

// GetPrice handles GET /markets/{marketID}/price
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	market, err := s.loadMarket(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, PriceResponse{MarketID: market.ID, Yes: market.YesPrice, No: market.NoPrice})
}

// GetMarketHistory handles GET /markets/{marketID}/history
// Returns the market's trades oldest first to reconstruct price history.
func (s *Service) GetMarketHistory(w http.ResponseWriter, r *http.Request) {
	market, err := s.loadMarket(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	entries, err := s.store.ListMarketTransactions(r.Context(), market.ID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []model.Transaction{}
	}
	httpapi.WriteJSON(w, http.StatusOK, entries)
}

// ResolveMarket handles POST /markets/{marketID}/resolve
func (s *Service) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.IDParam(r, "marketID")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	var req ResolveRequest
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.WriteError(w, err)
		return
	}

	res, err := s.resolver.Resolve(r.Context(), id, model.Outcome(req.Outcome))
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, res)
}

// ExecuteTrade handles POST /trade
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		httpapi.WriteError(w, model.ErrInvalidToken)
		return
	}

	var req TradeRequest
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.WriteError(w, err)
		return
	}

	res, err := s.engine.ExecuteTrade(r.Context(), userID, req.MarketID, model.Outcome(req.Outcome), req.Shares)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, res)
}

// GetPortfolio handles GET /portfolio
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		httpapi.WriteError(w, model.ErrInvalidToken)
		return
	}

	summary, err := s.portfolio.Portfolio(r.Context(), userID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, summary)
}

// GetTransactions handles GET /transactions
func (s *Service) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		httpapi.WriteError(w, model.ErrInvalidToken)
		return
	}

	views, err := s.portfolio.History(r.Context(), userID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, views)
}

func (s *Service) loadMarket(r *http.Request) (*model.Market, error) {
	id, err := httpapi.IDParam(r, "marketID")
	if err != nil {
		return nil, err
	}
	market, err := s.store.GetMarket(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, model.ErrMarketNotFound
		}
		return nil, err
	}
	return market, nil
}
