package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atmx/college-market/internal/auth"
	"github.com/atmx/college-market/internal/config"
	"github.com/atmx/college-market/internal/httpapi"
	"github.com/atmx/college-market/internal/limits"
	"github.com/atmx/college-market/internal/metrics"
	"github.com/atmx/college-market/internal/portfolio"
	"github.com/atmx/college-market/internal/settlement"
	"github.com/atmx/college-market/internal/store"
	"github.com/atmx/college-market/internal/stream"
	"github.com/atmx/college-market/internal/trade"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if err := cfg.ValidateServer(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	st, closeStore, err := store.Open(ctx, store.Options{
		DatabaseURL: cfg.DatabaseURL,
		RedisURL:    cfg.RedisURL,
		CacheTTL:    cfg.CacheTTL,
	})
	if err != nil {
		slog.Error("store init failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// --- Price stream ---
	hub := stream.NewHub()
	go hub.Run(ctx)

	// --- Services ---
	engine := trade.NewEngine(st, limits.NewTradeLimiter(cfg.MaxSharesPerTrade), hub)
	resolver := settlement.NewResolver(st, hub)
	pf := portfolio.NewService(st)
	authSvc := auth.NewService(st,
		auth.JWT{Secret: []byte(cfg.JWTSecret), TokenTTL: cfg.AccessTokenTTL},
		cfg.StartingBalanceCents,
		auth.WithHashCost(cfg.BcryptCost),
	)
	tradeSvc := trade.NewService(st, engine, resolver, pf)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(httpapi.CORS(cfg.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// The stream is long-lived, so it sits outside the request timeout.
		r.Get("/ws", hub.NewHandler(cfg.CORSOrigins))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Post("/auth/register", authSvc.HandleRegister)
			r.Post("/auth/login", authSvc.HandleLogin)

			r.Get("/markets", tradeSvc.ListMarkets)
			r.Get("/markets/{marketID}", tradeSvc.GetMarket)
			r.Get("/markets/{marketID}/price", tradeSvc.GetPrice)
			r.Get("/markets/{marketID}/history", tradeSvc.GetMarketHistory)

			r.Group(func(r chi.Router) {
				r.Use(authSvc.Middleware)

				r.Get("/auth/me", authSvc.HandleMe)
				r.Post("/markets", tradeSvc.CreateMarket)
				r.Post("/markets/{marketID}/resolve", tradeSvc.ResolveMarket)
				r.Post("/trade", tradeSvc.ExecuteTrade)
				r.Get("/portfolio", tradeSvc.GetPortfolio)
				r.Get("/transactions", tradeSvc.GetTransactions)
			})
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("college-market listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down college-market")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}
