package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/stakemate/settlement-engine/internal/game"
	"github.com/stakemate/settlement-engine/internal/metrics"
	"github.com/stakemate/settlement-engine/internal/pricefeed"
	"github.com/stakemate/settlement-engine/internal/schedule"
	"github.com/stakemate/settlement-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Quote board ---
	board := pricefeed.NewStaticSource()

	// --- WebSocket hub ---
	wsHub := game.NewWSHub()
	go wsHub.Run()

	// --- Game service ---
	gameSvc := game.NewService(st, board, wsHub)

	// --- Portfolio re-projection on an interval ---
	refreshInterval := 60 * time.Second
	if raw := os.Getenv("PRICE_REFRESH_INTERVAL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			slog.Error("invalid PRICE_REFRESH_INTERVAL", "err", err)
			os.Exit(1)
		}
		refreshInterval = parsed
	}
	refresher := pricefeed.NewRefresher(st, board)
	refresher.OnUpdate = gameSvc.BroadcastValuation

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	refreshLoop := pricefeed.NewScheduler(refreshInterval, refresher.Refresh)
	go func() {
		if err := refreshLoop.Run(rootCtx); err != nil && err != context.Canceled {
			slog.Error("price refresh loop stopped", "err", err)
		}
	}()

	// --- Settlement scheduler ---
	specs := schedule.DefaultSpecs()
	if spec := os.Getenv("WEEKLY_SETTLE_CRON"); spec != "" {
		specs.Weekly = spec
	}
	if spec := os.Getenv("MONTHLY_SETTLE_CRON"); spec != "" {
		specs.Monthly = spec
	}
	if spec := os.Getenv("SEASON_SETTLE_CRON"); spec != "" {
		specs.Season = spec
	}
	settleSched, err := schedule.New(gameSvc, st, specs)
	if err != nil {
		slog.Error("invalid settlement cron spec", "err", err)
		os.Exit(1)
	}
	settleSched.Start()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"settlement-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time valuation and settlement updates.
		r.Get("/ws", wsHub.HandleWS)

		// Group management.
		r.Post("/groups", gameSvc.CreateGroup)
		r.Get("/groups/{groupID}", gameSvc.GetGroup)

		// Portfolios and standings.
		r.Post("/groups/{groupID}/portfolios", gameSvc.SubmitPortfolio)
		r.Get("/groups/{groupID}/portfolios/{userID}", gameSvc.GetPortfolio)
		r.Get("/groups/{groupID}/leaderboard", gameSvc.GetLeaderboard)

		// Settlement.
		r.Post("/groups/{groupID}/settle", gameSvc.SettlePeriod)
		r.Get("/groups/{groupID}/periods", gameSvc.ListGroupPeriods)
		r.Get("/periods/{periodID}", gameSvc.GetPeriod)
		r.Get("/periods/{periodID}/notification", gameSvc.GetNotification)

		// Payment tracking.
		r.Post("/periods/{periodID}/paid", gameSvc.MarkPeriodPaid)
		r.Post("/periods/{periodID}/payments/{userID}/ack", gameSvc.AcknowledgePayment)

		// Stats and quotes.
		r.Get("/users/{userID}/stats", gameSvc.GetUserStats)
		r.Post("/quotes", gameSvc.PostQuote)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("settlement-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	rootCancel()
	settleSched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down settlement-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("settlement-engine stopped")
}
