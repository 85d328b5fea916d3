package pricefeed

import (
	"context"
	"log/slog"
	"time"

	"github.com/stakemate/settlement-engine/internal/metrics"
	"github.com/stakemate/settlement-engine/internal/model"
	"github.com/stakemate/settlement-engine/internal/store"
	"github.com/stakemate/settlement-engine/internal/valuation"
)

// Refresher re-projects every stored portfolio against one quote snapshot.
// Each portfolio is independent; a failing one is logged and skipped so a
// single bad row cannot stall the tick.
type Refresher struct {
	store  store.Store
	source Source

	// OnUpdate, when set, is called with each re-projected portfolio.
	// Used to broadcast valuation changes to WebSocket clients.
	OnUpdate func(model.Portfolio)
}

// NewRefresher creates a refresher over a store and a quote source.
func NewRefresher(st store.Store, source Source) *Refresher {
	return &Refresher{store: st, source: source}
}

// Refresh runs one re-projection pass. Called by the Scheduler on each tick.
func (r *Refresher) Refresh(ctx context.Context) error {
	quotes, err := r.source.Snapshot(ctx)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		return nil
	}

	portfolios, err := r.store.ListAllPortfolios(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, p := range portfolios {
		updated, err := valuation.Reproject(p, quotes, now)
		if err != nil {
			slog.Error("portfolio reprojection failed",
				"portfolio", p.ID, "user", p.UserID, "err", err)
			continue
		}
		if err := r.store.UpdatePortfolioValuation(ctx, &updated); err != nil {
			slog.Error("portfolio valuation write failed",
				"portfolio", p.ID, "err", err)
			continue
		}
		metrics.PortfolioReprojections.Inc()
		if r.OnUpdate != nil {
			r.OnUpdate(updated)
		}
	}
	return nil
}

// Scheduler invokes a refresh function at a fixed interval until its
// context is cancelled. It runs once immediately on start.
type Scheduler struct {
	interval time.Duration
	fn       func(context.Context) error
}

// NewScheduler creates a scheduler around a refresh function.
func NewScheduler(interval time.Duration, fn func(context.Context) error) *Scheduler {
	return &Scheduler{interval: interval, fn: fn}
}

// Run blocks until ctx is cancelled. Refresh errors are logged, not fatal:
// the next tick retries.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.fn(ctx); err != nil {
		slog.Error("price refresh failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.fn(ctx); err != nil {
				slog.Error("price refresh failed", "err", err)
			}
		}
	}
}
