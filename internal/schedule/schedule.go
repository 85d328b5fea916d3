// Package schedule triggers period settlements on cron timers. Each period
// type gets its own cron entry; on a tick every group configured with that
// period type is settled.
package schedule

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/stakemate/settlement-engine/internal/model"
	"github.com/stakemate/settlement-engine/internal/settlement"
)

// Default cron specs per period type. Weekly settles Sunday midnight UTC,
// monthly on the 1st, season on quarter boundaries.
const (
	DefaultWeeklySpec  = "0 0 * * 0"
	DefaultMonthlySpec = "0 0 1 * *"
	DefaultSeasonSpec  = "0 0 1 */3 *"
)

// Settler settles one group's current period. Satisfied by game.Service.
type Settler interface {
	SettleGroup(ctx context.Context, groupID string) (*settlement.Outcome, error)
}

// ConfigLister lists group configurations. Satisfied by store.Store.
type ConfigLister interface {
	ListGroupConfigs(ctx context.Context) ([]model.GroupConfig, error)
}

// Specs maps each period type to its cron expression.
type Specs struct {
	Weekly  string
	Monthly string
	Season  string
}

// DefaultSpecs returns the standard settlement calendar.
func DefaultSpecs() Specs {
	return Specs{
		Weekly:  DefaultWeeklySpec,
		Monthly: DefaultMonthlySpec,
		Season:  DefaultSeasonSpec,
	}
}

// Scheduler owns the cron runner that fires settlements.
type Scheduler struct {
	cron    *cron.Cron
	settler Settler
	configs ConfigLister
}

// New builds a scheduler with one cron entry per period type.
func New(settler Settler, configs ConfigLister, specs Specs) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		settler: settler,
		configs: configs,
	}

	entries := []struct {
		spec       string
		periodType model.PeriodType
	}{
		{specs.Weekly, model.PeriodWeekly},
		{specs.Monthly, model.PeriodMonthly},
		{specs.Season, model.PeriodSeason},
	}
	for _, e := range entries {
		pt := e.periodType
		if _, err := s.cron.AddFunc(e.spec, func() { s.settleAll(pt) }); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start launches the cron runner. Non-blocking.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("settlement scheduler started")
}

// Stop halts the cron runner and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("settlement scheduler stopped")
}

// settleAll settles every group configured with the given period type.
// Failures are logged per group and never abort the sweep.
func (s *Scheduler) settleAll(periodType model.PeriodType) {
	ctx := context.Background()

	configs, err := s.configs.ListGroupConfigs(ctx)
	if err != nil {
		slog.Error("scheduled settlement sweep failed to list groups",
			"period_type", periodType, "error", err)
		return
	}

	settled := 0
	for _, cfg := range configs {
		if cfg.PeriodType != periodType {
			continue
		}
		outcome, err := s.settler.SettleGroup(ctx, cfg.GroupID)
		if err != nil {
			slog.Error("scheduled settlement failed",
				"group_id", cfg.GroupID, "period_type", periodType, "error", err)
			continue
		}
		if outcome != nil {
			settled++
		}
	}

	slog.Info("scheduled settlement sweep complete",
		"period_type", periodType, "settled", settled)
}
