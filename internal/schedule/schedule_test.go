package schedule

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stakemate/settlement-engine/internal/model"
	"github.com/stakemate/settlement-engine/internal/settlement"
)

type fakeSettler struct {
	settled []string
	fail    map[string]bool
}

func (f *fakeSettler) SettleGroup(_ context.Context, groupID string) (*settlement.Outcome, error) {
	if f.fail[groupID] {
		return nil, errors.New("boom")
	}
	f.settled = append(f.settled, groupID)
	return &settlement.Outcome{}, nil
}

type fakeLister struct {
	configs []model.GroupConfig
}

func (f *fakeLister) ListGroupConfigs(_ context.Context) ([]model.GroupConfig, error) {
	return f.configs, nil
}

func group(id string, pt model.PeriodType) model.GroupConfig {
	return model.GroupConfig{
		GroupID:    id,
		EntryFee:   decimal.NewFromInt(10),
		PeriodType: pt,
	}
}

func TestSettleAll_FiltersByPeriodType(t *testing.T) {
	settler := &fakeSettler{}
	lister := &fakeLister{configs: []model.GroupConfig{
		group("g-weekly-1", model.PeriodWeekly),
		group("g-monthly", model.PeriodMonthly),
		group("g-weekly-2", model.PeriodWeekly),
	}}

	s, err := New(settler, lister, DefaultSpecs())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.settleAll(model.PeriodWeekly)

	if len(settler.settled) != 2 {
		t.Fatalf("expected 2 weekly groups settled, got %d", len(settler.settled))
	}
	for _, id := range settler.settled {
		if id == "g-monthly" {
			t.Error("monthly group settled on weekly tick")
		}
	}
}

func TestSettleAll_FailureDoesNotAbortSweep(t *testing.T) {
	settler := &fakeSettler{fail: map[string]bool{"g1": true}}
	lister := &fakeLister{configs: []model.GroupConfig{
		group("g1", model.PeriodWeekly),
		group("g2", model.PeriodWeekly),
	}}

	s, err := New(settler, lister, DefaultSpecs())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.settleAll(model.PeriodWeekly)

	if len(settler.settled) != 1 || settler.settled[0] != "g2" {
		t.Errorf("expected g2 settled despite g1 failure, got %v", settler.settled)
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	specs := DefaultSpecs()
	specs.Weekly = "not a cron spec"

	if _, err := New(&fakeSettler{}, &fakeLister{}, specs); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}
