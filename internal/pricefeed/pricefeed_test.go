package pricefeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stakemate/settlement-engine/internal/model"
	"github.com/stakemate/settlement-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestStaticSource_QuoteRoundTrip(t *testing.T) {
	src := NewStaticSource()
	if err := src.Set("AAPL", d(120)); err != nil {
		t.Fatalf("set: %v", err)
	}

	price, err := src.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !price.Equal(d(120)) {
		t.Errorf("expected 120, got %s", price)
	}
}

func TestStaticSource_UnknownSymbol(t *testing.T) {
	src := NewStaticSource()
	_, err := src.Quote(context.Background(), "NOPE")
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestStaticSource_RejectsNegativePrice(t *testing.T) {
	src := NewStaticSource()
	if err := src.Set("AAPL", d(-1)); !errors.Is(err, ErrInvalidQuote) {
		t.Errorf("expected ErrInvalidQuote, got %v", err)
	}
}

func TestStaticSource_SnapshotIsCopy(t *testing.T) {
	src := NewStaticSource()
	src.Set("AAPL", d(100))

	snap, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap["AAPL"] = d(999)

	price, _ := src.Quote(context.Background(), "AAPL")
	if !price.Equal(d(100)) {
		t.Errorf("mutating a snapshot must not affect the source, got %s", price)
	}
}

func TestRefresher_ReprojectsPortfolios(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	p := &model.Portfolio{
		ID:           "p1",
		UserID:       "user1",
		GroupID:      "g1",
		InitialValue: d(10000),
		Positions: []model.Position{
			{
				Symbol:        "AAPL",
				AllocationPct: d(100),
				EntryPrice:    d(100),
				CurrentPrice:  d(100),
			},
		},
		SubmittedAt: time.Now().UTC(),
	}
	if err := ms.SavePortfolio(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	src := NewStaticSource()
	src.Set("AAPL", d(110))

	var broadcast []model.Portfolio
	r := NewRefresher(ms, src)
	r.OnUpdate = func(p model.Portfolio) { broadcast = append(broadcast, p) }

	if err := r.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	got, err := ms.GetLatestPortfolio(ctx, "user1", "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.CurrentValue.Equal(d(11000)) {
		t.Errorf("expected current value 11000, got %s", got.CurrentValue)
	}
	if !got.TotalReturnPercent.Equal(d(10)) {
		t.Errorf("expected 10%% return, got %s", got.TotalReturnPercent)
	}
	if len(broadcast) != 1 {
		t.Errorf("expected 1 broadcast, got %d", len(broadcast))
	}
}

func TestRefresher_EmptyQuoteBoardIsNoop(t *testing.T) {
	ms := store.NewMemoryStore()
	r := NewRefresher(ms, NewStaticSource())
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("empty board should be a no-op, got %v", err)
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	s := NewScheduler(10*time.Millisecond, func(context.Context) error {
		calls++
		if calls >= 2 {
			cancel()
		}
		return nil
	})

	err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls < 2 {
		t.Errorf("expected at least 2 refresh calls, got %d", calls)
	}
}
