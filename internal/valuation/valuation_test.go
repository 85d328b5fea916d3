package valuation

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stakemate/settlement-engine/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func pos(symbol string, alloc, entry, current float64) model.Position {
	return model.Position{
		Symbol:        symbol,
		AssetType:     model.AssetStock,
		AllocationPct: d(alloc),
		EntryPrice:    d(entry),
		CurrentPrice:  d(current),
	}
}

// --- Single-position tests ---

func TestComputePosition_Basic(t *testing.T) {
	p, err := ComputePosition(pos("AAPL", 50, 100, 120), d(10000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Shares.Equal(d(50)) {
		t.Errorf("expected 50 shares, got %s", p.Shares)
	}
	if !p.Value.Equal(d(6000)) {
		t.Errorf("expected value 6000, got %s", p.Value)
	}
	if !p.ReturnValue.Equal(d(1000)) {
		t.Errorf("expected return 1000, got %s", p.ReturnValue)
	}
	if !p.ReturnPercent.Equal(d(20)) {
		t.Errorf("expected return 20%%, got %s", p.ReturnPercent)
	}
}

func TestComputePosition_ZeroEntryPrice(t *testing.T) {
	_, err := ComputePosition(pos("AAPL", 50, 0, 120), d(10000))
	if !errors.Is(err, ErrInvalidEntryPrice) {
		t.Errorf("expected ErrInvalidEntryPrice for entry=0, got %v", err)
	}
}

func TestComputePosition_NegativeEntryPrice(t *testing.T) {
	_, err := ComputePosition(pos("AAPL", 50, -10, 120), d(10000))
	if !errors.Is(err, ErrInvalidEntryPrice) {
		t.Errorf("expected ErrInvalidEntryPrice for entry<0, got %v", err)
	}
}

func TestComputePosition_NegativeCurrentPrice(t *testing.T) {
	_, err := ComputePosition(pos("AAPL", 50, 100, -1), d(10000))
	if !errors.Is(err, ErrNegativeCurrentPrice) {
		t.Errorf("expected ErrNegativeCurrentPrice, got %v", err)
	}
}

func TestComputePosition_ZeroAllocation(t *testing.T) {
	p, err := ComputePosition(pos("AAPL", 0, 100, 120), d(10000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Shares.IsZero() || !p.Value.IsZero() {
		t.Errorf("zero allocation should yield zero shares and value, got shares=%s value=%s",
			p.Shares, p.Value)
	}
	if !p.ReturnPercent.IsZero() {
		t.Errorf("zero allocation should yield zero return%%, got %s", p.ReturnPercent)
	}
}

func TestComputePosition_ZeroCurrentPrice(t *testing.T) {
	// Asset went to zero: full loss on the slice.
	p, err := ComputePosition(pos("LUNA", 50, 100, 0), d(10000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Value.IsZero() {
		t.Errorf("expected value 0, got %s", p.Value)
	}
	if !p.ReturnValue.Equal(d(-5000)) {
		t.Errorf("expected return -5000, got %s", p.ReturnValue)
	}
	if !p.ReturnPercent.Equal(d(-100)) {
		t.Errorf("expected return -100%%, got %s", p.ReturnPercent)
	}
}

// --- Portfolio tests ---

// Worked example: 50% at 100→120 plus 50% at 200→180 on a 10000 base.
func TestCompute_TwoPositionExample(t *testing.T) {
	positions := []model.Position{
		pos("AAPL", 50, 100, 120),
		pos("TSLA", 50, 200, 180),
	}

	res, err := Compute(positions, d(10000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.Positions[0].Shares.Equal(d(50)) {
		t.Errorf("expected 50 shares of AAPL, got %s", res.Positions[0].Shares)
	}
	if !res.Positions[1].Shares.Equal(d(25)) {
		t.Errorf("expected 25 shares of TSLA, got %s", res.Positions[1].Shares)
	}
	if !res.Positions[0].Value.Equal(d(6000)) {
		t.Errorf("expected AAPL value 6000, got %s", res.Positions[0].Value)
	}
	if !res.Positions[1].Value.Equal(d(4500)) {
		t.Errorf("expected TSLA value 4500, got %s", res.Positions[1].Value)
	}
	if !res.CurrentValue.Equal(d(10500)) {
		t.Errorf("expected current value 10500, got %s", res.CurrentValue)
	}
	if !res.TotalReturn.Equal(d(500)) {
		t.Errorf("expected total return 500, got %s", res.TotalReturn)
	}
	if !res.TotalReturnPercent.Equal(d(5)) {
		t.Errorf("expected total return 5%%, got %s", res.TotalReturnPercent)
	}
}

func TestCompute_InvalidInitialValue(t *testing.T) {
	_, err := Compute(nil, d(0))
	if !errors.Is(err, ErrInvalidInitialValue) {
		t.Errorf("expected ErrInvalidInitialValue, got %v", err)
	}
}

func TestCompute_EmptyPositions(t *testing.T) {
	res, err := Compute(nil, d(10000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CurrentValue.IsZero() {
		t.Errorf("expected current value 0, got %s", res.CurrentValue)
	}
	if !res.TotalReturn.Equal(d(-10000)) {
		t.Errorf("expected total return -10000, got %s", res.TotalReturn)
	}
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	positions := []model.Position{pos("AAPL", 100, 100, 120)}
	_, err := Compute(positions, d(10000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !positions[0].Shares.IsZero() {
		t.Errorf("input slice should not be mutated, got shares=%s", positions[0].Shares)
	}
}

// Randomized invariant check: value == shares × currentPrice and
// Σ value == currentValue for allocations summing to 100.
func TestCompute_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	epsilon := d(1e-9)

	for trial := 0; trial < 100; trial++ {
		n := 1 + rng.Intn(6)
		allocs := make([]float64, n)
		remaining := 100.0
		for i := 0; i < n-1; i++ {
			a := float64(rng.Intn(int(remaining*100)+1)) / 100
			allocs[i] = a
			remaining -= a
		}
		allocs[n-1] = remaining

		positions := make([]model.Position, n)
		for i := range positions {
			entry := 1 + rng.Float64()*500
			current := rng.Float64() * 600
			positions[i] = pos("SYM", allocs[i], entry, current)
		}

		res, err := Compute(positions, d(10000))
		if err != nil {
			t.Fatalf("trial %d: unexpected error: %v", trial, err)
		}

		sum := decimal.Zero
		for _, p := range res.Positions {
			expected := p.Shares.Mul(p.CurrentPrice)
			if p.Value.Sub(expected).Abs().GreaterThan(epsilon) {
				t.Errorf("trial %d: value %s != shares×price %s", trial, p.Value, expected)
			}
			sum = sum.Add(p.Value)
		}
		if sum.Sub(res.CurrentValue).Abs().GreaterThan(epsilon) {
			t.Errorf("trial %d: Σ value %s != currentValue %s", trial, sum, res.CurrentValue)
		}
	}
}

// --- Reprojection tests ---

func TestReproject_AppliesQuotes(t *testing.T) {
	p := model.Portfolio{
		UserID:       "user1",
		InitialValue: d(10000),
		Positions: []model.Position{
			pos("AAPL", 50, 100, 100),
			pos("TSLA", 50, 200, 200),
		},
	}
	now := time.Now().UTC()

	updated, err := Reproject(p, map[string]decimal.Decimal{
		"AAPL": d(120),
		"TSLA": d(180),
	}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !updated.CurrentValue.Equal(d(10500)) {
		t.Errorf("expected current value 10500, got %s", updated.CurrentValue)
	}
	if !updated.LastUpdated.Equal(now) {
		t.Errorf("expected LastUpdated %v, got %v", now, updated.LastUpdated)
	}
	// Original untouched.
	if !p.CurrentValue.IsZero() {
		t.Errorf("input portfolio should not be mutated, got %s", p.CurrentValue)
	}
}

func TestReproject_MissingSymbolKeepsLastPrice(t *testing.T) {
	p := model.Portfolio{
		InitialValue: d(10000),
		Positions:    []model.Position{pos("AAPL", 100, 100, 110)},
	}

	updated, err := Reproject(p, map[string]decimal.Decimal{}, time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.Positions[0].CurrentPrice.Equal(d(110)) {
		t.Errorf("missing quote should keep last price 110, got %s",
			updated.Positions[0].CurrentPrice)
	}
}

// --- Allocation validation tests ---

func TestValidateAllocations(t *testing.T) {
	tests := []struct {
		name    string
		allocs  []float64
		wantErr error
	}{
		{"exact hundred", []float64{60, 40}, nil},
		{"single full", []float64{100}, nil},
		{"with zero slice", []float64{100, 0}, nil},
		{"under hundred", []float64{50, 40}, ErrAllocationSum},
		{"over hundred", []float64{60, 50}, ErrAllocationSum},
		{"negative", []float64{-10, 110}, ErrAllocationOutOfRange},
		{"single over", []float64{110}, ErrAllocationOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			positions := make([]model.Position, len(tt.allocs))
			for i, a := range tt.allocs {
				positions[i] = pos("SYM", a, 100, 100)
			}
			err := ValidateAllocations(positions)
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
