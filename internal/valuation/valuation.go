// Package valuation converts allocation percentages and entry/current prices
// into position and portfolio value/return figures.
//
// For a position with allocation a (percent), entry price e, current price c,
// against a portfolio with fixed initial value V:
//
//	costBasis = (a/100) × V
//	shares    = costBasis / e
//	value     = shares × c
//	return    = value − costBasis
//	return%   = return / costBasis × 100
//
// Aggregates: currentValue = Σ value, totalReturn = currentValue − V,
// totalReturn% = totalReturn / V × 100.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Every function here is pure and safe to call on each price tick.
package valuation

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stakemate/settlement-engine/internal/model"
)

var (
	// ErrInvalidEntryPrice is returned when a position's entry price is
	// zero or negative. This is a programmer-error-class input: share
	// derivation would divide by zero, so it is rejected up front.
	ErrInvalidEntryPrice = errors.New("valuation: entry price must be positive")

	// ErrNegativeCurrentPrice is returned when a current price is below zero.
	ErrNegativeCurrentPrice = errors.New("valuation: current price must not be negative")

	// ErrInvalidInitialValue is returned when the portfolio's fixed initial
	// value is zero or negative.
	ErrInvalidInitialValue = errors.New("valuation: initial value must be positive")

	// ErrAllocationOutOfRange is returned when an allocation percentage
	// falls outside [0, 100].
	ErrAllocationOutOfRange = errors.New("valuation: allocation must be in [0, 100]")

	// ErrAllocationSum is returned when submitted allocations do not sum
	// to exactly 100.
	ErrAllocationSum = errors.New("valuation: allocations must sum to 100")
)

var hundred = decimal.NewFromInt(100)

// Result holds the recomputed positions and portfolio aggregates.
type Result struct {
	Positions          []model.Position
	CurrentValue       decimal.Decimal
	TotalReturn        decimal.Decimal
	TotalReturnPercent decimal.Decimal
}

// ComputePosition derives shares, value, and return figures for a single
// position against the portfolio's fixed initial value. A zero allocation
// yields zero shares and zero value, contributing nothing.
func ComputePosition(pos model.Position, initialValue decimal.Decimal) (model.Position, error) {
	if pos.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return model.Position{}, fmt.Errorf("%w: %s at %s", ErrInvalidEntryPrice, pos.Symbol, pos.EntryPrice)
	}
	if pos.CurrentPrice.IsNegative() {
		return model.Position{}, fmt.Errorf("%w: %s at %s", ErrNegativeCurrentPrice, pos.Symbol, pos.CurrentPrice)
	}

	// No rounding here: decimal mul is exact, so value == shares × price
	// holds bit-for-bit. Display rounding belongs to callers.
	costBasis := pos.AllocationPct.Div(hundred).Mul(initialValue)
	pos.Shares = costBasis.Div(pos.EntryPrice)
	pos.Value = pos.Shares.Mul(pos.CurrentPrice)
	pos.ReturnValue = pos.Value.Sub(costBasis)

	if costBasis.IsZero() {
		pos.ReturnPercent = decimal.Zero
	} else {
		pos.ReturnPercent = pos.ReturnValue.Div(costBasis).Mul(hundred)
	}
	return pos, nil
}

// Compute recomputes every position and the portfolio aggregates.
// The input slice is not modified.
func Compute(positions []model.Position, initialValue decimal.Decimal) (Result, error) {
	if initialValue.LessThanOrEqual(decimal.Zero) {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidInitialValue, initialValue)
	}

	out := make([]model.Position, len(positions))
	currentValue := decimal.Zero

	for i, pos := range positions {
		computed, err := ComputePosition(pos, initialValue)
		if err != nil {
			return Result{}, err
		}
		out[i] = computed
		currentValue = currentValue.Add(computed.Value)
	}

	totalReturn := currentValue.Sub(initialValue)
	totalReturnPct := totalReturn.Div(initialValue).Mul(hundred)

	return Result{
		Positions:          out,
		CurrentValue:       currentValue,
		TotalReturn:        totalReturn,
		TotalReturnPercent: totalReturnPct,
	}, nil
}

// Reproject applies a quote snapshot to a portfolio and recomputes it,
// returning a new portfolio value. Symbols missing from the snapshot keep
// their last known price. The input portfolio is not mutated.
func Reproject(p model.Portfolio, quotes map[string]decimal.Decimal, now time.Time) (model.Portfolio, error) {
	positions := make([]model.Position, len(p.Positions))
	copy(positions, p.Positions)

	for i := range positions {
		if price, ok := quotes[positions[i].Symbol]; ok {
			positions[i].CurrentPrice = price
		}
	}

	res, err := Compute(positions, p.InitialValue)
	if err != nil {
		return model.Portfolio{}, err
	}

	p.Positions = res.Positions
	p.CurrentValue = res.CurrentValue
	p.TotalReturn = res.TotalReturn
	p.TotalReturnPercent = res.TotalReturnPercent
	p.LastUpdated = now
	return p, nil
}

// ValidateAllocations checks a submitted allocation set: every percentage
// in [0, 100] and an exact sum of 100. Enforced at submission time, before
// any valuation runs.
func ValidateAllocations(positions []model.Position) error {
	sum := decimal.Zero
	for _, pos := range positions {
		if pos.AllocationPct.IsNegative() || pos.AllocationPct.GreaterThan(hundred) {
			return fmt.Errorf("%w: %s has %s", ErrAllocationOutOfRange, pos.Symbol, pos.AllocationPct)
		}
		sum = sum.Add(pos.AllocationPct)
	}
	if !sum.Equal(hundred) {
		return fmt.Errorf("%w: got %s", ErrAllocationSum, sum)
	}
	return nil
}
