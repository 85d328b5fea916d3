// Package payout converts a wagered pool, a payout-structure policy, and a
// participant count into per-rank payout tiers.
//
// Tier splits per structure:
//
//	winner-take-all  100
//	top-3            60 / 25 / 15
//	top-5            40 / 25 / 15 / 12 / 8
//
// Tier percentages always sum to 100 and payouts always sum to the pot.
// When a structure's minimum participant count is not met, distribution
// degrades to winner-take-all; the degrade is surfaced on the result,
// never applied silently.
//
// Rounding: each payout below rank 1 is rounded to cents, and rank 1 takes
// the pot minus the others. Any rounding residual therefore lands on rank 1,
// deterministically, and Σ payouts == pot holds exactly.
//
// All monetary values use shopspring/decimal — never float64 for money.
package payout

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stakemate/settlement-engine/internal/model"
)

var (
	// ErrNoParticipants is returned for a participant count below one.
	// A group with zero standings is a caller-level no-op and must not
	// reach distribution.
	ErrNoParticipants = errors.New("payout: participant count must be at least 1")

	// ErrNegativePot is returned when the total pot is negative.
	ErrNegativePot = errors.New("payout: total pot must not be negative")

	// ErrUnknownStructure is returned for a structure outside the closed enum.
	ErrUnknownStructure = errors.New("payout: unknown payout structure")
)

// CentScale is the rounding scale for per-tier payouts.
const CentScale int32 = 2

// splits holds tier percentages per structure, rank 1 first.
var splits = map[model.PayoutStructure][]int64{
	model.WinnerTakeAll: {100},
	model.TopThree:      {60, 25, 15},
	model.TopFive:       {40, 25, 15, 12, 8},
}

// minParticipants is the smallest group each structure can pay out.
var minParticipants = map[model.PayoutStructure]int{
	model.WinnerTakeAll: 1,
	model.TopThree:      3,
	model.TopFive:       5,
}

// MinParticipants returns the minimum participant count for a structure,
// or an error for an unknown structure.
func MinParticipants(structure model.PayoutStructure) (int, error) {
	min, ok := minParticipants[structure]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownStructure, structure)
	}
	return min, nil
}

// Distribution is the result of one payout computation. Applied is the
// structure actually used; Degraded reports whether the requested structure
// was replaced by winner-take-all because the group was too small.
type Distribution struct {
	Requested model.PayoutStructure `json:"requested"`
	Applied   model.PayoutStructure `json:"applied"`
	Degraded  bool                  `json:"degraded"`
	Tiers     []model.PayoutTier    `json:"tiers"`
}

// Distribute computes the ordered payout tiers for a pot. Pure, no I/O.
func Distribute(totalPot decimal.Decimal, structure model.PayoutStructure, participantCount int) (Distribution, error) {
	if participantCount < 1 {
		return Distribution{}, fmt.Errorf("%w: got %d", ErrNoParticipants, participantCount)
	}
	if totalPot.IsNegative() {
		return Distribution{}, fmt.Errorf("%w: %s", ErrNegativePot, totalPot)
	}

	min, err := MinParticipants(structure)
	if err != nil {
		return Distribution{}, err
	}

	applied := structure
	degraded := false
	if participantCount < min {
		applied = model.WinnerTakeAll
		degraded = true
	}

	pcts := splits[applied]
	hundred := decimal.NewFromInt(100)

	tiers := make([]model.PayoutTier, len(pcts))
	allocated := decimal.Zero

	// Ranks 2..n rounded to cents; rank 1 absorbs the residual so the
	// tiers reconcile with the pot exactly.
	for i := len(pcts) - 1; i >= 1; i-- {
		pct := decimal.NewFromInt(pcts[i])
		amount := totalPot.Mul(pct).Div(hundred).Round(CentScale)
		tiers[i] = model.PayoutTier{
			Rank:       i + 1,
			Percentage: pct,
			Payout:     amount,
		}
		allocated = allocated.Add(amount)
	}
	tiers[0] = model.PayoutTier{
		Rank:       1,
		Percentage: decimal.NewFromInt(pcts[0]),
		Payout:     totalPot.Sub(allocated),
	}

	return Distribution{
		Requested: structure,
		Applied:   applied,
		Degraded:  degraded,
		Tiers:     tiers,
	}, nil
}

// Pot computes a period's total pot: entry fee × participant count.
func Pot(entryFee decimal.Decimal, participantCount int) decimal.Decimal {
	return entryFee.Mul(decimal.NewFromInt(int64(participantCount)))
}
