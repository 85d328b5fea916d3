// Package settlement turns a group's betting configuration and an atomic
// snapshot of standings into one immutable BettingPeriod, one
// PayoutNotification, and the per-user history entries for the ledger.
//
// Settle is pure apart from ID generation: it performs no I/O and must be
// handed a snapshot that cannot shift mid-computation. Callers serialize
// settlement per group (see game.Service).
package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stakemate/settlement-engine/internal/leaderboard"
	"github.com/stakemate/settlement-engine/internal/model"
	"github.com/stakemate/settlement-engine/internal/payout"
)

// ErrInvalidEntryFee is returned when the group's entry fee is zero or
// negative. Group configuration guarantees a positive fee; anything else
// is a programmer-error-class input.
var ErrInvalidEntryFee = errors.New("settlement: entry fee must be positive")

// Outcome bundles everything one settlement produces. Degraded mirrors the
// distributor's observable degrade so callers can disclose it.
type Outcome struct {
	Period         model.BettingPeriod
	Notification   model.PayoutNotification
	HistoryEntries []model.BettingHistoryEntry
	Degraded       bool
}

// Settle runs the rank → distribute → assign chain over one standings
// snapshot. A snapshot with zero standings is a no-op: Settle returns
// (nil, nil), never an error. Members without a valuation must already be
// excluded from the snapshot.
func Settle(cfg model.GroupConfig, standings []model.Standing, now time.Time) (*Outcome, error) {
	if len(standings) == 0 {
		return nil, nil
	}
	if cfg.EntryFee.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: group %s has %s", ErrInvalidEntryFee, cfg.GroupID, cfg.EntryFee)
	}

	ranked := leaderboard.Rank(standings, leaderboard.MetricFor(cfg.GameMode))

	totalPot := payout.Pot(cfg.EntryFee, len(ranked))
	dist, err := payout.Distribute(totalPot, cfg.PayoutStructure, len(ranked))
	if err != nil {
		return nil, err
	}

	// Map each tier to the standing holding its rank. Tier count never
	// exceeds the participant count: Distribute degrades first.
	winnerPayouts := make([]model.WinnerPayout, len(dist.Tiers))
	winners := make(map[string]decimal.Decimal, len(dist.Tiers))
	for i, tier := range dist.Tiers {
		s := ranked[tier.Rank-1]
		winnerPayouts[i] = model.WinnerPayout{
			UserID:      s.UserID,
			DisplayName: s.DisplayName,
			Rank:        tier.Rank,
			Percentage:  tier.Percentage,
			Payout:      tier.Payout,
		}
		winners[s.UserID] = tier.Payout
	}

	// Non-winners owe exactly the entry fee; winners owe nothing.
	for i := range ranked {
		if _, won := winners[ranked[i].UserID]; won {
			ranked[i].AmountOwed = decimal.Zero
		} else {
			ranked[i].AmountOwed = cfg.EntryFee
		}
	}

	period := model.BettingPeriod{
		ID:              uuid.New().String(),
		GroupID:         cfg.GroupID,
		PeriodType:      cfg.PeriodType,
		Standings:       ranked,
		WinnerPayouts:   winnerPayouts,
		TotalPot:        totalPot,
		EntryFee:        cfg.EntryFee,
		PayoutStructure: dist.Applied,
		Degraded:        dist.Degraded,
		PayoutStatus:    model.PayoutPending,
		SettledAt:       now,
	}

	var payments []model.MemberPayment
	for _, s := range ranked {
		if s.AmountOwed.IsPositive() {
			payments = append(payments, model.MemberPayment{
				UserID:     s.UserID,
				AmountOwed: s.AmountOwed,
				Status:     model.PaymentPending,
			})
		}
	}

	notification := model.PayoutNotification{
		ID:             uuid.New().String(),
		PeriodID:       period.ID,
		GroupID:        cfg.GroupID,
		MemberPayments: payments,
		CreatedAt:      now,
	}

	entries := make([]model.BettingHistoryEntry, len(ranked))
	for i, s := range ranked {
		won := winners[s.UserID]
		entry := model.BettingHistoryEntry{
			ID:            uuid.New().String(),
			UserID:        s.UserID,
			GroupID:       cfg.GroupID,
			PeriodID:      period.ID,
			PeriodType:    cfg.PeriodType,
			Rank:          s.Rank,
			AmountWon:     won,
			AmountLost:    s.AmountOwed,
			ReturnPercent: s.ReturnPercent,
			ReturnValue:   s.ReturnValue,
			SettledAt:     now,
		}
		entries[i] = entry
	}

	return &Outcome{
		Period:         period,
		Notification:   notification,
		HistoryEntries: entries,
		Degraded:       dist.Degraded,
	}, nil
}
