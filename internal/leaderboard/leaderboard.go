// Package leaderboard orders participants by a return metric into dense,
// deterministic ranks.
//
// Ordering is descending by metric. Ranks are a dense 1..N assignment.
// Tie-break: equal metric values retain their relative input order (stable
// sort), so a given input always produces the same ranking.
package leaderboard

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stakemate/settlement-engine/internal/model"
)

// Metric extracts the comparable return figure from one standing.
type Metric func(model.Standing) decimal.Decimal

// ByReturnPercent ranks on full-portfolio percent return. Used for the
// weekly, monthly, and season leaderboards.
func ByReturnPercent(s model.Standing) decimal.Decimal {
	return s.ReturnPercent
}

// ByMeanPickReturn ranks on the mean percent return across a participant's
// picks (exactly three in the group-game variant). A participant with no
// picks scores zero.
func ByMeanPickReturn(s model.Standing) decimal.Decimal {
	if len(s.PickReturns) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, r := range s.PickReturns {
		sum = sum.Add(r)
	}
	return sum.Div(decimal.NewFromInt(int64(len(s.PickReturns))))
}

// MetricFor returns the ranking metric for a game mode.
func MetricFor(mode model.GameMode) Metric {
	switch mode {
	case model.ModePicks:
		return ByMeanPickReturn
	default:
		return ByReturnPercent
	}
}

// Rank returns a new slice of standings sorted descending by metric with
// ranks 1..N assigned. The input slice is not modified.
func Rank(standings []model.Standing, metric Metric) []model.Standing {
	ranked := make([]model.Standing, len(standings))
	copy(ranked, standings)

	sort.SliceStable(ranked, func(i, j int) bool {
		return metric(ranked[i]).GreaterThan(metric(ranked[j]))
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
