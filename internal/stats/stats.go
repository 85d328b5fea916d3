// Package stats folds historical settlement records into per-user summary
// statistics. Aggregate is a pure fold: re-running it over the same entry
// log always yields identical results.
package stats

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stakemate/settlement-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Aggregate derives UserBettingStats from a user's history entries. groups
// maps group ID → display name; entries for groups missing from the
// directory fall back to the raw ID. An empty entry log yields zeroed
// stats (winRate 0, bestRank 0 sentinel) — never an error.
func Aggregate(userID string, entries []model.BettingHistoryEntry, groups map[string]string) model.UserBettingStats {
	out := model.UserBettingStats{
		UserID:        userID,
		TotalWinnings: decimal.Zero,
		TotalLosses:   decimal.Zero,
		NetProfit:     decimal.Zero,
		WinRate:       decimal.Zero,
		AverageRank:   decimal.Zero,
		ByPeriodType:  make(map[model.PeriodType]model.PeriodTypeStats),
	}

	byGroup := make(map[string]*model.GroupStats)
	rankSum := 0

	for _, e := range entries {
		won := e.AmountWon.IsPositive()

		out.TotalGames++
		out.TotalWinnings = out.TotalWinnings.Add(e.AmountWon)
		out.TotalLosses = out.TotalLosses.Add(e.AmountLost)
		if won {
			out.GamesWon++
		}

		rankSum += e.Rank
		if out.BestRank == 0 || (e.Rank > 0 && e.Rank < out.BestRank) {
			out.BestRank = e.Rank
		}

		net := e.AmountWon.Sub(e.AmountLost)

		pts := out.ByPeriodType[e.PeriodType]
		if won {
			pts.Wins++
		} else {
			pts.Losses++
		}
		pts.Net = pts.Net.Add(net)
		out.ByPeriodType[e.PeriodType] = pts

		gs, ok := byGroup[e.GroupID]
		if !ok {
			name := groups[e.GroupID]
			if name == "" {
				name = e.GroupID
			}
			gs = &model.GroupStats{GroupID: e.GroupID, Name: name}
			byGroup[e.GroupID] = gs
		}
		gs.GamesPlayed++
		if won {
			gs.Wins++
		} else {
			gs.Losses++
		}
		gs.Net = gs.Net.Add(net)
	}

	out.NetProfit = out.TotalWinnings.Sub(out.TotalLosses)

	if out.TotalGames > 0 {
		games := decimal.NewFromInt(int64(out.TotalGames))
		out.WinRate = decimal.NewFromInt(int64(out.GamesWon)).Div(games).Mul(hundred)
		out.AverageRank = decimal.NewFromInt(int64(rankSum)).Div(games)
	}

	// Deterministic breakdown order regardless of entry order.
	out.ByGroup = make([]model.GroupStats, 0, len(byGroup))
	for _, gs := range byGroup {
		out.ByGroup = append(out.ByGroup, *gs)
	}
	sort.Slice(out.ByGroup, func(i, j int) bool {
		return out.ByGroup[i].GroupID < out.ByGroup[j].GroupID
	})

	return out
}
