// Package model defines the core domain types shared across the settlement
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one allocated slice of a portfolio. Shares, value, and return
// figures are derived by the valuation calculator; allocation and entry price
// are fixed at submission time.
type Position struct {
	Symbol        string          `json:"symbol" db:"symbol"`
	AssetType     AssetType       `json:"asset_type" db:"asset_type"`
	AllocationPct decimal.Decimal `json:"allocation_pct" db:"allocation_pct"` // 0–100
	EntryPrice    decimal.Decimal `json:"entry_price" db:"entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price" db:"current_price"`
	Shares        decimal.Decimal `json:"shares" db:"shares"`
	Value         decimal.Decimal `json:"value" db:"value"`
	ReturnValue   decimal.Decimal `json:"return_value" db:"return_value"`
	ReturnPercent decimal.Decimal `json:"return_percent" db:"return_percent"`
}

// Portfolio is one user's allocated model portfolio for one group.
// InitialValue is fixed for the period; derived figures are recomputed on
// every price tick. Resubmission supersedes the row — portfolios are never
// mutated in place.
type Portfolio struct {
	ID                 string          `json:"id" db:"id"`
	UserID             string          `json:"user_id" db:"user_id"`
	GroupID            string          `json:"group_id" db:"group_id"`
	DisplayName        string          `json:"display_name" db:"display_name"`
	Positions          []Position      `json:"positions"`
	InitialValue       decimal.Decimal `json:"initial_value" db:"initial_value"`
	CurrentValue       decimal.Decimal `json:"current_value" db:"current_value"`
	TotalReturn        decimal.Decimal `json:"total_return" db:"total_return"`
	TotalReturnPercent decimal.Decimal `json:"total_return_percent" db:"total_return_percent"`
	SubmittedAt        time.Time       `json:"submitted_at" db:"submitted_at"`
	LastUpdated        time.Time       `json:"last_updated" db:"last_updated"`
}

// Standing is one participant's position within a settlement computation.
// Transient: recomputed per settlement from an atomic snapshot of portfolio
// valuations, never persisted outside a BettingPeriod.
type Standing struct {
	UserID        string            `json:"user_id"`
	DisplayName   string            `json:"display_name"`
	ReturnPercent decimal.Decimal   `json:"return_percent"`
	ReturnValue   decimal.Decimal   `json:"return_value"`
	PickReturns   []decimal.Decimal `json:"pick_returns,omitempty"` // per-pick percent returns (picks game mode)
	Rank          int               `json:"rank"`
	AmountOwed    decimal.Decimal   `json:"amount_owed"`
}

// PayoutTier describes one share of the pot: (rank, percentage, payout).
// Tiers for one settlement sum to 100% and to the total pot.
type PayoutTier struct {
	Rank       int             `json:"rank"`
	Percentage decimal.Decimal `json:"percentage"` // 0–100
	Payout     decimal.Decimal `json:"payout"`
}

// WinnerPayout maps one payout tier to the standing that holds its rank.
type WinnerPayout struct {
	UserID      string          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	Rank        int             `json:"rank"`
	Percentage  decimal.Decimal `json:"percentage"`
	Payout      decimal.Decimal `json:"payout"`
}

// GroupConfig is a group's betting configuration, supplied by the
// surrounding app. EntryFee must be positive.
type GroupConfig struct {
	GroupID         string          `json:"group_id" db:"group_id"`
	Name            string          `json:"name" db:"name"`
	EntryFee        decimal.Decimal `json:"entry_fee" db:"entry_fee"`
	PayoutStructure PayoutStructure `json:"payout_structure" db:"payout_structure"`
	PeriodType      PeriodType      `json:"period_type" db:"period_type"`
	GameMode        GameMode        `json:"game_mode" db:"game_mode"`
	InitialValue    decimal.Decimal `json:"initial_value" db:"initial_value"`
}

// BettingPeriod is an immutable settlement record for one betting window.
// Once created, only PayoutStatus transitions (pending → paid).
type BettingPeriod struct {
	ID              string          `json:"id" db:"id"`
	GroupID         string          `json:"group_id" db:"group_id"`
	PeriodType      PeriodType      `json:"period_type" db:"period_type"`
	Standings       []Standing      `json:"standings"`
	WinnerPayouts   []WinnerPayout  `json:"winner_payouts"`
	TotalPot        decimal.Decimal `json:"total_pot" db:"total_pot"`
	EntryFee        decimal.Decimal `json:"entry_fee" db:"entry_fee"`
	PayoutStructure PayoutStructure `json:"payout_structure" db:"payout_structure"`
	// Degraded is true when the configured structure could not be honored
	// for the participant count and winner-take-all was applied instead.
	Degraded     bool         `json:"degraded" db:"degraded"`
	PayoutStatus PayoutStatus `json:"payout_status" db:"payout_status"`
	SettledAt    time.Time    `json:"settled_at" db:"settled_at"`
}

// MemberPayment tracks one non-winner's owed entry fee within a
// PayoutNotification. Status moves pending → acknowledged independently
// of the period-level status.
type MemberPayment struct {
	UserID     string          `json:"user_id" db:"user_id"`
	AmountOwed decimal.Decimal `json:"amount_owed" db:"amount_owed"`
	Status     PaymentStatus   `json:"status" db:"status"`
}

// PayoutNotification references a settled BettingPeriod and lists every
// non-winner's pending payment.
type PayoutNotification struct {
	ID             string          `json:"id" db:"id"`
	PeriodID       string          `json:"period_id" db:"period_id"`
	GroupID        string          `json:"group_id" db:"group_id"`
	MemberPayments []MemberPayment `json:"member_payments"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// BettingHistoryEntry is an append-only record, one per (user, settled
// period). Never mutated after creation.
type BettingHistoryEntry struct {
	ID            string          `json:"id" db:"id"`
	UserID        string          `json:"user_id" db:"user_id"`
	GroupID       string          `json:"group_id" db:"group_id"`
	PeriodID      string          `json:"period_id" db:"period_id"`
	PeriodType    PeriodType      `json:"period_type" db:"period_type"`
	Rank          int             `json:"rank" db:"rank"`
	AmountWon     decimal.Decimal `json:"amount_won" db:"amount_won"`
	AmountLost    decimal.Decimal `json:"amount_lost" db:"amount_lost"`
	ReturnPercent decimal.Decimal `json:"return_percent" db:"return_percent"`
	ReturnValue   decimal.Decimal `json:"return_value" db:"return_value"`
	SettledAt     time.Time       `json:"settled_at" db:"settled_at"`
}

// PeriodTypeStats is the per-period-type slice of a user's aggregate stats.
type PeriodTypeStats struct {
	Wins   int             `json:"wins"`
	Losses int             `json:"losses"`
	Net    decimal.Decimal `json:"net"`
}

// GroupStats is the per-group slice of a user's aggregate stats.
type GroupStats struct {
	GroupID     string          `json:"group_id"`
	Name        string          `json:"name"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	Net         decimal.Decimal `json:"net"`
	GamesPlayed int             `json:"games_played"`
}

// UserBettingStats is a pure aggregate derived on demand from a user's
// history entries; it is not independently persisted.
type UserBettingStats struct {
	UserID        string                         `json:"user_id"`
	TotalWinnings decimal.Decimal                `json:"total_winnings"`
	TotalLosses   decimal.Decimal                `json:"total_losses"`
	NetProfit     decimal.Decimal                `json:"net_profit"`
	TotalGames    int                            `json:"total_games"`
	GamesWon      int                            `json:"games_won"`
	WinRate       decimal.Decimal                `json:"win_rate"` // percent, 0 when no games
	AverageRank   decimal.Decimal                `json:"average_rank"`
	BestRank      int                            `json:"best_rank"` // 0 sentinel when no entries
	ByPeriodType  map[PeriodType]PeriodTypeStats `json:"by_period_type"`
	ByGroup       []GroupStats                   `json:"by_group"`
}
