package model

import (
	"errors"
	"fmt"
)

// AssetType classifies a position's underlying asset.
type AssetType string

// Supported asset types.
const (
	AssetStock  AssetType = "stock"
	AssetCrypto AssetType = "crypto"
	AssetETF    AssetType = "etf"
)

// PeriodType is a closed enum over betting window lengths.
type PeriodType string

const (
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
	PeriodSeason  PeriodType = "season"
)

// PayoutStructure is a closed enum over pot-split policies.
type PayoutStructure string

const (
	WinnerTakeAll PayoutStructure = "winner-take-all"
	TopThree      PayoutStructure = "top-3"
	TopFive       PayoutStructure = "top-5"
)

// GameMode selects the leaderboard metric: full-portfolio percent return,
// or mean percent return across exactly three picks.
type GameMode string

const (
	ModePortfolio GameMode = "portfolio"
	ModePicks     GameMode = "picks"
)

// PayoutStatus is the period-level settlement status.
type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutPaid    PayoutStatus = "paid"
)

// PaymentStatus is the per-member payment status inside a notification.
type PaymentStatus string

const (
	PaymentPending      PaymentStatus = "pending"
	PaymentAcknowledged PaymentStatus = "acknowledged"
)

var (
	ErrInvalidPeriodType      = errors.New("model: unsupported period type")
	ErrInvalidPayoutStructure = errors.New("model: unsupported payout structure")
	ErrInvalidGameMode        = errors.New("model: unsupported game mode")
)

var validPeriodTypes = map[PeriodType]bool{
	PeriodWeekly:  true,
	PeriodMonthly: true,
	PeriodSeason:  true,
}

var validStructures = map[PayoutStructure]bool{
	WinnerTakeAll: true,
	TopThree:      true,
	TopFive:       true,
}

var validGameModes = map[GameMode]bool{
	ModePortfolio: true,
	ModePicks:     true,
}

// ParsePeriodType validates a string-typed period field from the outside
// world into the closed enum.
func ParsePeriodType(s string) (PeriodType, error) {
	pt := PeriodType(s)
	if !validPeriodTypes[pt] {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriodType, s)
	}
	return pt, nil
}

// ParsePayoutStructure validates a string-typed structure field into the
// closed enum.
func ParsePayoutStructure(s string) (PayoutStructure, error) {
	ps := PayoutStructure(s)
	if !validStructures[ps] {
		return "", fmt.Errorf("%w: %q", ErrInvalidPayoutStructure, s)
	}
	return ps, nil
}

// ParseGameMode validates a string-typed game-mode field into the closed enum.
func ParseGameMode(s string) (GameMode, error) {
	gm := GameMode(s)
	if !validGameModes[gm] {
		return "", fmt.Errorf("%w: %q", ErrInvalidGameMode, s)
	}
	return gm, nil
}
