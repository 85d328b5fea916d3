// Package store defines the persistence interface for the settlement engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// The engine's pure packages never touch persistence directly; the game
// service injects a Store and hands the pure functions plain snapshots.
package store

import (
	"context"
	"errors"

	"github.com/stakemate/settlement-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Group configuration ---

	// CreateGroupConfig persists a group's betting configuration.
	CreateGroupConfig(ctx context.Context, cfg *model.GroupConfig) error

	// GetGroupConfig retrieves a group's configuration.
	GetGroupConfig(ctx context.Context, groupID string) (*model.GroupConfig, error)

	// ListGroupConfigs returns every group configuration.
	ListGroupConfigs(ctx context.Context) ([]model.GroupConfig, error)

	// --- Portfolios ---

	// SavePortfolio appends a newly submitted portfolio. Resubmission
	// supersedes earlier rows for the same (user, group); rows are never
	// mutated in place.
	SavePortfolio(ctx context.Context, p *model.Portfolio) error

	// GetLatestPortfolio returns the most recently submitted portfolio
	// for one user in one group.
	GetLatestPortfolio(ctx context.Context, userID, groupID string) (*model.Portfolio, error)

	// ListGroupPortfolios returns the latest portfolio per member of a group.
	ListGroupPortfolios(ctx context.Context, groupID string) ([]model.Portfolio, error)

	// ListAllPortfolios returns the latest portfolio per (user, group),
	// across all groups. Used by the price-tick reprojection.
	ListAllPortfolios(ctx context.Context) ([]model.Portfolio, error)

	// UpdatePortfolioValuation writes recomputed derived figures (shares,
	// values, returns, lastUpdated) for an existing portfolio row.
	UpdatePortfolioValuation(ctx context.Context, p *model.Portfolio) error

	// --- Betting periods (immutable, status transitions only) ---

	// SaveBettingPeriod persists a settlement record.
	SaveBettingPeriod(ctx context.Context, period *model.BettingPeriod) error

	// GetBettingPeriod retrieves a settlement record by ID.
	GetBettingPeriod(ctx context.Context, id string) (*model.BettingPeriod, error)

	// ListBettingPeriodsByGroup returns a group's settlement records,
	// newest first.
	ListBettingPeriodsByGroup(ctx context.Context, groupID string) ([]model.BettingPeriod, error)

	// UpdatePayoutStatus transitions a period's payout status.
	UpdatePayoutStatus(ctx context.Context, periodID string, status model.PayoutStatus) error

	// --- Payout notifications ---

	// SaveNotification persists a payout notification.
	SaveNotification(ctx context.Context, n *model.PayoutNotification) error

	// GetNotificationByPeriod retrieves the notification for a period.
	GetNotificationByPeriod(ctx context.Context, periodID string) (*model.PayoutNotification, error)

	// UpdateMemberPaymentStatus transitions one member's payment status
	// within a period's notification.
	UpdateMemberPaymentStatus(ctx context.Context, periodID, userID string, status model.PaymentStatus) error

	// --- Append-only betting history ---

	// InsertHistoryEntries appends immutable per-user settlement records.
	InsertHistoryEntries(ctx context.Context, entries []model.BettingHistoryEntry) error

	// GetHistoryByUser returns a user's history entries, oldest first.
	GetHistoryByUser(ctx context.Context, userID string) ([]model.BettingHistoryEntry, error)
}
