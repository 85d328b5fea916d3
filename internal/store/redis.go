package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stakemate/settlement-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary. Cache misses and Redis
// failures degrade to the primary, never to an error.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func groupKey(groupID string) string           { return "settle:group:" + groupID }
func portfolioKey(userID, groupID string) string { return "settle:portfolio:" + groupID + ":" + userID }
func periodKey(id string) string               { return "settle:period:" + id }
func notificationKey(periodID string) string   { return "settle:notification:" + periodID }
func historyKey(userID string) string          { return "settle:history:" + userID }

// cacheSet marshals and stores a value, ignoring cache failures.
func (s *CachedStore) cacheSet(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.rdb.Set(ctx, key, data, s.ttl)
}

// cacheGet reads and unmarshals a cached value. Returns false on miss or
// decode failure.
func (s *CachedStore) cacheGet(ctx context.Context, key string, v any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// --- Group configuration ---

func (s *CachedStore) CreateGroupConfig(ctx context.Context, cfg *model.GroupConfig) error {
	if err := s.primary.CreateGroupConfig(ctx, cfg); err != nil {
		return err
	}
	s.cacheSet(ctx, groupKey(cfg.GroupID), cfg)
	return nil
}

func (s *CachedStore) GetGroupConfig(ctx context.Context, groupID string) (*model.GroupConfig, error) {
	var cfg model.GroupConfig
	if s.cacheGet(ctx, groupKey(groupID), &cfg) {
		return &cfg, nil
	}

	fresh, err := s.primary.GetGroupConfig(ctx, groupID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, groupKey(groupID), fresh)
	return fresh, nil
}

// ListGroupConfigs always hits the primary: the settlement scheduler is the
// only caller and a stale group list would skip newly created groups.
func (s *CachedStore) ListGroupConfigs(ctx context.Context) ([]model.GroupConfig, error) {
	return s.primary.ListGroupConfigs(ctx)
}

// --- Portfolios ---

func (s *CachedStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	if err := s.primary.SavePortfolio(ctx, p); err != nil {
		return err
	}
	s.cacheSet(ctx, portfolioKey(p.UserID, p.GroupID), p)
	return nil
}

func (s *CachedStore) GetLatestPortfolio(ctx context.Context, userID, groupID string) (*model.Portfolio, error) {
	var p model.Portfolio
	if s.cacheGet(ctx, portfolioKey(userID, groupID), &p) {
		return &p, nil
	}

	fresh, err := s.primary.GetLatestPortfolio(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, portfolioKey(userID, groupID), fresh)
	return fresh, nil
}

// ListGroupPortfolios hits the primary directly: the settlement snapshot
// must see every member's latest row, not a partially warmed cache.
func (s *CachedStore) ListGroupPortfolios(ctx context.Context, groupID string) ([]model.Portfolio, error) {
	return s.primary.ListGroupPortfolios(ctx, groupID)
}

func (s *CachedStore) ListAllPortfolios(ctx context.Context) ([]model.Portfolio, error) {
	return s.primary.ListAllPortfolios(ctx)
}

func (s *CachedStore) UpdatePortfolioValuation(ctx context.Context, p *model.Portfolio) error {
	if err := s.primary.UpdatePortfolioValuation(ctx, p); err != nil {
		return err
	}
	s.cacheSet(ctx, portfolioKey(p.UserID, p.GroupID), p)
	return nil
}

// --- Betting periods ---

func (s *CachedStore) SaveBettingPeriod(ctx context.Context, period *model.BettingPeriod) error {
	if err := s.primary.SaveBettingPeriod(ctx, period); err != nil {
		return err
	}
	s.cacheSet(ctx, periodKey(period.ID), period)
	return nil
}

func (s *CachedStore) GetBettingPeriod(ctx context.Context, id string) (*model.BettingPeriod, error) {
	var p model.BettingPeriod
	if s.cacheGet(ctx, periodKey(id), &p) {
		return &p, nil
	}

	fresh, err := s.primary.GetBettingPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, periodKey(id), fresh)
	return fresh, nil
}

func (s *CachedStore) ListBettingPeriodsByGroup(ctx context.Context, groupID string) ([]model.BettingPeriod, error) {
	return s.primary.ListBettingPeriodsByGroup(ctx, groupID)
}

func (s *CachedStore) UpdatePayoutStatus(ctx context.Context, periodID string, status model.PayoutStatus) error {
	if err := s.primary.UpdatePayoutStatus(ctx, periodID, status); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, periodKey(periodID))
	return nil
}

// --- Payout notifications ---

func (s *CachedStore) SaveNotification(ctx context.Context, n *model.PayoutNotification) error {
	if err := s.primary.SaveNotification(ctx, n); err != nil {
		return err
	}
	s.cacheSet(ctx, notificationKey(n.PeriodID), n)
	return nil
}

func (s *CachedStore) GetNotificationByPeriod(ctx context.Context, periodID string) (*model.PayoutNotification, error) {
	var n model.PayoutNotification
	if s.cacheGet(ctx, notificationKey(periodID), &n) {
		return &n, nil
	}

	fresh, err := s.primary.GetNotificationByPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, notificationKey(periodID), fresh)
	return fresh, nil
}

func (s *CachedStore) UpdateMemberPaymentStatus(ctx context.Context, periodID, userID string, status model.PaymentStatus) error {
	if err := s.primary.UpdateMemberPaymentStatus(ctx, periodID, userID, status); err != nil {
		return err
	}
	s.rdb.Del(ctx, notificationKey(periodID))
	return nil
}

// --- Betting history ---

func (s *CachedStore) InsertHistoryEntries(ctx context.Context, entries []model.BettingHistoryEntry) error {
	if err := s.primary.InsertHistoryEntries(ctx, entries); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if !seen[e.UserID] {
			s.rdb.Del(ctx, historyKey(e.UserID))
			seen[e.UserID] = true
		}
	}
	return nil
}

func (s *CachedStore) GetHistoryByUser(ctx context.Context, userID string) ([]model.BettingHistoryEntry, error) {
	var entries []model.BettingHistoryEntry
	if s.cacheGet(ctx, historyKey(userID), &entries) {
		return entries, nil
	}

	fresh, err := s.primary.GetHistoryByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if fresh != nil {
		s.cacheSet(ctx, historyKey(userID), fresh)
	}
	return fresh, nil
}
