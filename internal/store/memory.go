package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stakemate/settlement-engine/internal/model"
)

// MemoryStore implements Store with in-memory structures. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu            sync.RWMutex
	groups        map[string]*model.GroupConfig
	portfolios    []model.Portfolio // append-only; last row per (user, group) wins
	periods       map[string]*model.BettingPeriod
	notifications map[string]*model.PayoutNotification // keyed by period ID
	history       []model.BettingHistoryEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups:        make(map[string]*model.GroupConfig),
		periods:       make(map[string]*model.BettingPeriod),
		notifications: make(map[string]*model.PayoutNotification),
	}
}

func (s *MemoryStore) CreateGroupConfig(_ context.Context, cfg *model.GroupConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[cfg.GroupID]; exists {
		return fmt.Errorf("group %s already exists", cfg.GroupID)
	}
	copy := *cfg
	s.groups[cfg.GroupID] = &copy
	return nil
}

func (s *MemoryStore) GetGroupConfig(_ context.Context, groupID string) (*model.GroupConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	copy := *cfg
	return &copy, nil
}

func (s *MemoryStore) ListGroupConfigs(_ context.Context) ([]model.GroupConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configs := make([]model.GroupConfig, 0, len(s.groups))
	for _, cfg := range s.groups {
		configs = append(configs, *cfg)
	}
	return configs, nil
}

func (s *MemoryStore) SavePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.portfolios = append(s.portfolios, clonePortfolio(*p))
	return nil
}

func (s *MemoryStore) GetLatestPortfolio(_ context.Context, userID, groupID string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.portfolios) - 1; i >= 0; i-- {
		if s.portfolios[i].UserID == userID && s.portfolios[i].GroupID == groupID {
			p := clonePortfolio(s.portfolios[i])
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: portfolio for user %s in group %s", ErrNotFound, userID, groupID)
}

func (s *MemoryStore) ListGroupPortfolios(_ context.Context, groupID string) ([]model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latestPortfolios(func(p *model.Portfolio) bool { return p.GroupID == groupID }), nil
}

func (s *MemoryStore) ListAllPortfolios(_ context.Context) ([]model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latestPortfolios(func(*model.Portfolio) bool { return true }), nil
}

// latestPortfolios returns the last-submitted portfolio per (user, group)
// among rows matching the filter. Caller must hold the read lock.
func (s *MemoryStore) latestPortfolios(match func(*model.Portfolio) bool) []model.Portfolio {
	latest := make(map[string]int)
	var order []string
	for i := range s.portfolios {
		p := &s.portfolios[i]
		if !match(p) {
			continue
		}
		key := p.UserID + "/" + p.GroupID
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = i
	}

	result := make([]model.Portfolio, 0, len(order))
	for _, key := range order {
		result = append(result, clonePortfolio(s.portfolios[latest[key]]))
	}
	return result
}

func (s *MemoryStore) UpdatePortfolioValuation(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.portfolios {
		if s.portfolios[i].ID == p.ID {
			s.portfolios[i] = clonePortfolio(*p)
			return nil
		}
	}
	return fmt.Errorf("%w: portfolio %s", ErrNotFound, p.ID)
}

func (s *MemoryStore) SaveBettingPeriod(_ context.Context, period *model.BettingPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.periods[period.ID]; exists {
		return fmt.Errorf("period %s already exists", period.ID)
	}
	copy := *period
	s.periods[period.ID] = &copy
	return nil
}

func (s *MemoryStore) GetBettingPeriod(_ context.Context, id string) (*model.BettingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	period, ok := s.periods[id]
	if !ok {
		return nil, fmt.Errorf("%w: period %s", ErrNotFound, id)
	}
	copy := *period
	return &copy, nil
}

func (s *MemoryStore) ListBettingPeriodsByGroup(_ context.Context, groupID string) ([]model.BettingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var periods []model.BettingPeriod
	for _, p := range s.periods {
		if p.GroupID == groupID {
			periods = append(periods, *p)
		}
	}
	// Newest first.
	sort.Slice(periods, func(i, j int) bool {
		return periods[i].SettledAt.After(periods[j].SettledAt)
	})
	return periods, nil
}

func (s *MemoryStore) UpdatePayoutStatus(_ context.Context, periodID string, status model.PayoutStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	period, ok := s.periods[periodID]
	if !ok {
		return fmt.Errorf("%w: period %s", ErrNotFound, periodID)
	}
	period.PayoutStatus = status
	return nil
}

func (s *MemoryStore) SaveNotification(_ context.Context, n *model.PayoutNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *n
	copy.MemberPayments = append([]model.MemberPayment(nil), n.MemberPayments...)
	s.notifications[n.PeriodID] = &copy
	return nil
}

func (s *MemoryStore) GetNotificationByPeriod(_ context.Context, periodID string) (*model.PayoutNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[periodID]
	if !ok {
		return nil, fmt.Errorf("%w: notification for period %s", ErrNotFound, periodID)
	}
	copy := *n
	copy.MemberPayments = append([]model.MemberPayment(nil), n.MemberPayments...)
	return &copy, nil
}

func (s *MemoryStore) UpdateMemberPaymentStatus(_ context.Context, periodID, userID string, status model.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[periodID]
	if !ok {
		return fmt.Errorf("%w: notification for period %s", ErrNotFound, periodID)
	}
	for i := range n.MemberPayments {
		if n.MemberPayments[i].UserID == userID {
			n.MemberPayments[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("%w: payment for user %s in period %s", ErrNotFound, userID, periodID)
}

func (s *MemoryStore) InsertHistoryEntries(_ context.Context, entries []model.BettingHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, entries...)
	return nil
}

func (s *MemoryStore) GetHistoryByUser(_ context.Context, userID string) ([]model.BettingHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.BettingHistoryEntry
	for _, e := range s.history {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

// clonePortfolio copies a portfolio including its position slice so callers
// cannot mutate stored state.
func clonePortfolio(p model.Portfolio) model.Portfolio {
	p.Positions = append([]model.Position(nil), p.Positions...)
	return p
}
