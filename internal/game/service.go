// Package game provides the HTTP handlers and orchestration glue for the
// settlement engine: portfolio submission, leaderboards, period settlement,
// payment tracking, and user stats.
//
// The pure packages (valuation, leaderboard, payout, settlement, stats) do
// the computing; this package owns the snapshotting, the per-group
// serialization of settlement runs, and persistence.
//
// All monetary values use shopspring/decimal — never float64 for money.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stakemate/settlement-engine/internal/leaderboard"
	"github.com/stakemate/settlement-engine/internal/metrics"
	"github.com/stakemate/settlement-engine/internal/model"
	"github.com/stakemate/settlement-engine/internal/pricefeed"
	"github.com/stakemate/settlement-engine/internal/settlement"
	"github.com/stakemate/settlement-engine/internal/stats"
	"github.com/stakemate/settlement-engine/internal/store"
	"github.com/stakemate/settlement-engine/internal/valuation"
)

// picksPerPortfolio is the fixed pick count for the picks game mode.
const picksPerPortfolio = 3

// defaultInitialValue is the notional portfolio base when a group config
// does not set one.
var defaultInitialValue = decimal.NewFromInt(10000)

// Service handles engine operations. Settlement is serialized per group so
// a standings snapshot cannot shift mid-computation (single-instance; for
// horizontal scaling, replace with distributed locking or a single-writer
// transaction against the store).
type Service struct {
	store  store.Store
	prices pricefeed.Board
	wsHub  *WSHub // optional WebSocket hub for real-time broadcasts

	mu         sync.Mutex
	groupLocks map[string]*sync.Mutex
}

// NewService creates a new game service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, prices pricefeed.Board, hub *WSHub) *Service {
	return &Service{
		store:      st,
		prices:     prices,
		wsHub:      hub,
		groupLocks: make(map[string]*sync.Mutex),
	}
}

// groupLock returns the mutex serializing settlement for one group.
func (s *Service) groupLock(groupID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.groupLocks[groupID]
	if !ok {
		l = &sync.Mutex{}
		s.groupLocks[groupID] = l
	}
	return l
}

// --- Request/Response types ---

// CreateGroupRequest is the JSON body for group creation.
type CreateGroupRequest struct {
	GroupID         string          `json:"group_id"`
	Name            string          `json:"name"`
	EntryFee        decimal.Decimal `json:"entry_fee"`
	PayoutStructure string          `json:"payout_structure"`
	PeriodType      string          `json:"period_type"`
	GameMode        string          `json:"game_mode"`
	InitialValue    decimal.Decimal `json:"initial_value"` // 0 → default 10000
}

// AllocationRequest is one requested portfolio slice.
type AllocationRequest struct {
	Symbol        string          `json:"symbol"`
	AssetType     string          `json:"asset_type"`
	AllocationPct decimal.Decimal `json:"allocation_pct"`
}

// SubmitPortfolioRequest is the JSON body for POST portfolios.
type SubmitPortfolioRequest struct {
	UserID      string              `json:"user_id"`
	DisplayName string              `json:"display_name"`
	Allocations []AllocationRequest `json:"allocations"`
}

// SettleResponse is returned from a settlement run.
type SettleResponse struct {
	Period   model.BettingPeriod `json:"period"`
	Degraded bool                `json:"degraded"`
}

// QuoteRequest is the JSON body for posting a price.
type QuoteRequest struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// --- HTTP Handlers ---

// CreateGroup handles POST /api/v1/groups
func (s *Service) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.GroupID == "" {
		req.GroupID = uuid.New().String()
	}
	if req.EntryFee.LessThanOrEqual(decimal.Zero) {
		writeError(w, "entry_fee must be positive", http.StatusBadRequest)
		return
	}

	structure, err := model.ParsePayoutStructure(req.PayoutStructure)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	periodType, err := model.ParsePeriodType(req.PeriodType)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	gameMode, err := model.ParseGameMode(req.GameMode)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	initial := req.InitialValue
	if initial.LessThanOrEqual(decimal.Zero) {
		initial = defaultInitialValue
	}

	cfg := &model.GroupConfig{
		GroupID:         req.GroupID,
		Name:            req.Name,
		EntryFee:        req.EntryFee,
		PayoutStructure: structure,
		PeriodType:      periodType,
		GameMode:        gameMode,
		InitialValue:    initial,
	}

	if err := s.store.CreateGroupConfig(r.Context(), cfg); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusCreated, cfg)
}

// GetGroup handles GET /api/v1/groups/{groupID}
func (s *Service) GetGroup(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetGroupConfig(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, "group not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// SubmitPortfolio handles POST /api/v1/groups/{groupID}/portfolios
// Validates allocations, snapshots entry prices from the quote board, and
// stores a new portfolio row superseding any earlier submission.
func (s *Service) SubmitPortfolio(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	ctx := r.Context()

	var req SubmitPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if len(req.Allocations) == 0 {
		writeError(w, "allocations are required", http.StatusBadRequest)
		return
	}

	cfg, err := s.store.GetGroupConfig(ctx, groupID)
	if err != nil {
		writeError(w, "group not found", http.StatusNotFound)
		return
	}

	if cfg.GameMode == model.ModePicks && len(req.Allocations) != picksPerPortfolio {
		writeError(w, "picks mode requires exactly 3 allocations", http.StatusBadRequest)
		return
	}

	// Entry price = current quote at submission time.
	positions := make([]model.Position, len(req.Allocations))
	for i, a := range req.Allocations {
		price, err := s.prices.Quote(ctx, a.Symbol)
		if err != nil {
			writeError(w, "no quote for symbol: "+a.Symbol, http.StatusBadRequest)
			return
		}
		positions[i] = model.Position{
			Symbol:        a.Symbol,
			AssetType:     model.AssetType(a.AssetType),
			AllocationPct: a.AllocationPct,
			EntryPrice:    price,
			CurrentPrice:  price,
		}
	}

	if err := valuation.ValidateAllocations(positions); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := valuation.Compute(positions, cfg.InitialValue)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	p := &model.Portfolio{
		ID:                 uuid.New().String(),
		UserID:             req.UserID,
		GroupID:            groupID,
		DisplayName:        req.DisplayName,
		Positions:          res.Positions,
		InitialValue:       cfg.InitialValue,
		CurrentValue:       res.CurrentValue,
		TotalReturn:        res.TotalReturn,
		TotalReturnPercent: res.TotalReturnPercent,
		SubmittedAt:        now,
		LastUpdated:        now,
	}

	if err := s.store.SavePortfolio(ctx, p); err != nil {
		writeError(w, "failed to save portfolio", http.StatusInternalServerError)
		return
	}
	metrics.PortfolioSubmissions.Inc()

	writeJSON(w, http.StatusCreated, p)
}

// GetPortfolio handles GET /api/v1/groups/{groupID}/portfolios/{userID}
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetLatestPortfolio(r.Context(),
		chi.URLParam(r, "userID"), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, "portfolio not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetLeaderboard handles GET /api/v1/groups/{groupID}/leaderboard
// Returns current ranked standings without settling anything.
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	ctx := r.Context()

	cfg, err := s.store.GetGroupConfig(ctx, groupID)
	if err != nil {
		writeError(w, "group not found", http.StatusNotFound)
		return
	}

	standings, err := s.snapshotStandings(ctx, cfg)
	if err != nil {
		writeError(w, "failed to load standings", http.StatusInternalServerError)
		return
	}

	ranked := leaderboard.Rank(standings, leaderboard.MetricFor(cfg.GameMode))
	writeJSON(w, http.StatusOK, ranked)
}

// SettlePeriod handles POST /api/v1/groups/{groupID}/settle
// A group with zero valid standings is a no-op (204), never an error.
func (s *Service) SettlePeriod(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	outcome, err := s.SettleGroup(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "group not found", http.StatusNotFound)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if outcome == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, SettleResponse{
		Period:   outcome.Period,
		Degraded: outcome.Degraded,
	})
}

// SettleGroup settles one group's current period: it takes one atomic
// snapshot of standings under the group lock, runs the rank → distribute →
// assign chain, and persists the outcome. Returns (nil, nil) when the group
// has nothing to settle. Called by the settle endpoint and the period
// scheduler.
func (s *Service) SettleGroup(ctx context.Context, groupID string) (*settlement.Outcome, error) {
	start := time.Now()

	cfg, err := s.store.GetGroupConfig(ctx, groupID)
	if err != nil {
		return nil, err
	}

	// Serialize settlement per group.
	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	standings, err := s.snapshotStandings(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("snapshot standings: %w", err)
	}

	outcome, err := settlement.Settle(*cfg, standings, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		// Nothing to settle.
		return nil, nil
	}

	if err := s.store.SaveBettingPeriod(ctx, &outcome.Period); err != nil {
		return nil, fmt.Errorf("save period: %w", err)
	}
	if err := s.store.SaveNotification(ctx, &outcome.Notification); err != nil {
		return nil, fmt.Errorf("save notification: %w", err)
	}
	if err := s.store.InsertHistoryEntries(ctx, outcome.HistoryEntries); err != nil {
		return nil, fmt.Errorf("record history: %w", err)
	}

	metrics.SettlementsTotal.WithLabelValues(string(cfg.PeriodType)).Inc()
	metrics.SettlementLatency.Observe(time.Since(start).Seconds())
	if outcome.Degraded {
		metrics.SettlementsDegraded.Inc()
	}

	slog.Info("period settled",
		"group_id", groupID,
		"period_id", outcome.Period.ID,
		"period_type", cfg.PeriodType,
		"participants", len(outcome.Period.Standings),
		"total_pot", outcome.Period.TotalPot.String(),
		"degraded", outcome.Degraded)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "period_settled",
			GroupID:  groupID,
			PeriodID: outcome.Period.ID,
			TotalPot: outcome.Period.TotalPot.String(),
			Degraded: outcome.Degraded,
		})
	}

	return outcome, nil
}

// snapshotStandings takes one atomic read of every member's latest
// valuation. Members without a submitted (or valuated) portfolio are
// excluded from standings, not treated as errors.
func (s *Service) snapshotStandings(ctx context.Context, cfg *model.GroupConfig) ([]model.Standing, error) {
	portfolios, err := s.store.ListGroupPortfolios(ctx, cfg.GroupID)
	if err != nil {
		return nil, err
	}

	standings := make([]model.Standing, 0, len(portfolios))
	for _, p := range portfolios {
		if len(p.Positions) == 0 {
			// No computed valuation; excluded from standings.
			continue
		}
		st := model.Standing{
			UserID:        p.UserID,
			DisplayName:   p.DisplayName,
			ReturnPercent: p.TotalReturnPercent,
			ReturnValue:   p.TotalReturn,
		}
		if cfg.GameMode == model.ModePicks {
			st.PickReturns = make([]decimal.Decimal, len(p.Positions))
			for i, pos := range p.Positions {
				st.PickReturns[i] = pos.ReturnPercent
			}
		}
		standings = append(standings, st)
	}
	return standings, nil
}

// GetPeriod handles GET /api/v1/periods/{periodID}
func (s *Service) GetPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := s.store.GetBettingPeriod(r.Context(), chi.URLParam(r, "periodID"))
	if err != nil {
		writeError(w, "period not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, period)
}

// ListGroupPeriods handles GET /api/v1/groups/{groupID}/periods
func (s *Service) ListGroupPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.store.ListBettingPeriodsByGroup(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, "failed to list periods", http.StatusInternalServerError)
		return
	}
	if periods == nil {
		periods = []model.BettingPeriod{}
	}
	writeJSON(w, http.StatusOK, periods)
}

// GetNotification handles GET /api/v1/periods/{periodID}/notification
func (s *Service) GetNotification(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.GetNotificationByPeriod(r.Context(), chi.URLParam(r, "periodID"))
	if err != nil {
		writeError(w, "notification not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// MarkPeriodPaid handles POST /api/v1/periods/{periodID}/paid
// Transitions the period-level status pending → paid.
func (s *Service) MarkPeriodPaid(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "periodID")
	ctx := r.Context()

	period, err := s.store.GetBettingPeriod(ctx, periodID)
	if err != nil {
		writeError(w, "period not found", http.StatusNotFound)
		return
	}
	if period.PayoutStatus == model.PayoutPaid {
		writeError(w, "period already paid", http.StatusConflict)
		return
	}

	if err := s.store.UpdatePayoutStatus(ctx, periodID, model.PayoutPaid); err != nil {
		writeError(w, "failed to update status", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AcknowledgePayment handles POST /api/v1/periods/{periodID}/payments/{userID}/ack
// Transitions one member's payment pending → acknowledged.
func (s *Service) AcknowledgePayment(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "periodID")
	userID := chi.URLParam(r, "userID")

	err := s.store.UpdateMemberPaymentStatus(r.Context(), periodID, userID, model.PaymentAcknowledged)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "payment not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to update payment", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUserStats handles GET /api/v1/users/{userID}/stats
// Folds the user's history entries into aggregate statistics.
func (s *Service) GetUserStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ctx := r.Context()

	entries, err := s.store.GetHistoryByUser(ctx, userID)
	if err != nil {
		writeError(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	configs, err := s.store.ListGroupConfigs(ctx)
	if err != nil {
		writeError(w, "failed to load groups", http.StatusInternalServerError)
		return
	}
	directory := make(map[string]string, len(configs))
	for _, cfg := range configs {
		directory[cfg.GroupID] = cfg.Name
	}

	writeJSON(w, http.StatusOK, stats.Aggregate(userID, entries, directory))
}

// PostQuote handles POST /api/v1/quotes
// Accepts an operator-posted price and broadcasts the tick.
func (s *Service) PostQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		writeError(w, "symbol is required", http.StatusBadRequest)
		return
	}

	if err := s.prices.Set(req.Symbol, req.Price); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:   "quote_updated",
			Symbol: req.Symbol,
			Price:  req.Price.String(),
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// BroadcastValuation publishes one re-projected portfolio to WebSocket
// clients. Wired as the price refresher's OnUpdate hook.
func (s *Service) BroadcastValuation(p model.Portfolio) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Broadcast(WSMessage{
		Type:          "portfolio_updated",
		GroupID:       p.GroupID,
		UserID:        p.UserID,
		CurrentValue:  p.CurrentValue.String(),
		ReturnPercent: p.TotalReturnPercent.String(),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
