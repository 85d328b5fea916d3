package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stakemate/settlement-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Monetary scalars are stored as NUMERIC for exact decimal precision;
// nested records (positions, standings, payouts, payments) are JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// --- Group configuration ---

func (s *PostgresStore) CreateGroupConfig(ctx context.Context, cfg *model.GroupConfig) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO group_configs (group_id, name, entry_fee, payout_structure, period_type, game_mode, initial_value)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6, $7::NUMERIC)`,
		cfg.GroupID, cfg.Name, cfg.EntryFee.String(),
		string(cfg.PayoutStructure), string(cfg.PeriodType), string(cfg.GameMode),
		cfg.InitialValue.String(),
	)
	return err
}

func (s *PostgresStore) GetGroupConfig(ctx context.Context, groupID string) (*model.GroupConfig, error) {
	var cfg model.GroupConfig
	var fee, initial string

	err := s.pool.QueryRow(ctx,
		`SELECT group_id, name, entry_fee::TEXT, payout_structure, period_type, game_mode, initial_value::TEXT
		 FROM group_configs WHERE group_id = $1`, groupID).
		Scan(&cfg.GroupID, &cfg.Name, &fee, &cfg.PayoutStructure, &cfg.PeriodType, &cfg.GameMode, &initial)
	if err != nil {
		return nil, notFound(err, "group %s", groupID)
	}

	cfg.EntryFee, _ = decimal.NewFromString(fee)
	cfg.InitialValue, _ = decimal.NewFromString(initial)
	return &cfg, nil
}

func (s *PostgresStore) ListGroupConfigs(ctx context.Context) ([]model.GroupConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT group_id, name, entry_fee::TEXT, payout_structure, period_type, game_mode, initial_value::TEXT
		 FROM group_configs ORDER BY group_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []model.GroupConfig
	for rows.Next() {
		var cfg model.GroupConfig
		var fee, initial string
		if err := rows.Scan(&cfg.GroupID, &cfg.Name, &fee, &cfg.PayoutStructure,
			&cfg.PeriodType, &cfg.GameMode, &initial); err != nil {
			return nil, err
		}
		cfg.EntryFee, _ = decimal.NewFromString(fee)
		cfg.InitialValue, _ = decimal.NewFromString(initial)
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// --- Portfolios ---

func (s *PostgresStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	positions, err := json.Marshal(p.Positions)
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO portfolios (id, user_id, group_id, display_name, positions,
		                         initial_value, current_value, total_return, total_return_percent,
		                         submitted_at, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11)`,
		p.ID, p.UserID, p.GroupID, p.DisplayName, positions,
		p.InitialValue.String(), p.CurrentValue.String(),
		p.TotalReturn.String(), p.TotalReturnPercent.String(),
		p.SubmittedAt, p.LastUpdated,
	)
	return err
}

const latestPortfolioColumns = `
	DISTINCT ON (user_id, group_id)
	id, user_id, group_id, display_name, positions,
	initial_value::TEXT, current_value::TEXT, total_return::TEXT, total_return_percent::TEXT,
	submitted_at, last_updated`

func (s *PostgresStore) GetLatestPortfolio(ctx context.Context, userID, groupID string) (*model.Portfolio, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+latestPortfolioColumns+`
		 FROM portfolios
		 WHERE user_id = $1 AND group_id = $2
		 ORDER BY user_id, group_id, submitted_at DESC`, userID, groupID)

	p, err := scanPortfolio(row)
	if err != nil {
		return nil, notFound(err, "portfolio for user %s in group %s", userID, groupID)
	}
	return p, nil
}

func (s *PostgresStore) ListGroupPortfolios(ctx context.Context, groupID string) ([]model.Portfolio, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+latestPortfolioColumns+`
		 FROM portfolios
		 WHERE group_id = $1
		 ORDER BY user_id, group_id, submitted_at DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPortfolios(rows)
}

func (s *PostgresStore) ListAllPortfolios(ctx context.Context) ([]model.Portfolio, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+latestPortfolioColumns+`
		 FROM portfolios
		 ORDER BY user_id, group_id, submitted_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPortfolios(rows)
}

func (s *PostgresStore) UpdatePortfolioValuation(ctx context.Context, p *model.Portfolio) error {
	positions, err := json.Marshal(p.Positions)
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE portfolios
		 SET positions = $2,
		     current_value = $3::NUMERIC,
		     total_return = $4::NUMERIC,
		     total_return_percent = $5::NUMERIC,
		     last_updated = $6
		 WHERE id = $1`,
		p.ID, positions,
		p.CurrentValue.String(), p.TotalReturn.String(), p.TotalReturnPercent.String(),
		p.LastUpdated,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: portfolio %s", ErrNotFound, p.ID)
	}
	return nil
}

// --- Betting periods ---

func (s *PostgresStore) SaveBettingPeriod(ctx context.Context, period *model.BettingPeriod) error {
	standings, err := json.Marshal(period.Standings)
	if err != nil {
		return fmt.Errorf("marshal standings: %w", err)
	}
	payouts, err := json.Marshal(period.WinnerPayouts)
	if err != nil {
		return fmt.Errorf("marshal winner payouts: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO betting_periods (id, group_id, period_type, standings, winner_payouts,
		                              total_pot, entry_fee, payout_structure, degraded,
		                              payout_status, settled_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9, $10, $11)`,
		period.ID, period.GroupID, string(period.PeriodType), standings, payouts,
		period.TotalPot.String(), period.EntryFee.String(),
		string(period.PayoutStructure), period.Degraded,
		string(period.PayoutStatus), period.SettledAt,
	)
	return err
}

const periodColumns = `
	id, group_id, period_type, standings, winner_payouts,
	total_pot::TEXT, entry_fee::TEXT, payout_structure, degraded,
	payout_status, settled_at`

func (s *PostgresStore) GetBettingPeriod(ctx context.Context, id string) (*model.BettingPeriod, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM betting_periods WHERE id = $1`, id)

	p, err := scanPeriod(row)
	if err != nil {
		return nil, notFound(err, "period %s", id)
	}
	return p, nil
}

func (s *PostgresStore) ListBettingPeriodsByGroup(ctx context.Context, groupID string) ([]model.BettingPeriod, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+periodColumns+`
		 FROM betting_periods WHERE group_id = $1 ORDER BY settled_at DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []model.BettingPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, *p)
	}
	return periods, rows.Err()
}

func (s *PostgresStore) UpdatePayoutStatus(ctx context.Context, periodID string, status model.PayoutStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE betting_periods SET payout_status = $2 WHERE id = $1`,
		periodID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: period %s", ErrNotFound, periodID)
	}
	return nil
}

// --- Payout notifications ---

func (s *PostgresStore) SaveNotification(ctx context.Context, n *model.PayoutNotification) error {
	payments, err := json.Marshal(n.MemberPayments)
	if err != nil {
		return fmt.Errorf("marshal member payments: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO payout_notifications (id, period_id, group_id, member_payments, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.PeriodID, n.GroupID, payments, n.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetNotificationByPeriod(ctx context.Context, periodID string) (*model.PayoutNotification, error) {
	var n model.PayoutNotification
	var payments []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, period_id, group_id, member_payments, created_at
		 FROM payout_notifications WHERE period_id = $1`, periodID).
		Scan(&n.ID, &n.PeriodID, &n.GroupID, &payments, &n.CreatedAt)
	if err != nil {
		return nil, notFound(err, "notification for period %s", periodID)
	}

	if err := json.Unmarshal(payments, &n.MemberPayments); err != nil {
		return nil, fmt.Errorf("unmarshal member payments: %w", err)
	}
	return &n, nil
}

func (s *PostgresStore) UpdateMemberPaymentStatus(ctx context.Context, periodID, userID string, status model.PaymentStatus) error {
	n, err := s.GetNotificationByPeriod(ctx, periodID)
	if err != nil {
		return err
	}

	found := false
	for i := range n.MemberPayments {
		if n.MemberPayments[i].UserID == userID {
			n.MemberPayments[i].Status = status
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: payment for user %s in period %s", ErrNotFound, userID, periodID)
	}

	payments, err := json.Marshal(n.MemberPayments)
	if err != nil {
		return fmt.Errorf("marshal member payments: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE payout_notifications SET member_payments = $2 WHERE period_id = $1`,
		periodID, payments)
	return err
}

// --- Betting history ---

func (s *PostgresStore) InsertHistoryEntries(ctx context.Context, entries []model.BettingHistoryEntry) error {
	for _, e := range entries {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO betting_history (id, user_id, group_id, period_id, period_type, rank,
			                              amount_won, amount_lost, return_percent, return_value, settled_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11)`,
			e.ID, e.UserID, e.GroupID, e.PeriodID, string(e.PeriodType), e.Rank,
			e.AmountWon.String(), e.AmountLost.String(),
			e.ReturnPercent.String(), e.ReturnValue.String(),
			e.SettledAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) GetHistoryByUser(ctx context.Context, userID string) ([]model.BettingHistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, group_id, period_id, period_type, rank,
		        amount_won::TEXT, amount_lost::TEXT, return_percent::TEXT, return_value::TEXT, settled_at
		 FROM betting_history WHERE user_id = $1 ORDER BY settled_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.BettingHistoryEntry
	for rows.Next() {
		var e model.BettingHistoryEntry
		var won, lost, retPct, retVal string

		if err := rows.Scan(&e.ID, &e.UserID, &e.GroupID, &e.PeriodID, &e.PeriodType, &e.Rank,
			&won, &lost, &retPct, &retVal, &e.SettledAt); err != nil {
			return nil, err
		}

		e.AmountWon, _ = decimal.NewFromString(won)
		e.AmountLost, _ = decimal.NewFromString(lost)
		e.ReturnPercent, _ = decimal.NewFromString(retPct)
		e.ReturnValue, _ = decimal.NewFromString(retVal)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Row scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPortfolio(row rowScanner) (*model.Portfolio, error) {
	var p model.Portfolio
	var positions []byte
	var initial, current, totalRet, totalRetPct string

	if err := row.Scan(&p.ID, &p.UserID, &p.GroupID, &p.DisplayName, &positions,
		&initial, &current, &totalRet, &totalRetPct,
		&p.SubmittedAt, &p.LastUpdated); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(positions, &p.Positions); err != nil {
		return nil, fmt.Errorf("unmarshal positions: %w", err)
	}

	p.InitialValue, _ = decimal.NewFromString(initial)
	p.CurrentValue, _ = decimal.NewFromString(current)
	p.TotalReturn, _ = decimal.NewFromString(totalRet)
	p.TotalReturnPercent, _ = decimal.NewFromString(totalRetPct)

	return &p, nil
}

func scanPortfolios(rows pgx.Rows) ([]model.Portfolio, error) {
	var portfolios []model.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		portfolios = append(portfolios, *p)
	}
	return portfolios, rows.Err()
}

func scanPeriod(row rowScanner) (*model.BettingPeriod, error) {
	var p model.BettingPeriod
	var standings, payouts []byte
	var pot, fee string

	if err := row.Scan(&p.ID, &p.GroupID, &p.PeriodType, &standings, &payouts,
		&pot, &fee, &p.PayoutStructure, &p.Degraded,
		&p.PayoutStatus, &p.SettledAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(standings, &p.Standings); err != nil {
		return nil, fmt.Errorf("unmarshal standings: %w", err)
	}
	if err := json.Unmarshal(payouts, &p.WinnerPayouts); err != nil {
		return nil, fmt.Errorf("unmarshal winner payouts: %w", err)
	}

	p.TotalPot, _ = decimal.NewFromString(pot)
	p.EntryFee, _ = decimal.NewFromString(fee)

	return &p, nil
}
