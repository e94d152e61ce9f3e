package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"wheel-ledger/internal/calc"
	apperrors "wheel-ledger/internal/errors"
	"wheel-ledger/internal/logging"
	"wheel-ledger/internal/models"
	"wheel-ledger/internal/store/migrations"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDSN, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// ErrInvalidDSN is returned when the postgres connection string cannot be parsed.
var ErrInvalidDSN = errors.New("invalid postgres dsn")

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// PostgresStore implements Ledger using PostgreSQL. Numeric and date columns
// are exchanged as text so decimals round-trip exactly.
type PostgresStore struct {
	pool   *Pool
	logger zerolog.Logger
}

// Compile-time interface check.
var _ Ledger = (*PostgresStore)(nil)

// NewPostgresStore wraps pool and applies the embedded schema.
func NewPostgresStore(ctx context.Context, pool *Pool, logger zerolog.Logger) (*PostgresStore, error) {
	s := &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("component", "postgres").Logger(),
	}
	if err := s.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return s, nil
}

// Migrate applies the embedded migrations in order.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	scripts, err := migrations.Scripts(migrations.Postgres)
	if err != nil {
		return err
	}
	for i, script := range scripts {
		if _, err := s.pool.Exec(ctx, script); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// pgQuerier is satisfied by both the pool and a transaction.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Accounts

// CreateAccount inserts an account. Returns ErrDuplicateAccount when the user
// already has an account with that name.
func (s *PostgresStore) CreateAccount(ctx context.Context, a *models.Account) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (user_id, name, cap_total, target_ann, max_per_ticker, access_token, environment, connection_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, a.UserID, a.Name, a.CapTotal.String(), a.TargetAnn.String(), a.MaxPerTicker.String(),
		nullString(a.AccessToken), accountEnvironment(a), accountStatus(a)).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, apperrors.ErrDuplicateAccount
		}
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return id, nil
}

const pgAccountColumns = `id, user_id, name, cap_total::text, target_ann::text, max_per_ticker::text,
	COALESCE(access_token, ''), environment, connection_status, created_at`

func scanPgAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var capTotal, target, maxPer string
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &capTotal, &target, &maxPer,
		&a.AccessToken, &a.Environment, &a.ConnectionStatus, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.CapTotal = calc.ParseDecimal(capTotal)
	a.TargetAnn = calc.ParseDecimal(target)
	a.MaxPerTicker = calc.ParseDecimal(maxPer)
	return &a, nil
}

// GetAccount returns the account when it belongs to userID.
func (s *PostgresStore) GetAccount(ctx context.Context, accountID, userID int64) (*models.Account, error) {
	a, err := scanPgAccount(s.pool.QueryRow(ctx,
		`SELECT `+pgAccountColumns+` FROM accounts WHERE id = $1 AND user_id = $2`, accountID, userID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// ListAccounts returns the accounts of userID ordered by name.
func (s *PostgresStore) ListAccounts(ctx context.Context, userID int64) ([]models.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgAccountColumns+` FROM accounts WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanPgAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateAccountConfig replaces the capital settings of an account.
func (s *PostgresStore) UpdateAccountConfig(ctx context.Context, accountID, userID int64, cfg models.AccountConfig) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET cap_total = $1, target_ann = $2, max_per_ticker = $3
		WHERE id = $4 AND user_id = $5
	`, cfg.CapTotal.String(), cfg.TargetAnn.String(), cfg.MaxPerTicker.String(), accountID, userID)
	if err != nil {
		return fmt.Errorf("update account config: %w", err)
	}
	return expectTag(tag, apperrors.ErrAccountNotFound)
}

// UpdateAccountToken stores broker connection details for an account.
func (s *PostgresStore) UpdateAccountToken(ctx context.Context, accountID, userID int64, token, environment, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET access_token = $1, environment = $2, connection_status = $3
		WHERE id = $4 AND user_id = $5
	`, nullString(token), environment, status, accountID, userID)
	if err != nil {
		return fmt.Errorf("update account token: %w", err)
	}
	return expectTag(tag, apperrors.ErrAccountNotFound)
}

// DeleteAccount removes an account of userID and everything recorded under it.
func (s *PostgresStore) DeleteAccount(ctx context.Context, accountID, userID int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1 AND user_id = $2`, accountID, userID)
		if err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		if err := expectTag(tag, apperrors.ErrAccountNotFound); err != nil {
			return err
		}
		for _, table := range []string{"trades", "dividends", "position_adjustments", "campaign_adjustments"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE account_id = $1`, accountID); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		return nil
	})
}

func pgAccountExists(ctx context.Context, q pgQuerier, accountID int64) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
		return fmt.Errorf("check account: %w", err)
	}
	if !exists {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

// Trades

const pgTradeColumns = `id, account_id, ticker, asset_type, quantity, price::text, strike::text,
	expiration_date::text, strategy_type, status, entry_type, trade_date::text, closed_date::text,
	close_type, buyback_debit::text, parent_trade_id, comment`

// InsertTrade records a trade leg and returns its id.
func (s *PostgresStore) InsertTrade(ctx context.Context, t *models.Trade) (int64, error) {
	return pgInsertTrade(ctx, s.pool, t)
}

func pgInsertTrade(ctx context.Context, q pgQuerier, t *models.Trade) (int64, error) {
	if err := pgAccountExists(ctx, q, t.AccountID); err != nil {
		return 0, err
	}
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO trades (`+tradeInsertColumns+`) VALUES (`+placeholders(dollar, 1, tradeInsertArity)+`) RETURNING id`,
		tradeValues(t)...).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	return id, nil
}

// GetTrade returns one trade of the account.
func (s *PostgresStore) GetTrade(ctx context.Context, accountID, tradeID int64) (*models.Trade, error) {
	return pgGetTrade(ctx, s.pool, accountID, tradeID)
}

func pgGetTrade(ctx context.Context, q pgQuerier, accountID, tradeID int64) (*models.Trade, error) {
	var r tradeRow
	err := q.QueryRow(ctx,
		`SELECT `+pgTradeColumns+` FROM trades WHERE id = $1 AND account_id = $2`,
		tradeID, accountID).Scan(r.dest()...)
	if err != nil {
		if isNotFoundError(err) {
			return nil, apperrors.ErrTradeNotFound
		}
		return nil, fmt.Errorf("get trade: %w", err)
	}
	t := r.toTrade()
	return &t, nil
}

// ListTrades returns the trades matching filter.
func (s *PostgresStore) ListTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	start := time.Now()
	tail, args := buildTradeWhere(filter, dollar)

	rows, err := s.pool.Query(ctx, `SELECT `+pgTradeColumns+` FROM trades`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var r tradeRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, r.toTrade())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logging.LogQuery(logging.WithAccount(s.logger, filter.AccountID), "list_trades", time.Since(start), nil)
	return trades, nil
}

// CloseTrade marks an open trade closed.
func (s *PostgresStore) CloseTrade(ctx context.Context, req CloseRequest) error {
	return pgCloseTrade(ctx, s.pool, req)
}

func pgCloseTrade(ctx context.Context, q pgQuerier, req CloseRequest) error {
	closeType := ""
	if req.BuybackDebit != nil {
		closeType = string(models.CloseBuyback)
	}
	tag, err := q.Exec(ctx, `
		UPDATE trades
		SET status = $1, closed_date = $2,
			close_type = COALESCE($3, close_type),
			buyback_debit = COALESCE($4, buyback_debit)
		WHERE id = $5 AND account_id = $6 AND status = $7
	`, string(models.StatusClosed), calc.FormatDate(req.ClosedDate),
		nullString(closeType), decimalArg(req.BuybackDebit),
		req.TradeID, req.AccountID, string(models.StatusOpen))
	if err != nil {
		return fmt.Errorf("close trade: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := pgGetTrade(ctx, q, req.AccountID, req.TradeID); err != nil {
		return err
	}
	return apperrors.ErrTradeClosed
}

// CloseAndOpen closes req's trade and inserts next in one transaction.
func (s *PostgresStore) CloseAndOpen(ctx context.Context, req CloseRequest, next *models.Trade) (int64, error) {
	var id int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := pgCloseTrade(ctx, tx, req); err != nil {
			return err
		}
		var err error
		id, err = pgInsertTrade(ctx, tx, next)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateTrade edits the non-nil fields of upd on one trade.
func (s *PostgresStore) UpdateTrade(ctx context.Context, accountID, tradeID int64, upd TradeUpdate) error {
	if upd.IsEmpty() {
		_, err := s.GetTrade(ctx, accountID, tradeID)
		return err
	}
	sets, args, next := buildTradeUpdate(upd, dollar)
	args = append(args, tradeID, accountID)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE trades SET %s WHERE id = $%d AND account_id = $%d`, sets, next, next+1), args...)
	if err != nil {
		return fmt.Errorf("update trade: %w", err)
	}
	return expectTag(tag, apperrors.ErrTradeNotFound)
}

// DeleteTrade removes one trade. Children keep their parent id.
func (s *PostgresStore) DeleteTrade(ctx context.Context, accountID, tradeID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE id = $1 AND account_id = $2`, tradeID, accountID)
	if err != nil {
		return fmt.Errorf("delete trade: %w", err)
	}
	return expectTag(tag, apperrors.ErrTradeNotFound)
}

// Dividends

// InsertDividend records a dividend and returns its id.
func (s *PostgresStore) InsertDividend(ctx context.Context, d *models.Dividend) (int64, error) {
	if err := pgAccountExists(ctx, s.pool, d.AccountID); err != nil {
		return 0, err
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO dividends (account_id, ticker, amount, ex_date, pay_date, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, d.AccountID, d.Ticker, d.Amount.String(), calc.FormatDate(d.ExDate), dateArg(d.PayDate), nullString(d.Note)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert dividend: %w", err)
	}
	return id, nil
}

// ListDividends returns the dividends of an account, optionally for one ticker.
func (s *PostgresStore) ListDividends(ctx context.Context, accountID int64, ticker string) ([]models.Dividend, error) {
	query := `SELECT id, account_id, ticker, amount::text, ex_date::text, pay_date::text, COALESCE(note, '')
		FROM dividends WHERE account_id = $1`
	args := []any{accountID}
	if ticker != "" {
		query += " AND ticker = $2"
		args = append(args, strings.ToUpper(ticker))
	}
	query += " ORDER BY ex_date, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dividends: %w", err)
	}
	defer rows.Close()

	var dividends []models.Dividend
	for rows.Next() {
		var d models.Dividend
		var amount, exDate string
		var payDate *string
		if err := rows.Scan(&d.ID, &d.AccountID, &d.Ticker, &amount, &exDate, &payDate, &d.Note); err != nil {
			return nil, fmt.Errorf("scan dividend: %w", err)
		}
		d.Amount = calc.ParseDecimal(amount)
		d.ExDate, _ = calc.ParseDate(exDate)
		d.PayDate = datePtr(payDate)
		dividends = append(dividends, d)
	}
	return dividends, rows.Err()
}

// Adjustments

// InsertAdjustment records a position adjustment and returns its id.
func (s *PostgresStore) InsertAdjustment(ctx context.Context, a *models.PositionAdjustment) (int64, error) {
	if err := pgAccountExists(ctx, s.pool, a.AccountID); err != nil {
		return 0, err
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO position_adjustments (account_id, trade_id, ticker, adjustment_type, old_value, new_value, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, a.AccountID, a.TradeID, a.Ticker, string(a.Type), decimalArg(a.OldValue), decimalArg(a.NewValue), nullString(a.Note)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert adjustment: %w", err)
	}
	return id, nil
}

// ListAdjustments returns the adjustments of an account, optionally for one ticker.
func (s *PostgresStore) ListAdjustments(ctx context.Context, accountID int64, ticker string) ([]models.PositionAdjustment, error) {
	query := `SELECT id, account_id, trade_id, ticker, adjustment_type, old_value::text, new_value::text,
		COALESCE(note, ''), created_at
		FROM position_adjustments WHERE account_id = $1`
	args := []any{accountID}
	if ticker != "" {
		query += " AND ticker = $2"
		args = append(args, strings.ToUpper(ticker))
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []models.PositionAdjustment
	for rows.Next() {
		var a models.PositionAdjustment
		var adjType string
		var oldValue, newValue *string
		if err := rows.Scan(&a.ID, &a.AccountID, &a.TradeID, &a.Ticker, &adjType, &oldValue, &newValue, &a.Note, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		a.Type = models.AdjustmentType(adjType)
		a.OldValue = decimalPtr(oldValue)
		a.NewValue = decimalPtr(newValue)
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

// Campaign adjustments

// GetCampaignAdjustment returns the fees recorded for a campaign root.
func (s *PostgresStore) GetCampaignAdjustment(ctx context.Context, accountID, rootID int64) (*models.CampaignAdjustment, error) {
	var commissions, fees string
	err := s.pool.QueryRow(ctx, `
		SELECT commissions::text, fees::text FROM campaign_adjustments
		WHERE account_id = $1 AND campaign_root_id = $2
	`, accountID, rootID).Scan(&commissions, &fees)
	if err != nil {
		if isNotFoundError(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get campaign adjustment: %w", err)
	}
	return &models.CampaignAdjustment{
		AccountID:      accountID,
		CampaignRootID: rootID,
		Commissions:    calc.ParseDecimal(commissions),
		Fees:           calc.ParseDecimal(fees),
	}, nil
}

// UpsertCampaignAdjustment inserts or replaces the fees of a campaign root.
func (s *PostgresStore) UpsertCampaignAdjustment(ctx context.Context, adj *models.CampaignAdjustment) error {
	if err := pgAccountExists(ctx, s.pool, adj.AccountID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO campaign_adjustments (account_id, campaign_root_id, commissions, fees, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (account_id, campaign_root_id) DO UPDATE
		SET commissions = EXCLUDED.commissions,
		    fees = EXCLUDED.fees,
		    updated_at = NOW()
	`, adj.AccountID, adj.CampaignRootID, adj.Commissions.String(), adj.Fees.String())
	if err != nil {
		return fmt.Errorf("upsert campaign adjustment: %w", err)
	}
	return nil
}

func expectTag(tag pgconn.CommandTag, notFound error) error {
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
