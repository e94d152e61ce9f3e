package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"wheel-ledger/internal/calc"
	apperrors "wheel-ledger/internal/errors"
	"wheel-ledger/internal/logging"
	"wheel-ledger/internal/models"
	"wheel-ledger/internal/store/migrations"
)

// SQLiteStore implements Ledger using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Compile-time interface check.
var _ Ledger = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the SQLite ledger at dbPath.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "sqlite").Logger(),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema applies the embedded migrations.
func (s *SQLiteStore) initSchema() error {
	scripts, err := migrations.Scripts(migrations.SQLite)
	if err != nil {
		return err
	}
	for _, script := range scripts {
		if _, err := s.db.Exec(script); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Accounts

// CreateAccount inserts an account. Returns ErrDuplicateAccount when the user
// already has an account with that name.
func (s *SQLiteStore) CreateAccount(ctx context.Context, a *models.Account) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, name, cap_total, target_ann, max_per_ticker, access_token, environment, connection_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.UserID, a.Name, a.CapTotal.String(), a.TargetAnn.String(), a.MaxPerTicker.String(),
		nullString(a.AccessToken), accountEnvironment(a), accountStatus(a))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return 0, apperrors.ErrDuplicateAccount
		}
		return 0, fmt.Errorf("failed to create account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read account id: %w", err)
	}
	return id, nil
}

const sqliteAccountColumns = `id, user_id, name, cap_total, target_ann, max_per_ticker,
	COALESCE(access_token, ''), environment, connection_status, created_at`

func scanSQLiteAccount(scan func(...interface{}) error) (*models.Account, error) {
	var a models.Account
	var capTotal, target, maxPer string
	var created sql.NullTime
	if err := scan(&a.ID, &a.UserID, &a.Name, &capTotal, &target, &maxPer,
		&a.AccessToken, &a.Environment, &a.ConnectionStatus, &created); err != nil {
		return nil, err
	}
	a.CapTotal = calc.ParseDecimal(capTotal)
	a.TargetAnn = calc.ParseDecimal(target)
	a.MaxPerTicker = calc.ParseDecimal(maxPer)
	if created.Valid {
		a.CreatedAt = created.Time
	}
	return &a, nil
}

// GetAccount returns the account when it belongs to userID.
func (s *SQLiteStore) GetAccount(ctx context.Context, accountID, userID int64) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteAccountColumns+` FROM accounts WHERE id = ? AND user_id = ?`,
		accountID, userID)
	a, err := scanSQLiteAccount(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// ListAccounts returns the accounts of userID ordered by name.
func (s *SQLiteStore) ListAccounts(ctx context.Context, userID int64) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteAccountColumns+` FROM accounts WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanSQLiteAccount(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateAccountConfig replaces the capital settings of an account.
func (s *SQLiteStore) UpdateAccountConfig(ctx context.Context, accountID, userID int64, cfg models.AccountConfig) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET cap_total = ?, target_ann = ?, max_per_ticker = ?
		WHERE id = ? AND user_id = ?
	`, cfg.CapTotal.String(), cfg.TargetAnn.String(), cfg.MaxPerTicker.String(), accountID, userID)
	if err != nil {
		return fmt.Errorf("failed to update account config: %w", err)
	}
	return expectRows(res, apperrors.ErrAccountNotFound)
}

// UpdateAccountToken stores broker connection details for an account.
func (s *SQLiteStore) UpdateAccountToken(ctx context.Context, accountID, userID int64, token, environment, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET access_token = ?, environment = ?, connection_status = ?
		WHERE id = ? AND user_id = ?
	`, nullString(token), environment, status, accountID, userID)
	if err != nil {
		return fmt.Errorf("failed to update account token: %w", err)
	}
	return expectRows(res, apperrors.ErrAccountNotFound)
}

// DeleteAccount removes an account of userID and everything recorded under it.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, accountID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ? AND user_id = ?`, accountID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if err := expectRows(res, apperrors.ErrAccountNotFound); err != nil {
		return err
	}

	for _, table := range []string{"trades", "dividends", "position_adjustments", "campaign_adjustments"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE account_id = ?`, accountID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}

	return tx.Commit()
}

type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func sqliteAccountExists(ctx context.Context, q sqliteQuerier, accountID int64) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, accountID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.ErrAccountNotFound
		}
		return fmt.Errorf("failed to check account: %w", err)
	}
	return nil
}

// Trades

const sqliteTradeColumns = `id, account_id, ticker, asset_type, quantity, price, strike, expiration_date,
	strategy_type, status, entry_type, trade_date, closed_date, close_type, buyback_debit,
	parent_trade_id, comment`

// InsertTrade records a trade leg and returns its id.
func (s *SQLiteStore) InsertTrade(ctx context.Context, t *models.Trade) (int64, error) {
	return sqliteInsertTrade(ctx, s.db, t)
}

func sqliteInsertTrade(ctx context.Context, q sqliteQuerier, t *models.Trade) (int64, error) {
	if err := sqliteAccountExists(ctx, q, t.AccountID); err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO trades (`+tradeInsertColumns+`) VALUES (`+placeholders(questionMark, 1, tradeInsertArity)+`)`,
		tradeValues(t)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read trade id: %w", err)
	}
	return id, nil
}

// GetTrade returns one trade of the account.
func (s *SQLiteStore) GetTrade(ctx context.Context, accountID, tradeID int64) (*models.Trade, error) {
	return sqliteGetTrade(ctx, s.db, accountID, tradeID)
}

func sqliteGetTrade(ctx context.Context, q sqliteQuerier, accountID, tradeID int64) (*models.Trade, error) {
	var r tradeRow
	err := q.QueryRowContext(ctx,
		`SELECT `+sqliteTradeColumns+` FROM trades WHERE id = ? AND account_id = ?`,
		tradeID, accountID).Scan(r.dest()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	t := r.toTrade()
	return &t, nil
}

// ListTrades returns the trades matching filter.
func (s *SQLiteStore) ListTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	start := time.Now()
	tail, args := buildTradeWhere(filter, questionMark)

	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteTradeColumns+` FROM trades`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var r tradeRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
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
func (s *SQLiteStore) CloseTrade(ctx context.Context, req CloseRequest) error {
	return sqliteCloseTrade(ctx, s.db, req)
}

func sqliteCloseTrade(ctx context.Context, q sqliteQuerier, req CloseRequest) error {
	closeType := ""
	if req.BuybackDebit != nil {
		closeType = string(models.CloseBuyback)
	}
	res, err := q.ExecContext(ctx, `
		UPDATE trades
		SET status = ?, closed_date = ?,
			close_type = COALESCE(?, close_type),
			buyback_debit = COALESCE(?, buyback_debit)
		WHERE id = ? AND account_id = ? AND status = ?
	`, string(models.StatusClosed), calc.FormatDate(req.ClosedDate),
		nullString(closeType), decimalArg(req.BuybackDebit),
		req.TradeID, req.AccountID, string(models.StatusOpen))
	if err != nil {
		return fmt.Errorf("failed to close trade: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := sqliteGetTrade(ctx, q, req.AccountID, req.TradeID); err != nil {
		return err
	}
	return apperrors.ErrTradeClosed
}

// CloseAndOpen closes req's trade and inserts next in one transaction.
func (s *SQLiteStore) CloseAndOpen(ctx context.Context, req CloseRequest, next *models.Trade) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := sqliteCloseTrade(ctx, tx, req); err != nil {
		return 0, err
	}
	id, err := sqliteInsertTrade(ctx, tx, next)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return id, nil
}

// UpdateTrade edits the non-nil fields of upd on one trade.
func (s *SQLiteStore) UpdateTrade(ctx context.Context, accountID, tradeID int64, upd TradeUpdate) error {
	if upd.IsEmpty() {
		_, err := s.GetTrade(ctx, accountID, tradeID)
		return err
	}
	sets, args, _ := buildTradeUpdate(upd, questionMark)
	args = append(args, tradeID, accountID)

	res, err := s.db.ExecContext(ctx, `UPDATE trades SET `+sets+` WHERE id = ? AND account_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update trade: %w", err)
	}
	return expectRows(res, apperrors.ErrTradeNotFound)
}

// DeleteTrade removes one trade. Children keep their parent id.
func (s *SQLiteStore) DeleteTrade(ctx context.Context, accountID, tradeID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trades WHERE id = ? AND account_id = ?`, tradeID, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}
	return expectRows(res, apperrors.ErrTradeNotFound)
}

// Dividends

// InsertDividend records a dividend and returns its id.
func (s *SQLiteStore) InsertDividend(ctx context.Context, d *models.Dividend) (int64, error) {
	if err := sqliteAccountExists(ctx, s.db, d.AccountID); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO dividends (account_id, ticker, amount, ex_date, pay_date, note)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.AccountID, d.Ticker, d.Amount.String(), calc.FormatDate(d.ExDate), dateArg(d.PayDate), nullString(d.Note))
	if err != nil {
		return 0, fmt.Errorf("failed to insert dividend: %w", err)
	}
	return res.LastInsertId()
}

// ListDividends returns the dividends of an account, optionally for one ticker.
func (s *SQLiteStore) ListDividends(ctx context.Context, accountID int64, ticker string) ([]models.Dividend, error) {
	query := `SELECT id, account_id, ticker, amount, ex_date, pay_date, COALESCE(note, '') FROM dividends WHERE account_id = ?`
	args := []interface{}{accountID}
	if ticker != "" {
		query += " AND ticker = ?"
		args = append(args, strings.ToUpper(ticker))
	}
	query += " ORDER BY ex_date, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	defer rows.Close()

	var dividends []models.Dividend
	for rows.Next() {
		var d models.Dividend
		var amount, exDate string
		var payDate *string
		if err := rows.Scan(&d.ID, &d.AccountID, &d.Ticker, &amount, &exDate, &payDate, &d.Note); err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
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
func (s *SQLiteStore) InsertAdjustment(ctx context.Context, a *models.PositionAdjustment) (int64, error) {
	if err := sqliteAccountExists(ctx, s.db, a.AccountID); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO position_adjustments (account_id, trade_id, ticker, adjustment_type, old_value, new_value, note)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.AccountID, a.TradeID, a.Ticker, string(a.Type), decimalArg(a.OldValue), decimalArg(a.NewValue), nullString(a.Note))
	if err != nil {
		return 0, fmt.Errorf("failed to insert adjustment: %w", err)
	}
	return res.LastInsertId()
}

// ListAdjustments returns the adjustments of an account, optionally for one ticker.
func (s *SQLiteStore) ListAdjustments(ctx context.Context, accountID int64, ticker string) ([]models.PositionAdjustment, error) {
	query := `SELECT id, account_id, trade_id, ticker, adjustment_type, old_value, new_value, COALESCE(note, ''), created_at
		FROM position_adjustments WHERE account_id = ?`
	args := []interface{}{accountID}
	if ticker != "" {
		query += " AND ticker = ?"
		args = append(args, strings.ToUpper(ticker))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []models.PositionAdjustment
	for rows.Next() {
		var a models.PositionAdjustment
		var adjType string
		var oldValue, newValue *string
		var created sql.NullTime
		if err := rows.Scan(&a.ID, &a.AccountID, &a.TradeID, &a.Ticker, &adjType, &oldValue, &newValue, &a.Note, &created); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		a.Type = models.AdjustmentType(adjType)
		a.OldValue = decimalPtr(oldValue)
		a.NewValue = decimalPtr(newValue)
		if created.Valid {
			a.CreatedAt = created.Time
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

// Campaign adjustments

// GetCampaignAdjustment returns the fees recorded for a campaign root.
func (s *SQLiteStore) GetCampaignAdjustment(ctx context.Context, accountID, rootID int64) (*models.CampaignAdjustment, error) {
	var commissions, fees string
	err := s.db.QueryRowContext(ctx, `
		SELECT commissions, fees FROM campaign_adjustments
		WHERE account_id = ? AND campaign_root_id = ?
	`, accountID, rootID).Scan(&commissions, &fees)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign adjustment: %w", err)
	}
	return &models.CampaignAdjustment{
		AccountID:      accountID,
		CampaignRootID: rootID,
		Commissions:    calc.ParseDecimal(commissions),
		Fees:           calc.ParseDecimal(fees),
	}, nil
}

// UpsertCampaignAdjustment inserts or replaces the fees of a campaign root.
func (s *SQLiteStore) UpsertCampaignAdjustment(ctx context.Context, adj *models.CampaignAdjustment) error {
	if err := sqliteAccountExists(ctx, s.db, adj.AccountID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign_adjustments (account_id, campaign_root_id, commissions, fees, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account_id, campaign_root_id) DO UPDATE SET
			commissions = excluded.commissions,
			fees = excluded.fees,
			updated_at = CURRENT_TIMESTAMP
	`, adj.AccountID, adj.CampaignRootID, adj.Commissions.String(), adj.Fees.String())
	if err != nil {
		return fmt.Errorf("failed to upsert campaign adjustment: %w", err)
	}
	return nil
}

func expectRows(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func accountEnvironment(a *models.Account) string {
	if a.Environment == "" {
		return "sandbox"
	}
	return a.Environment
}

func accountStatus(a *models.Account) string {
	if a.ConnectionStatus == "" {
		return "offline"
	}
	return a.ConnectionStatus
}
