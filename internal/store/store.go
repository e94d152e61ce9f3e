// Package store provides the ledger port and its SQLite and PostgreSQL adapters.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"wheel-ledger/internal/models"
)

// Ledger is the storage port for accounts, trades, dividends and adjustments.
// Every trade-level operation is scoped by account id; writes against a
// missing or foreign account are not-found and change nothing.
type Ledger interface {
	// Accounts
	CreateAccount(ctx context.Context, account *models.Account) (int64, error)
	GetAccount(ctx context.Context, accountID, userID int64) (*models.Account, error)
	ListAccounts(ctx context.Context, userID int64) ([]models.Account, error)
	UpdateAccountConfig(ctx context.Context, accountID, userID int64, cfg models.AccountConfig) error
	UpdateAccountToken(ctx context.Context, accountID, userID int64, token, environment, status string) error
	DeleteAccount(ctx context.Context, accountID, userID int64) error

	// Trades
	InsertTrade(ctx context.Context, trade *models.Trade) (int64, error)
	GetTrade(ctx context.Context, accountID, tradeID int64) (*models.Trade, error)
	ListTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)
	CloseTrade(ctx context.Context, req CloseRequest) error
	CloseAndOpen(ctx context.Context, req CloseRequest, next *models.Trade) (int64, error)
	UpdateTrade(ctx context.Context, accountID, tradeID int64, upd TradeUpdate) error
	DeleteTrade(ctx context.Context, accountID, tradeID int64) error

	// Dividends & adjustments
	InsertDividend(ctx context.Context, d *models.Dividend) (int64, error)
	ListDividends(ctx context.Context, accountID int64, ticker string) ([]models.Dividend, error)
	InsertAdjustment(ctx context.Context, a *models.PositionAdjustment) (int64, error)
	ListAdjustments(ctx context.Context, accountID int64, ticker string) ([]models.PositionAdjustment, error)

	// Campaign adjustments
	GetCampaignAdjustment(ctx context.Context, accountID, rootID int64) (*models.CampaignAdjustment, error)
	UpsertCampaignAdjustment(ctx context.Context, adj *models.CampaignAdjustment) error

	// Lifecycle
	Close() error
}

// TradeFilter represents filters for querying trades of one account.
// Results are ordered by trade_date then id, ascending unless NewestFirst.
type TradeFilter struct {
	AccountID   int64
	Ticker      string
	Status      models.TradeStatus
	AssetType   models.AssetType
	Strategy    models.StrategyType
	OpenedFrom  time.Time
	OpenedTo    time.Time
	ClosedFrom  time.Time
	ClosedTo    time.Time
	NewestFirst bool
	Limit       int
}

// CloseRequest closes one open trade.
type CloseRequest struct {
	AccountID    int64
	TradeID      int64
	ClosedDate   time.Time
	BuybackDebit *decimal.Decimal
}

// TradeUpdate lists the editable fields of a trade. Nil fields are left unchanged.
type TradeUpdate struct {
	Price          *decimal.Decimal
	Strike         *decimal.Decimal
	ExpirationDate *time.Time
	Comment        *string
	Quantity       *int
	TradeDate      *time.Time
}

// IsEmpty reports whether the update changes nothing.
func (u TradeUpdate) IsEmpty() bool {
	return u.Price == nil && u.Strike == nil && u.ExpirationDate == nil &&
		u.Comment == nil && u.Quantity == nil && u.TradeDate == nil
}
