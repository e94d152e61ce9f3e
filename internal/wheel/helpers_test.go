package wheel

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"wheel-ledger/internal/models"
	"wheel-ledger/internal/store"
)

const testUser int64 = 1

var testToday = time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testToday }

type fixture struct {
	ctx     context.Context
	ledger  store.Ledger
	svc     *Service
	account int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "wheel.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	svc := NewService(ledger, zerolog.Nop(), WithClock(fixedClock))
	ctx := context.Background()
	account, err := svc.CreateAccount(ctx, testUser, "Main", nil)
	require.NoError(t, err)

	return &fixture{ctx: ctx, ledger: ledger, svc: svc, account: account}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T {
	return &v
}

func (f *fixture) openCSP(t *testing.T, ticker string, contracts int, strike, premium, tradeDate, expiration string) int64 {
	t.Helper()
	id, err := f.svc.RegisterCSPOpening(f.ctx, OptionOpening{
		AccountID:      f.account,
		Ticker:         ticker,
		Quantity:       contracts,
		Strike:         dec(strike),
		Premium:        dec(premium),
		ExpirationDate: day(expiration),
		TradeDate:      day(tradeDate),
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) buyStock(t *testing.T, ticker string, qty int, price, tradeDate string) int64 {
	t.Helper()
	id, err := f.svc.RegisterDirectPurchase(f.ctx, PurchaseRequest{
		AccountID: f.account,
		Ticker:    ticker,
		Quantity:  qty,
		Price:     dec(price),
		TradeDate: day(tradeDate),
	})
	require.NoError(t, err)
	return id
}

// insertCC writes a covered call directly, bypassing the free share check.
func (f *fixture) insertCC(t *testing.T, ticker string, contracts int, strike, premium, tradeDate string) int64 {
	t.Helper()
	exp := day(tradeDate).AddDate(0, 0, 30)
	id, err := f.ledger.InsertTrade(f.ctx, &models.Trade{
		AccountID:      f.account,
		Ticker:         ticker,
		AssetType:      models.AssetOption,
		Quantity:       contracts,
		Price:          dec(premium),
		Strike:         ptr(dec(strike)),
		ExpirationDate: &exp,
		StrategyType:   models.StrategyCC,
		Status:         models.StatusOpen,
		EntryType:      models.EntryOpening,
		TradeDate:      day(tradeDate),
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) trades(t *testing.T) []models.Trade {
	t.Helper()
	trades, err := f.ledger.ListTrades(f.ctx, store.TradeFilter{AccountID: f.account})
	require.NoError(t, err)
	return trades
}
