package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"wheel-ledger/internal/models"
)

func newTestSQLite(t *testing.T) Ledger {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteLedger(t *testing.T) {
	runLedgerSuite(t, newTestSQLite)
}

func TestSQLiteDegradesMalformedRows(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	acct := mustAccount(t, s, 1, "Main")

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trades (account_id, ticker, asset_type, quantity, price, strike, expiration_date, strategy_type, status, entry_type, trade_date)
		VALUES (?, 'BAD', 'OPTION', 1, 'n/a', '', 'someday', 'CSP', 'OPEN', 'OPENING', '2024-03-01')
	`, acct)
	require.NoError(t, err)

	trades, err := s.ListTrades(ctx, TradeFilter{AccountID: acct})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.True(t, trades[0].Price.IsZero())
	require.Nil(t, trades[0].Strike)
	require.Nil(t, trades[0].ExpirationDate)
}

// Property: For any valid option leg, inserting it and reading it back
// produces the same ledger values (round-trip consistency).
func TestProperty_TradeRoundTrip(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	acct := mustAccount(t, s, 1, "Main")

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	tickers := []string{"AAPL", "MSFT", "XYZ", "KO", "T"}

	properties.Property("Trade round-trip: insert then get yields equal values", prop.ForAll(
		func(tickerIdx, qty int, strikeCents, premCents int64, offset int, isPut bool) bool {
			strategy := models.StrategyCC
			if isPut {
				strategy = models.StrategyCSP
			}
			tradeDate := day("2024-01-02").AddDate(0, 0, offset)
			exp := tradeDate.AddDate(0, 0, 35)
			in := &models.Trade{
				AccountID:      acct,
				Ticker:         tickers[tickerIdx%len(tickers)],
				AssetType:      models.AssetOption,
				Quantity:       qty,
				Price:          decimal.New(premCents, -2),
				Strike:         ptr(decimal.New(strikeCents, -2)),
				ExpirationDate: &exp,
				StrategyType:   strategy,
				EntryType:      models.EntryOpening,
				TradeDate:      tradeDate,
				Comment:        fmt.Sprintf("leg %d", offset),
			}

			id, err := s.InsertTrade(ctx, in)
			if err != nil {
				t.Logf("insert: %v", err)
				return false
			}
			got, err := s.GetTrade(ctx, acct, id)
			if err != nil {
				t.Logf("get: %v", err)
				return false
			}

			return got.Ticker == in.Ticker &&
				got.Quantity == in.Quantity &&
				got.Price.Equal(in.Price) &&
				got.Strike.Equal(*in.Strike) &&
				got.ExpirationDate.Equal(exp) &&
				got.TradeDate.Equal(tradeDate) &&
				got.StrategyType == strategy &&
				got.Status == models.StatusOpen &&
				got.Comment == in.Comment
		},
		gen.IntRange(0, 100),
		gen.IntRange(1, 20),
		gen.Int64Range(100, 100000),
		gen.Int64Range(1, 5000),
		gen.IntRange(0, 700),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
