package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "wheel-ledger/internal/errors"
	"wheel-ledger/internal/models"
)

// runLedgerSuite exercises the Ledger contract. Both adapters run it so their
// semantics stay identical.
func runLedgerSuite(t *testing.T, newLedger func(t *testing.T) Ledger) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, newLedger(t)) })
	t.Run("trade round trip", func(t *testing.T) { testTradeRoundTrip(t, newLedger(t)) })
	t.Run("account scoping", func(t *testing.T) { testAccountScoping(t, newLedger(t)) })
	t.Run("list filters and order", func(t *testing.T) { testListTrades(t, newLedger(t)) })
	t.Run("close trade", func(t *testing.T) { testCloseTrade(t, newLedger(t)) })
	t.Run("close and open", func(t *testing.T) { testCloseAndOpen(t, newLedger(t)) })
	t.Run("update and delete", func(t *testing.T) { testUpdateDelete(t, newLedger(t)) })
	t.Run("dividends and adjustments", func(t *testing.T) { testDividendsAdjustments(t, newLedger(t)) })
	t.Run("campaign adjustments", func(t *testing.T) { testCampaignAdjustments(t, newLedger(t)) })
	t.Run("delete account cascades", func(t *testing.T) { testDeleteAccount(t, newLedger(t)) })
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

func mustAccount(t *testing.T, l Ledger, userID int64, name string) int64 {
	t.Helper()
	cfg := models.DefaultAccountConfig()
	id, err := l.CreateAccount(context.Background(), &models.Account{
		UserID:       userID,
		Name:         name,
		CapTotal:     cfg.CapTotal,
		TargetAnn:    cfg.TargetAnn,
		MaxPerTicker: cfg.MaxPerTicker,
	})
	require.NoError(t, err)
	return id
}

func cspTrade(accountID int64, ticker, strike, premium, tradeDate string) *models.Trade {
	exp := day(tradeDate).AddDate(0, 0, 30)
	return &models.Trade{
		AccountID:      accountID,
		Ticker:         ticker,
		AssetType:      models.AssetOption,
		Quantity:       1,
		Price:          dec(premium),
		Strike:         ptr(dec(strike)),
		ExpirationDate: &exp,
		StrategyType:   models.StrategyCSP,
		Status:         models.StatusOpen,
		EntryType:      models.EntryOpening,
		TradeDate:      day(tradeDate),
	}
}

func testAccounts(t *testing.T, l Ledger) {
	ctx := context.Background()

	id := mustAccount(t, l, 1, "Main")
	mustAccount(t, l, 1, "IRA")
	mustAccount(t, l, 2, "Main")

	_, err := l.CreateAccount(ctx, &models.Account{UserID: 1, Name: "Main"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateAccount)

	acct, err := l.GetAccount(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "Main", acct.Name)
	assert.True(t, acct.CapTotal.Equal(dec("100000")))
	assert.Equal(t, "sandbox", acct.Environment)

	_, err = l.GetAccount(ctx, id, 2)
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound, "another user's account is invisible")

	accounts, err := l.ListAccounts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "IRA", accounts[0].Name)

	err = l.UpdateAccountConfig(ctx, id, 1, models.AccountConfig{
		CapTotal: dec("50000"), TargetAnn: dec("15"), MaxPerTicker: dec("25"),
	})
	require.NoError(t, err)
	acct, err = l.GetAccount(ctx, id, 1)
	require.NoError(t, err)
	assert.True(t, acct.CapTotal.Equal(dec("50000")))
	assert.True(t, acct.MaxPerTicker.Equal(dec("25")))

	err = l.UpdateAccountConfig(ctx, id, 2, models.DefaultAccountConfig())
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)

	require.NoError(t, l.UpdateAccountToken(ctx, id, 1, "tok", "production", "online"))
	acct, err = l.GetAccount(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "tok", acct.AccessToken)
	assert.Equal(t, "online", acct.ConnectionStatus)
}

func testTradeRoundTrip(t *testing.T, l Ledger) {
	ctx := context.Background()
	acct := mustAccount(t, l, 1, "Main")

	in := cspTrade(acct, "XYZ", "97.50", "1.255", "2024-03-01")
	in.Comment = "first put"
	id, err := l.InsertTrade(ctx, in)
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := l.GetTrade(ctx, acct, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "XYZ", got.Ticker)
	assert.Equal(t, models.AssetOption, got.AssetType)
	assert.True(t, got.Price.Equal(dec("1.255")), "price %s", got.Price)
	require.NotNil(t, got.Strike)
	assert.True(t, got.Strike.Equal(dec("97.5")))
	require.NotNil(t, got.ExpirationDate)
	assert.True(t, got.ExpirationDate.Equal(day("2024-03-31")))
	assert.True(t, got.TradeDate.Equal(day("2024-03-01")))
	assert.Equal(t, models.StatusOpen, got.Status)
	assert.Equal(t, models.EntryOpening, got.EntryType)
	assert.Nil(t, got.ParentTradeID)
	assert.Nil(t, got.ClosedDate)
	assert.Nil(t, got.BuybackDebit)
	assert.Equal(t, "first put", got.Comment)

	stock := &models.Trade{
		AccountID:     acct,
		Ticker:        "XYZ",
		AssetType:     models.AssetStock,
		Quantity:      100,
		Price:         dec("97.50"),
		StrategyType:  models.StrategyStock,
		Status:        models.StatusOpen,
		EntryType:     models.EntryAssignment,
		TradeDate:     day("2024-03-31"),
		ParentTradeID: &id,
	}
	sid, err := l.InsertTrade(ctx, stock)
	require.NoError(t, err)
	got, err = l.GetTrade(ctx, acct, sid)
	require.NoError(t, err)
	require.NotNil(t, got.ParentTradeID)
	assert.Equal(t, id, *got.ParentTradeID)
	assert.Nil(t, got.Strike)
	assert.Nil(t, got.ExpirationDate)
	assert.Equal(t, models.EntryAssignment, got.EntryType)
}

func testAccountScoping(t *testing.T, l Ledger) {
	ctx := context.Background()
	a := mustAccount(t, l, 1, "A")
	b := mustAccount(t, l, 2, "B")

	id, err := l.InsertTrade(ctx, cspTrade(a, "XYZ", "100", "2", "2024-03-01"))
	require.NoError(t, err)

	_, err = l.InsertTrade(ctx, cspTrade(9999, "XYZ", "100", "2", "2024-03-01"))
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)

	_, err = l.GetTrade(ctx, b, id)
	assert.ErrorIs(t, err, apperrors.ErrTradeNotFound)

	err = l.CloseTrade(ctx, CloseRequest{AccountID: b, TradeID: id, ClosedDate: day("2024-03-10")})
	assert.ErrorIs(t, err, apperrors.ErrTradeNotFound)

	err = l.UpdateTrade(ctx, b, id, TradeUpdate{Comment: ptr("hijack")})
	assert.ErrorIs(t, err, apperrors.ErrTradeNotFound)

	err = l.DeleteTrade(ctx, b, id)
	assert.ErrorIs(t, err, apperrors.ErrTradeNotFound)

	got, err := l.GetTrade(ctx, a, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Status)
	assert.Empty(t, got.Comment)

	_, err = l.InsertDividend(ctx, &models.Dividend{AccountID: 9999, Ticker: "XYZ", Amount: dec("1"), ExDate: day("2024-03-01")})
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

func testListTrades(t *testing.T, l Ledger) {
	ctx := context.Background()
	acct := mustAccount(t, l, 1, "Main")

	first, err := l.InsertTrade(ctx, cspTrade(acct, "XYZ", "100", "2", "2024-03-05"))
	require.NoError(t, err)
	second, err := l.InsertTrade(ctx, cspTrade(acct, "XYZ", "95", "1", "2024-03-01"))
	require.NoError(t, err)
	third, err := l.InsertTrade(ctx, cspTrade(acct, "ABC", "40", "0.5", "2024-03-05"))
	require.NoError(t, err)
	require.NoError(t, l.CloseTrade(ctx, CloseRequest{AccountID: acct, TradeID: second, ClosedDate: day("2024-03-20")}))

	all, err := l.ListTrades(ctx, TradeFilter{AccountID: acct})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{second, first, third}, ids(all), "ascending by trade date then id")

	newest, err := l.ListTrades(ctx, TradeFilter{AccountID: acct, NewestFirst: true, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{third}, ids(newest))

	open, err := l.ListTrades(ctx, TradeFilter{AccountID: acct, Status: models.StatusOpen, Ticker: "xyz"})
	require.NoError(t, err)
	assert.Equal(t, []int64{first}, ids(open))

	closed, err := l.ListTrades(ctx, TradeFilter{AccountID: acct, ClosedFrom: day("2024-03-15"), ClosedTo: day("2024-03-31")})
	require.NoError(t, err)
	assert.Equal(t, []int64{second}, ids(closed))

	opened, err := l.ListTrades(ctx, TradeFilter{AccountID: acct, OpenedFrom: day("2024-03-02")})
	require.NoError(t, err)
	assert.Equal(t, []int64{first, third}, ids(opened))
}

func ids(trades []models.Trade) []int64 {
	out := make([]int64, len(trades))
	for i, tr := range trades {
		out[i] = tr.ID
	}
	return out
}

func testCloseTrade(t *testing.T, l Ledger) {
	ctx := context.Background()
	acct := mustAccount(t, l, 1, "Main")

	id, err := l.InsertTrade(ctx, cspTrade(acct, "XYZ", "100", "2", "2024-03-01"))
	require.NoError(t, err)

	debit := dec("80")
	require.NoError(t, l.CloseTrade(ctx, CloseRequest{AccountID: acct, TradeID: id, ClosedDate: day("2024-03-15"), BuybackDebit: &debit}))

	got, err := l.GetTrade(ctx, acct, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)
	require.NotNil(t, got.ClosedDate)
	assert.True(t, got.ClosedDate.Equal(day("2024-03-15")))
	assert.Equal(t, models.CloseBuyback, got.CloseType)
	require.NotNil(t, got.BuybackDebit)
	assert.True(t, got.BuybackDebit.Equal(debit))

	err = l.CloseTrade(ctx, CloseRequest{AccountID: acct, TradeID: id, ClosedDate: day("2024-03-16")})
	assert.ErrorIs(t, err, apperrors.ErrTradeClosed)

	err = l.CloseTrade(ctx, CloseRequest{AccountID: acct, TradeID: 424242, ClosedDate: day("2024-03-16")})
	assert.ErrorIs(t, err, apperrors.ErrTradeNotFound)
}

func testCloseAndOpen(t *testing.T, l Ledger) {
	ctx := context.Background()
	acct := mustAccount(t, l, 1, "Main")

	parent, err := l.InsertTrade(ctx, cspTrade(acct, "XYZ", "50", "1", "2024-03-01"))
	require.NoError(t, err)

	next := &models.Trade{
		AccountID:     acct,
		Ticker:        "XYZ",
		AssetType:     models.AssetStock,
		Quantity:      100,
		Price:         dec("50"),
		StrategyType:  models.StrategyStock,
		EntryType:     models.EntryAssignment,
		TradeDate:     day("2024-03-31"),
		ParentTradeID: &parent,
	}
	id, err := l.CloseAndOpen(ctx, CloseRequest{AccountID: acct, TradeID: parent, ClosedDate: day("2024-03-31")}, next)
	require.NoError(t, err)

	p, err := l.GetTrade(ctx, acct, parent)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, p.Status)

	child, err := l.GetTrade(ctx, acct, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, child.Status)

	// A failed close leaves nothing behind.
	before, err := l.ListTrades(ctx, TradeFilter{AccountID: acct})
	require.NoError(t, err)
	_, err = l.CloseAndOpen(ctx, CloseRequest{AccountID: acct, TradeID: parent, ClosedDate: day("2024-04-01")}, next)
	assert.ErrorIs(t, err, apperrors.ErrTradeClosed)
	after, err := l.ListTrades(ctx, TradeFilter{AccountID: acct})
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))

	// A failed insert rolls the close back.
	open, err := l.InsertTrade(ctx, cspTrade(acct, "XYZ", "45", "1", "2024-04-01"))
	require.NoError(t, err)
	bad := *next
	bad.AccountID = 9999
	_, err = l.CloseAndOpen(ctx, CloseRequest{AccountID: acct, TradeID: open, ClosedDate: day("2024-04-02")}, &bad)
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
	still, err := l.GetTrade(ctx, acct, open)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, still.Status)
}

func testUpdateDelete(t *testing.T, l Ledger) {
	ctx := context.Background()
	acct := mustAccount(t, l, 1, "Main")

	id, err := l.InsertTrade(ctx, cspTrade(acct, "XYZ", "100", "2", "2024-03-01"))
	require.NoError(t, err)

	exp := day("2024-05-17")
	err = l.UpdateTrade(ctx, acct, id, TradeUpdate{
		Price:          ptr(dec("2.15")),
		Strike:         ptr(dec("99")),
		ExpirationDate: &exp,
		Comment:        ptr("edited"),
		Quantity:       ptr(2),
		TradeDate:      ptr(day("2024-03-02")),
	})
	require.NoError(t, err)

	got, err := l.GetTrade(ctx, acct, id)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(dec("2.15")))
	assert.True(t, got.Strike.Equal(dec("99")))
	assert.True(t, got.ExpirationDate.Equal(exp))
	assert.Equal(t, "edited", got.Comment)
	assert.Equal(t, 2, got.Quantity)
	assert.True(t, got.TradeDate.Equal(day("2024-03-02")))

	require.NoError(t, l.UpdateTrade(ctx, acct, id, TradeUpdate{}))
	assert.ErrorIs(t, l.UpdateTrade(ctx, acct, 424242, TradeUpdate{}), apperrors.ErrTradeNotFound)

	require.NoError(t, l.DeleteTrade(ctx, acct, id))
	_, err = l.GetTrade(ctx, acct, id)
	assert.ErrorIs(t, err, apperrors.ErrTradeNotFound)
}

func testDividendsAdjustments(t *testing.T, l Ledger) {
	ctx := context.Background()
	acct := mustAccount(t, l, 1, "Main")

	_, err := l.InsertDividend(ctx, &models.Dividend{AccountID: acct, Ticker: "XYZ", Amount: dec("44.00"), ExDate: day("2024-04-10"), PayDate: ptr(day("2024-04-25")), Note: "Q1"})
	require.NoError(t, err)
	_, err = l.InsertDividend(ctx, &models.Dividend{AccountID: acct, Ticker: "ABC", Amount: dec("5"), ExDate: day("2024-04-01")})
	require.NoError(t, err)

	all, err := l.ListDividends(ctx, acct, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ABC", all[0].Ticker, "ordered by ex date")

	xyz, err := l.ListDividends(ctx, acct, "xyz")
	require.NoError(t, err)
	require.Len(t, xyz, 1)
	assert.True(t, xyz[0].Amount.Equal(dec("44")))
	require.NotNil(t, xyz[0].PayDate)
	assert.True(t, xyz[0].PayDate.Equal(day("2024-04-25")))
	assert.Equal(t, "Q1", xyz[0].Note)

	_, err = l.InsertAdjustment(ctx, &models.PositionAdjustment{
		AccountID: acct, Ticker: "XYZ", Type: models.AdjustmentCostBasisCorrection,
		OldValue: ptr(dec("100")), NewValue: ptr(dec("110")), Note: "fix",
	})
	require.NoError(t, err)
	_, err = l.InsertAdjustment(ctx, &models.PositionAdjustment{
		AccountID: acct, Ticker: "XYZ", Type: models.AdjustmentOther, NewValue: ptr(dec("-3")),
	})
	require.NoError(t, err)

	adjs, err := l.ListAdjustments(ctx, acct, "XYZ")
	require.NoError(t, err)
	require.Len(t, adjs, 2)
	assert.True(t, adjs[0].Delta().Equal(dec("10")))
	assert.Nil(t, adjs[1].OldValue)
	assert.True(t, adjs[1].Delta().Equal(dec("-3")))
}

func testCampaignAdjustments(t *testing.T, l Ledger) {
	ctx := context.Background()
	acct := mustAccount(t, l, 1, "Main")

	_, err := l.GetCampaignAdjustment(ctx, acct, 7)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, l.UpsertCampaignAdjustment(ctx, &models.CampaignAdjustment{AccountID: acct, CampaignRootID: 7, Commissions: dec("1.30"), Fees: dec("0.05")}))
	require.NoError(t, l.UpsertCampaignAdjustment(ctx, &models.CampaignAdjustment{AccountID: acct, CampaignRootID: 7, Commissions: dec("2.60"), Fees: dec("0.10")}))

	got, err := l.GetCampaignAdjustment(ctx, acct, 7)
	require.NoError(t, err)
	assert.True(t, got.Commissions.Equal(dec("2.6")))
	assert.True(t, got.Total().Equal(dec("2.7")))
}

func testDeleteAccount(t *testing.T, l Ledger) {
	ctx := context.Background()
	acct := mustAccount(t, l, 1, "Main")
	_, err := l.InsertTrade(ctx, cspTrade(acct, "XYZ", "100", "2", "2024-03-01"))
	require.NoError(t, err)

	assert.ErrorIs(t, l.DeleteAccount(ctx, acct, 2), apperrors.ErrAccountNotFound)
	require.NoError(t, l.DeleteAccount(ctx, acct, 1))

	trades, err := l.ListTrades(ctx, TradeFilter{AccountID: acct})
	require.NoError(t, err)
	assert.Empty(t, trades)
	_, err = l.GetAccount(ctx, acct, 1)
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}
