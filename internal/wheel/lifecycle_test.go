package wheel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "wheel-ledger/internal/errors"
	"wheel-ledger/internal/models"
	"wheel-ledger/internal/store"
)

func TestCloseTrade(t *testing.T) {
	f := newFixture(t)
	csp := f.openCSP(t, "XYZ", 1, "100", "2.00", "2024-01-02", "2024-02-16")

	err := f.svc.CloseTrade(f.ctx, f.account, csp, day("2024-01-01"), nil)
	assert.True(t, apperrors.IsValidation(err), "closed before opened")
	err = f.svc.CloseTrade(f.ctx, f.account, csp, day("2024-01-20"), ptr(dec("-1")))
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, f.svc.CloseTrade(f.ctx, f.account, csp, day("2024-01-20"), ptr(dec("45.678"))))

	tr, err := f.ledger.GetTrade(f.ctx, f.account, csp)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, tr.Status)
	assert.Equal(t, models.CloseBuyback, tr.CloseType)
	assert.Equal(t, "45.68", tr.BuybackOrZero().StringFixed(2))

	err = f.svc.CloseTrade(f.ctx, f.account, csp, day("2024-01-21"), nil)
	assert.ErrorIs(t, err, apperrors.ErrTradeClosed)

	err = f.svc.CloseTrade(f.ctx, f.account+1, csp, day("2024-01-21"), nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCloseStockRejectsBuyback(t *testing.T) {
	f := newFixture(t)
	stock := f.buyStock(t, "XYZ", 100, "40", "2024-01-02")

	err := f.svc.CloseTrade(f.ctx, f.account, stock, day("2024-02-01"), ptr(dec("10")))
	assert.True(t, apperrors.IsValidation(err))
	require.NoError(t, f.svc.CloseTrade(f.ctx, f.account, stock, day("2024-02-01"), nil))
}

func TestRollOptionRejects(t *testing.T) {
	f := newFixture(t)
	csp := f.openCSP(t, "XYZ", 1, "100", "2.00", "2024-01-02", "2024-02-16")
	stock := f.buyStock(t, "ABC", 100, "40", "2024-01-02")

	valid := RollRequest{
		AccountID:     f.account,
		TradeID:       csp,
		NewStrike:     dec("98"),
		NewPremium:    dec("1.50"),
		NewExpiration: day("2024-03-15"),
		TradeDate:     day("2024-01-20"),
	}

	tests := []struct {
		name   string
		mutate func(r *RollRequest)
	}{
		{"stock leg", func(r *RollRequest) { r.TradeID = stock }},
		{"zero strike", func(r *RollRequest) { r.NewStrike = dec("0") }},
		{"expiration before roll", func(r *RollRequest) { r.NewExpiration = day("2024-01-19") }},
		{"roll before open", func(r *RollRequest) { r.TradeDate = day("2023-12-01"); r.NewExpiration = day("2023-12-29") }},
		{"negative buyback", func(r *RollRequest) { r.BuybackDebit = ptr(dec("-5")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := f.svc.RollOption(f.ctx, req)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}

	tr, err := f.ledger.GetTrade(f.ctx, f.account, csp)
	require.NoError(t, err)
	assert.True(t, tr.IsOpen(), "rejected rolls leave the leg open")
	assert.Len(t, f.trades(t), 2)
}

func TestRollCoveredCallKeepsStrategy(t *testing.T) {
	f := newFixture(t)
	stock := f.buyStock(t, "XYZ", 100, "40", "2024-01-02")
	cc, err := f.svc.RegisterCCOpening(f.ctx, OptionOpening{
		AccountID:      f.account,
		Ticker:         "XYZ",
		Quantity:       1,
		Strike:         dec("42"),
		Premium:        dec("0.90"),
		ExpirationDate: day("2024-02-02"),
		TradeDate:      day("2024-01-05"),
	})
	require.NoError(t, err)

	next, err := f.svc.RollOption(f.ctx, RollRequest{
		AccountID:     f.account,
		TradeID:       cc,
		NewStrike:     dec("43"),
		NewPremium:    dec("0.70"),
		NewExpiration: day("2024-03-01"),
		TradeDate:     day("2024-02-01"),
		BuybackDebit:  ptr(dec("30")),
	})
	require.NoError(t, err)

	tr, err := f.ledger.GetTrade(f.ctx, f.account, next)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyCC, tr.StrategyType)
	assert.Equal(t, 1, tr.Quantity)
	assert.Equal(t, cc, *tr.ParentTradeID)

	old, err := f.ledger.GetTrade(f.ctx, f.account, cc)
	require.NoError(t, err)
	assert.Equal(t, "30", old.BuybackOrZero().String())

	c, err := f.svc.CampaignHistory(f.ctx, f.account, next)
	require.NoError(t, err)
	require.Len(t, c.Legs, 3)
	assert.Equal(t, stock, c.RootID)
	assert.Equal(t, "160", c.Premiums.String())
	assert.Equal(t, "30", c.Buybacks.String())

	free, err := f.svc.GetStockQuantity(f.ctx, f.account, "XYZ")
	require.NoError(t, err)
	assert.Equal(t, 0, free)
}

func TestUpdateTrade(t *testing.T) {
	f := newFixture(t)
	csp := f.openCSP(t, "XYZ", 1, "100", "2.00", "2024-01-02", "2024-02-16")
	stock := f.buyStock(t, "ABC", 100, "40", "2024-01-02")

	tests := []struct {
		name string
		id   int64
		upd  store.TradeUpdate
	}{
		{"empty", csp, store.TradeUpdate{}},
		{"zero quantity", csp, store.TradeUpdate{Quantity: ptr(0)}},
		{"zero strike", csp, store.TradeUpdate{Strike: ptr(dec("0"))}},
		{"negative premium", csp, store.TradeUpdate{Price: ptr(dec("-1"))}},
		{"zero stock price", stock, store.TradeUpdate{Price: ptr(dec("0"))}},
		{"stock strike", stock, store.TradeUpdate{Strike: ptr(dec("10"))}},
		{"stock expiration", stock, store.TradeUpdate{ExpirationDate: ptr(day("2024-05-01"))}},
		{"expiration before trade", csp, store.TradeUpdate{TradeDate: ptr(day("2024-03-01"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.UpdateTrade(f.ctx, f.account, tt.id, tt.upd)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}

	require.NoError(t, f.svc.UpdateTrade(f.ctx, f.account, csp, store.TradeUpdate{
		Price:   ptr(dec("2.345")),
		Strike:  ptr(dec("99")),
		Comment: ptr("fixed fill"),
	}))
	tr, err := f.ledger.GetTrade(f.ctx, f.account, csp)
	require.NoError(t, err)
	assert.Equal(t, "2.35", tr.Price.StringFixed(2))
	assert.Equal(t, "99.00", tr.Strike.StringFixed(2))
	assert.Equal(t, "fixed fill", tr.Comment)

	assert.ErrorIs(t, f.svc.UpdateTrade(f.ctx, f.account, 999, store.TradeUpdate{Comment: ptr("x")}), apperrors.ErrNotFound)
}

func TestSetCampaignFees(t *testing.T) {
	f := newFixture(t)
	a := f.openCSP(t, "XYZ", 1, "100", "2.00", "2024-01-02", "2024-01-26")
	b, err := f.svc.RollOption(f.ctx, RollRequest{
		AccountID: f.account, TradeID: a,
		NewStrike: dec("98"), NewPremium: dec("1.50"),
		NewExpiration: day("2024-02-16"), TradeDate: day("2024-01-20"),
	})
	require.NoError(t, err)

	_, err = f.svc.SetCampaignFees(f.ctx, f.account, b, dec("-1"), dec("0"))
	assert.True(t, apperrors.IsValidation(err))

	root, err := f.svc.SetCampaignFees(f.ctx, f.account, b, dec("2.60"), dec("0.40"))
	require.NoError(t, err)
	assert.Equal(t, a, root)

	adj, err := f.ledger.GetCampaignAdjustment(f.ctx, f.account, a)
	require.NoError(t, err)
	assert.Equal(t, "3.00", adj.Total().StringFixed(2))
}
