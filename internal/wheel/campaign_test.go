package wheel

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "wheel-ledger/internal/errors"
	"wheel-ledger/internal/models"
)

type mapGetter map[int64]models.Trade

func (m mapGetter) GetTrade(_ context.Context, _, tradeID int64) (*models.Trade, error) {
	t, ok := m[tradeID]
	if !ok {
		return nil, apperrors.ErrTradeNotFound
	}
	return &t, nil
}

func chainOf(n int) mapGetter {
	m := make(mapGetter, n)
	for i := 1; i <= n; i++ {
		t := models.Trade{
			ID:           int64(i),
			AssetType:    models.AssetOption,
			StrategyType: models.StrategyCSP,
			Quantity:     1,
			Price:        dec("1.00"),
			Status:       models.StatusClosed,
			EntryType:    models.EntryOpening,
		}
		if i > 1 {
			t.ParentTradeID = ptr(int64(i - 1))
		}
		m[int64(i)] = t
	}
	return m
}

func TestRolledPutCampaign(t *testing.T) {
	f := newFixture(t)

	a := f.openCSP(t, "XYZ", 1, "100", "2.00", "2024-01-02", "2024-01-26")
	b, err := f.svc.RollOption(f.ctx, RollRequest{
		AccountID:     f.account,
		TradeID:       a,
		NewStrike:     dec("98"),
		NewPremium:    dec("1.50"),
		NewExpiration: day("2024-02-16"),
		TradeDate:     day("2024-01-20"),
	})
	require.NoError(t, err)

	c, err := f.svc.Campaigns().Walk(f.ctx, f.account, b)
	require.NoError(t, err)

	assert.Equal(t, a, c.RootID)
	assert.Equal(t, "350", c.Premiums.String())
	assert.Equal(t, day("2024-01-02"), c.StartDate)
	// 18 days on A, 41 days open on B
	assert.Equal(t, 59, c.Days)
	assert.True(t, c.Complete)
	require.Len(t, c.Legs, 2)
	assert.Equal(t, a, c.Legs[0].ID)
	assert.Equal(t, b, c.Legs[1].ID)

	old, err := f.ledger.GetTrade(f.ctx, f.account, a)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, old.Status)
	assert.Equal(t, day("2024-01-20"), *old.ClosedDate)
}

func TestChainAccumulatesEachLeg(t *testing.T) {
	f := newFixture(t)

	l1 := f.openCSP(t, "XYZ", 1, "100", "2.00", "2024-01-02", "2024-01-19")
	l2, err := f.svc.RollOption(f.ctx, RollRequest{
		AccountID: f.account, TradeID: l1,
		NewStrike: dec("99"), NewPremium: dec("1.50"),
		NewExpiration: day("2024-02-02"), TradeDate: day("2024-01-12"),
	})
	require.NoError(t, err)
	l3, err := f.svc.RollOption(f.ctx, RollRequest{
		AccountID: f.account, TradeID: l2,
		NewStrike: dec("98"), NewPremium: dec("1.00"),
		NewExpiration: day("2024-02-16"), TradeDate: day("2024-01-26"),
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.CloseTrade(f.ctx, f.account, l3, day("2024-02-09"), nil))

	engine := f.svc.Campaigns()
	premiums, err := engine.Premiums(f.ctx, f.account, l3)
	require.NoError(t, err)
	assert.Equal(t, "450", premiums.String())

	// 10 + 14 + 14, not the 59 day span to today
	days, err := engine.Days(f.ctx, f.account, l3)
	require.NoError(t, err)
	assert.Equal(t, 38, days)

	root, err := engine.RootID(f.ctx, f.account, l3)
	require.NoError(t, err)
	assert.Equal(t, l1, root)

	start, err := engine.StartDate(f.ctx, f.account, l2)
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-02"), start)
}

func TestClosingLegsAreDebits(t *testing.T) {
	exp := day("2024-02-16")
	legs := mapGetter{
		1: {ID: 1, AssetType: models.AssetOption, StrategyType: models.StrategyCSP, Quantity: 2,
			Price: dec("2.00"), Status: models.StatusClosed, EntryType: models.EntryOpening,
			ExpirationDate: &exp, BuybackDebit: ptr(dec("40"))},
		2: {ID: 2, AssetType: models.AssetOption, StrategyType: models.StrategyCSP, Quantity: 2,
			Price: dec("0.50"), Status: models.StatusClosed, EntryType: models.EntryClosing,
			ParentTradeID: ptr(int64(1))},
	}
	e := NewCampaignEngine(legs, zerolog.Nop(), 0, fixedClock)

	c, err := e.Walk(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "300", c.Premiums.String())
	assert.Equal(t, "40", c.Buybacks.String())
}

func TestBrokenChainReturnsPartialResult(t *testing.T) {
	f := newFixture(t)

	exp := day("2024-02-16")
	orphan, err := f.ledger.InsertTrade(f.ctx, &models.Trade{
		AccountID:      f.account,
		Ticker:         "XYZ",
		AssetType:      models.AssetOption,
		Quantity:       1,
		Price:          dec("1.25"),
		Strike:         ptr(dec("50")),
		ExpirationDate: &exp,
		StrategyType:   models.StrategyCSP,
		Status:         models.StatusOpen,
		EntryType:      models.EntryOpening,
		TradeDate:      day("2024-02-01"),
		ParentTradeID:  ptr(int64(9999)),
	})
	require.NoError(t, err)

	c, err := f.svc.Campaigns().Walk(f.ctx, f.account, orphan)
	require.NoError(t, err)
	assert.False(t, c.Complete)
	assert.Equal(t, orphan, c.RootID)
	assert.Equal(t, "125", c.Premiums.String())
	assert.Equal(t, 29, c.Days)
}

func TestDeletedParentKeepsChildWalkable(t *testing.T) {
	f := newFixture(t)

	a := f.openCSP(t, "XYZ", 1, "100", "2.00", "2024-01-02", "2024-01-26")
	b, err := f.svc.RollOption(f.ctx, RollRequest{
		AccountID: f.account, TradeID: a,
		NewStrike: dec("98"), NewPremium: dec("1.50"),
		NewExpiration: day("2024-02-16"), TradeDate: day("2024-01-20"),
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteTrade(f.ctx, f.account, a))

	root, err := f.svc.Campaigns().RootID(f.ctx, f.account, b)
	require.NoError(t, err)
	assert.Equal(t, b, root)
}

func TestWalkStopsAtDepthLimit(t *testing.T) {
	e := NewCampaignEngine(chainOf(10), zerolog.Nop(), 3, fixedClock)

	c, err := e.Walk(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.False(t, c.Complete)
	require.Len(t, c.Legs, 4)
	assert.Equal(t, int64(7), c.RootID)
	assert.Equal(t, "400", c.Premiums.String())
}

func TestWalkDefaultDepthCoversLongChains(t *testing.T) {
	e := NewCampaignEngine(chainOf(100), zerolog.Nop(), 0, fixedClock)

	c, err := e.Walk(context.Background(), 1, 100)
	require.NoError(t, err)
	assert.True(t, c.Complete)
	assert.Equal(t, int64(1), c.RootID)
}

func TestWalkStopsOnCycle(t *testing.T) {
	chain := chainOf(3)
	first := chain[1]
	first.ParentTradeID = ptr(int64(3))
	chain[1] = first

	e := NewCampaignEngine(chain, zerolog.Nop(), 0, fixedClock)
	c, err := e.Walk(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.False(t, c.Complete)
	assert.Len(t, c.Legs, 3)
}

func TestWalkMissingStartTrade(t *testing.T) {
	e := NewCampaignEngine(chainOf(1), zerolog.Nop(), 0, fixedClock)

	_, err := e.Walk(context.Background(), 1, 42)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
