package wheel

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"wheel-ledger/internal/calc"
	"wheel-ledger/internal/models"
	"wheel-ledger/internal/store"
)

// tickerGroup holds the open legs of one ticker, in ledger order.
type tickerGroup struct {
	stocks []models.Trade
	calls  []models.Trade
	others []models.Trade
}

// tickerBasis is the blended stock accounting of one ticker.
type tickerBasis struct {
	quantity     int
	cost         decimal.Decimal
	costNet      decimal.Decimal
	costPerShare decimal.Decimal
	dividends    decimal.Decimal
	adjustments  decimal.Decimal
}

// share returns the pro-rata dividends, adjustments and net cost basis of
// assigned shares. Rows without shares get zeros.
func (b tickerBasis) share(assigned int) (div, adj, net decimal.Decimal) {
	if assigned <= 0 || b.quantity <= 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}
	w := decimal.NewFromInt(int64(assigned)).Div(decimal.NewFromInt(int64(b.quantity)))
	return calc.Round2(b.dividends.Mul(w)), calc.Round2(b.adjustments.Mul(w)), calc.Round2(b.costNet.Mul(w))
}

// PositionSummary groups the open legs of an account into campaign rows. An
// empty ticker summarizes every ticker, in alphabetical order.
func (s *Service) PositionSummary(ctx context.Context, accountID int64, ticker string) ([]models.CampaignRow, error) {
	ticker = normalizeTicker(ticker)

	open, err := s.ledger.ListTrades(ctx, store.TradeFilter{
		AccountID: accountID,
		Ticker:    ticker,
		Status:    models.StatusOpen,
	})
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return []models.CampaignRow{}, nil
	}

	dividends, err := s.ledger.ListDividends(ctx, accountID, ticker)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.ledger.ListAdjustments(ctx, accountID, ticker)
	if err != nil {
		return nil, err
	}

	divByTicker := make(map[string]decimal.Decimal)
	for _, d := range dividends {
		divByTicker[d.Ticker] = divByTicker[d.Ticker].Add(d.Amount)
	}
	adjByTicker := make(map[string]decimal.Decimal)
	for _, a := range adjustments {
		adjByTicker[a.Ticker] = adjByTicker[a.Ticker].Add(a.Delta())
	}

	groups := make(map[string]*tickerGroup)
	campaigns := make(map[int64]*Campaign)
	for _, t := range open {
		g, ok := groups[t.Ticker]
		if !ok {
			g = &tickerGroup{}
			groups[t.Ticker] = g
		}
		switch {
		case t.IsStock():
			g.stocks = append(g.stocks, t)
		case t.IsCoveredCall():
			g.calls = append(g.calls, t)
		case t.IsOption():
			g.others = append(g.others, t)
		default:
			continue
		}
		if t.IsOption() {
			c, err := s.campaigns.Walk(ctx, accountID, t.ID)
			if err != nil {
				return nil, err
			}
			campaigns[t.ID] = c
		}
	}

	tickers := make([]string, 0, len(groups))
	for t := range groups {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	rows := make([]models.CampaignRow, 0, len(open))
	for _, t := range tickers {
		rows = append(rows, aggregateTicker(t, groups[t], campaigns, divByTicker[t], adjByTicker[t])...)
	}
	return rows, nil
}

// aggregateTicker builds the rows of one ticker. Covered calls are backed by
// shares first come, first served; put legs never carry shares; what is left
// becomes one stock-only row.
func aggregateTicker(ticker string, g *tickerGroup, campaigns map[int64]*Campaign, dividends, adjustments decimal.Decimal) []models.CampaignRow {
	basis := tickerBasis{
		cost:        decimal.Zero,
		costNet:     decimal.Zero,
		dividends:   dividends,
		adjustments: adjustments,
	}
	for _, st := range g.stocks {
		basis.quantity += st.Quantity
		basis.cost = basis.cost.Add(st.Price.Mul(decimal.NewFromInt(int64(st.Quantity))))
	}

	premiumsAll := decimal.Zero
	for _, legs := range [][]models.Trade{g.calls, g.others} {
		for _, leg := range legs {
			if c := campaigns[leg.ID]; c != nil {
				premiumsAll = premiumsAll.Add(c.Premiums)
			}
		}
	}

	if basis.quantity > 0 {
		qty := decimal.NewFromInt(int64(basis.quantity))
		avg := basis.cost.Div(qty)
		basis.costNet = calc.NetCostBasis(avg, basis.quantity, premiumsAll, dividends, adjustments)
		basis.costPerShare = basis.costNet.Div(qty)
	}

	rows := make([]models.CampaignRow, 0, len(g.calls)+len(g.others)+1)
	available := basis.quantity

	for _, leg := range g.calls {
		assigned := min(available, leg.Shares())
		available -= assigned
		rows = append(rows, optionRow(ticker, leg, campaigns[leg.ID], assigned, basis))
	}
	for _, leg := range g.others {
		rows = append(rows, optionRow(ticker, leg, campaigns[leg.ID], 0, basis))
	}

	if available > 0 {
		rows = append(rows, stockOnlyRow(ticker, g.stocks, available, basis))
	}
	return rows
}

func optionRow(ticker string, leg models.Trade, c *Campaign, assigned int, basis tickerBasis) models.CampaignRow {
	legID := leg.ID
	row := models.CampaignRow{
		Ticker:           ticker,
		PremiumsReceived: decimal.Zero,
		StockQuantity:    assigned,
		StockCostTotal:   calc.Round2(basis.costPerShare.Mul(decimal.NewFromInt(int64(assigned)))),
		OptionContracts:  leg.Quantity,
		Strike:           leg.Strike,
		ExpirationDate:   leg.ExpirationDate,
		StrategyType:     leg.StrategyType,
		TradeIDLast:      &legID,
	}

	start := leg.TradeDate
	if c != nil {
		row.PremiumsReceived = c.Premiums
		rootID, days := c.RootID, c.Days
		row.CampaignRootID = &rootID
		row.CampaignDays = &days
		if !c.StartDate.IsZero() {
			start = c.StartDate
		}
	}
	if !start.IsZero() {
		row.TradeDate = &start
	}

	row.DividendsReceived, row.Adjustments, row.NetCostBasisTotal = basis.share(assigned)
	return row
}

func stockOnlyRow(ticker string, stocks []models.Trade, remaining int, basis tickerBasis) models.CampaignRow {
	cost := calc.Round2(basis.cost)
	if !basis.costPerShare.IsZero() {
		cost = calc.Round2(basis.costPerShare.Mul(decimal.NewFromInt(int64(remaining))))
	}

	row := models.CampaignRow{
		Ticker:           ticker,
		PremiumsReceived: decimal.Zero,
		StockQuantity:    remaining,
		StockCostTotal:   cost,
		StrategyType:     models.StrategyStockOnly,
		TradeDate:        earliestTradeDate(stocks),
	}
	row.DividendsReceived, row.Adjustments, row.NetCostBasisTotal = basis.share(remaining)
	return row
}

func earliestTradeDate(stocks []models.Trade) *time.Time {
	var earliest *models.Trade
	for i := range stocks {
		st := &stocks[i]
		if st.TradeDate.IsZero() {
			continue
		}
		if earliest == nil || st.TradeDate.Before(earliest.TradeDate) ||
			(st.TradeDate.Equal(earliest.TradeDate) && st.ID < earliest.ID) {
			earliest = st
		}
	}
	if earliest == nil {
		return nil
	}
	d := earliest.TradeDate
	return &d
}
