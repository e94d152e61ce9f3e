package wheel

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"wheel-ledger/internal/calc"
	"wheel-ledger/internal/logging"
	"wheel-ledger/internal/models"
	"wheel-ledger/internal/quotes"
	"wheel-ledger/internal/scoring"
)

var hundred = decimal.NewFromInt(100)

// EvaluatePosition derives breakeven, collateral, P&L at spot, returns and
// the favorability score of one row. A nil spot is treated as zero and the
// result is flagged QuoteMissing.
func EvaluatePosition(row models.CampaignRow, spot *decimal.Decimal, earningsClear bool, today time.Time) models.PositionMetrics {
	m := models.PositionMetrics{
		Spot:         decimal.Zero,
		QuoteMissing: spot == nil,
		DTE:          calc.DaysToExpiration(row.ExpirationDate, today),
	}
	if spot != nil {
		m.Spot = *spot
	}

	strike := decimal.Zero
	if row.Strike != nil {
		strike = *row.Strike
	}
	isOption := !row.IsStockOnly() && row.OptionContracts > 0
	contracts := row.OptionContracts
	costPerShare := row.NetCostPerShare()

	switch {
	case !isOption:
		m.Breakeven = calc.Round2(costPerShare)
		m.PnLAtSpot = calc.Round2(m.Spot.Mul(decimal.NewFromInt(int64(row.StockQuantity))).Sub(row.NetCostBasisTotal))
	case row.IsPut():
		m.Breakeven = calc.Round2(calc.Breakeven(strike, row.PremiumsReceived, contracts, true, nil))
		m.PnLAtSpot = calc.Round2(row.PremiumsReceived.Sub(calc.PutIntrinsic(strike, m.Spot, contracts)))
	default:
		var basis *decimal.Decimal
		if row.StockQuantity > 0 {
			basis = &costPerShare
		}
		m.Breakeven = calc.Round2(calc.Breakeven(strike, row.PremiumsReceived, contracts, false, basis))
		m.PnLAtSpot = calc.Round2(row.PremiumsReceived.Sub(calc.CallIntrinsic(strike, m.Spot, contracts)))
	}

	if isOption && !strike.IsZero() {
		m.Moneyness = calc.ClassifyMoneyness(strike, m.Spot, row.IsPut())
	}

	if row.IsPut() {
		m.Collateral = calc.Round2(strike.Mul(decimal.NewFromInt(int64(contracts * models.ContractMultiplier))))
	} else {
		m.Collateral = row.StockCostTotal
	}

	m.HoldingDays = m.DTE
	if row.CampaignDays != nil && *row.CampaignDays > 0 {
		m.HoldingDays = *row.CampaignDays
	}
	roc := calc.ReturnOnCapital(row.PremiumsReceived, m.Collateral)
	m.ReturnOnCapital = calc.Round2(roc)
	m.AnnualizedReturn = calc.Round2(calc.AnnualizedReturn(roc, m.HoldingDays))

	// stock-only rows gain above breakeven, like a short put
	res := scoring.Score(scoring.Input{
		PnL:             m.PnLAtSpot.InexactFloat64(),
		MarketPrice:     m.Spot.InexactFloat64(),
		Breakeven:       m.Breakeven.InexactFloat64(),
		IsPut:           row.IsPut() || !isOption,
		DTE:             m.DTE,
		PeriodReturnPct: roc.InexactFloat64(),
		EarningsClear:   earningsClear,
	})
	m.Score = res.Score
	m.Label = string(res.Label)

	switch {
	case m.Moneyness == models.ITM:
		m.Diagnosis = models.DiagnosisRisk
	case row.StockQuantity > 0 && m.Spot.GreaterThanOrEqual(costPerShare):
		m.Diagnosis = models.DiagnosisWinning
	case row.StockQuantity > 0:
		m.Diagnosis = models.DiagnosisLosing
	default:
		m.Diagnosis = models.DiagnosisOK
	}
	return m
}

// PositionView is a campaign row with its metrics.
type PositionView struct {
	Row     models.CampaignRow     `json:"row"`
	Metrics models.PositionMetrics `json:"metrics"`
}

// TickerAllocation is the capital committed to one ticker.
type TickerAllocation struct {
	Ticker     string          `json:"ticker"`
	Collateral decimal.Decimal `json:"collateral"`
	Pct        decimal.Decimal `json:"pct"`
	OverLimit  bool            `json:"over_limit"`
}

// ExpiryAlert flags an option leg close to expiration.
type ExpiryAlert struct {
	Ticker       string              `json:"ticker"`
	TradeID      int64               `json:"trade_id"`
	StrategyType models.StrategyType `json:"strategy_type"`
	DTE          int                 `json:"dte"`
	Moneyness    models.Moneyness    `json:"moneyness,omitempty"`
}

// Dashboard is the account overview at current prices.
type Dashboard struct {
	Account          models.Account     `json:"account"`
	QuoteStatus      quotes.Status      `json:"quote_status"`
	Positions        []PositionView     `json:"positions"`
	TotalPremiums    decimal.Decimal    `json:"total_premiums"`
	TotalCollateral  decimal.Decimal    `json:"total_collateral"`
	FreeCash         decimal.Decimal    `json:"free_cash"`
	UtilizationPct   decimal.Decimal    `json:"utilization_pct"`
	CurrentValue     decimal.Decimal    `json:"current_value"`
	UnrealizedPnL    decimal.Decimal    `json:"unrealized_pnl"`
	UnrealizedPct    decimal.Decimal    `json:"unrealized_pct"`
	AnnualizedReturn decimal.Decimal    `json:"annualized_return"`
	TargetUSD        decimal.Decimal    `json:"target_usd"`
	GoalProgressPct  decimal.Decimal    `json:"goal_progress_pct"`
	OnTrack          bool               `json:"on_track"`
	Allocations      []TickerAllocation `json:"allocations"`
	Alerts           []ExpiryAlert      `json:"alerts"`
}

// Dashboard evaluates every open position of an account at the provider's
// prices. earnings lists tickers with an earnings date inside the option's
// remaining life; a nil provider leaves every quote missing.
func (s *Service) Dashboard(ctx context.Context, accountID, userID int64, provider quotes.Provider, earnings map[string]bool) (*Dashboard, error) {
	account, err := s.ledger.GetAccount(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.PositionSummary(ctx, accountID, "")
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		Account:     *account,
		QuoteStatus: quotes.StatusDisconnected,
		Positions:   make([]PositionView, 0, len(rows)),
		Allocations: []TickerAllocation{},
		Alerts:      []ExpiryAlert{},
	}
	if provider != nil {
		d.QuoteStatus = provider.Status(ctx)
	}

	prices := make(map[string]*decimal.Decimal)
	for _, row := range rows {
		if _, ok := prices[row.Ticker]; ok || provider == nil {
			continue
		}
		price, err := provider.Quote(ctx, row.Ticker)
		if err != nil {
			log := logging.WithTicker(s.log(ctx, accountID), row.Ticker)
			log.Warn().Err(err).Msg("Quote unavailable")
			price = nil
		}
		prices[row.Ticker] = price
	}

	today := s.today()
	for _, row := range rows {
		m := EvaluatePosition(row, prices[row.Ticker], !earnings[row.Ticker], today)
		d.Positions = append(d.Positions, PositionView{Row: row, Metrics: m})
	}
	sort.SliceStable(d.Positions, func(i, j int) bool {
		return diagnosisRank(d.Positions[i].Metrics.Diagnosis) < diagnosisRank(d.Positions[j].Metrics.Diagnosis)
	})

	s.fillTotals(d)
	s.fillAllocations(d)
	s.fillAlerts(d)
	return d, nil
}

func diagnosisRank(diagnosis string) int {
	switch diagnosis {
	case models.DiagnosisRisk:
		return 0
	case models.DiagnosisLosing:
		return 1
	default:
		return 2
	}
}

func (s *Service) fillTotals(d *Dashboard) {
	capital := d.Account.CapTotal
	premiums := decimal.Zero
	collateral := decimal.Zero
	dteSum := 0

	for _, p := range d.Positions {
		premiums = premiums.Add(p.Row.PremiumsReceived)
		collateral = collateral.Add(p.Metrics.Collateral)
		dteSum += p.Metrics.DTE
	}
	d.TotalPremiums = calc.Round2(premiums)
	d.TotalCollateral = calc.Round2(collateral)
	d.FreeCash = calc.Round2(decimal.Max(decimal.Zero, capital.Sub(d.TotalCollateral)))
	d.UtilizationPct = calc.Round2(pct(d.TotalCollateral, capital))

	value := d.FreeCash
	for _, p := range d.Positions {
		spot := p.Metrics.Spot
		value = value.Add(spot.Mul(decimal.NewFromInt(int64(p.Row.StockQuantity))))
		if p.Row.OptionContracts == 0 || p.Row.Strike == nil || p.Row.Strike.IsZero() {
			continue
		}
		strike := *p.Row.Strike
		if p.Row.IsPut() {
			value = value.Add(strike.Mul(decimal.NewFromInt(int64(p.Row.OptionContracts * models.ContractMultiplier))))
			value = value.Sub(calc.PutIntrinsic(strike, spot, p.Row.OptionContracts))
		} else {
			value = value.Sub(calc.CallIntrinsic(strike, spot, p.Row.OptionContracts))
		}
	}
	d.CurrentValue = calc.Round2(value)
	d.UnrealizedPnL = calc.Round2(d.CurrentValue.Sub(capital))
	d.UnrealizedPct = calc.Round2(pct(d.CurrentValue.Sub(capital), capital))

	if n := len(d.Positions); n > 0 {
		avgDTE := dteSum / n
		d.AnnualizedReturn = calc.Round2(calc.AnnualizedReturn(calc.ReturnOnCapital(d.TotalPremiums, d.TotalCollateral), avgDTE))
	} else {
		d.AnnualizedReturn = decimal.Zero
	}

	d.TargetUSD = calc.Round2(capital.Mul(d.Account.TargetAnn).Div(hundred))
	d.GoalProgressPct = decimal.Zero
	if d.TargetUSD.IsPositive() {
		progress := decimal.Min(decimal.NewFromInt(1), decimal.Max(decimal.Zero, d.TotalPremiums.Div(d.TargetUSD)))
		d.GoalProgressPct = calc.Round2(progress.Mul(hundred))
	}
	d.OnTrack = d.Account.TargetAnn.IsPositive() && d.AnnualizedReturn.GreaterThanOrEqual(d.Account.TargetAnn)
}

func (s *Service) fillAllocations(d *Dashboard) {
	byTicker := make(map[string]decimal.Decimal)
	var tickers []string
	for _, p := range d.Positions {
		if _, ok := byTicker[p.Row.Ticker]; !ok {
			tickers = append(tickers, p.Row.Ticker)
		}
		byTicker[p.Row.Ticker] = byTicker[p.Row.Ticker].Add(p.Metrics.Collateral)
	}
	sort.Strings(tickers)

	for _, t := range tickers {
		share := calc.Round2(pct(byTicker[t], d.Account.CapTotal))
		d.Allocations = append(d.Allocations, TickerAllocation{
			Ticker:     t,
			Collateral: calc.Round2(byTicker[t]),
			Pct:        share,
			OverLimit:  d.Account.MaxPerTicker.IsPositive() && share.GreaterThan(d.Account.MaxPerTicker),
		})
	}
}

func (s *Service) fillAlerts(d *Dashboard) {
	for _, p := range d.Positions {
		if p.Row.ExpirationDate == nil || p.Row.TradeIDLast == nil {
			continue
		}
		if p.Metrics.DTE > s.alertDTE {
			continue
		}
		d.Alerts = append(d.Alerts, ExpiryAlert{
			Ticker:       p.Row.Ticker,
			TradeID:      *p.Row.TradeIDLast,
			StrategyType: p.Row.StrategyType,
			DTE:          p.Metrics.DTE,
			Moneyness:    p.Metrics.Moneyness,
		})
	}
	sort.SliceStable(d.Alerts, func(i, j int) bool { return d.Alerts[i].DTE < d.Alerts[j].DTE })
}

// pct returns part / whole x 100, or zero when whole is not positive.
func pct(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole)
}
