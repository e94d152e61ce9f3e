package wheel

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"wheel-ledger/internal/calc"
	apperrors "wheel-ledger/internal/errors"
	"wheel-ledger/internal/models"
	"wheel-ledger/internal/store"
)

// CampaignPnL is the realized result of one campaign.
type CampaignPnL struct {
	RootID      int64           `json:"campaign_root_id"`
	StartDate   time.Time       `json:"start_date"`
	Legs        int             `json:"legs"`
	Days        int             `json:"days"`
	Premiums    decimal.Decimal `json:"premiums"`
	Buybacks    decimal.Decimal `json:"buybacks"`
	Commissions decimal.Decimal `json:"commissions"`
	Fees        decimal.Decimal `json:"fees"`
	Net         decimal.Decimal `json:"net"`
	Complete    bool            `json:"complete"`
}

// CampaignPnL returns premiums minus buybacks, commissions and fees of the
// campaign tradeID belongs to.
func (s *Service) CampaignPnL(ctx context.Context, accountID, tradeID int64) (*CampaignPnL, error) {
	c, err := s.campaigns.Walk(ctx, accountID, tradeID)
	if err != nil {
		return nil, err
	}

	adj, err := s.campaignAdjustment(ctx, accountID, c.RootID)
	if err != nil {
		return nil, err
	}

	return &CampaignPnL{
		RootID:      c.RootID,
		StartDate:   c.StartDate,
		Legs:        len(c.Legs),
		Days:        c.Days,
		Premiums:    c.Premiums,
		Buybacks:    c.Buybacks,
		Commissions: adj.Commissions,
		Fees:        adj.Fees,
		Net:         calc.Round2(calc.RealizedPnLBuyback(c.Premiums, c.Buybacks).Sub(adj.Total())),
		Complete:    c.Complete,
	}, nil
}

// campaignAdjustment returns the recorded fees of a campaign, or zeros.
func (s *Service) campaignAdjustment(ctx context.Context, accountID, rootID int64) (models.CampaignAdjustment, error) {
	adj, err := s.ledger.GetCampaignAdjustment(ctx, accountID, rootID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return models.CampaignAdjustment{
				AccountID:      accountID,
				CampaignRootID: rootID,
				Commissions:    decimal.Zero,
				Fees:           decimal.Zero,
			}, nil
		}
		return models.CampaignAdjustment{}, err
	}
	return *adj, nil
}

// RealizedSummary is the simplified realized gain or loss of trades closed
// in a date range. It is an approximation and not a tax figure.
type RealizedSummary struct {
	From               time.Time                  `json:"date_from"`
	To                 time.Time                  `json:"date_to"`
	Total              decimal.Decimal            `json:"total_realized"`
	ClosedCount        int                        `json:"closed_trades_count"`
	ByTicker           map[string]decimal.Decimal `json:"by_ticker"`
	ByStrategy         map[string]decimal.Decimal `json:"by_strategy"`
	ClosedByStrategy   map[string]int             `json:"closed_by_strategy"`
	CampaignCosts      decimal.Decimal            `json:"campaign_costs"`
	CapitalReference   decimal.Decimal            `json:"capital_reference"`
	PctOfCapital       decimal.Decimal            `json:"realized_pct_of_capital"`
	AnnualizedPct      decimal.Decimal            `json:"realized_ann_pct"`
	IncompleteCampaign []int64                    `json:"incomplete_campaigns,omitempty"`
}

// RealizedSummary totals the closed legs of an account with a closed date in
// [from, to]. Each leg contributes its signed amount minus its buyback debit;
// the commissions and fees of every campaign touched are subtracted once.
func (s *Service) RealizedSummary(ctx context.Context, accountID, userID int64, from, to time.Time) (*RealizedSummary, error) {
	from, to = calc.Day(from), calc.Day(to)
	if from.IsZero() || to.IsZero() {
		return nil, apperrors.NewValidationError("date_range", nil, "both dates are required")
	}
	if to.Before(from) {
		return nil, apperrors.NewValidationError("date_to", calc.FormatDate(to), "must not be before date_from")
	}

	account, err := s.ledger.GetAccount(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	closed, err := s.ledger.ListTrades(ctx, store.TradeFilter{
		AccountID:  accountID,
		Status:     models.StatusClosed,
		ClosedFrom: from,
		ClosedTo:   to,
	})
	if err != nil {
		return nil, err
	}

	sum := &RealizedSummary{
		From:             from,
		To:               to,
		ClosedCount:      len(closed),
		ByTicker:         make(map[string]decimal.Decimal),
		ByStrategy:       make(map[string]decimal.Decimal),
		ClosedByStrategy: make(map[string]int),
		CapitalReference: calc.Round2(account.CapTotal),
	}

	total := decimal.Zero
	roots := make(map[int64]bool)
	for i := range closed {
		t := &closed[i]
		amount := calc.RealizedPnLBuyback(t.SignedAmount(), t.BuybackOrZero())
		total = total.Add(amount)

		strategy := string(t.StrategyType)
		if strategy == "" {
			strategy = "OTHER"
		}
		sum.ByTicker[t.Ticker] = sum.ByTicker[t.Ticker].Add(amount)
		sum.ByStrategy[strategy] = sum.ByStrategy[strategy].Add(amount)
		sum.ClosedByStrategy[strategy]++

		c, err := s.campaigns.Walk(ctx, accountID, t.ID)
		if err != nil {
			return nil, err
		}
		if !c.Complete && !roots[c.RootID] {
			sum.IncompleteCampaign = append(sum.IncompleteCampaign, c.RootID)
		}
		roots[c.RootID] = true
	}

	costs := decimal.Zero
	for root := range roots {
		adj, err := s.campaignAdjustment(ctx, accountID, root)
		if err != nil {
			return nil, err
		}
		costs = costs.Add(adj.Total())
	}

	for k, v := range sum.ByTicker {
		sum.ByTicker[k] = calc.Round2(v)
	}
	for k, v := range sum.ByStrategy {
		sum.ByStrategy[k] = calc.Round2(v)
	}
	sum.CampaignCosts = calc.Round2(costs)
	sum.Total = calc.Round2(total.Sub(costs))
	sum.PctOfCapital = calc.Round2(pct(sum.Total, account.CapTotal))

	days := max(1, calc.DaysBetween(from, to))
	sum.AnnualizedPct = calc.Round2(calc.AnnualizedReturn(sum.PctOfCapital, days))
	return sum, nil
}
