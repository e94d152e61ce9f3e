package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CampaignRow is one independently trackable position in a position summary.
// Several rows may share a ticker.
type CampaignRow struct {
	Ticker            string           `json:"ticker"`
	PremiumsReceived  decimal.Decimal  `json:"premiums_received"`
	StockQuantity     int              `json:"stock_quantity"`
	StockCostTotal    decimal.Decimal  `json:"stock_cost_total"`
	OptionContracts   int              `json:"option_contracts"`
	Strike            *decimal.Decimal `json:"strike,omitempty"`
	ExpirationDate    *time.Time       `json:"expiration_date,omitempty"`
	StrategyType      StrategyType     `json:"strategy_type"`
	TradeDate         *time.Time       `json:"trade_date,omitempty"`
	TradeIDLast       *int64           `json:"trade_id_last,omitempty"`
	CampaignRootID    *int64           `json:"campaign_root_id,omitempty"`
	CampaignDays      *int             `json:"campaign_days,omitempty"`
	DividendsReceived decimal.Decimal  `json:"dividends_received"`
	Adjustments       decimal.Decimal  `json:"adjustments"`
	NetCostBasisTotal decimal.Decimal  `json:"net_cost_basis_total"`
}

// IsPut reports whether the row is a short put campaign.
func (r CampaignRow) IsPut() bool {
	return r.StrategyType == StrategyCSP
}

// IsStockOnly reports whether the row is the synthetic stock-only row.
func (r CampaignRow) IsStockOnly() bool {
	return r.StrategyType == StrategyStockOnly
}

// NetCostPerShare returns the net cost basis per assigned share, or zero.
func (r CampaignRow) NetCostPerShare() decimal.Decimal {
	if r.StockQuantity <= 0 {
		return decimal.Zero
	}
	return r.NetCostBasisTotal.Div(decimal.NewFromInt(int64(r.StockQuantity)))
}

// Diagnosis values of a position.
const (
	DiagnosisRisk    = "Riesgo"
	DiagnosisWinning = "Ganando"
	DiagnosisLosing  = "Perdiendo"
	DiagnosisOK      = "OK"
)

// PositionMetrics are the derived figures of one campaign row at a spot price.
type PositionMetrics struct {
	Spot             decimal.Decimal `json:"spot"`
	QuoteMissing     bool            `json:"quote_missing"`
	DTE              int             `json:"dte"`
	Breakeven        decimal.Decimal `json:"breakeven"`
	Moneyness        Moneyness       `json:"moneyness,omitempty"`
	Collateral       decimal.Decimal `json:"collateral"`
	PnLAtSpot        decimal.Decimal `json:"pnl_at_spot"`
	ReturnOnCapital  decimal.Decimal `json:"return_on_capital"`
	AnnualizedReturn decimal.Decimal `json:"annualized_return"`
	HoldingDays      int             `json:"holding_days"`
	Score            int             `json:"score"`
	Label            string          `json:"label"`
	Diagnosis        string          `json:"diagnosis"`
}
