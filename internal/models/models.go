// Package models provides domain models for the wheel ledger.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContractMultiplier is the number of shares one option contract controls.
const ContractMultiplier = 100

// AssetType represents what a trade leg holds.
type AssetType string

const (
	AssetStock  AssetType = "STOCK"
	AssetOption AssetType = "OPTION"
)

// StrategyType represents the strategy a trade leg belongs to.
type StrategyType string

const (
	StrategyCSP        StrategyType = "CSP"
	StrategyCC         StrategyType = "CC"
	StrategyStock      StrategyType = "STOCK"
	StrategyAssignment StrategyType = "ASSIGNMENT"
	StrategyStockOnly  StrategyType = "PROPIAS" // synthetic, produced by the aggregator only
)

// TradeStatus represents the lifecycle state of a trade leg.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// EntryType is the role a leg plays in its campaign. It is the single
// authority for the cash sign of a leg: CLOSING legs are debits.
type EntryType string

const (
	EntryOpening        EntryType = "OPENING"
	EntryAssignment     EntryType = "ASSIGNMENT"
	EntryDirectPurchase EntryType = "DIRECT_PURCHASE"
	EntryClosing        EntryType = "CLOSING"
)

// CloseType records how a leg was closed.
type CloseType string

const (
	CloseNone    CloseType = ""
	CloseBuyback CloseType = "buyback"
)

// AdjustmentType represents the kind of position adjustment.
type AdjustmentType string

const (
	AdjustmentSplit               AdjustmentType = "SPLIT"
	AdjustmentCostBasisCorrection AdjustmentType = "COST_BASIS_CORRECTION"
	AdjustmentOther               AdjustmentType = "OTHER"
)

// Moneyness classifies an option relative to the underlying price.
type Moneyness string

const (
	ITM Moneyness = "ITM"
	OTM Moneyness = "OTM"
)

// Dividend is a cash dividend that reduces the net cost basis of a ticker.
type Dividend struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	Ticker    string          `json:"ticker"`
	Amount    decimal.Decimal `json:"amount"`
	ExDate    time.Time       `json:"ex_date"`
	PayDate   *time.Time      `json:"pay_date,omitempty"`
	Note      string          `json:"note,omitempty"`
}

// PositionAdjustment is a manual correction applied additively to cost basis.
type PositionAdjustment struct {
	ID        int64            `json:"id"`
	AccountID int64            `json:"account_id"`
	TradeID   *int64           `json:"trade_id,omitempty"`
	Ticker    string           `json:"ticker"`
	Type      AdjustmentType   `json:"adjustment_type"`
	OldValue  *decimal.Decimal `json:"old_value,omitempty"`
	NewValue  *decimal.Decimal `json:"new_value,omitempty"`
	Note      string           `json:"note,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Delta returns new_value - old_value, treating missing values as zero.
func (a PositionAdjustment) Delta() decimal.Decimal {
	d := decimal.Zero
	if a.NewValue != nil {
		d = d.Add(*a.NewValue)
	}
	if a.OldValue != nil {
		d = d.Sub(*a.OldValue)
	}
	return d
}

// CampaignAdjustment holds commissions and fees charged once against a campaign.
type CampaignAdjustment struct {
	AccountID      int64           `json:"account_id"`
	CampaignRootID int64           `json:"campaign_root_id"`
	Commissions    decimal.Decimal `json:"commissions"`
	Fees           decimal.Decimal `json:"fees"`
}

// Total returns commissions plus fees.
func (c CampaignAdjustment) Total() decimal.Decimal {
	return c.Commissions.Add(c.Fees)
}
