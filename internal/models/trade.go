package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one event in a position's life. Legs of one campaign are linked
// through ParentTradeID back to a root whose ParentTradeID is nil.
type Trade struct {
	ID             int64            `json:"trade_id"`
	AccountID      int64            `json:"account_id"`
	Ticker         string           `json:"ticker"`
	AssetType      AssetType        `json:"asset_type"`
	Quantity       int              `json:"quantity"`
	Price          decimal.Decimal  `json:"price"`
	Strike         *decimal.Decimal `json:"strike,omitempty"`
	ExpirationDate *time.Time       `json:"expiration_date,omitempty"`
	StrategyType   StrategyType     `json:"strategy_type"`
	Status         TradeStatus      `json:"status"`
	EntryType      EntryType        `json:"entry_type"`
	TradeDate      time.Time        `json:"trade_date"`
	ClosedDate     *time.Time       `json:"closed_date,omitempty"`
	CloseType      CloseType        `json:"close_type,omitempty"`
	BuybackDebit   *decimal.Decimal `json:"buyback_debit,omitempty"`
	ParentTradeID  *int64           `json:"parent_trade_id,omitempty"`
	Comment        string           `json:"comment,omitempty"`
}

// IsOption reports whether the leg is an option contract.
func (t *Trade) IsOption() bool {
	return t.AssetType == AssetOption
}

// IsStock reports whether the leg holds shares.
func (t *Trade) IsStock() bool {
	return t.AssetType == AssetStock
}

// IsOpen reports whether the leg is still open.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// IsCoveredCall reports whether the leg is a covered call option.
func (t *Trade) IsCoveredCall() bool {
	return t.IsOption() && t.StrategyType == StrategyCC
}

// IsPut reports whether the leg is a short put.
func (t *Trade) IsPut() bool {
	return t.IsOption() && t.StrategyType == StrategyCSP
}

// IsClosing reports whether the leg is a debit leg.
func (t *Trade) IsClosing() bool {
	return t.EntryType == EntryClosing
}

// Multiplier returns the notional shares per unit of quantity.
func (t *Trade) Multiplier() int {
	if t.IsOption() {
		return ContractMultiplier
	}
	return 1
}

// Shares returns the notional share count of the leg.
func (t *Trade) Shares() int {
	return t.Quantity * t.Multiplier()
}

// GrossAmount returns |price| x quantity x multiplier.
func (t *Trade) GrossAmount() decimal.Decimal {
	return t.Price.Abs().Mul(decimal.NewFromInt(int64(t.Shares())))
}

// SignedAmount returns GrossAmount negated for CLOSING legs.
func (t *Trade) SignedAmount() decimal.Decimal {
	if t.IsClosing() {
		return t.GrossAmount().Neg()
	}
	return t.GrossAmount()
}

// StrikeOrZero returns the strike, or zero for legs without one.
func (t *Trade) StrikeOrZero() decimal.Decimal {
	if t.Strike == nil {
		return decimal.Zero
	}
	return *t.Strike
}

// BuybackOrZero returns the recorded buyback debit, or zero.
func (t *Trade) BuybackOrZero() decimal.Decimal {
	if t.BuybackDebit == nil {
		return decimal.Zero
	}
	return *t.BuybackDebit
}
