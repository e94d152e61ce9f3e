package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a brokerage account owned by one user.
type Account struct {
	ID               int64           `json:"account_id"`
	UserID           int64           `json:"user_id"`
	Name             string          `json:"name"`
	CapTotal         decimal.Decimal `json:"cap_total"`
	TargetAnn        decimal.Decimal `json:"target_ann"`
	MaxPerTicker     decimal.Decimal `json:"max_per_ticker"`
	AccessToken      string          `json:"-"`
	Environment      string          `json:"environment"`
	ConnectionStatus string          `json:"connection_status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// AccountConfig holds the editable capital settings of an account.
type AccountConfig struct {
	CapTotal     decimal.Decimal
	TargetAnn    decimal.Decimal
	MaxPerTicker decimal.Decimal
}

// DefaultAccountConfig returns the settings used for new accounts.
func DefaultAccountConfig() AccountConfig {
	return AccountConfig{
		CapTotal:     decimal.NewFromInt(100000),
		TargetAnn:    decimal.NewFromInt(20),
		MaxPerTicker: decimal.NewFromInt(10),
	}
}
