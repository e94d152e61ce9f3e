package wheel

import (
	"context"
	"time"

	"wheel-ledger/internal/calc"
	apperrors "wheel-ledger/internal/errors"
	"wheel-ledger/internal/models"
	"wheel-ledger/internal/store"
)

// CampaignHistory returns the legs of the campaign tradeID belongs to, root
// first and ending at tradeID.
func (s *Service) CampaignHistory(ctx context.Context, accountID, tradeID int64) (*Campaign, error) {
	return s.campaigns.Walk(ctx, accountID, tradeID)
}

// ReportTrade is a trade with its campaign identity.
type ReportTrade struct {
	models.Trade
	CampaignRootID    int64      `json:"campaign_root_id"`
	CampaignStartDate *time.Time `json:"campaign_start_date,omitempty"`
}

// ReportFilter selects trades opened in a date range.
type ReportFilter struct {
	AccountID int64
	From      time.Time
	To        time.Time
	Ticker    string
	Strategy  models.StrategyType
	Status    models.TradeStatus
}

// TradesForReport lists the trades opened in the filter's range, oldest
// first, each tagged with its campaign root and start date.
func (s *Service) TradesForReport(ctx context.Context, f ReportFilter) ([]ReportTrade, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, apperrors.NewValidationError("date_to", calc.FormatDate(f.To), "must not be before date_from")
	}
	switch f.Status {
	case "", models.StatusOpen, models.StatusClosed:
	default:
		return nil, apperrors.NewValidationError("status", f.Status, "must be OPEN or CLOSED")
	}

	trades, err := s.ledger.ListTrades(ctx, store.TradeFilter{
		AccountID:  f.AccountID,
		Ticker:     normalizeTicker(f.Ticker),
		Status:     f.Status,
		Strategy:   f.Strategy,
		OpenedFrom: f.From,
		OpenedTo:   f.To,
	})
	if err != nil {
		return nil, err
	}

	out := make([]ReportTrade, 0, len(trades))
	for _, t := range trades {
		c, err := s.campaigns.Walk(ctx, f.AccountID, t.ID)
		if err != nil {
			return nil, err
		}
		rt := ReportTrade{Trade: t, CampaignRootID: c.RootID}
		if !c.StartDate.IsZero() {
			start := c.StartDate
			rt.CampaignStartDate = &start
		}
		out = append(out, rt)
	}
	return out, nil
}
