// Package wheel implements the wheel campaign engine: leg registration,
// campaign traversal, position aggregation and position metrics.
package wheel

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheel-ledger/internal/calc"
	apperrors "wheel-ledger/internal/errors"
	"wheel-ledger/internal/logging"
	"wheel-ledger/internal/models"
)

// DefaultMaxChainDepth bounds the number of parent links followed in one walk.
const DefaultMaxChainDepth = 100

// TradeGetter is the part of the ledger the campaign engine reads.
type TradeGetter interface {
	GetTrade(ctx context.Context, accountID, tradeID int64) (*models.Trade, error)
}

// Campaign is the result of walking one trade's parent chain.
type Campaign struct {
	RootID    int64
	StartDate time.Time
	Premiums  decimal.Decimal
	Buybacks  decimal.Decimal
	Days      int
	// Legs are ordered root first, ending at the trade the walk started from.
	Legs []models.Trade
	// Complete is false when the walk stopped at a missing parent, a cycle
	// or the depth limit.
	Complete bool
}

// CampaignEngine walks parent_trade_id chains by id lookup.
type CampaignEngine struct {
	trades   TradeGetter
	logger   zerolog.Logger
	maxDepth int
	clock    func() time.Time
}

// NewCampaignEngine creates a campaign engine over trades.
func NewCampaignEngine(trades TradeGetter, logger zerolog.Logger, maxDepth int, clock func() time.Time) *CampaignEngine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxChainDepth
	}
	if clock == nil {
		clock = time.Now
	}
	return &CampaignEngine{
		trades:   trades,
		logger:   logger,
		maxDepth: maxDepth,
		clock:    clock,
	}
}

// Walk follows the chain from tradeID to its root and accumulates the
// campaign totals. A missing parent ends the walk with the legs found so far.
// Only a missing starting trade or a ledger failure is returned as an error.
func (e *CampaignEngine) Walk(ctx context.Context, accountID, tradeID int64) (*Campaign, error) {
	leaf, err := e.trades.GetTrade(ctx, accountID, tradeID)
	if err != nil {
		return nil, err
	}

	legs := []models.Trade{*leaf}
	seen := map[int64]bool{leaf.ID: true}
	complete := true

	for cur := leaf; cur.ParentTradeID != nil; {
		parentID := *cur.ParentTradeID
		hops := len(legs) - 1

		if hops >= e.maxDepth {
			e.chainStopped(ctx, accountID, cur.ID, parentID, hops, apperrors.ErrChainTooDeep)
			complete = false
			break
		}
		if seen[parentID] {
			e.chainStopped(ctx, accountID, cur.ID, parentID, hops, apperrors.ErrChainBroken)
			complete = false
			break
		}

		parent, err := e.trades.GetTrade(ctx, accountID, parentID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				e.chainStopped(ctx, accountID, cur.ID, parentID, hops, apperrors.ErrChainBroken)
				complete = false
				break
			}
			return nil, apperrors.NewChainError(accountID, cur.ID, parentID, hops, err)
		}

		seen[parent.ID] = true
		legs = append(legs, *parent)
		cur = parent
	}

	// root first
	for i, j := 0, len(legs)-1; i < j; i, j = i+1, j-1 {
		legs[i], legs[j] = legs[j], legs[i]
	}

	c := &Campaign{
		RootID:   legs[0].ID,
		Legs:     legs,
		Complete: complete,
	}
	e.accumulate(c)
	return c, nil
}

func (e *CampaignEngine) chainStopped(ctx context.Context, accountID, tradeID, parentID int64, depth int, reason error) {
	logging.LogChainBreak(logging.FromContextOr(ctx, e.logger), accountID, tradeID, parentID, depth, reason)
}

func (e *CampaignEngine) accumulate(c *Campaign) {
	today := calc.Day(e.clock())
	premiums := decimal.Zero
	buybacks := decimal.Zero

	for i := range c.Legs {
		leg := &c.Legs[i]

		if c.StartDate.IsZero() && !leg.TradeDate.IsZero() {
			c.StartDate = leg.TradeDate
		}

		if leg.IsOption() {
			premiums = premiums.Add(leg.SignedAmount())
		}
		buybacks = buybacks.Add(leg.BuybackOrZero())

		c.Days += legDays(leg, today)
	}

	c.Premiums = calc.Round2(premiums)
	c.Buybacks = calc.Round2(buybacks)
}

// legDays is the capital-at-risk time of one leg: closed legs count until
// their close date, open legs until today. Undated legs count zero.
func legDays(leg *models.Trade, today time.Time) int {
	if leg.TradeDate.IsZero() {
		return 0
	}
	if leg.Status == models.StatusClosed {
		if leg.ClosedDate == nil {
			return 0
		}
		return max(0, calc.DaysBetween(leg.TradeDate, *leg.ClosedDate))
	}
	return max(0, calc.DaysBetween(leg.TradeDate, today))
}

// RootID returns the id of the campaign root, or the last resolvable
// ancestor when the chain is broken.
func (e *CampaignEngine) RootID(ctx context.Context, accountID, tradeID int64) (int64, error) {
	c, err := e.Walk(ctx, accountID, tradeID)
	if err != nil {
		return 0, err
	}
	return c.RootID, nil
}

// StartDate returns the trade date of the campaign root.
func (e *CampaignEngine) StartDate(ctx context.Context, accountID, tradeID int64) (time.Time, error) {
	c, err := e.Walk(ctx, accountID, tradeID)
	if err != nil {
		return time.Time{}, err
	}
	return c.StartDate, nil
}

// Premiums returns the net option premium collected across the campaign.
func (e *CampaignEngine) Premiums(ctx context.Context, accountID, tradeID int64) (decimal.Decimal, error) {
	c, err := e.Walk(ctx, accountID, tradeID)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Premiums, nil
}

// Days returns the cumulative days held across the campaign legs.
func (e *CampaignEngine) Days(ctx context.Context, accountID, tradeID int64) (int, error) {
	c, err := e.Walk(ctx, accountID, tradeID)
	if err != nil {
		return 0, err
	}
	return c.Days, nil
}

// Buybacks returns the buyback debits recorded across the campaign legs.
func (e *CampaignEngine) Buybacks(ctx context.Context, accountID, tradeID int64) (decimal.Decimal, error) {
	c, err := e.Walk(ctx, accountID, tradeID)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Buybacks, nil
}
