package wheel

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"wheel-ledger/internal/calc"
	apperrors "wheel-ledger/internal/errors"
	"wheel-ledger/internal/logging"
	"wheel-ledger/internal/models"
	"wheel-ledger/internal/security"
	"wheel-ledger/internal/store"
)

// CloseTrade closes one open leg. A non-nil buybackDebit records the total
// cash paid to buy the leg back.
func (s *Service) CloseTrade(ctx context.Context, accountID, tradeID int64, closedDate time.Time, buybackDebit *decimal.Decimal) error {
	trade, err := s.ledger.GetTrade(ctx, accountID, tradeID)
	if err != nil {
		return err
	}
	if !trade.IsOpen() {
		return &apperrors.ValidationError{Field: "trade_id", Value: tradeID, Message: "trade is already closed", Err: apperrors.ErrTradeClosed}
	}

	closedDate = s.dateOrToday(closedDate)
	if closedDate.Before(trade.TradeDate) {
		return apperrors.NewValidationError("closed_date", calc.FormatDate(closedDate), "must not be before the trade date")
	}
	if buybackDebit != nil {
		if buybackDebit.IsNegative() {
			return apperrors.NewValidationError("buyback_debit", *buybackDebit, "must be non-negative")
		}
		if !trade.IsOption() {
			return apperrors.NewValidationError("buyback_debit", *buybackDebit, "only option legs can be bought back")
		}
		buybackDebit = roundPtr(buybackDebit)
	}

	if err := s.ledger.CloseTrade(ctx, store.CloseRequest{
		AccountID:    accountID,
		TradeID:      tradeID,
		ClosedDate:   closedDate,
		BuybackDebit: buybackDebit,
	}); err != nil {
		return err
	}

	closeType := "close"
	if buybackDebit != nil {
		closeType = string(models.CloseBuyback)
	}
	logging.LogClose(s.log(ctx, accountID), tradeID, closeType)
	return nil
}

// RollRequest describes closing an option leg and opening its continuation.
type RollRequest struct {
	AccountID     int64
	TradeID       int64
	NewStrike     decimal.Decimal
	NewPremium    decimal.Decimal
	NewExpiration time.Time
	TradeDate     time.Time
	BuybackDebit  *decimal.Decimal
	Comment       string
}

// RollOption closes an open option leg and opens a new leg of the same
// strategy and size linked to it, in one ledger transaction.
func (s *Service) RollOption(ctx context.Context, req RollRequest) (int64, error) {
	old, err := s.ledger.GetTrade(ctx, req.AccountID, req.TradeID)
	if err != nil {
		return 0, err
	}
	if !old.IsOption() {
		return 0, apperrors.NewValidationError("trade_id", req.TradeID, "only option legs can be rolled")
	}
	if !old.IsOpen() {
		return 0, &apperrors.ValidationError{Field: "trade_id", Value: req.TradeID, Message: "trade is already closed", Err: apperrors.ErrTradeClosed}
	}

	parentID := old.ID
	next := OptionOpening{
		AccountID:      req.AccountID,
		Ticker:         old.Ticker,
		Quantity:       old.Quantity,
		Strike:         req.NewStrike,
		Premium:        req.NewPremium,
		ExpirationDate: req.NewExpiration,
		TradeDate:      req.TradeDate,
		Comment:        req.Comment,
		ParentTradeID:  &parentID,
	}
	if err := s.validateOpening(&next); err != nil {
		return 0, err
	}
	if next.TradeDate.Before(old.TradeDate) {
		return 0, apperrors.NewValidationError("trade_date", calc.FormatDate(next.TradeDate), "must not be before the rolled leg was opened")
	}
	if req.BuybackDebit != nil && req.BuybackDebit.IsNegative() {
		return 0, apperrors.NewValidationError("buyback_debit", *req.BuybackDebit, "must be non-negative")
	}

	leg := s.optionLeg(next, old.StrategyType)
	id, err := s.ledger.CloseAndOpen(ctx, store.CloseRequest{
		AccountID:    req.AccountID,
		TradeID:      old.ID,
		ClosedDate:   next.TradeDate,
		BuybackDebit: roundPtr(req.BuybackDebit),
	}, leg)
	if err != nil {
		return 0, apperrors.NewLedgerError("roll", req.AccountID, old.ID, err)
	}

	log := s.log(ctx, req.AccountID)
	logging.LogClose(log, old.ID, "roll")
	logging.LogTrade(log, id, leg.Ticker, string(leg.StrategyType), leg.Quantity, leg.Price)
	return id, nil
}

// UpdateTrade edits a trade after validating the resulting leg.
func (s *Service) UpdateTrade(ctx context.Context, accountID, tradeID int64, upd store.TradeUpdate) error {
	if upd.IsEmpty() {
		return apperrors.NewValidationError("update", nil, "nothing to update")
	}
	trade, err := s.ledger.GetTrade(ctx, accountID, tradeID)
	if err != nil {
		return err
	}

	if upd.Quantity != nil && *upd.Quantity < 1 {
		return apperrors.NewValidationError("quantity", *upd.Quantity, "must be at least 1")
	}
	if upd.Price != nil {
		if trade.IsStock() && !upd.Price.IsPositive() {
			return apperrors.NewValidationError("price", *upd.Price, "must be positive")
		}
		if upd.Price.IsNegative() {
			return apperrors.NewValidationError("price", *upd.Price, "must be non-negative")
		}
		upd.Price = roundPtr(upd.Price)
	}
	if upd.Strike != nil {
		if !trade.IsOption() {
			return apperrors.NewValidationError("strike", *upd.Strike, "stock legs have no strike")
		}
		if !upd.Strike.IsPositive() {
			return apperrors.NewValidationError("strike", *upd.Strike, "must be positive")
		}
		upd.Strike = roundPtr(upd.Strike)
	}
	if upd.Comment != nil {
		comment, err := security.CleanText("comment", *upd.Comment)
		if err != nil {
			return err
		}
		upd.Comment = &comment
	}
	if upd.ExpirationDate != nil && !trade.IsOption() {
		return apperrors.NewValidationError("expiration_date", calc.FormatDatePtr(upd.ExpirationDate), "stock legs have no expiration")
	}

	tradeDate := trade.TradeDate
	if upd.TradeDate != nil {
		d := calc.Day(*upd.TradeDate)
		upd.TradeDate = &d
		tradeDate = d
	}
	expiration := trade.ExpirationDate
	if upd.ExpirationDate != nil {
		d := calc.Day(*upd.ExpirationDate)
		upd.ExpirationDate = &d
		expiration = &d
	}
	if expiration != nil && expiration.Before(tradeDate) {
		return apperrors.NewValidationError("expiration_date", calc.FormatDatePtr(expiration), "must not be before the trade date")
	}
	if trade.ClosedDate != nil && trade.ClosedDate.Before(tradeDate) {
		return apperrors.NewValidationError("trade_date", calc.FormatDate(tradeDate), "must not be after the closed date")
	}

	if err := s.ledger.UpdateTrade(ctx, accountID, tradeID, upd); err != nil {
		return err
	}
	log := s.log(ctx, accountID)
	log.Info().Int64("trade_id", tradeID).Msg("Trade updated")
	return nil
}

// DeleteTrade removes one trade. Legs that pointed at it keep their parent id.
func (s *Service) DeleteTrade(ctx context.Context, accountID, tradeID int64) error {
	if err := s.ledger.DeleteTrade(ctx, accountID, tradeID); err != nil {
		return err
	}
	log := s.log(ctx, accountID)
	log.Warn().Int64("trade_id", tradeID).Msg("Trade deleted")
	return nil
}

// SetCampaignFees records the commissions and fees of the campaign tradeID
// belongs to.
func (s *Service) SetCampaignFees(ctx context.Context, accountID, tradeID int64, commissions, fees decimal.Decimal) (int64, error) {
	if commissions.IsNegative() {
		return 0, apperrors.NewValidationError("commissions", commissions, "must be non-negative")
	}
	if fees.IsNegative() {
		return 0, apperrors.NewValidationError("fees", fees, "must be non-negative")
	}

	rootID, err := s.campaigns.RootID(ctx, accountID, tradeID)
	if err != nil {
		return 0, err
	}
	if err := s.ledger.UpsertCampaignAdjustment(ctx, &models.CampaignAdjustment{
		AccountID:      accountID,
		CampaignRootID: rootID,
		Commissions:    calc.Round2(commissions),
		Fees:           calc.Round2(fees),
	}); err != nil {
		return 0, err
	}
	return rootID, nil
}
