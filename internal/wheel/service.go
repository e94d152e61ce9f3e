package wheel

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheel-ledger/internal/calc"
	apperrors "wheel-ledger/internal/errors"
	"wheel-ledger/internal/logging"
	"wheel-ledger/internal/models"
	"wheel-ledger/internal/security"
	"wheel-ledger/internal/store"
)

// Service is the entry point for recording and evaluating wheel campaigns.
// Every operation is validated before anything is written.
type Service struct {
	ledger    store.Ledger
	campaigns *CampaignEngine
	logger    zerolog.Logger
	clock     func() time.Time
	maxDepth  int
	alertDTE  int
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for "today".
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithMaxChainDepth bounds campaign walks.
func WithMaxChainDepth(n int) Option {
	return func(s *Service) { s.maxDepth = n }
}

// WithAlertDTE sets the days-to-expiration at or below which positions are flagged.
func WithAlertDTE(n int) Option {
	return func(s *Service) { s.alertDTE = n }
}

// DefaultAlertDTE is the default expiring-soon threshold in days.
const DefaultAlertDTE = 5

// NewService creates a Service over ledger.
func NewService(ledger store.Ledger, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		ledger:   ledger,
		logger:   logger.With().Str("component", "wheel").Logger(),
		clock:    time.Now,
		maxDepth: DefaultMaxChainDepth,
		alertDTE: DefaultAlertDTE,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.campaigns = NewCampaignEngine(ledger, s.logger, s.maxDepth, s.clock)
	return s
}

// log returns the request logger carried by ctx, or the service logger,
// tagged with the account.
func (s *Service) log(ctx context.Context, accountID int64) zerolog.Logger {
	return logging.WithAccount(logging.FromContextOr(ctx, s.logger), accountID)
}

// Campaigns returns the campaign engine.
func (s *Service) Campaigns() *CampaignEngine {
	return s.campaigns
}

// Ledger returns the underlying ledger.
func (s *Service) Ledger() store.Ledger {
	return s.ledger
}

func (s *Service) today() time.Time {
	return calc.Day(s.clock())
}

func (s *Service) dateOrToday(t time.Time) time.Time {
	if t.IsZero() {
		return s.today()
	}
	return calc.Day(t)
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Accounts

// CreateAccount creates an account for userID. A nil cfg uses the defaults.
func (s *Service) CreateAccount(ctx context.Context, userID int64, name string, cfg *models.AccountConfig) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, apperrors.NewValidationError("name", name, "account name is required")
	}
	c := models.DefaultAccountConfig()
	if cfg != nil {
		if err := validateAccountConfig(*cfg); err != nil {
			return 0, err
		}
		c = *cfg
	}
	id, err := s.ledger.CreateAccount(ctx, &models.Account{
		UserID:       userID,
		Name:         name,
		CapTotal:     c.CapTotal,
		TargetAnn:    c.TargetAnn,
		MaxPerTicker: c.MaxPerTicker,
	})
	if err != nil {
		return 0, err
	}
	log := s.log(ctx, id)
	log.Info().Int64("user_id", userID).Str("name", name).Msg("Account created")
	return id, nil
}

// Account returns an account of userID.
func (s *Service) Account(ctx context.Context, accountID, userID int64) (*models.Account, error) {
	return s.ledger.GetAccount(ctx, accountID, userID)
}

// Accounts lists the accounts of userID.
func (s *Service) Accounts(ctx context.Context, userID int64) ([]models.Account, error) {
	return s.ledger.ListAccounts(ctx, userID)
}

// UpdateAccountConfig replaces the capital settings of an account.
func (s *Service) UpdateAccountConfig(ctx context.Context, accountID, userID int64, cfg models.AccountConfig) error {
	if err := validateAccountConfig(cfg); err != nil {
		return err
	}
	return s.ledger.UpdateAccountConfig(ctx, accountID, userID, cfg)
}

// UpdateToken stores the broker session of an account.
func (s *Service) UpdateToken(ctx context.Context, accountID, userID int64, token, environment, status string) error {
	switch environment {
	case "":
		environment = "sandbox"
	case "sandbox", "production":
	default:
		return apperrors.NewValidationError("environment", environment, "must be sandbox or production")
	}
	if status == "" {
		status = "offline"
	}
	return s.ledger.UpdateAccountToken(ctx, accountID, userID, token, environment, status)
}

// DeleteAccount removes an account and all of its records.
func (s *Service) DeleteAccount(ctx context.Context, accountID, userID int64) error {
	if err := s.ledger.DeleteAccount(ctx, accountID, userID); err != nil {
		return err
	}
	log := s.log(ctx, accountID)
	log.Info().Int64("user_id", userID).Msg("Account deleted")
	return nil
}

func validateAccountConfig(cfg models.AccountConfig) error {
	if !cfg.CapTotal.IsPositive() {
		return apperrors.NewValidationError("cap_total", cfg.CapTotal, "must be positive")
	}
	if cfg.TargetAnn.IsNegative() {
		return apperrors.NewValidationError("target_ann", cfg.TargetAnn, "must be non-negative")
	}
	if !cfg.MaxPerTicker.IsPositive() || cfg.MaxPerTicker.GreaterThan(decimal.NewFromInt(100)) {
		return apperrors.NewValidationError("max_per_ticker", cfg.MaxPerTicker, "must be between 0 and 100")
	}
	return nil
}

// Registrations

// OptionOpening describes a short put or covered call being sold.
type OptionOpening struct {
	AccountID      int64
	Ticker         string
	Quantity       int
	Strike         decimal.Decimal
	Premium        decimal.Decimal
	ExpirationDate time.Time
	TradeDate      time.Time
	Comment        string
	ParentTradeID  *int64
}

func (s *Service) validateOpening(req *OptionOpening) error {
	req.Ticker = normalizeTicker(req.Ticker)
	req.TradeDate = s.dateOrToday(req.TradeDate)

	if err := security.ValidateTicker(req.Ticker); err != nil {
		return err
	}
	comment, err := security.CleanText("comment", req.Comment)
	if err != nil {
		return err
	}
	req.Comment = comment
	if req.Quantity < 1 {
		return apperrors.NewValidationError("quantity", req.Quantity, "must be at least 1 contract")
	}
	if !req.Strike.IsPositive() {
		return apperrors.NewValidationError("strike", req.Strike, "must be positive")
	}
	if req.Premium.IsNegative() {
		return apperrors.NewValidationError("premium", req.Premium, "must be non-negative")
	}
	if req.ExpirationDate.IsZero() {
		return apperrors.NewValidationError("expiration_date", "", "expiration date is required")
	}
	req.ExpirationDate = calc.Day(req.ExpirationDate)
	if req.ExpirationDate.Before(req.TradeDate) {
		return apperrors.NewValidationError("expiration_date", calc.FormatDate(req.ExpirationDate), "must not be before the trade date")
	}
	return nil
}

// checkParent verifies that parentID is a trade of the account on ticker.
func (s *Service) checkParent(ctx context.Context, accountID, parentID int64, ticker string) (*models.Trade, error) {
	parent, err := s.ledger.GetTrade(ctx, accountID, parentID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, &apperrors.ValidationError{Field: "parent_trade_id", Value: parentID, Message: "parent trade not found", Err: err}
		}
		return nil, err
	}
	if parent.Ticker != ticker {
		return nil, apperrors.NewValidationError("parent_trade_id", parentID, "parent trade is on "+parent.Ticker)
	}
	return parent, nil
}

func (s *Service) optionLeg(req OptionOpening, strategy models.StrategyType) *models.Trade {
	strike := calc.Round2(req.Strike)
	exp := req.ExpirationDate
	return &models.Trade{
		AccountID:      req.AccountID,
		Ticker:         req.Ticker,
		AssetType:      models.AssetOption,
		Quantity:       req.Quantity,
		Price:          calc.Round2(req.Premium),
		Strike:         &strike,
		ExpirationDate: &exp,
		StrategyType:   strategy,
		Status:         models.StatusOpen,
		EntryType:      models.EntryOpening,
		TradeDate:      req.TradeDate,
		ParentTradeID:  req.ParentTradeID,
		Comment:        req.Comment,
	}
}

func (s *Service) insertLeg(ctx context.Context, t *models.Trade) (int64, error) {
	id, err := s.ledger.InsertTrade(ctx, t)
	if err != nil {
		return 0, err
	}
	logging.LogTrade(s.log(ctx, t.AccountID), id, t.Ticker, string(t.StrategyType), t.Quantity, t.Price)
	return id, nil
}

// RegisterCSPOpening records a cash-secured put sale.
func (s *Service) RegisterCSPOpening(ctx context.Context, req OptionOpening) (int64, error) {
	if err := s.validateOpening(&req); err != nil {
		return 0, err
	}
	if req.ParentTradeID != nil {
		if _, err := s.checkParent(ctx, req.AccountID, *req.ParentTradeID, req.Ticker); err != nil {
			return 0, err
		}
	}
	return s.insertLeg(ctx, s.optionLeg(req, models.StrategyCSP))
}

// RegisterCCOpening records a covered call sale. The account must hold
// quantity x 100 shares not already committed to other open calls. Without
// an explicit parent the call joins the campaign of the newest open stock leg.
func (s *Service) RegisterCCOpening(ctx context.Context, req OptionOpening) (int64, error) {
	if err := s.validateOpening(&req); err != nil {
		return 0, err
	}

	free, err := s.GetStockQuantity(ctx, req.AccountID, req.Ticker)
	if err != nil {
		return 0, err
	}
	if needed := req.Quantity * models.ContractMultiplier; free < needed {
		return 0, apperrors.NewSharesError(req.Ticker, needed, free)
	}

	if req.ParentTradeID != nil {
		if _, err := s.checkParent(ctx, req.AccountID, *req.ParentTradeID, req.Ticker); err != nil {
			return 0, err
		}
	} else {
		latest, err := s.ledger.ListTrades(ctx, store.TradeFilter{
			AccountID:   req.AccountID,
			Ticker:      req.Ticker,
			AssetType:   models.AssetStock,
			Status:      models.StatusOpen,
			NewestFirst: true,
			Limit:       1,
		})
		if err != nil {
			return 0, err
		}
		if len(latest) > 0 {
			id := latest[0].ID
			req.ParentTradeID = &id
		}
	}

	return s.insertLeg(ctx, s.optionLeg(req, models.StrategyCC))
}

// AssignmentRequest describes a short put being assigned.
type AssignmentRequest struct {
	AccountID     int64
	ParentTradeID int64
	Ticker        string
	// Quantity is the share count received; zero means contracts x 100.
	Quantity int
	// AssignmentPrice is the per-share cost; zero means the put strike.
	AssignmentPrice decimal.Decimal
	TradeDate       time.Time
	Comment         string
}

// RegisterAssignment closes the assigned put and opens the stock leg it
// delivered, linked to the put, in one ledger transaction.
func (s *Service) RegisterAssignment(ctx context.Context, req AssignmentRequest) (int64, error) {
	parent, err := s.ledger.GetTrade(ctx, req.AccountID, req.ParentTradeID)
	if err != nil {
		return 0, err
	}
	if !parent.IsPut() {
		return 0, apperrors.NewValidationError("parent_trade_id", req.ParentTradeID, "only a cash-secured put can be assigned")
	}
	if !parent.IsOpen() {
		return 0, &apperrors.ValidationError{Field: "parent_trade_id", Value: req.ParentTradeID, Message: "put is already closed", Err: apperrors.ErrTradeClosed}
	}

	ticker := normalizeTicker(req.Ticker)
	if ticker == "" {
		ticker = parent.Ticker
	}
	if ticker != parent.Ticker {
		return 0, apperrors.NewValidationError("ticker", ticker, "put was sold on "+parent.Ticker)
	}
	comment, err := security.CleanText("comment", req.Comment)
	if err != nil {
		return 0, err
	}

	qty := req.Quantity
	if qty == 0 {
		qty = parent.Shares()
	}
	if qty < 1 {
		return 0, apperrors.NewValidationError("quantity", qty, "must be at least 1 share")
	}

	price := req.AssignmentPrice
	if price.IsZero() {
		price = parent.StrikeOrZero()
	}
	if !price.IsPositive() {
		return 0, apperrors.NewValidationError("assignment_price", price, "must be positive")
	}

	tradeDate := s.dateOrToday(req.TradeDate)
	if tradeDate.Before(parent.TradeDate) {
		return 0, apperrors.NewValidationError("trade_date", calc.FormatDate(tradeDate), "must not be before the put was sold")
	}

	parentID := parent.ID
	leg := &models.Trade{
		AccountID:     req.AccountID,
		Ticker:        ticker,
		AssetType:     models.AssetStock,
		Quantity:      qty,
		Price:         calc.Round2(price),
		StrategyType:  models.StrategyAssignment,
		Status:        models.StatusOpen,
		EntryType:     models.EntryAssignment,
		TradeDate:     tradeDate,
		ParentTradeID: &parentID,
		Comment:       comment,
	}

	id, err := s.ledger.CloseAndOpen(ctx, store.CloseRequest{
		AccountID:  req.AccountID,
		TradeID:    parent.ID,
		ClosedDate: tradeDate,
	}, leg)
	if err != nil {
		return 0, apperrors.NewLedgerError("assignment", req.AccountID, parent.ID, err)
	}

	log := s.log(ctx, req.AccountID)
	logging.LogClose(log, parent.ID, "assignment")
	logging.LogTrade(log, id, ticker, string(models.StrategyAssignment), qty, leg.Price)
	return id, nil
}

// PurchaseRequest describes shares bought outright.
type PurchaseRequest struct {
	AccountID int64
	Ticker    string
	Quantity  int
	Price     decimal.Decimal
	TradeDate time.Time
	Comment   string
}

// RegisterDirectPurchase records shares bought outright.
func (s *Service) RegisterDirectPurchase(ctx context.Context, req PurchaseRequest) (int64, error) {
	ticker := normalizeTicker(req.Ticker)
	if err := security.ValidateTicker(ticker); err != nil {
		return 0, err
	}
	comment, err := security.CleanText("comment", req.Comment)
	if err != nil {
		return 0, err
	}
	if req.Quantity < 1 {
		return 0, apperrors.NewValidationError("quantity", req.Quantity, "must be at least 1 share")
	}
	if !req.Price.IsPositive() {
		return 0, apperrors.NewValidationError("price", req.Price, "must be positive")
	}

	return s.insertLeg(ctx, &models.Trade{
		AccountID:    req.AccountID,
		Ticker:       ticker,
		AssetType:    models.AssetStock,
		Quantity:     req.Quantity,
		Price:        calc.Round2(req.Price),
		StrategyType: models.StrategyStock,
		Status:       models.StatusOpen,
		EntryType:    models.EntryDirectPurchase,
		TradeDate:    s.dateOrToday(req.TradeDate),
		Comment:      comment,
	})
}

// DividendRequest describes a cash dividend received.
type DividendRequest struct {
	AccountID int64
	Ticker    string
	Amount    decimal.Decimal
	ExDate    time.Time
	PayDate   *time.Time
	Note      string
}

// RegisterDividend records a dividend that lowers the ticker's cost basis.
func (s *Service) RegisterDividend(ctx context.Context, req DividendRequest) (int64, error) {
	ticker := normalizeTicker(req.Ticker)
	if err := security.ValidateTicker(ticker); err != nil {
		return 0, err
	}
	note, err := security.CleanText("note", req.Note)
	if err != nil {
		return 0, err
	}
	if !req.Amount.IsPositive() {
		return 0, apperrors.NewValidationError("amount", req.Amount, "must be positive")
	}
	if req.ExDate.IsZero() {
		return 0, apperrors.NewValidationError("ex_date", "", "ex-dividend date is required")
	}
	if req.PayDate != nil && req.PayDate.Before(req.ExDate) {
		return 0, apperrors.NewValidationError("pay_date", calc.FormatDatePtr(req.PayDate), "must not be before the ex-dividend date")
	}

	d := &models.Dividend{
		AccountID: req.AccountID,
		Ticker:    ticker,
		Amount:    calc.Round2(req.Amount),
		ExDate:    calc.Day(req.ExDate),
		Note:      note,
	}
	if req.PayDate != nil {
		pd := calc.Day(*req.PayDate)
		d.PayDate = &pd
	}

	id, err := s.ledger.InsertDividend(ctx, d)
	if err != nil {
		return 0, err
	}
	log := s.log(ctx, req.AccountID)
	log.Info().
		Str("event", "dividend").
		Int64("dividend_id", id).
		Str("ticker", ticker).
		Str("amount", d.Amount.StringFixed(2)).
		Msg("Dividend registered")
	return id, nil
}

// AdjustmentRequest describes a manual cost basis correction.
type AdjustmentRequest struct {
	AccountID int64
	Ticker    string
	Type      models.AdjustmentType
	OldValue  *decimal.Decimal
	NewValue  *decimal.Decimal
	Note      string
	TradeID   *int64
}

// RegisterAdjustment records a position adjustment applied as new - old.
func (s *Service) RegisterAdjustment(ctx context.Context, req AdjustmentRequest) (int64, error) {
	ticker := normalizeTicker(req.Ticker)
	if err := security.ValidateTicker(ticker); err != nil {
		return 0, err
	}
	note, err := security.CleanText("note", req.Note)
	if err != nil {
		return 0, err
	}
	switch req.Type {
	case models.AdjustmentSplit, models.AdjustmentCostBasisCorrection, models.AdjustmentOther:
	case "":
		req.Type = models.AdjustmentOther
	default:
		return 0, apperrors.NewValidationError("adjustment_type", req.Type, "must be SPLIT, COST_BASIS_CORRECTION or OTHER")
	}
	if req.OldValue == nil && req.NewValue == nil {
		return 0, apperrors.NewValidationError("new_value", nil, "old or new value is required")
	}
	if req.TradeID != nil {
		if _, err := s.checkParent(ctx, req.AccountID, *req.TradeID, ticker); err != nil {
			return 0, err
		}
	}

	a := &models.PositionAdjustment{
		AccountID: req.AccountID,
		TradeID:   req.TradeID,
		Ticker:    ticker,
		Type:      req.Type,
		OldValue:  roundPtr(req.OldValue),
		NewValue:  roundPtr(req.NewValue),
		Note:      note,
	}
	id, err := s.ledger.InsertAdjustment(ctx, a)
	if err != nil {
		return 0, err
	}
	log := s.log(ctx, req.AccountID)
	log.Info().
		Str("event", "adjustment").
		Int64("adjustment_id", id).
		Str("ticker", ticker).
		Str("type", string(req.Type)).
		Str("delta", a.Delta().StringFixed(2)).
		Msg("Adjustment registered")
	return id, nil
}

// Dividends lists the dividends of an account, optionally for one ticker.
func (s *Service) Dividends(ctx context.Context, accountID int64, ticker string) ([]models.Dividend, error) {
	return s.ledger.ListDividends(ctx, accountID, normalizeTicker(ticker))
}

// Adjustments lists the position adjustments of an account, optionally for one ticker.
func (s *Service) Adjustments(ctx context.Context, accountID int64, ticker string) ([]models.PositionAdjustment, error) {
	return s.ledger.ListAdjustments(ctx, accountID, normalizeTicker(ticker))
}

func roundPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	r := calc.Round2(*d)
	return &r
}

// GetStockQuantity returns the open shares of ticker not committed to open
// covered calls, never below zero.
func (s *Service) GetStockQuantity(ctx context.Context, accountID int64, ticker string) (int, error) {
	trades, err := s.ledger.ListTrades(ctx, store.TradeFilter{
		AccountID: accountID,
		Ticker:    normalizeTicker(ticker),
		Status:    models.StatusOpen,
	})
	if err != nil {
		return 0, err
	}
	return freeShares(trades), nil
}

func freeShares(open []models.Trade) int {
	shares, ccContracts := 0, 0
	for i := range open {
		switch {
		case open[i].IsStock():
			shares += open[i].Quantity
		case open[i].IsCoveredCall():
			ccContracts += open[i].Quantity
		}
	}
	return max(0, shares-ccContracts*models.ContractMultiplier)
}
