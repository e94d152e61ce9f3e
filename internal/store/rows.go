package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wheel-ledger/internal/calc"
	"wheel-ledger/internal/models"
)

// tradeRow is the column image of a trade shared by both adapters. Numeric
// and date columns are read as text and decoded leniently.
type tradeRow struct {
	ID           int64
	AccountID    int64
	Ticker       string
	AssetType    string
	Quantity     int64
	Price        string
	Strike       *string
	Expiration   *string
	Strategy     string
	Status       string
	EntryType    string
	TradeDate    string
	ClosedDate   *string
	CloseType    *string
	BuybackDebit *string
	ParentID     *int64
	Comment      *string
}

func (r *tradeRow) dest() []interface{} {
	return []interface{}{
		&r.ID, &r.AccountID, &r.Ticker, &r.AssetType, &r.Quantity, &r.Price,
		&r.Strike, &r.Expiration, &r.Strategy, &r.Status, &r.EntryType,
		&r.TradeDate, &r.ClosedDate, &r.CloseType, &r.BuybackDebit,
		&r.ParentID, &r.Comment,
	}
}

func (r *tradeRow) toTrade() models.Trade {
	t := models.Trade{
		ID:             r.ID,
		AccountID:      r.AccountID,
		Ticker:         r.Ticker,
		AssetType:      models.AssetType(r.AssetType),
		Quantity:       int(r.Quantity),
		Price:          calc.ParseDecimal(r.Price),
		Strike:         decimalPtr(r.Strike),
		ExpirationDate: datePtr(r.Expiration),
		StrategyType:   models.StrategyType(r.Strategy),
		Status:         models.TradeStatus(r.Status),
		EntryType:      models.EntryType(r.EntryType),
		ClosedDate:     datePtr(r.ClosedDate),
		BuybackDebit:   decimalPtr(r.BuybackDebit),
		ParentTradeID:  r.ParentID,
		Comment:        deref(r.Comment),
		CloseType:      models.CloseType(deref(r.CloseType)),
	}
	if d, ok := calc.ParseDate(r.TradeDate); ok {
		t.TradeDate = d
	}
	if t.EntryType == "" {
		t.EntryType = models.EntryOpening
	}
	return t
}

// tradeValues returns the insert values for trade in tradeInsertColumns order.
func tradeValues(t *models.Trade) []interface{} {
	status := t.Status
	if status == "" {
		status = models.StatusOpen
	}
	entry := t.EntryType
	if entry == "" {
		entry = models.EntryOpening
	}
	return []interface{}{
		t.AccountID,
		t.Ticker,
		string(t.AssetType),
		t.Quantity,
		t.Price.String(),
		decimalArg(t.Strike),
		dateArg(t.ExpirationDate),
		string(t.StrategyType),
		string(status),
		string(entry),
		calc.FormatDate(t.TradeDate),
		dateArg(t.ClosedDate),
		nullString(string(t.CloseType)),
		decimalArg(t.BuybackDebit),
		t.ParentTradeID,
		nullString(t.Comment),
	}
}

const tradeInsertColumns = `account_id, ticker, asset_type, quantity, price, strike, expiration_date,
	strategy_type, status, entry_type, trade_date, closed_date, close_type, buyback_debit,
	parent_trade_id, comment`

const tradeInsertArity = 16

// placeholderFunc renders the n-th (1-based) bind parameter of a dialect.
type placeholderFunc func(n int) string

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

func placeholders(ph placeholderFunc, from, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = ph(from + i)
	}
	return strings.Join(parts, ", ")
}

// buildTradeWhere renders the WHERE/ORDER/LIMIT tail of a trade listing.
func buildTradeWhere(filter TradeFilter, ph placeholderFunc) (string, []interface{}) {
	var b strings.Builder
	args := []interface{}{filter.AccountID}
	b.WriteString(" WHERE account_id = " + ph(1))

	add := func(clause string, v interface{}) {
		args = append(args, v)
		b.WriteString(" AND " + clause + " " + ph(len(args)))
	}

	if filter.Ticker != "" {
		add("ticker =", strings.ToUpper(filter.Ticker))
	}
	if filter.Status != "" {
		add("status =", string(filter.Status))
	}
	if filter.AssetType != "" {
		add("asset_type =", string(filter.AssetType))
	}
	if filter.Strategy != "" {
		add("strategy_type =", string(filter.Strategy))
	}
	if !filter.OpenedFrom.IsZero() {
		add("trade_date >=", calc.FormatDate(filter.OpenedFrom))
	}
	if !filter.OpenedTo.IsZero() {
		add("trade_date <=", calc.FormatDate(filter.OpenedTo))
	}
	if !filter.ClosedFrom.IsZero() {
		add("closed_date >=", calc.FormatDate(filter.ClosedFrom))
	}
	if !filter.ClosedTo.IsZero() {
		add("closed_date <=", calc.FormatDate(filter.ClosedTo))
	}

	if filter.NewestFirst {
		b.WriteString(" ORDER BY trade_date DESC, id DESC")
	} else {
		b.WriteString(" ORDER BY trade_date ASC, id ASC")
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		b.WriteString(" LIMIT " + ph(len(args)))
	}
	return b.String(), args
}

// buildTradeUpdate renders the SET list of a trade edit, numbering bind
// parameters from 1. It returns the next free parameter index.
func buildTradeUpdate(upd TradeUpdate, ph placeholderFunc) (string, []interface{}, int) {
	var sets []string
	var args []interface{}

	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, col+" = "+ph(len(args)))
	}

	if upd.Price != nil {
		set("price", upd.Price.String())
	}
	if upd.Strike != nil {
		set("strike", upd.Strike.String())
	}
	if upd.ExpirationDate != nil {
		set("expiration_date", calc.FormatDate(*upd.ExpirationDate))
	}
	if upd.Comment != nil {
		set("comment", *upd.Comment)
	}
	if upd.Quantity != nil {
		set("quantity", *upd.Quantity)
	}
	if upd.TradeDate != nil {
		set("trade_date", calc.FormatDate(*upd.TradeDate))
	}
	return strings.Join(sets, ", "), args, len(args) + 1
}

func decimalPtr(s *string) *decimal.Decimal {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	d := calc.ParseDecimal(*s)
	return &d
}

func datePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	return calc.ParseDatePtr(*s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func decimalArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func dateArg(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return calc.FormatDate(*t)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
