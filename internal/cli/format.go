package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wheel-ledger/internal/calc"
)

// FormatUSD formats an amount as dollars with thousands separators and two
// decimals, rounding half away from zero.
func FormatUSD(amount decimal.Decimal) string {
	rounded := calc.Round2(amount)
	negative := rounded.IsNegative()
	str := rounded.Abs().StringFixed(2)

	intPart, decPart, _ := strings.Cut(str, ".")
	result := "$" + groupThousands(intPart) + "." + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// FormatUSDPtr formats amount, or "-" when it is nil.
func FormatUSDPtr(amount *decimal.Decimal) string {
	if amount == nil {
		return "-"
	}
	return FormatUSD(*amount)
}

// groupThousands inserts commas every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value decimal.Decimal) string {
	rounded := calc.Round2(value)
	sign := ""
	if rounded.IsPositive() {
		sign = "+"
	}
	return sign + rounded.StringFixed(2) + "%"
}

// FormatPnL formats P&L with sign.
func FormatPnL(pnl decimal.Decimal) string {
	formatted := FormatUSD(pnl)
	if calc.Round2(pnl).IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// FormatPrice formats a per-share price.
func FormatPrice(price decimal.Decimal) string {
	return calc.Round2(price).StringFixed(2)
}

// FormatPricePtr formats price, or "-" when it is nil.
func FormatPricePtr(price *decimal.Decimal) string {
	if price == nil {
		return "-"
	}
	return FormatPrice(*price)
}

// FormatQuantity formats a quantity with commas.
func FormatQuantity(qty int) string {
	if qty < 0 {
		return "-" + groupThousands(fmt.Sprintf("%d", -qty))
	}
	return groupThousands(fmt.Sprintf("%d", qty))
}

// FormatDate formats a date, or "-" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return calc.FormatDate(t)
}

// FormatDatePtr formats t, or "-" when it is nil.
func FormatDatePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return FormatDate(*t)
}

// FormatDays formats a day count.
func FormatDays(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
