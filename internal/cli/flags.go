package cli

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"wheel-ledger/internal/calc"
	apperrors "wheel-ledger/internal/errors"
)

// decimalFlag parses a string flag as a decimal. An empty flag is zero.
func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperrors.NewValidationError(name, raw, "not a number")
	}
	return d, nil
}

// optionalDecimalFlag is decimalFlag for flags whose absence means "unset".
func optionalDecimalFlag(cmd *cobra.Command, name string) (*decimal.Decimal, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	d, err := decimalFlag(cmd, name)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// dateFlag parses a YYYY-MM-DD flag. An empty flag is the zero time.
func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	t, ok := calc.ParseDate(raw)
	if !ok {
		return time.Time{}, apperrors.NewValidationError(name, raw, "expected YYYY-MM-DD")
	}
	return t, nil
}

func optionalDateFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	t, err := dateFlag(cmd, name)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

func optionalIDFlag(cmd *cobra.Command, name string) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	id, _ := cmd.Flags().GetInt64(name)
	return &id
}

// parsePriceOverrides turns TICKER=PRICE pairs into quotes.
func parsePriceOverrides(pairs []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		ticker, raw, ok := strings.Cut(pair, "=")
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if !ok || ticker == "" {
			return nil, apperrors.NewValidationError("price", pair, "expected TICKER=PRICE")
		}
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !price.IsPositive() {
			return nil, apperrors.NewValidationError("price", pair, "price must be a positive number")
		}
		out[ticker] = calc.Round2(price)
	}
	return out, nil
}

func tickerSet(tickers []string) map[string]bool {
	out := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			out[t] = true
		}
	}
	return out
}

func normalizeArg(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
