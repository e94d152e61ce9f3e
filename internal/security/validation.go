// Package security provides input checks and credential masking for ledger data.
package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	apperrors "wheel-ledger/internal/errors"
)

// MaxTextLength bounds comments and notes stored with a record.
const MaxTextLength = 500

// Ticker pattern: exchange symbols with an optional class suffix (BRK.B, BF-B)
var tickerPattern = regexp.MustCompile(`^[A-Z0-9]{1,6}([.-][A-Z0-9]{1,2})?$`)

// ValidateTicker checks an already normalized ticker.
func ValidateTicker(ticker string) error {
	if ticker == "" {
		return apperrors.NewValidationError("ticker", ticker, "ticker is required")
	}
	if !tickerPattern.MatchString(ticker) {
		return apperrors.NewValidationError("ticker", ticker, "invalid ticker format")
	}
	return nil
}

// CleanText strips control characters from free-form text and enforces
// MaxTextLength on the result.
func CleanText(field, text string) (string, error) {
	text = strings.TrimSpace(SanitizeText(text))
	if n := utf8.RuneCountInString(text); n > MaxTextLength {
		return "", apperrors.NewValidationError(field, fmt.Sprintf("%d characters", n),
			fmt.Sprintf("text too long (max %d characters)", MaxTextLength))
	}
	return text, nil
}

// SanitizeText removes null bytes and other control characters. Tabs and
// newlines are kept.
func SanitizeText(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r == '\t' || r == '\n' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaskCredential masks a credential value for display or logging.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
