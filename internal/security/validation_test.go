package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "wheel-ledger/internal/errors"
)

func TestValidateTicker(t *testing.T) {
	for _, ok := range []string{"XYZ", "A", "BRK.B", "BF-B", "SPY", "QQQ3"} {
		assert.NoError(t, ValidateTicker(ok), ok)
	}
	for _, bad := range []string{"", "xyz", "TOOLONGX", "AB CD", "X;DROP", "BRK.", ".B"} {
		err := ValidateTicker(bad)
		assert.True(t, apperrors.IsValidation(err), bad)
	}
}

func TestCleanText(t *testing.T) {
	got, err := CleanText("comment", "  rolled\x00 down\tand out\n ")
	require.NoError(t, err)
	assert.Equal(t, "rolled down\tand out", got)

	_, err = CleanText("note", strings.Repeat("é", MaxTextLength))
	assert.NoError(t, err, "length counts runes")

	_, err = CleanText("note", strings.Repeat("x", MaxTextLength+1))
	assert.True(t, apperrors.IsValidation(err))
}

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abc", "***"},
		{"abcdef", "ab****"},
		{"abcdefghijkl", "abcd****ijkl"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskCredential(tt.in))
	}
}
