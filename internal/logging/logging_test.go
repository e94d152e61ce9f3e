package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" INFO ":  zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "wheel.log")
	logger := newLogger(LogConfig{Level: "info", File: true, FilePath: path, MaxSize: 1}, nil)

	logger.Info().Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestNewLoggerWithoutWriters(t *testing.T) {
	logger := newLogger(LogConfig{Level: "debug"}, nil)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	logger.Info().Msg("discarded")
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), WithOperation(WithAccount(logger, 7), "positions"))
	l := FromContext(ctx)
	l.Info().Msg("x")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, float64(7), entry["account_id"])
	assert.Equal(t, "positions", entry["operation"])

	// missing logger is a no-op
	nop := FromContext(context.Background())
	nop.Info().Msg("dropped")
}

func TestEventHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogTrade(WithTicker(logger, "XYZ"), 3, "XYZ", "CSP", 2, decimal.RequireFromString("1.5"))
	var trade map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &trade))
	assert.Equal(t, "trade", trade["event"])
	assert.Equal(t, "1.50", trade["price"])
	assert.Equal(t, float64(2), trade["quantity"])

	buf.Reset()
	LogChainBreak(logger, 1, 10, 9, 4, errors.New("campaign chain broken"))
	var brk map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &brk))
	assert.Equal(t, "warn", brk["level"])
	assert.Equal(t, float64(9), brk["parent_trade_id"])
	assert.Equal(t, "campaign chain broken", brk["error"])
}
