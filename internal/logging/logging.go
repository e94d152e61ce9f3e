// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "warn",
		Console:    true,
		File:       false,
		FilePath:   filepath.Join(home, ".config", "wheel-ledger", "logs", "wheel.log"),
		MaxSize:    20,
		MaxBackups: 5,
		MaxAge:     30,
	}
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
// Console output goes to stderr so command output on stdout stays parseable.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg LogConfig, console io.Writer) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					switch ll {
					case "debug":
						return "\033[36mDBG\033[0m"
					case "info":
						return "\033[32mINF\033[0m"
					case "warn":
						return "\033[33mWRN\033[0m"
					case "error":
						return "\033[31mERR\033[0m"
					default:
						return ll
					}
				}
				return "???"
			},
		})
	}

	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a config level name to a zerolog level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ContextKey is the type for context keys.
type ContextKey string

// LoggerKey is the context key for the logger.
const LoggerKey ContextKey = "logger"

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	return FromContextOr(ctx, zerolog.Nop())
}

// FromContextOr retrieves the logger from context, or fallback when the
// context carries none.
func FromContextOr(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return fallback
}

// WithAccount adds an account id to the logger context.
func WithAccount(logger zerolog.Logger, accountID int64) zerolog.Logger {
	return logger.With().Int64("account_id", accountID).Logger()
}

// WithTicker adds a ticker to the logger context.
func WithTicker(logger zerolog.Logger, ticker string) zerolog.Logger {
	return logger.With().Str("ticker", ticker).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogTrade logs a registered trade leg.
func LogTrade(logger zerolog.Logger, tradeID int64, ticker, strategy string, qty int, price decimal.Decimal) {
	logger.Info().
		Str("event", "trade").
		Int64("trade_id", tradeID).
		Str("ticker", ticker).
		Str("strategy", strategy).
		Int("quantity", qty).
		Str("price", price.StringFixed(2)).
		Msg("Trade registered")
}

// LogClose logs a closed trade leg.
func LogClose(logger zerolog.Logger, tradeID int64, closeType string) {
	logger.Info().
		Str("event", "close").
		Int64("trade_id", tradeID).
		Str("close_type", closeType).
		Msg("Trade closed")
}

// LogChainBreak logs a campaign walk that stopped before reaching a root.
func LogChainBreak(logger zerolog.Logger, accountID, tradeID, parentID int64, depth int, reason error) {
	logger.Warn().
		Str("event", "chain_break").
		Int64("account_id", accountID).
		Int64("trade_id", tradeID).
		Int64("parent_trade_id", parentID).
		Int("depth", depth).
		Err(reason).
		Msg("Campaign chain walk stopped early")
}

// LogQuery logs a ledger query at debug level.
func LogQuery(logger zerolog.Logger, op string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "query").
		Str("op", op).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("Query failed")
	} else {
		event.Msg("Query completed")
	}
}
