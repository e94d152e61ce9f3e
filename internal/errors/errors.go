// Package errors provides custom error types for ledger and campaign errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotFound           = errors.New("not found")
	ErrAccountNotFound    = fmt.Errorf("account %w", ErrNotFound)
	ErrTradeNotFound      = fmt.Errorf("trade %w", ErrNotFound)
	ErrInsufficientShares = errors.New("insufficient free shares")
	ErrTradeClosed        = errors.New("trade already closed")
	ErrInputValidation    = errors.New("input validation failed")
	ErrDuplicateAccount   = errors.New("account name already exists")
	ErrChainBroken        = errors.New("campaign chain broken")
	ErrChainTooDeep       = errors.New("campaign chain exceeds depth limit")
	ErrConfigInvalid      = errors.New("invalid configuration")
)

// ValidationError represents a rejected input. It matches ErrInputValidation
// and, when set, the more specific Err.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports ErrInputValidation for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewSharesError creates a ValidationError for a covered call that is not
// backed by enough free shares.
func NewSharesError(ticker string, needed, free int) *ValidationError {
	return &ValidationError{
		Field:   "quantity",
		Value:   needed,
		Message: fmt.Sprintf("%s needs %d shares, only %d free", ticker, needed, free),
		Err:     ErrInsufficientShares,
	}
}

// LedgerError represents a failed ledger operation on one trade.
type LedgerError struct {
	Op        string
	AccountID int64
	TradeID   int64
	Err       error
}

func (e *LedgerError) Error() string {
	if e.TradeID != 0 {
		return fmt.Sprintf("ledger error [%s] account %d trade %d: %v", e.Op, e.AccountID, e.TradeID, e.Err)
	}
	return fmt.Sprintf("ledger error [%s] account %d: %v", e.Op, e.AccountID, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// NewLedgerError creates a new LedgerError.
func NewLedgerError(op string, accountID, tradeID int64, err error) *LedgerError {
	return &LedgerError{
		Op:        op,
		AccountID: accountID,
		TradeID:   tradeID,
		Err:       err,
	}
}

// ChainError describes where a campaign walk stopped early.
type ChainError struct {
	AccountID int64
	TradeID   int64
	ParentID  int64
	Depth     int
	Err       error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("chain error account %d trade %d parent %d depth %d: %v",
		e.AccountID, e.TradeID, e.ParentID, e.Depth, e.Err)
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

// NewChainError creates a new ChainError.
func NewChainError(accountID, tradeID, parentID int64, depth int, err error) *ChainError {
	return &ChainError{
		AccountID: accountID,
		TradeID:   tradeID,
		ParentID:  parentID,
		Depth:     depth,
		Err:       err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsValidation reports whether err is a rejected input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInputValidation)
}

// IsNotFound reports whether err is any not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
