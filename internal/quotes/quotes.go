// Package quotes provides the market price collaborator consumed by the
// dashboard. Quotes are optional: a nil price means unknown.
package quotes

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"wheel-ledger/internal/calc"
)

// Status reports whether a provider can currently serve quotes.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Provider returns the current price of a ticker. A nil price with a nil
// error means the price is unknown.
type Provider interface {
	Quote(ctx context.Context, ticker string) (*decimal.Decimal, error)
	Status(ctx context.Context) Status
}

// StaticProvider serves prices from a fixed table, typically loaded from the
// config file or command flags.
type StaticProvider struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticProvider creates a provider over prices. Tickers are matched case
// insensitively.
func NewStaticProvider(prices map[string]decimal.Decimal) *StaticProvider {
	p := &StaticProvider{prices: make(map[string]decimal.Decimal, len(prices))}
	for t, price := range prices {
		p.prices[strings.ToUpper(t)] = price
	}
	return p
}

// ParsePrices converts a ticker to price-string table. Unparseable or
// non-positive prices are skipped and returned as the second value.
func ParsePrices(raw map[string]string) (map[string]decimal.Decimal, []string) {
	prices := make(map[string]decimal.Decimal, len(raw))
	var skipped []string
	for t, s := range raw {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil || !d.IsPositive() {
			skipped = append(skipped, strings.ToUpper(t))
			continue
		}
		prices[strings.ToUpper(t)] = calc.Round2(d)
	}
	return prices, skipped
}

// Set records the price of ticker.
func (p *StaticProvider) Set(ticker string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[strings.ToUpper(ticker)] = price
}

// Quote implements Provider.
func (p *StaticProvider) Quote(_ context.Context, ticker string) (*decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[strings.ToUpper(ticker)]
	if !ok {
		return nil, nil
	}
	return &price, nil
}

// Status implements Provider. A static table is connected when it holds any price.
func (p *StaticProvider) Status(_ context.Context) Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.prices) == 0 {
		return StatusDisconnected
	}
	return StatusConnected
}
