package quotes

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CachedProvider wraps a provider with a per-ticker TTL cache. Failed
// lookups are not cached and degrade to an unknown price.
type CachedProvider struct {
	next   Provider
	ttl    time.Duration
	clock  func() time.Time
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string]cachedQuote
}

type cachedQuote struct {
	price     *decimal.Decimal
	fetchedAt time.Time
}

// NewCachedProvider creates a cache over next. A nil clock uses time.Now.
func NewCachedProvider(next Provider, ttl time.Duration, clock func() time.Time, logger zerolog.Logger) *CachedProvider {
	if clock == nil {
		clock = time.Now
	}
	return &CachedProvider{
		next:    next,
		ttl:     ttl,
		clock:   clock,
		logger:  logger.With().Str("component", "quotes").Logger(),
		entries: make(map[string]cachedQuote),
	}
}

// Quote implements Provider.
func (c *CachedProvider) Quote(ctx context.Context, ticker string) (*decimal.Decimal, error) {
	key := strings.ToUpper(ticker)
	now := c.clock()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Sub(entry.fetchedAt) <= c.ttl {
		return entry.price, nil
	}

	price, err := c.next.Quote(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("ticker", key).Msg("Quote lookup failed")
		return nil, nil
	}

	c.mu.Lock()
	c.entries[key] = cachedQuote{price: price, fetchedAt: now}
	c.mu.Unlock()
	return price, nil
}

// Status implements Provider.
func (c *CachedProvider) Status(ctx context.Context) Status {
	return c.next.Status(ctx)
}

// Invalidate drops every cached quote.
func (c *CachedProvider) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedQuote)
}
