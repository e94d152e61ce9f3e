package quotes

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls int
	price *decimal.Decimal
	err   error
}

func (p *countingProvider) Quote(_ context.Context, _ string) (*decimal.Decimal, error) {
	p.calls++
	return p.price, p.err
}

func (p *countingProvider) Status(_ context.Context) Status {
	return StatusConnected
}

func TestStaticProvider(t *testing.T) {
	ctx := context.Background()
	p := NewStaticProvider(map[string]decimal.Decimal{"xyz": decimal.RequireFromString("99")})

	price, err := p.Quote(ctx, "XYZ")
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, price.Equal(decimal.NewFromInt(99)))

	price, err = p.Quote(ctx, "ABC")
	require.NoError(t, err)
	assert.Nil(t, price)

	assert.Equal(t, StatusConnected, p.Status(ctx))
	assert.Equal(t, StatusDisconnected, NewStaticProvider(nil).Status(ctx))

	p.Set("abc", decimal.NewFromInt(10))
	price, _ = p.Quote(ctx, "ABC")
	require.NotNil(t, price)
	assert.True(t, price.Equal(decimal.NewFromInt(10)))
}

func TestParsePrices(t *testing.T) {
	prices, skipped := ParsePrices(map[string]string{
		"xyz": "99.456",
		"abc": "n/a",
		"def": "-1",
	})

	require.Len(t, prices, 1)
	assert.Equal(t, "99.46", prices["XYZ"].StringFixed(2))
	sort.Strings(skipped)
	assert.Equal(t, []string{"ABC", "DEF"}, skipped)
}

func TestCachedProviderTTL(t *testing.T) {
	ctx := context.Background()
	price := decimal.NewFromInt(50)
	next := &countingProvider{price: &price}

	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	c := NewCachedProvider(next, 30*time.Second, func() time.Time { return now }, zerolog.Nop())

	for i := 0; i < 3; i++ {
		got, err := c.Quote(ctx, "xyz")
		require.NoError(t, err)
		require.NotNil(t, got)
	}
	assert.Equal(t, 1, next.calls)

	now = now.Add(31 * time.Second)
	_, _ = c.Quote(ctx, "XYZ")
	assert.Equal(t, 2, next.calls)

	c.Invalidate()
	_, _ = c.Quote(ctx, "XYZ")
	assert.Equal(t, 3, next.calls)
}

func TestCachedProviderDegradesErrors(t *testing.T) {
	next := &countingProvider{err: errors.New("boom")}
	c := NewCachedProvider(next, time.Minute, nil, zerolog.Nop())

	got, err := c.Quote(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, _ = c.Quote(context.Background(), "XYZ")
	assert.Equal(t, 2, next.calls, "failures are not cached")
}
