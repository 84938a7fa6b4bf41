package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	prices map[string]float64
	asked  []string
}

func (f *fakeFetcher) Quote(_ context.Context, symbol string) (float64, error) {
	f.asked = append(f.asked, symbol)
	price, ok := f.prices[symbol]
	if !ok {
		return 0, errors.New("no quote available")
	}
	return price, nil
}

type fakeSymbols struct {
	symbols []string
	err     error
}

func (f *fakeSymbols) AllSymbols() ([]string, error) {
	return f.symbols, f.err
}

func TestPollJob_RefreshesWatchedAndIndexSymbols(t *testing.T) {
	fetcher := &fakeFetcher{prices: map[string]float64{
		"AAPL":         150,
		"MSFT":         300,
		"NSE:NIFTY_50": 24000,
	}}
	cache := NewCache(zerolog.Nop())

	job := NewPollJob(fetcher, &fakeSymbols{symbols: []string{"AAPL", "MSFT"}}, cache,
		[]string{"NSE:NIFTY_50"}, zerolog.Nop())

	require.NoError(t, job.Run())

	assert.ElementsMatch(t, []string{"AAPL", "MSFT", "NSE:NIFTY_50"}, fetcher.asked)

	price, ok := cache.Get("NSE:NIFTY_50")
	require.True(t, ok)
	assert.InDelta(t, 24000.0, price, 1e-9)
}

func TestPollJob_DeduplicatesSymbols(t *testing.T) {
	fetcher := &fakeFetcher{prices: map[string]float64{"AAPL": 150}}
	cache := NewCache(zerolog.Nop())

	// Watched set already contains the index symbol
	job := NewPollJob(fetcher, &fakeSymbols{symbols: []string{"AAPL"}}, cache,
		[]string{"AAPL"}, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, []string{"AAPL"}, fetcher.asked)
}

func TestPollJob_FailedFetchKeepsCachedValue(t *testing.T) {
	fetcher := &fakeFetcher{prices: map[string]float64{"MSFT": 300}}
	cache := NewCache(zerolog.Nop())
	cache.Set(tick("AAPL", 150, time.Now().UTC()))

	job := NewPollJob(fetcher, &fakeSymbols{symbols: []string{"AAPL", "MSFT"}}, cache,
		nil, zerolog.Nop())

	// AAPL fetch fails; the cycle still completes and MSFT lands
	require.NoError(t, job.Run())

	price, ok := cache.Get("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 150.0, price, 1e-9)

	price, ok = cache.Get("MSFT")
	require.True(t, ok)
	assert.InDelta(t, 300.0, price, 1e-9)
}

func TestPollJob_SymbolSourceErrorFailsCycle(t *testing.T) {
	job := NewPollJob(&fakeFetcher{}, &fakeSymbols{err: errors.New("database closed")},
		NewCache(zerolog.Nop()), nil, zerolog.Nop())

	assert.Error(t, job.Run())
}

func TestPollJob_Name(t *testing.T) {
	job := NewPollJob(&fakeFetcher{}, &fakeSymbols{}, NewCache(zerolog.Nop()), nil, zerolog.Nop())
	assert.Equal(t, "quote_poll", job.Name())
}
