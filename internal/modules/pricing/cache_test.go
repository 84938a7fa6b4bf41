package pricing

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradebook/internal/domain"
)

func tick(symbol string, price float64, observedAt time.Time) domain.PriceTick {
	return domain.PriceTick{Symbol: symbol, Price: price, ObservedAt: observedAt}
}

func TestCache_SetAndGet(t *testing.T) {
	cache := NewCache(zerolog.Nop())
	now := time.Now().UTC()

	assert.True(t, cache.Set(tick("AAPL", 150, now)))

	price, ok := cache.Get("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 150.0, price, 1e-9)

	_, ok = cache.Get("MSFT")
	assert.False(t, ok)
}

func TestCache_DropsOutOfOrderTick(t *testing.T) {
	cache := NewCache(zerolog.Nop())
	now := time.Now().UTC()

	assert.True(t, cache.Set(tick("AAPL", 150, now)))

	// A tick observed earlier must not clobber the cached one
	assert.False(t, cache.Set(tick("AAPL", 140, now.Add(-time.Second))))

	price, _ := cache.Get("AAPL")
	assert.InDelta(t, 150.0, price, 1e-9)

	// Equal timestamps win so re-delivery stays idempotent
	assert.True(t, cache.Set(tick("AAPL", 151, now)))
	price, _ = cache.Get("AAPL")
	assert.InDelta(t, 151.0, price, 1e-9)
}

func TestCache_EmptySymbolIgnored(t *testing.T) {
	cache := NewCache(zerolog.Nop())
	assert.False(t, cache.Set(tick("", 150, time.Now())))
	assert.Empty(t, cache.Symbols())
}

func TestCache_ZeroObservedAtDefaultsToNow(t *testing.T) {
	cache := NewCache(zerolog.Nop())

	require.True(t, cache.Set(domain.PriceTick{Symbol: "AAPL", Price: 150}))

	cached, ok := cache.GetTick("AAPL")
	require.True(t, ok)
	assert.False(t, cached.ObservedAt.IsZero())
}

func TestCache_OnUpdateInvokedForAppliedTicksOnly(t *testing.T) {
	cache := NewCache(zerolog.Nop())
	now := time.Now().UTC()

	var calls []float64
	cache.OnUpdate(func(symbol string, price float64) {
		calls = append(calls, price)
	})

	cache.Set(tick("AAPL", 150, now))
	cache.Set(tick("AAPL", 140, now.Add(-time.Second))) // dropped
	cache.Set(tick("AAPL", 160, now.Add(time.Second)))

	assert.Equal(t, []float64{150, 160}, calls)
}

func TestCache_ConcurrentWritersDeliverCallbacksInApplyOrder(t *testing.T) {
	cache := NewCache(zerolog.Nop())
	base := time.Now().UTC()

	var mu sync.Mutex
	var last float64
	cache.OnUpdate(func(symbol string, price float64) {
		mu.Lock()
		last = price
		mu.Unlock()
	})

	// Two writers racing on one symbol, like the poller and the stream
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				n := i*2 + offset
				cache.Set(tick("AAPL", float64(n), base.Add(time.Duration(n)*time.Millisecond)))
			}
		}(w)
	}
	wg.Wait()

	// The final callback must match the cache's settled value
	price, ok := cache.Get("AAPL")
	require.True(t, ok)
	mu.Lock()
	defer mu.Unlock()
	assert.InDelta(t, price, last, 1e-9)
}

func TestCache_SnapshotRoundTrip(t *testing.T) {
	cache := NewCache(zerolog.Nop())
	now := time.Now().UTC().Truncate(time.Second)

	cache.Set(tick("AAPL", 150, now))
	cache.Set(tick("MSFT", 300, now))

	data, err := cache.Snapshot()
	require.NoError(t, err)

	restored := NewCache(zerolog.Nop())
	require.NoError(t, restored.Restore(data))

	price, ok := restored.Get("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 150.0, price, 1e-9)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, restored.Symbols())
}

func TestCache_RestoreKeepsFresherLiveEntries(t *testing.T) {
	old := NewCache(zerolog.Nop())
	past := time.Now().UTC().Add(-time.Hour)
	old.Set(tick("AAPL", 100, past))

	data, err := old.Snapshot()
	require.NoError(t, err)

	live := NewCache(zerolog.Nop())
	now := time.Now().UTC()
	live.Set(tick("AAPL", 150, now))

	require.NoError(t, live.Restore(data))

	price, _ := live.Get("AAPL")
	assert.InDelta(t, 150.0, price, 1e-9)
}

func TestCache_RestoreRejectsGarbage(t *testing.T) {
	cache := NewCache(zerolog.Nop())
	assert.Error(t, cache.Restore([]byte("not msgpack")))
}
