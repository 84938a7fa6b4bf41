// Package pricing holds the in-memory price cache, the position reconciler
// and the quote polling job.
package pricing

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/tradebook/internal/domain"
)

// UpdateFunc is invoked after a tick has been applied to the cache
type UpdateFunc func(symbol string, price float64)

// entry is the cached last-known price for one symbol
type entry struct {
	Price      float64   `msgpack:"price"`
	ObservedAt time.Time `msgpack:"observed_at"`
}

// Cache is the process-wide mapping of symbol to last known price. It is
// best-effort and eventually consistent: it never rejects a value for being
// stale by wall-clock age, but it does refuse to overwrite a cached tick
// with one observed earlier, so a late-arriving old tick cannot clobber
// fresher data. Updated by both the polling and streaming paths.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]entry
	onUpdate UpdateFunc
	log      zerolog.Logger
}

// NewCache creates an empty price cache
func NewCache(log zerolog.Logger) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		log:     log.With().Str("component", "price_cache").Logger(),
	}
}

// OnUpdate registers the callback invoked for every applied tick.
// Must be called before the cache starts receiving updates. The callback
// runs while the cache lock is held, so callbacks observe ticks in the
// order they were applied; it must not call back into the cache.
func (c *Cache) OnUpdate(fn UpdateFunc) {
	c.onUpdate = fn
}

// Set applies a price tick. Returns false when the tick was dropped for
// being older than the cached one. Ties win so re-delivery of the latest
// tick stays idempotent.
func (c *Cache) Set(tick domain.PriceTick) bool {
	if tick.Symbol == "" {
		return false
	}
	if tick.ObservedAt.IsZero() {
		tick.ObservedAt = time.Now().UTC()
	}

	c.mu.Lock()
	cached, exists := c.entries[tick.Symbol]
	if exists && tick.ObservedAt.Before(cached.ObservedAt) {
		c.mu.Unlock()
		c.log.Debug().
			Str("symbol", tick.Symbol).
			Time("observed_at", tick.ObservedAt).
			Time("cached_at", cached.ObservedAt).
			Msg("Dropping out-of-order tick")
		return false
	}
	c.entries[tick.Symbol] = entry{Price: tick.Price, ObservedAt: tick.ObservedAt}

	// Invoked under the lock: concurrent writers (poller and stream) must
	// not deliver callbacks out of apply order, or positions could settle
	// on an older ltp than the cache holds.
	if c.onUpdate != nil {
		c.onUpdate(tick.Symbol, tick.Price)
	}
	c.mu.Unlock()
	return true
}

// Get returns the last known price for a symbol
func (c *Cache) Get(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[symbol]
	return e.Price, ok
}

// GetTick returns the full cached tick for a symbol
func (c *Cache) GetTick(symbol string) (domain.PriceTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[symbol]
	if !ok {
		return domain.PriceTick{}, false
	}
	return domain.PriceTick{Symbol: symbol, Price: e.Price, ObservedAt: e.ObservedAt}, true
}

// Symbols returns all symbols with a cached price
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	symbols := make([]string, 0, len(c.entries))
	for s := range c.entries {
		symbols = append(symbols, s)
	}
	return symbols
}

// Snapshot serializes the cache contents to msgpack for persistence
func (c *Cache) Snapshot() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return msgpack.Marshal(c.entries)
}

// Restore loads a msgpack snapshot, keeping any fresher live entries
func (c *Cache) Restore(data []byte) error {
	var restored map[string]entry
	if err := msgpack.Unmarshal(data, &restored); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for symbol, e := range restored {
		if cached, exists := c.entries[symbol]; exists && e.ObservedAt.Before(cached.ObservedAt) {
			continue
		}
		c.entries[symbol] = e
	}

	c.log.Info().Int("symbols", len(restored)).Msg("Price cache restored from snapshot")
	return nil
}
