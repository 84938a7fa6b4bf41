package pricing

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradebook/internal/domain"
)

// QuoteFetcher is the synchronous snapshot side of the quote source adapter
type QuoteFetcher interface {
	Quote(ctx context.Context, symbol string) (float64, error)
}

// SymbolSource yields the symbols the poller should refresh
type SymbolSource interface {
	AllSymbols() ([]string, error)
}

// PollJob refreshes the price cache for every watched symbol on a fixed
// schedule. A failed fetch leaves that symbol's cached value untouched and
// never fails the cycle.
type PollJob struct {
	fetcher      QuoteFetcher
	symbols      SymbolSource
	cache        *Cache
	indexSymbols []string
	timeout      time.Duration
	log          zerolog.Logger
}

// NewPollJob creates the quote polling job. indexSymbols are refreshed on
// every cycle in addition to the watchlist-derived set.
func NewPollJob(fetcher QuoteFetcher, symbols SymbolSource, cache *Cache, indexSymbols []string, log zerolog.Logger) *PollJob {
	return &PollJob{
		fetcher:      fetcher,
		symbols:      symbols,
		cache:        cache,
		indexSymbols: indexSymbols,
		timeout:      10 * time.Second,
		log:          log.With().Str("job", "quote_poll").Logger(),
	}
}

// Name implements scheduler.Job
func (j *PollJob) Name() string {
	return "quote_poll"
}

// Run implements scheduler.Job: one fetch per symbol, failures contained
func (j *PollJob) Run() error {
	watched, err := j.symbols.AllSymbols()
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(watched)+len(j.indexSymbols))
	symbols := make([]string, 0, len(watched)+len(j.indexSymbols))
	for _, s := range append(watched, j.indexSymbols...) {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		symbols = append(symbols, s)
	}

	var updated, failed int
	for _, symbol := range symbols {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		price, err := j.fetcher.Quote(ctx, symbol)
		cancel()
		if err != nil {
			failed++
			j.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote fetch failed, keeping cached value")
			continue
		}

		j.cache.Set(domain.PriceTick{
			Symbol:     symbol,
			Price:      price,
			ObservedAt: time.Now().UTC(),
		})
		updated++
	}

	j.log.Debug().
		Int("updated", updated).
		Int("failed", failed).
		Msg("Quote poll cycle completed")

	return nil
}
