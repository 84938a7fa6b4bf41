package pricing

import (
	"github.com/rs/zerolog"
)

// PositionRepricer updates the derived fields of every position on a symbol
type PositionRepricer interface {
	RepricePositions(symbol string, price float64) (int64, error)
}

// Reconciler folds price cache updates into position P&L. It only rewrites
// the derived fields (ltp, pnl, change_pct); cash and holdings are never
// read or written. Safe to run concurrently with trade execution: the
// reprice is a single SQL statement against derived columns only.
type Reconciler struct {
	repo PositionRepricer
	log  zerolog.Logger
}

// NewReconciler creates a new position reconciler
func NewReconciler(repo PositionRepricer, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		repo: repo,
		log:  log.With().Str("service", "reconciler").Logger(),
	}
}

// Apply recomputes P&L for all positions on the symbol at the new price.
// Errors are contained here: a failed reprice only delays P&L freshness
// until the next tick, it must never propagate into the quote paths.
func (r *Reconciler) Apply(symbol string, price float64) {
	affected, err := r.repo.RepricePositions(symbol, price)
	if err != nil {
		r.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to reprice positions")
		return
	}

	if affected > 0 {
		r.log.Debug().
			Str("symbol", symbol).
			Float64("price", price).
			Int64("positions", affected).
			Msg("Positions repriced")
	}
}
