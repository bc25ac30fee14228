// Package feed defines the candle source contract and a deterministic replay
// implementation for development and tests.
package feed

import (
	"context"

	"smc-signal-engine/internal/market"
)

// CandleSource supplies closed candles for a symbol and horizon, newest last.
// Implementations return at most count candles; fewer is not an error, the
// detectors degrade on short series.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, horizon market.Horizon, count int) ([]market.Candle, error)

	// Listing returns the symbol names the feed actually serves, used by
	// the resolver to map logical names onto feed spellings.
	Listing(ctx context.Context) ([]string, error)
}
