package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"smc-signal-engine/internal/market"
)

type seriesKey struct {
	symbol  string
	horizon market.Horizon
}

// ReplaySource serves candles from preloaded series with an advancing cursor,
// so a full evaluation run is reproducible candle for candle.
type ReplaySource struct {
	mu     sync.RWMutex
	series map[seriesKey][]market.Candle
	cursor map[seriesKey]int
}

// NewReplaySource creates an empty replay source.
func NewReplaySource() *ReplaySource {
	return &ReplaySource{
		series: make(map[seriesKey][]market.Candle),
		cursor: make(map[seriesKey]int),
	}
}

// Load registers a candle series for a symbol/horizon. The series must pass
// validation; the cursor starts at the full series length so a source loaded
// without stepping behaves like a static snapshot.
func (rs *ReplaySource) Load(symbol string, horizon market.Horizon, candles []market.Candle) error {
	if err := market.ValidateSeries(candles); err != nil {
		return fmt.Errorf("series %s %s: %w", symbol, horizon, err)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	key := seriesKey{symbol: symbol, horizon: horizon}
	rs.series[key] = candles
	rs.cursor[key] = len(candles)
	return nil
}

// LoadFile loads a JSON candle series from disk.
func (rs *ReplaySource) LoadFile(symbol string, horizon market.Horizon, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading candle file: %w", err)
	}
	var candles []market.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return fmt.Errorf("parsing candle file %s: %w", path, err)
	}
	return rs.Load(symbol, horizon, candles)
}

// Rewind resets a series cursor to the given position for stepped replays.
func (rs *ReplaySource) Rewind(symbol string, horizon market.Horizon, to int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	key := seriesKey{symbol: symbol, horizon: horizon}
	if to < 0 {
		to = 0
	}
	if max := len(rs.series[key]); to > max {
		to = max
	}
	rs.cursor[key] = to
}

// Advance moves a series cursor forward by n candles.
func (rs *ReplaySource) Advance(symbol string, horizon market.Horizon, n int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	key := seriesKey{symbol: symbol, horizon: horizon}
	cursor := rs.cursor[key] + n
	if max := len(rs.series[key]); cursor > max {
		cursor = max
	}
	rs.cursor[key] = cursor
}

// Candles returns up to count candles ending at the series cursor.
func (rs *ReplaySource) Candles(_ context.Context, symbol string, horizon market.Horizon, count int) ([]market.Candle, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	key := seriesKey{symbol: symbol, horizon: horizon}
	series, ok := rs.series[key]
	if !ok {
		return nil, fmt.Errorf("no series loaded for %s %s", symbol, horizon)
	}

	end := rs.cursor[key]
	start := end - count
	if start < 0 {
		start = 0
	}

	out := make([]market.Candle, end-start)
	copy(out, series[start:end])
	return out, nil
}

// Listing returns the distinct symbols with loaded series.
func (rs *ReplaySource) Listing(_ context.Context) ([]string, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for key := range rs.series {
		if !seen[key.symbol] {
			seen[key.symbol] = true
			out = append(out, key.symbol)
		}
	}
	return out, nil
}
