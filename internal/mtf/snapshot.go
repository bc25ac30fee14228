package mtf

import (
	"sync"
	"time"

	"smc-signal-engine/internal/market"
)

type snapshotEntry struct {
	findings  Findings
	fetchedAt time.Time
}

// SnapshotCache holds the most recent detector findings per symbol and
// horizon. Entries older than the staleness bound are treated as absent, so
// a horizon whose refresh failed degrades to unavailable instead of feeding
// the coordinator stale structure.
type SnapshotCache struct {
	mu           sync.RWMutex
	entries      map[string]map[market.Horizon]snapshotEntry
	maxStaleness time.Duration
}

// NewSnapshotCache creates a snapshot cache with the given staleness bound.
func NewSnapshotCache(maxStaleness time.Duration) *SnapshotCache {
	if maxStaleness <= 0 {
		maxStaleness = time.Hour
	}
	return &SnapshotCache{
		entries:      make(map[string]map[market.Horizon]snapshotEntry),
		maxStaleness: maxStaleness,
	}
}

// Put stores findings for a symbol/horizon, stamped at the given time.
func (sc *SnapshotCache) Put(symbol string, findings Findings, at time.Time) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	byHorizon, ok := sc.entries[symbol]
	if !ok {
		byHorizon = make(map[market.Horizon]snapshotEntry)
		sc.entries[symbol] = byHorizon
	}
	byHorizon[findings.Horizon] = snapshotEntry{findings: findings, fetchedAt: at}
}

// Get returns the cached findings for a symbol/horizon. A missing or stale
// entry reports false.
func (sc *SnapshotCache) Get(symbol string, horizon market.Horizon, now time.Time) (Findings, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	entry, ok := sc.entries[symbol][horizon]
	if !ok {
		return Findings{}, false
	}
	if now.Sub(entry.fetchedAt) > sc.maxStaleness {
		return Findings{}, false
	}
	return entry.findings, true
}

// NeedsRefresh reports whether the horizon's cached entry is missing or older
// than its refresh cadence.
func (sc *SnapshotCache) NeedsRefresh(symbol string, horizon market.Horizon, now time.Time) bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	entry, ok := sc.entries[symbol][horizon]
	if !ok {
		return true
	}
	return now.Sub(entry.fetchedAt) >= horizon.RefreshCadence()
}

// Snapshot returns a consistent view of all fresh horizons for a symbol,
// taken under a single lock so concurrent refreshes cannot tear it.
func (sc *SnapshotCache) Snapshot(symbol string, now time.Time) map[market.Horizon]Findings {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	out := make(map[market.Horizon]Findings, len(market.Horizons))
	for horizon, entry := range sc.entries[symbol] {
		if now.Sub(entry.fetchedAt) > sc.maxStaleness {
			continue
		}
		out[horizon] = entry.findings
	}
	return out
}

// Symbols returns the symbols with at least one cached horizon.
func (sc *SnapshotCache) Symbols() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	out := make([]string, 0, len(sc.entries))
	for symbol := range sc.entries {
		out = append(out, symbol)
	}
	return out
}
