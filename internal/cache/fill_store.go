package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/market"
)

const fillKeyPattern = "fills:%s:%s" // symbol, horizon

// FillRecord is the persisted fill state for one gap.
type FillRecord struct {
	FilledAt time.Time `json:"filled_at"`
}

// FillStore persists gap fill state so fills survive restarts. Fill state is
// derived working data, so Redis outages degrade to an in-memory mirror and
// fills are re-derived from the live candle window.
type FillStore struct {
	svc *CacheService // nil when Redis is disabled
	ttl time.Duration

	mu  sync.RWMutex
	mem map[string]map[string]FillRecord
}

// NewFillStore creates a fill store. svc may be nil for memory-only mode.
func NewFillStore(svc *CacheService, ttl time.Duration) *FillStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &FillStore{
		svc: svc,
		ttl: ttl,
		mem: make(map[string]map[string]FillRecord),
	}
}

// GapKey identifies a gap across cycles by origin and bounds.
func GapKey(g analysis.Gap) string {
	return fmt.Sprintf("%s|%d|%.5f|%.5f", g.Direction, g.CreatedAt.UnixMilli(), g.Upper, g.Lower)
}

func fillKey(symbol string, horizon market.Horizon) string {
	return fmt.Sprintf(fillKeyPattern, symbol, horizon)
}

// Load returns the persisted fill records for a symbol/horizon. Redis misses
// and outages fall back to the in-memory mirror.
func (fs *FillStore) Load(ctx context.Context, symbol string, horizon market.Horizon) map[string]FillRecord {
	if fs.svc != nil {
		var records map[string]FillRecord
		if err := fs.svc.GetJSON(ctx, fillKey(symbol, horizon), &records); err == nil {
			return records
		}
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()
	mirror := fs.mem[fillKey(symbol, horizon)]
	out := make(map[string]FillRecord, len(mirror))
	for k, v := range mirror {
		out[k] = v
	}
	return out
}

// Save persists fill state for all filled gaps in the slice, replacing the
// previous record set. The in-memory mirror is always updated.
func (fs *FillStore) Save(ctx context.Context, symbol string, horizon market.Horizon, gaps []analysis.Gap) error {
	records := make(map[string]FillRecord)
	for _, g := range gaps {
		if g.Filled && g.FilledAt != nil {
			records[GapKey(g)] = FillRecord{FilledAt: *g.FilledAt}
		}
	}

	key := fillKey(symbol, horizon)

	fs.mu.Lock()
	fs.mem[key] = records
	fs.mu.Unlock()

	if fs.svc == nil {
		return nil
	}
	return fs.svc.SetJSON(ctx, key, records, fs.ttl)
}

// Apply restores persisted fill state onto freshly detected gaps. Fills are
// monotonic, so a persisted record always wins over an unfilled detection.
func (fs *FillStore) Apply(gaps []analysis.Gap, records map[string]FillRecord) []analysis.Gap {
	if len(records) == 0 {
		return gaps
	}
	out := make([]analysis.Gap, len(gaps))
	copy(out, gaps)

	for i := range out {
		if out[i].Filled {
			continue
		}
		if rec, ok := records[GapKey(out[i])]; ok {
			out[i].Filled = true
			at := rec.FilledAt
			out[i].FilledAt = &at
		}
	}
	return out
}
