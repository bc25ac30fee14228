package cache

import (
	"context"
	"testing"
	"time"

	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/market"
)

func TestFillStoreMemoryRoundTrip(t *testing.T) {
	fs := NewFillStore(nil, time.Hour)
	ctx := context.Background()

	created := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	filledAt := created.Add(3 * time.Hour)
	gaps := []analysis.Gap{
		{Direction: market.Bullish, Upper: 110, Lower: 105, CreatedAt: created, Filled: true, FilledAt: &filledAt},
		{Direction: market.Bearish, Upper: 120, Lower: 118, CreatedAt: created},
	}

	if err := fs.Save(ctx, "US30", market.H1, gaps); err != nil {
		t.Fatalf("save: %v", err)
	}

	records := fs.Load(ctx, "US30", market.H1)
	if len(records) != 1 {
		t.Fatalf("expected 1 persisted fill, got %d", len(records))
	}
	if rec, ok := records[GapKey(gaps[0])]; !ok || !rec.FilledAt.Equal(filledAt) {
		t.Fatalf("record = %+v, want fill at %s", rec, filledAt)
	}
}

func TestFillStoreApplyRestoresFills(t *testing.T) {
	fs := NewFillStore(nil, time.Hour)

	created := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	filledAt := created.Add(time.Hour)
	persisted := analysis.Gap{Direction: market.Bullish, Upper: 110, Lower: 105, CreatedAt: created}
	records := map[string]FillRecord{
		GapKey(persisted): {FilledAt: filledAt},
	}

	// Freshly detected gaps from a candle window that no longer shows the fill.
	fresh := []analysis.Gap{
		persisted,
		{Direction: market.Bearish, Upper: 120, Lower: 118, CreatedAt: created},
	}

	out := fs.Apply(fresh, records)
	if !out[0].Filled || out[0].FilledAt == nil || !out[0].FilledAt.Equal(filledAt) {
		t.Fatalf("persisted fill not restored: %+v", out[0])
	}
	if out[1].Filled {
		t.Error("unrelated gap marked filled")
	}
	if fresh[0].Filled {
		t.Error("input slice mutated")
	}
}

func TestGapKeyDistinguishesGaps(t *testing.T) {
	created := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	a := analysis.Gap{Direction: market.Bullish, Upper: 110, Lower: 105, CreatedAt: created}
	b := a
	b.Direction = market.Bearish
	c := a
	c.CreatedAt = created.Add(time.Minute)

	if GapKey(a) == GapKey(b) || GapKey(a) == GapKey(c) {
		t.Fatal("distinct gaps share a key")
	}
	if GapKey(a) != GapKey(a) {
		t.Fatal("key not stable")
	}
}
