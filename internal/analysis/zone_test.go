package analysis

import (
	"testing"
	"time"

	"smc-signal-engine/internal/market"

	"github.com/rs/zerolog"
)

// Opposing candle at index 0, then a three-candle impulsive run upward.
func bullishRunFixture() []market.Candle {
	return []market.Candle{
		candle(0, 105, 106, 102, 103), // bearish anchor
		candle(1, 104, 113, 103, 112),
		candle(2, 112, 121, 111, 120),
		candle(3, 120, 129, 119, 128),
	}
}

func TestZoneDetectBullishRun(t *testing.T) {
	zd := NewZoneDetector(3, 20, zerolog.Nop())
	zones := zd.Detect(bullishRunFixture(), market.H1)

	if len(zones) != 1 {
		t.Fatalf("expected 1 zone, got %d", len(zones))
	}
	z := zones[0]
	if z.Direction != market.Bullish {
		t.Errorf("direction = %s, want BULLISH", z.Direction)
	}
	if z.Upper != 106 || z.Lower != 102 {
		t.Errorf("bounds = [%f, %f], want anchor candle [102, 106]", z.Lower, z.Upper)
	}
	if z.EntryLevel != 104 {
		t.Errorf("entry level = %f, want midpoint 104", z.EntryLevel)
	}
	if !z.Valid || z.Kind != ZoneOrigin {
		t.Errorf("zone should be a valid origin, got valid=%v kind=%s", z.Valid, z.Kind)
	}
}

func TestZoneDetectLongRunYieldsOneZone(t *testing.T) {
	// A run longer than the configured length is still one impulsive run and
	// must anchor exactly one zone at the opposing candle before it started.
	candles := append(bullishRunFixture(), candle(4, 128, 137, 127, 136))

	zd := NewZoneDetector(3, 20, zerolog.Nop())
	zones := zd.Detect(candles, market.H1)

	if len(zones) != 1 {
		t.Fatalf("four-candle run produced %d zones, want 1", len(zones))
	}
	z := zones[0]
	if z.Upper != 106 || z.Lower != 102 {
		t.Errorf("bounds = [%f, %f], want anchor candle [102, 106]", z.Lower, z.Upper)
	}
	// The cumulative move spans the whole run, not just the first window.
	if z.Strength != 8 {
		t.Errorf("strength = %f, want full-run move 32 over range 4", z.Strength)
	}
}

func TestZoneDetectRespectsMinMove(t *testing.T) {
	zd := NewZoneDetector(3, 50, zerolog.Nop())
	zones := zd.Detect(bullishRunFixture(), market.H1)
	if len(zones) != 0 {
		t.Fatalf("run of 24 points cleared a 50 point minimum, got %d zones", len(zones))
	}
}

func TestZoneDetectBrokenRunNoZone(t *testing.T) {
	candles := bullishRunFixture()
	candles[2] = candle(2, 112, 113, 108, 109) // bearish candle breaks the run

	zd := NewZoneDetector(3, 20, zerolog.Nop())
	if zones := zd.Detect(candles, market.H1); len(zones) != 0 {
		t.Fatalf("expected no zones for a broken run, got %d", len(zones))
	}
}

func TestInvalidateFlipsOnce(t *testing.T) {
	zd := NewZoneDetector(3, 20, zerolog.Nop())
	zones := zd.Detect(bullishRunFixture(), market.H1)

	// Close below the zone's lower bound invalidates it.
	later := []market.Candle{candle(5, 104, 105, 99, 100)}
	updated, flips := zd.Invalidate(zones, later)

	if len(flips) != 1 {
		t.Fatalf("expected 1 flip, got %d", len(flips))
	}
	flip := flips[0]
	if flip.Direction != market.Bearish || flip.Kind != ZoneFlipped {
		t.Errorf("flip = %s/%s, want BEARISH/FLIPPED", flip.Direction, flip.Kind)
	}
	if flip.Upper != 106 || flip.Lower != 102 {
		t.Errorf("flip bounds = [%f, %f], want original [102, 106]", flip.Lower, flip.Upper)
	}
	if !flip.CreatedAt.Equal(later[0].Timestamp) {
		t.Errorf("flip created at %s, want invalidation candle time", flip.CreatedAt)
	}

	var origin *Zone
	for i := range updated {
		if updated[i].Kind == ZoneOrigin {
			origin = &updated[i]
		}
	}
	if origin == nil || origin.Valid {
		t.Fatal("origin zone should remain in the list, invalidated")
	}

	// The transition is one-time: a second pass produces no further flips.
	_, again := zd.Invalidate(updated, later)
	if len(again) != 0 {
		t.Fatalf("second invalidation pass flipped again: %d flips", len(again))
	}
}

func TestInvalidateIgnoresWickThrough(t *testing.T) {
	zd := NewZoneDetector(3, 20, zerolog.Nop())
	zones := zd.Detect(bullishRunFixture(), market.H1)

	// Wick below the lower bound but close back inside: still valid.
	later := []market.Candle{candle(5, 104, 105, 100, 103)}
	updated, flips := zd.Invalidate(zones, later)

	if len(flips) != 0 {
		t.Fatalf("wick-through flipped the zone: %d flips", len(flips))
	}
	if !updated[0].Valid {
		t.Error("zone invalidated without a close beyond its bound")
	}
}

func TestRetests(t *testing.T) {
	zd := NewZoneDetector(3, 20, zerolog.Nop())
	zones := zd.Detect(bullishRunFixture(), market.H1)

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	retests := zd.Retests(zones, 104.5, at)
	if len(retests) != 1 {
		t.Fatalf("expected 1 retest inside the zone, got %d", len(retests))
	}

	if out := zd.Retests(zones, 120, at); len(out) != 0 {
		t.Fatalf("price outside the zone reported %d retests", len(out))
	}
}

func TestNearestZoneSkipsInvalid(t *testing.T) {
	zones := []Zone{
		{Direction: market.Bullish, EntryLevel: 100, Valid: false},
		{Direction: market.Bullish, EntryLevel: 90, Valid: true},
	}

	got := NearestZone(zones, 101, market.Bullish)
	if got == nil || got.EntryLevel != 90 {
		t.Fatalf("nearest = %+v, want the valid zone at 90", got)
	}
}
