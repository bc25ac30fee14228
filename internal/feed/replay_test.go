package feed

import (
	"context"
	"testing"
	"time"

	"smc-signal-engine/internal/market"
)

func series(n int) []market.Candle {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	for i := range out {
		price := 100 + float64(i)
		out[i] = market.Candle{
			Open:      price,
			High:      price + 2,
			Low:       price - 2,
			Close:     price + 1,
			Volume:    10,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestReplayCandlesWindow(t *testing.T) {
	rs := NewReplaySource()
	if err := rs.Load("US30", market.H1, series(10)); err != nil {
		t.Fatalf("load: %v", err)
	}

	candles, err := rs.Candles(context.Background(), "US30", market.H1, 4)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(candles) != 4 {
		t.Fatalf("got %d candles, want 4", len(candles))
	}
	if candles[3].Open != 109 {
		t.Errorf("last candle open = %f, want newest (109)", candles[3].Open)
	}
}

func TestReplayRewindAndAdvance(t *testing.T) {
	rs := NewReplaySource()
	if err := rs.Load("US30", market.H1, series(10)); err != nil {
		t.Fatalf("load: %v", err)
	}

	rs.Rewind("US30", market.H1, 5)
	candles, err := rs.Candles(context.Background(), "US30", market.H1, 100)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(candles) != 5 {
		t.Fatalf("got %d candles after rewind, want 5", len(candles))
	}

	rs.Advance("US30", market.H1, 2)
	candles, _ = rs.Candles(context.Background(), "US30", market.H1, 100)
	if len(candles) != 7 {
		t.Fatalf("got %d candles after advance, want 7", len(candles))
	}

	// Advancing past the end clamps to the full series.
	rs.Advance("US30", market.H1, 100)
	candles, _ = rs.Candles(context.Background(), "US30", market.H1, 100)
	if len(candles) != 10 {
		t.Fatalf("got %d candles, want full series", len(candles))
	}
}

func TestReplayRejectsInvalidSeries(t *testing.T) {
	rs := NewReplaySource()
	bad := series(3)
	bad[1].Timestamp = bad[0].Timestamp // duplicate timestamp

	if err := rs.Load("US30", market.H1, bad); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestReplayUnknownSeries(t *testing.T) {
	rs := NewReplaySource()
	if _, err := rs.Candles(context.Background(), "US30", market.H1, 10); err == nil {
		t.Fatal("expected error for missing series")
	}
}

func TestReplayListing(t *testing.T) {
	rs := NewReplaySource()
	if err := rs.Load("US30", market.H1, series(5)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := rs.Load("US30", market.H4, series(5)); err != nil {
		t.Fatalf("load: %v", err)
	}

	listing, err := rs.Listing(context.Background())
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(listing) != 1 || listing[0] != "US30" {
		t.Fatalf("listing = %v, want [US30]", listing)
	}
}
