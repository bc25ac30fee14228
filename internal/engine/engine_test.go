package engine

import (
	"context"
	"testing"
	"time"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/cache"
	"smc-signal-engine/internal/events"
	"smc-signal-engine/internal/feed"
	"smc-signal-engine/internal/hours"
	"smc-signal-engine/internal/market"
	"smc-signal-engine/internal/symbols"

	"github.com/rs/zerolog"
)

var engineBase = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// Zigzag walk trending upward, long enough for every detector.
func trendingSeries(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		drift := float64(i) * 0.5
		var swing float64
		switch i % 4 {
		case 0:
			swing = 0
		case 1:
			swing = 3
		case 2:
			swing = 5
		case 3:
			swing = 2
		}
		open := 100 + drift + swing
		close := open + 1
		out[i] = market.Candle{
			Open:      open,
			High:      close + 2,
			Low:       open - 2,
			Close:     close,
			Volume:    50,
			Timestamp: engineBase.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		EngineConfig: config.EngineConfig{
			ScanInterval: 60,
			WorkerCount:  2,
			CandleCount:  60,
			Symbols:      []string{"US30"},
			MaxStaleness: 3600,
		},
		DetectorConfig: config.DetectorConfig{
			GapRetentionHours: 24,
			ZoneRunLength:     3,
			ZoneMinMove:       1,
			SwingWindow:       2,
			LiquidityLookback: 50,
			SweepTolerance:    2,
			TouchTolerance:    1,
			SweepLogCap:       50,
		},
		SignalConfig: config.SignalConfig{
			MinRewardRisk:          2.0,
			StopBufferFraction:     0.1,
			FallbackRewardMultiple: 2.5,
			BiasTierConfidence:     [4]float64{0.90, 0.75, 0.55, 0.0},
			ContributorBonus:       0.05,
			SweepBonus:             0.05,
		},
	}
}

func testEngine(t *testing.T, cfg *config.Config, specs map[string]config.SessionSpec) (*Engine, *feed.ReplaySource) {
	t.Helper()

	source := feed.NewReplaySource()
	series := trendingSeries(60)
	for _, h := range market.Horizons {
		if err := source.Load("US30", h, series); err != nil {
			t.Fatalf("load series: %v", err)
		}
	}

	calendar, err := hours.NewCalendar(specs)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	resolver := symbols.NewResolver(config.SymbolConfig{})
	fills := cache.NewFillStore(nil, time.Hour)
	bus := events.NewEventBus()

	return New(cfg, source, calendar, resolver, fills, nil, bus, zerolog.Nop()), source
}

func TestEvaluateSymbolProducesAssessment(t *testing.T) {
	eng, _ := testEngine(t, testConfig(), nil)

	now := engineBase.Add(61 * time.Hour)
	eng.evaluateSymbol(context.Background(), "US30", []string{"US30"}, now)

	assessment, ok := eng.Assessment("US30")
	if !ok {
		t.Fatal("no assessment recorded after evaluation")
	}
	if assessment.Symbol != "US30" {
		t.Errorf("assessment symbol = %s", assessment.Symbol)
	}
	if len(assessment.ByHorizon) != len(market.Horizons) {
		t.Errorf("cached horizons = %d, want %d", len(assessment.ByHorizon), len(market.Horizons))
	}
}

func TestEvaluateSymbolSkipsClosedMarket(t *testing.T) {
	specs := map[string]config.SessionSpec{
		"US30": {Open: "09:00", Close: "17:00", TradingDays: []int{0, 1, 2, 3, 4}},
	}
	eng, _ := testEngine(t, testConfig(), specs)

	// Saturday, well outside the session.
	closedAt := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	eng.evaluateSymbol(context.Background(), "US30", []string{"US30"}, closedAt)

	if _, ok := eng.Assessment("US30"); ok {
		t.Fatal("assessment produced while the market was closed")
	}
}

func TestEvaluateSymbolSkipsUnresolvable(t *testing.T) {
	eng, _ := testEngine(t, testConfig(), nil)

	now := engineBase.Add(61 * time.Hour)
	eng.evaluateSymbol(context.Background(), "US30", []string{"EURUSD"}, now)

	if _, ok := eng.Assessment("US30"); ok {
		t.Fatal("assessment produced for an unresolvable symbol")
	}
}

func TestEvaluateAllUpdatesStatus(t *testing.T) {
	eng, _ := testEngine(t, testConfig(), nil)

	eng.evaluateAll(context.Background())

	status := eng.GetStatus()
	if status.LastCycle.IsZero() {
		t.Error("last cycle not stamped")
	}
	if len(status.Symbols) != 1 {
		t.Errorf("status symbols = %v", status.Symbols)
	}
}

func TestRefreshHonorsCadence(t *testing.T) {
	eng, _ := testEngine(t, testConfig(), nil)

	now := engineBase.Add(61 * time.Hour)
	eng.evaluateSymbol(context.Background(), "US30", []string{"US30"}, now)

	first, ok := eng.Assessment("US30")
	if !ok {
		t.Fatal("no assessment after first evaluation")
	}

	// Within every horizon's cadence nothing refreshes; findings persist.
	soon := now.Add(30 * time.Second)
	eng.evaluateSymbol(context.Background(), "US30", []string{"US30"}, soon)

	second, _ := eng.Assessment("US30")
	for _, h := range market.Horizons {
		if !second.ByHorizon[h].At.Equal(first.ByHorizon[h].At) {
			t.Errorf("horizon %s refreshed within its cadence", h)
		}
	}
}
