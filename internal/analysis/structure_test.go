package analysis

import (
	"testing"

	"smc-signal-engine/internal/market"
)

// Zigzag making a higher high and a higher low: swing high 106, swing low 96,
// swing high 109, swing low 100.
func uptrendFixture() []market.Candle {
	return []market.Candle{
		candle(0, 97, 100, 95, 99),
		candle(1, 99, 102, 97, 101),
		candle(2, 101, 106, 100, 104),
		candle(3, 102, 103, 99, 100),
		candle(4, 99, 101, 96, 100),
		candle(5, 100, 104, 98, 103),
		candle(6, 104, 109, 102, 107),
		candle(7, 104, 105, 101, 103),
		candle(8, 102, 103, 100, 102),
		candle(9, 103, 107, 103, 106),
		candle(10, 105, 108, 104, 106),
	}
}

func TestAnalyzeUptrend(t *testing.T) {
	sa := NewStructureAnalyzer(2)
	st := sa.Analyze(uptrendFixture())

	if st.Trend != Uptrend {
		t.Fatalf("trend = %s, want UPTREND", st.Trend)
	}
	if len(st.Events) != 0 {
		t.Errorf("expected no events with price inside structure, got %d", len(st.Events))
	}
	if len(st.Points) != 4 {
		t.Fatalf("expected 4 swing points, got %d", len(st.Points))
	}
}

func TestAnalyzeStructuralBreak(t *testing.T) {
	candles := append(uptrendFixture(), candle(11, 106, 111, 105, 110))

	st := NewStructureAnalyzer(2).Analyze(candles)

	if st.Trend != Uptrend {
		t.Fatalf("trend = %s, want UPTREND after continuation break", st.Trend)
	}
	if len(st.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(st.Events))
	}
	ev := st.Events[0]
	if ev.Kind != StructuralBreak {
		t.Errorf("event kind = %s, want STRUCTURAL_BREAK", ev.Kind)
	}
	if ev.Level != 109 {
		t.Errorf("break level = %f, want latest swing high 109", ev.Level)
	}
}

func TestAnalyzeTrendShift(t *testing.T) {
	candles := append(uptrendFixture(), candle(11, 100, 101, 97, 98))

	st := NewStructureAnalyzer(2).Analyze(candles)

	if st.Trend != Downtrend {
		t.Fatalf("trend = %s, want DOWNTREND after shift", st.Trend)
	}
	if len(st.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(st.Events))
	}
	ev := st.Events[0]
	if ev.Kind != TrendShift {
		t.Errorf("event kind = %s, want TREND_SHIFT", ev.Kind)
	}
	if ev.Level != 100 {
		t.Errorf("shift level = %f, want latest swing low 100", ev.Level)
	}
	if st.Points != nil {
		t.Error("swing history should reset after a trend shift")
	}
}

func TestAnalyzeShortSeriesIsRanging(t *testing.T) {
	st := NewStructureAnalyzer(2).Analyze(uptrendFixture()[:3])
	if st.Trend != Ranging {
		t.Fatalf("trend = %s, want RANGING for a series too short to classify", st.Trend)
	}
}

func TestTrendDirection(t *testing.T) {
	if Uptrend.Direction() != market.Bullish {
		t.Error("uptrend should lean bullish")
	}
	if Downtrend.Direction() != market.Bearish {
		t.Error("downtrend should lean bearish")
	}
	if Ranging.Direction() != market.Neutral {
		t.Error("ranging should be neutral")
	}
}
