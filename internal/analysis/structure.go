package analysis

import (
	"time"

	"smc-signal-engine/internal/market"
)

// Trend labels the market structure of one horizon.
type Trend string

const (
	Uptrend   Trend = "UPTREND"
	Downtrend Trend = "DOWNTREND"
	Ranging   Trend = "RANGING"
)

// Direction maps a trend label onto a directional lean.
func (t Trend) Direction() market.Direction {
	switch t {
	case Uptrend:
		return market.Bullish
	case Downtrend:
		return market.Bearish
	}
	return market.Neutral
}

// PointType tags a structure point as a swing high or swing low.
type PointType string

const (
	SwingHigh PointType = "SWING_HIGH"
	SwingLow  PointType = "SWING_LOW"
)

// StructurePoint is a confirmed swing extremum.
type StructurePoint struct {
	Price     float64   `json:"price"`
	Type      PointType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// StructureEvent marks a structural break (trend continuation confirmed) or a
// trend shift (trend invalidated by a counter-trend close).
type StructureEvent struct {
	Kind  EventKind `json:"kind"`
	Price float64   `json:"price"`
	Level float64   `json:"level"` // The swing level that was closed through
	At    time.Time `json:"at"`
}

type EventKind string

const (
	StructuralBreak EventKind = "STRUCTURAL_BREAK"
	TrendShift      EventKind = "TREND_SHIFT"
)

// Structure is the analyzed swing sequence and trend for one horizon.
type Structure struct {
	Trend  Trend            `json:"trend"`
	Points []StructurePoint `json:"points"`
	Events []StructureEvent `json:"events,omitempty"`
}

// StructureAnalyzer classifies trend from windowed swing extrema.
type StructureAnalyzer struct {
	window int // Candles on each side of a swing extremum
}

// NewStructureAnalyzer creates a structure analyzer with the given swing
// window.
func NewStructureAnalyzer(window int) *StructureAnalyzer {
	if window <= 0 {
		window = 2
	}
	return &StructureAnalyzer{window: window}
}

// Analyze identifies swing points, classifies the trend from the last two
// highs and lows, and reports break/shift events against the latest close.
// A trend shift flips the label and clears the swing history so the next
// classification starts fresh in the new direction.
func (sa *StructureAnalyzer) Analyze(candles []market.Candle) Structure {
	if len(candles) < sa.window*2+1 {
		return Structure{Trend: Ranging}
	}

	points := sa.findSwingPoints(candles)
	highs := lastOfType(points, SwingHigh, 2)
	lows := lastOfType(points, SwingLow, 2)

	trend := classifyTrend(highs, lows)

	st := Structure{Trend: trend, Points: points}
	if trend == Ranging {
		return st
	}

	last := candles[len(candles)-1]
	latestHigh := highs[len(highs)-1].Price
	latestLow := lows[len(lows)-1].Price

	if trend == Uptrend {
		if last.Close > latestHigh {
			st.Events = append(st.Events, StructureEvent{Kind: StructuralBreak, Price: last.Close, Level: latestHigh, At: last.Timestamp})
		}
		if last.Close < latestLow {
			st.Events = append(st.Events, StructureEvent{Kind: TrendShift, Price: last.Close, Level: latestLow, At: last.Timestamp})
			st.Trend = Downtrend
			st.Points = nil
		}
	} else {
		if last.Close < latestLow {
			st.Events = append(st.Events, StructureEvent{Kind: StructuralBreak, Price: last.Close, Level: latestLow, At: last.Timestamp})
		}
		if last.Close > latestHigh {
			st.Events = append(st.Events, StructureEvent{Kind: TrendShift, Price: last.Close, Level: latestHigh, At: last.Timestamp})
			st.Trend = Uptrend
			st.Points = nil
		}
	}

	return st
}

// findSwingPoints returns confirmed swing extrema in chronological order. A
// candle is a swing high when its high strictly exceeds the highs of the
// window candles on each side; swing lows mirror.
func (sa *StructureAnalyzer) findSwingPoints(candles []market.Candle) []StructurePoint {
	var points []StructurePoint
	k := sa.window

	for i := k; i < len(candles)-k; i++ {
		isHigh := true
		isLow := true
		for j := 1; j <= k; j++ {
			if candles[i-j].High >= candles[i].High || candles[i+j].High >= candles[i].High {
				isHigh = false
			}
			if candles[i-j].Low <= candles[i].Low || candles[i+j].Low <= candles[i].Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			points = append(points, StructurePoint{Price: candles[i].High, Type: SwingHigh, Timestamp: candles[i].Timestamp})
		}
		if isLow {
			points = append(points, StructurePoint{Price: candles[i].Low, Type: SwingLow, Timestamp: candles[i].Timestamp})
		}
	}

	return points
}

// lastOfType returns up to n most recent points of the given type, oldest
// first.
func lastOfType(points []StructurePoint, t PointType, n int) []StructurePoint {
	var filtered []StructurePoint
	for _, p := range points {
		if p.Type == t {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) > n {
		filtered = filtered[len(filtered)-n:]
	}
	return filtered
}

// classifyTrend labels the structure: uptrend needs both a higher high and a
// higher low; downtrend mirrors; anything else is ranging.
func classifyTrend(highs, lows []StructurePoint) Trend {
	if len(highs) < 2 || len(lows) < 2 {
		return Ranging
	}

	higherHigh := highs[1].Price > highs[0].Price
	higherLow := lows[1].Price > lows[0].Price
	lowerHigh := highs[1].Price < highs[0].Price
	lowerLow := lows[1].Price < lows[0].Price

	switch {
	case higherHigh && higherLow:
		return Uptrend
	case lowerHigh && lowerLow:
		return Downtrend
	}
	return Ranging
}
