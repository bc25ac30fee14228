package analysis

import (
	"math"
	"time"

	"smc-signal-engine/internal/market"

	"github.com/rs/zerolog"
)

// Gap represents a three-candle price imbalance. A bullish gap is left above
// price by a down move and is expected to attract a retracement upward back
// into it; bearish is the mirror.
type Gap struct {
	Horizon     market.Horizon   `json:"horizon"`
	Direction   market.Direction `json:"direction"`
	Upper       float64          `json:"upper"`
	Lower       float64          `json:"lower"`
	Equilibrium float64          `json:"equilibrium"`
	CreatedAt   time.Time        `json:"created_at"`
	SourceIndex int              `json:"source_index"`
	Filled      bool             `json:"filled"`
	FilledAt    *time.Time       `json:"filled_at,omitempty"`
}

// Width returns the gap band size.
func (g Gap) Width() float64 {
	return g.Upper - g.Lower
}

// Contains reports whether a price sits inside the gap band.
func (g Gap) Contains(price float64) bool {
	return price >= g.Lower && price <= g.Upper
}

// GapDetector detects three-candle imbalances in a candle series.
type GapDetector struct {
	logger zerolog.Logger
}

// NewGapDetector creates a new gap detector.
func NewGapDetector(logger zerolog.Logger) *GapDetector {
	return &GapDetector{logger: logger}
}

// Detect scans every consecutive candle triple and emits gaps, newest last.
// Strict inequality is required: touching highs/lows produce no gap.
// Direction convention: c1.low above c3.high leaves a band above price that
// is expected to be revisited as price retraces upward, so the gap is
// bullish.
func (gd *GapDetector) Detect(candles []market.Candle, horizon market.Horizon) []Gap {
	if len(candles) < 3 {
		return nil
	}

	var gaps []Gap
	for i := 0; i+2 < len(candles); i++ {
		c1 := candles[i]
		c2 := candles[i+1] // middle candle creates the imbalance
		c3 := candles[i+2]

		var g Gap
		switch {
		case c1.Low > c3.High:
			g = Gap{
				Horizon:     horizon,
				Direction:   market.Bullish,
				Upper:       c1.Low,
				Lower:       c3.High,
				Equilibrium: (c1.Low + c3.High) / 2,
				CreatedAt:   c2.Timestamp,
				SourceIndex: i,
			}
		case c1.High < c3.Low:
			g = Gap{
				Horizon:     horizon,
				Direction:   market.Bearish,
				Upper:       c3.Low,
				Lower:       c1.High,
				Equilibrium: (c3.Low + c1.High) / 2,
				CreatedAt:   c2.Timestamp,
				SourceIndex: i,
			}
		default:
			continue
		}

		if g.Upper < g.Lower {
			// Malformed candle input; discard the candidate, never fatal.
			gd.logger.Warn().
				Str("horizon", horizon.String()).
				Float64("upper", g.Upper).
				Float64("lower", g.Lower).
				Int("index", i).
				Msg("discarding gap candidate with inverted bounds")
			continue
		}

		gaps = append(gaps, g)
	}

	return gaps
}

// MarkFills flips Filled on any gap whose band has been fully traded back
// through after creation: a bullish gap fills when a later candle retraces up
// to or past its upper bound, a bearish gap when a later candle retraces down
// to or past its lower bound. The detection triple itself never fills its own
// gap, since by construction none of its candles reach the far bound.
// Filling is monotonic; a filled gap never becomes unfilled again.
func (gd *GapDetector) MarkFills(gaps []Gap, candles []market.Candle) []Gap {
	out := make([]Gap, len(gaps))
	copy(out, gaps)

	for i := range out {
		if out[i].Filled {
			continue
		}
		for _, c := range candles {
			if !c.Timestamp.After(out[i].CreatedAt) {
				continue
			}
			filled := false
			if out[i].Direction == market.Bullish && c.High >= out[i].Upper {
				filled = true
			}
			if out[i].Direction == market.Bearish && c.Low <= out[i].Lower {
				filled = true
			}
			if filled {
				out[i].Filled = true
				at := c.Timestamp
				out[i].FilledAt = &at
				break
			}
		}
	}

	return out
}

// Prune drops filled gaps once the retention window has elapsed since fill.
// Unfilled gaps are always retained.
func (gd *GapDetector) Prune(gaps []Gap, now time.Time, retention time.Duration) []Gap {
	var kept []Gap
	for _, g := range gaps {
		if g.Filled && g.FilledAt != nil && now.Sub(*g.FilledAt) > retention {
			continue
		}
		kept = append(kept, g)
	}
	return kept
}

// Unfilled returns only gaps still awaiting a fill.
func Unfilled(gaps []Gap) []Gap {
	var out []Gap
	for _, g := range gaps {
		if !g.Filled {
			out = append(out, g)
		}
	}
	return out
}

// NearestGap returns the unfilled gap whose equilibrium is closest to price,
// optionally filtered by direction. Returns nil when none qualifies.
func NearestGap(gaps []Gap, price float64, direction market.Direction) *Gap {
	var nearest *Gap
	best := math.MaxFloat64
	for i := range gaps {
		g := gaps[i]
		if g.Filled {
			continue
		}
		if direction != market.Neutral && g.Direction != direction {
			continue
		}
		d := math.Abs(g.Equilibrium - price)
		if d < best {
			best = d
			nearest = &gaps[i]
		}
	}
	return nearest
}
