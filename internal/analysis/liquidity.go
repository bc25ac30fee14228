package analysis

import (
	"sync"
	"time"

	"smc-signal-engine/internal/market"
)

// LevelSide tags a liquidity level as resting above or below price.
type LevelSide string

const (
	UpperSide LevelSide = "UPPER"
	LowerSide LevelSide = "LOWER"
)

// LiquidityLevel is a significant unbroken high or low where stop orders
// cluster.
type LiquidityLevel struct {
	Price      float64    `json:"price"`
	Side       LevelSide  `json:"side"`
	TouchCount int        `json:"touch_count"`
	Swept      bool       `json:"swept"`
	SweptAt    *time.Time `json:"swept_at,omitempty"`
}

// Sweep records a brief breach of a liquidity level followed by a reversal.
type Sweep struct {
	Level     LiquidityLevel   `json:"level"`
	Direction market.Direction `json:"direction"` // Expected reversal direction after the sweep
	At        time.Time        `json:"at"`
}

// LiquidityAnalyzer finds liquidity levels and stop-hunt sweeps.
type LiquidityAnalyzer struct {
	lookback       int
	swingWindow    int
	sweepTolerance float64
	touchTolerance float64
}

// NewLiquidityAnalyzer creates a liquidity analyzer. Tolerances are in price
// units: sweepTolerance is how far beyond a level price must trade to count
// as a sweep, touchTolerance is the proximity counting as a touch.
func NewLiquidityAnalyzer(lookback, swingWindow int, sweepTolerance, touchTolerance float64) *LiquidityAnalyzer {
	if lookback <= 0 {
		lookback = 50
	}
	if swingWindow <= 0 {
		swingWindow = 2
	}
	return &LiquidityAnalyzer{
		lookback:       lookback,
		swingWindow:    swingWindow,
		sweepTolerance: sweepTolerance,
		touchTolerance: touchTolerance,
	}
}

// Levels identifies liquidity levels from swing extrema over the lookback
// window and counts touches: price approaching within tolerance without a
// close through the level.
func (la *LiquidityAnalyzer) Levels(candles []market.Candle) []LiquidityLevel {
	if len(candles) == 0 {
		return nil
	}
	window := candles
	if len(window) > la.lookback {
		window = window[len(window)-la.lookback:]
	}
	if len(window) < la.swingWindow*2+1 {
		return nil
	}

	var levels []LiquidityLevel
	k := la.swingWindow

	for i := k; i < len(window)-k; i++ {
		isHigh := true
		isLow := true
		for j := 1; j <= k; j++ {
			if window[i-j].High >= window[i].High || window[i+j].High >= window[i].High {
				isHigh = false
			}
			if window[i-j].Low <= window[i].Low || window[i+j].Low <= window[i].Low {
				isLow = false
			}
		}
		if isHigh {
			lvl := LiquidityLevel{Price: window[i].High, Side: UpperSide}
			lvl.TouchCount = la.countTouches(window[i+1:], lvl)
			levels = append(levels, lvl)
		}
		if isLow {
			lvl := LiquidityLevel{Price: window[i].Low, Side: LowerSide}
			lvl.TouchCount = la.countTouches(window[i+1:], lvl)
			levels = append(levels, lvl)
		}
	}

	return levels
}

// countTouches counts candles approaching a level within tolerance without
// closing through it.
func (la *LiquidityAnalyzer) countTouches(candles []market.Candle, lvl LiquidityLevel) int {
	touches := 0
	for _, c := range candles {
		if lvl.Side == UpperSide {
			if c.High >= lvl.Price-la.touchTolerance && c.Close < lvl.Price {
				touches++
			}
		} else {
			if c.Low <= lvl.Price+la.touchTolerance && c.Close > lvl.Price {
				touches++
			}
		}
	}
	return touches
}

// DetectSweeps finds stop-hunt sweeps: a candle trading beyond a level by
// more than the sweep tolerance while that candle, or the one immediately
// after it, closes back on the originating side. An upper-side sweep implies
// a bearish reversal; a lower-side sweep implies bullish.
func (la *LiquidityAnalyzer) DetectSweeps(candles []market.Candle, levels []LiquidityLevel) ([]LiquidityLevel, []Sweep) {
	out := make([]LiquidityLevel, len(levels))
	copy(out, levels)

	var sweeps []Sweep
	for i := range out {
		if out[i].Swept {
			continue
		}
		for j, c := range candles {
			breached := false
			if out[i].Side == UpperSide {
				breached = c.High > out[i].Price+la.sweepTolerance
			} else {
				breached = c.Low < out[i].Price-la.sweepTolerance
			}
			if !breached {
				continue
			}

			if la.closesBack(candles, j, out[i]) {
				at := c.Timestamp
				out[i].Swept = true
				out[i].SweptAt = &at

				direction := market.Bearish
				if out[i].Side == LowerSide {
					direction = market.Bullish
				}
				sweeps = append(sweeps, Sweep{Level: out[i], Direction: direction, At: at})
			}
			break
		}
	}

	return out, sweeps
}

// closesBack reports whether the breaching candle or its successor closed
// back on the originating side of the level.
func (la *LiquidityAnalyzer) closesBack(candles []market.Candle, breachIdx int, lvl LiquidityLevel) bool {
	for j := breachIdx; j <= breachIdx+1 && j < len(candles); j++ {
		if lvl.Side == UpperSide && candles[j].Close < lvl.Price {
			return true
		}
		if lvl.Side == LowerSide && candles[j].Close > lvl.Price {
			return true
		}
	}
	return false
}

// SweepLog is a capped chronological per-symbol record of detected sweeps,
// newest last. Oldest entries are pruned when the cap is exceeded.
type SweepLog struct {
	mu     sync.RWMutex
	cap    int
	sweeps []Sweep
}

// NewSweepLog creates a sweep log retaining at most cap entries.
func NewSweepLog(cap int) *SweepLog {
	if cap <= 0 {
		cap = 50
	}
	return &SweepLog{cap: cap}
}

// Append adds sweeps newest-last, pruning the oldest beyond the cap.
// Duplicate sweeps (same level price, side, and time) are skipped.
func (sl *SweepLog) Append(sweeps ...Sweep) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	for _, s := range sweeps {
		if sl.contains(s) {
			continue
		}
		sl.sweeps = append(sl.sweeps, s)
	}
	if len(sl.sweeps) > sl.cap {
		sl.sweeps = sl.sweeps[len(sl.sweeps)-sl.cap:]
	}
}

func (sl *SweepLog) contains(s Sweep) bool {
	for _, existing := range sl.sweeps {
		if existing.Level.Price == s.Level.Price &&
			existing.Level.Side == s.Level.Side &&
			existing.At.Equal(s.At) {
			return true
		}
	}
	return false
}

// Recent returns up to n most recent sweeps, newest last.
func (sl *SweepLog) Recent(n int) []Sweep {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	if n <= 0 || n > len(sl.sweeps) {
		n = len(sl.sweeps)
	}
	out := make([]Sweep, n)
	copy(out, sl.sweeps[len(sl.sweeps)-n:])
	return out
}

// RecentInFavor reports whether any sweep within the window favors the given
// direction.
func (sl *SweepLog) RecentInFavor(direction market.Direction, since time.Time) bool {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	for i := len(sl.sweeps) - 1; i >= 0; i-- {
		s := sl.sweeps[i]
		if s.At.Before(since) {
			break
		}
		if s.Direction == direction {
			return true
		}
	}
	return false
}
