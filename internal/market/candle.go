package market

import (
	"fmt"
	"time"
)

// Candle represents a single OHLCV bar. Candles are immutable once produced.
type Candle struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// IsBullish reports whether the candle body closed up.
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the candle body closed down.
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// Body returns the absolute body size.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the high-low range.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// ValidateSeries rejects a corrupt candle series. Non-monotonic timestamps,
// duplicates, or non-positive prices indicate a bug in the upstream data
// collaborator and are surfaced as a hard error rather than handled locally.
func ValidateSeries(candles []Candle) error {
	for i, c := range candles {
		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
			return fmt.Errorf("candle %d: non-positive price (o=%f h=%f l=%f c=%f)", i, c.Open, c.High, c.Low, c.Close)
		}
		if c.High < c.Low {
			return fmt.Errorf("candle %d: high %f below low %f", i, c.High, c.Low)
		}
		if i > 0 && !c.Timestamp.After(candles[i-1].Timestamp) {
			return fmt.Errorf("candle %d: timestamp %s not after previous %s", i, c.Timestamp, candles[i-1].Timestamp)
		}
	}
	return nil
}
