package market

import (
	"fmt"
	"time"
)

// Horizon is one of the four analysis timeframes, ordered widest first.
// Using an ordered enum instead of interval strings keeps cross-horizon
// lookups index-checked at compile time.
type Horizon int

const (
	H4 Horizon = iota
	H1
	M15
	M5
)

// Horizons lists all horizons widest to narrowest.
var Horizons = [4]Horizon{H4, H1, M15, M5}

// Direction is the directional lean of a detection or bias.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Neutral Direction = "NEUTRAL"
)

// Opposite returns the inverted direction. Neutral stays neutral.
func (d Direction) Opposite() Direction {
	switch d {
	case Bullish:
		return Bearish
	case Bearish:
		return Bullish
	}
	return Neutral
}

func (h Horizon) String() string {
	switch h {
	case H4:
		return "H4"
	case H1:
		return "H1"
	case M15:
		return "M15"
	case M5:
		return "M5"
	}
	return fmt.Sprintf("Horizon(%d)", int(h))
}

// Duration returns the bar interval of the horizon.
func (h Horizon) Duration() time.Duration {
	switch h {
	case H4:
		return 4 * time.Hour
	case H1:
		return time.Hour
	case M15:
		return 15 * time.Minute
	}
	return 5 * time.Minute
}

// RefreshCadence returns how often detector output for the horizon is
// recomputed. Wider horizons refresh less frequently.
func (h Horizon) RefreshCadence() time.Duration {
	switch h {
	case H4:
		return 30 * time.Minute
	case H1:
		return 10 * time.Minute
	case M15:
		return 3 * time.Minute
	}
	return time.Minute
}

// MarshalText renders the horizon label, so JSON maps keyed by horizon use
// "H4" instead of the enum ordinal.
func (h Horizon) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Horizon) UnmarshalText(b []byte) error {
	parsed, err := ParseHorizon(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHorizon maps an interval label to a Horizon.
func ParseHorizon(s string) (Horizon, error) {
	switch s {
	case "H4", "4h":
		return H4, nil
	case "H1", "1h":
		return H1, nil
	case "M15", "15m":
		return M15, nil
	case "M5", "5m":
		return M5, nil
	}
	return H4, fmt.Errorf("unknown horizon %q", s)
}
