package analysis

import (
	"math"
	"time"

	"smc-signal-engine/internal/market"

	"github.com/rs/zerolog"
)

// ZoneKind distinguishes an original reversal block from its flipped variant.
type ZoneKind string

const (
	ZoneOrigin  ZoneKind = "ORIGIN"
	ZoneFlipped ZoneKind = "FLIPPED"
)

// Zone is the last opposing candle before an impulsive run: a supply/demand
// area price tends to revisit. A flipped zone is a zone that was closed
// through and now marks a reversal area in the opposite direction.
type Zone struct {
	Horizon    market.Horizon   `json:"horizon"`
	Direction  market.Direction `json:"direction"`
	Kind       ZoneKind         `json:"kind"`
	Upper      float64          `json:"upper"`
	Lower      float64          `json:"lower"`
	EntryLevel float64          `json:"entry_level"`
	CreatedAt  time.Time        `json:"created_at"`
	Valid      bool             `json:"valid"`
	Strength   float64          `json:"strength"`
}

// Contains reports whether a price sits inside the zone.
func (z Zone) Contains(price float64) bool {
	return price >= z.Lower && price <= z.Upper
}

// Width returns the zone band size.
func (z Zone) Width() float64 {
	return z.Upper - z.Lower
}

// Flip produces the flipped variant of an invalidated zone: same bounds,
// opposite direction, timestamped at the invalidation candle. The transition
// is one-way and one-time; the input zone is returned invalidated alongside.
func Flip(z Zone, at time.Time) (invalidated Zone, flipped Zone) {
	invalidated = z
	invalidated.Valid = false

	flipped = Zone{
		Horizon:    z.Horizon,
		Direction:  z.Direction.Opposite(),
		Kind:       ZoneFlipped,
		Upper:      z.Upper,
		Lower:      z.Lower,
		EntryLevel: z.EntryLevel,
		CreatedAt:  at,
		Valid:      true,
		Strength:   z.Strength,
	}
	return invalidated, flipped
}

// Retest is a candidate re-entry event: price traded back into a still-valid
// zone.
type Retest struct {
	Zone  Zone      `json:"zone"`
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

// ZoneDetector finds reversal blocks preceding impulsive runs.
type ZoneDetector struct {
	runLength int
	minMove   float64
	logger    zerolog.Logger
}

// NewZoneDetector creates a zone detector. runLength is the number of
// consecutive same-direction candles forming an impulsive run; minMove is the
// minimum cumulative move of the run in price units.
func NewZoneDetector(runLength int, minMove float64, logger zerolog.Logger) *ZoneDetector {
	if runLength < 2 {
		runLength = 3
	}
	return &ZoneDetector{runLength: runLength, minMove: minMove, logger: logger}
}

// Detect scans for impulsive runs and marks the opposing candle preceding
// each as a zone. A run of runLength or more consecutive same-direction
// candles counts as one run and yields at most one zone; the cumulative move
// spans the whole run. Strength is the run magnitude relative to the zone's
// own range, so larger follow-through yields higher strength.
func (zd *ZoneDetector) Detect(candles []market.Candle, horizon market.Horizon) []Zone {
	if len(candles) < zd.runLength+1 {
		return nil
	}

	var zones []Zone
	for i := 0; i+zd.runLength < len(candles); i++ {
		runUp := true
		runDown := true
		for j := 1; j <= zd.runLength; j++ {
			c := candles[i+j]
			if !c.IsBullish() {
				runUp = false
			}
			if !c.IsBearish() {
				runDown = false
			}
		}

		var direction market.Direction
		switch {
		case runUp:
			direction = market.Bullish
		case runDown:
			direction = market.Bearish
		default:
			continue
		}

		// A window whose leading candle continues the run is interior to a
		// longer run already handled at its true start.
		if direction == market.Bullish && candles[i].IsBullish() {
			continue
		}
		if direction == market.Bearish && candles[i].IsBearish() {
			continue
		}

		end := i + zd.runLength
		for end+1 < len(candles) {
			next := candles[end+1]
			if direction == market.Bullish && !next.IsBullish() {
				break
			}
			if direction == market.Bearish && !next.IsBearish() {
				break
			}
			end++
		}

		var move float64
		if direction == market.Bullish {
			move = candles[end].Close - candles[i+1].Open
		} else {
			move = candles[i+1].Open - candles[end].Close
		}
		if move < zd.minMove {
			continue
		}

		anchor := zd.findOpposingCandle(candles, i, direction)
		if anchor < 0 {
			continue
		}

		oc := candles[anchor]
		if oc.High < oc.Low {
			zd.logger.Warn().
				Str("horizon", horizon.String()).
				Int("index", anchor).
				Msg("discarding zone candidate with inverted bounds")
			continue
		}

		width := oc.High - oc.Low
		strength := move
		if width > 0 {
			strength = move / width
		}

		zones = append(zones, Zone{
			Horizon:    horizon,
			Direction:  direction,
			Kind:       ZoneOrigin,
			Upper:      oc.High,
			Lower:      oc.Low,
			EntryLevel: (oc.High + oc.Low) / 2,
			CreatedAt:  oc.Timestamp,
			Valid:      true,
			Strength:   strength,
		})
	}

	return zones
}

// findOpposingCandle returns the index of the candle anchoring the zone: the
// candle immediately preceding the run if its body opposes the run, otherwise
// the last earlier candle whose body does.
func (zd *ZoneDetector) findOpposingCandle(candles []market.Candle, runStart int, direction market.Direction) int {
	for j := runStart; j >= 0; j-- {
		c := candles[j]
		if direction == market.Bullish && c.IsBearish() {
			return j
		}
		if direction == market.Bearish && c.IsBullish() {
			return j
		}
	}
	return -1
}

// Invalidate checks each valid origin zone against later closes. The instant
// a candle closes beyond the zone's opposite extreme the zone is invalidated
// and exactly one flipped zone with inverted direction and identical bounds
// is appended. Returns the updated zone list and the flips that occurred.
func (zd *ZoneDetector) Invalidate(zones []Zone, candles []market.Candle) ([]Zone, []Zone) {
	out := make([]Zone, len(zones))
	copy(out, zones)

	var flips []Zone
	for i := range out {
		z := out[i]
		if !z.Valid || z.Kind != ZoneOrigin {
			continue
		}
		for _, c := range candles {
			if !c.Timestamp.After(z.CreatedAt) {
				continue
			}
			broken := (z.Direction == market.Bullish && c.Close < z.Lower) ||
				(z.Direction == market.Bearish && c.Close > z.Upper)
			if broken {
				invalidated, flipped := Flip(z, c.Timestamp)
				out[i] = invalidated
				flips = append(flips, flipped)
				break
			}
		}
	}

	return append(out, flips...), flips
}

// Retests reports re-entry events for every still-valid zone the price
// currently sits inside.
func (zd *ZoneDetector) Retests(zones []Zone, price float64, at time.Time) []Retest {
	var retests []Retest
	for _, z := range zones {
		if z.Valid && z.Contains(price) {
			retests = append(retests, Retest{Zone: z, Price: price, At: at})
		}
	}
	return retests
}

// ValidZones returns only zones that have not been invalidated.
func ValidZones(zones []Zone) []Zone {
	var out []Zone
	for _, z := range zones {
		if z.Valid {
			out = append(out, z)
		}
	}
	return out
}

// NearestZone returns the valid zone whose entry level is closest to price,
// optionally filtered by direction. Returns nil when none qualifies.
func NearestZone(zones []Zone, price float64, direction market.Direction) *Zone {
	var nearest *Zone
	best := math.MaxFloat64
	for i := range zones {
		z := zones[i]
		if !z.Valid {
			continue
		}
		if direction != market.Neutral && z.Direction != direction {
			continue
		}
		d := math.Abs(z.EntryLevel - price)
		if d < best {
			best = d
			nearest = &zones[i]
		}
	}
	return nearest
}
