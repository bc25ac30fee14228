package mtf

import (
	"math"
	"sort"
	"time"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/market"

	"github.com/rs/zerolog"
)

// Coordinator merges per-horizon findings into a directional bias and an
// entry candidate. The widest horizon dominates bias; narrower horizons only
// refine where price within that bias is actionable.
type Coordinator struct {
	base   float64 // Confidence of a two-source confluence
	step   float64 // Added per contributing source beyond two
	limit  float64 // Confidence cap
	logger zerolog.Logger
}

// NewCoordinator creates a coordinator. Zero confluence thresholds fall back
// to the configuration defaults.
func NewCoordinator(cfg config.SignalConfig, logger zerolog.Logger) *Coordinator {
	base, step, limit := cfg.ConfluenceBase, cfg.ConfluenceStep, cfg.ConfluenceLimit
	if base <= 0 {
		base = 0.80
	}
	if step <= 0 {
		step = 0.05
	}
	if limit <= 0 {
		limit = 0.95
	}
	return &Coordinator{base: base, step: step, limit: limit, logger: logger}
}

// ResolveBias applies the bias rules against the two widest horizons.
// Tier 1: both agree on a clear direction. Tier 2: the widest is clear on its
// own. Tier 3: the widest is ranging or unavailable but the second is clear.
// Tier 4: neutral, no tradeable lean.
func ResolveBias(widest, second *Findings) (market.Direction, int) {
	widestDir, secondDir := market.Neutral, market.Neutral
	if widest != nil {
		widestDir = widest.Structure.Trend.Direction()
	}
	if second != nil {
		secondDir = second.Structure.Trend.Direction()
	}

	switch {
	case widestDir != market.Neutral && widestDir == secondDir:
		return widestDir, 1
	case widestDir != market.Neutral:
		return widestDir, 2
	case secondDir != market.Neutral:
		return secondDir, 3
	}
	return market.Neutral, 4
}

// Assess produces the full per-symbol assessment from a consistent snapshot
// of horizon findings.
func (co *Coordinator) Assess(symbol string, byHorizon map[market.Horizon]Findings, now time.Time) Assessment {
	widest := findingsOrNil(byHorizon, market.Horizons[0])
	second := findingsOrNil(byHorizon, market.Horizons[1])

	bias, tier := ResolveBias(widest, second)

	assessment := Assessment{
		Symbol:    symbol,
		Bias:      bias,
		BiasTier:  tier,
		ByHorizon: byHorizon,
		At:        now,
	}
	if bias == market.Neutral {
		return assessment
	}

	price := referencePrice(byHorizon)
	assessment.Confluences = co.findConfluences(byHorizon, bias)
	assessment.Candidate = co.pickCandidate(assessment.Confluences, byHorizon, bias, price)

	return assessment
}

func findingsOrNil(byHorizon map[market.Horizon]Findings, h market.Horizon) *Findings {
	if f, ok := byHorizon[h]; ok {
		return &f
	}
	return nil
}

// referencePrice is the last close of the narrowest available horizon.
func referencePrice(byHorizon map[market.Horizon]Findings) float64 {
	for i := len(market.Horizons) - 1; i >= 0; i-- {
		if f, ok := byHorizon[market.Horizons[i]]; ok {
			return f.LastClose
		}
	}
	return 0
}

// sourceRange is one detection considered for confluence.
type sourceRange struct {
	source Source
	upper  float64
	lower  float64
}

func collectRanges(byHorizon map[market.Horizon]Findings, bias market.Direction) []sourceRange {
	var ranges []sourceRange
	for _, h := range market.Horizons {
		f, ok := byHorizon[h]
		if !ok {
			continue
		}
		for _, g := range analysis.Unfilled(f.Gaps) {
			if g.Direction != bias {
				continue
			}
			ranges = append(ranges, sourceRange{
				source: Source{Horizon: h, Kind: SourceGap},
				upper:  g.Upper,
				lower:  g.Lower,
			})
		}
		for _, z := range f.Zones {
			if !z.Valid || z.Direction != bias {
				continue
			}
			ranges = append(ranges, sourceRange{
				source: Source{Horizon: h, Kind: SourceZone},
				upper:  z.Upper,
				lower:  z.Lower,
			})
		}
	}
	return ranges
}

// findConfluences intersects bias-matching detection ranges across different
// horizons. Each pair with a non-empty overlap seeds a confluence zone; other
// horizons' ranges that also overlap tighten its bounds and raise its
// confidence.
func (co *Coordinator) findConfluences(byHorizon map[market.Horizon]Findings, bias market.Direction) []ConfluenceZone {
	ranges := collectRanges(byHorizon, bias)
	if len(ranges) < 2 {
		return nil
	}

	var zones []ConfluenceZone
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			a, b := ranges[i], ranges[j]
			if a.source.Horizon == b.source.Horizon {
				continue
			}
			upper := math.Min(a.upper, b.upper)
			lower := math.Max(a.lower, b.lower)
			if upper <= lower {
				continue
			}

			cz := ConfluenceZone{
				Upper:     upper,
				Lower:     lower,
				Direction: bias,
				Sources:   []Source{a.source, b.source},
			}
			seen := map[market.Horizon]bool{a.source.Horizon: true, b.source.Horizon: true}

			for k := range ranges {
				c := ranges[k]
				if seen[c.source.Horizon] {
					continue
				}
				u := math.Min(cz.Upper, c.upper)
				l := math.Max(cz.Lower, c.lower)
				if u <= l {
					continue
				}
				cz.Upper, cz.Lower = u, l
				cz.Sources = append(cz.Sources, c.source)
				seen[c.source.Horizon] = true
			}

			cz.EntryLevel = (cz.Upper + cz.Lower) / 2
			cz.Confidence = math.Min(co.limit,
				co.base+co.step*float64(len(cz.Sources)-2))
			zones = append(zones, cz)
		}
	}

	zones = dedupeZones(zones)
	sort.Slice(zones, func(i, j int) bool {
		if zones[i].Confidence != zones[j].Confidence {
			return zones[i].Confidence > zones[j].Confidence
		}
		return zones[i].Upper-zones[i].Lower > zones[j].Upper-zones[j].Lower
	})
	return zones
}

func dedupeZones(zones []ConfluenceZone) []ConfluenceZone {
	var out []ConfluenceZone
	for _, z := range zones {
		dup := false
		for _, existing := range out {
			if existing.Upper == z.Upper && existing.Lower == z.Lower {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, z)
		}
	}
	return out
}

// pickCandidate selects the entry candidate: the nearest confluence zone to
// price, or failing that the nearest bias-matching gap or zone on the second
// widest horizon.
func (co *Coordinator) pickCandidate(zones []ConfluenceZone, byHorizon map[market.Horizon]Findings, bias market.Direction, price float64) *Candidate {
	if best := nearestConfluence(zones, price); best != nil {
		return &Candidate{
			Kind:         CandidateConfluence,
			Direction:    bias,
			Upper:        best.Upper,
			Lower:        best.Lower,
			EntryLevel:   best.EntryLevel,
			Invalidation: invalidationBound(bias, best.Upper, best.Lower),
			Contributors: len(best.Sources),
			Confidence:   best.Confidence,
		}
	}

	second, ok := byHorizon[market.Horizons[1]]
	if !ok {
		return nil
	}

	gap := analysis.NearestGap(second.Gaps, price, bias)
	zone := analysis.NearestZone(second.Zones, price, bias)

	switch {
	case gap != nil && (zone == nil || math.Abs(gap.Equilibrium-price) <= math.Abs(zone.EntryLevel-price)):
		return &Candidate{
			Kind:         CandidateGap,
			Direction:    bias,
			Upper:        gap.Upper,
			Lower:        gap.Lower,
			EntryLevel:   gap.Equilibrium,
			Invalidation: invalidationBound(bias, gap.Upper, gap.Lower),
			Contributors: 1,
		}
	case zone != nil:
		return &Candidate{
			Kind:         CandidateZone,
			Direction:    bias,
			Upper:        zone.Upper,
			Lower:        zone.Lower,
			EntryLevel:   zone.EntryLevel,
			Invalidation: invalidationBound(bias, zone.Upper, zone.Lower),
			Contributors: 1,
		}
	}
	return nil
}

func nearestConfluence(zones []ConfluenceZone, price float64) *ConfluenceZone {
	var best *ConfluenceZone
	bestDist := math.MaxFloat64
	for i := range zones {
		d := math.Abs(zones[i].EntryLevel - price)
		if d < bestDist {
			bestDist = d
			best = &zones[i]
		}
	}
	return best
}

// invalidationBound is the candidate edge a protective stop must sit beyond:
// the lower bound for a bullish candidate, the upper for bearish.
func invalidationBound(bias market.Direction, upper, lower float64) float64 {
	if bias == market.Bullish {
		return lower
	}
	return upper
}
