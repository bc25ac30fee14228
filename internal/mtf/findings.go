package mtf

import (
	"time"

	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/market"
)

// Findings is the detector output for one symbol/horizon, produced by a
// single self-contained evaluation.
type Findings struct {
	Horizon   market.Horizon            `json:"horizon"`
	Gaps      []analysis.Gap            `json:"gaps"`
	Zones     []analysis.Zone           `json:"zones"`
	Retests   []analysis.Retest         `json:"retests,omitempty"`
	Structure analysis.Structure        `json:"structure"`
	Levels    []analysis.LiquidityLevel `json:"levels"`
	Sweeps    []analysis.Sweep          `json:"sweeps"`
	LastClose float64                   `json:"last_close"`
	At        time.Time                 `json:"at"`
}

// SourceKind identifies which detector contributed a confluence range.
type SourceKind string

const (
	SourceGap  SourceKind = "GAP"
	SourceZone SourceKind = "ZONE"
)

// Source names one contributor to a confluence zone.
type Source struct {
	Horizon market.Horizon `json:"horizon"`
	Kind    SourceKind     `json:"kind"`
}

// ConfluenceZone is a price range where detections from at least two
// horizons overlap and agree on direction. Bounds are the intersection of
// all contributing ranges.
type ConfluenceZone struct {
	Upper      float64          `json:"upper"`
	Lower      float64          `json:"lower"`
	EntryLevel float64          `json:"entry_level"`
	Direction  market.Direction `json:"direction"`
	Confidence float64          `json:"confidence"`
	Sources    []Source         `json:"sources"`
}

// CandidateKind tags the origin of an entry candidate.
type CandidateKind string

const (
	CandidateConfluence CandidateKind = "CONFLUENCE"
	CandidateGap        CandidateKind = "GAP"
	CandidateZone       CandidateKind = "ZONE"
)

// Candidate is the entry area handed to the synthesizer: either a confluence
// zone or a single-source fallback. Invalidation is the boundary a stop must
// sit beyond.
type Candidate struct {
	Kind         CandidateKind    `json:"kind"`
	Direction    market.Direction `json:"direction"`
	Upper        float64          `json:"upper"`
	Lower        float64          `json:"lower"`
	EntryLevel   float64          `json:"entry_level"`
	Invalidation float64          `json:"invalidation"`
	Contributors int              `json:"contributors"`
	Confidence   float64          `json:"confidence"`
}

// Assessment is the coordinator's per-symbol per-cycle output.
type Assessment struct {
	Symbol      string                      `json:"symbol"`
	Bias        market.Direction            `json:"bias"`
	BiasTier    int                         `json:"bias_tier"`
	ByHorizon   map[market.Horizon]Findings `json:"by_horizon"`
	Confluences []ConfluenceZone            `json:"confluences"`
	Candidate   *Candidate                  `json:"candidate,omitempty"`
	At          time.Time                   `json:"at"`
}

// TrendByHorizon returns the trend label snapshot for proposal rationale.
func (a Assessment) TrendByHorizon() map[string]string {
	out := make(map[string]string, len(a.ByHorizon))
	for h, f := range a.ByHorizon {
		out[h.String()] = string(f.Structure.Trend)
	}
	return out
}
