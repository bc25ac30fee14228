package signal

import (
	"fmt"
	"math"
	"strings"
	"time"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/market"
	"smc-signal-engine/internal/mtf"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrderKind is the pending-order type a proposal resolves to. Entries on the
// pullback side of current price become limit orders; entries requiring a
// breakout become stop orders.
type OrderKind string

const (
	BuyLimit  OrderKind = "BUY_LIMIT"
	SellLimit OrderKind = "SELL_LIMIT"
	BuyStop   OrderKind = "BUY_STOP"
	SellStop  OrderKind = "SELL_STOP"
)

// Proposal is a fully specified trade suggestion. It carries everything a
// downstream consumer needs to place or audit the order.
type Proposal struct {
	ID            string            `json:"id"`
	Symbol        string            `json:"symbol"`
	Direction     market.Direction  `json:"direction"`
	OrderKind     OrderKind         `json:"order_kind"`
	Entry         float64           `json:"entry"`
	Stop          float64           `json:"stop"`
	Target        float64           `json:"target"`
	RewardRisk    float64           `json:"reward_risk"`
	Confidence    float64           `json:"confidence"`
	BiasTier      int               `json:"bias_tier"`
	Rationale     []string          `json:"rationale"`
	TimeframeBias map[string]string `json:"timeframe_bias"`
	GeneratedAt   time.Time         `json:"generated_at"`
}

// Rejection explains why a cycle produced no proposal.
type Rejection struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

const (
	RejectNeutralBias = "NEUTRAL_BIAS"
	RejectNoCandidate = "NO_CANDIDATE"
	RejectRewardRisk  = "REWARD_RISK"
	RejectDegenerate  = "DEGENERATE_LEVELS"
)

// Synthesizer turns a multi-horizon assessment into a trade proposal, or a
// rejection when the setup does not clear the guards.
type Synthesizer struct {
	cfg    config.SignalConfig
	logger zerolog.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(cfg config.SignalConfig, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{cfg: cfg, logger: logger}
}

// Synthesize builds a proposal from an assessment. price is the current
// reference price; sweepInFavor reports a recent stop-hunt sweep agreeing
// with the bias. Exactly one of the returns is non-nil.
func (s *Synthesizer) Synthesize(assessment mtf.Assessment, price float64, sweepInFavor bool, now time.Time) (*Proposal, *Rejection) {
	if assessment.Bias == market.Neutral {
		return nil, &Rejection{Symbol: assessment.Symbol, Reason: RejectNeutralBias}
	}
	candidate := assessment.Candidate
	if candidate == nil {
		return nil, &Rejection{Symbol: assessment.Symbol, Reason: RejectNoCandidate,
			Detail: "no confluence or fallback range matches the bias"}
	}

	entry := candidate.EntryLevel
	stop := s.stopLevel(*candidate)
	target := s.targetLevel(assessment, *candidate, entry)

	risk := math.Abs(entry - stop)
	reward := math.Abs(target - entry)
	if risk <= 0 || reward <= 0 {
		return nil, &Rejection{Symbol: assessment.Symbol, Reason: RejectDegenerate,
			Detail: fmt.Sprintf("entry=%.5f stop=%.5f target=%.5f", entry, stop, target)}
	}

	rr := reward / risk
	if rr < s.cfg.MinRewardRisk {
		return nil, &Rejection{Symbol: assessment.Symbol, Reason: RejectRewardRisk,
			Detail: fmt.Sprintf("%.3f below minimum %.3f", rr, s.cfg.MinRewardRisk)}
	}

	proposal := &Proposal{
		ID:            uuid.New().String(),
		Symbol:        assessment.Symbol,
		Direction:     assessment.Bias,
		OrderKind:     orderKind(assessment.Bias, entry, price),
		Entry:         entry,
		Stop:          stop,
		Target:        target,
		RewardRisk:    rr,
		Confidence:    s.confidence(assessment.BiasTier, *candidate, sweepInFavor),
		BiasTier:      assessment.BiasTier,
		Rationale:     s.rationale(assessment, *candidate, price, sweepInFavor),
		TimeframeBias: assessment.TrendByHorizon(),
		GeneratedAt:   now,
	}
	return proposal, nil
}

// stopLevel places the stop beyond the candidate's invalidation boundary,
// padded by a fraction of the candidate range.
func (s *Synthesizer) stopLevel(c mtf.Candidate) float64 {
	buffer := s.cfg.StopBufferFraction * (c.Upper - c.Lower)
	if c.Direction == market.Bullish {
		return c.Invalidation - buffer
	}
	return c.Invalidation + buffer
}

// targetLevel picks the nearest opposing objective beyond entry in the trade
// direction: an unfilled opposing gap, a valid opposing zone, or an unswept
// liquidity level. Without one it projects the risk by the configured
// multiple.
func (s *Synthesizer) targetLevel(assessment mtf.Assessment, c mtf.Candidate, entry float64) float64 {
	opposing := c.Direction.Opposite()
	best := math.MaxFloat64
	found := false

	consider := func(level float64) {
		var d float64
		if c.Direction == market.Bullish {
			if level <= entry {
				return
			}
			d = level - entry
		} else {
			if level >= entry {
				return
			}
			d = entry - level
		}
		if d < best {
			best = d
			found = true
		}
	}

	for _, f := range assessment.ByHorizon {
		for _, g := range analysis.Unfilled(f.Gaps) {
			if g.Direction != opposing {
				continue
			}
			consider(nearEdge(c.Direction, g.Upper, g.Lower))
		}
		for _, z := range f.Zones {
			if !z.Valid || z.Direction != opposing {
				continue
			}
			consider(nearEdge(c.Direction, z.Upper, z.Lower))
		}
		for _, lvl := range f.Levels {
			if lvl.Swept {
				continue
			}
			if c.Direction == market.Bullish && lvl.Side == analysis.UpperSide {
				consider(lvl.Price)
			}
			if c.Direction == market.Bearish && lvl.Side == analysis.LowerSide {
				consider(lvl.Price)
			}
		}
	}

	if found {
		if c.Direction == market.Bullish {
			return entry + best
		}
		return entry - best
	}

	risk := math.Abs(entry - s.stopLevel(c))
	if c.Direction == market.Bullish {
		return entry + risk*s.cfg.FallbackRewardMultiple
	}
	return entry - risk*s.cfg.FallbackRewardMultiple
}

// nearEdge is the side of an opposing range that price reaches first when
// traveling in the trade direction.
func nearEdge(direction market.Direction, upper, lower float64) float64 {
	if direction == market.Bullish {
		return lower
	}
	return upper
}

func (s *Synthesizer) confidence(tier int, c mtf.Candidate, sweepInFavor bool) float64 {
	base := 0.0
	if tier >= 1 && tier <= len(s.cfg.BiasTierConfidence) {
		base = s.cfg.BiasTierConfidence[tier-1]
	}
	if c.Contributors > 2 {
		base += s.cfg.ContributorBonus * float64(c.Contributors-2)
	}
	if sweepInFavor {
		base += s.cfg.SweepBonus
	}
	return math.Min(1.0, math.Max(0.0, base))
}

// orderKind maps the entry's position relative to current price onto a
// pending-order type.
func orderKind(direction market.Direction, entry, price float64) OrderKind {
	if direction == market.Bullish {
		if entry <= price {
			return BuyLimit
		}
		return BuyStop
	}
	if entry >= price {
		return SellLimit
	}
	return SellStop
}

func (s *Synthesizer) rationale(assessment mtf.Assessment, c mtf.Candidate, price float64, sweepInFavor bool) []string {
	lines := []string{
		fmt.Sprintf("bias %s (tier %d)", assessment.Bias, assessment.BiasTier),
	}
	switch c.Kind {
	case mtf.CandidateConfluence:
		lines = append(lines, fmt.Sprintf("confluence of %d sources at %.5f-%.5f", c.Contributors, c.Lower, c.Upper))
	case mtf.CandidateGap:
		lines = append(lines, fmt.Sprintf("unfilled gap at %.5f-%.5f", c.Lower, c.Upper))
	case mtf.CandidateZone:
		lines = append(lines, fmt.Sprintf("reversal zone at %.5f-%.5f", c.Lower, c.Upper))
	}
	lines = append(lines, fmt.Sprintf("entry in %s territory relative to price %.5f", zoneClass(c.EntryLevel, price), price))
	if r := retestInFavor(assessment, c.Direction); r != nil {
		lines = append(lines, fmt.Sprintf("price retesting a %s zone at %.5f-%.5f", strings.ToLower(string(r.Zone.Direction)), r.Zone.Lower, r.Zone.Upper))
	}
	if sweepInFavor {
		lines = append(lines, "recent liquidity sweep favors the bias")
	}
	return lines
}

// retestInFavor returns a current zone re-entry agreeing with the trade
// direction, scanning all horizons.
func retestInFavor(assessment mtf.Assessment, direction market.Direction) *analysis.Retest {
	for _, h := range market.Horizons {
		f, ok := assessment.ByHorizon[h]
		if !ok {
			continue
		}
		for i := range f.Retests {
			if f.Retests[i].Zone.Direction == direction {
				return &f.Retests[i]
			}
		}
	}
	return nil
}

// zoneClass labels where the entry sits relative to current price. Buying
// below price is a discount entry; selling above price is a premium entry.
func zoneClass(entry, price float64) string {
	switch {
	case entry < price:
		return "discount"
	case entry > price:
		return "premium"
	default:
		return "equilibrium"
	}
}
