package signal

import (
	"math"
	"strings"
	"testing"
	"time"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/market"
	"smc-signal-engine/internal/mtf"

	"github.com/rs/zerolog"
)

var synthNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func testSignalConfig() config.SignalConfig {
	return config.SignalConfig{
		MinRewardRisk:          2.0,
		StopBufferFraction:     0.25,
		FallbackRewardMultiple: 2.0,
		BiasTierConfidence:     [4]float64{0.90, 0.75, 0.55, 0.0},
		ContributorBonus:       0.05,
		SweepBonus:             0.05,
	}
}

func bullishAssessment(contributors int) mtf.Assessment {
	return mtf.Assessment{
		Symbol:   "US30",
		Bias:     market.Bullish,
		BiasTier: 1,
		ByHorizon: map[market.Horizon]mtf.Findings{
			market.H4: {Horizon: market.H4, Structure: analysis.Structure{Trend: analysis.Uptrend}},
		},
		Candidate: &mtf.Candidate{
			Kind:         mtf.CandidateConfluence,
			Direction:    market.Bullish,
			Upper:        104,
			Lower:        100,
			EntryLevel:   102,
			Invalidation: 100,
			Contributors: contributors,
		},
		At: synthNow,
	}
}

func TestSynthesizeLevels(t *testing.T) {
	s := NewSynthesizer(testSignalConfig(), zerolog.Nop())

	proposal, rejection := s.Synthesize(bullishAssessment(2), 105, false, synthNow)
	if rejection != nil {
		t.Fatalf("unexpected rejection: %+v", rejection)
	}

	// Stop sits a quarter of the range beyond the invalidation bound.
	if proposal.Stop != 99 {
		t.Errorf("stop = %f, want 99", proposal.Stop)
	}
	// No opposing objective exists, so the target projects risk times the
	// configured multiple.
	if proposal.Target != 108 {
		t.Errorf("target = %f, want 108", proposal.Target)
	}
	if proposal.Entry != 102 {
		t.Errorf("entry = %f, want candidate midpoint 102", proposal.Entry)
	}
	if proposal.ID == "" {
		t.Error("proposal missing id")
	}
	if proposal.TimeframeBias["H4"] != string(analysis.Uptrend) {
		t.Errorf("timeframe bias = %v", proposal.TimeframeBias)
	}
}

func TestSynthesizeRewardRiskInclusive(t *testing.T) {
	// Ratio works out to exactly the minimum: the guard is inclusive.
	s := NewSynthesizer(testSignalConfig(), zerolog.Nop())
	proposal, rejection := s.Synthesize(bullishAssessment(2), 105, false, synthNow)
	if rejection != nil {
		t.Fatalf("ratio equal to minimum was rejected: %+v", rejection)
	}
	if proposal.RewardRisk < 2.0 {
		t.Errorf("reward/risk = %f, want >= 2.0", proposal.RewardRisk)
	}
}

func TestSynthesizeRewardRiskBelowMinimumRejected(t *testing.T) {
	cfg := testSignalConfig()
	cfg.FallbackRewardMultiple = 1.999
	s := NewSynthesizer(cfg, zerolog.Nop())

	proposal, rejection := s.Synthesize(bullishAssessment(2), 105, false, synthNow)
	if proposal != nil {
		t.Fatalf("proposal produced at ratio 1.999: %+v", proposal)
	}
	if rejection == nil || rejection.Reason != RejectRewardRisk {
		t.Fatalf("rejection = %+v, want %s", rejection, RejectRewardRisk)
	}
}

func TestSynthesizeNeutralBiasRejected(t *testing.T) {
	s := NewSynthesizer(testSignalConfig(), zerolog.Nop())
	assessment := mtf.Assessment{Symbol: "US30", Bias: market.Neutral, BiasTier: 4}

	proposal, rejection := s.Synthesize(assessment, 105, false, synthNow)
	if proposal != nil {
		t.Fatal("proposal produced on neutral bias")
	}
	if rejection.Reason != RejectNeutralBias {
		t.Errorf("reason = %s, want %s", rejection.Reason, RejectNeutralBias)
	}
}

func TestSynthesizeNoCandidateRejected(t *testing.T) {
	s := NewSynthesizer(testSignalConfig(), zerolog.Nop())
	assessment := bullishAssessment(2)
	assessment.Candidate = nil

	_, rejection := s.Synthesize(assessment, 105, false, synthNow)
	if rejection == nil || rejection.Reason != RejectNoCandidate {
		t.Fatalf("rejection = %+v, want %s", rejection, RejectNoCandidate)
	}
}

func TestSynthesizeTargetPicksNearestOpposingObjective(t *testing.T) {
	cfg := testSignalConfig()
	cfg.MinRewardRisk = 1.0
	s := NewSynthesizer(cfg, zerolog.Nop())

	assessment := bullishAssessment(2)
	assessment.ByHorizon = map[market.Horizon]mtf.Findings{
		market.H1: {
			Horizon: market.H1,
			Zones: []analysis.Zone{{
				Direction: market.Bearish,
				Upper:     107,
				Lower:     105,
				Valid:     true,
			}},
			Levels: []analysis.LiquidityLevel{{Price: 110, Side: analysis.UpperSide}},
		},
	}

	proposal, rejection := s.Synthesize(assessment, 103, false, synthNow)
	if rejection != nil {
		t.Fatalf("unexpected rejection: %+v", rejection)
	}
	// The opposing zone's near edge at 105 is closer than the level at 110.
	if proposal.Target != 105 {
		t.Errorf("target = %f, want 105", proposal.Target)
	}
}

func TestSynthesizeOrderKinds(t *testing.T) {
	cfg := testSignalConfig()
	cfg.MinRewardRisk = 0.5
	s := NewSynthesizer(cfg, zerolog.Nop())

	// Bullish entry below price: pullback limit order.
	p, rej := s.Synthesize(bullishAssessment(2), 105, false, synthNow)
	if rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if p.OrderKind != BuyLimit {
		t.Errorf("order kind = %s, want BUY_LIMIT", p.OrderKind)
	}

	// Bullish entry above price: breakout stop order.
	p, rej = s.Synthesize(bullishAssessment(2), 98, false, synthNow)
	if rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if p.OrderKind != BuyStop {
		t.Errorf("order kind = %s, want BUY_STOP", p.OrderKind)
	}

	bearish := bullishAssessment(2)
	bearish.Bias = market.Bearish
	bearish.Candidate.Direction = market.Bearish
	bearish.Candidate.Invalidation = 104

	p, rej = s.Synthesize(bearish, 98, false, synthNow)
	if rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if p.OrderKind != SellLimit {
		t.Errorf("order kind = %s, want SELL_LIMIT", p.OrderKind)
	}

	p, rej = s.Synthesize(bearish, 110, false, synthNow)
	if rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if p.OrderKind != SellStop {
		t.Errorf("order kind = %s, want SELL_STOP", p.OrderKind)
	}
}

func TestSynthesizeRationaleClassifiesEntry(t *testing.T) {
	cfg := testSignalConfig()
	cfg.MinRewardRisk = 0.5
	s := NewSynthesizer(cfg, zerolog.Nop())

	hasLine := func(p *Proposal, substr string) bool {
		for _, line := range p.Rationale {
			if strings.Contains(line, substr) {
				return true
			}
		}
		return false
	}

	// Entry 102 below price 105: discount territory.
	p, rej := s.Synthesize(bullishAssessment(2), 105, false, synthNow)
	if rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if !hasLine(p, "discount") {
		t.Errorf("rationale %v missing discount classification", p.Rationale)
	}

	// Entry 102 above price 98: premium territory.
	p, rej = s.Synthesize(bullishAssessment(2), 98, false, synthNow)
	if rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if !hasLine(p, "premium") {
		t.Errorf("rationale %v missing premium classification", p.Rationale)
	}
}

func TestSynthesizeRationaleNotesRetest(t *testing.T) {
	cfg := testSignalConfig()
	cfg.MinRewardRisk = 0.5
	s := NewSynthesizer(cfg, zerolog.Nop())

	assessment := bullishAssessment(2)
	assessment.ByHorizon = map[market.Horizon]mtf.Findings{
		market.M15: {
			Horizon: market.M15,
			Retests: []analysis.Retest{{
				Zone:  analysis.Zone{Direction: market.Bullish, Upper: 103, Lower: 101, Valid: true},
				Price: 102,
				At:    synthNow,
			}},
		},
	}

	p, rej := s.Synthesize(assessment, 105, false, synthNow)
	if rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	found := false
	for _, line := range p.Rationale {
		if strings.Contains(line, "retesting") {
			found = true
		}
	}
	if !found {
		t.Errorf("rationale %v missing zone retest note", p.Rationale)
	}

	// An opposing retest is not in favor and stays out of the rationale.
	assessment.ByHorizon[market.M15].Retests[0].Zone.Direction = market.Bearish
	p, rej = s.Synthesize(assessment, 105, false, synthNow)
	if rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	for _, line := range p.Rationale {
		if strings.Contains(line, "retesting") {
			t.Errorf("opposing retest surfaced in rationale: %v", p.Rationale)
		}
	}
}

func TestSynthesizeConfidence(t *testing.T) {
	s := NewSynthesizer(testSignalConfig(), zerolog.Nop())

	// Tier 1 base, one extra contributor, favorable sweep: 0.9 + 0.05 + 0.05.
	proposal, rejection := s.Synthesize(bullishAssessment(3), 105, true, synthNow)
	if rejection != nil {
		t.Fatalf("unexpected rejection: %+v", rejection)
	}
	if math.Abs(proposal.Confidence-1.0) > 1e-9 {
		t.Errorf("confidence = %f, want 1.0", proposal.Confidence)
	}

	// Two contributors, no sweep: tier base only.
	proposal, _ = s.Synthesize(bullishAssessment(2), 105, false, synthNow)
	if math.Abs(proposal.Confidence-0.90) > 1e-9 {
		t.Errorf("confidence = %f, want 0.90", proposal.Confidence)
	}
}
