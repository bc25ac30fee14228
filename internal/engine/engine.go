// Package engine runs the evaluation loop: fetch candles per horizon, run
// the detectors, merge findings across horizons, and synthesize proposals.
package engine

import (
	"context"
	"sync"
	"time"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/analysis"
	"smc-signal-engine/internal/cache"
	"smc-signal-engine/internal/events"
	"smc-signal-engine/internal/feed"
	"smc-signal-engine/internal/hours"
	"smc-signal-engine/internal/market"
	"smc-signal-engine/internal/mtf"
	"smc-signal-engine/internal/signal"
	"smc-signal-engine/internal/symbols"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	skipMarketClosed    = "MARKET_CLOSED"
	skipUnresolved      = "SYMBOL_UNRESOLVED"
	skipDataUnavailable = "DATA_UNAVAILABLE"

	recentProposalCap = 100
	sweepFavorWindow  = 4 * time.Hour
)

// Engine owns the periodic evaluation cycle across all configured symbols.
type Engine struct {
	cfg         *config.Config
	source      feed.CandleSource
	calendar    *hours.Calendar
	resolver    *symbols.Resolver
	snapshots   *mtf.SnapshotCache
	coordinator *mtf.Coordinator
	synthesizer *signal.Synthesizer
	fills       *cache.FillStore
	sink        signal.Sink // optional
	bus         *events.EventBus
	logger      zerolog.Logger

	gaps      *analysis.GapDetector
	zones     *analysis.ZoneDetector
	structure *analysis.StructureAnalyzer
	liquidity *analysis.LiquidityAnalyzer

	mu          sync.RWMutex
	running     bool
	lastCycle   time.Time
	lastCycleID string
	sweepLogs   map[string]*analysis.SweepLog
	lastBias    map[string]market.Direction
	assessments map[string]mtf.Assessment
	proposals   []signal.Proposal

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New wires an engine from its collaborators. sink may be nil; accepted
// proposals are then only published on the bus.
func New(cfg *config.Config, source feed.CandleSource, calendar *hours.Calendar, resolver *symbols.Resolver, fills *cache.FillStore, sink signal.Sink, bus *events.EventBus, logger zerolog.Logger) *Engine {
	log := logger.With().Str("component", "engine").Logger()
	dc := cfg.DetectorConfig

	return &Engine{
		cfg:         cfg,
		source:      source,
		calendar:    calendar,
		resolver:    resolver,
		snapshots:   mtf.NewSnapshotCache(cfg.EngineConfig.MaxStalenessDuration()),
		coordinator: mtf.NewCoordinator(cfg.SignalConfig, log),
		synthesizer: signal.NewSynthesizer(cfg.SignalConfig, log),
		fills:       fills,
		sink:        sink,
		bus:         bus,
		logger:      log,
		gaps:        analysis.NewGapDetector(log),
		zones:       analysis.NewZoneDetector(dc.ZoneRunLength, dc.ZoneMinMove, log),
		structure:   analysis.NewStructureAnalyzer(dc.SwingWindow),
		liquidity:   analysis.NewLiquidityAnalyzer(dc.LiquidityLookback, dc.SwingWindow, dc.SweepTolerance, dc.TouchTolerance),
		sweepLogs:   make(map[string]*analysis.SweepLog),
		lastBias:    make(map[string]market.Direction),
		assessments: make(map[string]mtf.Assessment),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the evaluation loop. It returns immediately; Stop shuts the
// loop down and waits for in-flight work.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.bus.Publish(events.Event{Type: events.EventEngineStarted, Data: map[string]interface{}{
		"symbols":  e.cfg.EngineConfig.Symbols,
		"interval": e.cfg.EngineConfig.ScanInterval,
	}})
	e.logger.Info().
		Strs("symbols", e.cfg.EngineConfig.Symbols).
		Int("interval_seconds", e.cfg.EngineConfig.ScanInterval).
		Msg("engine started")

	e.wg.Add(1)
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(time.Duration(e.cfg.EngineConfig.ScanInterval) * time.Second)
	defer ticker.Stop()

	e.evaluateAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.evaluateAll(ctx)
		}
	}
}

// Stop shuts down the loop and waits for workers to drain.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()

	e.bus.Publish(events.Event{Type: events.EventEngineStopped, Data: map[string]interface{}{}})
	e.logger.Info().Msg("engine stopped")
}

// evaluateAll fans symbols out over a bounded worker pool. A panic or error
// on one symbol never blocks the rest of the cycle.
func (e *Engine) evaluateAll(ctx context.Context) {
	started := time.Now()
	cycleID := uuid.New().String()

	listing, err := e.source.Listing(ctx)
	if err != nil {
		e.bus.PublishError("engine", "feed listing unavailable", err)
		return
	}

	jobs := make(chan string, len(e.cfg.EngineConfig.Symbols))
	var wg sync.WaitGroup

	workers := e.cfg.EngineConfig.WorkerCount
	if workers > len(e.cfg.EngineConfig.Symbols) {
		workers = len(e.cfg.EngineConfig.Symbols)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				e.evaluateSymbol(ctx, symbol, listing, time.Now())
			}
		}()
	}

	for _, symbol := range e.cfg.EngineConfig.Symbols {
		jobs <- symbol
	}
	close(jobs)
	wg.Wait()

	e.mu.Lock()
	e.lastCycle = time.Now()
	e.lastCycleID = cycleID
	e.mu.Unlock()

	e.logger.Debug().
		Str("cycle_id", cycleID).
		Dur("elapsed", time.Since(started)).
		Int("symbols", len(e.cfg.EngineConfig.Symbols)).
		Msg("cycle complete")
}

// evaluateSymbol runs one symbol through the full pipeline: session gate,
// resolution, horizon refresh, assessment, synthesis.
func (e *Engine) evaluateSymbol(ctx context.Context, logical string, listing []string, now time.Time) {
	if !e.calendar.IsOpen(logical, now) {
		e.bus.PublishCycleSkipped(logical, skipMarketClosed)
		return
	}

	feedName, err := e.resolver.Resolve(logical, listing)
	if err != nil {
		e.bus.PublishCycleSkipped(logical, skipUnresolved)
		e.logger.Warn().Err(err).Str("symbol", logical).Msg("symbol resolution failed")
		return
	}

	e.refreshHorizons(ctx, logical, feedName, now)

	snapshot := e.snapshots.Snapshot(logical, now)
	if len(snapshot) == 0 {
		e.bus.PublishCycleSkipped(logical, skipDataUnavailable)
		return
	}

	assessment := e.coordinator.Assess(logical, snapshot, now)
	e.trackBias(logical, assessment)

	e.mu.Lock()
	e.assessments[logical] = assessment
	e.mu.Unlock()

	price := lastClose(snapshot)
	sweepInFavor := e.sweepLog(logical).RecentInFavor(assessment.Bias, now.Add(-sweepFavorWindow))

	proposal, rejection := e.synthesizer.Synthesize(assessment, price, sweepInFavor, now)
	if rejection != nil {
		e.bus.PublishSignalRejected(rejection.Symbol, rejection.Reason, rejection.Detail)
		return
	}

	e.recordProposal(*proposal)
	e.bus.PublishSignalGenerated(proposal.ID, proposal.Symbol, string(proposal.Direction),
		string(proposal.OrderKind), proposal.Entry, proposal.Stop, proposal.Target, proposal.Confidence)

	if e.sink != nil {
		if err := e.sink.Submit(ctx, proposal); err != nil {
			e.bus.PublishError("engine", "proposal sink rejected submission", err)
		}
	}
}

// refreshHorizons recomputes detector findings for every horizon whose cache
// entry has aged past its cadence. Horizons refresh concurrently; each
// failure degrades that horizon to unavailable without failing the cycle.
func (e *Engine) refreshHorizons(ctx context.Context, logical, feedName string, now time.Time) {
	var wg sync.WaitGroup
	for _, horizon := range market.Horizons {
		if !e.snapshots.NeedsRefresh(logical, horizon, now) {
			continue
		}
		wg.Add(1)
		go func(h market.Horizon) {
			defer wg.Done()
			findings, err := e.analyzeHorizon(ctx, logical, feedName, h, now)
			if err != nil {
				e.logger.Warn().Err(err).
					Str("symbol", logical).
					Str("horizon", h.String()).
					Msg("horizon refresh failed")
				return
			}
			e.snapshots.Put(logical, findings, now)
		}(horizon)
	}
	wg.Wait()
}

// analyzeHorizon fetches candles and runs every detector for one horizon.
func (e *Engine) analyzeHorizon(ctx context.Context, logical, feedName string, horizon market.Horizon, now time.Time) (mtf.Findings, error) {
	candles, err := e.source.Candles(ctx, feedName, horizon, e.cfg.EngineConfig.CandleCount)
	if err != nil {
		return mtf.Findings{}, err
	}
	if err := market.ValidateSeries(candles); err != nil {
		return mtf.Findings{}, err
	}
	if len(candles) == 0 {
		return mtf.Findings{Horizon: horizon, At: now}, nil
	}

	gaps := e.gaps.Detect(candles, horizon)
	gaps = e.fills.Apply(gaps, e.fills.Load(ctx, logical, horizon))
	gaps = e.gaps.MarkFills(gaps, candles)
	gaps = e.gaps.Prune(gaps, now, e.cfg.DetectorConfig.GapRetention())
	if err := e.fills.Save(ctx, logical, horizon, gaps); err != nil {
		e.logger.Debug().Err(err).Str("symbol", logical).Msg("fill state not persisted")
	}
	e.publishFreshGaps(logical, horizon, gaps)

	zones := e.zones.Detect(candles, horizon)
	zones, flips := e.zones.Invalidate(zones, candles)
	for _, flip := range flips {
		e.bus.PublishZoneFlipped(logical, horizon.String(), string(flip.Direction), flip.Upper, flip.Lower)
	}

	latestClose := candles[len(candles)-1].Close
	retests := e.zones.Retests(zones, latestClose, now)
	for _, r := range retests {
		e.bus.PublishZoneRetest(logical, horizon.String(), string(r.Zone.Direction), r.Zone.Upper, r.Zone.Lower, r.Price)
	}

	structure := e.structure.Analyze(candles)

	levels := e.liquidity.Levels(candles)
	levels, sweeps := e.liquidity.DetectSweeps(candles, levels)
	if len(sweeps) > 0 {
		log := e.sweepLog(logical)
		before := len(log.Recent(0))
		log.Append(sweeps...)
		if len(log.Recent(0)) > before {
			for _, s := range sweeps {
				e.bus.PublishSweepDetected(logical, horizon.String(), string(s.Direction), s.Level.Price)
			}
		}
	}

	return mtf.Findings{
		Horizon:   horizon,
		Gaps:      gaps,
		Zones:     zones,
		Retests:   retests,
		Structure: structure,
		Levels:    levels,
		Sweeps:    sweeps,
		LastClose: latestClose,
		At:        now,
	}, nil
}

// publishFreshGaps emits events for unfilled gaps created within the last
// bar interval, so each gap is announced roughly once.
func (e *Engine) publishFreshGaps(logical string, horizon market.Horizon, gaps []analysis.Gap) {
	cutoff := time.Now().Add(-horizon.Duration())
	for _, g := range gaps {
		if !g.Filled && g.CreatedAt.After(cutoff) {
			e.bus.PublishGapDetected(logical, horizon.String(), string(g.Direction), g.Upper, g.Lower)
		}
	}
}

func (e *Engine) trackBias(symbol string, assessment mtf.Assessment) {
	e.mu.Lock()
	previous, seen := e.lastBias[symbol]
	e.lastBias[symbol] = assessment.Bias
	e.mu.Unlock()

	if seen && previous != assessment.Bias {
		e.bus.PublishBiasChanged(symbol, string(previous), string(assessment.Bias), assessment.BiasTier)
	}
}

func (e *Engine) sweepLog(symbol string) *analysis.SweepLog {
	e.mu.Lock()
	defer e.mu.Unlock()

	log, ok := e.sweepLogs[symbol]
	if !ok {
		log = analysis.NewSweepLog(e.cfg.DetectorConfig.SweepLogCap)
		e.sweepLogs[symbol] = log
	}
	return log
}

func (e *Engine) recordProposal(p signal.Proposal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.proposals = append(e.proposals, p)
	if len(e.proposals) > recentProposalCap {
		e.proposals = e.proposals[len(e.proposals)-recentProposalCap:]
	}
}

// lastClose is the latest close of the narrowest available horizon.
func lastClose(snapshot map[market.Horizon]mtf.Findings) float64 {
	for i := len(market.Horizons) - 1; i >= 0; i-- {
		if f, ok := snapshot[market.Horizons[i]]; ok {
			return f.LastClose
		}
	}
	return 0
}

// Status is the engine state exposed by the diagnostic API.
type Status struct {
	Running     bool      `json:"running"`
	Symbols     []string  `json:"symbols"`
	LastCycle   time.Time `json:"last_cycle"`
	LastCycleID string    `json:"last_cycle_id"`
	Proposals   int       `json:"proposals"`
}

// GetStatus returns a snapshot of engine state.
func (e *Engine) GetStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Status{
		Running:     e.running,
		Symbols:     e.cfg.EngineConfig.Symbols,
		LastCycle:   e.lastCycle,
		LastCycleID: e.lastCycleID,
		Proposals:   len(e.proposals),
	}
}

// RecentProposals returns up to n most recent proposals, newest last.
func (e *Engine) RecentProposals(n int) []signal.Proposal {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if n <= 0 || n > len(e.proposals) {
		n = len(e.proposals)
	}
	out := make([]signal.Proposal, n)
	copy(out, e.proposals[len(e.proposals)-n:])
	return out
}

// Assessment returns the latest assessment for a symbol.
func (e *Engine) Assessment(symbol string) (mtf.Assessment, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.assessments[symbol]
	return a, ok
}
