package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/api"
	"smc-signal-engine/internal/cache"
	"smc-signal-engine/internal/engine"
	"smc-signal-engine/internal/events"
	"smc-signal-engine/internal/feed"
	"smc-signal-engine/internal/hours"
	"smc-signal-engine/internal/market"
	"smc-signal-engine/internal/symbols"
	"smc-signal-engine/internal/telemetry"
)

func main() {
	sampleConfig := flag.Bool("sample-config", false, "write config.sample.json and exit")
	dataDir := flag.String("data", "", "directory of replay candle files (SYMBOL_HORIZON.json)")
	flag.Parse()

	if *sampleConfig {
		if err := config.GenerateSampleConfig("config.sample.json"); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote config.sample.json")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.LoggingConfig)
	logger.Info().Msg("starting signal engine")

	bus := events.NewEventBus()
	telemetry.AttachSink(bus, logger)

	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis disabled, fill tracking is memory only")
			cacheService = nil
		}
	}
	fills := cache.NewFillStore(cacheService, 2*cfg.DetectorConfig.GapRetention())

	calendar, err := hours.NewCalendar(cfg.SessionConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid session configuration")
	}
	resolver := symbols.NewResolver(cfg.SymbolConfig)

	source := feed.NewReplaySource()
	if *dataDir != "" {
		if err := loadReplayData(source, *dataDir); err != nil {
			logger.Fatal().Err(err).Str("dir", *dataDir).Msg("failed to load replay data")
		}
	}

	eng := engine.New(cfg, source, calendar, resolver, fills, nil, bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng.Start(ctx)

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		var stats func() cache.Stats
		if cacheService != nil {
			stats = cacheService.GetStats
		}
		server = api.NewServer(cfg.ServerConfig, eng, bus, stats, logger)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to start api server")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	cancel()
	eng.Stop()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("api server shutdown failed")
		}
	}

	if cacheService != nil {
		if err := cacheService.Close(); err != nil {
			logger.Warn().Err(err).Msg("redis close failed")
		}
	}

	logger.Info().Msg("shutdown complete")
}

// loadReplayData loads every SYMBOL_HORIZON.json file in a directory into the
// replay source.
func loadReplayData(source *feed.ReplaySource, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	loaded := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		base := strings.TrimSuffix(name, ".json")
		idx := strings.LastIndex(base, "_")
		if idx <= 0 {
			continue
		}
		symbol := base[:idx]
		horizon, err := market.ParseHorizon(base[idx+1:])
		if err != nil {
			continue
		}
		if err := source.LoadFile(symbol, horizon, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("loading %s: %w", name, err)
		}
		loaded++
	}

	if loaded == 0 {
		return fmt.Errorf("no candle files found in %s", dir)
	}
	return nil
}
