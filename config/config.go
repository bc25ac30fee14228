package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	EngineConfig   EngineConfig           `json:"engine"`
	DetectorConfig DetectorConfig         `json:"detectors"`
	SignalConfig   SignalConfig           `json:"signals"`
	SessionConfig  map[string]SessionSpec `json:"sessions"`
	SymbolConfig   SymbolConfig           `json:"symbols"`
	ServerConfig   ServerConfig           `json:"server"`
	RedisConfig    RedisConfig            `json:"redis"`
	LoggingConfig  LoggingConfig          `json:"logging"`
}

// EngineConfig holds the evaluation loop configuration.
type EngineConfig struct {
	ScanInterval int      `json:"scan_interval"` // Seconds between evaluation cycles
	WorkerCount  int      `json:"worker_count"`  // Concurrent symbol workers
	CandleCount  int      `json:"candle_count"`  // Candles requested per horizon
	Symbols      []string `json:"symbols"`       // Logical symbol names to evaluate
	MaxStaleness int      `json:"max_staleness"` // Seconds before a cached horizon is unavailable
}

// DetectorConfig holds per-detector thresholds. The run minimum move and the
// sweep tolerance are required inputs, expressed in price units of the
// instrument being analyzed.
type DetectorConfig struct {
	GapRetentionHours int     `json:"gap_retention_hours"` // Filled gaps kept for audit this long
	ZoneRunLength     int     `json:"zone_run_length"`     // Consecutive candles forming an impulsive run
	ZoneMinMove       float64 `json:"zone_min_move"`       // Minimum cumulative run move (price units)
	SwingWindow       int     `json:"swing_window"`        // Candles on each side of a swing extremum
	LiquidityLookback int     `json:"liquidity_lookback"`  // Candles scanned for liquidity levels
	SweepTolerance    float64 `json:"sweep_tolerance"`     // Breach beyond a level to count as a sweep (price units)
	TouchTolerance    float64 `json:"touch_tolerance"`     // Proximity counting as a touch (price units)
	SweepLogCap       int     `json:"sweep_log_cap"`       // Max retained sweeps per symbol
}

// SignalConfig holds synthesis thresholds.
type SignalConfig struct {
	MinRewardRisk          float64    `json:"min_reward_risk"`          // Inclusive minimum reward/risk ratio
	StopBufferFraction     float64    `json:"stop_buffer_fraction"`     // Stop distance beyond invalidation, as fraction of candidate range
	FallbackRewardMultiple float64    `json:"fallback_reward_multiple"` // Target projection when no objective exists
	BiasTierConfidence     [4]float64 `json:"bias_tier_confidence"`     // Base confidence per bias tier (1-4)
	ContributorBonus       float64    `json:"contributor_bonus"`        // Added per confluence contributor beyond two
	SweepBonus             float64    `json:"sweep_bonus"`              // Added for a recent favorable sweep
	ConfluenceBase         float64    `json:"confluence_base"`          // Confidence of a two-source confluence
	ConfluenceStep         float64    `json:"confluence_step"`          // Added per confluence source beyond two
	ConfluenceLimit        float64    `json:"confluence_limit"`         // Confluence confidence cap
}

// SessionSpec describes a symbol's daily trading session (GMT). Open after
// close means the session crosses midnight.
type SessionSpec struct {
	Open        string `json:"open"`         // "HH:MM"
	Close       string `json:"close"`        // "HH:MM"
	BreakStart  string `json:"break_start"`  // Optional intraday break
	BreakEnd    string `json:"break_end"`
	TradingDays []int  `json:"trading_days"` // 0=Monday .. 6=Sunday
}

// SymbolConfig maps logical symbol names to feed-specific spelling variants.
type SymbolConfig struct {
	Variations map[string][]string `json:"variations"`
}

// ServerConfig holds the diagnostic HTTP server configuration.
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// RedisConfig holds Redis configuration for the gap fill-state cache.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Output string `json:"output"` // stdout, stderr, or file path
	Pretty bool   `json:"pretty"` // Console writer instead of JSON
}

func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.EngineConfig.ScanInterval <= 0 {
		cfg.EngineConfig.ScanInterval = 60
	}
	if cfg.EngineConfig.WorkerCount <= 0 {
		cfg.EngineConfig.WorkerCount = 4
	}
	if cfg.EngineConfig.CandleCount <= 0 {
		cfg.EngineConfig.CandleCount = 100
	}
	if cfg.EngineConfig.MaxStaleness <= 0 {
		cfg.EngineConfig.MaxStaleness = 3600
	}

	if cfg.DetectorConfig.GapRetentionHours <= 0 {
		cfg.DetectorConfig.GapRetentionHours = 24
	}
	if cfg.DetectorConfig.ZoneRunLength <= 0 {
		cfg.DetectorConfig.ZoneRunLength = 3
	}
	if cfg.DetectorConfig.ZoneMinMove <= 0 {
		cfg.DetectorConfig.ZoneMinMove = 20
	}
	if cfg.DetectorConfig.SwingWindow <= 0 {
		cfg.DetectorConfig.SwingWindow = 2
	}
	if cfg.DetectorConfig.LiquidityLookback <= 0 {
		cfg.DetectorConfig.LiquidityLookback = 50
	}
	if cfg.DetectorConfig.SweepTolerance <= 0 {
		cfg.DetectorConfig.SweepTolerance = 10
	}
	if cfg.DetectorConfig.TouchTolerance <= 0 {
		cfg.DetectorConfig.TouchTolerance = 5
	}
	if cfg.DetectorConfig.SweepLogCap <= 0 {
		cfg.DetectorConfig.SweepLogCap = 50
	}

	if cfg.SignalConfig.MinRewardRisk <= 0 {
		cfg.SignalConfig.MinRewardRisk = 2.0
	}
	if cfg.SignalConfig.StopBufferFraction <= 0 {
		cfg.SignalConfig.StopBufferFraction = 0.1
	}
	if cfg.SignalConfig.FallbackRewardMultiple <= 0 {
		cfg.SignalConfig.FallbackRewardMultiple = 2.5
	}
	if cfg.SignalConfig.BiasTierConfidence == [4]float64{} {
		cfg.SignalConfig.BiasTierConfidence = [4]float64{0.90, 0.75, 0.55, 0.0}
	}
	if cfg.SignalConfig.ContributorBonus <= 0 {
		cfg.SignalConfig.ContributorBonus = 0.05
	}
	if cfg.SignalConfig.SweepBonus <= 0 {
		cfg.SignalConfig.SweepBonus = 0.05
	}
	if cfg.SignalConfig.ConfluenceBase <= 0 {
		cfg.SignalConfig.ConfluenceBase = 0.80
	}
	if cfg.SignalConfig.ConfluenceStep <= 0 {
		cfg.SignalConfig.ConfluenceStep = 0.05
	}
	if cfg.SignalConfig.ConfluenceLimit <= 0 {
		cfg.SignalConfig.ConfluenceLimit = 0.95
	}

	if cfg.ServerConfig.Port <= 0 {
		cfg.ServerConfig.Port = 8090
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ReadTimeout <= 0 {
		cfg.ServerConfig.ReadTimeout = 30
	}
	if cfg.ServerConfig.WriteTimeout <= 0 {
		cfg.ServerConfig.WriteTimeout = 30
	}
	if cfg.ServerConfig.ShutdownTimeout <= 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.EngineConfig.ScanInterval = getEnvIntOrDefault("ENGINE_SCAN_INTERVAL", cfg.EngineConfig.ScanInterval)
	cfg.EngineConfig.WorkerCount = getEnvIntOrDefault("ENGINE_WORKER_COUNT", cfg.EngineConfig.WorkerCount)
	cfg.EngineConfig.CandleCount = getEnvIntOrDefault("ENGINE_CANDLE_COUNT", cfg.EngineConfig.CandleCount)

	cfg.SignalConfig.MinRewardRisk = getEnvFloatOrDefault("SIGNAL_MIN_REWARD_RISK", cfg.SignalConfig.MinRewardRisk)

	cfg.ServerConfig.Enabled = getEnvOrDefault("SERVER_ENABLED", boolString(cfg.ServerConfig.Enabled)) == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.RedisConfig.PoolSize)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", firstNonEmpty(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", firstNonEmpty(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.Pretty = getEnvOrDefault("LOG_PRETTY", boolString(cfg.LoggingConfig.Pretty)) == "true"
}

// MaxStalenessDuration returns the staleness bound as a duration.
func (c EngineConfig) MaxStalenessDuration() time.Duration {
	return time.Duration(c.MaxStaleness) * time.Second
}

// GapRetention returns how long filled gaps are retained for audit.
func (c DetectorConfig) GapRetention() time.Duration {
	return time.Duration(c.GapRetentionHours) * time.Hour
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GenerateSampleConfig creates a sample configuration file.
func GenerateSampleConfig(filename string) error {
	config := Config{
		EngineConfig: EngineConfig{
			ScanInterval: 60,
			WorkerCount:  4,
			CandleCount:  100,
			Symbols:      []string{"US30", "XAUUSD", "NAS100"},
			MaxStaleness: 3600,
		},
		DetectorConfig: DetectorConfig{
			GapRetentionHours: 24,
			ZoneRunLength:     3,
			ZoneMinMove:       20,
			SwingWindow:       2,
			LiquidityLookback: 50,
			SweepTolerance:    10,
			TouchTolerance:    5,
			SweepLogCap:       50,
		},
		SignalConfig: SignalConfig{
			MinRewardRisk:          2.0,
			StopBufferFraction:     0.1,
			FallbackRewardMultiple: 2.5,
			BiasTierConfidence:     [4]float64{0.90, 0.75, 0.55, 0.0},
			ContributorBonus:       0.05,
			SweepBonus:             0.05,
			ConfluenceBase:         0.80,
			ConfluenceStep:         0.05,
			ConfluenceLimit:        0.95,
		},
		SessionConfig: map[string]SessionSpec{
			"US30":   {Open: "00:00", Close: "23:00", BreakStart: "21:00", BreakEnd: "22:00", TradingDays: []int{0, 1, 2, 3, 4, 6}},
			"XAUUSD": {Open: "23:00", Close: "22:00", TradingDays: []int{0, 1, 2, 3, 4, 6}},
		},
		SymbolConfig: SymbolConfig{
			Variations: map[string][]string{
				"US30":   {"US30", "US30Cash", "DJ30", "DOW30"},
				"XAUUSD": {"XAUUSD", "GOLD", "XAUUSDm"},
				"NAS100": {"NAS100", "USTEC", "US100", "NDX100"},
			},
		},
		ServerConfig: ServerConfig{
			Enabled:         true,
			Port:            8090,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		RedisConfig: RedisConfig{
			Enabled:  false,
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		LoggingConfig: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			Pretty: false,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
