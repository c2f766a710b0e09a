package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/gateway"
	"github.com/taleforge/sceneengine/internal/guard"
	"github.com/taleforge/sceneengine/internal/workflow"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SCENEENGINE_"

// LogConfig controls log output.
type LogConfig struct {
	Format string `yaml:"format" env:"FORMAT"`
	Level  string `yaml:"level" env:"LEVEL"`
}

// NarratorConfig points at the OpenAI-compatible narrator endpoint.
type NarratorConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Model   string        `yaml:"model" env:"MODEL"`
	Tier    string        `yaml:"tier" env:"TIER"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// BreakerConfig tunes the per-campaign circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
}

// CacheConfig tunes the per-campaign response cache.
type CacheConfig struct {
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
	Capacity int           `yaml:"capacity" env:"CAPACITY"`
}

// LedgerConfig tunes the per-campaign cost ledger.
type LedgerConfig struct {
	Window       int     `yaml:"window" env:"WINDOW"`
	BudgetCapUSD float64 `yaml:"budget_cap_usd" env:"BUDGET_CAP_USD"`
	WarnRatio    float64 `yaml:"warn_ratio" env:"WARN_RATIO"`
	HaltRatio    float64 `yaml:"halt_ratio" env:"HALT_RATIO"`
}

// ResolutionConfig tunes the orchestrator and recovery supervisor.
type ResolutionConfig struct {
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
	HealthEvery      int           `yaml:"health_every" env:"HEALTH_EVERY"`
	RecoveryInterval time.Duration `yaml:"recovery_interval" env:"RECOVERY_INTERVAL"`
	StuckGrace       time.Duration `yaml:"stuck_grace" env:"STUCK_GRACE"`
	RevertAttempts   int           `yaml:"revert_attempts" env:"REVERT_ATTEMPTS"`
	RecentEvents     int           `yaml:"recent_events" env:"RECENT_EVENTS"`
}

// RateLimitConfig caps request rates at the HTTP surface. Zero disables a limit.
type RateLimitConfig struct {
	SubmitsPerMinute  int `yaml:"submits_per_minute" env:"SUBMITS_PER_MINUTE"`
	ResolvesPerMinute int `yaml:"resolves_per_minute" env:"RESOLVES_PER_MINUTE"`
}

// Config holds the engine's runtime configuration.
type Config struct {
	DBPath     string                     `yaml:"db_path" env:"DB_PATH"`
	ListenAddr string                     `yaml:"listen_addr" env:"LISTEN_ADDR"`
	Log        LogConfig                  `yaml:"log" envPrefix:"LOG_"`
	Narrator   NarratorConfig             `yaml:"narrator" envPrefix:"NARRATOR_"`
	Pricing    map[string]gateway.Pricing `yaml:"pricing"`
	Breaker    BreakerConfig              `yaml:"breaker" envPrefix:"BREAKER_"`
	Cache      CacheConfig                `yaml:"cache" envPrefix:"CACHE_"`
	Ledger     LedgerConfig               `yaml:"ledger" envPrefix:"LEDGER_"`
	Resolution ResolutionConfig           `yaml:"resolution" envPrefix:"RESOLUTION_"`
	RateLimit  RateLimitConfig            `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

// Load reads a YAML config file, applies SCENEENGINE_* environment
// overrides and defaults, and validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return nil, err
		}
	}
	return finish(&cfg)
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewEngineError(domain.ErrConfigInvalid, fmt.Sprintf("parse config YAML: %v", err))
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, domain.NewEngineError(domain.ErrConfigInvalid, fmt.Sprintf("parse environment: %v", err))
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "sceneengine.db"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":9800"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Narrator.Tier == "" {
		c.Narrator.Tier = "default"
	}
	if c.Narrator.Timeout == 0 {
		c.Narrator.Timeout = 45 * time.Second
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 3
	}
	if c.Breaker.ResetTimeout == 0 {
		c.Breaker.ResetTimeout = 60 * time.Second
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 60 * time.Minute
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = 100
	}
	if c.Ledger.Window == 0 {
		c.Ledger.Window = 50
	}
	if c.Ledger.WarnRatio == 0 {
		c.Ledger.WarnRatio = 0.8
	}
	if c.Ledger.HaltRatio == 0 {
		c.Ledger.HaltRatio = 1.0
	}
	if c.Resolution.Timeout == 0 {
		c.Resolution.Timeout = 60 * time.Second
	}
	if c.Resolution.HealthEvery == 0 {
		c.Resolution.HealthEvery = 5
	}
	if c.Resolution.RecoveryInterval == 0 {
		c.Resolution.RecoveryInterval = 30 * time.Second
	}
	if c.Resolution.StuckGrace == 0 {
		c.Resolution.StuckGrace = 5 * time.Second
	}
	if c.Resolution.RevertAttempts == 0 {
		c.Resolution.RevertAttempts = 3
	}
	if c.Resolution.RecentEvents == 0 {
		c.Resolution.RecentEvents = 5
	}
}

func (c *Config) validate() error {
	var problems []string

	switch c.Log.Format {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}
	if c.Narrator.Model == "" {
		problems = append(problems, "narrator.model is required")
	}
	if c.Breaker.FailureThreshold < 1 {
		problems = append(problems, "breaker.failure_threshold must be at least 1")
	}
	if c.Breaker.ResetTimeout < 0 {
		problems = append(problems, "breaker.reset_timeout must not be negative")
	}
	if c.Cache.Capacity < 1 {
		problems = append(problems, "cache.capacity must be at least 1")
	}
	if c.Cache.TTL < 0 {
		problems = append(problems, "cache.ttl must not be negative")
	}
	if c.Ledger.Window < 1 {
		problems = append(problems, "ledger.window must be at least 1")
	}
	if c.Ledger.BudgetCapUSD < 0 {
		problems = append(problems, "ledger.budget_cap_usd must not be negative")
	}
	if c.Ledger.WarnRatio <= 0 || c.Ledger.HaltRatio <= 0 || c.Ledger.WarnRatio > c.Ledger.HaltRatio {
		problems = append(problems, "ledger ratios must satisfy 0 < warn_ratio <= halt_ratio")
	}
	if c.Resolution.Timeout <= 0 {
		problems = append(problems, "resolution.timeout must be positive")
	}
	if c.Resolution.HealthEvery < 1 {
		problems = append(problems, "resolution.health_every must be at least 1")
	}
	if c.Resolution.RevertAttempts < 1 {
		problems = append(problems, "resolution.revert_attempts must be at least 1")
	}
	if c.Resolution.StuckGrace < 0 || c.Resolution.RecoveryInterval <= 0 {
		problems = append(problems, "resolution.recovery_interval must be positive and stuck_grace not negative")
	}
	if c.RateLimit.SubmitsPerMinute < 0 || c.RateLimit.ResolvesPerMinute < 0 {
		problems = append(problems, "rate_limit values must not be negative")
	}
	for tier, p := range c.Pricing {
		if p.InputPerMTok < 0 || p.OutputPerMTok < 0 {
			problems = append(problems, fmt.Sprintf("pricing.%s must not be negative", tier))
		}
	}
	if len(c.Pricing) > 0 {
		if _, ok := c.Pricing[c.Narrator.Tier]; !ok {
			problems = append(problems, fmt.Sprintf("pricing has no entry for narrator tier %q", c.Narrator.Tier))
		}
	}

	if len(problems) > 0 {
		return domain.NewEngineError(domain.ErrConfigInvalid,
			fmt.Sprintf("%s: %s", domain.ErrConfigInvalid.Message, strings.Join(problems, "; ")))
	}
	return nil
}

// GatewaySettings maps the breaker, cache and ledger sections.
func (c *Config) GatewaySettings() gateway.Settings {
	return gateway.Settings{
		FailureThreshold: c.Breaker.FailureThreshold,
		ResetTimeout:     c.Breaker.ResetTimeout,
		CacheTTL:         c.Cache.TTL,
		CacheCapacity:    c.Cache.Capacity,
		LedgerWindow:     c.Ledger.Window,
		BudgetCapUSD:     c.Ledger.BudgetCapUSD,
		WarnRatio:        c.Ledger.WarnRatio,
		HaltRatio:        c.Ledger.HaltRatio,
	}
}

// TierPricing returns the token prices of the configured narrator tier.
func (c *Config) TierPricing() gateway.Pricing {
	return c.Pricing[c.Narrator.Tier]
}

// WorkflowOptions maps the resolution section onto orchestrator options.
func (c *Config) WorkflowOptions() workflow.Options {
	return workflow.Options{
		Timeout:        c.Resolution.Timeout,
		StuckGrace:     c.Resolution.StuckGrace,
		HealthEvery:    c.Resolution.HealthEvery,
		RevertAttempts: uint64(c.Resolution.RevertAttempts),
		RecentEvents:   c.Resolution.RecentEvents,
	}
}

// GuardConfig maps the rate_limit section.
func (c *Config) GuardConfig() guard.Config {
	return guard.Config{
		SubmitsPerMinute:  c.RateLimit.SubmitsPerMinute,
		ResolvesPerMinute: c.RateLimit.ResolvesPerMinute,
	}
}

// RecoveryConfig maps the resolution section onto supervisor settings.
func (c *Config) RecoveryConfig() workflow.RecoveryConfig {
	return workflow.RecoveryConfig{
		Interval: c.Resolution.RecoveryInterval,
		Grace:    c.Resolution.StuckGrace,
	}
}
