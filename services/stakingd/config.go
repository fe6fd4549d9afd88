package stakingd

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nftstake/storage"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for stakingd.
type Config struct {
	ListenAddress string                     `yaml:"listen"`
	Environment   string                     `yaml:"environment"`
	GenesisPath   string                     `yaml:"genesis"`
	Storage       StorageConfig              `yaml:"storage"`
	Journal       JournalConfig              `yaml:"journal"`
	Auth          AuthConfig                 `yaml:"auth"`
	RateLimits    map[string]RateLimitConfig `yaml:"rate_limits"`
	CORS          CORSConfig                 `yaml:"cors"`
	Logging       LoggingConfig              `yaml:"logging"`
	Telemetry     TelemetryConfig            `yaml:"telemetry"`
	Server        ServerConfig               `yaml:"server"`
	Rewards       RewardsConfig              `yaml:"rewards"`
}

// StorageConfig selects the key/value backend holding ledger state.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// JournalConfig locates the sqlite event journal.
type JournalConfig struct {
	Path         string `yaml:"path"`
	StreamBuffer int    `yaml:"stream_buffer"`
	PageLimit    int    `yaml:"page_limit"`
}

// AuthConfig controls JWT caller authentication.
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Issuer     string   `yaml:"issuer"`
	Audience   string   `yaml:"audience"`
	Secret     string   `yaml:"secret"`
	SecretFile string   `yaml:"secret_file"`
	SecretEnv  string   `yaml:"secret_env"`
	ClockSkew  Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds request rates for a route group.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	LogRequests bool   `yaml:"log_requests"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Headers  string `yaml:"headers"`
	Metrics  bool   `yaml:"metrics"`
	Traces   bool   `yaml:"traces"`
	// SampleRatio applies to root spans; zero samples everything.
	SampleRatio    float64  `yaml:"sample_ratio"`
	MetricInterval Duration `yaml:"metric_interval"`
}

type ServerConfig struct {
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// RewardsConfig describes the reward token credited on claims.
type RewardsConfig struct {
	Symbol    string `yaml:"symbol"`
	SupplyCap string `yaml:"supply_cap"`
}

// Cap parses the configured supply cap. An empty value means uncapped.
func (r RewardsConfig) Cap() (*big.Int, error) {
	raw := strings.TrimSpace(r.SupplyCap)
	if raw == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid supply_cap %q", r.SupplyCap)
	}
	return value, nil
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return cfg, fmt.Errorf("auth: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = storage.BackendLevelDB
	}
	if cfg.Storage.Path == "" && cfg.Storage.Backend != storage.BackendMemory {
		cfg.Storage.Path = "data/stakingd/ledger"
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = "data/stakingd/events.db"
	}
	if cfg.Journal.StreamBuffer <= 0 {
		cfg.Journal.StreamBuffer = 64
	}
	if cfg.Journal.PageLimit <= 0 {
		cfg.Journal.PageLimit = 100
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "stakingd"
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]RateLimitConfig{
			routeGroupLedger: {RequestsPerMinute: 120, Burst: 20},
			routeGroupAdmin:  {RequestsPerMinute: 30, Burst: 5},
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Server.ReadTimeout.Duration == 0 {
		cfg.Server.ReadTimeout.Duration = 15 * time.Second
	}
	if cfg.Server.WriteTimeout.Duration == 0 {
		cfg.Server.WriteTimeout.Duration = 30 * time.Second
	}
	if cfg.Server.IdleTimeout.Duration == 0 {
		cfg.Server.IdleTimeout.Duration = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout.Duration == 0 {
		cfg.Server.ShutdownTimeout.Duration = 10 * time.Second
	}
	if cfg.Rewards.Symbol == "" {
		cfg.Rewards.Symbol = "STK"
	}
}

func validateConfig(cfg Config) error {
	switch strings.ToLower(cfg.Storage.Backend) {
	case storage.BackendMemory, storage.BackendLevelDB, storage.BackendBolt:
	default:
		return fmt.Errorf("storage backend %q not supported", cfg.Storage.Backend)
	}
	if cfg.Auth.Enabled && cfg.Auth.Secret == "" {
		return fmt.Errorf("auth secret must be configured when auth is enabled")
	}
	if _, err := cfg.Rewards.Cap(); err != nil {
		return fmt.Errorf("rewards: %w", err)
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample_ratio must be between 0 and 1")
	}
	for group, limit := range cfg.RateLimits {
		if limit.RequestsPerMinute < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate limit %s must not be negative", group)
		}
	}
	return nil
}

// normalise resolves the HMAC secret from the inline value, an environment
// variable or a file, in that order.
func (a *AuthConfig) normalise() error {
	a.Secret = strings.TrimSpace(a.Secret)
	a.SecretEnv = strings.TrimSpace(a.SecretEnv)
	a.SecretFile = strings.TrimSpace(a.SecretFile)
	if a.Secret != "" {
		return nil
	}
	switch {
	case a.SecretEnv != "":
		value := strings.TrimSpace(os.Getenv(a.SecretEnv))
		if value == "" {
			return fmt.Errorf("secret_env %s is empty", a.SecretEnv)
		}
		a.Secret = value
	case a.SecretFile != "":
		contents, err := os.ReadFile(a.SecretFile)
		if err != nil {
			return fmt.Errorf("read secret_file: %w", err)
		}
		a.Secret = strings.TrimSpace(string(contents))
	}
	return nil
}
