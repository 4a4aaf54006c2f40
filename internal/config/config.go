// Package config loads service configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/guarzo/pkmprices/internal/cache"
	"github.com/guarzo/pkmprices/internal/model"
	"github.com/guarzo/pkmprices/internal/pricing"
	"github.com/guarzo/pkmprices/internal/providers"
	"github.com/guarzo/pkmprices/internal/scheduler"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Providers providers.Config `yaml:"providers"`

	Cache struct {
		TTL time.Duration `yaml:"ttl"`
		// SnapshotPath, when set, is loaded at startup and written at shutdown.
		SnapshotPath string `yaml:"snapshot_path"`
	} `yaml:"cache"`

	Pricing struct {
		ProviderTimeout time.Duration       `yaml:"provider_timeout"`
		Retry           pricing.RetryConfig `yaml:"retry"`
		Batch           BatchSettings       `yaml:"batch"`
	} `yaml:"pricing"`

	Scheduler scheduler.Config `yaml:"scheduler"`

	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
}

// BatchSettings is the YAML form of pricing.BatchConfig. A missing delay
// means the default; an explicit zero turns the pause between chunks off.
type BatchSettings struct {
	Size        int            `yaml:"size"`
	Delay       *time.Duration `yaml:"delay"`
	Concurrency int            `yaml:"concurrency"`
}

// BatchConfig converts the batch settings for pricing.Options.
func (c *Config) BatchConfig() pricing.BatchConfig {
	b := pricing.BatchConfig{Size: c.Pricing.Batch.Size, Concurrency: c.Pricing.Batch.Concurrency}
	if d := c.Pricing.Batch.Delay; d != nil {
		b.Delay = *d
		if b.Delay == 0 {
			b.Delay = -1
		}
	}
	return b
}

// Load reads .env files (if present), then the YAML file (if present), then
// applies environment variable overrides and defaults.
func Load(path string, envFiles ...string) (*Config, error) {
	loadDotEnv(envFiles...)

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// loadDotEnv never overrides variables already set in the process.
func loadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Printf("Config: ignoring unreadable env file %s: %v", f, err)
		}
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("POKEMON_TCG_API_KEY"); v != "" {
		c.Providers.PokemonTCGAPIKey = v
	}
	if v := os.Getenv("POKEMON_PRICE_TRACKER_API_KEY"); v != "" {
		c.Providers.PriceTrackerAPIKey = v
	}
	if v := os.Getenv("JUSTTCG_API_KEY"); v != "" {
		c.Providers.JustTCGAPIKey = v
	}
	if v := os.Getenv("CARDMARKET_BASE_URL"); v != "" {
		c.Providers.CardmarketURL = v
	}
	if v := os.Getenv("PRICESVC_PROVIDER_ORDER"); v != "" {
		c.Providers.Order = splitList(v)
	}
	if v := os.Getenv("PRICESVC_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PRICESVC_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("PRICESVC_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("PRICESVC_REFRESH_CRON"); v != "" {
		c.Scheduler.RefreshCron = v
	}
	if v := os.Getenv("PRICESVC_CACHE_SNAPSHOT"); v != "" {
		c.Cache.SnapshotPath = v
	}
	if v := os.Getenv("PRICESVC_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PRICESVC_CACHE_TTL: %w", err)
		}
		c.Cache.TTL = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Providers.RequestTimeout == 0 {
		c.Providers.RequestTimeout = 10 * time.Second
	}
	if c.Providers.RateLimitPerMin == 0 {
		c.Providers.RateLimitPerMin = 60
	}
	if len(c.Providers.Order) == 0 {
		c.Providers.Order = append([]string(nil), providers.DefaultOrder...)
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = cache.DefaultTTL
	}
	if c.Pricing.ProviderTimeout == 0 {
		c.Pricing.ProviderTimeout = pricing.DefaultProviderTimeout
	}
	if c.Pricing.Batch.Size == 0 {
		c.Pricing.Batch.Size = pricing.DefaultBatchSize
	}
	if c.Pricing.Batch.Delay == nil {
		d := pricing.DefaultBatchDelay
		c.Pricing.Batch.Delay = &d
	}
	if c.Scheduler.SweepInterval == 0 {
		c.Scheduler.SweepInterval = scheduler.DefaultSweepInterval
	}
	if c.Scheduler.PageSize == 0 {
		c.Scheduler.PageSize = 100
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "data/catalog.db"
	}
}

// Validate checks that the loaded configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Pricing.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("pricing.provider_timeout must be positive"))
	}
	if c.Pricing.Batch.Size <= 0 {
		errs = append(errs, errors.New("pricing.batch.size must be positive"))
	}
	if d := c.Pricing.Batch.Delay; d != nil && *d < 0 {
		errs = append(errs, errors.New("pricing.batch.delay must not be negative"))
	}
	if c.Scheduler.SweepInterval <= 0 {
		errs = append(errs, errors.New("scheduler.sweep_interval must be positive"))
	}
	for _, name := range c.Providers.Order {
		if !knownProvider(name) {
			errs = append(errs, fmt.Errorf("providers.order: unknown provider %q", name))
		}
	}
	if c.Scheduler.RefreshCron != "" {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Scheduler.RefreshCron); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.refresh_cron: %w", err))
		}
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pgx":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	return errors.Join(errs...)
}

func knownProvider(name string) bool {
	for _, n := range providers.DefaultOrder {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return true
		}
	}
	return false
}

// ProviderKeysSummary describes which credentials are configured, without the values.
func (c *Config) ProviderKeysSummary() map[model.Source]bool {
	return map[model.Source]bool{
		model.SourcePokemonTCG: c.Providers.PokemonTCGAPIKey != "",
		model.SourceTracker:    c.Providers.PriceTrackerAPIKey != "",
		model.SourceJustTCG:    c.Providers.JustTCGAPIKey != "",
		model.SourceCardmarket: c.Providers.CardmarketURL != "",
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
