package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	StoreBackend     string        `mapstructure:"STORE_BACKEND"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema         string        `mapstructure:"DB_SCHEMA"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	StatsCacheTTL    time.Duration `mapstructure:"STATS_CACHE_TTL"`
	Timezone         string        `mapstructure:"TIMEZONE"`
	DefaultDailyCap  int           `mapstructure:"DEFAULT_DAILY_CAP"`
	StaffTokenSecret string        `mapstructure:"STAFF_TOKEN_SECRET"`
	StaffTokenTTL    time.Duration `mapstructure:"STAFF_TOKEN_TTL"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	LeaveSweepSpec   string        `mapstructure:"LEAVE_SWEEP_SPEC"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
}

var envKeys = []string{
	"PORT", "ENV", "STORE_BACKEND", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DB_SCHEMA", "REDIS_URL", "STATS_CACHE_TTL", "TIMEZONE", "DEFAULT_DAILY_CAP",
	"STAFF_TOKEN_SECRET", "STAFF_TOKEN_TTL", "CORS_ORIGINS", "RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST", "LEAVE_SWEEP_SPEC", "MIGRATIONS_DIR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_BACKEND", BackendPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("STATS_CACHE_TTL", "30s")
	v.SetDefault("TIMEZONE", "Asia/Kolkata")
	v.SetDefault("DEFAULT_DAILY_CAP", 3)
	v.SetDefault("STAFF_TOKEN_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("LEAVE_SWEEP_SPEC", "5 0 * * *")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 0 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if cfg.StoreBackend == BackendPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %q", BackendPostgres)
	}

	if cfg.IsDev() && cfg.StaffTokenSecret == "" {
		log.Println("WARNING: STAFF_TOKEN_SECRET is empty; a random secret is used and staff tokens will not survive a restart.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TIMEZONE. "Today" for availability and capacity stats is
// evaluated in this location.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.StoreBackend)
	}
	if c.IsProduction() && c.StoreBackend == BackendMemory {
		return fmt.Errorf("STORE_BACKEND=%q is not allowed in production", BackendMemory)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.DefaultDailyCap < 1 {
		return fmt.Errorf("DEFAULT_DAILY_CAP must be at least 1, got %d", c.DefaultDailyCap)
	}

	if c.IsProduction() && len(c.StaffTokenSecret) < 32 {
		return fmt.Errorf("STAFF_TOKEN_SECRET must be at least 32 bytes in production")
	}
	if c.StaffTokenTTL <= 0 {
		return fmt.Errorf("STAFF_TOKEN_TTL must be positive, got %s", c.StaffTokenTTL)
	}

	return nil
}
