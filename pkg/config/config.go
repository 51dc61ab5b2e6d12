package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the Arcana server.
type Config struct {
	AppEnv string `mapstructure:"-"`

	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis" validate:"required"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Unlock    UnlockConfig    `mapstructure:"unlock"`
	Oracle    OracleConfig    `mapstructure:"oracle" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Products  map[string]int64 `mapstructure:"products"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     string `mapstructure:"port" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode,
	)
}

// RedisConfig configures the Redis connection pool.
type RedisConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// LoggerConfig configures structured logging output.
type LoggerConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig enables rotated log files in addition to stdout.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// LedgerConfig holds the credit economy tunables.
type LedgerConfig struct {
	StartingCredits  int64         `mapstructure:"starting_credits"`
	UnlockCost       int64         `mapstructure:"unlock_cost"`
	DailyBonusAmount int64         `mapstructure:"daily_bonus_amount"`
	AdRewardAmount   int64         `mapstructure:"ad_reward_amount"`
	GrantCooldown    time.Duration `mapstructure:"grant_cooldown"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

// UnlockConfig controls per-session content unlocks and locked previews.
type UnlockConfig struct {
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	PreviewShort int           `mapstructure:"preview_short"`
	PreviewLong  int           `mapstructure:"preview_long"`
}

// OracleConfig configures the external text-generation endpoint.
type OracleConfig struct {
	Endpoint string        `mapstructure:"endpoint" validate:"required,url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RateLimitRule pairs a request limit with its window.
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// RateLimitConfig holds rate limiting rules per scope.
type RateLimitConfig struct {
	PerUser   RateLimitRule `mapstructure:"per_user"`
	Reward    RateLimitRule `mapstructure:"reward"`
	Whitelist []string      `mapstructure:"whitelist"`
}

// JobsConfig configures the asynq background worker and scheduler.
type JobsConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	HoroscopeCron   string        `mapstructure:"horoscope_cron"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Concurrency     int           `mapstructure:"concurrency"`
}

// ApplyDefaults fills in values the config file may omit.
func (c *Config) ApplyDefaults() {
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
	if c.Ledger.StartingCredits == 0 {
		c.Ledger.StartingCredits = 3
	}
	if c.Ledger.UnlockCost == 0 {
		c.Ledger.UnlockCost = 1
	}
	if c.Ledger.DailyBonusAmount == 0 {
		c.Ledger.DailyBonusAmount = 1
	}
	if c.Ledger.AdRewardAmount == 0 {
		c.Ledger.AdRewardAmount = 1
	}
	if c.Ledger.GrantCooldown == 0 {
		c.Ledger.GrantCooldown = 3 * time.Second
	}
	if c.Ledger.CacheTTL == 0 {
		c.Ledger.CacheTTL = 5 * time.Minute
	}
	if c.Unlock.SessionTTL == 0 {
		c.Unlock.SessionTTL = 12 * time.Hour
	}
	if c.Unlock.PreviewShort == 0 {
		c.Unlock.PreviewShort = 70
	}
	if c.Unlock.PreviewLong == 0 {
		c.Unlock.PreviewLong = 150
	}
	if c.Oracle.Timeout == 0 {
		c.Oracle.Timeout = 30 * time.Second
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 30 * 24 * time.Hour
	}
	if c.RateLimit.PerUser.Window == "" {
		c.RateLimit.PerUser = RateLimitRule{Limit: 60, Window: "1m"}
	}
	if c.RateLimit.Reward.Window == "" {
		c.RateLimit.Reward = RateLimitRule{Limit: 1, Window: "3s"}
	}
	if c.Jobs.HoroscopeCron == "" {
		c.Jobs.HoroscopeCron = "0 5 * * *"
	}
	if c.Jobs.CleanupInterval == 0 {
		c.Jobs.CleanupInterval = time.Hour
	}
	if c.Jobs.Concurrency == 0 {
		c.Jobs.Concurrency = 10
	}
}
