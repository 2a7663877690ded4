// Package config defines the top-level configuration for the settlement
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SETTLED_* environment
// variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Oracles  OraclesConfig  `toml:"oracles"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the protocol parameters of the settlement core.
type EngineConfig struct {
	DisputePeriod        duration `toml:"dispute_period"`
	MinDisputeStake      int64    `toml:"min_dispute_stake"`
	ProtocolFeePercent   int64    `toml:"protocol_fee_percent"`
	ResolutionFeePercent int64    `toml:"resolution_fee_percent"`
	DisputeRewardPercent int64    `toml:"dispute_reward_percent"`
	Adjudicator          string   `toml:"adjudicator"`
	Owner                string   `toml:"owner"`
}

// OraclesConfig lists the oracles available for market registration.
type OraclesConfig struct {
	// Manual is the list of operator-settled oracle references.
	Manual []string `toml:"manual"`
	// Aggregators are on-chain aggregator feeds read over JSON-RPC.
	Aggregators []AggregatorConfig `toml:"aggregators"`
}

// AggregatorConfig identifies one on-chain aggregator feed.
type AggregatorConfig struct {
	RPCURL   string `toml:"rpc_url"`
	Contract string `toml:"contract"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for settlement
// report archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port          int      `toml:"port"`
	APIKey        string   `toml:"api_key"`
	CORSOrigins   []string `toml:"cors_origins"`
	RatePerMinute int      `toml:"rate_per_minute"`
	// VenueSecret is the shared secret venues use to sign post-trade
	// reports. Empty disables signature verification on the report route.
	VenueSecret string `toml:"venue_secret"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "24h", "30m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			DisputePeriod:        duration{24 * time.Hour},
			MinDisputeStake:      100,
			ProtocolFeePercent:   40,
			ResolutionFeePercent: 2,
			DisputeRewardPercent: 20,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "settled",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "settled-reports",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000"},
			RatePerMinute: 600,
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "dispute_submitted", "dispute_resolved", "market_finalized"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.DisputePeriod.Duration <= 0 {
		errs = append(errs, "engine: dispute_period must be positive")
	}
	if c.Engine.MinDisputeStake <= 0 {
		errs = append(errs, "engine: min_dispute_stake must be positive")
	}
	for name, pct := range map[string]int64{
		"protocol_fee_percent":   c.Engine.ProtocolFeePercent,
		"resolution_fee_percent": c.Engine.ResolutionFeePercent,
		"dispute_reward_percent": c.Engine.DisputeRewardPercent,
	} {
		if pct < 0 || pct > 100 {
			errs = append(errs, fmt.Sprintf("engine: %s must be 0-100, got %d", name, pct))
		}
	}
	if c.Engine.Adjudicator == "" || !common.IsHexAddress(c.Engine.Adjudicator) {
		errs = append(errs, "engine: adjudicator must be a hex address")
	}
	if c.Engine.Owner == "" || !common.IsHexAddress(c.Engine.Owner) {
		errs = append(errs, "engine: owner must be a hex address")
	}

	// Oracles
	for i, ref := range c.Oracles.Manual {
		if !common.IsHexAddress(ref) {
			errs = append(errs, fmt.Sprintf("oracles: manual[%d] %q is not a hex address", i, ref))
		}
	}
	for i, agg := range c.Oracles.Aggregators {
		if agg.RPCURL == "" {
			errs = append(errs, fmt.Sprintf("oracles: aggregators[%d] rpc_url must not be empty", i))
		}
		if !common.IsHexAddress(agg.Contract) {
			errs = append(errs, fmt.Sprintf("oracles: aggregators[%d] contract %q is not a hex address", i, agg.Contract))
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only required in full mode, where the archiver runs.
	if strings.ToLower(c.Mode) == "full" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RatePerMinute < 0 {
		errs = append(errs, "server: rate_per_minute must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
