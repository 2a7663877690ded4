package config

import (
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Engine.Adjudicator = "0x1111111111111111111111111111111111111111"
	cfg.Engine.Owner = "0x2222222222222222222222222222222222222222"
	return cfg
}

func TestValidateDefaultsWithIdentities(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "batch"
	cfg.Engine.DisputePeriod = duration{0}
	cfg.Engine.ProtocolFeePercent = 150
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}

	for _, want := range []string{
		`unknown mode "batch"`,
		"dispute_period must be positive",
		"protocol_fee_percent must be 0-100",
		"redis: addr must not be empty",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateRejectsBadAddresses(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "adjudicator not hex",
			mutate: func(c *Config) { c.Engine.Adjudicator = "not-an-address" },
			want:   "adjudicator must be a hex address",
		},
		{
			name:   "owner empty",
			mutate: func(c *Config) { c.Engine.Owner = "" },
			want:   "owner must be a hex address",
		},
		{
			name:   "manual oracle not hex",
			mutate: func(c *Config) { c.Oracles.Manual = []string{"0x123"} },
			want:   "manual[0]",
		},
		{
			name: "aggregator without rpc url",
			mutate: func(c *Config) {
				c.Oracles.Aggregators = []AggregatorConfig{{
					Contract: "0x3333333333333333333333333333333333333333",
				}}
			},
			want: "rpc_url must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error missing %q:\n%v", tt.want, err)
			}
		})
	}
}

func TestValidateS3OnlyRequiredInFullMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "server"
	cfg.S3.Endpoint = ""
	cfg.S3.Bucket = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("server mode without s3: Validate() = %v, want nil", err)
	}

	cfg.Mode = "full"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full mode without s3: Validate() = nil, want error")
	}
	if !strings.Contains(err.Error(), "s3: endpoint must not be empty") {
		t.Errorf("Validate() error missing s3 endpoint complaint:\n%v", err)
	}
}

func TestDurationTOMLDecoding(t *testing.T) {
	var cfg Config
	raw := `
[engine]
dispute_period = "36h"
`
	if _, err := toml.Decode(raw, &cfg); err != nil {
		t.Fatalf("toml.Decode() error: %v", err)
	}
	if got, want := cfg.Engine.DisputePeriod.Duration, 36*time.Hour; got != want {
		t.Errorf("dispute_period = %v, want %v", got, want)
	}

	if _, err := toml.Decode(`[engine]`+"\n"+`dispute_period = "soon"`, &cfg); err == nil {
		t.Error("toml.Decode() accepted invalid duration string")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SETTLED_POSTGRES_DSN", "postgres://env-host/settled")
	t.Setenv("SETTLED_SERVER_PORT", "9100")
	t.Setenv("SETTLED_ENGINE_DISPUTE_PERIOD", "48h")
	t.Setenv("SETTLED_REDIS_TLS_ENABLED", "true")

	cfg := validConfig()
	applyEnvOverrides(&cfg)

	if got := cfg.Postgres.DSN; got != "postgres://env-host/settled" {
		t.Errorf("Postgres.DSN = %q, want env value", got)
	}
	if got := cfg.Server.Port; got != 9100 {
		t.Errorf("Server.Port = %d, want 9100", got)
	}
	if got := cfg.Engine.DisputePeriod.Duration; got != 48*time.Hour {
		t.Errorf("Engine.DisputePeriod = %v, want 48h", got)
	}
	if !cfg.Redis.TLSEnabled {
		t.Error("Redis.TLSEnabled = false, want true")
	}
}

func TestEnvOverridesIgnoreEmptyValues(t *testing.T) {
	t.Setenv("SETTLED_POSTGRES_DSN", "")

	cfg := validConfig()
	cfg.Postgres.DSN = "postgres://from-file/settled"
	applyEnvOverrides(&cfg)

	if got := cfg.Postgres.DSN; got != "postgres://from-file/settled" {
		t.Errorf("Postgres.DSN = %q, want file value preserved", got)
	}
}
