// Package config defines the canonical, JSON-serializable configuration
// model for the reconciliation pipeline. It is intentionally small,
// explicit, and dependency-free so configurations can be loaded from disk,
// overlaid from the environment (12-factor style), and passed through the
// program without additional glue code.
//
// Design goals:
//
//  1. Stability: changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: field names in Go mirror the JSON structure used in config
//     files.
//  3. Minimalism: no third-party config libraries; decoding is performed by
//     the standard library.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config is the top-level configuration decoded from a config file and/or
// the environment.
type Config struct {
	// Landing configures the scratch database used as the computation
	// substrate for every run.
	Landing LandingConfig `json:"landing"`

	// Staging controls staging-table retention.
	Staging StagingConfig `json:"staging"`

	// Extract tunes the data-movement strategy.
	Extract ExtractConfig `json:"extract"`

	// Rules locates the ruleset documents for the file-backed store.
	Rules RulesConfig `json:"rules"`

	// Docstore configures the optional external result store.
	Docstore DocstoreConfig `json:"docstore"`

	// Metrics selects the metrics backend.
	Metrics MetricsConfig `json:"metrics"`
}

// LandingConfig describes the landing store connection.
type LandingConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
	// Schema is the landing schema staging tables are created in; empty
	// means the connection default.
	Schema string `json:"schema"`
}

// DSN renders the pgx pool connection string.
func (l LandingConfig) DSN() string {
	port := l.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(l.Username, l.Password),
		Host:   fmt.Sprintf("%s:%d", l.Host, port),
		Path:   "/" + l.Database,
	}
	return u.String()
}

// StagingConfig controls staging-table retention defaults.
type StagingConfig struct {
	// KeepDefault retains staging tables after successful runs when the
	// caller does not say otherwise.
	KeepDefault bool `json:"keep_default"`
	// TTLHours is the retention window after which a staging table becomes
	// eligible for the sweep.
	TTLHours int `json:"ttl_hours"`
}

// TTL returns the staging time-to-live as a duration.
func (s StagingConfig) TTL() time.Duration { return time.Duration(s.TTLHours) * time.Hour }

// ExtractConfig tunes extraction and loading.
type ExtractConfig struct {
	// BatchSize is the row count per fallback INSERT batch.
	BatchSize int `json:"batch_size"`
	// BulkLoad enables the COPY fast path.
	BulkLoad bool `json:"bulk_load"`
	// Parallel extracts source and target concurrently. Safe because the
	// two sides touch independent systems and independent staging tables.
	Parallel bool `json:"parallel"`
}

// RulesConfig locates ruleset documents.
type RulesConfig struct {
	// Dir is the directory holding <ruleset_id>.json files.
	Dir string `json:"dir"`
}

// DocstoreConfig configures the optional MongoDB result store.
type DocstoreConfig struct {
	URI        string `json:"uri"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

// MetricsConfig selects and configures the metrics backend.
type MetricsConfig struct {
	// Backend is one of "pushgateway", "datadog", "none".
	Backend        string `json:"backend"`
	PushgatewayURL string `json:"pushgateway_url"`
	DatadogAddr    string `json:"datadog_addr"`
}

// Default returns the built-in defaults applied before file and env
// overlays.
func Default() Config {
	return Config{
		Landing: LandingConfig{Enabled: true, Host: "localhost", Port: 5432, Database: "reconcile"},
		Staging: StagingConfig{KeepDefault: false, TTLHours: 24},
		Extract: ExtractConfig{BatchSize: 1000, BulkLoad: true},
		Rules:   RulesConfig{Dir: "rulesets"},
		Docstore: DocstoreConfig{
			Database:   "reconcile",
			Collection: "reconciliation_results",
		},
		Metrics: MetricsConfig{Backend: "none", PushgatewayURL: "http://localhost:9091"},
	}
}

// Load decodes a JSON config file over the defaults and applies environment
// overrides. An empty path skips the file and uses defaults + env only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays recognized environment variables onto the config.
func (c *Config) applyEnv() {
	envBool("LANDING_ENABLED", &c.Landing.Enabled)
	envStr("LANDING_HOST", &c.Landing.Host)
	envInt("LANDING_PORT", &c.Landing.Port)
	envStr("LANDING_USER", &c.Landing.Username)
	envStr("LANDING_PASSWORD", &c.Landing.Password)
	envStr("LANDING_DATABASE", &c.Landing.Database)
	envStr("LANDING_SCHEMA", &c.Landing.Schema)

	envBool("RECON_KEEP_STAGING", &c.Staging.KeepDefault)
	envInt("RECON_STAGING_TTL_HOURS", &c.Staging.TTLHours)

	envInt("RECON_BATCH_SIZE", &c.Extract.BatchSize)
	envBool("RECON_BULK_LOAD", &c.Extract.BulkLoad)
	envBool("RECON_PARALLEL_EXTRACT", &c.Extract.Parallel)

	envStr("RECON_RULES_DIR", &c.Rules.Dir)

	envStr("MONGO_URI", &c.Docstore.URI)
	envStr("MONGO_DATABASE", &c.Docstore.Database)
	envStr("MONGO_COLLECTION", &c.Docstore.Collection)

	envStr("METRICS_BACKEND", &c.Metrics.Backend)
	envStr("PUSHGATEWAY_URL", &c.Metrics.PushgatewayURL)
	envStr("DD_AGENT_ADDR", &c.Metrics.DatadogAddr)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
