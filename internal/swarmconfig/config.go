// Package swarmconfig loads the supervisor's runtime configuration (spec
// §6.4): a flat set of SWARM_-prefixed environment variables, with a legacy
// MCPD_-prefixed alias for every key, loaded through spf13/viper the way
// nabbar/golib and teranos/QNTX layer viper over prefixed env vars. A .env
// file is loaded first via joho/godotenv, exactly as the teacher's
// internal/config.LoadEnv does, so local development still works without
// exporting variables by hand.
package swarmconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Mode selects the control-surface transport (spec §6.5).
type Mode string

const (
	ModeHTTP  Mode = "http"
	ModeStdio Mode = "stdio"
)

// StatefulNameSet is the fixed built-in set of worker names that default to
// Stateful=true at declare time when the caller does not specify it
// explicitly (spec §6.4). These five represent the well-known browser- and
// filesystem-automation workers whose correctness depends on per-caller
// uninterleaved state.
var StatefulNameSet = map[string]bool{
	"playwright": true,
	"puppeteer":  true,
	"browser":    true,
	"filesystem": true,
	"desktop":    true,
}

// Config is the fully-resolved runtime configuration.
type Config struct {
	DataDir    string `mapstructure:"data_dir"`
	DBPath     string `mapstructure:"db_path"`
	Port       int    `mapstructure:"port"`
	BindHost   string `mapstructure:"bind_host"`
	UnixSocket string `mapstructure:"unix_socket"` // overrides host:port when set
	Mode       Mode   `mapstructure:"mode"`

	MaxSessions             int           `mapstructure:"max_sessions"`
	SessionIdleTimeout      time.Duration `mapstructure:"session_idle_timeout"`
	SessionCleanupInterval  time.Duration `mapstructure:"session_cleanup_interval"`
	ToolCallTimeout         time.Duration `mapstructure:"tool_call_timeout"`
	QueueTTL                time.Duration `mapstructure:"queue_ttl"`
	MaxPool                 int           `mapstructure:"max_pool"`
	ScaleUpWait             time.Duration `mapstructure:"scale_up_wait"`
	IdleKill                time.Duration `mapstructure:"idle_kill"`
	HealthInterval          time.Duration `mapstructure:"health_interval"`
	HealthTimeout           time.Duration `mapstructure:"health_timeout"`
	CORSEnabled             bool          `mapstructure:"cors_enabled"`
	CatalogSources          []string      `mapstructure:"catalog_sources"`
}

// defaults mirror spec §6.4's named defaults.
var defaults = map[string]any{
	"data_dir":                 "./data",
	"db_path":                  "./data/swarm.db",
	"port":                     8765,
	"bind_host":                "127.0.0.1",
	"unix_socket":              "",
	"mode":                     "http",
	"max_sessions":             50,
	"session_idle_timeout":     30 * time.Minute,
	"session_cleanup_interval": 60 * time.Second,
	"tool_call_timeout":        60 * time.Second,
	"queue_ttl":                60 * time.Second,
	"max_pool":                 4,
	"scale_up_wait":            5 * time.Second,
	"idle_kill":                60 * time.Second,
	"health_interval":          60 * time.Second,
	"health_timeout":           10 * time.Second,
	"cors_enabled":             true,
	"catalog_sources":          "",
}

// primaryPrefix is the current env-var prefix; legacyPrefix is bound as an
// alias so deployments carrying the predecessor naming keep working.
const primaryPrefix = "SWARM"
const legacyPrefix = "MCPD"

// Load reads .env (best effort), then resolves Config from the environment
// via viper, binding both the SWARM_ and legacy MCPD_ prefixes for every key.
func Load(log *zap.SugaredLogger) (*Config, error) {
	loadDotEnv(log)

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, def := range defaults {
		v.SetDefault(key, def)
		primaryVar := primaryPrefix + "_" + strings.ToUpper(key)
		legacyVar := legacyPrefix + "_" + strings.ToUpper(key)
		if err := v.BindEnv(key, primaryVar, legacyVar); err != nil {
			return nil, fmt.Errorf("swarmconfig: bind %s: %w", key, err)
		}
	}

	cfg := &Config{
		DataDir:                v.GetString("data_dir"),
		DBPath:                 v.GetString("db_path"),
		Port:                   v.GetInt("port"),
		BindHost:               v.GetString("bind_host"),
		UnixSocket:             v.GetString("unix_socket"),
		Mode:                   Mode(v.GetString("mode")),
		MaxSessions:            v.GetInt("max_sessions"),
		SessionIdleTimeout:     v.GetDuration("session_idle_timeout"),
		SessionCleanupInterval: v.GetDuration("session_cleanup_interval"),
		ToolCallTimeout:        v.GetDuration("tool_call_timeout"),
		QueueTTL:               v.GetDuration("queue_ttl"),
		MaxPool:                v.GetInt("max_pool"),
		ScaleUpWait:            v.GetDuration("scale_up_wait"),
		IdleKill:               v.GetDuration("idle_kill"),
		HealthInterval:         v.GetDuration("health_interval"),
		HealthTimeout:          v.GetDuration("health_timeout"),
		CORSEnabled:            v.GetBool("cors_enabled"),
		CatalogSources:         splitCSV(v.GetString("catalog_sources")),
	}

	if cfg.Mode != ModeHTTP && cfg.Mode != ModeStdio {
		return nil, fmt.Errorf("swarmconfig: invalid mode %q (want http or stdio)", cfg.Mode)
	}
	return cfg, nil
}

// splitCSV turns a comma-separated SWARM_CATALOG_SOURCES value into a
// trimmed, non-empty slice of catalog base URLs.
func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Redacted returns a copy safe to expose through GET /api/config. No secret
// material is modeled in this system today, but headers on network-transport
// worker configs could carry bearer tokens in the future, so the control
// surface renders this snapshot rather than the live *Config to keep that
// redaction boundary in one place.
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"data_dir":                 c.DataDir,
		"db_path":                  c.DBPath,
		"port":                     c.Port,
		"bind_host":                c.BindHost,
		"unix_socket":              c.UnixSocket,
		"mode":                     string(c.Mode),
		"max_sessions":             c.MaxSessions,
		"session_idle_timeout":     c.SessionIdleTimeout.String(),
		"session_cleanup_interval": c.SessionCleanupInterval.String(),
		"tool_call_timeout":        c.ToolCallTimeout.String(),
		"queue_ttl":                c.QueueTTL.String(),
		"max_pool":                 c.MaxPool,
		"scale_up_wait":            c.ScaleUpWait.String(),
		"idle_kill":                c.IdleKill.String(),
		"health_interval":          c.HealthInterval.String(),
		"health_timeout":           c.HealthTimeout.String(),
		"cors_enabled":             c.CORSEnabled,
		"catalog_sources":          c.CatalogSources,
	}
}
