// Package config provides dynamic configuration management for OpenScale.
// It uses Viper to load settings from files, environment variables, and CLI flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kelvas/openscale/internal/scaler"
)

// Config holds all runtime configuration for OpenScale.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────────────
	ServerHost string `mapstructure:"server_host"`
	// ControlPort (7600): operator REST API, JWT-protected
	ControlPort int `mapstructure:"control_port"`
	// DataPort (7601): agent metric ingest — Bearer token protected
	DataPort int    `mapstructure:"data_port"`
	DBPath   string `mapstructure:"db_path"`

	// ── Security ──────────────────────────────────────────────────────────────
	// JWTSecret: HS256 signing key for control-plane tokens.
	// Change this in production — default is a random-looking placeholder.
	JWTSecret string `mapstructure:"jwt_secret"`
	// AgentToken: pre-shared key for data-plane agent requests.
	// Format on wire: "Authorization: Bearer <agent_token>"
	AgentToken string `mapstructure:"agent_token"`
	// AdminUser / AdminPass: credentials for /api/login.
	AdminUser string `mapstructure:"admin_user"`
	AdminPass string `mapstructure:"admin_pass"`

	// ── Scaling policy ────────────────────────────────────────────────────────
	MinInstances         int     `mapstructure:"min_instances"`
	MaxInstances         int     `mapstructure:"max_instances"`
	ScaleUpThreshold     float64 `mapstructure:"scale_up_threshold"`
	ScaleDownThreshold   float64 `mapstructure:"scale_down_threshold"`
	CooldownSeconds      int     `mapstructure:"cooldown_seconds"`
	MetricsWindowSeconds int     `mapstructure:"metrics_window_seconds"`
	ScaleUpFactor        float64 `mapstructure:"scale_up_factor"`
	ScaleDownFactor      float64 `mapstructure:"scale_down_factor"`
	EvaluateIntervalSecs int     `mapstructure:"evaluate_interval_seconds"`

	// CollectorMode selects where the server gets its samples:
	// "sim" (synthetic), "host" (local gopsutil), "agent" (ingest only).
	CollectorMode string `mapstructure:"collector_mode"`
	// ProbeURL: optional HTTP endpoint timed for the response_time metric
	// in host mode.
	ProbeURL string `mapstructure:"probe_url"`

	// ── Provisioner ───────────────────────────────────────────────────────────
	// Provisioner: "static" (counter only) or "ssh" (remote scale commands).
	Provisioner      string `mapstructure:"provisioner"`
	SSHHost          string `mapstructure:"ssh_host"`
	SSHUser          string `mapstructure:"ssh_user"`
	SSHPassword      string `mapstructure:"ssh_password"`
	SSHKeyPath       string `mapstructure:"ssh_key_path"`
	ScaleUpCommand   string `mapstructure:"scale_up_command"`
	ScaleDownCommand string `mapstructure:"scale_down_command"`

	// ── Agent ────────────────────────────────────────────────────────────────
	AgentJoinAddr string `mapstructure:"agent_join_addr"`
	AgentInterval int    `mapstructure:"agent_interval_seconds"`
	// AgentOutboundToken for outbound requests (overridden by --token CLI flag)
	AgentOutboundToken string `mapstructure:"agent_outbound_token"`
}

// ScalerConfig converts the policy fields into the engine's Config.
func (c *Config) ScalerConfig() scaler.Config {
	return scaler.Config{
		MinInstances:       c.MinInstances,
		MaxInstances:       c.MaxInstances,
		ScaleUpThreshold:   c.ScaleUpThreshold,
		ScaleDownThreshold: c.ScaleDownThreshold,
		CooldownPeriod:     time.Duration(c.CooldownSeconds) * time.Second,
		MetricsWindow:      time.Duration(c.MetricsWindowSeconds) * time.Second,
		ScaleUpFactor:      c.ScaleUpFactor,
		ScaleDownFactor:    c.ScaleDownFactor,
	}
}

// Validate rejects configurations the scaler cannot run with.
func (c *Config) Validate() error {
	if c.MinInstances < 1 {
		return fmt.Errorf("min_instances must be >= 1, got %d", c.MinInstances)
	}
	if c.MaxInstances < c.MinInstances {
		return fmt.Errorf("max_instances (%d) must be >= min_instances (%d)",
			c.MaxInstances, c.MinInstances)
	}
	if c.ScaleUpThreshold <= c.ScaleDownThreshold {
		return fmt.Errorf("scale_up_threshold (%.1f) must be > scale_down_threshold (%.1f)",
			c.ScaleUpThreshold, c.ScaleDownThreshold)
	}
	if c.ScaleUpFactor <= 1.0 {
		return fmt.Errorf("scale_up_factor must be > 1.0, got %.2f", c.ScaleUpFactor)
	}
	if c.ScaleDownFactor <= 0 || c.ScaleDownFactor >= 1.0 {
		return fmt.Errorf("scale_down_factor must be in (0,1), got %.2f", c.ScaleDownFactor)
	}
	switch c.CollectorMode {
	case "sim", "host", "agent":
	default:
		return fmt.Errorf("collector_mode must be sim, host or agent, got %q", c.CollectorMode)
	}
	switch c.Provisioner {
	case "static", "ssh":
	default:
		return fmt.Errorf("provisioner must be static or ssh, got %q", c.Provisioner)
	}
	return nil
}

// Load reads config from file (./config.yaml or ~/.openscale/config.yaml)
// and falls back to smart defaults. Environment variables with prefix SCALE_
// override file values.
func Load() (*Config, error) {
	v := viper.New()

	// --- Smart Defaults ---
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("control_port", 7600) // operator API
	v.SetDefault("data_port", 7601)    // agent ingest
	v.SetDefault("db_path", "openscale.db")

	// Security defaults — MUST be overridden in production via config.yaml or env vars.
	v.SetDefault("jwt_secret", "ScLn$Wq3@xP8!mB5#rJ2^dT9&eC6*fU") // random placeholder
	v.SetDefault("agent_token", "openscale-secret-key-123")
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_pass", "admin")

	v.SetDefault("min_instances", 2)
	v.SetDefault("max_instances", 10)
	v.SetDefault("scale_up_threshold", 70.0)
	v.SetDefault("scale_down_threshold", 30.0)
	v.SetDefault("cooldown_seconds", 300)
	v.SetDefault("metrics_window_seconds", 60)
	v.SetDefault("scale_up_factor", 1.5)
	v.SetDefault("scale_down_factor", 0.7)
	v.SetDefault("evaluate_interval_seconds", 10)
	v.SetDefault("collector_mode", "agent")
	v.SetDefault("probe_url", "")

	v.SetDefault("provisioner", "static")
	v.SetDefault("ssh_host", "")
	v.SetDefault("ssh_user", "root")
	v.SetDefault("ssh_password", "")
	v.SetDefault("ssh_key_path", "~/.ssh/id_rsa")
	v.SetDefault("scale_up_command", "/usr/local/bin/scale-app add %d")
	v.SetDefault("scale_down_command", "/usr/local/bin/scale-app remove %d")

	v.SetDefault("agent_join_addr", "127.0.0.1:7601")
	v.SetDefault("agent_interval_seconds", 10)
	v.SetDefault("agent_outbound_token", "openscale-secret-key-123")

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.openscale")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// --- Environment Variables ---
	v.SetEnvPrefix("SCALE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
