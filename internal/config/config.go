// Package config manages goslp daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and the defaults layered
// beneath both.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete goslp configuration.
type Config struct {
	Admin   AdminConfig   `koanf:"admin"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Agent   AgentConfig   `koanf:"agent"`
}

// AdminConfig holds the admin/introspection HTTP API configuration.
type AdminConfig struct {
	// Addr is the HTTP listen address for the admin API (e.g., ":8427").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// AgentConfig holds the SLPv2 agent property set named in spec.md §6.
type AgentConfig struct {
	// UseScopes is the default scope list attached to outbound requests
	// when the caller does not specify one.
	UseScopes string `koanf:"use_scopes"`

	// DAAddresses is a static list of DA unicast addresses injected at
	// start, bypassing active/passive discovery for these DAs.
	DAAddresses []string `koanf:"da_addresses"`

	// IsBroadcastOnly, if true, makes the dispatcher replace multicast
	// sends with subnet broadcast (for networks without multicast
	// routing).
	IsBroadcastOnly bool `koanf:"is_broadcast_only"`

	// MTU bounds outbound UDP reply size before OVERFLOW is set and the
	// reply truncated at a PDU-body boundary.
	MTU int `koanf:"mtu"`

	// TraceMsg logs each inbound message and the reply sent for it at
	// debug level.
	TraceMsg bool `koanf:"trace_msg"`

	// TraceDrop logs replies that the dispatcher drops.
	TraceDrop bool `koanf:"trace_drop"`

	// TraceReg logs the number of registrations removed by each aging sweep.
	TraceReg bool `koanf:"trace_reg"`

	// TraceDATraffic logs each inbound DAAdvert and each re-registration
	// sent to a DA.
	TraceDATraffic bool `koanf:"trace_da_traffic"`

	// SecurityEnabled requires authenticators on inbound SrvReg/DAAdvert;
	// crypto initialization failure is fatal when this is true.
	SecurityEnabled bool `koanf:"security_enabled"`

	// CheckSourceAddr requires a SrvDeReg to originate from the same
	// address family as the registration it targets.
	CheckSourceAddr bool `koanf:"check_source_addr"`

	// Heartbeat is the interval this agent expects DAAdvert refreshes at;
	// it drives the Known-DA tracker's unreachable/evict thresholds.
	Heartbeat time.Duration `koanf:"heartbeat"`

	// StaticRegistrationFile, if set, is loaded at start and on SIGHUP,
	// diffed against the live SourceStatic entries in the registration
	// database.
	StaticRegistrationFile string `koanf:"static_registration_file"`

	// EnableDA adds the DA role to this agent's role set. Message handling
	// does not depend on it: SrvRqst for service:directory-agent is not
	// answered, no DAAdvert is originated, and SrvReg/SrvDeReg are handled
	// the same way with or without it.
	EnableDA bool `koanf:"enable_da"`
}

// DAAddrs parses DAAddresses as netip.Addr values.
func (a AgentConfig) DAAddrs() ([]netip.Addr, error) {
	addrs := make([]netip.Addr, 0, len(a.DAAddresses))
	for _, s := range a.DAAddresses {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("parse DA address %q: %w: %w", s, ErrInvalidDAAddress, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
//
// MTU defaults to 1400 (spec.md §4.7: a conservative bound that avoids
// IP fragmentation on most paths). Heartbeat defaults to 3 minutes,
// matching RFC 2608's recommended DAAdvert interval.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Addr: ":8427",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Agent: AgentConfig{
			UseScopes: "default",
			MTU:       1400,
			Heartbeat: 3 * time.Minute,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for goslp configuration.
// Variables are named GOSLP_<section>_<key>, e.g., GOSLP_ADMIN_ADDR.
const envPrefix = "GOSLP_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOSLP_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GOSLP_ADMIN_ADDR          -> admin.addr
//	GOSLP_METRICS_ADDR        -> metrics.addr
//	GOSLP_METRICS_PATH        -> metrics.path
//	GOSLP_LOG_LEVEL           -> log.level
//	GOSLP_LOG_FORMAT          -> log.format
//	GOSLP_AGENT_USE_SCOPES    -> agent.use_scopes
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// GOSLP_ADMIN_ADDR -> admin.addr (strip prefix, lowercase, first _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GOSLP_ADMIN_ADDR -> admin.addr.
// Strips the GOSLP_ prefix, lowercases, and replaces the first _ (the
// section separator) with ., so GOSLP_AGENT_USE_SCOPES -> agent.use_scopes.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":       defaults.Admin.Addr,
		"metrics.addr":     defaults.Metrics.Addr,
		"metrics.path":     defaults.Metrics.Path,
		"log.level":        defaults.Log.Level,
		"log.format":       defaults.Log.Format,
		"agent.use_scopes": defaults.Agent.UseScopes,
		"agent.mtu":        defaults.Agent.MTU,
		"agent.heartbeat":  defaults.Agent.Heartbeat.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAdminAddr indicates the admin API listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrInvalidMTU indicates the configured MTU is not positive.
	ErrInvalidMTU = errors.New("agent.mtu must be > 0")

	// ErrInvalidHeartbeat indicates the configured heartbeat is not
	// positive.
	ErrInvalidHeartbeat = errors.New("agent.heartbeat must be > 0")

	// ErrInvalidDAAddress indicates a static DA address failed to parse.
	ErrInvalidDAAddress = errors.New("agent.da_addresses entry is invalid")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}

	if cfg.Agent.MTU <= 0 {
		return ErrInvalidMTU
	}

	if cfg.Agent.Heartbeat <= 0 {
		return ErrInvalidHeartbeat
	}

	if _, err := cfg.Agent.DAAddrs(); err != nil {
		return err
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
