// Package config provides viper-based configuration loading for the
// bridge, adapted from ttmesh/pkg/config/config.go's pattern
// (mapstructure-tagged leaf struct, Default() constructor, environment
// overrides, search-path config file lookup) but trimmed to the leaf-only
// option set spec.md §6 names — no transport-kind list, no node identity,
// no dial-backoff tuning, since those belonged to the teacher's multi-hop
// mesh, not this bridge.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the bridge's root configuration.
type Config struct {
	Mode         string `mapstructure:"mode"`          // host | client | peer
	InstanceName string `mapstructure:"instance_name"` // included as `source` on outgoing messages

	Listen ListenConfig  `mapstructure:"listen"`
	Connect ConnectConfig `mapstructure:"connect"`

	TaskTimeoutMS int64 `mapstructure:"task_timeout_ms"`

	ContextSharing ContextSharingConfig `mapstructure:"context_sharing"`
	Context        ContextEngineConfig  `mapstructure:"context"`

	Log LogConfig `mapstructure:"log"`
}

// ListenConfig configures the host-role server path.
type ListenConfig struct {
	Port int        `mapstructure:"port"`
	Host string      `mapstructure:"host"`
	TLS  bool        `mapstructure:"tls"`
	Auth AuthConfig  `mapstructure:"auth"`
}

// ConnectConfig configures the client-role dial path.
type ConnectConfig struct {
	URL                  string     `mapstructure:"url"` // takes precedence over host+port
	Host                 string     `mapstructure:"host"`
	Port                 int        `mapstructure:"port"`
	TLS                  bool       `mapstructure:"tls"`
	Auth                 AuthConfig `mapstructure:"auth"`
	Reconnect            bool       `mapstructure:"reconnect"`
	ReconnectIntervalMS  int64      `mapstructure:"reconnect_interval_ms"`
	MaxReconnectAttempts int        `mapstructure:"max_reconnect_attempts"`
}

// AuthConfig is consumed by internal/bridgeauth's reference Authenticator;
// the core itself treats authentication as an opaque hook (spec.md §4.3).
// Mode "" or "static" is a single shared Token (optionally CIDR-scoped);
// mode "signed" verifies an ed25519-signed bearer token against
// TrustedPublicKeys (on a Listen side) or mints one from PrivateKeyB64/
// PrivateKeyFile (on a Connect side) via internal/bridgeauth's token pair.
type AuthConfig struct {
	Mode         string   `mapstructure:"mode"`
	Token        string   `mapstructure:"token"`
	AllowedCIDRs []string `mapstructure:"allowed_cidrs"`

	TrustedPublicKeys []string `mapstructure:"trusted_public_keys"`
	TokenMaxAgeMS     int64    `mapstructure:"token_max_age_ms"`

	PrivateKeyB64  string `mapstructure:"private_key_b64"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
}

// ContextSharingConfig controls AutoSync.
type ContextSharingConfig struct {
	AutoSync     bool  `mapstructure:"auto_sync"`
	SyncIntervalMS int64 `mapstructure:"sync_interval_ms"`
}

// ContextEngineConfig mirrors spec.md §4.8's enumerated options.
type ContextEngineConfig struct {
	RootPath          string   `mapstructure:"root_path"`
	IncludePatterns   []string `mapstructure:"include_patterns"`
	ExcludePatterns   []string `mapstructure:"exclude_patterns"`
	MaxDepth          int      `mapstructure:"max_depth"`
	TokenBudget       int      `mapstructure:"token_budget"`
	SnapshotMaxAgeMS  int64    `mapstructure:"snapshot_max_age_ms"` // 0 = snapshots are never evicted
}

// LogConfig defines logger settings, unchanged in shape from the teacher's
// observability wiring.
type LogConfig struct {
	Level       string         `mapstructure:"level"`
	Format      string         `mapstructure:"format"`
	Outputs     []string       `mapstructure:"outputs"`
	Development bool           `mapstructure:"development"`
	Rotation    RotationConfig `mapstructure:"rotation"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// Default returns a Config populated with the defaults spec.md §6 and §4.2
// name explicitly (1000ms/10 reconnect defaults, 300s task timeout, 5s
// sync interval, depth 10 tree walk).
func Default() *Config {
	return &Config{
		Mode:         "peer",
		InstanceName: "bridge-node",
		Listen: ListenConfig{
			Port: 7777, Host: "0.0.0.0",
			Auth: AuthConfig{Mode: "static", TokenMaxAgeMS: 300_000},
		},
		Connect: ConnectConfig{
			Reconnect:            true,
			ReconnectIntervalMS:  1000,
			MaxReconnectAttempts: 10,
			Auth:                 AuthConfig{Mode: "static", TokenMaxAgeMS: 300_000},
		},
		TaskTimeoutMS: 300_000,
		ContextSharing: ContextSharingConfig{
			AutoSync:       false,
			SyncIntervalMS: 5000,
		},
		Context: ContextEngineConfig{
			MaxDepth:    10,
			TokenBudget: 8000,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/bridge.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Load reads configuration from path (if non-empty), otherwise searches
// common locations, and always applies environment overrides with prefix
// BRIDGE_ (the teacher uses TTMESH_); `.`/`-` are replaced with `_`.
// Example: BRIDGE_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	seedDefaults(v, cfg)

	if path == "" {
		if envPath := os.Getenv("BRIDGE_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("bridge")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".bridge"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func seedDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("instance_name", cfg.InstanceName)
	v.SetDefault("listen.port", cfg.Listen.Port)
	v.SetDefault("listen.host", cfg.Listen.Host)
	v.SetDefault("connect.reconnect", cfg.Connect.Reconnect)
	v.SetDefault("connect.reconnect_interval_ms", cfg.Connect.ReconnectIntervalMS)
	v.SetDefault("connect.max_reconnect_attempts", cfg.Connect.MaxReconnectAttempts)
	v.SetDefault("task_timeout_ms", cfg.TaskTimeoutMS)
	v.SetDefault("context_sharing.auto_sync", cfg.ContextSharing.AutoSync)
	v.SetDefault("context_sharing.sync_interval_ms", cfg.ContextSharing.SyncIntervalMS)
	v.SetDefault("context.max_depth", cfg.Context.MaxDepth)
	v.SetDefault("context.token_budget", cfg.Context.TokenBudget)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
}

func (c *Config) validate() error {
	switch c.Mode {
	case "host", "client", "peer":
	default:
		return fmt.Errorf("invalid mode: %q", c.Mode)
	}

	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if strings.TrimSpace(c.InstanceName) == "" {
		c.InstanceName = "bridge-node"
	}
	if c.TaskTimeoutMS <= 0 {
		c.TaskTimeoutMS = 300_000
	}
	if c.Context.MaxDepth <= 0 {
		c.Context.MaxDepth = 10
	}

	switch c.Mode {
	case "host":
		if c.Listen.Port == 0 {
			return fmt.Errorf("mode host requires listen.port")
		}
	case "client":
		if c.Connect.URL == "" && (c.Connect.Host == "" || c.Connect.Port == 0) {
			return fmt.Errorf("mode client requires connect.url or connect.host+port")
		}
	case "peer":
		hasListen := c.Listen.Port != 0
		hasConnect := c.Connect.URL != "" || (c.Connect.Host != "" && c.Connect.Port != 0)
		if !hasListen && !hasConnect {
			return fmt.Errorf("mode peer requires at least one of listen.port or connect.url/host+port")
		}
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
