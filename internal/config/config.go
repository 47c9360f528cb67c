// Package config manages the file-storage daemon's configuration
// using koanf/v2.
//
// Supports YAML files and environment variables layered on top of
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete filestored configuration.
type Config struct {
	Listen         ListenConfig  `koanf:"listen"`
	BasePath       string        `koanf:"base_path"`
	CredentialsDir string        `koanf:"credentials_dir"`
	Log            LogConfig     `koanf:"log"`
	Metrics        MetricsConfig `koanf:"metrics"`
	Limits         LimitsConfig  `koanf:"limits"`
	Admin          AdminConfig   `koanf:"admin"`
}

// ListenConfig holds the file-storage socket's bind configuration.
type ListenConfig struct {
	// Addr is the TCP listen address (e.g., ":5001").
	Addr string `koanf:"addr"`
	// Interface names a network interface, the TCP analog of the
	// teacher's SO_BINDTODEVICE usage. It is loaded but not applied: the
	// file-storage listener binds on Addr alone.
	Interface string `koanf:"interface"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LimitsConfig holds configured values for the protocol's constants.
// Defaults match spec.md section 6's fixed values. They are loaded and
// validated only: the session and wire code use the fixed constants in
// internal/wire, so overriding them here does not change protocol
// behaviour.
type LimitsConfig struct {
	// MaxCmdSize bounds an in-memory DATA payload, in bytes.
	MaxCmdSize uint64 `koanf:"max_cmd_size"`
	// RetryCount bounds the checksum-retry loop per exchange.
	RetryCount int `koanf:"retry_count"`
	// Buffer is the chunk size for streamed reads and writes.
	Buffer int `koanf:"buffer"`
}

// AdminConfig holds the operator control-plane socket configuration.
type AdminConfig struct {
	// SocketPath is the Unix domain socket filestorectl connects to.
	SocketPath string `koanf:"socket_path"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the protocol's fixed
// constants (spec.md section 6) and conventional operational defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Addr: ":5001",
		},
		BasePath:       "/var/lib/filestored",
		CredentialsDir: "/etc/filestored",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Limits: LimitsConfig{
			MaxCmdSize: 256 * 1024 * 1024,
			RetryCount: 5,
			Buffer:     4096,
		},
		Admin: AdminConfig{
			SocketPath: "/run/filestored/admin.sock",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for filestored
// configuration. Variables are named FILESTORED_<section>_<key>, e.g.,
// FILESTORED_LISTEN_ADDR.
const envPrefix = "FILESTORED_"

// Load reads configuration from a YAML file at path, overlays
// environment variable overrides (FILESTORED_ prefix), and merges on
// top of DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	FILESTORED_LISTEN_ADDR      -> listen.addr
//	FILESTORED_BASE_PATH        -> base_path
//	FILESTORED_CREDENTIALS_DIR  -> credentials_dir
//	FILESTORED_LOG_LEVEL        -> log.level
//	FILESTORED_LOG_FORMAT       -> log.format
//	FILESTORED_METRICS_ADDR     -> metrics.addr
//	FILESTORED_ADMIN_SOCKET_PATH -> admin.socket_path
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

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

// envKeyMapper transforms FILESTORED_LISTEN_ADDR -> listen.addr.
// Strips the FILESTORED_ prefix, lowercases, and replaces the first
// remaining _ with . (section/key separator), leaving further
// underscores within a key name, such as max_cmd_size, intact.
// The top-level keys base_path and credentials_dir have no section and
// are returned unchanged.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	switch s {
	case "base_path", "credentials_dir":
		return s
	}
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"listen.addr":           defaults.Listen.Addr,
		"listen.interface":      defaults.Listen.Interface,
		"base_path":             defaults.BasePath,
		"credentials_dir":       defaults.CredentialsDir,
		"log.level":             defaults.Log.Level,
		"log.format":            defaults.Log.Format,
		"metrics.addr":          defaults.Metrics.Addr,
		"metrics.path":          defaults.Metrics.Path,
		"limits.max_cmd_size":   defaults.Limits.MaxCmdSize,
		"limits.retry_count":    defaults.Limits.RetryCount,
		"limits.buffer":         defaults.Limits.Buffer,
		"admin.socket_path":     defaults.Admin.SocketPath,
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
	// ErrEmptyListenAddr indicates the listen address is empty.
	ErrEmptyListenAddr = errors.New("listen.addr must not be empty")

	// ErrEmptyBasePath indicates the on-disk user tree root is unset.
	ErrEmptyBasePath = errors.New("base_path must not be empty")

	// ErrEmptyCredentialsDir indicates the credentials directory is unset.
	ErrEmptyCredentialsDir = errors.New("credentials_dir must not be empty")

	// ErrInvalidMaxCmdSize indicates limits.max_cmd_size is not positive.
	ErrInvalidMaxCmdSize = errors.New("limits.max_cmd_size must be > 0")

	// ErrInvalidRetryCount indicates limits.retry_count is not positive.
	ErrInvalidRetryCount = errors.New("limits.retry_count must be > 0")

	// ErrInvalidBuffer indicates limits.buffer is not positive.
	ErrInvalidBuffer = errors.New("limits.buffer must be > 0")

	// ErrEmptyAdminSocketPath indicates the admin socket path is unset.
	ErrEmptyAdminSocketPath = errors.New("admin.socket_path must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Listen.Addr == "" {
		return ErrEmptyListenAddr
	}
	if cfg.BasePath == "" {
		return ErrEmptyBasePath
	}
	if cfg.CredentialsDir == "" {
		return ErrEmptyCredentialsDir
	}
	if cfg.Limits.MaxCmdSize == 0 {
		return ErrInvalidMaxCmdSize
	}
	if cfg.Limits.RetryCount <= 0 {
		return ErrInvalidRetryCount
	}
	if cfg.Limits.Buffer <= 0 {
		return ErrInvalidBuffer
	}
	if cfg.Admin.SocketPath == "" {
		return ErrEmptyAdminSocketPath
	}
	return nil
}

// -------------------------------------------------------------------------
// Credential File Paths
// -------------------------------------------------------------------------

// UsernamesPath returns the path to the user-names credential file
// under CredentialsDir.
func (c *Config) UsernamesPath() string {
	return filepath.Join(c.CredentialsDir, "usernames.dat")
}

// UserdataPath returns the path to the credential-digests file under
// CredentialsDir.
func (c *Config) UserdataPath() string {
	return filepath.Join(c.CredentialsDir, "userdata.dat")
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the
// corresponding slog.Level. Unknown values default to slog.LevelInfo.
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
