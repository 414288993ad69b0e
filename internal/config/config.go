// Package config loads stocksync settings from flags, environment and a
// config file.
//
// Precedence, highest first: command-line flags, STOCKSYNC_* environment
// variables, the config file (stocksync.toml or stocksync.yaml), defaults.
// Nested keys map to environment variables with dots replaced by
// underscores, so server.url is STOCKSYNC_SERVER_URL.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"github.com/stockmaster/stocksync/internal/remote"
	"github.com/stockmaster/stocksync/internal/store"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "STOCKSYNC"

// FileName is the config file base name, without extension.
const FileName = "stocksync"

// Keys.
const (
	KeyServerURL      = "server.url"
	KeyHTTPTimeout    = "server.timeout"
	KeyStoreBackend   = "store.backend"
	KeyStorePath      = "store.path"
	KeyAutoSync       = "sync.auto_interval"
	KeyDebounce       = "sync.debounce"
	KeyPollInterval   = "connectivity.poll_interval"
	KeyProbeTimeout   = "connectivity.probe_timeout"
	KeyReconnectEvery = "connectivity.reconnect_every"
	KeyDashboardAddr  = "dashboard.addr"
	KeyLogFile        = "log.file"
	KeyLogMaxSizeMB   = "log.max_size_mb"
	KeyLogMaxBackups  = "log.max_backups"
	KeyLogMaxAgeDays  = "log.max_age_days"
)

// Config is the resolved configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"`
	Log          LogConfig          `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// ServerConfig locates the sync server.
type ServerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects the local store.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// SyncConfig tunes the auto-sync daemon.
type SyncConfig struct {
	AutoInterval time.Duration `mapstructure:"auto_interval"`
	Debounce     time.Duration `mapstructure:"debounce"`
}

// ConnectivityConfig tunes the connectivity monitor.
type ConnectivityConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	ReconnectEvery time.Duration `mapstructure:"reconnect_every"`
}

// DashboardConfig configures the WebSocket status feed.
type DashboardConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig routes logs to a rotating file when File is set.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DefaultDir returns the per-user directory holding the config file and
// the default store.
func DefaultDir() string {
	if dir := os.Getenv(EnvPrefix + "_HOME"); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "stocksync")
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	dir := DefaultDir()
	v.SetDefault(KeyServerURL, remote.DefaultBaseURL)
	v.SetDefault(KeyHTTPTimeout, 60*time.Second)
	v.SetDefault(KeyStoreBackend, string(store.BackendSQLite))
	v.SetDefault(KeyStorePath, filepath.Join(dir, "store.db"))
	v.SetDefault(KeyAutoSync, 5*time.Minute)
	v.SetDefault(KeyDebounce, 2*time.Second)
	v.SetDefault(KeyPollInterval, 30*time.Second)
	v.SetDefault(KeyProbeTimeout, 10*time.Second)
	v.SetDefault(KeyReconnectEvery, 10*time.Second)
	v.SetDefault(KeyDashboardAddr, "127.0.0.1:8765")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeyLogMaxAgeDays, 28)
}

// Load resolves the configuration held by v. If file is empty the config
// file is searched for in the working directory and DefaultDir; a missing
// file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := store.ParseBackend(c.Store.Backend); err != nil {
		return err
	}
	if c.Store.Backend != string(store.BackendMemory) && c.Store.Path == "" {
		return fmt.Errorf("%s must be set for the %s backend", KeyStorePath, c.Store.Backend)
	}
	if !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		return fmt.Errorf("%s must be an http or https URL, got %q", KeyServerURL, c.Server.URL)
	}
	for key, d := range map[string]time.Duration{
		KeyHTTPTimeout:  c.Server.Timeout,
		KeyPollInterval: c.Connectivity.PollInterval,
		KeyProbeTimeout: c.Connectivity.ProbeTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", key, d)
		}
	}
	return nil
}

// Logger returns a logger with the given prefix. Output goes to the
// rotating log file when one is configured, otherwise to stderr. The
// returned closer releases the file.
func (c *Config) Logger(prefix string) (*log.Logger, io.Closer) {
	if c.Log.File == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags), nopCloser{}
	}
	w := &lumberjack.Logger{
		Filename:   c.Log.File,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
		Compress:   true,
	}
	return log.New(w, prefix, log.LstdFlags), w
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fileLayout mirrors Config with durations written as strings ("5m0s").
type fileLayout struct {
	Server struct {
		URL     string `toml:"url"`
		Timeout string `toml:"timeout"`
	} `toml:"server"`
	Store struct {
		Backend string `toml:"backend"`
		Path    string `toml:"path"`
	} `toml:"store"`
	Sync struct {
		AutoInterval string `toml:"auto_interval"`
		Debounce     string `toml:"debounce"`
	} `toml:"sync"`
	Connectivity struct {
		PollInterval   string `toml:"poll_interval"`
		ProbeTimeout   string `toml:"probe_timeout"`
		ReconnectEvery string `toml:"reconnect_every"`
	} `toml:"connectivity"`
	Dashboard struct {
		Addr string `toml:"addr"`
	} `toml:"dashboard"`
	Log struct {
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
	} `toml:"log"`
}

// WriteFile writes c to path as TOML. An existing file is only replaced
// when force is set.
func WriteFile(path string, c *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
	}

	var f fileLayout
	f.Server.URL = c.Server.URL
	f.Server.Timeout = c.Server.Timeout.String()
	f.Store.Backend = c.Store.Backend
	f.Store.Path = c.Store.Path
	f.Sync.AutoInterval = c.Sync.AutoInterval.String()
	f.Sync.Debounce = c.Sync.Debounce.String()
	f.Connectivity.PollInterval = c.Connectivity.PollInterval.String()
	f.Connectivity.ProbeTimeout = c.Connectivity.ProbeTimeout.String()
	f.Connectivity.ReconnectEvery = c.Connectivity.ReconnectEvery.String()
	f.Dashboard.Addr = c.Dashboard.Addr
	f.Log.File = c.Log.File
	f.Log.MaxSizeMB = c.Log.MaxSizeMB
	f.Log.MaxBackups = c.Log.MaxBackups
	f.Log.MaxAgeDays = c.Log.MaxAgeDays

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# stocksync configuration\n")
	b.WriteString("# Every key can be overridden with a STOCKSYNC_<SECTION>_<KEY> environment variable.\n\n")
	if err := toml.NewEncoder(&b).Encode(f); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
