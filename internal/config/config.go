// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Autofill() AutofillConfig
	Watcher() WatcherConfig
	Bridge() BridgeConfig
	Store() StoreConfig

	// Browser Setters
	SetBrowserHeadless(bool)

	// Watcher Setters
	SetWatcherEnabled(bool)

	// Bridge Setters
	SetBridgeListenAddr(string)

	// Store Setters
	SetStorePath(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	AutofillCfg AutofillConfig `mapstructure:"autofill" yaml:"autofill"`
	WatcherCfg  WatcherConfig  `mapstructure:"watcher" yaml:"watcher"`
	BridgeCfg   BridgeConfig   `mapstructure:"bridge" yaml:"bridge"`
	StoreCfg    StoreConfig    `mapstructure:"store" yaml:"store"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Autofill() AutofillConfig { return c.AutofillCfg }
func (c *Config) Watcher() WatcherConfig   { return c.WatcherCfg }
func (c *Config) Bridge() BridgeConfig     { return c.BridgeCfg }
func (c *Config) Store() StoreConfig       { return c.StoreCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)    { c.BrowserCfg.Headless = b }
func (c *Config) SetWatcherEnabled(b bool)     { c.WatcherCfg.Enabled = b }
func (c *Config) SetBridgeListenAddr(a string) { c.BridgeCfg.ListenAddr = a }
func (c *Config) SetStorePath(p string)        { c.StoreCfg.Path = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chromium instance that hosts the live page.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// AutofillConfig tunes the page-visible side effects of detection and filling.
type AutofillConfig struct {
	// HighlightColor is the outline color used for the transient per-field flash.
	HighlightColor string `mapstructure:"highlight_color" yaml:"highlight_color"`
	// HighlightDuration is how long a written field stays flashed before its style is restored.
	HighlightDuration time.Duration `mapstructure:"highlight_duration" yaml:"highlight_duration"`
	// OverlayDuration is how long form overlays from detectForms stay up when not persisted.
	OverlayDuration time.Duration `mapstructure:"overlay_duration" yaml:"overlay_duration"`
	// PersistHighlights is the default for requests that don't set persistHighlights.
	PersistHighlights bool `mapstructure:"persist_highlights" yaml:"persist_highlights"`
	// EventOrder lists the DOM events dispatched after every write, in order.
	EventOrder []string `mapstructure:"event_order" yaml:"event_order"`
	// ExcludedSites are host suffixes on which fill requests are refused.
	ExcludedSites []string `mapstructure:"excluded_sites" yaml:"excluded_sites"`
}

// WatcherConfig controls mutation-driven rescans.
type WatcherConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// DebounceWindow collapses mutation bursts into one rescan. Zero rescans per batch.
	DebounceWindow time.Duration `mapstructure:"debounce_window" yaml:"debounce_window"`
	// RescanRate caps rescans per second. Zero means unlimited.
	RescanRate  float64 `mapstructure:"rescan_rate" yaml:"rescan_rate"`
	RescanBurst int     `mapstructure:"rescan_burst" yaml:"rescan_burst"`
}

// BridgeConfig configures the HTTP/WebSocket message bridge.
type BridgeConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// StoreConfig selects where the CLI reads profile records from.
type StoreConfig struct {
	// Kind is either "file" or "postgres".
	Kind        string `mapstructure:"kind" yaml:"kind"`
	Path        string `mapstructure:"path" yaml:"path"`
	DatabaseURL string `mapstructure:"database_url" yaml:"-"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "cvfill")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.post_load_wait", "1s")

	// -- Autofill --
	v.SetDefault("autofill.highlight_color", "#4CAF50")
	v.SetDefault("autofill.highlight_duration", "2s")
	v.SetDefault("autofill.overlay_duration", "3s")
	v.SetDefault("autofill.persist_highlights", false)
	v.SetDefault("autofill.event_order", []string{"input", "change"})

	// -- Watcher --
	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.debounce_window", "250ms")
	v.SetDefault("watcher.rescan_rate", 4.0)
	v.SetDefault("watcher.rescan_burst", 1)

	// -- Bridge --
	v.SetDefault("bridge.listen_addr", "127.0.0.1:8765")

	// -- Store --
	v.SetDefault("store.kind", "file")
	v.SetDefault("store.path", "~/.cvfill/profile.json")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("store.database_url", "CVFILL_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.StoreCfg.Kind == "postgres" && cfg.StoreCfg.DatabaseURL == "" {
		cfg.StoreCfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AutofillCfg.Validate(); err != nil {
		return fmt.Errorf("autofill configuration invalid: %w", err)
	}
	if err := c.WatcherCfg.Validate(); err != nil {
		return fmt.Errorf("watcher configuration invalid: %w", err)
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the Autofill configuration.
func (a *AutofillConfig) Validate() error {
	if a.HighlightDuration < 0 || a.OverlayDuration < 0 {
		return fmt.Errorf("highlight_duration and overlay_duration must not be negative")
	}
	if len(a.EventOrder) == 0 {
		return fmt.Errorf("event_order must list at least one event")
	}
	for _, ev := range a.EventOrder {
		if strings.TrimSpace(ev) == "" {
			return fmt.Errorf("event_order contains an empty event name")
		}
	}
	return nil
}

// Validate checks the Watcher configuration.
func (w *WatcherConfig) Validate() error {
	if w.DebounceWindow < 0 {
		return fmt.Errorf("debounce_window must not be negative")
	}
	if w.RescanRate < 0 {
		return fmt.Errorf("rescan_rate must not be negative")
	}
	if w.RescanRate > 0 && w.RescanBurst <= 0 {
		return fmt.Errorf("rescan_burst must be positive when rescan_rate is set")
	}
	return nil
}

// Validate checks the Store configuration.
func (s *StoreConfig) Validate() error {
	switch s.Kind {
	case "file":
		if s.Path == "" {
			return fmt.Errorf("path is required for the file store")
		}
	case "postgres":
		if s.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the postgres store. Ensure CVFILL_DATABASE_URL is set")
		}
	default:
		return fmt.Errorf("unknown store kind %q", s.Kind)
	}
	return nil
}
