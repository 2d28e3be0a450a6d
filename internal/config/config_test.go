// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "cvfill", cfg.Logger().ServiceName)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 60*time.Second, cfg.Browser().NavigationTimeout)
	assert.Equal(t, 2*time.Second, cfg.Autofill().HighlightDuration)
	assert.Equal(t, 3*time.Second, cfg.Autofill().OverlayDuration)
	assert.False(t, cfg.Autofill().PersistHighlights, "overlays auto-clear by default")
	assert.Equal(t, []string{"input", "change"}, cfg.Autofill().EventOrder)
	assert.True(t, cfg.Watcher().Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Watcher().DebounceWindow)
	assert.Equal(t, "127.0.0.1:8765", cfg.Bridge().ListenAddr)
	assert.Equal(t, "file", cfg.Store().Kind)
	require.NoError(t, cfg.Validate())
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetBrowserHeadless(true)
	iface.SetWatcherEnabled(false)
	iface.SetBridgeListenAddr(":9000")
	iface.SetStorePath("/tmp/p.json")

	assert.True(t, cfg.Browser().Headless)
	assert.False(t, cfg.Watcher().Enabled)
	assert.Equal(t, ":9000", cfg.Bridge().ListenAddr)
	assert.Equal(t, "/tmp/p.json", cfg.Store().Path)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Autofill Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()

		noEvents := *cfg
		noEvents.AutofillCfg.EventOrder = nil
		err := noEvents.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "event_order must list at least one event")

		blankEvent := *cfg
		blankEvent.AutofillCfg.EventOrder = []string{"input", " "}
		err = blankEvent.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty event name")

		negative := *cfg
		negative.AutofillCfg.OverlayDuration = -time.Second
		assert.Error(t, negative.Validate())
	})

	t.Run("Watcher Validation", func(t *testing.T) {
		w := WatcherConfig{Enabled: true, RescanRate: 2}
		err := w.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rescan_burst must be positive")

		w.RescanBurst = 1
		assert.NoError(t, w.Validate())

		w.DebounceWindow = -1
		assert.Error(t, w.Validate())
	})

	t.Run("Store Validation", func(t *testing.T) {
		s := StoreConfig{Kind: "postgres"}
		err := s.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CVFILL_DATABASE_URL")

		s.DatabaseURL = "postgres://localhost/cvfill"
		assert.NoError(t, s.Validate())

		s = StoreConfig{Kind: "redis"}
		assert.ErrorContains(t, s.Validate(), `unknown store kind "redis"`)

		s = StoreConfig{Kind: "file"}
		assert.ErrorContains(t, s.Validate(), "path is required")
	})
}

// -- Loading Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlConfig := []byte(`
logger:
  level: debug
autofill:
  highlight_duration: 500ms
  event_order: [change, input]
  excluded_sites:
    - bank.example
watcher:
  debounce_window: 0s
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.Logger().Level)
		assert.Equal(t, 500*time.Millisecond, cfg.Autofill().HighlightDuration)
		assert.Equal(t, []string{"change", "input"}, cfg.Autofill().EventOrder)
		assert.Equal(t, []string{"bank.example"}, cfg.Autofill().ExcludedSites)
		assert.Zero(t, cfg.Watcher().DebounceWindow)
		// Untouched keys keep their defaults.
		assert.Equal(t, 3*time.Second, cfg.Autofill().OverlayDuration)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("store.kind", "postgres")
		t.Setenv("CVFILL_DATABASE_URL", "")
		t.Setenv("DATABASE_URL", "")

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		t.Setenv("CVFILL_DATABASE_URL", "postgres://env-host/cvfill")

		v := viper.New()
		SetDefaults(v)
		v.Set("store.kind", "postgres")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "postgres://env-host/cvfill", cfg.Store().DatabaseURL)
	})
}
