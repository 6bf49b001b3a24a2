package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	settings, err := load(filepath.Join(t.TempDir(), "missing.yaml"), false, env.Options{Prefix: EnvPrefix, Environment: map[string]string{}})
	require.NoError(t, err)
	require.Equal(t, Default(), settings)

	_, err = load(filepath.Join(t.TempDir(), "missing.yaml"), true, env.Options{Prefix: EnvPrefix, Environment: map[string]string{}})
	require.Error(t, err)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	t.Parallel()

	path := writeSettings(t, `
LOG_LEVEL: debug
TRUST_LIST_PATH: /etc/covidpass/dsc.txt
RELOAD_INTERVAL: 15m
`)
	environ := map[string]string{
		"COVIDPASS_LOG_LEVEL":   "warn",
		"COVIDPASS_LISTEN_ADDR": "127.0.0.1:9000",
		"LISTEN_ADDR":           "ignored without prefix",
	}

	settings, err := load(path, true, env.Options{Prefix: EnvPrefix, Environment: environ})
	require.NoError(t, err)
	require.Equal(t, "warn", settings.LogLevel)
	require.Equal(t, "/etc/covidpass/dsc.txt", settings.TrustListPath)
	require.Equal(t, 15*time.Minute, settings.ReloadInterval)
	require.Equal(t, "127.0.0.1:9000", settings.ListenAddr)
	require.Equal(t, ":8888", settings.MonitoringAddr)
	require.Equal(t, DefaultTrustListURL, settings.TrustListURL)
}

func TestLoadInvalid(t *testing.T) {
	t.Parallel()

	_, err := load(writeSettings(t, "LOG_LEVEL: [unclosed"), true, env.Options{Prefix: EnvPrefix, Environment: map[string]string{}})
	require.Error(t, err)

	_, err = load("", false, env.Options{Prefix: EnvPrefix, Environment: map[string]string{"COVIDPASS_RELOAD_INTERVAL": "often"}})
	require.Error(t, err)
}
