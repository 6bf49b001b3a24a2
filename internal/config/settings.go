// Package config loads the settings shared by the command line and the
// server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable overriding a setting.
const EnvPrefix = "COVIDPASS_"

// DefaultTrustListURL serves the German gateway's DSC list.
const DefaultTrustListURL = "https://de.dscg.ubirch.com/trustList/DSC/"

// Settings contains the application config.
type Settings struct {
	LogLevel      string `env:"LOG_LEVEL"       yaml:"LOG_LEVEL"`
	TrustListPath string `env:"TRUST_LIST_PATH" yaml:"TRUST_LIST_PATH"`
	TrustListURL  string `env:"TRUST_LIST_URL"  yaml:"TRUST_LIST_URL"`
	StorePath     string `env:"STORE_PATH"      yaml:"STORE_PATH"`

	ListenAddr     string        `env:"LISTEN_ADDR"     yaml:"LISTEN_ADDR"`
	MonitoringAddr string        `env:"MONITORING_ADDR" yaml:"MONITORING_ADDR"`
	ReloadInterval time.Duration `env:"RELOAD_INTERVAL" yaml:"RELOAD_INTERVAL"`
}

// Default returns the settings used when nothing overrides them.
func Default() Settings {
	return Settings{
		LogLevel:       "info",
		TrustListPath:  "trust_list.txt",
		TrustListURL:   DefaultTrustListURL,
		StorePath:      "certificates.db",
		ListenAddr:     ":8080",
		MonitoringAddr: ":8888",
		ReloadInterval: time.Hour,
	}
}

// Load reads settings from path on top of the defaults and applies
// environment overrides. A missing file is not an error unless required.
func Load(path string, required bool) (Settings, error) {
	return load(path, required, env.Options{Prefix: EnvPrefix})
}

func load(path string, required bool, opts env.Options) (Settings, error) {
	settings := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist) && !required:
		case err != nil:
			return settings, fmt.Errorf("reading settings: %w", err)
		default:
			if err := yaml.Unmarshal(data, &settings); err != nil {
				return settings, fmt.Errorf("parsing settings %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(&settings, opts); err != nil {
		return settings, fmt.Errorf("parsing environment: %w", err)
	}
	return settings, nil
}
