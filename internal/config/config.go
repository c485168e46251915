package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	History HistoryConfig
	Sweep   SweepConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type HistoryConfig struct {
	RetentionDays int
}

type SweepConfig struct {
	// Time is the local HH:MM at which the daily sweep fires.
	Time string
}

type LogConfig struct {
	Level string
}

// Retention converts the configured retention window to a duration.
func (h HistoryConfig) Retention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		History: HistoryConfig{
			RetentionDays: 14,
		},
		Sweep: SweepConfig{
			Time: "07:00",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/chored/config.json, then applies CHORED_* environment
// overrides on top.
func Load() (Config, error) {
	return loadWith(NewBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if _, err := time.Parse("15:04", cfg.Sweep.Time); err != nil {
		return Config{}, fmt.Errorf("invalid sweep.time %q: must be HH:MM", cfg.Sweep.Time)
	}
	if cfg.History.RetentionDays <= 0 {
		return Config{}, fmt.Errorf("invalid history.retention_days %d: must be positive", cfg.History.RetentionDays)
	}

	return cfg, nil
}
