package config

import (
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CHORED_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "CHORED_API_TOKEN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CHORED_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "history.retention_days", typ: kInt, env: "CHORED_HISTORY_RETENTION_DAYS",
		apply:   func(cfg *Config, v any) { cfg.History.RetentionDays = v.(int) },
		extract: func(cfg Config) any { return cfg.History.RetentionDays },
	},
	{
		key: "sweep.time", typ: kString, env: "CHORED_SWEEP_TIME",
		apply:   func(cfg *Config, v any) { cfg.Sweep.Time = v.(string) },
		extract: func(cfg Config) any { return cfg.Sweep.Time },
	},
	{
		key: "log.level", typ: kString, env: "CHORED_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			val, ok, err := b.GetString(s.key)
			if err != nil {
				return err
			}
			if ok && val != "" {
				s.apply(cfg, val)
			}
		case kInt:
			val, ok, err := b.GetInt(s.key)
			if err != nil {
				return err
			}
			if ok {
				s.apply(cfg, val)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			}
		}
	}
}
