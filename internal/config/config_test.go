package config

import (
	"strings"
	"testing"
)

// memBackend is an in-memory Backend for tests.
type memBackend struct {
	data map[string]any
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string]any)}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (m *memBackend) SetString(key, val string) error {
	m.data[key] = val
	return nil
}

func (m *memBackend) SetInt(key string, val int) error {
	m.data[key] = val
	return nil
}

func (m *memBackend) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.History.RetentionDays != 14 {
		t.Errorf("History.RetentionDays = %d, want 14", cfg.History.RetentionDays)
	}
	if cfg.Sweep.Time != "07:00" {
		t.Errorf("Sweep.Time = %q, want 07:00", cfg.Sweep.Time)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestBackendValuesApplied(t *testing.T) {
	clearEnv(t)

	b := newMemBackend()
	b.SetInt("server.port", 5000)
	b.SetString("sweep.time", "06:30")
	b.SetInt("history.retention_days", 30)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Sweep.Time != "06:30" {
		t.Errorf("Sweep.Time = %q, want 06:30", cfg.Sweep.Time)
	}
	if cfg.History.RetentionDays != 30 {
		t.Errorf("History.RetentionDays = %d, want 30", cfg.History.RetentionDays)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHORED_SERVER_PORT", "7000")
	t.Setenv("CHORED_SWEEP_TIME", "21:15")

	b := newMemBackend()
	b.SetInt("server.port", 5000)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want env override 7000", cfg.Server.Port)
	}
	if cfg.Sweep.Time != "21:15" {
		t.Errorf("Sweep.Time = %q, want 21:15", cfg.Sweep.Time)
	}
}

func TestInvalidSweepTimeRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHORED_SWEEP_TIME", "7am")

	if _, err := loadWith(newMemBackend()); err == nil {
		t.Error("loadWith accepted malformed sweep time")
	}
}

func TestInvalidRetentionRejected(t *testing.T) {
	clearEnv(t)

	b := newMemBackend()
	b.SetInt("history.retention_days", 0)

	if _, err := loadWith(b); err == nil {
		t.Error("loadWith accepted zero retention")
	}
}

func TestSetKey(t *testing.T) {
	b := newMemBackend()

	if err := setKeyWith(b, "server.port", "8080"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	if v, _, _ := b.GetInt("server.port"); v != 8080 {
		t.Errorf("server.port = %d, want 8080", v)
	}

	if err := setKeyWith(b, "server.port", "not-a-number"); err == nil {
		t.Error("setKeyWith accepted non-integer for int key")
	}
	if err := setKeyWith(b, "bogus.key", "x"); err == nil {
		t.Error("setKeyWith accepted unknown key")
	}
	if err := setKeyWith(b, "server.api_token", "x"); err == nil || !strings.Contains(err.Error(), "secret") {
		t.Errorf("setKeyWith on secret = %v, want secret error", err)
	}
}

func TestGetAPITokenGeneratesAndPersists(t *testing.T) {
	clearEnv(t)

	b := newMemBackend()
	tok1, err := GetAPIToken(b)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(tok1) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(tok1))
	}

	tok2, err := GetAPIToken(b)
	if err != nil {
		t.Fatalf("GetAPIToken (second): %v", err)
	}
	if tok1 != tok2 {
		t.Error("token not stable across calls")
	}
}

func TestGetAPITokenEnvWins(t *testing.T) {
	t.Setenv("CHORED_API_TOKEN", "env-token")

	tok, err := GetAPIToken(newMemBackend())
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if tok != "env-token" {
		t.Errorf("token = %q, want env-token", tok)
	}
}
