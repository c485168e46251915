package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// GetAPIToken returns the bearer token protecting the daemon API. Lookup
// order: CHORED_API_TOKEN, the config backend, and finally a freshly
// generated token persisted to the backend so the CLI and daemon agree
// across restarts.
func GetAPIToken(b Backend) (string, error) {
	if env := os.Getenv("CHORED_API_TOKEN"); env != "" {
		return env, nil
	}

	if val, ok, err := b.GetString("server.api_token"); err == nil && ok && val != "" {
		return val, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := b.SetString("server.api_token", token); err != nil {
		return "", fmt.Errorf("persisting API token: %w", err)
	}
	return token, nil
}
