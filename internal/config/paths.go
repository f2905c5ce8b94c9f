package config

import (
	"os"
	"path/filepath"
)

// ForgePath returns the root directory for forge data.
// It uses $FORGE_PATH if set, otherwise defaults to ~/.forge.
func ForgePath() string {
	if v := os.Getenv("FORGE_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".forge")
	}
	return filepath.Join(home, ".forge")
}

// ConfigPath returns the path to the forge config file.
func ConfigPath() string {
	return filepath.Join(ForgePath(), "config.jsonc")
}

// DotenvPath returns the path to the forge .env file.
func DotenvPath() string {
	return filepath.Join(ForgePath(), ".env")
}

// KeyPath returns the path to the age identity used for encrypted exports.
func KeyPath() string {
	return filepath.Join(ForgePath(), ".age-key")
}

// HeartbeatPath returns the path of the gateway heartbeat file.
func HeartbeatPath() string {
	return filepath.Join(ForgePath(), "heartbeat.json")
}
