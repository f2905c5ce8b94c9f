package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestForgePath_Default(t *testing.T) {
	t.Setenv("FORGE_PATH", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := ForgePath()
	want := filepath.Join(home, ".forge")
	if got != want {
		t.Errorf("ForgePath() = %q, want %q", got, want)
	}
}

func TestForgePath_EnvOverride(t *testing.T) {
	t.Setenv("FORGE_PATH", "/tmp/custom-forge")

	if got := ForgePath(); got != "/tmp/custom-forge" {
		t.Errorf("ForgePath() = %q, want %q", got, "/tmp/custom-forge")
	}
}

func TestDerivedPaths(t *testing.T) {
	t.Setenv("FORGE_PATH", "/tmp/test-forge")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"config", ConfigPath(), "/tmp/test-forge/config.jsonc"},
		{"dotenv", DotenvPath(), "/tmp/test-forge/.env"},
		{"key", KeyPath(), "/tmp/test-forge/.age-key"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s path = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
