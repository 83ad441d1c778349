package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Plugin.ActionUUID != DefaultActionUUID {
		t.Errorf("ActionUUID = %q, want %q", cfg.Plugin.ActionUUID, DefaultActionUUID)
	}
	if cfg.SmartThings.BaseURL != "https://api.smartthings.com/v1" {
		t.Errorf("BaseURL = %q", cfg.SmartThings.BaseURL)
	}
	if got := cfg.SmartThings.Timeout.Duration(); got != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", got)
	}
	if got := cfg.Dispatch.GroupRefreshDelay.Duration(); got != time.Second {
		t.Errorf("GroupRefreshDelay = %v, want 1s", got)
	}
	if got := cfg.Dispatch.DeviceRefreshDelay.Duration(); got != 800*time.Millisecond {
		t.Errorf("DeviceRefreshDelay = %v, want 800ms", got)
	}
	if cfg.Log.Level != "info" || cfg.Log.File != "stdeck.log" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.History.Enabled {
		t.Error("history should be opt-in")
	}
	if cfg.EventBus.GetQueueSize() != 100 {
		t.Errorf("GetQueueSize() = %d", cfg.EventBus.GetQueueSize())
	}
}

func TestLoad_OverridesAndEnv(t *testing.T) {
	t.Setenv("STDECK_TEST_BASE", "http://localhost:8080/v1")

	path := writeConfig(t, `
plugin:
  action_uuid: com.example.custom
smartthings:
  base_url: ${STDECK_TEST_BASE}
  timeout: 5s
  pacing_rps: 2.5
dispatch:
  scene_refresh_delay: 1500ms
log:
  level: ${STDECK_TEST_UNSET:debug}
  json: true
  file: "-"
history:
  enabled: true
  retention_days: 7
healthcheck:
  enabled: true
  port: 9191
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Plugin.ActionUUID != "com.example.custom" {
		t.Errorf("ActionUUID = %q", cfg.Plugin.ActionUUID)
	}
	if cfg.SmartThings.BaseURL != "http://localhost:8080/v1" {
		t.Errorf("BaseURL = %q", cfg.SmartThings.BaseURL)
	}
	if cfg.SmartThings.Timeout.Duration() != 5*time.Second {
		t.Errorf("Timeout = %v", cfg.SmartThings.Timeout.Duration())
	}
	if got := cfg.SmartThings.GetPacingRPS(); got != 2.5 {
		t.Errorf("GetPacingRPS() = %v, want 2.5", got)
	}
	if cfg.Dispatch.SceneRefreshDelay.Duration() != 1500*time.Millisecond {
		t.Errorf("SceneRefreshDelay = %v", cfg.Dispatch.SceneRefreshDelay.Duration())
	}
	if cfg.Log.Level != "debug" || !cfg.Log.UseJSON || cfg.Log.File != "-" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if !cfg.History.Enabled || cfg.History.Retention() != 7*24*time.Hour {
		t.Errorf("History = %+v", cfg.History)
	}
	if cfg.Healthcheck.GetPort() != 9191 || cfg.Healthcheck.GetHost() != "127.0.0.1" {
		t.Errorf("Healthcheck = %+v", cfg.Healthcheck)
	}
}

func TestLoad_PacingRPS(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{"absent uses default", "smartthings:\n  timeout: 5s\n", DefaultPacingRPS},
		{"zero disables pacing", "smartthings:\n  pacing_rps: 0\n", 0},
		{"negative disables pacing", "smartthings:\n  pacing_rps: -1\n", -1},
		{"explicit value", "smartthings:\n  pacing_rps: 4\n", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.body))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got := cfg.SmartThings.GetPacingRPS(); got != tt.want {
				t.Errorf("GetPacingRPS() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := Default().SmartThings.GetPacingRPS(); got != DefaultPacingRPS {
		t.Errorf("Default().GetPacingRPS() = %v, want %v", got, DefaultPacingRPS)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "smartthings:\n  timeout: soon\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("STDECK_SET", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"${STDECK_SET}", "value"},
		{"${STDECK_SET:fallback}", "value"},
		{"${STDECK_MISSING:fallback}", "fallback"},
		{"${STDECK_MISSING}", ""},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
