package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalYAML = `environment: test
clickhouse:
  host: localhost
  database: marketpulse
sources:
  cboe:
    base_url: https://cdn.example.com
    path: /pcr.json
  fred:
    base_url: https://api.example.com
    api_key: ""
    series_id: T10Y2Y
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for empty api_key")
	}
	if !strings.Contains(err.Error(), "sources.fred.api_key") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadWithEnvSuppliesAPIKey(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	t.Setenv("FRED_API_KEY", "env-key")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("env-supplied key must pass validation: %v", err)
	}
	if c.Sources.FRED.APIKey != "env-key" {
		t.Errorf("api key = %q, want env-key", c.Sources.FRED.APIKey)
	}
}

func TestLoadWithEnvStillValidates(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	if _, err := LoadWithEnv(path); err == nil {
		t.Fatal("expected validation error when neither file nor env provides the api key")
	}
}

func TestLoadWithEnvOverridesFileValue(t *testing.T) {
	path := writeConfig(t, strings.Replace(minimalYAML, `api_key: ""`, `api_key: file-key`, 1))
	t.Setenv("FRED_API_KEY", "env-key")
	t.Setenv("REDIS_ADDR", "redis:6379")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Sources.FRED.APIKey != "env-key" {
		t.Errorf("env must win over file value, got %q", c.Sources.FRED.APIKey)
	}
	if !c.Redis.Enabled || c.Redis.Addr != "redis:6379" {
		t.Errorf("REDIS_ADDR must enable redis, got enabled=%v addr=%q", c.Redis.Enabled, c.Redis.Addr)
	}
}
