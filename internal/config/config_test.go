package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shpitdev/community-landscape/internal/config"
)

func mapLookup(m map[string]string) config.LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Pipeline.Workers != 16 || cfg.Pipeline.MaxRetries != 0 || cfg.Pipeline.RequestTimeout != 20*time.Second {
		t.Fatalf("unexpected pipeline defaults: %#v", cfg.Pipeline)
	}
	if cfg.Influence.AuthScheme != "Token" || cfg.Store.Kind != "csv" || cfg.Store.Dir != "data" {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if cfg.NarrationEnabled() {
		t.Fatalf("narration should be off without credentials")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"TWITTER_TOKEN":         " tw ",
		"BORG_API_KEY":          "borg",
		"INFLUENCE_AUTH_SCHEME": "Bearer",
		"WORKERS":               "4",
		"MAX_RETRIES":           "2",
		"REQUEST_TIMEOUT":       "5s",
		"RATE_LIMIT_RPS":        "2.5",
		"STORE":                 "sqlite",
		"DATA_DIR":              "/tmp/landscape",
		"GEMINI_API_KEY":        "g",
		"GEMINI_MODEL":          "gemini-2.5-flash",
		"SOCIAL_BASE_URL":       "",
	}))
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Social.Token != "tw" || cfg.Influence.APIKey != "borg" || cfg.Influence.AuthScheme != "Bearer" {
		t.Fatalf("credentials not applied: %#v", cfg)
	}
	if cfg.Social.BaseURL != "https://api.twitter.com" {
		t.Fatalf("empty env var must not clear the default, got %q", cfg.Social.BaseURL)
	}
	if cfg.Pipeline.Workers != 4 || cfg.Pipeline.MaxRetries != 2 || cfg.Pipeline.RequestTimeout != 5*time.Second || cfg.Pipeline.RateLimitRPS != 2.5 {
		t.Fatalf("pipeline not applied: %#v", cfg.Pipeline)
	}
	if cfg.Store.Kind != "sqlite" || cfg.Store.Dir != "/tmp/landscape" {
		t.Fatalf("store not applied: %#v", cfg.Store)
	}
	if !cfg.NarrationEnabled() {
		t.Fatalf("narration should be enabled")
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	t.Parallel()

	for _, kv := range [][2]string{
		{"WORKERS", "many"},
		{"MAX_RETRIES", "1.5"},
		{"REQUEST_TIMEOUT", "20"},
		{"RATE_LIMIT_RPS", "fast"},
	} {
		cfg := config.Default()
		err := cfg.ApplyEnv(mapLookup(map[string]string{kv[0]: kv[1]}))
		if err == nil || !strings.Contains(err.Error(), kv[0]) {
			t.Fatalf("%s=%q: expected error naming the variable, got %v", kv[0], kv[1], err)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "workers", mutate: func(c *config.Config) { c.Pipeline.Workers = 0 }},
		{name: "retries", mutate: func(c *config.Config) { c.Pipeline.MaxRetries = -1 }},
		{name: "timeout", mutate: func(c *config.Config) { c.Pipeline.RequestTimeout = 0 }},
		{name: "rate", mutate: func(c *config.Config) { c.Pipeline.RateLimitRPS = -1 }},
		{name: "page size", mutate: func(c *config.Config) { c.Social.PageSize = 5000 }},
		{name: "store", mutate: func(c *config.Config) { c.Store.Kind = "parquet" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "landscape.yaml")
	yml := `
influence:
  base_url: http://borg.internal
  auth_scheme: Bearer
pipeline:
  workers: 8
  request_timeout: 45s
store:
  kind: sqlite
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("BORG_API_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	t.Setenv("WORKERS", "3")
	// Registered for restore, then unset so the dotenv file may supply it.
	t.Setenv("BORG_API_KEY", "")
	_ = os.Unsetenv("BORG_API_KEY")

	cfg, err := config.Load(path, envPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Influence.BaseURL != "http://borg.internal" || cfg.Influence.AuthScheme != "Bearer" {
		t.Fatalf("file not applied: %#v", cfg.Influence)
	}
	if cfg.Pipeline.RequestTimeout != 45*time.Second || cfg.Store.Kind != "sqlite" {
		t.Fatalf("file not applied: %#v", cfg)
	}
	if cfg.Pipeline.Workers != 3 {
		t.Fatalf("env should override file, got workers=%d", cfg.Pipeline.Workers)
	}
	if cfg.Influence.APIKey != "from-dotenv" {
		t.Fatalf("dotenv not applied: %q", cfg.Influence.APIKey)
	}
	if cfg.Social.PageSize != 1000 {
		t.Fatalf("defaults lost under file: page size %d", cfg.Social.PageSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), filepath.Join(t.TempDir(), "none.env")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
