package config

import (
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Model.BaseURL != DefaultBaseURL {
		t.Errorf("base_url = %q", cfg.Model.BaseURL)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != time.Second || cfg.Retry.MaxDelay != 10*time.Second {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Image.MinWidth != 50 || cfg.Image.MaxWidth != 10000 {
		t.Errorf("unexpected image defaults: %+v", cfg.Image)
	}
	if len(cfg.Image.Formats) != 3 {
		t.Errorf("expected 3 default formats, got %v", cfg.Image.Formats)
	}
	if cfg.Prompts.Backend != "fs" {
		t.Errorf("prompts.backend = %q", cfg.Prompts.Backend)
	}
	if cfg.StoreConfigured() {
		t.Error("no store expected without cache.addrs")
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("DOCEXTRACT_TEST_REDIS", "redis:6379")

	data := []byte(`
cache:
  enabled: true
  addrs: ["${DOCEXTRACT_TEST_REDIS}"]
  ttl: 1h
model:
  base_url: ${DOCEXTRACT_TEST_UNSET:-http://localhost:9999/v1/}
retry:
  base_delay: 500ms
  max_delay: 4s
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Cache.Addrs) != 1 || cfg.Cache.Addrs[0] != "redis:6379" {
		t.Errorf("addrs = %v", cfg.Cache.Addrs)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("ttl = %s", cfg.Cache.TTL)
	}
	if cfg.Model.BaseURL != "http://localhost:9999/v1/" {
		t.Errorf("base_url = %q", cfg.Model.BaseURL)
	}
	if cfg.Retry.BaseDelay != 500*time.Millisecond || cfg.Retry.MaxDelay != 4*time.Second {
		t.Errorf("unexpected retry: %+v", cfg.Retry)
	}
	if !cfg.StoreConfigured() {
		t.Error("store expected when cache is enabled")
	}
}

func TestValidate_InvalidBudgetAction(t *testing.T) {
	cfg := Config{Budget: BudgetConfig{DailyTokenLimit: 1000, Action: "invalid_action"}}
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid budget action")
	}

	expected := `budget.action must be "warn" or "reject", got "invalid_action"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidBudgetActions(t *testing.T) {
	for _, action := range []string{"", "warn", "reject"} {
		t.Run("action="+action, func(t *testing.T) {
			cfg := Config{Budget: BudgetConfig{Action: action}}
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for valid action %q: %v", action, err)
			}
		})
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"inverted bounds", func(c *Config) { c.Image.MinWidth = 20000 }, "inverted"},
		{"format", func(c *Config) { c.Image.Formats = []string{"gif"} }, "unsupported format"},
		{"prompt backend", func(c *Config) { c.Prompts.Backend = "s3" }, "prompts.backend"},
		{"redis prompts without addrs", func(c *Config) { c.Prompts.Backend = "redis" }, "cache.addrs"},
		{"cache without addrs", func(c *Config) { c.Cache.Enabled = true }, "cache.addrs"},
		{"retry delays", func(c *Config) { c.Retry.MaxDelay = time.Millisecond }, "retry.max_delay"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.want)
			}
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("does-not-exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
}
