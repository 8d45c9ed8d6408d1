package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the docextract configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Image    ImageConfig    `yaml:"image"`
	Prompts  PromptsConfig  `yaml:"prompts"`
	Retry    RetryConfig    `yaml:"retry"`
	Cache    CacheConfig    `yaml:"cache"`
	Budget   BudgetConfig   `yaml:"budget"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// ModelConfig holds the model endpoint settings. Credentials and sampling come from Settings.
type ModelConfig struct {
	Provider   string `yaml:"provider"` // label used in metrics and budget keys
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ImageConfig holds image validation bounds.
type ImageConfig struct {
	MinWidth     int      `yaml:"min_width"`
	MinHeight    int      `yaml:"min_height"`
	MaxWidth     int      `yaml:"max_width"`
	MaxHeight    int      `yaml:"max_height"`
	MaxFileBytes int64    `yaml:"max_file_bytes"`
	Formats      []string `yaml:"formats"`
}

// PromptsConfig selects where prompt templates are read from.
type PromptsConfig struct {
	Backend string `yaml:"backend"` // fs (default) | redis
	Dir     string `yaml:"dir"`     // empty = templates embedded in the binary
}

// RetryConfig holds the model call retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// CacheConfig holds the Redis connection used for the result cache, budget counters and prompts.
type CacheConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Addrs            []string      `yaml:"addrs"`
	Password         string        `yaml:"password"`
	TTL              time.Duration `yaml:"ttl"`
	ReadinessTimeout int           `yaml:"readiness_timeout_sec"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// StorageConfig holds object storage settings for s3:// inputs.
type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config holds S3-compatible endpoint credentials.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// PipelineConfig holds orchestrator switches.
type PipelineConfig struct {
	StrictSchema bool `yaml:"strict_schema"`
}

// HTTPConfig holds HTTP server settings for serve mode.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxUploadBytes  int64 `yaml:"max_upload_bytes"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A missing file is not an error: defaults apply.
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Model.Provider == "" {
		c.Model.Provider = "gemini"
	}
	if c.Model.BaseURL == "" {
		c.Model.BaseURL = DefaultBaseURL
	}
	if c.Model.TimeoutSec <= 0 {
		c.Model.TimeoutSec = 120
	}
	if c.Image.MinWidth <= 0 {
		c.Image.MinWidth = 50
	}
	if c.Image.MinHeight <= 0 {
		c.Image.MinHeight = 50
	}
	if c.Image.MaxWidth <= 0 {
		c.Image.MaxWidth = 10000
	}
	if c.Image.MaxHeight <= 0 {
		c.Image.MaxHeight = 10000
	}
	if c.Image.MaxFileBytes <= 0 {
		c.Image.MaxFileBytes = 20 << 20
	}
	if len(c.Image.Formats) == 0 {
		c.Image.Formats = []string{"jpeg", "png", "webp"}
	}
	if c.Prompts.Backend == "" {
		c.Prompts.Backend = "fs"
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = time.Second
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 10 * time.Second
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 7 * 24 * time.Hour
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// a single extraction can take three attempts plus backoff
		c.HTTP.WriteTimeoutSec = 600
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = c.Image.MaxFileBytes
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Image.MinWidth > c.Image.MaxWidth || c.Image.MinHeight > c.Image.MaxHeight {
		return fmt.Errorf("image bounds are inverted: min %dx%d, max %dx%d",
			c.Image.MinWidth, c.Image.MinHeight, c.Image.MaxWidth, c.Image.MaxHeight)
	}
	for _, f := range c.Image.Formats {
		switch f {
		case "jpeg", "png", "webp":
		default:
			return fmt.Errorf("image.formats: unsupported format %q", f)
		}
	}
	switch c.Prompts.Backend {
	case "fs":
	case "redis":
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("prompts.backend \"redis\" requires cache.addrs")
		}
	default:
		return fmt.Errorf("prompts.backend must be \"fs\" or \"redis\", got %q", c.Prompts.Backend)
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache.enabled is true")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay (%s) must not be below retry.base_delay (%s)",
			c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	switch c.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf("budget.action must be \"warn\" or \"reject\", got %q", c.Budget.Action)
	}
	return nil
}

// StoreConfigured reports whether a Redis store is needed by any component.
func (c *Config) StoreConfigured() bool {
	return len(c.Cache.Addrs) > 0 && (c.Cache.Enabled || c.Prompts.Backend == "redis" || c.BudgetEnabled())
}

// BudgetEnabled reports whether any token limit is set.
func (c *Config) BudgetEnabled() bool {
	return c.Budget.DailyTokenLimit > 0 || c.Budget.MonthlyTokenLimit > 0
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
