package docextract

import (
	"io/fs"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	apiKey      string
	model       string
	baseURL     string
	temperature *float64
	topP        *float64
	timeout     time.Duration

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	redisAddr     string
	redisPassword string
	cacheTTL      time.Duration

	dailyLimit   int64
	monthlyLimit int64
	reject       bool

	prompts      fs.FS
	strictSchema bool

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithAPIKey sets the model API key. Required.
func WithAPIKey(key string) Option {
	return optionFunc(func(c *clientConfig) {
		c.apiKey = key
	})
}

// WithModel sets the model name. Required.
func WithModel(model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.model = model
	})
}

// WithBaseURL points the client at another OpenAI-compatible endpoint.
// Defaults to Gemini's.
func WithBaseURL(url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.baseURL = url
	})
}

// WithSampling overrides temperature (0..2) and top_p (0..1). Defaults: 0 and 0.1.
func WithSampling(temperature, topP float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.temperature = &temperature
		c.topP = &topP
	})
}

// WithTimeout bounds a single model request. Default: 120s.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithRetry sets the retry policy for transient model failures.
// Defaults: 3 attempts, 1s base delay doubling per attempt, 10s cap.
func WithRetry(maxAttempts int, baseDelay, maxDelay time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxAttempts = maxAttempts
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	})
}

// WithRedis enables the result cache (entries live for ttl) and budget counter persistence.
func WithRedis(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.redisAddr = addr
		c.redisPassword = password
		c.cacheTTL = ttl
	})
}

// WithTokenBudget sets daily and monthly token limits (0 = unlimited).
// With reject, calls over budget fail before reaching the model; otherwise they are only logged.
func WithTokenBudget(daily, monthly int64, reject bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.dailyLimit = daily
		c.monthlyLimit = monthly
		c.reject = reject
	})
}

// WithPrompts replaces the embedded prompt templates.
// fsys must hold system.txt and extraction.txt.
func WithPrompts(fsys fs.FS) Option {
	return optionFunc(func(c *clientConfig) {
		c.prompts = fsys
	})
}

// WithStrictSchema fails extractions whose output does not match the document contract.
func WithStrictSchema() Option {
	return optionFunc(func(c *clientConfig) {
		c.strictSchema = true
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
