package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/kailas-cloud/docextract/internal/domain"
)

// Environment keys read by the SettingsProvider.
const (
	EnvAPIKey      = "GEMINI_API_KEY"
	EnvModel       = "GEMINI_MODEL"
	EnvTemperature = "TEMPERATURE"
	EnvTopP        = "TOP_P"
)

// Sampling defaults applied when the variables are unset.
const (
	DefaultTemperature = 0.0
	DefaultTopP        = 0.1
)

// LookupFunc resolves a named value. os.LookupEnv is the production source.
type LookupFunc func(key string) (string, bool)

// SettingsProvider resolves Settings lazily on first Get and memoizes the result.
// Failed resolutions are not memoized, so a fixed environment is picked up on the next call.
type SettingsProvider struct {
	lookup LookupFunc

	mu       sync.Mutex
	settings *domain.Settings
}

// NewSettingsProvider creates a provider. A nil lookup reads the process environment.
func NewSettingsProvider(lookup LookupFunc) *SettingsProvider {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &SettingsProvider{lookup: lookup}
}

// Get returns the memoized settings, resolving and validating them on the first successful call.
// Every caller receives the same pointer; callers must not mutate it.
func (p *SettingsProvider) Get() (*domain.Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.settings != nil {
		return p.settings, nil
	}

	s, err := p.resolve()
	if err != nil {
		return nil, err
	}
	p.settings = s
	return s, nil
}

func (p *SettingsProvider) resolve() (*domain.Settings, error) {
	apiKey, err := p.required(EnvAPIKey)
	if err != nil {
		return nil, err
	}
	model, err := p.required(EnvModel)
	if err != nil {
		return nil, err
	}
	temperature, err := p.float(EnvTemperature, DefaultTemperature, 0, 2)
	if err != nil {
		return nil, err
	}
	topP, err := p.float(EnvTopP, DefaultTopP, 0, 1)
	if err != nil {
		return nil, err
	}

	return &domain.Settings{
		APIKey:      apiKey,
		Model:       model,
		Temperature: temperature,
		TopP:        topP,
	}, nil
}

func (p *SettingsProvider) required(key string) (string, error) {
	val, ok := p.lookup(key)
	val = strings.TrimSpace(val)
	if !ok || val == "" {
		return "", &domain.ConfigurationError{
			Key: key,
			Msg: fmt.Sprintf("required setting %s is missing or empty", key),
		}
	}
	return val, nil
}

func (p *SettingsProvider) float(key string, def, lo, hi float64) (float64, error) {
	raw, ok := p.lookup(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return def, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &domain.ConfigurationError{
			Key: key,
			Msg: fmt.Sprintf("setting %s must be a number, got %q", key, raw),
			Err: err,
		}
	}
	if math.IsNaN(val) || val < lo || val > hi {
		return 0, &domain.ConfigurationError{
			Key: key,
			Msg: fmt.Sprintf("setting %s must be between %g and %g, got %g", key, lo, hi, val),
		}
	}
	return val, nil
}
