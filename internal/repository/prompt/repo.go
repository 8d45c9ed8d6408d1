package prompt

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/docextract/internal/domain"
)

// Source reads a prompt template from storage.
type Source interface {
	Load(ctx context.Context, key domain.PromptKey) (string, error)
}

// Repository memoizes prompt templates per key for the process lifetime.
// Concurrent misses on the same key share a single storage read; failed reads are not cached.
type Repository struct {
	source     Source
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger

	mu    sync.RWMutex
	cache map[domain.PromptKey]string
	group singleflight.Group
}

// New creates a prompt repository.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), may be nil.
func New(source Source, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Repository {
	return &Repository{
		source:     source,
		cacheTotal: cacheTotal,
		logger:     logger,
		cache:      make(map[domain.PromptKey]string),
	}
}

// Get returns the template for key, reading storage only on the first successful request.
func (r *Repository) Get(ctx context.Context, key domain.PromptKey) (string, error) {
	if !key.Valid() {
		return "", &domain.ConfigurationError{Key: string(key), Msg: fmt.Sprintf("unknown prompt key %q", key)}
	}

	if text, ok := r.cached(key); ok {
		r.inc("hit")
		return text, nil
	}
	r.inc("miss")

	v, err, _ := r.group.Do(string(key), func() (any, error) {
		// another caller may have stored it between our miss and entering the group
		if text, ok := r.cached(key); ok {
			return text, nil
		}

		text, err := r.source.Load(ctx, key)
		if err != nil {
			return "", err
		}

		r.mu.Lock()
		r.cache[key] = text
		r.mu.Unlock()

		r.logger.Debug("Prompt loaded", zap.String("key", string(key)), zap.Int("chars", len(text)))
		return text, nil
	})
	if err != nil {
		return "", fmt.Errorf("load prompt %q: %w", key, err)
	}
	return v.(string), nil
}

func (r *Repository) cached(key domain.PromptKey) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	text, ok := r.cache[key]
	return text, ok
}

func (r *Repository) inc(result string) {
	if r.cacheTotal != nil {
		r.cacheTotal.WithLabelValues(result).Inc()
	}
}
