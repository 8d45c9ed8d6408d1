package resultcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/db"
	"github.com/kailas-cloud/docextract/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "result:"

// store is the slice of db.KVStore the cache needs.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedExtractor serves repeated extractions of identical inputs from a key-value store.
// Store failures degrade to a miss.
type CachedExtractor struct {
	inner      domain.Extractor
	store      store
	model      string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. cacheTotal takes a "result" label ("hit"/"miss") and may be nil.
func New(
	inner domain.Extractor,
	s store,
	model string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedExtractor {
	return &CachedExtractor{
		inner:      inner,
		store:      s,
		model:      model,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

type entry struct {
	Text string `json:"text"`
}

// Extract returns a cached response text or calls the inner extractor.
// A hit reports zero tokens, since nothing was consumed.
func (c *CachedExtractor) Extract(ctx context.Context, req domain.ExtractionRequest) (domain.ExtractionResponse, error) {
	key := c.Key(req)

	if text, ok := c.get(ctx, key); ok {
		c.inc("hit")
		return domain.ExtractionResponse{
			Text:  text,
			Usage: domain.Usage{Note: domain.UsageNoteCached},
		}, nil
	}
	c.inc("miss")

	resp, err := c.inner.Extract(ctx, req)
	if err != nil {
		return domain.ExtractionResponse{}, err
	}

	// Unparsable answers are never cached.
	if _, perr := domain.ParseDocument(resp.Text); perr != nil {
		c.logger.Warn("Not caching unparsable result", zap.String("key", key), zap.Error(perr))
		return resp, nil
	}
	c.put(ctx, key, resp.Text)
	return resp, nil
}

// Key hashes everything that determines the model's answer.
func (c *CachedExtractor) Key(req domain.ExtractionRequest) string {
	h := sha256.New()
	field := func(b []byte) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	float := func(f float64) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], math.Float64bits(f))
		h.Write(n[:])
	}

	field([]byte(c.model))
	float(req.Temperature)
	float(req.TopP)
	field([]byte(req.SystemPrompt))
	field([]byte(req.UserPrompt))
	field([]byte(req.Image.MIMEType))
	field(req.Image.Data)

	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedExtractor) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedExtractor) get(ctx context.Context, key string) (string, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to read cached result", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil || e.Text == "" {
		c.logger.Warn("Discarding malformed cached result", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return e.Text, true
}

func (c *CachedExtractor) put(ctx context.Context, key, text string) {
	data, err := json.Marshal(entry{Text: text})
	if err != nil {
		c.logger.Warn("Failed to encode result for cache", zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache result", zap.String("key", key), zap.Error(fmt.Errorf("set: %w", err)))
	}
}
