package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/docextract/internal/db"
)

// kv is the slice of db.KVStore the counters need.
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store persists token budget counters with INCRBY and a one-shot TTL per period key.
type Store struct {
	kv       kv
	dailyTTL time.Duration
	monthTTL time.Duration
}

// Default key lifetimes: a daily key outlives its day, a monthly key its month.
const (
	DefaultDailyTTL   = 48 * time.Hour
	DefaultMonthlyTTL = 62 * 24 * time.Hour
)

// New creates a budget store. Zero TTLs fall back to the defaults.
func New(s kv, dailyTTL, monthTTL time.Duration) *Store {
	if dailyTTL <= 0 {
		dailyTTL = DefaultDailyTTL
	}
	if monthTTL <= 0 {
		monthTTL = DefaultMonthlyTTL
	}
	return &Store{kv: s, dailyTTL: dailyTTL, monthTTL: monthTTL}
}

// IncrBy adds val to the counter and sets its TTL if none is set yet.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	if err := s.kv.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("budget INCRBY %s: %w", key, err)
	}

	// NX keeps the first expiry; later increments must not extend it.
	if err := s.kv.Expire(ctx, key, s.ttlForKey(key), true); err != nil {
		return fmt.Errorf("budget EXPIRE %s: %w", key, err)
	}
	return nil
}

// Get returns the counter value, 0 when the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("budget GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget GET %s parse: %w", key, err)
	}
	return val, nil
}

// Keys look like docextract:budget:{provider}:daily:YYYY-MM-DD or ...:monthly:YYYY-MM.
func (s *Store) ttlForKey(key string) time.Duration {
	if strings.Contains(key, ":daily:") {
		return s.dailyTTL
	}
	return s.monthTTL
}
