package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docextract/internal/db"
)

// Get retrieves a value by key. A missing key returns db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.do(ctx, s.b().Get().Key(key).Build()).AsBytes()
	switch {
	case err == nil:
		return data, nil
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	default:
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
}

// Set stores a value without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.set(ctx, key, value, 0)
}

// SetWithTTL stores a value that expires after ttl.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.set(ctx, key, value, ttl)
}

func (s *Store) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	} else {
		cmd = s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	}
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// IncrBy atomically increments a key by the given amount.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	cmd := s.b().Incrby().Key(key).Increment(val).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpIncrBy, Err: err}
	}
	return nil
}

// Expire sets TTL on a key. With nx the TTL is only set when the key has none yet (EXPIRE NX).
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	var cmd rueidis.Completed
	if nx {
		cmd = s.b().Expire().Key(key).Seconds(int64(ttl.Seconds())).Nx().Build()
	} else {
		cmd = s.b().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build()
	}
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpExpire, Err: err}
	}
	return nil
}
