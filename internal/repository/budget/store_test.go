package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/docextract/internal/db"
)

type expireCall struct {
	key string
	ttl time.Duration
	nx  bool
}

type fakeKV struct {
	data      map[string][]byte
	counters  map[string]int64
	expires   []expireCall
	getErr    error
	incrErr   error
	expireErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string][]byte{}, counters: map[string]int64{}}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeKV) IncrBy(_ context.Context, key string, val int64) error {
	if f.incrErr != nil {
		return f.incrErr
	}
	f.counters[key] += val
	return nil
}

func (f *fakeKV) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	if f.expireErr != nil {
		return f.expireErr
	}
	f.expires = append(f.expires, expireCall{key: key, ttl: ttl, nx: nx})
	return nil
}

func TestIncrBy_SetsPeriodTTL(t *testing.T) {
	kv := newFakeKV()
	s := New(kv, time.Hour, 2*time.Hour)

	if err := s.IncrBy(context.Background(), "docextract:budget:gemini:daily:2026-01-02", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.IncrBy(context.Background(), "docextract:budget:gemini:monthly:2026-01", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(kv.expires) != 2 {
		t.Fatalf("expected 2 EXPIRE calls, got %d", len(kv.expires))
	}
	if kv.expires[0].ttl != time.Hour || !kv.expires[0].nx {
		t.Errorf("daily expire = %+v", kv.expires[0])
	}
	if kv.expires[1].ttl != 2*time.Hour || !kv.expires[1].nx {
		t.Errorf("monthly expire = %+v", kv.expires[1])
	}
}

func TestNew_DefaultTTLs(t *testing.T) {
	s := New(newFakeKV(), 0, 0)
	if s.dailyTTL != DefaultDailyTTL || s.monthTTL != DefaultMonthlyTTL {
		t.Errorf("unexpected defaults: %s / %s", s.dailyTTL, s.monthTTL)
	}
}

func TestIncrBy_Errors(t *testing.T) {
	kv := newFakeKV()
	kv.incrErr = errors.New("boom")
	if err := New(kv, 0, 0).IncrBy(context.Background(), "k:daily:x", 1); err == nil {
		t.Fatal("expected INCRBY error")
	}

	kv = newFakeKV()
	kv.expireErr = errors.New("boom")
	if err := New(kv, 0, 0).IncrBy(context.Background(), "k:daily:x", 1); err == nil {
		t.Fatal("expected EXPIRE error")
	}
}

func TestGet(t *testing.T) {
	kv := newFakeKV()
	kv.data["present"] = []byte("42")
	kv.data["garbage"] = []byte("forty-two")
	s := New(kv, 0, 0)

	if v, err := s.Get(context.Background(), "present"); err != nil || v != 42 {
		t.Errorf("Get(present) = %d, %v", v, err)
	}
	if v, err := s.Get(context.Background(), "missing"); err != nil || v != 0 {
		t.Errorf("Get(missing) = %d, %v", v, err)
	}
	if _, err := s.Get(context.Background(), "garbage"); err == nil {
		t.Error("expected parse error")
	}

	kv.getErr = errors.New("connection refused")
	if _, err := s.Get(context.Background(), "present"); err == nil {
		t.Error("expected store error")
	}
}
