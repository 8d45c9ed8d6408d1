package resultcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/db"
	"github.com/kailas-cloud/docextract/internal/domain"
)

type countingExtractor struct {
	resp  domain.ExtractionResponse
	err   error
	calls int
}

func (m *countingExtractor) Extract(_ context.Context, _ domain.ExtractionRequest) (domain.ExtractionResponse, error) {
	m.calls++
	return m.resp, m.err
}

type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func testRequest() domain.ExtractionRequest {
	return domain.ExtractionRequest{
		Image:        domain.ValidatedImage{MIMEType: "image/png", Data: []byte("pixels")},
		SystemPrompt: "sys",
		UserPrompt:   "usr",
		TopP:         0.1,
	}
}

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_result_cache_total"}, []string{"result"})
}

func TestExtract_MissThenHit(t *testing.T) {
	inner := &countingExtractor{resp: domain.ExtractionResponse{
		Text:  `{"a":1}`,
		Usage: domain.Usage{InputTokens: 10, OutputTokens: 5, Note: domain.UsageNoteReported},
	}}
	store := newMemStore()
	counter := newCounter()
	c := New(inner, store, "gemini", time.Hour, counter, zap.NewNop())

	first, err := c.Extract(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Usage.InputTokens != 10 {
		t.Errorf("miss must return inner usage, got %+v", first.Usage)
	}

	second, err := c.Extract(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
	if second.Text != `{"a":1}` {
		t.Errorf("unexpected cached text %q", second.Text)
	}
	if second.Usage.Total() != 0 || second.Usage.Note != domain.UsageNoteCached {
		t.Errorf("hit must report zero usage, got %+v", second.Usage)
	}

	if v := testutil.ToFloat64(counter.WithLabelValues("hit")); v != 1 {
		t.Errorf("hits = %f", v)
	}
	if v := testutil.ToFloat64(counter.WithLabelValues("miss")); v != 1 {
		t.Errorf("misses = %f", v)
	}

	key := c.Key(testRequest())
	if store.ttls[key] != time.Hour {
		t.Errorf("ttl = %s", store.ttls[key])
	}
}

func TestExtract_ErrorsAreNotCached(t *testing.T) {
	inner := &countingExtractor{err: &domain.APIError{StatusCode: 500, Retryable: true, Msg: "down"}}
	store := newMemStore()
	c := New(inner, store, "gemini", time.Hour, nil, zap.NewNop())

	if _, err := c.Extract(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error")
	}
	if len(store.data) != 0 {
		t.Error("failed extraction must not be cached")
	}
}

func TestExtract_UnparsableResultNotCached(t *testing.T) {
	inner := &countingExtractor{resp: domain.ExtractionResponse{
		Text:  "not json",
		Usage: domain.Usage{InputTokens: 4, OutputTokens: 2, Note: domain.UsageNoteReported},
	}}
	store := newMemStore()
	c := New(inner, store, "gemini", time.Hour, nil, zap.NewNop())

	for range 3 {
		resp, err := c.Extract(context.Background(), testRequest())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Text != "not json" || resp.Usage.InputTokens != 4 {
			t.Errorf("expected inner response passed through, got %+v", resp)
		}
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 inner calls, got %d", inner.calls)
	}
	if len(store.data) != 0 {
		t.Error("unparsable text must not be cached")
	}
}

func TestExtract_StoreFailuresDegradeToMiss(t *testing.T) {
	inner := &countingExtractor{resp: domain.ExtractionResponse{Text: "{}"}}
	store := newMemStore()
	store.getErr = errors.New("connection refused")
	store.setErr = errors.New("connection refused")
	c := New(inner, store, "gemini", time.Hour, nil, zap.NewNop())

	for range 2 {
		if _, err := c.Extract(context.Background(), testRequest()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 inner calls, got %d", inner.calls)
	}
}

func TestExtract_MalformedEntryIsMiss(t *testing.T) {
	inner := &countingExtractor{resp: domain.ExtractionResponse{Text: "{}"}}
	store := newMemStore()
	c := New(inner, store, "gemini", time.Hour, nil, zap.NewNop())
	store.data[c.Key(testRequest())] = []byte("not json")

	if _, err := c.Extract(context.Background(), testRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected inner call on malformed entry, got %d", inner.calls)
	}
}

func TestKey_DependsOnInputs(t *testing.T) {
	c := New(nil, newMemStore(), "gemini", time.Hour, nil, zap.NewNop())
	base := c.Key(testRequest())

	if !strings.HasPrefix(base, "docextract:result:") {
		t.Errorf("unexpected key prefix: %s", base)
	}
	if c.Key(testRequest()) != base {
		t.Error("key must be deterministic")
	}

	variants := []func(r *domain.ExtractionRequest){
		func(r *domain.ExtractionRequest) { r.Image.Data = []byte("other pixels") },
		func(r *domain.ExtractionRequest) { r.SystemPrompt = "sys2" },
		func(r *domain.ExtractionRequest) { r.UserPrompt = "usr2" },
		func(r *domain.ExtractionRequest) { r.Temperature = 0.5 },
		func(r *domain.ExtractionRequest) { r.TopP = 0.9 },
		// moving bytes across the prompt boundary must change the key
		func(r *domain.ExtractionRequest) { r.SystemPrompt, r.UserPrompt = "sy", "susr" },
	}
	for i, mutate := range variants {
		req := testRequest()
		mutate(&req)
		if c.Key(req) == base {
			t.Errorf("variant %d produced the same key", i)
		}
	}

	other := New(nil, newMemStore(), "gemini-pro", time.Hour, nil, zap.NewNop())
	if other.Key(testRequest()) == base {
		t.Error("model must be part of the key")
	}
}
