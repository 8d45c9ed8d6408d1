package extraction

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kailas-cloud/docextract/internal/domain"
)

func TestHandle_BuildsOnce(t *testing.T) {
	var builds atomic.Int32
	h := NewHandle(func(domain.Settings) (domain.Extractor, error) {
		builds.Add(1)
		return &scriptedExtractor{results: []result{{}}}, nil
	})

	var wg sync.WaitGroup
	got := make([]domain.Extractor, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ext, err := h.Get(domain.Settings{APIKey: "k", Model: "m"})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			got[i] = ext
		}(i)
	}
	wg.Wait()

	if builds.Load() != 1 {
		t.Errorf("expected 1 build, got %d", builds.Load())
	}
	for i := range got {
		if got[i] != got[0] {
			t.Fatal("expected the same instance on every call")
		}
	}
}

func TestHandle_IgnoresLaterSettings(t *testing.T) {
	var seen []string
	h := NewHandle(func(s domain.Settings) (domain.Extractor, error) {
		seen = append(seen, s.APIKey)
		return &scriptedExtractor{results: []result{{}}}, nil
	})

	first, _ := h.Get(domain.Settings{APIKey: "first"})
	second, _ := h.Get(domain.Settings{APIKey: "second"})

	if first != second {
		t.Error("expected the same instance")
	}
	if len(seen) != 1 || seen[0] != "first" {
		t.Errorf("factory saw %v", seen)
	}
}

func TestHandle_FailureIsNotMemoized(t *testing.T) {
	calls := 0
	h := NewHandle(func(domain.Settings) (domain.Extractor, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient setup failure")
		}
		return &scriptedExtractor{results: []result{{}}}, nil
	})

	if _, err := h.Get(domain.Settings{}); err == nil {
		t.Fatal("expected first build to fail")
	}
	ext, err := h.Get(domain.Settings{})
	if err != nil || ext == nil {
		t.Fatalf("expected second build to succeed, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 factory calls, got %d", calls)
	}
}
