package extraction

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/domain"
)

func newTestClient(inner domain.Extractor) (*Client, *recordingSleeper) {
	s := &recordingSleeper{}
	c := NewClient(inner, DefaultRetryPolicy(), "test", zap.NewNop()).WithSleeper(s.Sleep)
	return c, s
}

func TestBackoff(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{40, 10 * time.Second},
	}
	for _, tc := range tests {
		if got := p.Backoff(tc.attempt); got != tc.want {
			t.Errorf("Backoff(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestExtract_SucceedsOnThirdAttempt(t *testing.T) {
	inner := &scriptedExtractor{results: []result{
		{err: transient(503)},
		{err: transient(429)},
		{resp: okResponse(10, 5)},
	}}
	c, sleeper := newTestClient(inner)

	resp, err := c.Extract(context.Background(), domain.ExtractionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
	if inner.Calls() != 3 {
		t.Errorf("expected 3 attempts, got %d", inner.Calls())
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if fmt.Sprint(sleeper.waits) != fmt.Sprint(want) {
		t.Errorf("waits = %v, want %v", sleeper.waits, want)
	}
}

func TestExtract_ExhaustsAfterThreeAttempts(t *testing.T) {
	last := transient(500)
	inner := &scriptedExtractor{results: []result{{err: transient(500)}, {err: transient(500)}, {err: last}}}
	c, sleeper := newTestClient(inner)

	_, err := c.Extract(context.Background(), domain.ExtractionRequest{})

	if err != last {
		t.Fatalf("expected the third attempt's error unchanged, got %v", err)
	}
	if inner.Calls() != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", inner.Calls())
	}
	if len(sleeper.waits) != 2 {
		t.Errorf("expected 2 waits, got %v", sleeper.waits)
	}
}

func TestExtract_BlockedIsNotRetried(t *testing.T) {
	inner := &scriptedExtractor{results: []result{{err: domain.NewBlockedError("SAFETY")}}}
	c, sleeper := newTestClient(inner)

	_, err := c.Extract(context.Background(), domain.ExtractionRequest{})

	if !errors.Is(err, domain.ErrBlockedContent) {
		t.Fatalf("expected blocked error, got %v", err)
	}
	if inner.Calls() != 1 || len(sleeper.waits) != 0 {
		t.Errorf("expected no retry, got %d calls and waits %v", inner.Calls(), sleeper.waits)
	}
}

func TestExtract_PermanentAPIErrorIsNotRetried(t *testing.T) {
	inner := &scriptedExtractor{results: []result{{err: &domain.APIError{StatusCode: 400, Msg: "bad request"}}}}
	c, sleeper := newTestClient(inner)

	_, err := c.Extract(context.Background(), domain.ExtractionRequest{})

	if domain.KindOf(err) != domain.KindAPI {
		t.Fatalf("expected APIError, got %v", err)
	}
	if inner.Calls() != 1 || len(sleeper.waits) != 0 {
		t.Errorf("expected no retry, got %d calls", inner.Calls())
	}
}

func TestExtract_NonAPIErrorPropagatesImmediately(t *testing.T) {
	boom := errors.New("programming error")
	inner := &scriptedExtractor{results: []result{{err: boom}}}
	c, sleeper := newTestClient(inner)

	_, err := c.Extract(context.Background(), domain.ExtractionRequest{})

	if err != boom {
		t.Fatalf("expected error unchanged, got %v", err)
	}
	if inner.Calls() != 1 || len(sleeper.waits) != 0 {
		t.Errorf("expected no retry, got %d calls", inner.Calls())
	}
}

func TestExtract_FirstAttemptSuccessHasNoDelay(t *testing.T) {
	inner := &scriptedExtractor{results: []result{{resp: okResponse(5, 3)}}}
	c, sleeper := newTestClient(inner)

	if _, err := c.Extract(context.Background(), domain.ExtractionRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sleeper.waits) != 0 {
		t.Errorf("expected no waits, got %v", sleeper.waits)
	}
}

func TestExtract_CancelledDuringBackoff(t *testing.T) {
	inner := &scriptedExtractor{results: []result{{err: transient(503)}}}
	sleeper := &recordingSleeper{err: context.Canceled}
	c := NewClient(inner, DefaultRetryPolicy(), "test", zap.NewNop()).WithSleeper(sleeper.Sleep)

	_, err := c.Extract(context.Background(), domain.ExtractionRequest{})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if inner.Calls() != 1 {
		t.Errorf("expected 1 attempt, got %d", inner.Calls())
	}
}

func TestTimerSleep(t *testing.T) {
	if err := TimerSleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := TimerSleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewClient_ZeroAttemptsMeansOne(t *testing.T) {
	inner := &scriptedExtractor{results: []result{{err: transient(503)}}}
	s := &recordingSleeper{}
	c := NewClient(inner, RetryPolicy{}, "test", zap.NewNop()).WithSleeper(s.Sleep)

	if _, err := c.Extract(context.Background(), domain.ExtractionRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if inner.Calls() != 1 {
		t.Errorf("expected 1 attempt, got %d", inner.Calls())
	}
}
