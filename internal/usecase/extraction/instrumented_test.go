package extraction

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/domain"
)

func TestInstrumented_PassesThrough(t *testing.T) {
	inner := &scriptedExtractor{results: []result{{resp: okResponse(10, 5)}}}
	p := NewInstrumented(inner, "test", "model", nil, zap.NewNop())

	resp, err := p.Extract(context.Background(), domain.ExtractionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.Total() != 15 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestInstrumented_RecordsUsage(t *testing.T) {
	inner := &scriptedExtractor{results: []result{{resp: okResponse(10, 5)}}}
	bt := NewBudgetTracker("test-usage", 1000, 0, BudgetActionReject, zap.NewNop())
	p := NewInstrumented(inner, "test-usage", "model", bt, zap.NewNop())

	if _, err := p.Extract(context.Background(), domain.ExtractionRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bt.DailyUsed() != 15 {
		t.Errorf("expected 15 tokens recorded, got %d", bt.DailyUsed())
	}
}

func TestInstrumented_RejectsOverBudget(t *testing.T) {
	inner := &scriptedExtractor{results: []result{{resp: okResponse(1, 1)}}}
	bt := NewBudgetTracker("test-reject", 10, 0, BudgetActionReject, zap.NewNop())
	bt.Record(10)
	p := NewInstrumented(inner, "test-reject", "model", bt, zap.NewNop())

	_, err := p.Extract(context.Background(), domain.ExtractionRequest{})

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Transient() {
		t.Error("budget rejection must not be retryable")
	}
	if !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Error("expected ErrBudgetExceeded in chain")
	}
	if inner.Calls() != 0 {
		t.Errorf("model must not be called, got %d calls", inner.Calls())
	}
}

func TestInstrumented_ErrorUnchanged(t *testing.T) {
	want := domain.NewBlockedError("SAFETY")
	inner := &scriptedExtractor{results: []result{{err: want}}}
	p := NewInstrumented(inner, "test", "model", nil, zap.NewNop())

	_, err := p.Extract(context.Background(), domain.ExtractionRequest{})
	if err != want {
		t.Fatalf("expected error unchanged, got %v", err)
	}
}
