package extraction

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/domain"
	"github.com/kailas-cloud/docextract/internal/metrics"
)

// BudgetChecker is the budget surface the instrumented extractor needs.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// Instrumented guards an extractor with the token budget and logs each call.
// Per-attempt transport metrics live in transport/openai.
type Instrumented struct {
	inner    domain.Extractor
	provider string
	model    string
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewInstrumented wraps inner. budget may be nil.
func NewInstrumented(inner domain.Extractor, provider, model string, budget BudgetChecker, logger *zap.Logger) *Instrumented {
	return &Instrumented{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   budget,
		logger:   logger,
	}
}

// Extract implements domain.Extractor.
func (p *Instrumented) Extract(ctx context.Context, req domain.ExtractionRequest) (domain.ExtractionResponse, error) {
	if p.budget != nil {
		if err := p.budget.Check(ctx); err != nil {
			p.logger.Error("Token budget exceeded",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Error(err),
			)
			return domain.ExtractionResponse{}, &domain.APIError{Msg: "extraction rejected", Err: err}
		}
	}

	start := time.Now()
	resp, err := p.inner.Extract(ctx, req)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Extraction failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.String("error_kind", domain.KindOf(err)),
			zap.Error(err),
		)
		return domain.ExtractionResponse{}, err
	}

	if p.budget != nil && resp.Usage.Total() > 0 {
		p.budget.Record(int64(resp.Usage.Total()))
		metrics.BudgetTokensRemaining.WithLabelValues(p.provider, "daily").Set(float64(p.budget.RemainingDaily()))
		metrics.BudgetTokensRemaining.WithLabelValues(p.provider, "monthly").Set(float64(p.budget.RemainingMonthly()))
	}

	p.logger.Info("Extraction completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Int("response_bytes", len(resp.Text)),
	)
	return resp, nil
}
