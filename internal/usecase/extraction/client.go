package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/domain"
	"github.com/kailas-cloud/docextract/internal/metrics"
)

// RetryPolicy bounds the attempts made for one extraction and the waits between them.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy allows 3 attempts with 2s and 4s waits in between.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
}

// Backoff returns the wait after the given failed attempt (1-based): BaseDelay * 2^attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// TimerSleep is the production Sleeper.
func TimerSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Client runs the retry state machine around a single-attempt extractor.
// Only transient *domain.APIError failures are retried; blocked content and any other error end the call.
type Client struct {
	inner    domain.Extractor
	policy   RetryPolicy
	sleep    Sleeper
	provider string
	logger   *zap.Logger
}

// NewClient wraps inner with policy. A zero MaxAttempts means a single attempt.
func NewClient(inner domain.Extractor, policy RetryPolicy, provider string, logger *zap.Logger) *Client {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Client{
		inner:    inner,
		policy:   policy,
		sleep:    TimerSleep,
		provider: provider,
		logger:   logger,
	}
}

// WithSleeper replaces the backoff wait, for tests.
func (c *Client) WithSleeper(s Sleeper) *Client {
	c.sleep = s
	return c
}

// Extract implements domain.Extractor.
func (c *Client) Extract(ctx context.Context, req domain.ExtractionRequest) (domain.ExtractionResponse, error) {
	for attempt := 1; ; attempt++ {
		resp, err := c.inner.Extract(ctx, req)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("Extraction succeeded after retry", zap.Int("attempt", attempt))
			}
			return resp, nil
		}

		var apiErr *domain.APIError
		if !errors.As(err, &apiErr) || !apiErr.Transient() {
			return domain.ExtractionResponse{}, err
		}

		if attempt >= c.policy.MaxAttempts {
			c.logger.Error("Extraction failed, retries exhausted",
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return domain.ExtractionResponse{}, err
		}

		delay := c.policy.Backoff(attempt)
		metrics.ExtractionRetriesTotal.WithLabelValues(c.provider).Inc()
		c.logger.Warn("Transient extraction failure, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.policy.MaxAttempts),
			zap.Int("status_code", apiErr.StatusCode),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		if serr := c.sleep(ctx, delay); serr != nil {
			return domain.ExtractionResponse{}, fmt.Errorf("retry wait after attempt %d: %w", attempt, serr)
		}
	}
}
