package extraction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/domain"
)

// BudgetAction defines behavior when the token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but lets the call through.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject fails the call before it reaches the model.
	BudgetActionReject BudgetAction = "reject"
)

// BudgetStore persists budget counters. IncrBy may be called repeatedly for one key.
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// BudgetTracker counts model tokens per UTC day and month.
// Check reads memory only; Record updates memory, then writes through to the store when one is attached.
type BudgetTracker struct {
	mu           sync.Mutex
	provider     string
	dailyLimit   int64
	monthlyLimit int64
	action       BudgetAction
	dailyUsed    int64
	monthlyUsed  int64
	day          time.Time
	month        time.Time
	store        BudgetStore
	now          func() time.Time
	logger       *zap.Logger
}

// NewBudgetTracker creates a tracker. A zero limit is unlimited.
func NewBudgetTracker(provider string, dailyLimit, monthlyLimit int64, action BudgetAction, logger *zap.Logger) *BudgetTracker {
	b := &BudgetTracker{
		provider:     provider,
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		action:       action,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
	now := b.now()
	b.day, b.month = startOfDay(now), startOfMonth(now)
	return b
}

// WithStore attaches persistence and seeds the counters from it.
// A failed read leaves the counter at zero.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	if v, err := store.Get(ctx, b.dailyKey()); err == nil {
		b.dailyUsed = v
	} else {
		b.logger.Warn("Failed to load daily token budget", zap.Error(err))
	}
	if v, err := store.Get(ctx, b.monthlyKey()); err == nil {
		b.monthlyUsed = v
	} else {
		b.logger.Warn("Failed to load monthly token budget", zap.Error(err))
	}

	b.logger.Info("Token budget loaded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("monthly_used", b.monthlyUsed),
	)
	return b
}

// Check reports domain.ErrBudgetExceeded when a limit is reached and the action is reject.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	dailyOver := b.dailyLimit > 0 && b.dailyUsed >= b.dailyLimit
	monthlyOver := b.monthlyLimit > 0 && b.monthlyUsed >= b.monthlyLimit
	if !dailyOver && !monthlyOver {
		return nil
	}

	if b.action == BudgetActionReject {
		return domain.ErrBudgetExceeded
	}

	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("daily_limit", b.dailyLimit),
		zap.Int64("monthly_used", b.monthlyUsed),
		zap.Int64("monthly_limit", b.monthlyLimit),
	)
	return nil
}

// Record adds consumed tokens.
func (b *BudgetTracker) Record(tokens int64) {
	if tokens <= 0 {
		return
	}

	b.mu.Lock()
	b.rollover()
	b.dailyUsed += tokens
	b.monthlyUsed += tokens
	store := b.store
	dailyKey, monthlyKey := b.dailyKey(), b.monthlyKey()
	b.mu.Unlock()

	if store == nil {
		return
	}

	// detached from the request so a cancelled call still gets counted
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := store.IncrBy(ctx, dailyKey, tokens); err != nil {
		b.logger.Warn("Failed to persist daily token budget", zap.String("key", dailyKey), zap.Error(err))
	}
	if err := store.IncrBy(ctx, monthlyKey, tokens); err != nil {
		b.logger.Warn("Failed to persist monthly token budget", zap.String("key", monthlyKey), zap.Error(err))
	}
}

// DailyLimit returns the daily token cap (0 = unlimited).
func (b *BudgetTracker) DailyLimit() int64 { return b.dailyLimit }

// MonthlyLimit returns the monthly token cap (0 = unlimited).
func (b *BudgetTracker) MonthlyLimit() int64 { return b.monthlyLimit }

// DailyUsed returns tokens consumed today.
func (b *BudgetTracker) DailyUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.dailyUsed
}

// MonthlyUsed returns tokens consumed this month.
func (b *BudgetTracker) MonthlyUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.monthlyUsed
}

// RemainingDaily returns tokens left today, -1 if unlimited.
func (b *BudgetTracker) RemainingDaily() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return remaining(b.dailyLimit, b.dailyUsed)
}

// RemainingMonthly returns tokens left this month, -1 if unlimited.
func (b *BudgetTracker) RemainingMonthly() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return remaining(b.monthlyLimit, b.monthlyUsed)
}

func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// rollover zeroes a counter once its period has passed. Caller holds mu.
func (b *BudgetTracker) rollover() {
	now := b.now()
	if d := startOfDay(now); d.After(b.day) {
		b.day = d
		b.dailyUsed = 0
	}
	if m := startOfMonth(now); m.After(b.month) {
		b.month = m
		b.monthlyUsed = 0
	}
}

func (b *BudgetTracker) dailyKey() string {
	return fmt.Sprintf("%sbudget:%s:daily:%s", domain.KeyPrefix, b.provider, b.day.Format("2006-01-02"))
}

func (b *BudgetTracker) monthlyKey() string {
	return fmt.Sprintf("%sbudget:%s:monthly:%s", domain.KeyPrefix, b.provider, b.month.Format("2006-01"))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
