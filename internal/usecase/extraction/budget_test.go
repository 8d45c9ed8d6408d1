package extraction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/domain"
)

type memBudgetStore struct {
	mu     sync.Mutex
	data   map[string]int64
	getErr error
	setErr error
}

func newMemBudgetStore() *memBudgetStore {
	return &memBudgetStore{data: make(map[string]int64)}
}

func (m *memBudgetStore) IncrBy(_ context.Context, key string, val int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] += val
	return nil
}

func (m *memBudgetStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.data[key], nil
}

func (m *memBudgetStore) value(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

func TestBudgetTracker_Check(t *testing.T) {
	tests := []struct {
		name    string
		daily   int64
		monthly int64
		action  BudgetAction
		used    int64
		wantErr bool
	}{
		{"daily reject", 100, 0, BudgetActionReject, 100, true},
		{"monthly reject", 0, 500, BudgetActionReject, 500, true},
		{"warn allows", 100, 0, BudgetActionWarn, 200, false},
		{"below limit", 1000, 10000, BudgetActionReject, 500, false},
		{"unlimited", 0, 0, BudgetActionReject, 999999999, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bt := NewBudgetTracker("test", tc.daily, tc.monthly, tc.action, zap.NewNop())
			bt.Record(tc.used)

			err := bt.Check(context.Background())
			if tc.wantErr && !errors.Is(err, domain.ErrBudgetExceeded) {
				t.Fatalf("expected ErrBudgetExceeded, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestBudgetTracker_Remaining(t *testing.T) {
	bt := NewBudgetTracker("test", 1000, 10000, BudgetActionWarn, zap.NewNop())
	bt.Record(300)

	if v := bt.RemainingDaily(); v != 700 {
		t.Errorf("daily remaining = %d, want 700", v)
	}
	if v := bt.RemainingMonthly(); v != 9700 {
		t.Errorf("monthly remaining = %d, want 9700", v)
	}

	bt.Record(5000)
	if v := bt.RemainingDaily(); v != 0 {
		t.Errorf("overspent daily remaining = %d, want 0", v)
	}

	unlimited := NewBudgetTracker("test", 0, 0, BudgetActionWarn, zap.NewNop())
	if unlimited.RemainingDaily() != -1 || unlimited.RemainingMonthly() != -1 {
		t.Error("expected -1 for unlimited budgets")
	}
}

func TestBudgetTracker_RolloverResetsDaily(t *testing.T) {
	now := time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)
	bt := NewBudgetTracker("test", 100, 1000, BudgetActionReject, zap.NewNop())
	bt.now = func() time.Time { return now }
	bt.day, bt.month = startOfDay(now), startOfMonth(now)

	bt.Record(100)
	if err := bt.Check(context.Background()); err == nil {
		t.Fatal("expected daily limit hit")
	}

	now = now.Add(2 * time.Hour) // April 1st
	if err := bt.Check(context.Background()); err != nil {
		t.Fatalf("expected reset on new day, got %v", err)
	}
	if bt.DailyUsed() != 0 || bt.MonthlyUsed() != 0 {
		t.Errorf("expected both counters reset on new month, got %d/%d", bt.DailyUsed(), bt.MonthlyUsed())
	}
}

func TestBudgetTracker_WithStore_LoadsValues(t *testing.T) {
	store := newMemBudgetStore()
	bt := NewBudgetTracker("prov", 1000, 10000, BudgetActionReject, zap.NewNop())
	store.data[bt.dailyKey()] = 300
	store.data[bt.monthlyKey()] = 5000

	bt.WithStore(context.Background(), store)

	if bt.DailyUsed() != 300 || bt.MonthlyUsed() != 5000 {
		t.Errorf("loaded %d/%d, want 300/5000", bt.DailyUsed(), bt.MonthlyUsed())
	}
}

func TestBudgetTracker_WithStore_LoadErrorStartsAtZero(t *testing.T) {
	store := newMemBudgetStore()
	store.getErr = errors.New("connection refused")

	bt := NewBudgetTracker("prov", 1000, 10000, BudgetActionReject, zap.NewNop())
	bt.WithStore(context.Background(), store)

	if bt.DailyUsed() != 0 || bt.MonthlyUsed() != 0 {
		t.Error("expected zero counters on load error")
	}
}

func TestBudgetTracker_RecordWritesThrough(t *testing.T) {
	store := newMemBudgetStore()
	bt := NewBudgetTracker("prov", 10000, 100000, BudgetActionWarn, zap.NewNop())
	bt.WithStore(context.Background(), store)

	bt.Record(100)
	bt.Record(200)
	bt.Record(0)

	if v := store.value(bt.dailyKey()); v != 300 {
		t.Errorf("stored daily = %d, want 300", v)
	}
	if v := store.value(bt.monthlyKey()); v != 300 {
		t.Errorf("stored monthly = %d, want 300", v)
	}
}

func TestBudgetTracker_StoreWriteErrorKeepsMemory(t *testing.T) {
	store := newMemBudgetStore()
	bt := NewBudgetTracker("prov", 1000, 10000, BudgetActionWarn, zap.NewNop())
	bt.WithStore(context.Background(), store)
	store.mu.Lock()
	store.setErr = errors.New("write timeout")
	store.mu.Unlock()

	bt.Record(50)

	if bt.DailyUsed() != 50 {
		t.Errorf("expected daily_used=50 despite store error, got %d", bt.DailyUsed())
	}
}

func TestBudgetTracker_KeyFormat(t *testing.T) {
	bt := NewBudgetTracker("gemini", 0, 0, BudgetActionWarn, zap.NewNop())
	fixed := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	bt.day, bt.month = fixed, startOfMonth(fixed)

	if k := bt.dailyKey(); k != "docextract:budget:gemini:daily:2026-01-02" {
		t.Errorf("daily key = %q", k)
	}
	if k := bt.monthlyKey(); k != "docextract:budget:gemini:monthly:2026-01" {
		t.Errorf("monthly key = %q", k)
	}
}
