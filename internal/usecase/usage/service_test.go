package usage

import (
	"context"
	"testing"
	"time"
)

type mockBudgetReader struct {
	dailyLimit       int64
	monthlyLimit     int64
	dailyUsed        int64
	monthlyUsed      int64
	remainingDaily   int64
	remainingMonthly int64
}

func (m *mockBudgetReader) DailyLimit() int64       { return m.dailyLimit }
func (m *mockBudgetReader) MonthlyLimit() int64     { return m.monthlyLimit }
func (m *mockBudgetReader) DailyUsed() int64        { return m.dailyUsed }
func (m *mockBudgetReader) MonthlyUsed() int64      { return m.monthlyUsed }
func (m *mockBudgetReader) RemainingDaily() int64   { return m.remainingDaily }
func (m *mockBudgetReader) RemainingMonthly() int64 { return m.remainingMonthly }

func fixedService(br BudgetReader) *Service {
	svc := New(br)
	svc.now = func() time.Time { return time.Date(2026, 2, 14, 15, 30, 0, 0, time.UTC) }
	return svc
}

func TestGetReport_Day(t *testing.T) {
	br := &mockBudgetReader{
		dailyLimit: 10000, dailyUsed: 3000, remainingDaily: 7000,
		monthlyLimit: 100000, monthlyUsed: 50000, remainingMonthly: 50000,
	}
	r := fixedService(br).GetReport(context.Background(), PeriodDay)

	wantStart := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	if r.PeriodStart != wantStart.UnixMilli() || r.PeriodEnd != wantStart.Add(24*time.Hour).UnixMilli() {
		t.Errorf("unexpected bounds %d..%d", r.PeriodStart, r.PeriodEnd)
	}
	if r.TokensLimit != 10000 || r.TokensUsed != 3000 || r.TokensRemaining != 7000 {
		t.Errorf("unexpected report: %+v", r)
	}
	if r.Exhausted {
		t.Error("budget should not be exhausted")
	}
}

func TestGetReport_Month(t *testing.T) {
	br := &mockBudgetReader{monthlyLimit: 100000, monthlyUsed: 40000, remainingMonthly: 60000}
	r := fixedService(br).GetReport(context.Background(), PeriodMonth)

	wantStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if r.PeriodStart != wantStart.UnixMilli() || r.PeriodEnd != wantEnd.UnixMilli() {
		t.Errorf("unexpected bounds %d..%d", r.PeriodStart, r.PeriodEnd)
	}
	if r.Period != PeriodMonth || r.TokensUsed != 40000 || r.TokensRemaining != 60000 {
		t.Errorf("unexpected report: %+v", r)
	}
}

func TestGetReport_NoBudget(t *testing.T) {
	r := fixedService(nil).GetReport(context.Background(), PeriodDay)

	if r.TokensLimit != 0 || r.TokensRemaining != -1 || r.Exhausted {
		t.Errorf("expected unlimited report, got %+v", r)
	}
}

func TestGetReport_Exhausted(t *testing.T) {
	br := &mockBudgetReader{dailyLimit: 5000, dailyUsed: 5000, remainingDaily: 0}
	r := fixedService(br).GetReport(context.Background(), PeriodDay)

	if !r.Exhausted {
		t.Error("budget should be exhausted when remaining is 0")
	}
}

func TestParsePeriod(t *testing.T) {
	for in, want := range map[string]Period{"": PeriodDay, "day": PeriodDay, "month": PeriodMonth} {
		got, err := ParsePeriod(in)
		if err != nil || got != want {
			t.Errorf("ParsePeriod(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePeriod("year"); err == nil {
		t.Error("expected error for unknown period")
	}
}
