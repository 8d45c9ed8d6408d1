package usage

import (
	"context"
	"fmt"
	"time"
)

// Period is the aggregation granularity.
type Period string

// Aggregation periods.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod maps a query value to a Period. Empty means day.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth:
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("period must be %q or %q, got %q", PeriodDay, PeriodMonth, s)
	}
}

// Report is the model token usage for one period.
// TokensLimit 0 and TokensRemaining -1 mean unlimited.
type Report struct {
	Period          Period `json:"period"`
	PeriodStart     int64  `json:"period_start_ms"`
	PeriodEnd       int64  `json:"period_end_ms"`
	TokensUsed      int64  `json:"tokens_used"`
	TokensLimit     int64  `json:"tokens_limit"`
	TokensRemaining int64  `json:"tokens_remaining"`
	Exhausted       bool   `json:"exhausted"`
}

// Service handles usage reporting.
type Service struct {
	br  BudgetReader
	now func() time.Time
}

// New creates a Service. br can be nil when no budget is tracked.
func New(br BudgetReader) *Service {
	return &Service{br: br, now: func() time.Time { return time.Now().UTC() }}
}

// GetReport builds a usage report for the current day or month (UTC).
func (s *Service) GetReport(_ context.Context, period Period) Report {
	now := s.now()
	r := Report{Period: period, TokensRemaining: -1}

	var start, end time.Time
	switch period {
	case PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
		if s.br != nil {
			r.TokensLimit, r.TokensUsed, r.TokensRemaining = s.br.MonthlyLimit(), s.br.MonthlyUsed(), s.br.RemainingMonthly()
		}
	default:
		r.Period = PeriodDay
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.Add(24 * time.Hour)
		if s.br != nil {
			r.TokensLimit, r.TokensUsed, r.TokensRemaining = s.br.DailyLimit(), s.br.DailyUsed(), s.br.RemainingDaily()
		}
	}

	r.PeriodStart = start.UnixMilli()
	r.PeriodEnd = end.UnixMilli()
	r.Exhausted = r.TokensLimit > 0 && r.TokensRemaining <= 0
	return r
}
