package docextract

import (
	"context"
	"time"

	usageuc "github.com/kailas-cloud/docextract/internal/usecase/usage"
)

// UsagePeriod is the aggregation granularity for usage reports.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
)

// UsageReport contains model token usage for the current day or month (UTC).
type UsageReport struct {
	Period      UsagePeriod
	PeriodStart time.Time
	PeriodEnd   time.Time
	Budget      BudgetStatus
}

// BudgetStatus tracks token quota state. A zero limit means unlimited; TokensRemaining is then -1.
type BudgetStatus struct {
	TokensUsed      int64
	TokensLimit     int64
	TokensRemaining int64
	IsExhausted     bool
}

// Usage returns a token usage report for the given period. Unknown periods report the day.
// Observer always records success: the underlying use-case is in-memory
// and does not produce errors.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) UsageReport {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, nil) }()

	report := c.usageSvc.GetReport(ctx, usageuc.Period(period))

	return UsageReport{
		Period:      UsagePeriod(report.Period),
		PeriodStart: time.UnixMilli(report.PeriodStart).UTC(),
		PeriodEnd:   time.UnixMilli(report.PeriodEnd).UTC(),
		Budget: BudgetStatus{
			TokensUsed:      report.TokensUsed,
			TokensLimit:     report.TokensLimit,
			TokensRemaining: report.TokensRemaining,
			IsExhausted:     report.Exhausted,
		},
	}
}

// usageUseCase is the internal interface for usage reports.
type usageUseCase interface {
	GetReport(ctx context.Context, period usageuc.Period) usageuc.Report
}
