package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/milkbill/internal/authorization"
	orderdomain "github.com/smallbiznis/milkbill/internal/order/domain"
	"github.com/smallbiznis/milkbill/internal/period"
	pricedomain "github.com/smallbiznis/milkbill/internal/price/domain"
	"go.uber.org/zap"
)

const (
	JobMonthlyBilling   = "monthly_billing"
	JobPaymentReminders = "payment_reminders"
	JobAutofillOrders   = "autofill_orders"
)

type job struct {
	name    string
	timeout time.Duration
	// period names the window a run covers; one run per period.
	period func(now time.Time) string
	due    func(now time.Time) bool
	run    func(ctx context.Context, now time.Time, run *jobRun) (any, error)
}

// AutofillSummary reports one default-order sweep.
type AutofillSummary struct {
	StartDate string `json:"start_date"`
	Days      int    `json:"days"`
	Owners    int    `json:"owners"`
	Created   int    `json:"created"`
	Failed    int    `json:"failed"`
}

func (s *Scheduler) buildJobs() []job {
	return []job{
		{
			name:    JobMonthlyBilling,
			timeout: s.cfg.BillingTimeout,
			period:  s.monthKey,
			due: func(now time.Time) bool {
				return period.IsLastDayOfMonth(now, s.clock.Location()) &&
					s.localHour(now) >= s.policy.Get().BillingHour
			},
			run: s.monthlyBilling,
		},
		{
			name:    JobPaymentReminders,
			timeout: s.cfg.ReminderTimeout,
			period:  s.dayKey,
			due: func(now time.Time) bool {
				return s.localHour(now) >= s.policy.Get().ReminderHour
			},
			run: s.paymentReminders,
		},
		{
			name:    JobAutofillOrders,
			timeout: s.cfg.AutofillTimeout,
			period:  s.dayKey,
			due: func(time.Time) bool {
				return s.policy.Get().AutofillDays > 0
			},
			run: s.autofillOrders,
		},
	}
}

func (s *Scheduler) monthlyBilling(ctx context.Context, now time.Time, run *jobRun) (any, error) {
	summary, err := s.billing.GenerateAllBills(ctx, period.MonthOf(now, s.clock.Location()))
	if err != nil {
		return nil, err
	}
	run.AddProcessed(summary.Generated)
	for i := 0; i < summary.Failed; i++ {
		run.IncError()
	}
	s.metrics.AddBatchProcessed(JobMonthlyBilling, "bills", summary.Generated)
	return summary, nil
}

func (s *Scheduler) paymentReminders(ctx context.Context, now time.Time, run *jobRun) (any, error) {
	summary, err := s.billing.SendReminders(ctx, now)
	if err != nil {
		return nil, err
	}
	run.AddProcessed(summary.Sent)
	s.metrics.AddBatchProcessed(JobPaymentReminders, "reminders", summary.Sent)
	return summary, nil
}

func (s *Scheduler) autofillOrders(ctx context.Context, now time.Time, run *jobRun) (any, error) {
	summary := AutofillSummary{Days: s.policy.Get().AutofillDays}
	if summary.Days <= 0 {
		return summary, nil
	}
	start := period.DateOf(now, s.clock.Location()).AddDate(0, 0, 1)
	summary.StartDate = period.FormatDate(start)

	owners, err := s.owners.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	summary.Owners = len(owners)

	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		created, err := s.orders.GenerateDefaults(ctx, authorization.SystemCaller, orderdomain.GenerateDefaultsRequest{
			OwnerID:   owner.ID,
			StartDate: start,
			Days:      summary.Days,
		})
		summary.Created += created
		if errors.Is(err, pricedomain.ErrPriceNotSet) {
			s.logger(ctx).Warn("autofill skipped, no price configured")
			return summary, nil
		}
		if err != nil {
			summary.Failed++
			run.IncError()
			s.logger(ctx).Warn("autofill failed for owner",
				zap.String("owner_id", owner.ID.String()),
				zap.Error(err),
			)
			continue
		}
	}
	run.AddProcessed(summary.Created)
	s.metrics.AddBatchProcessed(JobAutofillOrders, "orders", summary.Created)
	return summary, nil
}

func (s *Scheduler) monthKey(now time.Time) string {
	return period.MonthOf(now, s.clock.Location()).String()
}

func (s *Scheduler) dayKey(now time.Time) string {
	return period.FormatDate(period.DateOf(now, s.clock.Location()))
}

func (s *Scheduler) localHour(now time.Time) int {
	if loc := s.clock.Location(); loc != nil {
		now = now.In(loc)
	}
	return now.Hour()
}
