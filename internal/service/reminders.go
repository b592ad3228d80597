package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jask/debtledger/internal/cache"
	"github.com/jask/debtledger/internal/database"
	"github.com/jask/debtledger/internal/database/repository"
)

// DueEntry is a debt that needs attention. Installment is set when the match came from
// one of the debt's installments rather than the debt's own due date.
type DueEntry struct {
	Debt        repository.Debt
	Installment *repository.Installment
}

// DueDate is the date that made the entry match.
func (e DueEntry) DueDate() time.Time {
	if e.Installment != nil {
		return e.Installment.DueDate
	}
	if e.Debt.DueDate != nil {
		return *e.Debt.DueDate
	}
	return time.Time{}
}

// DueReminders answers which open debts are due.
type DueReminders struct {
	DB       *sql.DB
	Location *time.Location
	Clock    Clock
}

// Today is the current calendar date in the reminder timezone.
func (q *DueReminders) Today() time.Time {
	return q.Clock.today(q.Location)
}

// DebtsDueToday returns open debts and installments due exactly today. Anything due
// earlier is not included; see OverdueDebts.
func (q *DueReminders) DebtsDueToday(ctx context.Context) ([]DueEntry, error) {
	if q.DB == nil {
		return nil, ErrNotInitialized
	}
	today := q.Today()
	debts := repository.NewDebtRepo(q.DB)
	own, err := debts.DueOn(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("debts due: %w", err)
	}
	insts, err := repository.NewInstallmentRepo(q.DB).DueOn(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("installments due: %w", err)
	}
	return q.collect(ctx, debts, own, insts)
}

// OverdueDebts returns open debts and installments whose due date has already passed.
func (q *DueReminders) OverdueDebts(ctx context.Context) ([]DueEntry, error) {
	if q.DB == nil {
		return nil, ErrNotInitialized
	}
	today := q.Today()
	debts := repository.NewDebtRepo(q.DB)
	own, err := debts.DueBefore(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("debts overdue: %w", err)
	}
	insts, err := repository.NewInstallmentRepo(q.DB).DueBefore(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("installments overdue: %w", err)
	}
	return q.collect(ctx, debts, own, insts)
}

func (q *DueReminders) collect(ctx context.Context, debts *repository.DebtRepo, own []repository.Debt,
	insts []repository.Installment) ([]DueEntry, error) {
	byID := make(map[int64]repository.Debt, len(own))
	out := make([]DueEntry, 0, len(own)+len(insts))
	for _, d := range own {
		byID[d.ID] = d
		out = append(out, DueEntry{Debt: d})
	}
	for i := range insts {
		in := insts[i]
		d, ok := byID[in.DebtID]
		if !ok {
			got, err := debts.Get(ctx, in.DebtID)
			if err != nil {
				return nil, err
			}
			if got == nil {
				continue
			}
			d = *got
			byID[d.ID] = d
		}
		out = append(out, DueEntry{Debt: d, Installment: &in})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.DueDate().Equal(b.DueDate()) {
			return a.DueDate().Before(b.DueDate())
		}
		if a.Debt.ID != b.Debt.ID {
			return a.Debt.ID < b.Debt.ID
		}
		return a.Installment == nil && b.Installment != nil
	})
	return out, nil
}

// Reminder is handed to a Notifier.
type Reminder struct {
	DueEntry
	Overdue bool
}

// Notifier delivers reminders to the user.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// DispatchResult counts one reminder run.
type DispatchResult struct {
	Sent    int
	Skipped int
	Failed  int
}

// ReminderDispatcher sends each due reminder at most once per day.
type ReminderDispatcher struct {
	Query          *DueReminders
	Cache          cache.Cache
	IncludeOverdue bool
	// TTL of the sent marker; defaults to 48h.
	TTL    time.Duration
	Logger *zap.Logger
}

func (r *ReminderDispatcher) Dispatch(ctx context.Context, n Notifier) (DispatchResult, error) {
	if r.Query == nil || r.Cache == nil {
		return DispatchResult{}, ErrNotInitialized
	}
	log := orNop(r.Logger)
	var reminders []Reminder
	due, err := r.Query.DebtsDueToday(ctx)
	if err != nil {
		return DispatchResult{}, err
	}
	for _, e := range due {
		reminders = append(reminders, Reminder{DueEntry: e})
	}
	if r.IncludeOverdue {
		late, err := r.Query.OverdueDebts(ctx)
		if err != nil {
			return DispatchResult{}, err
		}
		for _, e := range late {
			reminders = append(reminders, Reminder{DueEntry: e, Overdue: true})
		}
	}

	ttl := r.TTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	today := database.FormatDate(r.Query.Today())
	var res DispatchResult
	for _, rem := range reminders {
		key := reminderKey(rem.DueEntry, today)
		if _, seen, err := r.Cache.Get(ctx, key); err != nil {
			return res, fmt.Errorf("reminder cache: %w", err)
		} else if seen {
			res.Skipped++
			continue
		}
		if err := n.Notify(ctx, rem); err != nil {
			log.Warn("reminder not delivered", zap.Int64("debt_id", rem.Debt.ID), zap.Error(err))
			res.Failed++
			continue
		}
		if err := r.Cache.Set(ctx, key, "sent", ttl); err != nil {
			return res, fmt.Errorf("reminder cache: %w", err)
		}
		res.Sent++
	}
	log.Info("reminders dispatched", zap.Int("sent", res.Sent), zap.Int("skipped", res.Skipped), zap.Int("failed", res.Failed))
	return res, nil
}

func reminderKey(e DueEntry, day string) string {
	var inst int64
	if e.Installment != nil {
		inst = e.Installment.ID
	}
	return fmt.Sprintf("reminder:%d:%d:%s", e.Debt.ID, inst, day)
}
