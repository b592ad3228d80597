package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jask/debtledger/internal/database"
	"github.com/jask/debtledger/internal/database/repository"
)

type fixture struct {
	db       *sql.DB
	debts    *DebtService
	payments *PaymentProcessor
	bridge   *ExpenseBridge
	due      *DueReminders
	expenses *repository.ExpenseRepo
	outbox   *repository.OutboxRepo
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.SeedDefaults(ctx, db))

	clock := Clock(func() time.Time { return now })
	expenses := repository.NewExpenseRepo(db)
	outbox := repository.NewOutboxRepo(db)
	bridge := &ExpenseBridge{Outbox: outbox, Sink: expenses, Clock: clock}
	return &fixture{
		db:       db,
		debts:    &DebtService{DB: db, DefaultCurrency: "USD", Clock: clock},
		payments: &PaymentProcessor{DB: db, Bridge: bridge, ExpenseCategory: "bills", Location: time.UTC, Clock: clock, Logger: zap.NewNop()},
		bridge:   bridge,
		due:      &DueReminders{DB: db, Location: time.UTC, Clock: clock},
		expenses: expenses,
		outbox:   outbox,
	}
}

func day(s string) time.Time {
	t, err := database.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) mustDebt(t *testing.T, id int64) repository.Debt {
	t.Helper()
	d, err := f.debts.GetDebt(context.Background(), id)
	require.NoError(t, err)
	return *d
}

// requireLedgerBalanced checks that payments explain the gap between total and remaining.
func (f *fixture) requireLedgerBalanced(t *testing.T, id int64) {
	t.Helper()
	d := f.mustDebt(t, id)
	sum, err := repository.NewPaymentRepo(f.db).SumByDebt(context.Background(), id)
	require.NoError(t, err)
	require.False(t, d.RemainingAmount.IsNegative(), "remaining %s", d.RemainingAmount)
	require.Equal(t, d.TotalAmount.Sub(d.RemainingAmount).String(), sum.String())
	require.Equal(t, d.RemainingAmount.IsZero(), d.IsPaid)
}
