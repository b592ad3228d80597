package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/debtledger/internal/database"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.SeedDefaults(context.Background(), db))
	return db
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := database.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestDebtRepoRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewDebtRepo(openTestDB(t))

	due := mustDate(t, "2024-02-29")
	desc := "car repair"
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	id, err := repo.Insert(ctx, Debt{
		DebtorName:      "Garage",
		TotalAmount:     decimal.RequireFromString("1234.56"),
		RemainingAmount: decimal.RequireFromString("1234.56"),
		StartDate:       mustDate(t, "2024-01-02"),
		DueDate:         &due,
		Description:     &desc,
		Type:            DebtTypeAdvance,
		Direction:       OwedToMe,
		Currency:        "EUR",
		CreatedAt:       created,
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Garage", got.DebtorName)
	require.Equal(t, "1234.56", got.TotalAmount.String())
	require.Equal(t, "2024-01-02", database.FormatDate(got.StartDate))
	require.Equal(t, "2024-02-29", database.FormatDate(*got.DueDate))
	require.Equal(t, "car repair", *got.Description)
	require.Equal(t, DebtTypeAdvance, got.Type)
	require.Equal(t, OwedToMe, got.Direction)
	require.True(t, created.Equal(got.CreatedAt))
	require.False(t, got.IsPaid)

	missing, err := repo.Get(ctx, id+100)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestDebtRepoUpdateBalanceGuardsStaleReads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewDebtRepo(openTestDB(t))
	total := decimal.RequireFromString("100")
	id, err := repo.Insert(ctx, Debt{DebtorName: "x", TotalAmount: total, RemainingAmount: total,
		StartDate: mustDate(t, "2024-01-01"), Type: DebtTypeDebt, Direction: OwedByMe, Currency: "USD", CreatedAt: time.Now()})
	require.NoError(t, err)

	ok, err := repo.UpdateBalance(ctx, id, total, decimal.RequireFromString("60"))
	require.NoError(t, err)
	require.True(t, ok)

	// a writer that still believes the balance is 100 must not win
	ok, err = repo.UpdateBalance(ctx, id, total, decimal.RequireFromString("90"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.UpdateBalance(ctx, id, decimal.RequireFromString("60"), decimal.Zero)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, got.IsPaid)
	require.True(t, got.RemainingAmount.IsZero())
}

func TestInstallmentRepoMarkPaidOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)
	total := decimal.RequireFromString("50")
	debtID, err := NewDebtRepo(db).Insert(ctx, Debt{DebtorName: "x", TotalAmount: total, RemainingAmount: total,
		StartDate: mustDate(t, "2024-01-01"), Type: DebtTypeInstallment, Direction: OwedByMe, Currency: "USD", CreatedAt: time.Now()})
	require.NoError(t, err)

	repo := NewInstallmentRepo(db)
	id, err := repo.Insert(ctx, Installment{DebtID: debtID, Amount: total, DueDate: mustDate(t, "2024-01-15"), Number: 1})
	require.NoError(t, err)

	_, err = repo.Insert(ctx, Installment{DebtID: debtID, Amount: total, DueDate: mustDate(t, "2024-01-15"), Number: 1})
	require.Error(t, err, "installment numbers are unique per debt")

	ok, err := repo.MarkPaid(ctx, id, decimal.RequireFromString("20"), mustDate(t, "2024-01-10"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.MarkPaid(ctx, id, decimal.RequireFromString("20"), mustDate(t, "2024-01-11"))
	require.NoError(t, err)
	require.False(t, ok)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "20", got.Amount.String())
	require.Equal(t, "2024-01-10", database.FormatDate(*got.PaidDate))

	n, err := repo.MaxNumber(ctx, debtID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = repo.MaxNumber(ctx, debtID+1)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestExpenseRepoIgnoresRepeatedSourceKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewExpenseRepo(openTestDB(t))
	key := "payment-1"
	e := Expense{Amount: decimal.RequireFromString("9.99"), Currency: "USD", Category: "Loans",
		Description: "loan", Date: mustDate(t, "2024-01-01"), SourceKey: &key, CreatedAt: time.Now()}

	inserted, err := repo.RecordExpense(ctx, e)
	require.NoError(t, err)
	require.True(t, inserted)
	inserted, err = repo.RecordExpense(ctx, e)
	require.NoError(t, err)
	require.False(t, inserted)

	got, err := repo.ListByCategory(ctx, "loans")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "loans", got[0].Category)
}
