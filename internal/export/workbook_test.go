package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jask/debtledger/internal/database/repository"
)

func TestWriteWorkbook(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	instID := int64(11)
	l := Ledger{
		Debts: []repository.Debt{{
			ID: 1, DebtorName: "Ahmed", TotalAmount: decimal.RequireFromString("120000"),
			RemainingAmount: decimal.RequireFromString("80000"), StartDate: start,
			Type: repository.DebtTypeInstallment, Direction: repository.OwedByMe, Currency: "USD",
		}},
		Installments: []repository.Installment{
			{ID: 11, DebtID: 1, Number: 1, Amount: decimal.RequireFromString("40000"), DueDate: start, IsPaid: true, PaidDate: &start},
			{ID: 12, DebtID: 1, Number: 2, Amount: decimal.RequireFromString("40000"), DueDate: start.AddDate(0, 1, 0)},
		},
		Payments: []repository.Payment{
			{ID: 5, DebtID: 1, Amount: decimal.RequireFromString("40000"), PaymentDate: start, InstallmentID: &instID, Description: "installment 1 payment"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, l))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	require.Equal(t, []string{SheetDebts, SheetInstallments, SheetPayments}, f.GetSheetList())

	debts, err := f.GetRows(SheetDebts)
	require.NoError(t, err)
	require.Len(t, debts, 2)
	require.Equal(t, "Debtor", debts[0][1])
	require.Equal(t, "Ahmed", debts[1][1])
	require.Equal(t, "80000", debts[1][6])
	require.Equal(t, "2024-01-01", debts[1][7])

	insts, err := f.GetRows(SheetInstallments)
	require.NoError(t, err)
	require.Len(t, insts, 3)
	require.Equal(t, "2024-02-01", insts[2][4])

	pays, err := f.GetRows(SheetPayments)
	require.NoError(t, err)
	require.Len(t, pays, 2)
	require.Equal(t, "11", pays[1][2])
	require.Equal(t, "installment 1 payment", pays[1][5])
}
