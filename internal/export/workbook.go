// Package export writes the debt ledger to a spreadsheet.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jask/debtledger/internal/database"
	"github.com/jask/debtledger/internal/database/repository"
)

// Sheet names in the generated workbook.
const (
	SheetDebts        = "Debts"
	SheetInstallments = "Installments"
	SheetPayments     = "Payments"
)

// Ledger is everything a workbook holds.
type Ledger struct {
	Debts        []repository.Debt
	Installments []repository.Installment
	Payments     []repository.Payment
}

// WriteWorkbook renders l as an xlsx workbook with one sheet per record kind.
func WriteWorkbook(w io.Writer, l Ledger) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetDebts); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetInstallments); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetPayments); err != nil {
		return err
	}

	debtRows := [][]any{{"ID", "Debtor", "Type", "Direction", "Currency", "Total", "Remaining", "Start", "Due", "Paid", "Description"}}
	for _, d := range l.Debts {
		debtRows = append(debtRows, []any{
			d.ID, d.DebtorName, string(d.Type), string(d.Direction), d.Currency,
			d.TotalAmount.String(), d.RemainingAmount.String(),
			database.FormatDate(d.StartDate), optDate(d.DueDate), d.IsPaid, optString(d.Description),
		})
	}
	instRows := [][]any{{"ID", "Debt ID", "Number", "Amount", "Due", "Paid", "Paid On"}}
	for _, in := range l.Installments {
		instRows = append(instRows, []any{
			in.ID, in.DebtID, in.Number, in.Amount.String(),
			database.FormatDate(in.DueDate), in.IsPaid, optDate(in.PaidDate),
		})
	}
	payRows := [][]any{{"ID", "Debt ID", "Installment ID", "Amount", "Date", "Description"}}
	for _, p := range l.Payments {
		var inst any = ""
		if p.InstallmentID != nil {
			inst = *p.InstallmentID
		}
		payRows = append(payRows, []any{
			p.ID, p.DebtID, inst, p.Amount.String(), database.FormatDate(p.PaymentDate), p.Description,
		})
	}

	for sheet, rows := range map[string][][]any{
		SheetDebts:        debtRows,
		SheetInstallments: instRows,
		SheetPayments:     payRows,
	} {
		if err := writeRows(f, sheet, rows); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func optDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return database.FormatDate(*t)
}

func optString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
