package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const installmentColumns = `id, debt_id, amount, due_date, is_paid, paid_date, installment_number`

// InstallmentRepo handles debt installments.
type InstallmentRepo struct {
	db DBTX
}

func NewInstallmentRepo(db DBTX) *InstallmentRepo { return &InstallmentRepo{db: db} }

func (r *InstallmentRepo) Insert(ctx context.Context, in Installment) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO debt_installments(debt_id, amount, due_date, is_paid, paid_date, installment_number)
	VALUES(?, ?, ?, ?, ?, ?);
	`, in.DebtID, in.Amount, dateArg(in.DueDate), in.IsPaid, nullDateArg(in.PaidDate), in.Number)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *InstallmentRepo) Get(ctx context.Context, id int64) (*Installment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+installmentColumns+` FROM debt_installments WHERE id = ?`, id)
	in, err := scanInstallment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &in, nil
}

// ListByDebt returns a debt's installments ordered by number.
func (r *InstallmentRepo) ListByDebt(ctx context.Context, debtID int64) ([]Installment, error) {
	return r.query(ctx, `SELECT `+installmentColumns+` FROM debt_installments WHERE debt_id = ? ORDER BY installment_number`, debtID)
}

func (r *InstallmentRepo) List(ctx context.Context) ([]Installment, error) {
	return r.query(ctx, `SELECT `+installmentColumns+` FROM debt_installments ORDER BY debt_id, installment_number`)
}

// DueOn returns unpaid installments of unpaid debts due exactly on day.
func (r *InstallmentRepo) DueOn(ctx context.Context, day time.Time) ([]Installment, error) {
	return r.query(ctx, `
	SELECT i.id, i.debt_id, i.amount, i.due_date, i.is_paid, i.paid_date, i.installment_number
	FROM debt_installments i JOIN debts d ON d.id = i.debt_id
	WHERE d.is_paid = 0 AND i.is_paid = 0 AND i.due_date = ?
	ORDER BY i.debt_id, i.installment_number`, dateArg(day))
}

// DueBefore returns unpaid installments of unpaid debts due before day.
func (r *InstallmentRepo) DueBefore(ctx context.Context, day time.Time) ([]Installment, error) {
	return r.query(ctx, `
	SELECT i.id, i.debt_id, i.amount, i.due_date, i.is_paid, i.paid_date, i.installment_number
	FROM debt_installments i JOIN debts d ON d.id = i.debt_id
	WHERE d.is_paid = 0 AND i.is_paid = 0 AND i.due_date < ?
	ORDER BY i.due_date, i.debt_id, i.installment_number`, dateArg(day))
}

// MarkPaid settles an unpaid installment with the amount actually paid.
// It reports false when the installment was already paid.
func (r *InstallmentRepo) MarkPaid(ctx context.Context, id int64, amount decimal.Decimal, paidDate time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE debt_installments SET is_paid = 1, paid_date = ?, amount = ? WHERE id = ? AND is_paid = 0`,
		dateArg(paidDate), amount, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeleteUnpaid removes a debt's open installments and returns how many went.
func (r *InstallmentRepo) DeleteUnpaid(ctx context.Context, debtID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM debt_installments WHERE debt_id = ? AND is_paid = 0`, debtID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MaxNumber returns the highest installment number of a debt, 0 if it has none.
func (r *InstallmentRepo) MaxNumber(ctx context.Context, debtID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(installment_number), 0) FROM debt_installments WHERE debt_id = ?`, debtID).Scan(&n)
	return n, err
}

func (r *InstallmentRepo) query(ctx context.Context, query string, args ...any) ([]Installment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Installment
	for rows.Next() {
		in, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func scanInstallment(row scanner) (Installment, error) {
	var in Installment
	var due string
	var paid sql.NullString
	if err := row.Scan(&in.ID, &in.DebtID, &in.Amount, &due, &in.IsPaid, &paid, &in.Number); err != nil {
		return Installment{}, err
	}
	var err error
	if in.DueDate, err = parseDate("due_date", due); err != nil {
		return Installment{}, err
	}
	if in.PaidDate, err = parseNullDate("paid_date", paid); err != nil {
		return Installment{}, err
	}
	return in, nil
}
