package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

const paymentColumns = `id, debt_id, amount, payment_date, installment_id, description, created_at`

// PaymentRepo appends and reads payment history. Payments are never updated or deleted.
type PaymentRepo struct {
	db DBTX
}

func NewPaymentRepo(db DBTX) *PaymentRepo { return &PaymentRepo{db: db} }

func (r *PaymentRepo) Insert(ctx context.Context, p Payment) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO debt_payments(debt_id, amount, payment_date, installment_id, description, created_at)
	VALUES(?, ?, ?, ?, ?, ?);
	`, p.DebtID, p.Amount, dateArg(p.PaymentDate), p.InstallmentID, p.Description, p.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *PaymentRepo) ListByDebt(ctx context.Context, debtID int64) ([]Payment, error) {
	return r.query(ctx, `SELECT `+paymentColumns+` FROM debt_payments WHERE debt_id = ? ORDER BY payment_date, id`, debtID)
}

func (r *PaymentRepo) List(ctx context.Context) ([]Payment, error) {
	return r.query(ctx, `SELECT `+paymentColumns+` FROM debt_payments ORDER BY payment_date, id`)
}

// SumByDebt totals the payments recorded against a debt.
func (r *PaymentRepo) SumByDebt(ctx context.Context, debtID int64) (decimal.Decimal, error) {
	payments, err := r.ListByDebt(ctx, debtID)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return sum, nil
}

func (r *PaymentRepo) query(ctx context.Context, query string, args ...any) ([]Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		var date string
		var inst sql.NullInt64
		if err := rows.Scan(&p.ID, &p.DebtID, &p.Amount, &date, &inst, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		if p.PaymentDate, err = parseDate("payment_date", date); err != nil {
			return nil, err
		}
		if inst.Valid {
			p.InstallmentID = &inst.Int64
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
