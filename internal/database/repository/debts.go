package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const debtColumns = `id, debtor_name, total_amount, remaining_amount, start_date, due_date, description, type, direction, currency, is_paid, created_at`

// DebtFilters defines list filters.
type DebtFilters struct {
	OpenOnly  bool
	Direction Direction
}

// DebtRepo handles debts.
type DebtRepo struct {
	db DBTX
}

func NewDebtRepo(db DBTX) *DebtRepo { return &DebtRepo{db: db} }

// Insert stores d and returns its new id.
func (r *DebtRepo) Insert(ctx context.Context, d Debt) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO debts(
	 debtor_name, total_amount, remaining_amount, start_date, due_date, description,
	 type, direction, currency, is_paid, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`,
		d.DebtorName, d.TotalAmount, d.RemainingAmount, dateArg(d.StartDate), nullDateArg(d.DueDate),
		d.Description, string(d.Type), string(d.Direction), d.Currency, d.IsPaid, d.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *DebtRepo) Get(ctx context.Context, id int64) (*Debt, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+debtColumns+` FROM debts WHERE id = ?`, id)
	d, err := scanDebt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *DebtRepo) List(ctx context.Context, f DebtFilters) ([]Debt, error) {
	var where []string
	var args []any
	if f.OpenOnly {
		where = append(where, "is_paid = 0")
	}
	if f.Direction != "" {
		where = append(where, "direction = ?")
		args = append(args, string(f.Direction))
	}
	query := "SELECT " + debtColumns + " FROM debts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date, id"
	return r.query(ctx, query, args...)
}

// DueOn returns unpaid debts whose own due date is exactly day.
func (r *DebtRepo) DueOn(ctx context.Context, day time.Time) ([]Debt, error) {
	return r.query(ctx, `SELECT `+debtColumns+` FROM debts WHERE is_paid = 0 AND due_date = ? ORDER BY id`, dateArg(day))
}

// DueBefore returns unpaid debts whose own due date is earlier than day.
func (r *DebtRepo) DueBefore(ctx context.Context, day time.Time) ([]Debt, error) {
	return r.query(ctx, `SELECT `+debtColumns+` FROM debts WHERE is_paid = 0 AND due_date IS NOT NULL AND due_date < ? ORDER BY due_date, id`, dateArg(day))
}

// UpdateBalance writes a new remaining amount only if the stored balance still equals prev.
// It reports whether the row was updated.
func (r *DebtRepo) UpdateBalance(ctx context.Context, id int64, prev, next decimal.Decimal) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE debts SET remaining_amount = ?, is_paid = ? WHERE id = ? AND remaining_amount = ?`,
		next, next.IsZero(), id, prev)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *DebtRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM debts WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *DebtRepo) query(ctx context.Context, query string, args ...any) ([]Debt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDebt(row scanner) (Debt, error) {
	var d Debt
	var start, typ, dir string
	var due, desc sql.NullString
	if err := row.Scan(&d.ID, &d.DebtorName, &d.TotalAmount, &d.RemainingAmount, &start, &due, &desc,
		&typ, &dir, &d.Currency, &d.IsPaid, &d.CreatedAt); err != nil {
		return Debt{}, err
	}
	var err error
	if d.StartDate, err = parseDate("start_date", start); err != nil {
		return Debt{}, err
	}
	if d.DueDate, err = parseNullDate("due_date", due); err != nil {
		return Debt{}, err
	}
	if desc.Valid {
		d.Description = &desc.String
	}
	d.Type = DebtType(typ)
	d.Direction = Direction(dir)
	return d, nil
}
