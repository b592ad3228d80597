package repository

import (
	"context"
	"database/sql"
	"strings"
)

// ExpenseRepo writes to the local expense ledger.
type ExpenseRepo struct {
	db DBTX
}

func NewExpenseRepo(db DBTX) *ExpenseRepo { return &ExpenseRepo{db: db} }

// RecordExpense inserts e, creating its category if missing. A repeated SourceKey is ignored,
// reported as inserted=false.
func (r *ExpenseRepo) RecordExpense(ctx context.Context, e Expense) (bool, error) {
	category := strings.ToLower(strings.TrimSpace(e.Category))
	if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO expense_categories(name) VALUES(?)`, category); err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO expenses(amount, currency, category, description, date, source_key, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(source_key) DO NOTHING;
	`, e.Amount, e.Currency, category, e.Description, dateArg(e.Date), e.SourceKey, e.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *ExpenseRepo) ListByCategory(ctx context.Context, category string) ([]Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, amount, currency, category, description, date, source_key, created_at
	FROM expenses WHERE category = ? ORDER BY date, id`, strings.ToLower(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		var e Expense
		var date string
		var key sql.NullString
		if err := rows.Scan(&e.ID, &e.Amount, &e.Currency, &e.Category, &e.Description, &date, &key, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Date, err = parseDate("date", date); err != nil {
			return nil, err
		}
		if key.Valid {
			e.SourceKey = &key.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
