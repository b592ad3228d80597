package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const outboxColumns = `id, event_key, payment_id, amount, currency, category, description, date, attempts, last_error, delivered_at, created_at`

// OutboxRepo queues expense mirror writes alongside the payment that caused them.
type OutboxRepo struct {
	db DBTX
}

func NewOutboxRepo(db DBTX) *OutboxRepo { return &OutboxRepo{db: db} }

func (r *OutboxRepo) Enqueue(ctx context.Context, e OutboxEntry) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO expense_outbox(event_key, payment_id, amount, currency, category, description, date, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?);
	`, e.Key, e.PaymentID, e.Amount, e.Currency, e.Category, e.Description, dateArg(e.Date), e.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *OutboxRepo) Get(ctx context.Context, key string) (*OutboxEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM expense_outbox WHERE event_key = ?`, key)
	e, err := scanOutbox(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Pending returns undelivered entries, oldest first.
func (r *OutboxRepo) Pending(ctx context.Context) ([]OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+outboxColumns+` FROM expense_outbox WHERE delivered_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OutboxEntry
	for rows.Next() {
		e, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *OutboxRepo) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE expense_outbox SET delivered_at = ?, attempts = attempts + 1, last_error = NULL WHERE id = ?`, at, id)
	return err
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, id int64, msg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE expense_outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`, msg, id)
	return err
}

func scanOutbox(row scanner) (OutboxEntry, error) {
	var e OutboxEntry
	var date string
	var lastErr sql.NullString
	var delivered sql.NullTime
	if err := row.Scan(&e.ID, &e.Key, &e.PaymentID, &e.Amount, &e.Currency, &e.Category, &e.Description,
		&date, &e.Attempts, &lastErr, &delivered, &e.CreatedAt); err != nil {
		return OutboxEntry{}, err
	}
	var err error
	if e.Date, err = parseDate("date", date); err != nil {
		return OutboxEntry{}, err
	}
	if lastErr.Valid {
		e.LastError = &lastErr.String
	}
	if delivered.Valid {
		e.DeliveredAt = &delivered.Time
	}
	return e, nil
}
