package database

import (
	"context"
	"database/sql"
	"strings"
)

// DefaultExpenseCategories are the expense ledger categories every database starts with.
var DefaultExpenseCategories = []string{
	"bills",
	"food",
	"transport",
	"shopping",
	"health",
	"entertainment",
	"other",
}

// SeedDefaults ensures baseline expense categories exist for new databases.
// It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB, extra ...string) error {
	names := append(append([]string{}, DefaultExpenseCategories...), extra...)
	return WithTx(ctx, db, func(tx *sql.Tx) error {
		for idx, raw := range names {
			name := strings.ToLower(strings.TrimSpace(raw))
			if name == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO expense_categories(name, sort_order) VALUES(?, ?)`, name, idx); err != nil {
				return err
			}
		}
		return nil
	})
}
