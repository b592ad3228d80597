package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jask/debtledger/internal/database"
)

func dateArg(t time.Time) string { return database.FormatDate(t) }

func nullDateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return database.FormatDate(*t)
}

func parseDate(col, s string) (time.Time, error) {
	t, err := database.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", col, err)
	}
	return t, nil
}

func parseNullDate(col string, ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseDate(col, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
