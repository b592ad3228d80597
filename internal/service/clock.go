package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/jask/debtledger/internal/database"
)

// Clock returns the current time. A nil Clock means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// today is the calendar date in loc (time.Local when nil), as UTC midnight.
func (c Clock) today(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return database.Day(c.now().In(loc))
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
