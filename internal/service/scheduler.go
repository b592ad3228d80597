package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the spacing between installment due dates.
type Frequency string

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// ParseFrequency accepts "weekly" or "monthly" in any case.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case Weekly, Monthly:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
}

// amountPlaces is the precision of every installment but the last.
const amountPlaces = 2

// Slice is one generated installment.
type Slice struct {
	Amount  decimal.Decimal
	DueDate time.Time
}

// GenerateInstallments splits total into n installments. Each of the first n-1 gets total/n
// truncated to cents and the last takes whatever is left, so the amounts always sum to total.
// A plan whose per-installment share truncates to zero is rejected.
// The first installment is due on start and each following one a week or a calendar month
// after the previous.
func GenerateInstallments(total decimal.Decimal, n int, start time.Time, freq Frequency) ([]Slice, error) {
	if n < 1 {
		return nil, ErrInvalidInstallmentCount
	}
	if freq != Weekly && freq != Monthly {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFrequency, freq)
	}
	per := total.Div(decimal.NewFromInt(int64(n))).Truncate(amountPlaces)
	if n > 1 && !per.IsPositive() {
		return nil, fmt.Errorf("%w: %s cannot be split into %d installments of at least %s",
			ErrInvalidInstallmentCount, total, n, decimal.New(1, -amountPlaces))
	}
	out := make([]Slice, 0, n)
	allocated := decimal.Zero
	due := start
	for i := 0; i < n; i++ {
		amount := per
		if i == n-1 {
			amount = total.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		out = append(out, Slice{Amount: amount, DueDate: due})
		due = advance(due, freq)
	}
	return out, nil
}

func advance(t time.Time, freq Frequency) time.Time {
	if freq == Weekly {
		return t.AddDate(0, 0, 7)
	}
	return addMonthClamped(t)
}

// addMonthClamped moves t one calendar month forward, pinning the day to the end of
// shorter months instead of overflowing into the next one.
func addMonthClamped(t time.Time) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
