package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repos can run inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DebtType classifies an obligation.
type DebtType string

const (
	DebtTypeDebt        DebtType = "debt"
	DebtTypeInstallment DebtType = "installment"
	DebtTypeAdvance     DebtType = "advance"
)

// Valid reports whether t is a known debt type.
func (t DebtType) Valid() bool {
	switch t {
	case DebtTypeDebt, DebtTypeInstallment, DebtTypeAdvance:
		return true
	}
	return false
}

// Direction says who owes whom.
type Direction string

const (
	OwedByMe Direction = "owed_by_me"
	OwedToMe Direction = "owed_to_me"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == OwedByMe || d == OwedToMe
}

// Debt represents a debt row.
type Debt struct {
	ID              int64
	DebtorName      string
	TotalAmount     decimal.Decimal
	RemainingAmount decimal.Decimal
	StartDate       time.Time
	DueDate         *time.Time
	Description     *string
	Type            DebtType
	Direction       Direction
	Currency        string
	IsPaid          bool
	CreatedAt       time.Time
}

// Installment represents a debt_installments row.
type Installment struct {
	ID       int64
	DebtID   int64
	Amount   decimal.Decimal
	DueDate  time.Time
	IsPaid   bool
	PaidDate *time.Time
	Number   int
}

// Payment represents an immutable debt_payments row.
type Payment struct {
	ID            int64
	DebtID        int64
	Amount        decimal.Decimal
	PaymentDate   time.Time
	InstallmentID *int64
	Description   string
	CreatedAt     time.Time
}

// Expense represents a row in the expense ledger.
type Expense struct {
	ID          int64
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
	Date        time.Time
	SourceKey   *string
	CreatedAt   time.Time
}

// OutboxEntry is a pending expense mirror write.
type OutboxEntry struct {
	ID          int64
	Key         string
	PaymentID   int64
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
	Date        time.Time
	Attempts    int
	LastError   *string
	DeliveredAt *time.Time
	CreatedAt   time.Time
}

// scanner handles both Row and Rows.
type scanner interface {
	Scan(dest ...any) error
}
