package service

import "errors"

var (
	ErrNotInitialized          = errors.New("ledger: storage not initialized")
	ErrDebtNotFound            = errors.New("debt not found")
	ErrInstallmentNotFound     = errors.New("installment not found")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrAmountExceedsBalance    = errors.New("amount exceeds remaining balance")
	ErrDebtAlreadyPaid         = errors.New("debt already paid")
	ErrInstallmentAlreadyPaid  = errors.New("installment already paid")
	ErrInvalidInstallmentCount = errors.New("number of installments must be at least 1")
	ErrInvalidFrequency        = errors.New("frequency must be weekly or monthly")
	ErrInvalidDebt             = errors.New("invalid debt")
	ErrConcurrentUpdate        = errors.New("debt balance changed concurrently")
)
