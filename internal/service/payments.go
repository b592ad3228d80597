package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jask/debtledger/internal/database"
	"github.com/jask/debtledger/internal/database/repository"
)

// Receipt describes an applied payment.
type Receipt struct {
	Payment     repository.Payment
	Debt        repository.Debt
	Installment *repository.Installment
	// Mirrored is false when the expense mirror is still waiting in the outbox.
	Mirrored bool
}

// PaymentProcessor applies payments to debts and installments.
type PaymentProcessor struct {
	DB              *sql.DB
	Bridge          *ExpenseBridge
	ExpenseCategory string
	Location        *time.Location
	Logger          *zap.Logger
	Clock           Clock
}

// PayInstallment settles one installment. A nil amount pays the installment's own amount,
// capped at what is left on the debt; a smaller amount records a partial payment and
// becomes the installment's amount. The capped default still counts as the installment's payment.
func (p *PaymentProcessor) PayInstallment(ctx context.Context, installmentID int64, amount *decimal.Decimal) (Receipt, error) {
	if p.DB == nil {
		return Receipt{}, ErrNotInitialized
	}
	var rc Receipt
	var key string
	err := database.WithTx(ctx, p.DB, func(tx *sql.Tx) error {
		insts := repository.NewInstallmentRepo(tx)
		inst, err := insts.Get(ctx, installmentID)
		if err != nil {
			return err
		}
		if inst == nil {
			return fmt.Errorf("%w: %d", ErrInstallmentNotFound, installmentID)
		}
		if inst.IsPaid {
			return fmt.Errorf("%w: %d", ErrInstallmentAlreadyPaid, installmentID)
		}
		d, err := repository.NewDebtRepo(tx).Get(ctx, inst.DebtID)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: %d", ErrDebtNotFound, inst.DebtID)
		}
		if d.IsPaid {
			return fmt.Errorf("%w: %d", ErrDebtAlreadyPaid, d.ID)
		}

		amt := decimal.Min(inst.Amount, d.RemainingAmount)
		if amount != nil {
			amt = *amount
		}
		if err := checkAmount(amt, d.RemainingAmount); err != nil {
			return err
		}

		today := p.Clock.today(p.Location)
		ok, err := insts.MarkPaid(ctx, inst.ID, amt, today)
		if err != nil {
			return fmt.Errorf("mark installment paid: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %d", ErrInstallmentAlreadyPaid, installmentID)
		}
		desc := fmt.Sprintf("installment %d payment", inst.Number)
		if amt.LessThan(inst.Amount) && amount != nil {
			desc = fmt.Sprintf("installment %d partial payment of %s", inst.Number, amt)
		}
		inst.IsPaid, inst.PaidDate, inst.Amount = true, &today, amt

		rc, key, err = p.apply(ctx, tx, *d, inst, amt, desc)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	rc.Mirrored = p.mirror(ctx, key, rc.Payment)
	return rc, nil
}

// PayDebt applies a payment to a debt as a whole. A nil amount settles the full remaining balance.
func (p *PaymentProcessor) PayDebt(ctx context.Context, debtID int64, amount *decimal.Decimal) (Receipt, error) {
	if p.DB == nil {
		return Receipt{}, ErrNotInitialized
	}
	var rc Receipt
	var key string
	err := database.WithTx(ctx, p.DB, func(tx *sql.Tx) error {
		d, err := repository.NewDebtRepo(tx).Get(ctx, debtID)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: %d", ErrDebtNotFound, debtID)
		}
		if d.IsPaid {
			return fmt.Errorf("%w: %d", ErrDebtAlreadyPaid, debtID)
		}
		amt := d.RemainingAmount
		if amount != nil {
			amt = *amount
		}
		if err := checkAmount(amt, d.RemainingAmount); err != nil {
			return err
		}
		desc := "paid in full"
		if !amt.Equal(d.RemainingAmount) {
			desc = "partial payment of " + amt.String()
		}
		rc, key, err = p.apply(ctx, tx, *d, nil, amt, desc)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	rc.Mirrored = p.mirror(ctx, key, rc.Payment)
	return rc, nil
}

func checkAmount(amt, remaining decimal.Decimal) error {
	if !amt.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amt)
	}
	if amt.GreaterThan(remaining) {
		return fmt.Errorf("%w: %s > %s", ErrAmountExceedsBalance, amt, remaining)
	}
	return nil
}

// apply decrements the balance, appends the payment and queues the expense mirror, all on tx.
func (p *PaymentProcessor) apply(ctx context.Context, tx *sql.Tx, d repository.Debt, inst *repository.Installment,
	amt decimal.Decimal, desc string) (Receipt, string, error) {
	today := p.Clock.today(p.Location)
	now := p.Clock.now().UTC().Truncate(time.Second)

	next := decimal.Max(d.RemainingAmount.Sub(amt), decimal.Zero)
	ok, err := repository.NewDebtRepo(tx).UpdateBalance(ctx, d.ID, d.RemainingAmount, next)
	if err != nil {
		return Receipt{}, "", fmt.Errorf("update balance: %w", err)
	}
	if !ok {
		return Receipt{}, "", fmt.Errorf("%w: %d", ErrConcurrentUpdate, d.ID)
	}
	d.RemainingAmount = next
	d.IsPaid = next.IsZero()

	pay := repository.Payment{
		DebtID:      d.ID,
		Amount:      amt,
		PaymentDate: today,
		Description: desc,
		CreatedAt:   now,
	}
	if inst != nil {
		id := inst.ID
		pay.InstallmentID = &id
	}
	if pay.ID, err = repository.NewPaymentRepo(tx).Insert(ctx, pay); err != nil {
		return Receipt{}, "", fmt.Errorf("insert payment: %w", err)
	}

	key := uuid.NewString()
	if _, err := repository.NewOutboxRepo(tx).Enqueue(ctx, repository.OutboxEntry{
		Key:         key,
		PaymentID:   pay.ID,
		Amount:      amt,
		Currency:    d.Currency,
		Category:    p.category(),
		Description: expenseDescription(d, inst),
		Date:        today,
		CreatedAt:   now,
	}); err != nil {
		return Receipt{}, "", fmt.Errorf("queue expense mirror: %w", err)
	}
	return Receipt{Payment: pay, Debt: d, Installment: inst}, key, nil
}

// mirror delivers the queued expense. Failures stay in the outbox and never undo the payment.
func (p *PaymentProcessor) mirror(ctx context.Context, key string, pay repository.Payment) bool {
	log := orNop(p.Logger).With(zap.Int64("debt_id", pay.DebtID), zap.Int64("payment_id", pay.ID))
	log.Info("payment recorded", zap.String("amount", pay.Amount.String()), zap.String("description", pay.Description))
	if p.Bridge == nil {
		return false
	}
	if err := p.Bridge.Deliver(ctx, key); err != nil {
		log.Warn("expense mirror failed; left in outbox", zap.String("outbox_key", key), zap.Error(err))
		return false
	}
	return true
}

func (p *PaymentProcessor) category() string {
	if p.ExpenseCategory == "" {
		return "bills"
	}
	return p.ExpenseCategory
}

func expenseDescription(d repository.Debt, inst *repository.Installment) string {
	label := map[repository.DebtType]string{
		repository.DebtTypeDebt:        "Debt",
		repository.DebtTypeInstallment: "Installment",
		repository.DebtTypeAdvance:     "Advance",
	}[d.Type]
	if label == "" {
		label = "Debt"
	}
	prep := "to"
	if d.Direction == repository.OwedToMe {
		prep = "from"
	}
	desc := fmt.Sprintf("%s payment %s %s", label, prep, d.DebtorName)
	if inst != nil {
		desc += fmt.Sprintf(" - installment %d", inst.Number)
	}
	return desc
}
