package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jask/debtledger/internal/database"
	"github.com/jask/debtledger/internal/database/repository"
)

// InstallmentPlan asks CreateDebt or Reschedule to split a balance into installments.
type InstallmentPlan struct {
	Count     int
	Frequency Frequency
}

// NewDebt is the input to CreateDebt. Only DebtorName, TotalAmount and StartDate are required.
type NewDebt struct {
	DebtorName   string
	TotalAmount  decimal.Decimal
	StartDate    time.Time
	Type         repository.DebtType
	DueDate      *time.Time
	Description  *string
	Currency     string
	Installments *InstallmentPlan
	Direction    repository.Direction
}

// DebtService manages debts and their installment schedules.
type DebtService struct {
	DB              *sql.DB
	DefaultCurrency string
	Logger          *zap.Logger
	Clock           Clock
}

// CreateDebt stores a debt, and its installments when a plan is given, in one transaction.
func (s *DebtService) CreateDebt(ctx context.Context, in NewDebt) (int64, error) {
	if s.DB == nil {
		return 0, ErrNotInitialized
	}
	d, err := s.normalize(in)
	if err != nil {
		return 0, err
	}
	var slices []Slice
	if in.Installments != nil {
		slices, err = GenerateInstallments(d.TotalAmount, in.Installments.Count, d.StartDate, in.Installments.Frequency)
		if err != nil {
			return 0, err
		}
	}

	var id int64
	err = database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		id, err = repository.NewDebtRepo(tx).Insert(ctx, d)
		if err != nil {
			return fmt.Errorf("insert debt: %w", err)
		}
		return insertSlices(ctx, repository.NewInstallmentRepo(tx), id, 0, slices)
	})
	if err != nil {
		return 0, err
	}
	orNop(s.Logger).Info("debt created",
		zap.Int64("debt_id", id),
		zap.String("debtor", d.DebtorName),
		zap.String("total", d.TotalAmount.String()),
		zap.Int("installments", len(slices)))
	return id, nil
}

func (s *DebtService) normalize(in NewDebt) (repository.Debt, error) {
	name := strings.TrimSpace(in.DebtorName)
	if name == "" {
		return repository.Debt{}, fmt.Errorf("%w: debtor name is required", ErrInvalidDebt)
	}
	if !in.TotalAmount.IsPositive() {
		return repository.Debt{}, fmt.Errorf("%w: total amount must be positive", ErrInvalidDebt)
	}
	if in.StartDate.IsZero() {
		return repository.Debt{}, fmt.Errorf("%w: start date is required", ErrInvalidDebt)
	}
	typ := in.Type
	if typ == "" {
		typ = repository.DebtTypeDebt
		if in.Installments != nil {
			typ = repository.DebtTypeInstallment
		}
	}
	if !typ.Valid() {
		return repository.Debt{}, fmt.Errorf("%w: unknown type %q", ErrInvalidDebt, typ)
	}
	dir := in.Direction
	if dir == "" {
		dir = repository.OwedByMe
	}
	if !dir.Valid() {
		return repository.Debt{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidDebt, dir)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.DefaultCurrency
	}
	var due *time.Time
	if in.DueDate != nil {
		d := database.Day(*in.DueDate)
		due = &d
	}
	return repository.Debt{
		DebtorName:      name,
		TotalAmount:     in.TotalAmount,
		RemainingAmount: in.TotalAmount,
		StartDate:       database.Day(in.StartDate),
		DueDate:         due,
		Description:     in.Description,
		Type:            typ,
		Direction:       dir,
		Currency:        currency,
		CreatedAt:       s.Clock.now().UTC().Truncate(time.Second),
	}, nil
}

func insertSlices(ctx context.Context, repo *repository.InstallmentRepo, debtID int64, after int, slices []Slice) error {
	for i, sl := range slices {
		if _, err := repo.Insert(ctx, repository.Installment{
			DebtID:  debtID,
			Amount:  sl.Amount,
			DueDate: database.Day(sl.DueDate),
			Number:  after + i + 1,
		}); err != nil {
			return fmt.Errorf("insert installment %d: %w", after+i+1, err)
		}
	}
	return nil
}

func (s *DebtService) GetDebt(ctx context.Context, id int64) (*repository.Debt, error) {
	if s.DB == nil {
		return nil, ErrNotInitialized
	}
	d, err := repository.NewDebtRepo(s.DB).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: %d", ErrDebtNotFound, id)
	}
	return d, nil
}

func (s *DebtService) ListDebts(ctx context.Context, f repository.DebtFilters) ([]repository.Debt, error) {
	if s.DB == nil {
		return nil, ErrNotInitialized
	}
	return repository.NewDebtRepo(s.DB).List(ctx, f)
}

func (s *DebtService) Installments(ctx context.Context, debtID int64) ([]repository.Installment, error) {
	if s.DB == nil {
		return nil, ErrNotInitialized
	}
	return repository.NewInstallmentRepo(s.DB).ListByDebt(ctx, debtID)
}

func (s *DebtService) Payments(ctx context.Context, debtID int64) ([]repository.Payment, error) {
	if s.DB == nil {
		return nil, ErrNotInitialized
	}
	return repository.NewPaymentRepo(s.DB).ListByDebt(ctx, debtID)
}

// DeleteDebt removes a debt and its installments. Its payment history is kept.
func (s *DebtService) DeleteDebt(ctx context.Context, id int64) error {
	if s.DB == nil {
		return ErrNotInitialized
	}
	ok, err := repository.NewDebtRepo(s.DB).Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete debt %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrDebtNotFound, id)
	}
	orNop(s.Logger).Info("debt deleted", zap.Int64("debt_id", id))
	return nil
}

// Reschedule replaces a debt's unpaid installments with a fresh plan over its remaining
// balance. Paid installments are kept and new ones are numbered after them.
func (s *DebtService) Reschedule(ctx context.Context, debtID int64, plan InstallmentPlan, start time.Time) ([]repository.Installment, error) {
	if s.DB == nil {
		return nil, ErrNotInitialized
	}
	var out []repository.Installment
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
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
		slices, err := GenerateInstallments(d.RemainingAmount, plan.Count, database.Day(start), plan.Frequency)
		if err != nil {
			return err
		}
		insts := repository.NewInstallmentRepo(tx)
		if _, err := insts.DeleteUnpaid(ctx, debtID); err != nil {
			return fmt.Errorf("drop unpaid installments: %w", err)
		}
		last, err := insts.MaxNumber(ctx, debtID)
		if err != nil {
			return err
		}
		if err := insertSlices(ctx, insts, debtID, last, slices); err != nil {
			return err
		}
		out, err = insts.ListByDebt(ctx, debtID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SearchByDebtor matches counterparties by substring or by edit distance, closest first.
func (s *DebtService) SearchByDebtor(ctx context.Context, query string) ([]repository.Debt, error) {
	if s.DB == nil {
		return nil, ErrNotInitialized
	}
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	all, err := repository.NewDebtRepo(s.DB).List(ctx, repository.DebtFilters{})
	if err != nil {
		return nil, err
	}
	type hit struct {
		debt  repository.Debt
		score float64
	}
	var hits []hit
	for _, d := range all {
		name := strings.ToUpper(d.DebtorName)
		if strings.Contains(name, q) {
			hits = append(hits, hit{debt: d})
			continue
		}
		maxlen := len(name)
		if len(q) > maxlen {
			maxlen = len(q)
		}
		ratio := float64(levenshtein.ComputeDistance(name, q)) / float64(maxlen)
		if ratio < 0.4 {
			hits = append(hits, hit{debt: d, score: ratio})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score < hits[j].score })
	out := make([]repository.Debt, len(hits))
	for i, h := range hits {
		out[i] = h.debt
	}
	return out, nil
}

// Balance is the open exposure for one direction and currency.
type Balance struct {
	Direction   repository.Direction
	Currency    string
	Outstanding decimal.Decimal
	OpenDebts   int
}

// Summary totals open balances, owed by me before owed to me.
func (s *DebtService) Summary(ctx context.Context) ([]Balance, error) {
	open, err := s.ListDebts(ctx, repository.DebtFilters{OpenOnly: true})
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	var out []Balance
	for _, d := range open {
		k := string(d.Direction) + "/" + d.Currency
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Balance{Direction: d.Direction, Currency: d.Currency, Outstanding: decimal.Zero})
		}
		out[i].Outstanding = out[i].Outstanding.Add(d.RemainingAmount)
		out[i].OpenDebts++
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Direction != out[j].Direction {
			return out[i].Direction == repository.OwedByMe
		}
		return out[i].Currency < out[j].Currency
	})
	return out, nil
}
