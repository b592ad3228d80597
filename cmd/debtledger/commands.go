package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jask/debtledger/internal/database"
	"github.com/jask/debtledger/internal/database/repository"
	"github.com/jask/debtledger/internal/export"
	"github.com/jask/debtledger/internal/service"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa"))
	paidStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	dueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
	overdueStyle = dueStyle.Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c"))
)

func newDebtCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "debt", Short: "Manage debts"}

	var (
		name, amount, start, typ, due, desc, currency, direction, freq string
		count                                                          int
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Record a new debt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			total, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			startDate := a.today()
			if start != "" {
				if startDate, err = database.ParseDate(start); err != nil {
					return fmt.Errorf("start: %w", err)
				}
			}
			in := service.NewDebt{
				DebtorName:  name,
				TotalAmount: total,
				StartDate:   startDate,
				Type:        repository.DebtType(typ),
				Currency:    currency,
				Direction:   repository.Direction(direction),
			}
			if due != "" {
				d, err := database.ParseDate(due)
				if err != nil {
					return fmt.Errorf("due: %w", err)
				}
				in.DueDate = &d
			}
			if desc != "" {
				in.Description = &desc
			}
			if count > 0 {
				f, err := service.ParseFrequency(freq)
				if err != nil {
					return err
				}
				in.Installments = &service.InstallmentPlan{Count: count, Frequency: f}
			}
			id, err := a.debts.CreateDebt(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created debt %d\n", id)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "counterparty name")
	add.Flags().StringVar(&amount, "amount", "", "total amount")
	add.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (default today)")
	add.Flags().StringVar(&typ, "type", "", "debt, installment or advance")
	add.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD")
	add.Flags().StringVar(&desc, "desc", "", "description")
	add.Flags().StringVar(&currency, "currency", "", "currency code")
	add.Flags().StringVar(&direction, "direction", "", "owed_by_me or owed_to_me")
	add.Flags().IntVar(&count, "installments", 0, "split into this many installments")
	add.Flags().StringVar(&freq, "frequency", string(service.Monthly), "weekly or monthly")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("amount")

	var openOnly bool
	var listDirection string
	list := &cobra.Command{
		Use:   "list",
		Short: "List debts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			debts, err := a.debts.ListDebts(cmd.Context(), repository.DebtFilters{
				OpenOnly:  openOnly,
				Direction: repository.Direction(listDirection),
			})
			if err != nil {
				return err
			}
			printDebts(cmd.OutOrStdout(), debts)
			return nil
		},
	}
	list.Flags().BoolVar(&openOnly, "open", false, "only unpaid debts")
	list.Flags().StringVar(&listDirection, "direction", "", "owed_by_me or owed_to_me")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show a debt with its installments and payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			d, err := a.debts.GetDebt(ctx, id)
			if err != nil {
				return err
			}
			insts, err := a.debts.Installments(ctx, id)
			if err != nil {
				return err
			}
			pays, err := a.debts.Payments(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printDebts(out, []repository.Debt{*d})
			if len(insts) > 0 {
				fmt.Fprintln(out)
				printInstallments(out, insts)
			}
			if len(pays) > 0 {
				fmt.Fprintln(out)
				printPayments(out, pays)
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a debt and its installments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.debts.DeleteDebt(cmd.Context(), id)
		},
	}

	var rsCount int
	var rsFreq, rsStart string
	reschedule := &cobra.Command{
		Use:   "reschedule ID",
		Short: "Replace unpaid installments with a new plan over the remaining balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			f, err := service.ParseFrequency(rsFreq)
			if err != nil {
				return err
			}
			startDate := a.today()
			if rsStart != "" {
				if startDate, err = database.ParseDate(rsStart); err != nil {
					return fmt.Errorf("start: %w", err)
				}
			}
			insts, err := a.debts.Reschedule(cmd.Context(), id, service.InstallmentPlan{Count: rsCount, Frequency: f}, startDate)
			if err != nil {
				return err
			}
			printInstallments(cmd.OutOrStdout(), insts)
			return nil
		},
	}
	reschedule.Flags().IntVar(&rsCount, "count", 1, "number of new installments")
	reschedule.Flags().StringVar(&rsFreq, "frequency", string(service.Monthly), "weekly or monthly")
	reschedule.Flags().StringVar(&rsStart, "start", "", "first due date YYYY-MM-DD (default today)")

	search := &cobra.Command{
		Use:   "search QUERY",
		Short: "Find debts by counterparty name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debts, err := a.debts.SearchByDebtor(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printDebts(cmd.OutOrStdout(), debts)
			return nil
		},
	}

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Open balances by direction and currency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bal, err := a.debts.Summary(cmd.Context())
			if err != nil {
				return err
			}
			return writeTable(cmd.OutOrStdout(), headerStyle.Render, "DIRECTION\tCURRENCY\tOPEN\tOUTSTANDING", func(tw io.Writer) {
				for _, b := range bal {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", b.Direction, b.Currency, b.OpenDebts, b.Outstanding)
				}
			})
		},
	}

	cmd.AddCommand(add, list, show, del, reschedule, search, summary)
	return cmd
}

func newPayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "pay", Short: "Record payments"}
	var amount string

	run := func(pay func(ctx context.Context, id int64, amt *decimal.Decimal) (service.Receipt, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var amt *decimal.Decimal
			if amount != "" {
				v, err := decimal.NewFromString(amount)
				if err != nil {
					return fmt.Errorf("amount: %w", err)
				}
				amt = &v
			}
			rc, err := pay(cmd.Context(), id, amt)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "paid %s %s on debt %d (%s), remaining %s\n",
				rc.Payment.Amount, rc.Debt.Currency, rc.Debt.ID, rc.Payment.Description, rc.Debt.RemainingAmount)
			if rc.Debt.IsPaid {
				fmt.Fprintln(out, paidStyle.Render("debt settled"))
			}
			if !rc.Mirrored {
				fmt.Fprintln(out, mutedStyle.Render("expense mirror pending; run `debtledger outbox flush`"))
			}
			return nil
		}
	}

	debt := &cobra.Command{
		Use:   "debt ID",
		Short: "Pay a debt directly (full remaining balance by default)",
		Args:  cobra.ExactArgs(1),
		RunE:  run(func(ctx context.Context, id int64, amt *decimal.Decimal) (service.Receipt, error) { return a.payments.PayDebt(ctx, id, amt) }),
	}
	inst := &cobra.Command{
		Use:   "installment ID",
		Short: "Pay one installment (its scheduled amount by default)",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, id int64, amt *decimal.Decimal) (service.Receipt, error) {
			return a.payments.PayInstallment(ctx, id, amt)
		}),
	}
	cmd.PersistentFlags().StringVar(&amount, "amount", "", "amount to pay")
	cmd.AddCommand(debt, inst)
	return cmd
}

func newDueCmd(a *app) *cobra.Command {
	var overdue bool
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List debts and installments due today",
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.due.DebtsDueToday(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if overdue {
				late, err := a.due.OverdueDebts(cmd.Context())
				if err != nil {
					return err
				}
				printDue(out, late, true)
			}
			printDue(out, entries, false)
			if len(entries) == 0 && !overdue {
				fmt.Fprintln(out, mutedStyle.Render("nothing due today"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&overdue, "overdue", false, "also list missed due dates")
	return cmd
}

// stdoutNotifier prints reminders instead of raising a system notification.
type stdoutNotifier struct{ w io.Writer }

func (n stdoutNotifier) Notify(_ context.Context, r service.Reminder) error {
	printDue(n.w, []service.DueEntry{r.DueEntry}, r.Overdue)
	return nil
}

func newRemindCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Send reminders for debts due today, once per day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.reminders.Dispatch(cmd.Context(), stdoutNotifier{w: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(
				fmt.Sprintf("%d sent, %d already sent, %d failed", res.Sent, res.Skipped, res.Failed)))
			return nil
		},
	}
}

func newOutboxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "outbox", Short: "Expense mirror outbox"}
	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Retry undelivered expense mirrors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.bridge.Flush(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d delivered, %d failed\n", res.Delivered, res.Failed)
			return nil
		},
	})
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE.xlsx",
		Short: "Write debts, installments and payments to a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			debts, err := repository.NewDebtRepo(a.db).List(ctx, repository.DebtFilters{})
			if err != nil {
				return err
			}
			insts, err := repository.NewInstallmentRepo(a.db).List(ctx)
			if err != nil {
				return err
			}
			pays, err := repository.NewPaymentRepo(a.db).List(ctx)
			if err != nil {
				return err
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := export.WriteWorkbook(f, export.Ledger{Debts: debts, Installments: insts, Payments: pays}); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
}

func newScheduleCmd(a *app) *cobra.Command {
	var amount, start, freq string
	var count int
	cmd := &cobra.Command{
		Use:         "schedule",
		Short:       "Preview an installment schedule without saving it",
		Annotations: map[string]string{"offline": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			total, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			startDate := a.today()
			if start != "" {
				if startDate, err = database.ParseDate(start); err != nil {
					return fmt.Errorf("start: %w", err)
				}
			}
			f, err := service.ParseFrequency(freq)
			if err != nil {
				return err
			}
			slices, err := service.GenerateInstallments(total, count, startDate, f)
			if err != nil {
				return err
			}
			return writeTable(cmd.OutOrStdout(), headerStyle.Render, "#\tDUE\tAMOUNT", func(tw io.Writer) {
				for i, s := range slices {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, database.FormatDate(s.DueDate), s.Amount)
				}
			})
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "total amount")
	cmd.Flags().IntVar(&count, "count", 1, "number of installments")
	cmd.Flags().StringVar(&start, "start", "", "first due date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&freq, "frequency", string(service.Monthly), "weekly or monthly")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad id %q", s)
	}
	return id, nil
}

func printDebts(w io.Writer, debts []repository.Debt) {
	_ = writeTable(w, headerStyle.Render, "ID\tDEBTOR\tTYPE\tDIRECTION\tTOTAL\tREMAINING\tDUE\tSTATUS", func(tw io.Writer) {
		for _, d := range debts {
			status := dueStyle.Render("open")
			if d.IsPaid {
				status = paidStyle.Render("paid")
			}
			due := ""
			if d.DueDate != nil {
				due = database.FormatDate(*d.DueDate)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s %s\t%s\t%s\t%s\n",
				d.ID, d.DebtorName, d.Type, d.Direction, d.TotalAmount, d.Currency, d.RemainingAmount, due, status)
		}
	})
}

func printInstallments(w io.Writer, insts []repository.Installment) {
	_ = writeTable(w, headerStyle.Render, "ID\t#\tDUE\tAMOUNT\tSTATUS", func(tw io.Writer) {
		for _, in := range insts {
			status := dueStyle.Render("open")
			if in.IsPaid && in.PaidDate != nil {
				status = paidStyle.Render("paid " + database.FormatDate(*in.PaidDate))
			}
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", in.ID, in.Number, database.FormatDate(in.DueDate), in.Amount, status)
		}
	})
}

func printPayments(w io.Writer, pays []repository.Payment) {
	_ = writeTable(w, headerStyle.Render, "ID\tDATE\tAMOUNT\tINSTALLMENT\tDESCRIPTION", func(tw io.Writer) {
		for _, p := range pays {
			inst := "-"
			if p.InstallmentID != nil {
				inst = strconv.FormatInt(*p.InstallmentID, 10)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.ID, database.FormatDate(p.PaymentDate), p.Amount, inst, p.Description)
		}
	})
}

// writeTable aligns tab-separated rows and styles the header after alignment, so escape
// codes never count toward column widths.
func writeTable(w io.Writer, style func(...string) string, header string, rows func(tw io.Writer)) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	rows(tw)
	if err := tw.Flush(); err != nil {
		return err
	}
	head, body, _ := strings.Cut(buf.String(), "\n")
	if _, err := fmt.Fprintln(w, style(head)); err != nil {
		return err
	}
	_, err := io.WriteString(w, body)
	return err
}

func printDue(w io.Writer, entries []service.DueEntry, overdue bool) {
	style := dueStyle
	label := "due"
	if overdue {
		style, label = overdueStyle, "overdue"
	}
	for _, e := range entries {
		what := fmt.Sprintf("%s %s %s", e.Debt.DebtorName, e.Debt.RemainingAmount, e.Debt.Currency)
		if e.Installment != nil {
			what = fmt.Sprintf("%s installment %d: %s %s", e.Debt.DebtorName, e.Installment.Number, e.Installment.Amount, e.Debt.Currency)
		}
		fmt.Fprintf(w, "%s %s (debt %d, %s)\n",
			style.Render(label), what, e.Debt.ID, database.FormatDate(e.DueDate()))
	}
}
