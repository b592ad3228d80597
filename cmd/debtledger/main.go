package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jask/debtledger/internal/cache"
	"github.com/jask/debtledger/internal/config"
	"github.com/jask/debtledger/internal/database"
	"github.com/jask/debtledger/internal/database/repository"
	"github.com/jask/debtledger/internal/service"
)

// app holds everything a subcommand needs once the database is open.
type app struct {
	cfg       config.Config
	log       *zap.Logger
	db        *sql.DB
	debts     *service.DebtService
	payments  *service.PaymentProcessor
	bridge    *service.ExpenseBridge
	due       *service.DueReminders
	reminders *service.ReminderDispatcher
	closers   []func() error
	// now overrides the wall clock; nil means time.Now.
	now func() time.Time
}

func main() {
	a := &app{}
	root := newRootCmd(a)
	err := root.ExecuteContext(context.Background())
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "debtledger",
		Short:         "Track debts, installments and payments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["offline"] == "true" {
				return nil
			}
			return a.open(cmd.Context())
		},
	}
	root.AddCommand(
		newDebtCmd(a),
		newPayCmd(a),
		newDueCmd(a),
		newRemindCmd(a),
		newOutboxCmd(a),
		newExportCmd(a),
		newScheduleCmd(a),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.cfg = cfg

	log, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.log = log
	a.closers = append(a.closers, func() error { _ = log.Sync(); return nil })

	loc, err := cfg.Ledger.Location()
	if err != nil {
		log.Warn("using local timezone", zap.Error(err))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	if err := database.SeedDefaults(ctx, db, cfg.Ledger.ExpenseCategory); err != nil {
		return fmt.Errorf("seed defaults: %w", err)
	}

	a.bridge = &service.ExpenseBridge{
		Outbox: repository.NewOutboxRepo(db),
		Sink:   repository.NewExpenseRepo(db),
		Logger: log,
		Clock:  a.clock(),
	}
	a.debts = &service.DebtService{DB: db, DefaultCurrency: cfg.Ledger.DefaultCurrency, Logger: log, Clock: a.clock()}
	a.payments = &service.PaymentProcessor{
		DB:              db,
		Bridge:          a.bridge,
		ExpenseCategory: cfg.Ledger.ExpenseCategory,
		Location:        loc,
		Logger:          log,
		Clock:           a.clock(),
	}
	a.due = &service.DueReminders{DB: db, Location: loc, Clock: a.clock()}

	var c cache.Cache = cache.NewMemory()
	if addr := strings.TrimSpace(cfg.Reminders.RedisAddr); addr != "" {
		rc := cache.NewRedis(&redis.Options{Addr: addr})
		if err := rc.Ping(ctx); err != nil {
			log.Warn("redis unavailable; reminders deduplicated in memory", zap.String("addr", addr), zap.Error(err))
			_ = rc.Close()
		} else {
			c = rc
			a.closers = append(a.closers, rc.Close)
		}
	}
	a.reminders = &service.ReminderDispatcher{
		Query:          a.due,
		Cache:          c,
		IncludeOverdue: cfg.Reminders.IncludeOverdue,
		Logger:         log,
	}

	// retry mirrors left behind by an earlier run
	if res, err := a.bridge.Flush(ctx); err != nil {
		log.Warn("outbox flush failed", zap.Error(err))
	} else if res.Delivered+res.Failed > 0 {
		log.Info("outbox flushed", zap.Int("delivered", res.Delivered), zap.Int("failed", res.Failed))
	}
	return nil
}

func (a *app) clock() service.Clock {
	if a.now == nil {
		return time.Now
	}
	return a.now
}

// today is the ledger's current calendar date. Offline commands have no open services,
// so the timezone is read from config directly and falls back to local time.
func (a *app) today() time.Time {
	if a.due != nil {
		return a.due.Today()
	}
	loc := time.Local
	if cfg, err := config.Load(); err == nil {
		if l, err := cfg.Ledger.Location(); err == nil {
			loc = l
		}
	}
	return database.Day(a.clock()().In(loc))
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Level != "" {
		lvl, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}
