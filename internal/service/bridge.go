package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jask/debtledger/internal/database/repository"
)

// ExpenseSink is the expense ledger that payments are mirrored into.
// RecordExpense must ignore a SourceKey it has already stored.
type ExpenseSink interface {
	RecordExpense(ctx context.Context, e repository.Expense) (bool, error)
}

// ExpenseBridge drains the expense outbox into an ExpenseSink.
type ExpenseBridge struct {
	Outbox *repository.OutboxRepo
	Sink   ExpenseSink
	Logger *zap.Logger
	Clock  Clock
}

// FlushResult counts one pass over the outbox.
type FlushResult struct {
	Delivered int
	Failed    int
}

// Deliver mirrors the outbox entry with the given key. Delivering twice is a no-op.
func (b *ExpenseBridge) Deliver(ctx context.Context, key string) error {
	if b.Outbox == nil || b.Sink == nil {
		return ErrNotInitialized
	}
	e, err := b.Outbox.Get(ctx, key)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("outbox entry %s not found", key)
	}
	if e.DeliveredAt != nil {
		return nil
	}
	return b.deliver(ctx, *e)
}

// Flush retries every undelivered entry. Individual failures are counted, not returned.
func (b *ExpenseBridge) Flush(ctx context.Context) (FlushResult, error) {
	if b.Outbox == nil || b.Sink == nil {
		return FlushResult{}, ErrNotInitialized
	}
	pending, err := b.Outbox.Pending(ctx)
	if err != nil {
		return FlushResult{}, err
	}
	var res FlushResult
	for _, e := range pending {
		if err := b.deliver(ctx, e); err != nil {
			orNop(b.Logger).Warn("expense mirror retry failed",
				zap.String("outbox_key", e.Key), zap.Int("attempts", e.Attempts+1), zap.Error(err))
			res.Failed++
			continue
		}
		res.Delivered++
	}
	return res, nil
}

func (b *ExpenseBridge) deliver(ctx context.Context, e repository.OutboxEntry) error {
	now := b.Clock.now().UTC().Truncate(time.Second)
	key := e.Key
	if _, err := b.Sink.RecordExpense(ctx, repository.Expense{
		Amount:      e.Amount,
		Currency:    e.Currency,
		Category:    e.Category,
		Description: e.Description,
		Date:        e.Date,
		SourceKey:   &key,
		CreatedAt:   now,
	}); err != nil {
		if mErr := b.Outbox.MarkFailed(ctx, e.ID, err.Error()); mErr != nil {
			return fmt.Errorf("record expense: %w (mark failed: %v)", err, mErr)
		}
		return fmt.Errorf("record expense: %w", err)
	}
	return b.Outbox.MarkDelivered(ctx, e.ID, now)
}
