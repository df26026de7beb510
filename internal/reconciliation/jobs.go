package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"boxoffice/internal/ledger"
	"boxoffice/internal/orders"
	"boxoffice/internal/shared/clock"
	"boxoffice/internal/shared/config"
	"boxoffice/pkg/logger"

	"github.com/google/uuid"
)

// HoldLedger is the part of the availability ledger the jobs drive.
type HoldLedger interface {
	Reserve(ctx context.Context, eventID, ticketTypeID uuid.UUID, qty int, orderID uuid.UUID) error
	Release(ctx context.Context, orderID uuid.UUID) (int, error)
	RemainingTTL(ctx context.Context, orderID uuid.UUID) (time.Duration, error)
	Prune(ctx context.Context) (int, error)
}

type FulfillmentQueue interface {
	Enqueue(ctx context.Context, orderID uuid.UUID) error
}

// JobConfig contains configuration for background jobs
type JobConfig struct {
	JournalInterval  time.Duration
	SweepInterval    time.Duration
	BatchSize        int
	FulfillmentGrace time.Duration
	MaxJournalTries  int
}

// DefaultJobConfig returns default job configuration
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		JournalInterval:  5 * time.Second,
		SweepInterval:    30 * time.Second,
		BatchSize:        100,
		FulfillmentGrace: 10 * time.Minute,
		MaxJournalTries:  20,
	}
}

// JobConfigFrom reads the reconciliation section, keeping defaults for unset values.
func JobConfigFrom(cfg config.ReconciliationConfig) *JobConfig {
	jc := DefaultJobConfig()
	if cfg.JournalInterval > 0 {
		jc.JournalInterval = cfg.JournalInterval
	}
	if cfg.SweepInterval > 0 {
		jc.SweepInterval = cfg.SweepInterval
	}
	if cfg.BatchSize > 0 {
		jc.BatchSize = cfg.BatchSize
	}
	if cfg.FulfillmentGrace > 0 {
		jc.FulfillmentGrace = cfg.FulfillmentGrace
	}
	if cfg.MaxJournalTries > 0 {
		jc.MaxJournalTries = cfg.MaxJournalTries
	}
	return jc
}

// JobProcessor keeps the ledger, the order store and fulfillment in step:
// it applies journaled holds, cancels orders whose holds are gone, prunes
// the ledger and re-enqueues paid orders that were never fulfilled.
type JobProcessor struct {
	orders orders.Repository
	ledger HoldLedger
	queue  FulfillmentQueue
	clock  clock.Clock
	config *JobConfig
	log    *logger.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewJobProcessor(orderRepo orders.Repository, holdLedger HoldLedger, queue FulfillmentQueue, clk clock.Clock, cfg *JobConfig, log *logger.Logger) *JobProcessor {
	if cfg == nil {
		cfg = DefaultJobConfig()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &JobProcessor{
		orders: orderRepo,
		ledger: holdLedger,
		queue:  queue,
		clock:  clk,
		config: cfg,
		log:    logger.OrDefault(log).WithComponent("reconciliation"),
		done:   make(chan struct{}),
	}
}

// Start starts all background jobs
func (jp *JobProcessor) Start(ctx context.Context) {
	jp.log.InfoWithContext(ctx, "starting reconciliation jobs", jp.Status())

	jp.wg.Add(2)
	go jp.loop(ctx, jp.config.JournalInterval, jp.runJournal)
	go jp.loop(ctx, jp.config.SweepInterval, jp.runSweep)
}

// Stop stops all background jobs and waits for the running pass to finish.
func (jp *JobProcessor) Stop() {
	jp.stopOnce.Do(func() { close(jp.done) })
	jp.wg.Wait()
	jp.log.Info("reconciliation jobs stopped")
}

func (jp *JobProcessor) loop(ctx context.Context, interval time.Duration, run func(context.Context)) {
	defer jp.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			run(ctx)
		case <-jp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (jp *JobProcessor) runJournal(ctx context.Context) {
	applied, err := jp.ApplyJournal(ctx)
	if err != nil {
		jp.log.ErrorWithContext(ctx, "journal applier failed", err, nil)
		return
	}
	if applied > 0 {
		jp.log.InfoWithContext(ctx, "applied journaled holds", map[string]interface{}{"entries": applied})
	}
}

func (jp *JobProcessor) runSweep(ctx context.Context) {
	if cancelled, err := jp.SweepHolds(ctx); err != nil {
		jp.log.ErrorWithContext(ctx, "hold sweep failed", err, nil)
	} else if cancelled > 0 {
		jp.log.InfoWithContext(ctx, "cancelled orders without a hold", map[string]interface{}{"orders": cancelled})
	}

	if pruned, err := jp.ledger.Prune(ctx); err != nil {
		jp.log.ErrorWithContext(ctx, "ledger prune failed", err, nil)
	} else if pruned > 0 {
		jp.log.DebugWithContext(ctx, "pruned expired holds", map[string]interface{}{"entries": pruned})
	}

	if enqueued, err := jp.RetryFulfillment(ctx); err != nil {
		jp.log.ErrorWithContext(ctx, "fulfillment retry failed", err, nil)
	} else if enqueued > 0 {
		jp.log.InfoWithContext(ctx, "re-enqueued unfulfilled orders", map[string]interface{}{"orders": enqueued})
	}
}

// ApplyJournal pushes PENDING journal entries into the ledger. Entries
// whose hold window has closed, or that failed too often, are released.
func (jp *JobProcessor) ApplyJournal(ctx context.Context) (int, error) {
	entries, err := jp.orders.ListPendingJournal(ctx, jp.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list journal: %w", err)
	}

	applied := 0
	for _, entry := range entries {
		now := jp.clock.Now()
		fields := map[string]interface{}{
			"journal_id": entry.ID.String(),
			"order_id":   entry.OrderID.String(),
		}

		if !entry.HoldExpiresAt.After(now) || entry.Attempts >= jp.config.MaxJournalTries {
			if err := jp.orders.MarkJournalEntryReleased(ctx, entry.ID); err != nil {
				return applied, fmt.Errorf("failed to release journal entry: %w", err)
			}
			if entry.Attempts >= jp.config.MaxJournalTries {
				jp.log.ErrorWithContext(ctx, "journal entry abandoned", errors.New(entry.LastError), fields)
			}
			continue
		}

		if err := jp.ledger.Reserve(ctx, entry.EventID, entry.TicketTypeID, entry.Quantity, entry.OrderID); err != nil {
			jp.log.LogHoldReserveFailed(ctx, entry.OrderID.String(), entry.TicketTypeID.String(), err)
			if err := jp.orders.RecordJournalFailure(ctx, entry.ID, err.Error()); err != nil {
				return applied, fmt.Errorf("failed to record journal failure: %w", err)
			}
			continue
		}
		if err := jp.orders.MarkJournalEntryApplied(ctx, entry.ID, now); err != nil {
			return applied, fmt.Errorf("failed to mark journal entry applied: %w", err)
		}
		applied++
	}
	return applied, nil
}

// SweepHolds cancels PENDING orders past their session expiry, and those
// whose recorded hold window passed with no live hold in the ledger.
func (jp *JobProcessor) SweepHolds(ctx context.Context) (int, error) {
	now := jp.clock.Now()
	cancelled := 0

	expired, err := jp.orders.ListExpiredPending(ctx, now, jp.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired orders: %w", err)
	}
	for _, order := range expired {
		ok, err := jp.cancel(ctx, order.ID, orders.CancelReasonSessionExpired, now)
		if err != nil {
			return cancelled, err
		}
		if ok {
			cancelled++
		}
	}

	lapsed, err := jp.orders.ListLapsedPending(ctx, now, jp.config.BatchSize)
	if err != nil {
		return cancelled, fmt.Errorf("failed to list lapsed orders: %w", err)
	}
	for _, order := range lapsed {
		remaining, err := jp.ledger.RemainingTTL(ctx, order.ID)
		if err == nil {
			// extended elsewhere without the order row catching up
			if err := jp.orders.UpdateReservedUntil(ctx, order.ID, now.Add(remaining)); err != nil {
				return cancelled, fmt.Errorf("failed to record hold window: %w", err)
			}
			continue
		}
		if !errors.Is(err, ledger.ErrHoldNotFound) {
			return cancelled, fmt.Errorf("failed to read hold: %w", err)
		}
		ok, err := jp.cancel(ctx, order.ID, orders.CancelReasonHoldExpired, now)
		if err != nil {
			return cancelled, err
		}
		if ok {
			cancelled++
		}
	}
	return cancelled, nil
}

func (jp *JobProcessor) cancel(ctx context.Context, orderID uuid.UUID, reason string, now time.Time) (bool, error) {
	ok, err := jp.orders.Cancel(ctx, orderID, reason, now)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	if !ok {
		// settled concurrently
		return false, nil
	}
	if _, err := jp.ledger.Release(ctx, orderID); err != nil {
		jp.log.ErrorWithContext(ctx, "failed to release hold", err, map[string]interface{}{"order_id": orderID.String()})
	}
	jp.log.InfoWithContext(ctx, "order cancelled by sweep", map[string]interface{}{
		"order_id": orderID.String(),
		"reason":   reason,
	})
	return true, nil
}

// RetryFulfillment re-enqueues PAID orders still unfulfilled after the grace period.
func (jp *JobProcessor) RetryFulfillment(ctx context.Context) (int, error) {
	if jp.queue == nil {
		return 0, nil
	}
	cutoff := jp.clock.Now().Add(-jp.config.FulfillmentGrace)
	paid, err := jp.orders.ListUnfulfilled(ctx, cutoff, jp.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list unfulfilled orders: %w", err)
	}

	enqueued := 0
	for _, order := range paid {
		if err := jp.queue.Enqueue(ctx, order.ID); err != nil {
			jp.log.ErrorWithContext(ctx, "failed to re-enqueue fulfillment", err, map[string]interface{}{"order_id": order.ID.String()})
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// Status returns the configuration of the background jobs
func (jp *JobProcessor) Status() map[string]interface{} {
	return map[string]interface{}{
		"journal_interval":  jp.config.JournalInterval.String(),
		"sweep_interval":    jp.config.SweepInterval.String(),
		"batch_size":        jp.config.BatchSize,
		"fulfillment_grace": jp.config.FulfillmentGrace.String(),
	}
}
