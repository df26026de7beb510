package reconciliation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"boxoffice/internal/ledger"
	"boxoffice/internal/orders"
	"boxoffice/internal/shared/clock"
	"boxoffice/internal/shared/config"
	"boxoffice/internal/shared/testutil"
	"boxoffice/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var epoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type fakeQueue struct {
	mu     sync.Mutex
	orders []uuid.UUID
}

func (q *fakeQueue) Enqueue(ctx context.Context, orderID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.orders = append(q.orders, orderID)
	return nil
}

// brokenLedger fails every reservation.
type brokenLedger struct {
	*ledger.Ledger
}

func (b brokenLedger) Reserve(ctx context.Context, eventID, ticketTypeID uuid.UUID, qty int, orderID uuid.UUID) error {
	return errors.New("redis: connection refused")
}

type fixture struct {
	db     *gorm.DB
	clock  *clock.Manual
	ledger *ledger.Ledger
	queue  *fakeQueue
	repo   orders.Repository
	jobs   *JobProcessor

	eventID      uuid.UUID
	ticketTypeID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t, &orders.Buyer{}, &orders.Order{}, &orders.OrderItem{}, &orders.Payment{}, &orders.ReservationJournal{})
	_, rdb := testutil.NewRedis(t)
	clk := clock.NewManual(epoch)
	l := ledger.NewLedger(rdb, clk, 5*time.Minute)
	repo := orders.NewRepository(db)
	queue := &fakeQueue{}

	cfg := DefaultJobConfig()
	cfg.MaxJournalTries = 3
	return &fixture{
		db: db, clock: clk, ledger: l, queue: queue, repo: repo,
		jobs:         NewJobProcessor(repo, l, queue, clk, cfg, logger.Discard()),
		eventID:      uuid.New(),
		ticketTypeID: uuid.New(),
	}
}

func (f *fixture) seedOrder(t *testing.T, status orders.Status, expiresIn, reservedFor time.Duration) *orders.Order {
	t.Helper()
	buyer := &orders.Buyer{Email: uuid.NewString() + "@example.com"}
	if err := f.db.Create(buyer).Error; err != nil {
		t.Fatalf("seed buyer: %v", err)
	}
	now := f.clock.Now()
	order := &orders.Order{
		EventID:       f.eventID,
		BuyerID:       buyer.ID,
		Status:        status,
		Total:         2000,
		Currency:      "MXN",
		ExpiresAt:     now.Add(expiresIn),
		ReservedUntil: now.Add(reservedFor),
		Items:         []orders.OrderItem{{TicketTypeID: f.ticketTypeID, Quantity: 2, UnitPrice: 1000}},
	}
	if err := f.db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func (f *fixture) journal(t *testing.T, order *orders.Order, holdFor time.Duration, attempts int) *orders.ReservationJournal {
	t.Helper()
	entry := &orders.ReservationJournal{
		OrderID:       order.ID,
		EventID:       f.eventID,
		TicketTypeID:  f.ticketTypeID,
		Quantity:      2,
		Status:        orders.JournalPending,
		HoldExpiresAt: f.clock.Now().Add(holdFor),
		Attempts:      attempts,
	}
	if err := f.db.Create(entry).Error; err != nil {
		t.Fatalf("seed journal: %v", err)
	}
	return entry
}

func (f *fixture) reloadJournal(t *testing.T, id uuid.UUID) orders.ReservationJournal {
	t.Helper()
	var entry orders.ReservationJournal
	if err := f.db.First(&entry, "id = ?", id).Error; err != nil {
		t.Fatalf("reload journal: %v", err)
	}
	return entry
}

func (f *fixture) reloadOrder(t *testing.T, id uuid.UUID) orders.Order {
	t.Helper()
	var order orders.Order
	if err := f.db.First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return order
}

func (f *fixture) live(t *testing.T) int {
	t.Helper()
	n, err := f.ledger.LiveReservations(context.Background(), f.eventID, f.ticketTypeID)
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	return n
}

func TestApplyJournal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	open := f.journal(t, f.seedOrder(t, orders.StatusPending, 30*time.Minute, 5*time.Minute), 5*time.Minute, 0)
	closed := f.journal(t, f.seedOrder(t, orders.StatusPending, 30*time.Minute, -time.Minute), -time.Minute, 0)
	exhausted := f.journal(t, f.seedOrder(t, orders.StatusPending, 30*time.Minute, 5*time.Minute), 5*time.Minute, 3)

	applied, err := f.jobs.ApplyJournal(ctx)
	if err != nil {
		t.Fatalf("apply journal: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected 1 applied entry, got %d", applied)
	}
	if got := f.live(t); got != 2 {
		t.Fatalf("expected 2 units held, got %d", got)
	}

	if e := f.reloadJournal(t, open.ID); e.Status != orders.JournalApplied || e.AppliedAt == nil {
		t.Fatalf("expected open entry applied, got %+v", e)
	}
	if e := f.reloadJournal(t, closed.ID); e.Status != orders.JournalReleased {
		t.Fatalf("expected closed entry released, got %s", e.Status)
	}
	if e := f.reloadJournal(t, exhausted.ID); e.Status != orders.JournalReleased {
		t.Fatalf("expected exhausted entry released, got %s", e.Status)
	}

	again, err := f.jobs.ApplyJournal(ctx)
	if err != nil || again != 0 {
		t.Fatalf("expected nothing left to apply, got %d %v", again, err)
	}
}

func TestApplyJournalRecordsLedgerFailures(t *testing.T) {
	f := newFixture(t)
	jobs := NewJobProcessor(f.repo, brokenLedger{f.ledger}, f.queue, f.clock, f.jobs.config, logger.Discard())
	entry := f.journal(t, f.seedOrder(t, orders.StatusPending, 30*time.Minute, 5*time.Minute), 5*time.Minute, 0)

	for i := 0; i < 3; i++ {
		if _, err := jobs.ApplyJournal(context.Background()); err != nil {
			t.Fatalf("apply journal: %v", err)
		}
	}
	e := f.reloadJournal(t, entry.ID)
	if e.Status != orders.JournalPending || e.Attempts != 3 || e.LastError == "" {
		t.Fatalf("expected 3 recorded failures, got %+v", e)
	}

	if _, err := jobs.ApplyJournal(context.Background()); err != nil {
		t.Fatalf("apply journal: %v", err)
	}
	if e := f.reloadJournal(t, entry.ID); e.Status != orders.JournalReleased {
		t.Fatalf("expected entry abandoned after max tries, got %s", e.Status)
	}
}

func TestSweepHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired := f.seedOrder(t, orders.StatusPending, 6*time.Minute, 5*time.Minute)
	lapsed := f.seedOrder(t, orders.StatusPending, 30*time.Minute, 5*time.Minute)
	extended := f.seedOrder(t, orders.StatusPending, 30*time.Minute, 5*time.Minute)
	fresh := f.seedOrder(t, orders.StatusPending, 30*time.Minute, 15*time.Minute)
	paid := f.seedOrder(t, orders.StatusPaid, -time.Minute, -time.Minute)

	for _, o := range []*orders.Order{expired, lapsed, extended} {
		if err := f.ledger.Reserve(ctx, f.eventID, f.ticketTypeID, 2, o.ID); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}

	// renewed in the ledger while the rows still show the old window
	f.clock.Advance(4 * time.Minute)
	for _, o := range []*orders.Order{expired, extended} {
		if ok, err := f.ledger.Extend(ctx, o.ID); err != nil || !ok {
			t.Fatalf("extend: %v %v", ok, err)
		}
	}

	f.clock.Advance(3 * time.Minute)

	cancelled, err := f.jobs.SweepHolds(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if cancelled != 2 {
		t.Fatalf("expected 2 cancellations, got %d", cancelled)
	}

	if o := f.reloadOrder(t, expired.ID); o.Status != orders.StatusCancelled || o.CancelReason != orders.CancelReasonSessionExpired {
		t.Fatalf("expected session expiry, got %s %s", o.Status, o.CancelReason)
	}
	if o := f.reloadOrder(t, lapsed.ID); o.Status != orders.StatusCancelled || o.CancelReason != orders.CancelReasonHoldExpired {
		t.Fatalf("expected hold expiry, got %s %s", o.Status, o.CancelReason)
	}
	o := f.reloadOrder(t, extended.ID)
	if o.Status != orders.StatusPending {
		t.Fatalf("expected extended order kept, got %s", o.Status)
	}
	if !o.ReservedUntil.After(f.clock.Now()) {
		t.Fatalf("expected reserved_until caught up, got %v", o.ReservedUntil)
	}
	if o := f.reloadOrder(t, fresh.ID); o.Status != orders.StatusPending {
		t.Fatalf("expected fresh order untouched, got %s", o.Status)
	}
	if o := f.reloadOrder(t, paid.ID); o.Status != orders.StatusPaid {
		t.Fatalf("expected paid order untouched, got %s", o.Status)
	}

	if got := f.live(t); got != 2 {
		t.Fatalf("expected only the extended hold live, got %d", got)
	}
}

func TestRetryFulfillment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := f.seedOrder(t, orders.StatusPaid, time.Hour, 0)
	recent := f.seedOrder(t, orders.StatusPaid, time.Hour, 0)
	done := f.seedOrder(t, orders.StatusPaid, time.Hour, 0)

	now := f.clock.Now()
	f.db.Model(&orders.Order{}).Where("id = ?", stale.ID).Update("paid_at", now.Add(-15*time.Minute))
	f.db.Model(&orders.Order{}).Where("id = ?", recent.ID).Update("paid_at", now.Add(-time.Minute))
	f.db.Model(&orders.Order{}).Where("id = ?", done.ID).Updates(map[string]interface{}{
		"paid_at":      now.Add(-time.Hour),
		"fulfilled_at": now.Add(-59 * time.Minute),
	})

	enqueued, err := f.jobs.RetryFulfillment(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if enqueued != 1 || len(f.queue.orders) != 1 || f.queue.orders[0] != stale.ID {
		t.Fatalf("expected only the stale order re-enqueued, got %v", f.queue.orders)
	}
}

func TestStartAndStop(t *testing.T) {
	f := newFixture(t)
	cfg := &JobConfig{
		JournalInterval:  10 * time.Millisecond,
		SweepInterval:    10 * time.Millisecond,
		BatchSize:        10,
		FulfillmentGrace: time.Minute,
		MaxJournalTries:  3,
	}
	jobs := NewJobProcessor(f.repo, f.ledger, f.queue, f.clock, cfg, logger.Discard())
	entry := f.journal(t, f.seedOrder(t, orders.StatusPending, 30*time.Minute, 5*time.Minute), 5*time.Minute, 0)

	jobs.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.reloadJournal(t, entry.ID).Status == orders.JournalApplied {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	jobs.Stop()
	jobs.Stop()

	if e := f.reloadJournal(t, entry.ID); e.Status != orders.JournalApplied {
		t.Fatalf("expected the background applier to run, got %s", e.Status)
	}
}

func TestJobConfigFrom(t *testing.T) {
	jc := JobConfigFrom(config.ReconciliationConfig{SweepInterval: time.Minute})
	if jc.SweepInterval != time.Minute || jc.JournalInterval != 5*time.Second || jc.BatchSize != 100 {
		t.Fatalf("unexpected config %+v", jc)
	}
}
