package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"boxoffice/internal/shared/clock"
	"boxoffice/internal/shared/testutil"

	"github.com/google/uuid"
)

var epoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*Ledger, *clock.Manual) {
	t.Helper()
	_, client := testutil.NewRedis(t)
	clk := clock.NewManual(epoch)
	return NewLedger(client, clk, 5*time.Minute), clk
}

func TestReserveCountsTowardAvailability(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	eventID, ttID := uuid.New(), uuid.New()

	if err := l.Reserve(ctx, eventID, ttID, 2, uuid.New()); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	live, err := l.LiveReservations(ctx, eventID, ttID)
	if err != nil {
		t.Fatalf("live failed: %v", err)
	}
	if live != 2 {
		t.Fatalf("expected 2 live, got %d", live)
	}

	ok, available, err := l.CheckAvailability(ctx, eventID, ttID, 10, 8, 1)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if ok || available != 0 {
		t.Fatalf("expected no availability, got ok=%v available=%d", ok, available)
	}

	ok, available, err = l.CheckAvailability(ctx, eventID, ttID, 10, 5, 3)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !ok || available != 3 {
		t.Fatalf("expected 3 available, got ok=%v available=%d", ok, available)
	}
}

func TestReserveIsIdempotentPerOrderLine(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	eventID, ttID, orderID := uuid.New(), uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		if err := l.Reserve(ctx, eventID, ttID, 2, orderID); err != nil {
			t.Fatalf("reserve failed: %v", err)
		}
	}

	live, _ := l.LiveReservations(ctx, eventID, ttID)
	if live != 2 {
		t.Fatalf("expected replayed reserve to count once, got %d", live)
	}
}

func TestHoldExpiresWithoutRelease(t *testing.T) {
	l, clk := newTestLedger(t)
	ctx := context.Background()
	eventID, ttID, orderID := uuid.New(), uuid.New(), uuid.New()

	if err := l.Reserve(ctx, eventID, ttID, 2, orderID); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	clk.Advance(4*time.Minute + 59*time.Second)
	if live, _ := l.LiveReservations(ctx, eventID, ttID); live != 2 {
		t.Fatalf("expected hold still live before ttl, got %d", live)
	}

	clk.Advance(time.Second)
	if live, _ := l.LiveReservations(ctx, eventID, ttID); live != 0 {
		t.Fatalf("expected hold to stop counting at ttl, got %d", live)
	}

	if _, err := l.RemainingTTL(ctx, orderID); !errors.Is(err, ErrHoldNotFound) {
		t.Fatalf("expected ErrHoldNotFound, got %v", err)
	}
}

func TestReleaseIsIdempotentAndIsolated(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	eventID, ttID := uuid.New(), uuid.New()
	first, second := uuid.New(), uuid.New()

	l.Reserve(ctx, eventID, ttID, 2, first)
	l.Reserve(ctx, eventID, ttID, 3, second)

	released, err := l.Release(ctx, first)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if released != 2 {
		t.Fatalf("expected 2 released, got %d", released)
	}

	released, err = l.Release(ctx, first)
	if err != nil {
		t.Fatalf("second release failed: %v", err)
	}
	if released != 0 {
		t.Fatalf("expected no-op release, got %d", released)
	}

	if _, err := l.Release(ctx, uuid.New()); err != nil {
		t.Fatalf("release of unknown order should be a no-op, got %v", err)
	}

	if live, _ := l.LiveReservations(ctx, eventID, ttID); live != 3 {
		t.Fatalf("expected other order's hold untouched, got %d", live)
	}
}

func TestReleaseCoversEveryLineOfTheOrder(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	eventID, general, vip := uuid.New(), uuid.New(), uuid.New()
	orderID := uuid.New()

	if err := l.Reserve(ctx, eventID, general, 2, orderID); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := l.Reserve(ctx, eventID, vip, 1, orderID); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	released, _ := l.Release(ctx, orderID)
	if released != 3 {
		t.Fatalf("expected 3 released, got %d", released)
	}
	for _, tt := range []uuid.UUID{general, vip} {
		if live, _ := l.LiveReservations(ctx, eventID, tt); live != 0 {
			t.Fatalf("expected no live holds after release, got %d", live)
		}
	}
}

func TestExtend(t *testing.T) {
	t.Run("resets a live hold to full ttl", func(t *testing.T) {
		l, clk := newTestLedger(t)
		ctx := context.Background()
		eventID, ttID, orderID := uuid.New(), uuid.New(), uuid.New()

		l.Reserve(ctx, eventID, ttID, 1, orderID)
		clk.Advance(4 * time.Minute)

		ok, err := l.Extend(ctx, orderID)
		if err != nil || !ok {
			t.Fatalf("expected extend to succeed, got ok=%v err=%v", ok, err)
		}

		remaining, err := l.RemainingTTL(ctx, orderID)
		if err != nil {
			t.Fatalf("remaining failed: %v", err)
		}
		if remaining != 5*time.Minute {
			t.Fatalf("expected 5m remaining, got %v", remaining)
		}

		clk.Advance(4 * time.Minute)
		if live, _ := l.LiveReservations(ctx, eventID, ttID); live != 1 {
			t.Fatalf("expected extended hold still live, got %d", live)
		}
	})

	t.Run("refuses an expired hold", func(t *testing.T) {
		l, clk := newTestLedger(t)
		ctx := context.Background()
		orderID := uuid.New()

		l.Reserve(ctx, uuid.New(), uuid.New(), 1, orderID)
		clk.Advance(6 * time.Minute)

		ok, err := l.Extend(ctx, orderID)
		if err != nil {
			t.Fatalf("extend failed: %v", err)
		}
		if ok {
			t.Fatalf("expected extend of expired hold to return false")
		}
	})

	t.Run("refuses an unknown order", func(t *testing.T) {
		l, _ := newTestLedger(t)
		ok, err := l.Extend(context.Background(), uuid.New())
		if err != nil || ok {
			t.Fatalf("expected false without error, got ok=%v err=%v", ok, err)
		}
	})
}

func TestRemainingTTL(t *testing.T) {
	l, clk := newTestLedger(t)
	ctx := context.Background()
	orderID := uuid.New()

	l.Reserve(ctx, uuid.New(), uuid.New(), 1, orderID)
	clk.Advance(90 * time.Second)

	remaining, err := l.RemainingTTL(ctx, orderID)
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if remaining != 210*time.Second {
		t.Fatalf("expected 3m30s, got %v", remaining)
	}

	if _, err := l.RemainingTTL(ctx, uuid.New()); !errors.Is(err, ErrHoldNotFound) {
		t.Fatalf("expected ErrHoldNotFound for unknown order, got %v", err)
	}
}

func TestPruneDropsOnlyExpiredMembers(t *testing.T) {
	l, clk := newTestLedger(t)
	ctx := context.Background()
	eventID, ttID := uuid.New(), uuid.New()

	l.Reserve(ctx, eventID, ttID, 2, uuid.New())
	clk.Advance(3 * time.Minute)
	l.Reserve(ctx, eventID, ttID, 4, uuid.New())
	clk.Advance(3 * time.Minute)

	pruned, err := l.Prune(ctx)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned, got %d", pruned)
	}
	if live, _ := l.LiveReservations(ctx, eventID, ttID); live != 4 {
		t.Fatalf("expected the newer hold to survive, got %d", live)
	}

	clk.Advance(5 * time.Minute)
	pruned, _ = l.Prune(ctx)
	if pruned != 1 {
		t.Fatalf("expected second prune to drop the last member, got %d", pruned)
	}
}

func TestConcurrentReservesDoNotLoseUpdates(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	eventID, ttID := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Reserve(ctx, eventID, ttID, 1, uuid.New()); err != nil {
				t.Errorf("reserve failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if live, _ := l.LiveReservations(ctx, eventID, ttID); live != 20 {
		t.Fatalf("expected 20 live, got %d", live)
	}
}

func TestLedgerWithoutRedis(t *testing.T) {
	l := NewLedger(nil, nil, time.Minute)
	if err := l.Reserve(context.Background(), uuid.New(), uuid.New(), 1, uuid.New()); err == nil {
		t.Fatalf("expected error without redis")
	}
}
