package orders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"boxoffice/internal/shared/testutil"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var now = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*gorm.DB, Repository) {
	t.Helper()
	db := testutil.NewDB(t, &Buyer{}, &Order{}, &OrderItem{}, &Payment{}, &ReservationJournal{})
	return db, NewRepository(db)
}

func seedOrder(t *testing.T, db *gorm.DB, status Status, ticketTypeID uuid.UUID, qty int) *Order {
	t.Helper()
	buyer := &Buyer{Email: uuid.NewString() + "@example.com"}
	if err := db.Create(buyer).Error; err != nil {
		t.Fatalf("seed buyer: %v", err)
	}
	order := &Order{
		EventID:       uuid.New(),
		BuyerID:       buyer.ID,
		Status:        status,
		Total:         int64(qty) * 1000,
		Currency:      "MXN",
		ExpiresAt:     now.Add(30 * time.Minute),
		ReservedUntil: now.Add(5 * time.Minute),
		Items:         []OrderItem{{TicketTypeID: ticketTypeID, Quantity: qty, UnitPrice: 1000}},
		Payment:       &Payment{Gateway: "mercadopago", Amount: int64(qty) * 1000, Currency: "MXN"},
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	journal := &ReservationJournal{
		OrderID:       order.ID,
		EventID:       order.EventID,
		TicketTypeID:  ticketTypeID,
		Quantity:      qty,
		HoldExpiresAt: now.Add(5 * time.Minute),
	}
	if err := db.Create(journal).Error; err != nil {
		t.Fatalf("seed journal: %v", err)
	}
	return order
}

func TestStatusTransitions(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusPaid}:      true,
		{StatusPending, StatusCancelled}: true,
		{StatusPaid, StatusRefunded}:     true,
	}
	all := []Status{StatusPending, StatusPaid, StatusCancelled, StatusRefunded}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestPaymentStatusTerminal(t *testing.T) {
	if PaymentPending.IsTerminal() {
		t.Fatalf("expected PENDING to be open")
	}
	for _, s := range []PaymentStatus{PaymentCompleted, PaymentFailed, PaymentRefunded} {
		if !s.IsTerminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
}

func TestGetByID(t *testing.T) {
	db, repo := setup(t)
	order := seedOrder(t, db, StatusPending, uuid.New(), 2)

	got, err := repo.GetByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.Items) != 1 || got.Payment == nil || got.Buyer == nil {
		t.Fatalf("expected relations preloaded, got %+v", got)
	}
	if got.TotalQuantity() != 2 {
		t.Fatalf("expected quantity 2, got %d", got.TotalQuantity())
	}

	if _, err := repo.GetByID(context.Background(), uuid.New()); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestGetByGatewayTransaction(t *testing.T) {
	db, repo := setup(t)
	order := seedOrder(t, db, StatusPending, uuid.New(), 1)

	txID := "mp-123"
	db.Model(&Payment{}).Where("order_id = ?", order.ID).Update("gateway_transaction_id", txID)

	got, err := repo.GetByGatewayTransaction(context.Background(), "mercadopago", txID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.ID != order.ID {
		t.Fatalf("expected order %s, got %s", order.ID, got.ID)
	}

	if _, err := repo.GetByGatewayTransaction(context.Background(), "openpay", txID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected gateway-scoped lookup, got %v", err)
	}
}

func TestCancelIsConditional(t *testing.T) {
	db, repo := setup(t)
	ctx := context.Background()
	ttID := uuid.New()
	order := seedOrder(t, db, StatusPending, ttID, 2)

	ok, err := repo.Cancel(ctx, order.ID, CancelReasonBuyer, now)
	if err != nil || !ok {
		t.Fatalf("expected cancel, got ok=%v err=%v", ok, err)
	}

	ok, err = repo.Cancel(ctx, order.ID, CancelReasonBuyer, now)
	if err != nil || ok {
		t.Fatalf("expected second cancel to be a no-op, got ok=%v err=%v", ok, err)
	}

	got, _ := repo.GetByID(ctx, order.ID)
	if got.Status != StatusCancelled || got.CancelReason != CancelReasonBuyer {
		t.Fatalf("unexpected order state %s/%s", got.Status, got.CancelReason)
	}

	var journal ReservationJournal
	db.Where("order_id = ?", order.ID).First(&journal)
	if journal.Status != JournalReleased {
		t.Fatalf("expected journal RELEASED, got %s", journal.Status)
	}

	paid := seedOrder(t, db, StatusPaid, ttID, 1)
	if ok, _ := repo.Cancel(ctx, paid.ID, CancelReasonBuyer, now); ok {
		t.Fatalf("expected PAID order to stay untouched")
	}
}

func TestPendingJournalQuantity(t *testing.T) {
	db, repo := setup(t)
	ctx := context.Background()
	ttID := uuid.New()

	first := seedOrder(t, db, StatusPending, ttID, 2)
	second := seedOrder(t, db, StatusPending, ttID, 3)
	seedOrder(t, db, StatusPending, uuid.New(), 4)

	qty, err := PendingJournalQuantity(db, ttID, now)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if qty != 5 {
		t.Fatalf("expected 5, got %d", qty)
	}
	if qty, _ = OtherPendingJournalQuantity(db, ttID, second.ID, now); qty != 2 {
		t.Fatalf("expected the order's own rows excluded, got %d", qty)
	}

	repo.MarkJournalApplied(ctx, first.ID, now)
	if qty, _ = PendingJournalQuantity(db, ttID, now); qty != 3 {
		t.Fatalf("expected applied rows excluded, got %d", qty)
	}

	if qty, _ = PendingJournalQuantity(db, ttID, now.Add(6*time.Minute)); qty != 0 {
		t.Fatalf("expected closed windows excluded, got %d", qty)
	}

	// reopening an applied entry promises its units again for the new window
	later := now.Add(10 * time.Minute)
	if err := ReopenJournal(db, first.ID, later.Add(5*time.Minute)); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if qty, _ = PendingJournalQuantity(db, ttID, later); qty != 2 {
		t.Fatalf("expected reopened entry counted, got %d", qty)
	}
}

func TestRecordJournalFailure(t *testing.T) {
	db, repo := setup(t)
	ctx := context.Background()
	order := seedOrder(t, db, StatusPending, uuid.New(), 1)

	entries, _ := repo.ListPendingJournal(ctx, 10)
	if len(entries) != 1 {
		t.Fatalf("expected one pending entry, got %d", len(entries))
	}
	repo.RecordJournalFailure(ctx, entries[0].ID, "redis down")
	repo.RecordJournalFailure(ctx, entries[0].ID, "redis down")

	var journal ReservationJournal
	db.Where("order_id = ?", order.ID).First(&journal)
	if journal.Attempts != 2 || journal.Status != JournalPending {
		t.Fatalf("expected 2 attempts still pending, got %d/%s", journal.Attempts, journal.Status)
	}

	// "x" shifts every two-byte rune so byte 512 lands inside one
	long := "x" + strings.Repeat("é", 300)
	repo.RecordJournalFailure(ctx, entries[0].ID, long)
	db.Where("order_id = ?", order.ID).First(&journal)
	if len(journal.LastError) != 511 || !utf8.ValidString(journal.LastError) {
		t.Fatalf("expected 511 valid bytes, got %d valid=%v", len(journal.LastError), utf8.ValidString(journal.LastError))
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"añb", 2, "a"},
		{"añb", 3, "añ"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Fatalf("truncate(%q, %d): expected %q, got %q", tt.in, tt.n, tt.want, got)
		}
	}
}

func TestSweepQueries(t *testing.T) {
	db, repo := setup(t)
	ctx := context.Background()
	order := seedOrder(t, db, StatusPending, uuid.New(), 1)

	lapsed, _ := repo.ListLapsedPending(ctx, now.Add(6*time.Minute), 10)
	if len(lapsed) != 1 || lapsed[0].ID != order.ID {
		t.Fatalf("expected order in lapsed list, got %d", len(lapsed))
	}
	if expired, _ := repo.ListExpiredPending(ctx, now.Add(6*time.Minute), 10); len(expired) != 0 {
		t.Fatalf("expected nothing expired at minute 6, got %d", len(expired))
	}
	if expired, _ := repo.ListExpiredPending(ctx, now.Add(31*time.Minute), 10); len(expired) != 1 {
		t.Fatalf("expected order expired at minute 31, got %d", len(expired))
	}
	if lapsed, _ := repo.ListLapsedPending(ctx, now.Add(31*time.Minute), 10); len(lapsed) != 0 {
		t.Fatalf("expected expired order excluded from lapsed list, got %d", len(lapsed))
	}
}

func TestUnfulfilled(t *testing.T) {
	db, repo := setup(t)
	ctx := context.Background()
	order := seedOrder(t, db, StatusPaid, uuid.New(), 1)
	db.Model(&Order{}).Where("id = ?", order.ID).Update("paid_at", now)

	list, _ := repo.ListUnfulfilled(ctx, now.Add(10*time.Minute), 10)
	if len(list) != 1 {
		t.Fatalf("expected one unfulfilled order, got %d", len(list))
	}

	repo.MarkFulfilled(ctx, order.ID, now.Add(time.Minute))
	if list, _ = repo.ListUnfulfilled(ctx, now.Add(10*time.Minute), 10); len(list) != 0 {
		t.Fatalf("expected fulfilled order excluded, got %d", len(list))
	}
}
