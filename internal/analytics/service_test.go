package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"boxoffice/internal/events"
	"boxoffice/internal/ledger"
	"boxoffice/internal/orders"
	"boxoffice/internal/shared/apperror"
	"boxoffice/internal/shared/clock"
	"boxoffice/internal/shared/config"
	"boxoffice/internal/shared/testutil"
	"boxoffice/internal/tickets"
	"boxoffice/internal/users"
	"boxoffice/pkg/cache"
	"boxoffice/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var epoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type recordingQueue struct {
	mu     sync.Mutex
	orders []uuid.UUID
}

func (q *recordingQueue) Enqueue(ctx context.Context, orderID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.orders = append(q.orders, orderID)
	return nil
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.orders)
}

type fixture struct {
	db      *gorm.DB
	clock   *clock.Manual
	ledger  *ledger.Ledger
	queue   *recordingQueue
	service Service

	organizer *users.User
	owner     events.Actor
	event     *events.Event
	general   *events.TicketType
}

const complimentaryFee = 2500

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()

	db := testutil.NewDB(t,
		&users.User{}, &events.Event{}, &events.TicketType{},
		&orders.Buyer{}, &orders.Order{}, &orders.OrderItem{}, &orders.Payment{}, &orders.ReservationJournal{},
		&tickets.Ticket{},
	)
	_, rdb := testutil.NewRedis(t)
	clk := clock.NewManual(epoch)
	l := ledger.NewLedger(rdb, clk, 5*time.Minute)
	queue := &recordingQueue{}
	issuer := tickets.NewService(tickets.NewRepository(db), orders.NewRepository(db), clk, logger.Discard())

	cfg := config.PaymentsConfig{DefaultFeeBps: 500, DefaultFeeFixed: 0, DefaultComplimentaryFee: complimentaryFee}
	svc := NewService(NewRepository(db), l, issuer, queue, clk, cfg, logger.Discard())
	svc.SetCacheService(cache.NewService(rdb))

	f := &fixture{db: db, clock: clk, ledger: l, queue: queue, service: svc}
	f.organizer = f.seedOrganizer(t, "olga@example.com", users.StatusActive)
	f.owner = events.Actor{ID: f.organizer.ID, Role: users.RoleOrganizer}
	f.event, f.general = f.seedEvent(t, f.organizer.ID, events.EventStatusPublished, capacity)
	return f
}

func (f *fixture) seedOrganizer(t *testing.T, email string, status users.Status) *users.User {
	t.Helper()
	u := &users.User{FirstName: "Olga", LastName: "Org", Email: email, Password: "x", Role: users.RoleOrganizer, Status: status}
	if err := f.db.Create(u).Error; err != nil {
		t.Fatalf("seed organizer: %v", err)
	}
	return u
}

func (f *fixture) seedEvent(t *testing.T, organizerID uuid.UUID, status events.EventStatus, capacity int) (*events.Event, *events.TicketType) {
	t.Helper()
	event := &events.Event{
		OrganizerID:           organizerID,
		Name:                  "Concierto",
		Venue:                 "Foro Sol",
		StartsAt:              epoch.Add(48 * time.Hour),
		Status:                status,
		MaxTicketsPerPurchase: 10,
	}
	if err := f.db.Create(event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	tt := &events.TicketType{EventID: event.ID, Name: "General", Capacity: capacity, UnitPrice: 1000, Currency: "MXN"}
	if err := f.db.Create(tt).Error; err != nil {
		t.Fatalf("seed ticket type: %v", err)
	}
	return event, tt
}

// seedPaidOrder writes a settled order as the payment handler would leave it.
func (f *fixture) seedPaidOrder(t *testing.T, tt *events.TicketType, qty int, currency string, email string) *orders.Order {
	t.Helper()
	buyer := &orders.Buyer{}
	if err := f.db.Where(orders.Buyer{Email: email}).Attrs(orders.Buyer{FirstName: "Ana"}).FirstOrCreate(buyer).Error; err != nil {
		t.Fatalf("seed buyer: %v", err)
	}
	total := int64(qty) * tt.UnitPrice
	paidAt := epoch
	order := &orders.Order{
		EventID:         tt.EventID,
		BuyerID:         buyer.ID,
		Status:          orders.StatusPaid,
		Total:           total,
		Currency:        currency,
		PlatformFee:     total / 20,
		OrganizerIncome: total - total/20,
		ExpiresAt:       epoch,
		ReservedUntil:   epoch,
		PaidAt:          &paidAt,
		Items:           []orders.OrderItem{{TicketTypeID: tt.ID, Quantity: qty, UnitPrice: tt.UnitPrice}},
		Payment:         &orders.Payment{Gateway: "mercadopago", Status: orders.PaymentCompleted, Amount: total, Currency: currency},
	}
	if err := f.db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	f.db.Model(&events.TicketType{}).Where("id = ?", tt.ID).Update("sold", gorm.Expr("sold + ?", qty))
	return order
}

func (f *fixture) sold(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var tt events.TicketType
	if err := f.db.Where("id = ?", id).First(&tt).Error; err != nil {
		t.Fatalf("load ticket type: %v", err)
	}
	return tt.Sold
}

func complimentaryFor(tt *events.TicketType, qty int) ComplimentaryRequest {
	return ComplimentaryRequest{
		TicketTypeID:   tt.ID.String(),
		Quantity:       qty,
		BuyerEmail:     "Guest@Example.com",
		BuyerFirstName: "Guest",
	}
}

func TestAllowedComplimentaries(t *testing.T) {
	tests := []struct {
		capacity int
		want     int
	}{
		{0, 5},
		{2499, 5},
		{2500, 330},
		{40000, 330},
	}
	for _, tt := range tests {
		if got := AllowedComplimentaries(tt.capacity); got != tt.want {
			t.Fatalf("capacity %d: expected %d, got %d", tt.capacity, tt.want, got)
		}
	}
}

func TestIssueComplimentary(t *testing.T) {
	ctx := context.Background()

	t.Run("free allowance first, then charged", func(t *testing.T) {
		f := newFixture(t, 10)

		first, err := f.service.IssueComplimentary(ctx, f.owner, f.event.ID, complimentaryFor(f.general, 3))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if first.FreeUsed != 3 || first.PaidExtra != 0 || first.Charged != 0 {
			t.Fatalf("expected 3 free units, got %+v", first)
		}
		if len(first.Tickets) != 3 {
			t.Fatalf("expected 3 tickets, got %d", len(first.Tickets))
		}

		second, err := f.service.IssueComplimentary(ctx, f.owner, f.event.ID, complimentaryFor(f.general, 4))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if second.FreeUsed != 2 || second.PaidExtra != 2 || second.Charged != 2*complimentaryFee {
			t.Fatalf("expected 2 free and 2 charged, got %+v", second)
		}

		if sold := f.sold(t, f.general.ID); sold != 7 {
			t.Fatalf("expected sold 7, got %d", sold)
		}
		var organizer users.User
		f.db.Where("id = ?", f.organizer.ID).First(&organizer)
		if organizer.ComplimentaryUsed != 7 {
			t.Fatalf("expected 7 used, got %d", organizer.ComplimentaryUsed)
		}

		var order orders.Order
		f.db.Preload("Buyer").Where("id = ?", second.OrderID).First(&order)
		if order.Status != orders.StatusPaid || !order.Complimentary || order.Total != 2*complimentaryFee || order.OrganizerIncome != 0 {
			t.Fatalf("expected a paid complimentary order charged to the platform fee, got %+v", order)
		}
		if order.Buyer == nil || order.Buyer.Email != "guest@example.com" {
			t.Fatalf("expected normalized buyer, got %+v", order.Buyer)
		}
		if f.queue.count() != 2 {
			t.Fatalf("expected both orders queued for fulfillment, got %d", f.queue.count())
		}
	})

	t.Run("live holds count against capacity", func(t *testing.T) {
		f := newFixture(t, 10)
		f.seedPaidOrder(t, f.general, 7, "MXN", "ana@example.com")
		if err := f.ledger.Reserve(ctx, f.event.ID, f.general.ID, 2, uuid.New()); err != nil {
			t.Fatalf("reserve: %v", err)
		}

		_, err := f.service.IssueComplimentary(ctx, f.owner, f.event.ID, complimentaryFor(f.general, 2))
		if apperror.KindOf(err) != apperror.KindInsufficientInventory {
			t.Fatalf("expected INSUFFICIENT_INVENTORY, got %v", err)
		}
		if sold := f.sold(t, f.general.ID); sold != 7 {
			t.Fatalf("expected sold to stay 7, got %d", sold)
		}

		if _, err := f.service.IssueComplimentary(ctx, f.owner, f.event.ID, complimentaryFor(f.general, 1)); err != nil {
			t.Fatalf("expected the last free unit to be issued, got %v", err)
		}
	})

	t.Run("journaled checkouts count against capacity", func(t *testing.T) {
		f := newFixture(t, 4)
		journal := &orders.ReservationJournal{
			OrderID:       uuid.New(),
			EventID:       f.event.ID,
			TicketTypeID:  f.general.ID,
			Quantity:      3,
			Status:        orders.JournalPending,
			HoldExpiresAt: epoch.Add(5 * time.Minute),
		}
		if err := f.db.Create(journal).Error; err != nil {
			t.Fatalf("seed journal: %v", err)
		}

		_, err := f.service.IssueComplimentary(ctx, f.owner, f.event.ID, complimentaryFor(f.general, 2))
		if apperror.KindOf(err) != apperror.KindInsufficientInventory {
			t.Fatalf("expected INSUFFICIENT_INVENTORY, got %v", err)
		}
	})

	t.Run("concurrent issuances never oversell", func(t *testing.T) {
		f := newFixture(t, 5)

		var wg sync.WaitGroup
		var mu sync.Mutex
		issued := 0
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp, err := f.service.IssueComplimentary(ctx, f.owner, f.event.ID, complimentaryFor(f.general, 2))
				if err == nil {
					mu.Lock()
					issued += resp.Quantity
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if issued != 4 {
			t.Fatalf("expected exactly 4 units issued, got %d", issued)
		}
		if sold := f.sold(t, f.general.ID); sold != 4 {
			t.Fatalf("expected sold 4, got %d", sold)
		}
	})

	t.Run("pending organizer", func(t *testing.T) {
		f := newFixture(t, 10)
		f.db.Model(&users.User{}).Where("id = ?", f.organizer.ID).Update("status", users.StatusPending)

		_, err := f.service.IssueComplimentary(ctx, f.owner, f.event.ID, complimentaryFor(f.general, 1))
		if apperror.KindOf(err) != apperror.KindForbidden {
			t.Fatalf("expected FORBIDDEN, got %v", err)
		}
	})

	t.Run("another organizer's event", func(t *testing.T) {
		f := newFixture(t, 10)
		stranger := events.Actor{ID: uuid.New(), Role: users.RoleOrganizer}

		_, err := f.service.IssueComplimentary(ctx, stranger, f.event.ID, complimentaryFor(f.general, 1))
		if apperror.KindOf(err) != apperror.KindForbidden {
			t.Fatalf("expected FORBIDDEN, got %v", err)
		}
	})

	t.Run("ticket type of another event", func(t *testing.T) {
		f := newFixture(t, 10)
		_, foreign := f.seedEvent(t, f.organizer.ID, events.EventStatusPublished, 10)

		_, err := f.service.IssueComplimentary(ctx, f.owner, f.event.ID, complimentaryFor(foreign, 1))
		if apperror.KindOf(err) != apperror.KindNotFound {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("cancelled event", func(t *testing.T) {
		f := newFixture(t, 10)
		f.db.Model(&events.Event{}).Where("id = ?", f.event.ID).Update("status", events.EventStatusCancelled)

		_, err := f.service.IssueComplimentary(ctx, f.owner, f.event.ID, complimentaryFor(f.general, 1))
		if apperror.KindOf(err) != apperror.KindInvalidState {
			t.Fatalf("expected INVALID_STATE, got %v", err)
		}
	})
}

func TestComplimentaryUsage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3000)
	f.seedEvent(t, f.organizer.ID, events.EventStatusDraft, 100)
	f.seedEvent(t, f.organizer.ID, events.EventStatusCancelled, 100)

	if _, err := f.service.IssueComplimentary(ctx, f.owner, f.event.ID, complimentaryFor(f.general, 10)); err != nil {
		t.Fatalf("issue: %v", err)
	}

	usage, err := f.service.GetComplimentaryUsage(ctx, f.organizer.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if usage.TotalAllowed != 335 || usage.Used != 10 || usage.Remaining != 325 {
		t.Fatalf("expected 335 allowed 10 used 325 left, got %+v", usage)
	}
	if len(usage.Events) != 2 {
		t.Fatalf("expected cancelled events left out of the breakdown, got %+v", usage.Events)
	}
}

func TestEventMetricsAndOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	vip := &events.TicketType{EventID: f.event.ID, Name: "VIP", Capacity: 20, UnitPrice: 5000, Currency: "MXN"}
	if err := f.db.Create(vip).Error; err != nil {
		t.Fatalf("seed vip: %v", err)
	}

	first := f.seedPaidOrder(t, f.general, 3, "MXN", "ana@example.com")
	f.seedPaidOrder(t, vip, 2, "MXN", "beto@example.com")

	issuer := tickets.NewService(tickets.NewRepository(f.db), orders.NewRepository(f.db), f.clock, logger.Discard())
	issued, _, err := issuer.IssueTickets(ctx, first.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.CheckIn(ctx, issued[0].Code, uuid.New()); err != nil {
		t.Fatalf("check in: %v", err)
	}

	t.Run("metrics", func(t *testing.T) {
		metrics, err := f.service.GetEventMetrics(ctx, f.owner, f.event.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if metrics.Sales.TicketsSold != 5 || metrics.Sales.PaidOrders != 2 {
			t.Fatalf("expected 5 tickets in 2 orders, got %+v", metrics.Sales)
		}
		if len(metrics.Sales.Revenue) != 1 || metrics.Sales.Revenue[0].Total != 13000 {
			t.Fatalf("expected 13000 MXN revenue, got %+v", metrics.Sales.Revenue)
		}
		revenue := map[string]int64{}
		for _, tt := range metrics.TicketTypes {
			revenue[tt.Name] = tt.Revenue
		}
		if revenue["General"] != 3000 || revenue["VIP"] != 10000 {
			t.Fatalf("expected per-type revenue 3000/10000, got %v", revenue)
		}
		if metrics.Attendance.CheckedIn != 1 || metrics.Attendance.Capacity != 120 {
			t.Fatalf("expected 1 of 120 checked in, got %+v", metrics.Attendance)
		}
	})

	t.Run("orders newest first", func(t *testing.T) {
		list, err := f.service.ListEventOrders(ctx, f.owner, f.event.ID, 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 orders, got %d", len(list))
		}
		if list[1].ID != first.ID.String() || list[1].Quantity != 3 || list[1].Gateway != "mercadopago" {
			t.Fatalf("expected the oldest order last with its payment, got %+v", list[1])
		}
	})

	t.Run("admin sees any event, other organizers do not", func(t *testing.T) {
		admin := events.Actor{ID: uuid.New(), Role: users.RoleAdmin}
		if _, err := f.service.GetEventMetrics(ctx, admin, f.event.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		stranger := events.Actor{ID: uuid.New(), Role: users.RoleOrganizer}
		if _, err := f.service.ListEventOrders(ctx, stranger, f.event.ID, 10); apperror.KindOf(err) != apperror.KindForbidden {
			t.Fatalf("expected FORBIDDEN, got %v", err)
		}
	})
}

func TestOrganizerDashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	f.seedEvent(t, f.organizer.ID, events.EventStatusDraft, 10)
	f.seedPaidOrder(t, f.general, 2, "MXN", "ana@example.com")

	other := f.seedOrganizer(t, "otro@example.com", users.StatusActive)
	_, foreign := f.seedEvent(t, other.ID, events.EventStatusPublished, 10)
	f.seedPaidOrder(t, foreign, 1, "MXN", "beto@example.com")

	dashboard, err := f.service.GetOrganizerDashboard(ctx, f.organizer.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if dashboard.Stats.TotalEvents != 2 || dashboard.Stats.ActiveEvents != 1 || dashboard.Stats.PaidOrders != 1 {
		t.Fatalf("expected 2 events, 1 active, 1 paid order, got %+v", dashboard.Stats)
	}
	if len(dashboard.Stats.Revenue) != 1 || dashboard.Stats.Revenue[0].OrganizerIncome != 1900 {
		t.Fatalf("expected 1900 organizer income, got %+v", dashboard.Stats.Revenue)
	}
	if dashboard.Complimentary.TotalAllowed != 10 || dashboard.Complimentary.Events != nil {
		t.Fatalf("expected 10 allowed without breakdown, got %+v", dashboard.Complimentary)
	}
	if dashboard.Organizer.FeePlan.PercentBps != 500 {
		t.Fatalf("expected the platform default plan, got %+v", dashboard.Organizer.FeePlan)
	}

	if _, err := f.service.GetOrganizerDashboard(ctx, uuid.New()); apperror.KindOf(err) != apperror.KindNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestPlatformMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	pending := f.seedOrganizer(t, "nuevo@example.com", users.StatusPending)
	f.seedOrganizer(t, "baja@example.com", users.StatusSuspended)
	staff := &users.User{FirstName: "S", LastName: "T", Email: "staff@example.com", Password: "x", Role: users.RoleStaff}
	f.db.Create(staff)

	f.seedPaidOrder(t, f.general, 2, "MXN", "ana@example.com")
	usd := &events.TicketType{EventID: f.event.ID, Name: "Intl", Capacity: 10, UnitPrice: 3000, Currency: "USD"}
	f.db.Create(usd)
	f.seedPaidOrder(t, usd, 1, "USD", "beto@example.com")
	refunded := f.seedPaidOrder(t, f.general, 1, "MXN", "caro@example.com")
	f.db.Model(&orders.Order{}).Where("id = ?", refunded.ID).Updates(map[string]interface{}{"status": orders.StatusRefunded, "refund_required": true})

	metrics, err := f.service.GetPlatformMetrics(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if metrics.Organizers != (OrganizerCounts{Total: 3, Active: 1, Pending: 1, Suspended: 1}) {
		t.Fatalf("expected staff left out of organizer counts, got %+v", metrics.Organizers)
	}
	if metrics.Events.Total != 1 || metrics.Events.Active != 1 {
		t.Fatalf("expected 1 active event, got %+v", metrics.Events)
	}
	if metrics.Orders.Total != 3 || metrics.Orders.Paid != 2 || metrics.Orders.Refunded != 1 || metrics.Orders.RefundRequired != 1 {
		t.Fatalf("unexpected order counts %+v", metrics.Orders)
	}
	if len(metrics.Revenue) != 2 || metrics.Revenue[0].Currency != "MXN" || metrics.Revenue[0].Total != 2000 || metrics.Revenue[1].Total != 3000 {
		t.Fatalf("expected revenue split by currency, got %+v", metrics.Revenue)
	}

	t.Run("approving drops the cached figures", func(t *testing.T) {
		if _, err := f.service.ApproveOrganizer(ctx, pending.ID); err != nil {
			t.Fatalf("approve: %v", err)
		}
		metrics, err := f.service.GetPlatformMetrics(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if metrics.Organizers.Active != 2 || metrics.Organizers.Pending != 0 {
			t.Fatalf("expected the approval to show, got %+v", metrics.Organizers)
		}
	})
}

func TestOrganizerAdministration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	pending := f.seedOrganizer(t, "nuevo@example.com", users.StatusPending)

	t.Run("list by status", func(t *testing.T) {
		list, err := f.service.ListOrganizers(ctx, "pending", 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(list) != 1 || list[0].ID != pending.ID.String() {
			t.Fatalf("expected only the pending organizer, got %+v", list)
		}

		all, err := f.service.ListOrganizers(ctx, "", 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected 2 organizers, got %d", len(all))
		}
		for _, o := range all {
			if o.ID == f.organizer.ID.String() && o.Events != 1 {
				t.Fatalf("expected 1 event for the seeded organizer, got %d", o.Events)
			}
		}

		if _, err := f.service.ListOrganizers(ctx, "BANNED", 0); apperror.KindOf(err) != apperror.KindValidation {
			t.Fatalf("expected VALIDATION, got %v", err)
		}
	})

	t.Run("approve and suspend", func(t *testing.T) {
		approved, err := f.service.ApproveOrganizer(ctx, pending.ID)
		if err != nil || approved.Status != users.StatusActive {
			t.Fatalf("expected ACTIVE, got %+v %v", approved, err)
		}
		suspended, err := f.service.SuspendOrganizer(ctx, pending.ID)
		if err != nil || suspended.Status != users.StatusSuspended {
			t.Fatalf("expected SUSPENDED, got %+v %v", suspended, err)
		}
		if _, err := f.service.SuspendOrganizer(ctx, uuid.New()); apperror.KindOf(err) != apperror.KindNotFound {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("staff accounts are not organizers", func(t *testing.T) {
		staff := &users.User{FirstName: "S", LastName: "T", Email: "staff@example.com", Password: "x", Role: users.RoleStaff}
		f.db.Create(staff)
		if _, err := f.service.ApproveOrganizer(ctx, staff.ID); apperror.KindOf(err) != apperror.KindNotFound {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("fee plan", func(t *testing.T) {
		bps, fixed, comp := int64(800), int64(300), int64(1500)
		summary, err := f.service.AssignFeePlan(ctx, f.organizer.ID, AssignFeePlanRequest{PercentBps: &bps, FixedMinor: &fixed, ComplimentaryFeeMinor: &comp})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if summary.FeePlan.PercentBps != 800 || summary.FeePlan.FixedMinor != 300 || summary.ComplimentaryFee != 1500 {
			t.Fatalf("expected the assigned plan, got %+v", summary)
		}

		var stored users.User
		f.db.Where("id = ?", f.organizer.ID).First(&stored)
		if stored.FeePercentBps == nil || *stored.FeePercentBps != 800 {
			t.Fatalf("expected the plan stored on the organizer, got %+v", stored.FeePercentBps)
		}

		reset, err := f.service.AssignFeePlan(ctx, f.organizer.ID, AssignFeePlanRequest{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if reset.FeePlan.PercentBps != 500 || reset.ComplimentaryFee != complimentaryFee {
			t.Fatalf("expected the platform defaults back, got %+v", reset)
		}
	})

	t.Run("extra complimentaries use the organizer's fee", func(t *testing.T) {
		comp := int64(700)
		if _, err := f.service.AssignFeePlan(ctx, f.organizer.ID, AssignFeePlanRequest{ComplimentaryFeeMinor: &comp}); err != nil {
			t.Fatalf("assign: %v", err)
		}
		resp, err := f.service.IssueComplimentary(ctx, f.owner, f.event.ID, complimentaryFor(f.general, 6))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.PaidExtra != 1 || resp.Charged != 700 {
			t.Fatalf("expected one unit charged at 700, got %+v", resp)
		}
	})
}

func TestOrderDetailsAndResend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	order := f.seedPaidOrder(t, f.general, 2, "MXN", "ana@example.com")
	issuer := tickets.NewService(tickets.NewRepository(f.db), orders.NewRepository(f.db), f.clock, logger.Discard())
	if _, _, err := issuer.IssueTickets(ctx, order.ID); err != nil {
		t.Fatalf("issue: %v", err)
	}
	f.db.Model(&orders.Order{}).Where("id = ?", order.ID).Update("fulfilled_at", epoch)

	details, err := f.service.GetOrderDetails(ctx, order.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(details.Tickets) != 2 || details.Order.Buyer == nil || details.Order.Payment == nil {
		t.Fatalf("expected tickets, buyer and payment, got %+v", details)
	}

	resent, err := f.service.ResendTickets(ctx, order.ID)
	if err != nil || !resent.Queued {
		t.Fatalf("expected resend queued, got %+v %v", resent, err)
	}
	var reloaded orders.Order
	f.db.Where("id = ?", order.ID).First(&reloaded)
	if reloaded.FulfilledAt != nil {
		t.Fatalf("expected the fulfilled stamp cleared for the resend")
	}
	if f.queue.count() != 1 {
		t.Fatalf("expected 1 queued job, got %d", f.queue.count())
	}

	f.db.Model(&orders.Order{}).Where("id = ?", order.ID).Update("status", orders.StatusRefunded)
	if _, err := f.service.ResendTickets(ctx, order.ID); apperror.KindOf(err) != apperror.KindInvalidState {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
	if _, err := f.service.GetOrderDetails(ctx, uuid.New()); apperror.KindOf(err) != apperror.KindNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
