package events

import (
	"context"
	"testing"
	"time"

	"boxoffice/internal/ledger"
	"boxoffice/internal/shared/apperror"
	"boxoffice/internal/shared/clock"
	"boxoffice/internal/shared/config"
	"boxoffice/internal/shared/testutil"
	"boxoffice/internal/users"
	"boxoffice/pkg/cache"
	"boxoffice/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	svc    Service
	repo   Repository
	ledger *ledger.Ledger
	clock  *clock.Manual
	owner  Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t, &Event{}, &TicketType{})
	_, client := testutil.NewRedis(t)

	clk := clock.NewManual(time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC))
	l := ledger.NewLedger(client, clk, 5*time.Minute)

	repo := NewRepository(db)
	svc := NewService(repo, config.Load(), logger.Discard())
	svc.SetCacheService(cache.NewService(client))
	svc.SetAvailabilityReader(l)

	return &fixture{
		db:     db,
		svc:    svc,
		repo:   repo,
		ledger: l,
		clock:  clk,
		owner:  Actor{ID: uuid.New(), Role: users.RoleOrganizer},
	}
}

func (f *fixture) publishedEvent(t *testing.T, capacity int) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	event, err := f.svc.CreateEvent(ctx, f.owner.ID, CreateEventRequest{
		Name:     "Noche de Jazz",
		Venue:    "Foro Sol",
		StartsAt: time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	eventID := uuid.MustParse(event.ID)

	tt, err := f.svc.AddTicketType(ctx, f.owner, eventID, CreateTicketTypeRequest{
		Name: "General", Capacity: capacity, UnitPrice: 50000, Currency: "mxn",
	})
	if err != nil {
		t.Fatalf("add ticket type: %v", err)
	}
	if tt.Currency != "MXN" {
		t.Fatalf("expected normalized currency, got %s", tt.Currency)
	}

	if _, err := f.svc.PublishEvent(ctx, f.owner, eventID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	return eventID, uuid.MustParse(tt.ID)
}

func TestCreateEventDefaults(t *testing.T) {
	f := newFixture(t)
	event, err := f.svc.CreateEvent(context.Background(), f.owner.ID, CreateEventRequest{
		Name:     "Festival",
		Venue:    "Parque",
		StartsAt: time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if event.Status != EventStatusDraft {
		t.Fatalf("expected DRAFT, got %s", event.Status)
	}
	if event.MaxTicketsPerPurchase != 10 {
		t.Fatalf("expected default max of 10, got %d", event.MaxTicketsPerPurchase)
	}
}

func TestCreateEventRejectsInvertedDates(t *testing.T) {
	f := newFixture(t)
	starts := time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)
	ends := starts.Add(-time.Hour)

	_, err := f.svc.CreateEvent(context.Background(), f.owner.ID, CreateEventRequest{
		Name: "Festival", Venue: "Parque", StartsAt: starts, EndsAt: &ends,
	})
	if apperror.KindOf(err) != apperror.KindValidation {
		t.Fatalf("expected VALIDATION, got %v", err)
	}
}

func TestPublishRequiresTicketTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event, _ := f.svc.CreateEvent(ctx, f.owner.ID, CreateEventRequest{
		Name: "Festival", Venue: "Parque", StartsAt: time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
	})

	_, err := f.svc.PublishEvent(ctx, f.owner, uuid.MustParse(event.ID))
	if apperror.KindOf(err) != apperror.KindInvalidState {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
}

func TestOrganizerOwnership(t *testing.T) {
	f := newFixture(t)
	eventID, _ := f.publishedEvent(t, 10)

	stranger := Actor{ID: uuid.New(), Role: users.RoleOrganizer}
	_, err := f.svc.CancelEvent(context.Background(), stranger, eventID)
	if apperror.KindOf(err) != apperror.KindForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}

	admin := Actor{ID: uuid.New(), Role: users.RoleAdmin}
	event, err := f.svc.CancelEvent(context.Background(), admin, eventID)
	if err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if event.Status != EventStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", event.Status)
	}
}

func TestGetEventSubtractsLiveHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eventID, ttID := f.publishedEvent(t, 10)

	event, err := f.svc.GetEvent(ctx, eventID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if event.TicketTypes[0].Available != 10 {
		t.Fatalf("expected 10 available, got %d", event.TicketTypes[0].Available)
	}

	if err := f.ledger.Reserve(ctx, eventID, ttID, 3, uuid.New()); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// second read is served from cache; availability must still move
	event, _ = f.svc.GetEvent(ctx, eventID)
	if event.TicketTypes[0].Available != 7 {
		t.Fatalf("expected 7 available with a live hold, got %d", event.TicketTypes[0].Available)
	}

	f.clock.Advance(6 * time.Minute)
	event, _ = f.svc.GetEvent(ctx, eventID)
	if event.TicketTypes[0].Available != 10 {
		t.Fatalf("expected expired hold to free units, got %d", event.TicketTypes[0].Available)
	}
}

func TestCachedEventReflectsSettledSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eventID, ttID := f.publishedEvent(t, 10)
	orderID := uuid.New()

	if err := f.ledger.Reserve(ctx, eventID, ttID, 4, orderID); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	event, err := f.svc.GetEvent(ctx, eventID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if event.TicketTypes[0].Available != 6 {
		t.Fatalf("expected 6 available while held, got %d", event.TicketTypes[0].Available)
	}

	// the hold turns into a sale behind the cache's back
	if err := f.db.Model(&TicketType{}).Where("id = ?", ttID).Update("sold", 4).Error; err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if _, err := f.ledger.Release(ctx, orderID); err != nil {
		t.Fatalf("release: %v", err)
	}

	event, err = f.svc.GetEvent(ctx, eventID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	tt := event.TicketTypes[0]
	if tt.Sold != 4 || tt.Available != 6 {
		t.Fatalf("expected sold=4 available=6, got sold=%d available=%d", tt.Sold, tt.Available)
	}
}

func TestDraftEventsAreHidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event, _ := f.svc.CreateEvent(ctx, f.owner.ID, CreateEventRequest{
		Name: "Secreto", Venue: "Bodega", StartsAt: time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
	})

	if _, err := f.svc.GetEvent(ctx, uuid.MustParse(event.ID)); apperror.KindOf(err) != apperror.KindNotFound {
		t.Fatalf("expected NOT_FOUND for draft, got %v", err)
	}

	list, err := f.svc.ListEvents(ctx, EventListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.TotalCount != 0 {
		t.Fatalf("expected drafts excluded from list, got %d", list.TotalCount)
	}
}

func TestListEvents(t *testing.T) {
	f := newFixture(t)
	f.publishedEvent(t, 5)
	f.publishedEvent(t, 5)

	list, err := f.svc.ListEvents(context.Background(), EventListQuery{Page: 1, Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.TotalCount != 2 || list.TotalPages != 2 || len(list.Events) != 1 {
		t.Fatalf("unexpected page %+v", list)
	}
}

func TestIsPurchasable(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		event Event
		want  bool
	}{
		{"published without end", Event{Status: EventStatusPublished}, true},
		{"published ending later", Event{Status: EventStatusPublished, EndsAt: &future}, true},
		{"published already ended", Event{Status: EventStatusPublished, EndsAt: &past}, false},
		{"draft", Event{Status: EventStatusDraft}, false},
		{"cancelled", Event{Status: EventStatusCancelled}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.IsPurchasable(now); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
