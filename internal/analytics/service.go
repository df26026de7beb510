package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"boxoffice/internal/events"
	"boxoffice/internal/orders"
	"boxoffice/internal/shared/apperror"
	"boxoffice/internal/shared/clock"
	"boxoffice/internal/shared/config"
	"boxoffice/internal/shared/constants"
	"boxoffice/internal/shared/money"
	"boxoffice/internal/tickets"
	"boxoffice/internal/users"
	"boxoffice/pkg/cache"
	"boxoffice/pkg/logger"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service defines the dashboards and the admin operations behind them
type Service interface {
	SetCacheService(cacheService cache.Service)

	// Platform (admin)
	GetPlatformMetrics(ctx context.Context) (*PlatformMetrics, error)
	ListOrganizers(ctx context.Context, status string, limit int) ([]OrganizerSummary, error)
	ApproveOrganizer(ctx context.Context, organizerID uuid.UUID) (*OrganizerSummary, error)
	SuspendOrganizer(ctx context.Context, organizerID uuid.UUID) (*OrganizerSummary, error)
	AssignFeePlan(ctx context.Context, organizerID uuid.UUID, req AssignFeePlanRequest) (*OrganizerSummary, error)
	GetOrderDetails(ctx context.Context, orderID uuid.UUID) (*OrderDetails, error)
	ResendTickets(ctx context.Context, orderID uuid.UUID) (*ResendResponse, error)

	// Organizer
	GetOrganizerDashboard(ctx context.Context, organizerID uuid.UUID) (*OrganizerDashboard, error)
	GetEventMetrics(ctx context.Context, actor events.Actor, eventID uuid.UUID) (*EventMetrics, error)
	ListEventOrders(ctx context.Context, actor events.Actor, eventID uuid.UUID, limit int) ([]OrderSummary, error)
	GetComplimentaryUsage(ctx context.Context, organizerID uuid.UUID) (*ComplimentaryUsage, error)
	IssueComplimentary(ctx context.Context, actor events.Actor, eventID uuid.UUID, req ComplimentaryRequest) (*ComplimentaryResponse, error)
}

// AvailabilityChecker answers whether qty more units fit next to sales and live holds.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, eventID, ticketTypeID uuid.UUID, capacity, sold, qty int) (bool, int, error)
}

type TicketIssuer interface {
	IssueTickets(ctx context.Context, orderID uuid.UUID) ([]tickets.Ticket, bool, error)
}

type FulfillmentQueue interface {
	Enqueue(ctx context.Context, orderID uuid.UUID) error
}

type service struct {
	repo         Repository
	availability AvailabilityChecker
	issuer       TicketIssuer
	queue        FulfillmentQueue
	cacheService cache.Service
	clock        clock.Clock
	feePlan      money.FeePlan
	compFee      int64
	log          *logger.Logger
}

func NewService(repo Repository, availability AvailabilityChecker, issuer TicketIssuer, queue FulfillmentQueue, clk clock.Clock, cfg config.PaymentsConfig, log *logger.Logger) Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &service{
		repo:         repo,
		availability: availability,
		issuer:       issuer,
		queue:        queue,
		clock:        clk,
		feePlan:      money.FeePlan{PercentBps: cfg.DefaultFeeBps, FixedMinor: cfg.DefaultFeeFixed},
		compFee:      cfg.DefaultComplimentaryFee,
		log:          logger.OrDefault(log).WithComponent("analytics"),
	}
}

// SetCacheService injects the cache service dependency
func (s *service) SetCacheService(cacheService cache.Service) {
	s.cacheService = cacheService
}

func (s *service) invalidatePlatformMetrics(ctx context.Context) {
	if s.cacheService == nil {
		return
	}
	if err := s.cacheService.Delete(ctx, constants.CACHE_KEY_ANALYTICS_PLATFORM); err != nil {
		s.log.DebugWithContext(ctx, "platform metrics cache invalidation failed", map[string]interface{}{"error": err.Error()})
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func (s *service) summarize(u *users.User, eventCount int) OrganizerSummary {
	return OrganizerSummary{
		ID:                u.ID.String(),
		Email:             u.Email,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		Status:            u.Status,
		FeePlan:           u.FeePlan(s.feePlan),
		ComplimentaryFee:  u.ComplimentaryFee(s.compFee),
		ComplimentaryUsed: u.ComplimentaryUsed,
		Events:            eventCount,
		CreatedAt:         u.CreatedAt,
	}
}

// Platform Implementation

// GetPlatformMetrics is cached briefly; organizer changes made here drop the cache.
func (s *service) GetPlatformMetrics(ctx context.Context) (*PlatformMetrics, error) {
	if s.cacheService != nil {
		var cached PlatformMetrics
		if err := s.cacheService.Get(ctx, constants.CACHE_KEY_ANALYTICS_PLATFORM, &cached); err == nil {
			return &cached, nil
		}
	}

	metrics, err := s.repo.PlatformMetrics(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to get platform metrics: %w", err)
	}

	if s.cacheService != nil {
		if err := s.cacheService.Set(ctx, constants.CACHE_KEY_ANALYTICS_PLATFORM, metrics, constants.TTL_ANALYTICS_PLATFORM); err != nil {
			s.log.DebugWithContext(ctx, "platform metrics cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return metrics, nil
}

func (s *service) ListOrganizers(ctx context.Context, status string, limit int) ([]OrganizerSummary, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != "" && !users.IsValidStatus(status) {
		return nil, apperror.New(apperror.KindValidation, "unknown organizer status").WithDetail("status", status)
	}

	rows, err := s.repo.ListOrganizers(ctx, users.Status(status), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list organizers: %w", err)
	}
	out := make([]OrganizerSummary, 0, len(rows))
	for i := range rows {
		out = append(out, s.summarize(&rows[i].User, rows[i].EventCount))
	}
	return out, nil
}

func (s *service) ApproveOrganizer(ctx context.Context, organizerID uuid.UUID) (*OrganizerSummary, error) {
	return s.setOrganizerStatus(ctx, organizerID, users.StatusActive)
}

func (s *service) SuspendOrganizer(ctx context.Context, organizerID uuid.UUID) (*OrganizerSummary, error) {
	return s.setOrganizerStatus(ctx, organizerID, users.StatusSuspended)
}

func (s *service) setOrganizerStatus(ctx context.Context, organizerID uuid.UUID, status users.Status) (*OrganizerSummary, error) {
	if err := s.repo.SetOrganizerStatus(ctx, organizerID, status); err != nil {
		if errors.Is(err, ErrOrganizerNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "organizer not found")
		}
		return nil, fmt.Errorf("failed to update organizer status: %w", err)
	}
	s.invalidatePlatformMetrics(ctx)

	organizer, err := s.repo.GetOrganizer(ctx, organizerID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload organizer: %w", err)
	}
	s.log.InfoWithContext(ctx, "organizer status changed", map[string]interface{}{
		"organizer_id": organizerID.String(),
		"status":       string(status),
	})

	summary := s.summarize(organizer, 0)
	return &summary, nil
}

func (s *service) AssignFeePlan(ctx context.Context, organizerID uuid.UUID, req AssignFeePlanRequest) (*OrganizerSummary, error) {
	organizer, err := s.repo.SetFeePlan(ctx, organizerID, FeePlanUpdate{
		PercentBps:            req.PercentBps,
		FixedMinor:            req.FixedMinor,
		ComplimentaryFeeMinor: req.ComplimentaryFeeMinor,
	})
	if err != nil {
		if errors.Is(err, ErrOrganizerNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "organizer not found")
		}
		return nil, fmt.Errorf("failed to assign fee plan: %w", err)
	}

	summary := s.summarize(organizer, 0)
	s.log.InfoWithContext(ctx, "organizer fee plan assigned", map[string]interface{}{
		"organizer_id": organizerID.String(),
		"percent_bps":  summary.FeePlan.PercentBps,
		"fixed_minor":  summary.FeePlan.FixedMinor,
	})
	return &summary, nil
}

func (s *service) GetOrderDetails(ctx context.Context, orderID uuid.UUID) (*OrderDetails, error) {
	order, issued, err := s.repo.GetOrderDetails(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "order not found")
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	details := &OrderDetails{Order: *order, Tickets: make([]tickets.TicketResponse, 0, len(issued))}
	for i := range issued {
		details.Tickets = append(details.Tickets, issued[i].ToResponse())
	}
	return details, nil
}

// ResendTickets sends a PAID order through fulfillment again. Tickets are
// not reissued; the buyer gets the same codes in a new confirmation.
func (s *service) ResendTickets(ctx context.Context, orderID uuid.UUID) (*ResendResponse, error) {
	order, _, err := s.repo.GetOrderDetails(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "order not found")
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order.Status != orders.StatusPaid {
		return nil, apperror.New(apperror.KindInvalidState, fmt.Sprintf("order is %s", order.Status))
	}

	reset, err := s.repo.ResetFulfillment(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to reset fulfillment: %w", err)
	}
	if !reset {
		return nil, apperror.New(apperror.KindInvalidState, "order is no longer paid")
	}

	// reconciliation picks the order up again if the queue is down
	queued := true
	if err := s.queue.Enqueue(ctx, orderID); err != nil {
		queued = false
		s.log.ErrorWithContext(ctx, "failed to enqueue ticket resend", err, map[string]interface{}{"order_id": orderID.String()})
	}
	return &ResendResponse{OrderID: orderID.String(), Queued: queued}, nil
}

// Organizer Implementation

func (s *service) loadOrganizer(ctx context.Context, organizerID uuid.UUID) (*users.User, error) {
	organizer, err := s.repo.GetOrganizer(ctx, organizerID)
	if err != nil {
		if errors.Is(err, ErrOrganizerNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "organizer not found")
		}
		return nil, fmt.Errorf("failed to load organizer: %w", err)
	}
	return organizer, nil
}

func (s *service) GetOrganizerDashboard(ctx context.Context, organizerID uuid.UUID) (*OrganizerDashboard, error) {
	organizer, err := s.loadOrganizer(ctx, organizerID)
	if err != nil {
		return nil, err
	}

	stats, err := s.repo.OrganizerStats(ctx, organizerID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to get organizer stats: %w", err)
	}
	usage, err := s.complimentaryUsage(ctx, organizer, false)
	if err != nil {
		return nil, err
	}

	return &OrganizerDashboard{
		Organizer:     s.summarize(organizer, stats.TotalEvents),
		Stats:         *stats,
		Complimentary: *usage,
	}, nil
}

func (s *service) GetComplimentaryUsage(ctx context.Context, organizerID uuid.UUID) (*ComplimentaryUsage, error) {
	organizer, err := s.loadOrganizer(ctx, organizerID)
	if err != nil {
		return nil, err
	}
	return s.complimentaryUsage(ctx, organizer, true)
}

func (s *service) complimentaryUsage(ctx context.Context, organizer *users.User, breakdown bool) (*ComplimentaryUsage, error) {
	list, err := s.repo.ListOrganizerEvents(ctx, organizer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	usage := &ComplimentaryUsage{Used: organizer.ComplimentaryUsed}
	for i := range list {
		if list[i].Status == events.EventStatusCancelled {
			continue
		}
		capacity := 0
		for _, tt := range list[i].TicketTypes {
			capacity += tt.Capacity
		}
		allowed := AllowedComplimentaries(capacity)
		usage.TotalAllowed += allowed
		if breakdown {
			usage.Events = append(usage.Events, EventComplimentaryQuota{
				EventID:  list[i].ID.String(),
				Name:     list[i].Name,
				Capacity: capacity,
				Allowed:  allowed,
			})
		}
	}
	usage.Remaining = usage.TotalAllowed - usage.Used
	if usage.Remaining < 0 {
		usage.Remaining = 0
	}
	return usage, nil
}

func (s *service) loadManaged(ctx context.Context, actor events.Actor, eventID uuid.UUID) (*events.Event, error) {
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "event not found")
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if actor.Role != users.RoleAdmin && event.OrganizerID != actor.ID {
		return nil, apperror.New(apperror.KindForbidden, "event belongs to another organizer")
	}
	return event, nil
}

func (s *service) GetEventMetrics(ctx context.Context, actor events.Actor, eventID uuid.UUID) (*EventMetrics, error) {
	event, err := s.loadManaged(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}

	totals, byType, err := s.repo.EventRevenue(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event revenue: %w", err)
	}
	checkedIn, err := s.repo.CountCheckedIn(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to count check-ins: %w", err)
	}

	metrics := &EventMetrics{
		EventID:     event.ID.String(),
		Name:        event.Name,
		Status:      event.Status,
		StartsAt:    event.StartsAt,
		Sales:       EventSales{Revenue: totals},
		TicketTypes: make([]TicketTypeSales, 0, len(event.TicketTypes)),
	}
	for _, t := range totals {
		metrics.Sales.PaidOrders += t.Orders
	}
	for _, tt := range event.TicketTypes {
		metrics.Sales.TicketsSold += tt.Sold
		metrics.Attendance.Capacity += tt.Capacity
		metrics.TicketTypes = append(metrics.TicketTypes, TicketTypeSales{
			ID:        tt.ID.String(),
			Name:      tt.Name,
			UnitPrice: tt.UnitPrice,
			Currency:  tt.Currency,
			Capacity:  tt.Capacity,
			Sold:      tt.Sold,
			Available: tt.Remaining(),
			Revenue:   byType[tt.ID],
		})
	}
	metrics.Attendance.CheckedIn = checkedIn
	if metrics.Attendance.Capacity > 0 {
		metrics.Attendance.Rate = float64(checkedIn) * 100 / float64(metrics.Attendance.Capacity)
	}
	return metrics, nil
}

func (s *service) ListEventOrders(ctx context.Context, actor events.Actor, eventID uuid.UUID, limit int) ([]OrderSummary, error) {
	if _, err := s.loadManaged(ctx, actor, eventID); err != nil {
		return nil, err
	}

	list, err := s.repo.ListEventOrders(ctx, eventID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	out := make([]OrderSummary, 0, len(list))
	for i := range list {
		out = append(out, toOrderSummary(&list[i]))
	}
	return out, nil
}

func toOrderSummary(o *orders.Order) OrderSummary {
	summary := OrderSummary{
		ID:            o.ID.String(),
		Status:        o.Status,
		Total:         o.Total,
		Currency:      o.Currency,
		Quantity:      o.TotalQuantity(),
		Complimentary: o.Complimentary,
		CreatedAt:     o.CreatedAt,
		PaidAt:        o.PaidAt,
	}
	if o.Buyer != nil {
		summary.BuyerEmail = o.Buyer.Email
		summary.BuyerName = strings.TrimSpace(o.Buyer.FirstName + " " + o.Buyer.LastName)
	}
	if o.Payment != nil {
		summary.Gateway = o.Payment.Gateway
		summary.PaymentStatus = o.Payment.Status
	}
	return summary
}

// IssueComplimentary gives away units of one ticket type. The free
// allowance is consumed first; units past it are charged to the organizer
// at their complimentary fee.
func (s *service) IssueComplimentary(ctx context.Context, actor events.Actor, eventID uuid.UUID, req ComplimentaryRequest) (*ComplimentaryResponse, error) {
	ticketTypeID, err := uuid.Parse(req.TicketTypeID)
	if err != nil {
		return nil, apperror.New(apperror.KindValidation, "invalid ticket type id")
	}

	event, err := s.loadManaged(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if event.Status == events.EventStatusCancelled {
		return nil, apperror.New(apperror.KindInvalidState, "event is cancelled")
	}
	if event.EndsAt != nil && !event.EndsAt.After(now) {
		return nil, apperror.New(apperror.KindInvalidState, "event has ended")
	}

	grant, err := s.repo.IssueComplimentary(ctx, ComplimentaryParams{
		EventID:      eventID,
		TicketTypeID: ticketTypeID,
		Quantity:     req.Quantity,
		Buyer: orders.Buyer{
			Email:     req.BuyerEmail,
			FirstName: strings.TrimSpace(req.BuyerFirstName),
			LastName:  strings.TrimSpace(req.BuyerLastName),
			Phone:     strings.TrimSpace(req.BuyerPhone),
		},
		DefaultFee: s.compFee,
		Now:        now,
	}, s.recheck)
	if err != nil {
		switch {
		case errors.Is(err, errTicketTypeNotFound):
			return nil, apperror.New(apperror.KindNotFound, "ticket type not found")
		case errors.Is(err, ErrEventNotFound):
			return nil, apperror.New(apperror.KindNotFound, "event not found")
		case errors.Is(err, ErrOrganizerNotFound):
			return nil, apperror.New(apperror.KindNotFound, "organizer not found")
		case errors.Is(err, errOrganizerInactive):
			return nil, apperror.New(apperror.KindForbidden, "organizer account is not active")
		case apperror.KindOf(err) == apperror.KindInsufficientInventory:
			return nil, err
		}
		return nil, fmt.Errorf("failed to issue complimentary tickets: %w", err)
	}

	order := grant.Order
	s.log.InfoWithContext(ctx, "complimentary tickets issued", map[string]interface{}{
		"order_id":   order.ID.String(),
		"event_id":   eventID.String(),
		"quantity":   req.Quantity,
		"free_used":  grant.FreeUsed,
		"paid_extra": grant.PaidExtra,
		"charged":    grant.Charged,
	})

	resp := &ComplimentaryResponse{
		OrderID:   order.ID.String(),
		Quantity:  req.Quantity,
		FreeUsed:  grant.FreeUsed,
		PaidExtra: grant.PaidExtra,
		Charged:   grant.Charged,
		Currency:  order.Currency,
		Tickets:   []tickets.TicketResponse{},
	}

	// Tickets are idempotent per order, so the fulfillment run below
	// returns these same codes in the confirmation.
	issued, _, err := s.issuer.IssueTickets(ctx, order.ID)
	if err != nil {
		s.log.ErrorWithContext(ctx, "failed to issue complimentary tickets inline", err, map[string]interface{}{"order_id": order.ID.String()})
	}
	for i := range issued {
		resp.Tickets = append(resp.Tickets, issued[i].ToResponse())
	}
	if err := s.queue.Enqueue(ctx, order.ID); err != nil {
		s.log.ErrorWithContext(ctx, "failed to enqueue complimentary fulfillment", err, map[string]interface{}{"order_id": order.ID.String()})
	}
	s.invalidatePlatformMetrics(ctx)
	return resp, nil
}

func (s *service) recheck(ctx context.Context, tt events.TicketType, journaled, qty int) error {
	ok, available, err := s.availability.CheckAvailability(ctx, tt.EventID, tt.ID, tt.Capacity, tt.Sold+journaled, qty)
	if err != nil {
		return fmt.Errorf("failed to check availability: %w", err)
	}
	if !ok {
		return apperror.New(apperror.KindInsufficientInventory, "not enough tickets available").
			WithDetail("ticket_type_id", tt.ID.String()).
			WithDetail("available", available)
	}
	return nil
}
