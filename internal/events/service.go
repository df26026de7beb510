package events

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"boxoffice/internal/shared/apperror"
	"boxoffice/internal/shared/config"
	"boxoffice/internal/shared/constants"
	"boxoffice/internal/shared/money"
	"boxoffice/internal/users"
	"boxoffice/pkg/cache"
	"boxoffice/pkg/logger"

	"github.com/google/uuid"
)

type Service interface {
	// Service dependency injection
	SetCacheService(cacheService cache.Service)
	SetAvailabilityReader(reader AvailabilityReader)

	// Organizer operations
	CreateEvent(ctx context.Context, organizerID uuid.UUID, req CreateEventRequest) (*EventResponse, error)
	AddTicketType(ctx context.Context, actor Actor, eventID uuid.UUID, req CreateTicketTypeRequest) (*TicketTypeResponse, error)
	PublishEvent(ctx context.Context, actor Actor, eventID uuid.UUID) (*EventResponse, error)
	CancelEvent(ctx context.Context, actor Actor, eventID uuid.UUID) (*EventResponse, error)

	// Public catalog
	GetEvent(ctx context.Context, id uuid.UUID) (*EventResponse, error)
	ListEvents(ctx context.Context, query EventListQuery) (*PaginatedEvents, error)
}

// AvailabilityReader reports units held by in-flight checkouts.
type AvailabilityReader interface {
	LiveReservations(ctx context.Context, eventID, ticketTypeID uuid.UUID) (int, error)
}

// Actor is the authenticated caller of an organizer operation.
type Actor struct {
	ID   uuid.UUID
	Role users.Role
}

type service struct {
	repo         Repository
	cfg          *config.Config
	cacheService cache.Service
	availability AvailabilityReader
	log          *logger.Logger
}

func NewService(repo Repository, cfg *config.Config, log *logger.Logger) Service {
	return &service{
		repo: repo,
		cfg:  cfg,
		log:  logger.OrDefault(log).WithComponent("events"),
	}
}

// SetCacheService injects the cache service dependency
func (s *service) SetCacheService(cacheService cache.Service) {
	s.cacheService = cacheService
}

func (s *service) SetAvailabilityReader(reader AvailabilityReader) {
	s.availability = reader
}

func (s *service) setCache(ctx context.Context, key string, value interface{}) {
	if s.cacheService == nil {
		return
	}
	if err := s.cacheService.Set(ctx, key, value, constants.TTL_EVENT_DETAIL); err != nil {
		s.log.DebugWithContext(ctx, "event cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func (s *service) getCache(ctx context.Context, key string, dest interface{}) error {
	if s.cacheService == nil {
		return fmt.Errorf("cache service not available")
	}
	return s.cacheService.Get(ctx, key, dest)
}

func (s *service) invalidateEventCache(ctx context.Context, eventID uuid.UUID) {
	if s.cacheService == nil {
		return
	}
	if err := s.cacheService.Delete(ctx, constants.BuildEventDetailKey(eventID.String())); err != nil {
		s.log.DebugWithContext(ctx, "event cache invalidation failed", map[string]interface{}{"event_id": eventID.String(), "error": err.Error()})
	}
	if err := s.cacheService.DeletePattern(ctx, constants.PATTERN_INVALIDATE_EVENT_LIST); err != nil {
		s.log.DebugWithContext(ctx, "event list cache invalidation failed", map[string]interface{}{"error": err.Error()})
	}
}

// refreshInventory overwrites capacity and sold on a cached response with
// the stored counters. Settlement moves sold without touching the cache.
func (s *service) refreshInventory(ctx context.Context, eventID uuid.UUID, resp *EventResponse) error {
	counters, err := s.repo.GetInventory(ctx, eventID)
	if err != nil {
		return err
	}
	byID := make(map[string]TicketType, len(counters))
	for _, tt := range counters {
		byID[tt.ID.String()] = tt
	}
	for i := range resp.TicketTypes {
		if tt, ok := byID[resp.TicketTypes[i].ID]; ok {
			resp.TicketTypes[i].Capacity = tt.Capacity
			resp.TicketTypes[i].Sold = tt.Sold
		}
	}
	return nil
}

// populateAvailability subtracts live holds from each ticket type. Callers
// pass counters read from the store, not from the cache.
func (s *service) populateAvailability(ctx context.Context, resp *EventResponse) error {
	if s.availability == nil {
		return nil
	}
	eventID, err := uuid.Parse(resp.ID)
	if err != nil {
		return err
	}
	for i := range resp.TicketTypes {
		tt := &resp.TicketTypes[i]
		ttID, err := uuid.Parse(tt.ID)
		if err != nil {
			return err
		}
		live, err := s.availability.LiveReservations(ctx, eventID, ttID)
		if err != nil {
			return err
		}
		available := tt.Capacity - tt.Sold - live
		if available < 0 {
			available = 0
		}
		tt.Available = available
	}
	return nil
}

func (s *service) loadManaged(ctx context.Context, actor Actor, eventID uuid.UUID) (*Event, error) {
	event, err := s.repo.GetByID(ctx, eventID)
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

func (s *service) CreateEvent(ctx context.Context, organizerID uuid.UUID, req CreateEventRequest) (*EventResponse, error) {
	if req.EndsAt != nil && !req.EndsAt.After(req.StartsAt) {
		return nil, apperror.New(apperror.KindValidation, "ends_at must be after starts_at")
	}

	maxTickets := req.MaxTicketsPerPurchase
	if maxTickets == 0 {
		maxTickets = s.cfg.Checkout.DefaultMaxTicketsPerPurchase
	}

	event := &Event{
		OrganizerID:           organizerID,
		Name:                  strings.TrimSpace(req.Name),
		Description:           req.Description,
		Venue:                 strings.TrimSpace(req.Venue),
		StartsAt:              req.StartsAt.UTC(),
		EndsAt:                req.EndsAt,
		Status:                EventStatusDraft,
		MaxTicketsPerPurchase: maxTickets,
	}
	if event.EndsAt != nil {
		ends := event.EndsAt.UTC()
		event.EndsAt = &ends
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	resp := event.ToResponse()
	return &resp, nil
}

func (s *service) AddTicketType(ctx context.Context, actor Actor, eventID uuid.UUID, req CreateTicketTypeRequest) (*TicketTypeResponse, error) {
	event, err := s.loadManaged(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status == EventStatusCancelled {
		return nil, apperror.New(apperror.KindInvalidState, "event is cancelled")
	}

	ticketType := &TicketType{
		EventID:   eventID,
		Name:      strings.TrimSpace(req.Name),
		Capacity:  req.Capacity,
		UnitPrice: req.UnitPrice,
		Currency:  money.NormalizeCurrency(req.Currency),
	}
	if err := s.repo.CreateTicketType(ctx, ticketType); err != nil {
		return nil, fmt.Errorf("failed to create ticket type: %w", err)
	}

	s.invalidateEventCache(ctx, eventID)

	resp := ticketType.ToResponse()
	return &resp, nil
}

func (s *service) PublishEvent(ctx context.Context, actor Actor, eventID uuid.UUID) (*EventResponse, error) {
	event, err := s.loadManaged(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != EventStatusDraft {
		return nil, apperror.New(apperror.KindInvalidState, fmt.Sprintf("cannot publish a %s event", event.Status))
	}
	if len(event.TicketTypes) == 0 {
		return nil, apperror.New(apperror.KindInvalidState, "event has no ticket types")
	}

	return s.changeStatus(ctx, event, EventStatusPublished)
}

func (s *service) CancelEvent(ctx context.Context, actor Actor, eventID uuid.UUID) (*EventResponse, error) {
	event, err := s.loadManaged(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status == EventStatusCancelled {
		return nil, apperror.New(apperror.KindInvalidState, "event is already cancelled")
	}

	return s.changeStatus(ctx, event, EventStatusCancelled)
}

func (s *service) changeStatus(ctx context.Context, event *Event, status EventStatus) (*EventResponse, error) {
	if err := s.repo.UpdateStatus(ctx, event.ID, status); err != nil {
		return nil, fmt.Errorf("failed to update event status: %w", err)
	}
	event.Status = status
	s.invalidateEventCache(ctx, event.ID)

	s.log.InfoWithContext(ctx, "event status changed", map[string]interface{}{
		"event_id": event.ID.String(),
		"status":   string(status),
	})

	resp := event.ToResponse()
	return &resp, nil
}

// GetEvent returns a published or cancelled event. Drafts are invisible.
func (s *service) GetEvent(ctx context.Context, id uuid.UUID) (*EventResponse, error) {
	cacheKey := constants.BuildEventDetailKey(id.String())

	var resp EventResponse
	if err := s.getCache(ctx, cacheKey, &resp); err != nil {
		event, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrEventNotFound) {
				return nil, apperror.New(apperror.KindNotFound, "event not found")
			}
			return nil, fmt.Errorf("failed to get event: %w", err)
		}
		resp = event.ToResponse()
		s.setCache(ctx, cacheKey, resp)
	} else if err := s.refreshInventory(ctx, id, &resp); err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}

	if resp.Status == EventStatusDraft {
		return nil, apperror.New(apperror.KindNotFound, "event not found")
	}

	if err := s.populateAvailability(ctx, &resp); err != nil {
		return nil, fmt.Errorf("failed to read availability: %w", err)
	}
	return &resp, nil
}

func (s *service) ListEvents(ctx context.Context, query EventListQuery) (*PaginatedEvents, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 || query.Limit > 100 {
		query.Limit = 10
	}

	events, total, err := s.repo.ListPublished(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	result := &PaginatedEvents{
		Events:     make([]EventResponse, 0, len(events)),
		TotalCount: total,
		Page:       query.Page,
		Limit:      query.Limit,
		TotalPages: int(math.Ceil(float64(total) / float64(query.Limit))),
	}
	for i := range events {
		resp := events[i].ToResponse()
		if err := s.populateAvailability(ctx, &resp); err != nil {
			return nil, fmt.Errorf("failed to read availability: %w", err)
		}
		result.Events = append(result.Events, resp)
	}
	return result, nil
}
