package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"boxoffice/internal/events"
	"boxoffice/internal/ledger"
	"boxoffice/internal/orders"
	"boxoffice/internal/payments"
	"boxoffice/internal/shared/apperror"
	"boxoffice/internal/shared/clock"
	"boxoffice/internal/shared/config"
	"boxoffice/pkg/logger"

	"github.com/google/uuid"
)

type Service interface {
	CreateCheckoutSession(ctx context.Context, in SessionInput) (*SessionResponse, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, email string) (*OrderResponse, error)
	StartPayment(ctx context.Context, orderID uuid.UUID, req StartPaymentRequest) (*PaymentStartResponse, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, email string) (*OrderResponse, error)
}

// HoldLedger is the part of the availability ledger checkout drives.
type HoldLedger interface {
	CheckAvailability(ctx context.Context, eventID, ticketTypeID uuid.UUID, capacity, sold, qty int) (bool, int, error)
	Reserve(ctx context.Context, eventID, ticketTypeID uuid.UUID, qty int, orderID uuid.UUID) error
	Extend(ctx context.Context, orderID uuid.UUID) (bool, error)
	Release(ctx context.Context, orderID uuid.UUID) (int, error)
	RemainingTTL(ctx context.Context, orderID uuid.UUID) (time.Duration, error)
	HoldTTL() time.Duration
}

// PaymentStarter opens a payment with a provider.
type PaymentStarter interface {
	CreatePreference(ctx context.Context, gateway string, req payments.PreferenceRequest) (*payments.Preference, error)
}

// LineItem is one requested (ticket type, quantity) pair.
type LineItem struct {
	TicketTypeID uuid.UUID
	Quantity     int
}

// SessionInput is a validated checkout request.
type SessionInput struct {
	EventID   uuid.UUID
	Items     []LineItem
	Buyer     BuyerInfo
	IPAddress string
	UserAgent string
}

// PricedLine is an aggregated line resolved against its ticket type.
type PricedLine struct {
	TicketType events.TicketType
	Quantity   int
}

type service struct {
	repo      Repository
	orderRepo orders.Repository
	eventRepo events.Repository
	ledger    HoldLedger
	payments  PaymentStarter
	clock     clock.Clock
	checkout  config.CheckoutConfig
	log       *logger.Logger
}

func NewService(
	repo Repository,
	orderRepo orders.Repository,
	eventRepo events.Repository,
	holdLedger HoldLedger,
	starter PaymentStarter,
	clk clock.Clock,
	cfg config.CheckoutConfig,
	log *logger.Logger,
) Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &service{
		repo:      repo,
		orderRepo: orderRepo,
		eventRepo: eventRepo,
		ledger:    holdLedger,
		payments:  starter,
		clock:     clk,
		checkout:  cfg,
		log:       logger.OrDefault(log).WithComponent("checkout"),
	}
}

// aggregateItems sums quantities per ticket type, keeping first-seen order.
// The running total is checked against limit before each addition.
func aggregateItems(items []LineItem, limit int) ([]LineItem, error) {
	index := make(map[uuid.UUID]int, len(items))
	out := make([]LineItem, 0, len(items))
	total := 0
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, apperror.New(apperror.KindValidation, "quantity must be positive")
		}
		if item.Quantity > limit-total {
			return nil, apperror.New(apperror.KindLimitExceeded,
				fmt.Sprintf("at most %d tickets per purchase", limit)).
				WithDetail("max", limit)
		}
		total += item.Quantity
		if i, ok := index[item.TicketTypeID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.TicketTypeID] = len(out)
		out = append(out, item)
	}
	return out, nil
}

func insufficient(tt events.TicketType, available int) error {
	return apperror.New(apperror.KindInsufficientInventory,
		fmt.Sprintf("only %d tickets left for %s", available, tt.Name)).
		WithDetail("ticket_type_id", tt.ID.String()).
		WithDetail("available", available)
}

func (s *service) reject(ctx context.Context, eventID uuid.UUID, err error) error {
	s.log.LogCheckoutRejected(ctx, eventID.String(), string(apperror.KindOf(err)), err.Error())
	return err
}

func (s *service) CreateCheckoutSession(ctx context.Context, in SessionInput) (*SessionResponse, error) {
	now := s.clock.Now()

	// 1. event exists
	event, err := s.eventRepo.GetByID(ctx, in.EventID)
	if err != nil {
		if errors.Is(err, events.ErrEventNotFound) {
			return nil, s.reject(ctx, in.EventID, apperror.New(apperror.KindNotFound, "event not found"))
		}
		return nil, fmt.Errorf("failed to load event: %w", err)
	}

	// 2. purchasable
	if !event.IsPurchasable(now) {
		return nil, s.reject(ctx, in.EventID, apperror.New(apperror.KindInvalidState, "event is not on sale"))
	}

	// 3. per-purchase cap over aggregated quantities
	items, err := aggregateItems(in.Items, event.MaxTicketsPerPurchase)
	if err != nil {
		return nil, s.reject(ctx, in.EventID, err)
	}
	if len(items) == 0 {
		return nil, s.reject(ctx, in.EventID, apperror.New(apperror.KindValidation, "at least one item is required"))
	}

	// 4. every ticket type belongs to the event
	byID := make(map[uuid.UUID]events.TicketType, len(event.TicketTypes))
	for _, tt := range event.TicketTypes {
		byID[tt.ID] = tt
	}
	lines := make([]PricedLine, 0, len(items))
	for _, item := range items {
		tt, ok := byID[item.TicketTypeID]
		if !ok {
			return nil, s.reject(ctx, in.EventID, apperror.New(apperror.KindNotFound, "ticket type not found for event").
				WithDetail("ticket_type_id", item.TicketTypeID.String()))
		}
		lines = append(lines, PricedLine{TicketType: tt, Quantity: item.Quantity})
	}

	// 5. pre-flight availability
	for _, line := range lines {
		tt := line.TicketType
		ok, available, err := s.ledger.CheckAvailability(ctx, event.ID, tt.ID, tt.Capacity, tt.Sold, line.Quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to check availability: %w", err)
		}
		if !ok {
			return nil, s.reject(ctx, in.EventID, insufficient(tt, available))
		}
	}

	// 6. single currency and total
	currency := lines[0].TicketType.Currency
	var total int64
	for _, line := range lines {
		if line.TicketType.Currency != currency {
			return nil, s.reject(ctx, in.EventID, apperror.New(apperror.KindMixedCurrency, "all tickets in an order must share one currency").
				WithDetail("currencies", []string{currency, line.TicketType.Currency}))
		}
		total += line.TicketType.UnitPrice * int64(line.Quantity)
	}

	// 7. atomic unit of work with the double check
	holdTTL := s.ledger.HoldTTL()
	params := PendingOrderParams{
		EventID: event.ID,
		Buyer: orders.Buyer{
			Email:     in.Buyer.Email,
			FirstName: strings.TrimSpace(in.Buyer.FirstName),
			LastName:  strings.TrimSpace(in.Buyer.LastName),
			Phone:     strings.TrimSpace(in.Buyer.Phone),
		},
		Lines:         lines,
		Total:         total,
		Currency:      currency,
		Gateway:       s.checkout.DefaultGateway,
		ExpiresAt:     now.Add(s.checkout.SessionTTL),
		ReservedUntil: now.Add(holdTTL),
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		Now:           now,
	}
	order, err := s.repo.CreatePendingOrder(ctx, params, s.recheck)
	if err != nil {
		if errors.Is(err, errTicketTypeVanished) {
			return nil, s.reject(ctx, in.EventID, apperror.New(apperror.KindNotFound, "ticket type not found for event"))
		}
		if apperror.KindOf(err) != apperror.KindInternal {
			return nil, s.reject(ctx, in.EventID, err)
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	// 8. ledger holds outside the transaction; the journal covers failures
	s.applyHolds(ctx, order.ID, event.ID, lines)

	s.log.LogCheckoutCreated(ctx, order.ID.String(), event.ID.String(), order.Total, order.Currency)

	return &SessionResponse{
		OrderID:       order.ID.String(),
		Total:         order.Total,
		Currency:      order.Currency,
		ExpiresAt:     order.ExpiresAt,
		ReservedUntil: order.ReservedUntil,
	}, nil
}

// recheck is the availability check run under the ticket type row locks.
func (s *service) recheck(ctx context.Context, tt events.TicketType, journaled, qty int) error {
	ok, available, err := s.ledger.CheckAvailability(ctx, tt.EventID, tt.ID, tt.Capacity, tt.Sold+journaled, qty)
	if err != nil {
		return fmt.Errorf("failed to re-check availability: %w", err)
	}
	if !ok {
		return insufficient(tt, available)
	}
	return nil
}

// applyHolds reserves every line and marks the journal applied. A failure
// leaves the journal PENDING for the reconciliation applier.
func (s *service) applyHolds(ctx context.Context, orderID, eventID uuid.UUID, lines []PricedLine) {
	for _, line := range lines {
		if err := s.ledger.Reserve(ctx, eventID, line.TicketType.ID, line.Quantity, orderID); err != nil {
			s.log.LogHoldReserveFailed(ctx, orderID.String(), line.TicketType.ID.String(), err)
			return
		}
	}
	if err := s.orderRepo.MarkJournalApplied(ctx, orderID, s.clock.Now()); err != nil {
		s.log.ErrorWithContext(ctx, "failed to mark reservation journal applied", err, map[string]interface{}{
			"order_id": orderID.String(),
		})
	}
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, email string) (*OrderResponse, error) {
	order, err := s.loadOwnedOrder(ctx, orderID, email)
	if err != nil {
		return nil, err
	}

	resp := toOrderResponse(order)
	if order.Status == orders.StatusPending {
		remaining, err := s.ledger.RemainingTTL(ctx, order.ID)
		switch {
		case err == nil:
			secs := int64(remaining / time.Second)
			resp.HoldSeconds = &secs
		case errors.Is(err, ledger.ErrHoldNotFound):
			var zero int64
			resp.HoldSeconds = &zero
		default:
			return nil, fmt.Errorf("failed to read hold: %w", err)
		}
	}
	return &resp, nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*orders.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "order not found")
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}

// loadOwnedOrder hides orders whose buyer email does not match.
func (s *service) loadOwnedOrder(ctx context.Context, orderID uuid.UUID, email string) (*orders.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Buyer == nil || order.Buyer.Email != orders.NormalizeEmail(email) {
		return nil, apperror.New(apperror.KindNotFound, "order not found")
	}
	return order, nil
}

// StartPayment is called when the buyer is sent to the provider. It keeps
// the ledger hold alive for the payment window, re-reserving it when it has
// lapsed and the units are still free.
func (s *service) StartPayment(ctx context.Context, orderID uuid.UUID, req StartPaymentRequest) (*PaymentStartResponse, error) {
	order, err := s.loadOwnedOrder(ctx, orderID, req.Email)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if order.Status != orders.StatusPending {
		return nil, apperror.New(apperror.KindInvalidState, fmt.Sprintf("order is %s", order.Status))
	}
	if order.IsExpired(now) {
		return nil, apperror.New(apperror.KindInvalidState, "checkout session expired")
	}

	event, err := s.eventRepo.GetByID(ctx, order.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}

	if err := s.keepHold(ctx, order, now); err != nil {
		return nil, err
	}

	gateway := req.Gateway
	if gateway == "" {
		gateway = s.checkout.DefaultGateway
	}

	prefReq := payments.PreferenceRequest{
		OrderID:    order.ID,
		Title:      event.Name,
		Total:      order.Total,
		Currency:   order.Currency,
		BuyerEmail: order.Buyer.Email,
		BuyerName:  strings.TrimSpace(order.Buyer.FirstName + " " + order.Buyer.LastName),
		ExpiresAt:  order.ExpiresAt,
	}
	names := make(map[uuid.UUID]string, len(event.TicketTypes))
	for _, tt := range event.TicketTypes {
		names[tt.ID] = tt.Name
	}
	for _, item := range order.Items {
		prefReq.Items = append(prefReq.Items, payments.PreferenceItem{
			ID:        item.TicketTypeID.String(),
			Title:     event.Name + " - " + names[item.TicketTypeID],
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	pref, err := s.payments.CreatePreference(ctx, gateway, prefReq)
	if err != nil {
		if apperror.KindOf(err) != apperror.KindInternal {
			return nil, err
		}
		return nil, apperror.Wrap(apperror.KindUpstream, "payment provider unavailable", err)
	}

	if err := s.orderRepo.UpdatePaymentPreference(ctx, order.ID, gateway, pref.ID, pref.CheckoutURL); err != nil {
		return nil, fmt.Errorf("failed to record payment preference: %w", err)
	}

	reserved := now.Add(s.ledger.HoldTTL())
	return &PaymentStartResponse{
		OrderID:       order.ID.String(),
		Gateway:       gateway,
		PreferenceID:  pref.ID,
		CheckoutURL:   pref.CheckoutURL,
		ReservedUntil: reserved,
		ExpiresAt:     order.ExpiresAt,
	}, nil
}

// keepHold extends the order's hold. When the hold is gone its units are
// re-checked and re-promised under row locks, then reserved again. An order
// whose units went elsewhere is cancelled.
func (s *service) keepHold(ctx context.Context, order *orders.Order, now time.Time) error {
	extended, err := s.ledger.Extend(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to extend hold: %w", err)
	}

	reservedUntil := now.Add(s.ledger.HoldTTL())
	if extended {
		if err := s.orderRepo.UpdateReservedUntil(ctx, order.ID, reservedUntil); err != nil {
			return fmt.Errorf("failed to record hold extension: %w", err)
		}
		return s.orderRepo.RefreshJournal(ctx, order.ID, now, reservedUntil)
	}

	quantities := order.QuantitiesByTicketType()
	err = s.repo.RenewHold(ctx, RenewHoldParams{
		OrderID:       order.ID,
		EventID:       order.EventID,
		Quantities:    quantities,
		ReservedUntil: reservedUntil,
		Now:           now,
	}, s.recheck)
	switch {
	case err == nil:
	case errors.Is(err, errOrderNotPending):
		return apperror.New(apperror.KindInvalidState, "order is no longer pending")
	case errors.Is(err, errTicketTypeVanished):
		return apperror.New(apperror.KindNotFound, "ticket type not found for event")
	case apperror.KindOf(err) == apperror.KindInsufficientInventory:
		if _, cerr := s.orderRepo.Cancel(ctx, order.ID, orders.CancelReasonInsufficientInventory, now); cerr != nil {
			return fmt.Errorf("failed to cancel order: %w", cerr)
		}
		return err
	default:
		return fmt.Errorf("failed to renew hold: %w", err)
	}

	// The journal now promises the units; a failed reserve is left to the applier.
	for ttID, qty := range quantities {
		if err := s.ledger.Reserve(ctx, order.EventID, ttID, qty, order.ID); err != nil {
			s.log.LogHoldReserveFailed(ctx, order.ID.String(), ttID.String(), err)
			return fmt.Errorf("failed to reserve hold: %w", err)
		}
	}
	if err := s.orderRepo.MarkJournalApplied(ctx, order.ID, now); err != nil {
		s.log.ErrorWithContext(ctx, "failed to mark reservation journal applied", err, map[string]interface{}{
			"order_id": order.ID.String(),
		})
	}
	return nil
}

func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID, email string) (*OrderResponse, error) {
	order, err := s.loadOwnedOrder(ctx, orderID, email)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	cancelled, err := s.orderRepo.Cancel(ctx, order.ID, orders.CancelReasonBuyer, now)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	if !cancelled {
		return nil, apperror.New(apperror.KindInvalidState, fmt.Sprintf("order is %s", order.Status))
	}

	if _, err := s.ledger.Release(ctx, order.ID); err != nil {
		// the hold will lapse on its own
		s.log.ErrorWithContext(ctx, "failed to release hold", err, map[string]interface{}{"order_id": order.ID.String()})
	}

	order.Status = orders.StatusCancelled
	order.CancelReason = orders.CancelReasonBuyer
	resp := toOrderResponse(order)
	return &resp, nil
}
