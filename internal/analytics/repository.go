package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boxoffice/internal/events"
	"boxoffice/internal/orders"
	"boxoffice/internal/tickets"
	"boxoffice/internal/users"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrOrganizerNotFound = errors.New("organizer not found")
	ErrEventNotFound     = errors.New("event not found")

	errTicketTypeNotFound = errors.New("ticket type not found")
	errOrganizerInactive  = errors.New("organizer is not active")
)

// InventoryCheck re-verifies a ticket type inside the issuing transaction.
// journaled is the quantity promised to checkouts whose holds have not
// reached the ledger yet.
type InventoryCheck func(ctx context.Context, tt events.TicketType, journaled, qty int) error

type ComplimentaryParams struct {
	EventID      uuid.UUID
	TicketTypeID uuid.UUID
	Quantity     int
	Buyer        orders.Buyer
	DefaultFee   int64
	Now          time.Time
}

// ComplimentaryGrant is what one issuance consumed from the organizer's pool.
type ComplimentaryGrant struct {
	Order     *orders.Order
	FreeUsed  int
	PaidExtra int
	Charged   int64
}

// FeePlanUpdate carries the organizer's new plan; nil resets a part to the
// platform default.
type FeePlanUpdate struct {
	PercentBps            *int64
	FixedMinor            *int64
	ComplimentaryFeeMinor *int64
}

type Repository interface {
	// Platform
	PlatformMetrics(ctx context.Context, now time.Time) (*PlatformMetrics, error)
	ListOrganizers(ctx context.Context, status users.Status, limit int) ([]OrganizerRow, error)
	GetOrganizer(ctx context.Context, id uuid.UUID) (*users.User, error)
	SetOrganizerStatus(ctx context.Context, id uuid.UUID, status users.Status) error
	SetFeePlan(ctx context.Context, id uuid.UUID, plan FeePlanUpdate) (*users.User, error)
	GetOrderDetails(ctx context.Context, orderID uuid.UUID) (*orders.Order, []tickets.Ticket, error)
	ResetFulfillment(ctx context.Context, orderID uuid.UUID) (bool, error)

	// Organizer
	OrganizerStats(ctx context.Context, organizerID uuid.UUID, now time.Time) (*OrganizerStats, error)
	ListOrganizerEvents(ctx context.Context, organizerID uuid.UUID) ([]events.Event, error)
	GetEvent(ctx context.Context, eventID uuid.UUID) (*events.Event, error)
	EventRevenue(ctx context.Context, eventID uuid.UUID) ([]CurrencyTotals, map[uuid.UUID]int64, error)
	CountCheckedIn(ctx context.Context, eventID uuid.UUID) (int, error)
	ListEventOrders(ctx context.Context, eventID uuid.UUID, limit int) ([]orders.Order, error)
	IssueComplimentary(ctx context.Context, params ComplimentaryParams, check InventoryCheck) (*ComplimentaryGrant, error)
}

// OrganizerRow is an organizer with the number of events they created.
type OrganizerRow struct {
	users.User
	EventCount int
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

type statusCount struct {
	Status string
	Count  int
}

// Platform Metrics Implementation

func (r *repository) PlatformMetrics(ctx context.Context, now time.Time) (*PlatformMetrics, error) {
	db := r.db.WithContext(ctx)
	metrics := &PlatformMetrics{GeneratedAt: now}

	var organizerCounts []statusCount
	err := db.Model(&users.User{}).
		Select("status, COUNT(*) AS count").
		Where("role = ?", users.RoleOrganizer).
		Group("status").
		Scan(&organizerCounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count organizers: %w", err)
	}
	for _, c := range organizerCounts {
		metrics.Organizers.Total += c.Count
		switch users.Status(c.Status) {
		case users.StatusActive:
			metrics.Organizers.Active = c.Count
		case users.StatusPending:
			metrics.Organizers.Pending = c.Count
		case users.StatusSuspended:
			metrics.Organizers.Suspended = c.Count
		}
	}

	var total, active int64
	if err := db.Model(&events.Event{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	if err := activeEvents(db.Model(&events.Event{}), now).Count(&active).Error; err != nil {
		return nil, fmt.Errorf("failed to count active events: %w", err)
	}
	metrics.Events = EventCounts{Total: int(total), Active: int(active)}

	var orderCounts []statusCount
	err = db.Model(&orders.Order{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&orderCounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	for _, c := range orderCounts {
		metrics.Orders.Total += c.Count
		switch orders.Status(c.Status) {
		case orders.StatusPending:
			metrics.Orders.Pending = c.Count
		case orders.StatusPaid:
			metrics.Orders.Paid = c.Count
		case orders.StatusCancelled:
			metrics.Orders.Cancelled = c.Count
		case orders.StatusRefunded:
			metrics.Orders.Refunded = c.Count
		}
	}

	var refundRequired int64
	if err := db.Model(&orders.Order{}).Where("refund_required = ?", true).Count(&refundRequired).Error; err != nil {
		return nil, fmt.Errorf("failed to count refunds: %w", err)
	}
	metrics.Orders.RefundRequired = int(refundRequired)

	revenue, err := sumPaid(db.Model(&orders.Order{}))
	if err != nil {
		return nil, err
	}
	metrics.Revenue = revenue
	return metrics, nil
}

// activeEvents narrows q to published events that have not ended.
func activeEvents(q *gorm.DB, now time.Time) *gorm.DB {
	return q.Where("events.status = ? AND (events.ends_at IS NULL OR events.ends_at >= ?)", events.EventStatusPublished, now)
}

// sumPaid totals the PAID orders selected by q, one row per currency.
func sumPaid(q *gorm.DB) ([]CurrencyTotals, error) {
	totals := []CurrencyTotals{}
	err := q.Select(`orders.currency AS currency,
			COUNT(*) AS orders,
			COALESCE(SUM(orders.total), 0) AS total,
			COALESCE(SUM(orders.platform_fee), 0) AS platform_fee,
			COALESCE(SUM(orders.organizer_income), 0) AS organizer_income`).
		Where("orders.status = ?", orders.StatusPaid).
		Group("orders.currency").
		Order("orders.currency").
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return totals, nil
}

func (r *repository) ListOrganizers(ctx context.Context, status users.Status, limit int) ([]OrganizerRow, error) {
	q := r.db.WithContext(ctx).
		Model(&users.User{}).
		Select("users.*, (SELECT COUNT(*) FROM events WHERE events.organizer_id = users.id) AS event_count").
		Where("users.role = ?", users.RoleOrganizer)
	if status != "" {
		q = q.Where("users.status = ?", status)
	}

	var rows []OrganizerRow
	err := q.Order("users.created_at DESC").Limit(limit).Scan(&rows).Error
	return rows, err
}

func (r *repository) GetOrganizer(ctx context.Context, id uuid.UUID) (*users.User, error) {
	var user users.User
	err := r.db.WithContext(ctx).Where("id = ? AND role = ?", id, users.RoleOrganizer).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrganizerNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) SetOrganizerStatus(ctx context.Context, id uuid.UUID, status users.Status) error {
	result := r.db.WithContext(ctx).
		Model(&users.User{}).
		Where("id = ? AND role = ?", id, users.RoleOrganizer).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrganizerNotFound
	}
	return nil
}

func (r *repository) SetFeePlan(ctx context.Context, id uuid.UUID, plan FeePlanUpdate) (*users.User, error) {
	result := r.db.WithContext(ctx).
		Model(&users.User{}).
		Where("id = ? AND role = ?", id, users.RoleOrganizer).
		Updates(map[string]interface{}{
			"fee_percent_bps":         plan.PercentBps,
			"fee_fixed_minor":         plan.FixedMinor,
			"complimentary_fee_minor": plan.ComplimentaryFeeMinor,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrOrganizerNotFound
	}
	return r.GetOrganizer(ctx, id)
}

func (r *repository) GetOrderDetails(ctx context.Context, orderID uuid.UUID) (*orders.Order, []tickets.Ticket, error) {
	var order orders.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payment").
		Preload("Buyer").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, orders.ErrOrderNotFound
		}
		return nil, nil, err
	}

	var issued []tickets.Ticket
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&issued).Error; err != nil {
		return nil, nil, err
	}
	return &order, issued, nil
}

// ResetFulfillment clears the fulfilled stamp of a PAID order so the
// fulfillment pipeline sends the confirmation again.
func (r *repository) ResetFulfillment(ctx context.Context, orderID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&orders.Order{}).
		Where("id = ? AND status = ?", orderID, orders.StatusPaid).
		Update("fulfilled_at", nil)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Organizer Metrics Implementation

func (r *repository) OrganizerStats(ctx context.Context, organizerID uuid.UUID, now time.Time) (*OrganizerStats, error) {
	db := r.db.WithContext(ctx)

	var total, active int64
	if err := db.Model(&events.Event{}).Where("organizer_id = ?", organizerID).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	err := activeEvents(db.Model(&events.Event{}).Where("organizer_id = ?", organizerID), now).Count(&active).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count active events: %w", err)
	}

	revenue, err := sumPaid(db.Model(&orders.Order{}).
		Joins("JOIN events ON events.id = orders.event_id").
		Where("events.organizer_id = ?", organizerID))
	if err != nil {
		return nil, err
	}

	stats := &OrganizerStats{TotalEvents: int(total), ActiveEvents: int(active), Revenue: revenue}
	for _, t := range revenue {
		stats.PaidOrders += t.Orders
	}
	return stats, nil
}

func (r *repository) ListOrganizerEvents(ctx context.Context, organizerID uuid.UUID) ([]events.Event, error) {
	var list []events.Event
	err := r.db.WithContext(ctx).
		Preload("TicketTypes").
		Where("organizer_id = ?", organizerID).
		Order("starts_at ASC").
		Find(&list).Error
	return list, err
}

func (r *repository) GetEvent(ctx context.Context, eventID uuid.UUID) (*events.Event, error) {
	var event events.Event
	err := r.db.WithContext(ctx).
		Preload("TicketTypes", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ?", eventID).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

// EventRevenue sums the event's PAID orders per currency and the paid
// line value per ticket type.
func (r *repository) EventRevenue(ctx context.Context, eventID uuid.UUID) ([]CurrencyTotals, map[uuid.UUID]int64, error) {
	db := r.db.WithContext(ctx)

	totals, err := sumPaid(db.Model(&orders.Order{}).Where("orders.event_id = ?", eventID))
	if err != nil {
		return nil, nil, err
	}

	var lines []struct {
		TicketTypeID uuid.UUID
		Revenue      int64
	}
	err = db.Model(&orders.OrderItem{}).
		Select("order_items.ticket_type_id AS ticket_type_id, COALESCE(SUM(order_items.quantity * order_items.unit_price), 0) AS revenue").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.event_id = ? AND orders.status = ?", eventID, orders.StatusPaid).
		Group("order_items.ticket_type_id").
		Scan(&lines).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sum ticket type revenue: %w", err)
	}

	byType := make(map[uuid.UUID]int64, len(lines))
	for _, line := range lines {
		byType[line.TicketTypeID] = line.Revenue
	}
	return totals, byType, nil
}

func (r *repository) CountCheckedIn(ctx context.Context, eventID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&tickets.Ticket{}).
		Where("event_id = ? AND status = ?", eventID, tickets.StatusUsed).
		Count(&count).Error
	return int(count), err
}

func (r *repository) ListEventOrders(ctx context.Context, eventID uuid.UUID, limit int) ([]orders.Order, error) {
	var list []orders.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payment").
		Preload("Buyer").
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

// IssueComplimentary writes a PAID zero-price order for the requested
// units. The organizer row is locked first so concurrent issuances draw
// from the allowance one at a time, then the ticket type is locked and
// re-checked against sales, journaled checkouts and live holds.
func (r *repository) IssueComplimentary(ctx context.Context, params ComplimentaryParams, check InventoryCheck) (*ComplimentaryGrant, error) {
	var grant *ComplimentaryGrant

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event events.Event
		if err := tx.Select("id", "organizer_id").Where("id = ?", params.EventID).First(&event).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return fmt.Errorf("failed to load event: %w", err)
		}

		var organizer users.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", event.OrganizerID).
			First(&organizer).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrganizerNotFound
			}
			return fmt.Errorf("failed to lock organizer: %w", err)
		}
		if organizer.Status != users.StatusActive {
			return errOrganizerInactive
		}

		var tt events.TicketType
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND event_id = ?", params.TicketTypeID, params.EventID).
			First(&tt).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errTicketTypeNotFound
			}
			return fmt.Errorf("failed to lock ticket type: %w", err)
		}

		journaled, err := orders.PendingJournalQuantity(tx, tt.ID, params.Now)
		if err != nil {
			return fmt.Errorf("failed to read reservation journal: %w", err)
		}
		if err := check(ctx, tt, journaled, params.Quantity); err != nil {
			return err
		}

		allowed, err := allowanceOf(tx, organizer.ID)
		if err != nil {
			return err
		}
		free := allowed - organizer.ComplimentaryUsed
		if free < 0 {
			free = 0
		}
		if free > params.Quantity {
			free = params.Quantity
		}
		extra := params.Quantity - free
		charged := int64(extra) * organizer.ComplimentaryFee(params.DefaultFee)

		buyer, err := orders.UpsertBuyer(tx, params.Buyer)
		if err != nil {
			return err
		}

		paidAt := params.Now
		order := &orders.Order{
			EventID:       params.EventID,
			BuyerID:       buyer.ID,
			Status:        orders.StatusPaid,
			Total:         charged,
			Currency:      tt.Currency,
			PlatformFee:   charged,
			ExpiresAt:     params.Now,
			ReservedUntil: params.Now,
			PaidAt:        &paidAt,
			Complimentary: true,
			Items: []orders.OrderItem{{
				TicketTypeID: tt.ID,
				Quantity:     params.Quantity,
				UnitPrice:    0,
			}},
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		err = tx.Model(&events.TicketType{}).
			Where("id = ?", tt.ID).
			Update("sold", gorm.Expr("sold + ?", params.Quantity)).Error
		if err != nil {
			return fmt.Errorf("failed to increment sold: %w", err)
		}
		err = tx.Model(&users.User{}).
			Where("id = ?", organizer.ID).
			Update("complimentary_used", gorm.Expr("complimentary_used + ?", params.Quantity)).Error
		if err != nil {
			return fmt.Errorf("failed to record complimentary usage: %w", err)
		}

		order.Buyer = buyer
		grant = &ComplimentaryGrant{Order: order, FreeUsed: free, PaidExtra: extra, Charged: charged}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// allowanceOf sums the free complimentary quota of an organizer's events.
// Cancelled events add nothing.
func allowanceOf(tx *gorm.DB, organizerID uuid.UUID) (int, error) {
	var capacities []struct {
		EventID  uuid.UUID
		Capacity int
	}
	err := tx.Model(&events.Event{}).
		Select("events.id AS event_id, COALESCE(SUM(ticket_types.capacity), 0) AS capacity").
		Joins("LEFT JOIN ticket_types ON ticket_types.event_id = events.id").
		Where("events.organizer_id = ? AND events.status <> ?", organizerID, events.EventStatusCancelled).
		Group("events.id").
		Scan(&capacities).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read event capacities: %w", err)
	}

	allowed := 0
	for _, c := range capacities {
		allowed += AllowedComplimentaries(c.Capacity)
	}
	return allowed, nil
}
