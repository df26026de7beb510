package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boxoffice/internal/events"
	"boxoffice/internal/orders"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrEventNotFound  = errors.New("event not found")
)

type Repository interface {
	IssueForOrder(ctx context.Context, orderID uuid.UUID, now time.Time) ([]Ticket, bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Ticket, error)
	GetByCode(ctx context.Context, code string) (*Ticket, error)
	CheckIn(ctx context.Context, code string, staffID uuid.UUID, at time.Time) (bool, error)

	// Door reporting
	GetEventOwner(ctx context.Context, eventID uuid.UUID) (uuid.UUID, error)
	CountAttendance(ctx context.Context, eventID uuid.UUID) ([]AttendanceRow, error)
}

// AttendanceRow is the check-in tally of one ticket type.
type AttendanceRow struct {
	TicketTypeID uuid.UUID
	Name         string
	Issued       int
	CheckedIn    int
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// IssueForOrder creates one ticket per purchased unit. It is idempotent:
// when the order already has tickets they are returned with issued=false.
func (r *repository) IssueForOrder(ctx context.Context, orderID uuid.UUID, now time.Time) ([]Ticket, bool, error) {
	var issued []Ticket
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order orders.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").
			Where("id = ?", orderID).
			First(&order).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return orders.ErrOrderNotFound
			}
			return err
		}
		if order.Status != orders.StatusPaid {
			return fmt.Errorf("cannot issue tickets for %s order %s", order.Status, order.ID)
		}

		if err := tx.Where("order_id = ?", orderID).Order("created_at ASC").Find(&issued).Error; err != nil {
			return err
		}
		if len(issued) > 0 {
			return nil
		}

		for _, item := range order.Items {
			for i := 0; i < item.Quantity; i++ {
				issued = append(issued, Ticket{
					OrderID:      order.ID,
					OrderItemID:  item.ID,
					EventID:      order.EventID,
					TicketTypeID: item.TicketTypeID,
					Code:         NewCode(now),
					Status:       StatusValid,
				})
			}
		}
		if len(issued) == 0 {
			return nil
		}
		if err := tx.Create(&issued).Error; err != nil {
			return fmt.Errorf("failed to issue tickets: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return issued, created, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Ticket, error) {
	var tickets []Ticket
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&tickets).Error
	return tickets, err
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Ticket, error) {
	var ticket Ticket
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&ticket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

// CheckIn marks a VALID ticket as USED. It returns false when another
// scanner got there first or the ticket is no longer valid.
func (r *repository) CheckIn(ctx context.Context, code string, staffID uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&Ticket{}).
		Where("code = ? AND status = ?", code, StatusValid).
		Updates(map[string]interface{}{
			"status":        StatusUsed,
			"used_at":       at,
			"checked_in_by": staffID,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) GetEventOwner(ctx context.Context, eventID uuid.UUID) (uuid.UUID, error) {
	var event events.Event
	err := r.db.WithContext(ctx).Select("id", "organizer_id").Where("id = ?", eventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, ErrEventNotFound
		}
		return uuid.Nil, err
	}
	return event.OrganizerID, nil
}

// CountAttendance tallies live tickets per ticket type. Cancelled tickets
// are left out of both columns.
func (r *repository) CountAttendance(ctx context.Context, eventID uuid.UUID) ([]AttendanceRow, error) {
	var rows []AttendanceRow
	err := r.db.WithContext(ctx).
		Table("tickets").
		Select(`tickets.ticket_type_id AS ticket_type_id,
			COALESCE(ticket_types.name, '') AS name,
			COUNT(*) AS issued,
			SUM(CASE WHEN tickets.status = ? THEN 1 ELSE 0 END) AS checked_in`, StatusUsed).
		Joins("LEFT JOIN ticket_types ON ticket_types.id = tickets.ticket_type_id").
		Where("tickets.event_id = ? AND tickets.status <> ?", eventID, StatusCancelled).
		Group("tickets.ticket_type_id, ticket_types.name").
		Order("name ASC").
		Scan(&rows).Error
	return rows, err
}

// CancelForOrder voids every ticket of an order. Callers inside a
// transaction pass the transaction handle.
func CancelForOrder(db *gorm.DB, orderID uuid.UUID) error {
	return db.Model(&Ticket{}).
		Where("order_id = ? AND status <> ?", orderID, StatusCancelled).
		Update("status", StatusCancelled).Error
}
