package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"boxoffice/internal/events"
	"boxoffice/internal/orders"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errTicketTypeVanished = errors.New("ticket type no longer exists")
	errOrderNotPending    = errors.New("order is no longer pending")
)

// InventoryCheck re-verifies one line inside the order transaction.
// journaled is the quantity already promised by orders whose holds have not
// reached the ledger yet.
type InventoryCheck func(ctx context.Context, tt events.TicketType, journaled, qty int) error

// PendingOrderParams is everything needed to write a PENDING order.
type PendingOrderParams struct {
	EventID       uuid.UUID
	Buyer         orders.Buyer
	Lines         []PricedLine
	Total         int64
	Currency      string
	Gateway       string
	ExpiresAt     time.Time
	ReservedUntil time.Time
	IPAddress     string
	UserAgent     string
	Now           time.Time
}

// RenewHoldParams describes a lapsed hold to re-create for a PENDING order.
type RenewHoldParams struct {
	OrderID       uuid.UUID
	EventID       uuid.UUID
	Quantities    map[uuid.UUID]int
	ReservedUntil time.Time
	Now           time.Time
}

type Repository interface {
	CreatePendingOrder(ctx context.Context, params PendingOrderParams, check InventoryCheck) (*orders.Order, error)
	RenewHold(ctx context.Context, params RenewHoldParams, check InventoryCheck) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// CreatePendingOrder writes buyer, order, items, payment intent and the
// reservation journal in one transaction. Ticket type rows are locked in id
// order before the re-check so concurrent checkouts for the same type
// serialize here.
func (r *repository) CreatePendingOrder(ctx context.Context, params PendingOrderParams, check InventoryCheck) (*orders.Order, error) {
	var created *orders.Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]uuid.UUID, 0, len(params.Lines))
		for _, line := range params.Lines {
			ids = append(ids, line.TicketType.ID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

		var locked []events.TicketType
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("event_id = ? AND id IN ?", params.EventID, ids).
			Order("id").
			Find(&locked).Error
		if err != nil {
			return fmt.Errorf("failed to lock ticket types: %w", err)
		}

		current := make(map[uuid.UUID]events.TicketType, len(locked))
		for _, tt := range locked {
			current[tt.ID] = tt
		}

		// Journal first, ledger second (inside check): a hold in transit
		// is always visible in at least one of them.
		for _, line := range params.Lines {
			tt, ok := current[line.TicketType.ID]
			if !ok {
				return errTicketTypeVanished
			}
			journaled, err := orders.PendingJournalQuantity(tx, tt.ID, params.Now)
			if err != nil {
				return fmt.Errorf("failed to read reservation journal: %w", err)
			}
			if err := check(ctx, tt, journaled, line.Quantity); err != nil {
				return err
			}
		}

		buyer, err := orders.UpsertBuyer(tx, params.Buyer)
		if err != nil {
			return err
		}

		order := &orders.Order{
			EventID:       params.EventID,
			BuyerID:       buyer.ID,
			Status:        orders.StatusPending,
			Total:         params.Total,
			Currency:      params.Currency,
			ExpiresAt:     params.ExpiresAt,
			ReservedUntil: params.ReservedUntil,
			IPAddress:     params.IPAddress,
			UserAgent:     params.UserAgent,
			Payment: &orders.Payment{
				Gateway:  params.Gateway,
				Status:   orders.PaymentPending,
				Amount:   params.Total,
				Currency: params.Currency,
			},
		}
		for _, line := range params.Lines {
			order.Items = append(order.Items, orders.OrderItem{
				TicketTypeID: line.TicketType.ID,
				Quantity:     line.Quantity,
				UnitPrice:    line.TicketType.UnitPrice,
			})
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		journal := make([]orders.ReservationJournal, 0, len(params.Lines))
		for _, line := range params.Lines {
			journal = append(journal, orders.ReservationJournal{
				OrderID:       order.ID,
				EventID:       params.EventID,
				TicketTypeID:  line.TicketType.ID,
				Quantity:      line.Quantity,
				Status:        orders.JournalPending,
				HoldExpiresAt: params.ReservedUntil,
			})
		}
		if err := tx.Create(&journal).Error; err != nil {
			return fmt.Errorf("failed to write reservation journal: %w", err)
		}

		order.Buyer = buyer
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RenewHold re-checks and re-promises the units of an order whose ledger
// hold is gone. The order row and then its ticket types are locked, the
// order's journal entries go back to PENDING with the new window and the
// caller reserves in the ledger after commit. Concurrent renewals and new
// checkouts for the same ticket types serialize on the row locks and see
// each other's journal entries.
func (r *repository) RenewHold(ctx context.Context, params RenewHoldParams, check InventoryCheck) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order orders.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND status = ?", params.OrderID, orders.StatusPending).
			First(&order).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errOrderNotPending
			}
			return fmt.Errorf("failed to lock order: %w", err)
		}

		ids := make([]uuid.UUID, 0, len(params.Quantities))
		for id := range params.Quantities {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

		var locked []events.TicketType
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("event_id = ? AND id IN ?", params.EventID, ids).
			Order("id").
			Find(&locked).Error
		if err != nil {
			return fmt.Errorf("failed to lock ticket types: %w", err)
		}
		current := make(map[uuid.UUID]events.TicketType, len(locked))
		for _, tt := range locked {
			current[tt.ID] = tt
		}

		for _, id := range ids {
			tt, ok := current[id]
			if !ok {
				return errTicketTypeVanished
			}
			journaled, err := orders.OtherPendingJournalQuantity(tx, tt.ID, params.OrderID, params.Now)
			if err != nil {
				return fmt.Errorf("failed to read reservation journal: %w", err)
			}
			if err := check(ctx, tt, journaled, params.Quantities[id]); err != nil {
				return err
			}
		}

		if err := orders.ReopenJournal(tx, params.OrderID, params.ReservedUntil); err != nil {
			return fmt.Errorf("failed to reopen reservation journal: %w", err)
		}
		return tx.Model(&orders.Order{}).
			Where("id = ?", params.OrderID).
			Update("reserved_until", params.ReservedUntil).Error
	})
}

