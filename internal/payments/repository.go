package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"boxoffice/internal/events"
	"boxoffice/internal/orders"
	"boxoffice/internal/shared/money"
	"boxoffice/internal/tickets"
	"boxoffice/internal/users"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettlementInput is a verified, authoritative provider outcome for one order.
type SettlementInput struct {
	WebhookLogID   uuid.UUID
	Gateway        string
	OrderID        uuid.UUID
	Provider       ProviderPayment
	Mapping        StatusMapping
	DefaultFeePlan money.FeePlan
	Now            time.Time
}

// SettlementResult describes what ApplySettlement did.
type SettlementResult struct {
	Outcome             Outcome
	OrderID             uuid.UUID
	OrderStatusBefore   orders.Status
	OrderStatusAfter    orders.Status
	PaymentStatusBefore orders.PaymentStatus
	PaymentStatusAfter  orders.PaymentStatus
	Detail              string
}

type Repository interface {
	CreateWebhookLog(ctx context.Context, log *WebhookLog) error
	AppendSettlementLog(ctx context.Context, log *SettlementLog) error
	ApplySettlement(ctx context.Context, in SettlementInput) (*SettlementResult, error)
	ListWebhookLogs(ctx context.Context, orderID uuid.UUID) ([]WebhookLog, error)
	ListSettlementLogs(ctx context.Context, orderID uuid.UUID) ([]SettlementLog, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateWebhookLog(ctx context.Context, log *WebhookLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *repository) AppendSettlementLog(ctx context.Context, log *SettlementLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *repository) ListWebhookLogs(ctx context.Context, orderID uuid.UUID) ([]WebhookLog, error) {
	var logs []WebhookLog
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("received_at ASC").
		Find(&logs).Error
	return logs, err
}

func (r *repository) ListSettlementLogs(ctx context.Context, orderID uuid.UUID) ([]SettlementLog, error) {
	var logs []SettlementLog
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

// ApplySettlement runs the whole transition for one notification in a single
// transaction: order and payment rows are locked, the state machine decides,
// inventory and fees are written and the settlement log row is appended.
// Ledger and queue side effects are left to the caller after commit.
func (r *repository) ApplySettlement(ctx context.Context, in SettlementInput) (*SettlementResult, error) {
	res := &SettlementResult{OrderID: in.OrderID}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order orders.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").
			Where("id = ?", in.OrderID).
			First(&order).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				res.Outcome = OutcomeOrderNotFound
				res.Detail = "no order for external reference"
				return appendLog(tx, in, res, nil)
			}
			return fmt.Errorf("failed to lock order: %w", err)
		}

		var payment orders.Payment
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ?", order.ID).
			First(&payment).Error
		if err != nil {
			return fmt.Errorf("failed to lock payment: %w", err)
		}

		res.OrderStatusBefore, res.OrderStatusAfter = order.Status, order.Status
		res.PaymentStatusBefore, res.PaymentStatusAfter = payment.Status, payment.Status

		switch {
		case payment.Status.IsTerminal():
			if in.Mapping.Reversal && payment.Status == orders.PaymentCompleted && order.Status == orders.StatusPaid {
				err = refund(tx, &order, in, res)
			} else {
				res.Outcome = OutcomeDuplicate
				res.Detail = fmt.Sprintf("payment already %s", payment.Status)
			}
		case order.Status != orders.StatusPending:
			res.Outcome = OutcomeInvalidState
			res.Detail = fmt.Sprintf("order is %s", order.Status)
		default:
			switch in.Mapping.Status {
			case orders.PaymentPending:
				err = recordPending(tx, &payment, in, res)
			case orders.PaymentCompleted:
				err = complete(tx, &order, &payment, in, res)
			case orders.PaymentFailed:
				err = fail(tx, &order, &payment, in, res)
			default:
				res.Outcome = OutcomeUnmapped
			}
		}
		if err != nil {
			return err
		}
		return appendLog(tx, in, res, &payment.ID)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func appendLog(tx *gorm.DB, in SettlementInput, res *SettlementResult, paymentID *uuid.UUID) error {
	entry := &SettlementLog{
		WebhookLogID:        in.WebhookLogID,
		Gateway:             in.Gateway,
		Outcome:             res.Outcome,
		PaymentID:           paymentID,
		ProviderPaymentID:   in.Provider.ID,
		ProviderStatus:      in.Provider.Status,
		MappedStatus:        string(in.Mapping.Status),
		OrderStatusBefore:   string(res.OrderStatusBefore),
		OrderStatusAfter:    string(res.OrderStatusAfter),
		PaymentStatusBefore: string(res.PaymentStatusBefore),
		PaymentStatusAfter:  string(res.PaymentStatusAfter),
		Detail:              res.Detail,
		CreatedAt:           in.Now,
	}
	if res.Outcome != OutcomeOrderNotFound {
		orderID := in.OrderID
		entry.OrderID = &orderID
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append settlement log: %w", err)
	}
	return nil
}

func recordPending(tx *gorm.DB, payment *orders.Payment, in SettlementInput, res *SettlementResult) error {
	err := tx.Model(payment).Updates(map[string]interface{}{
		"gateway_transaction_id": in.Provider.ID,
		"provider_status":        in.Provider.Status,
		"updated_at":             in.Now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to record pending payment: %w", err)
	}
	res.Outcome = OutcomePending
	return nil
}

// lockTicketTypes locks the order's ticket types in id order.
func lockTicketTypes(tx *gorm.DB, quantities map[uuid.UUID]int) (map[uuid.UUID]events.TicketType, error) {
	ids := make([]uuid.UUID, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var locked []events.TicketType
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&locked).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock ticket types: %w", err)
	}
	out := make(map[uuid.UUID]events.TicketType, len(locked))
	for _, tt := range locked {
		out[tt.ID] = tt
	}
	return out, nil
}

// feePlanFor resolves the organizer's plan, falling back to def.
func feePlanFor(tx *gorm.DB, eventID uuid.UUID, def money.FeePlan) (money.FeePlan, error) {
	var event events.Event
	if err := tx.Select("id", "organizer_id").Where("id = ?", eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return def, nil
		}
		return def, fmt.Errorf("failed to load event: %w", err)
	}
	var organizer users.User
	if err := tx.Where("id = ?", event.OrganizerID).First(&organizer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return def, nil
		}
		return def, fmt.Errorf("failed to load organizer: %w", err)
	}
	return organizer.FeePlan(def), nil
}

func complete(tx *gorm.DB, order *orders.Order, payment *orders.Payment, in SettlementInput, res *SettlementResult) error {
	if in.Provider.Currency != "" && (in.Provider.Amount != payment.Amount || in.Provider.Currency != payment.Currency) {
		res.Outcome = OutcomeAmountMismatch
		res.Detail = fmt.Sprintf("provider reported %d %s, expected %d %s",
			in.Provider.Amount, in.Provider.Currency, payment.Amount, payment.Currency)
		return nil
	}

	quantities := order.QuantitiesByTicketType()
	locked, err := lockTicketTypes(tx, quantities)
	if err != nil {
		return err
	}

	oversold := ""
	for id, qty := range quantities {
		tt, ok := locked[id]
		if !ok || tt.Sold+qty > tt.Capacity {
			oversold = id.String()
			break
		}
	}

	paymentUpdates := map[string]interface{}{
		"status":                 orders.PaymentCompleted,
		"gateway_transaction_id": in.Provider.ID,
		"provider_status":        in.Provider.Status,
		"processed_at":           in.Now,
		"updated_at":             in.Now,
	}

	if oversold != "" {
		// The money was taken but the units went elsewhere.
		err := tx.Model(order).Updates(map[string]interface{}{
			"status":          orders.StatusCancelled,
			"cancelled_at":    in.Now,
			"cancel_reason":   orders.CancelReasonOversold,
			"refund_required": true,
			"updated_at":      in.Now,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to cancel oversold order: %w", err)
		}
		if err := tx.Model(payment).Updates(paymentUpdates).Error; err != nil {
			return fmt.Errorf("failed to complete payment: %w", err)
		}
		if err := orders.ReleaseJournal(tx, order.ID); err != nil {
			return fmt.Errorf("failed to release journal: %w", err)
		}
		res.Outcome = OutcomeOversold
		res.Detail = "ticket type " + oversold + " sold out before settlement"
		res.OrderStatusAfter = orders.StatusCancelled
		res.PaymentStatusAfter = orders.PaymentCompleted
		return nil
	}

	for id, qty := range quantities {
		err := tx.Model(&events.TicketType{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"sold":       gorm.Expr("sold + ?", qty),
				"updated_at": in.Now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to record sale: %w", err)
		}
	}

	plan, err := feePlanFor(tx, order.EventID, in.DefaultFeePlan)
	if err != nil {
		return err
	}
	fee, income := money.ComputeFees(order.Total, plan)

	err = tx.Model(order).Updates(map[string]interface{}{
		"status":           orders.StatusPaid,
		"paid_at":          in.Now,
		"platform_fee":     fee,
		"organizer_income": income,
		"updated_at":       in.Now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}
	if err := tx.Model(payment).Updates(paymentUpdates).Error; err != nil {
		return fmt.Errorf("failed to complete payment: %w", err)
	}
	if err := orders.ReleaseJournal(tx, order.ID); err != nil {
		return fmt.Errorf("failed to release journal: %w", err)
	}

	res.Outcome = OutcomePaid
	res.OrderStatusAfter = orders.StatusPaid
	res.PaymentStatusAfter = orders.PaymentCompleted
	return nil
}

func fail(tx *gorm.DB, order *orders.Order, payment *orders.Payment, in SettlementInput, res *SettlementResult) error {
	err := tx.Model(payment).Updates(map[string]interface{}{
		"status":                 orders.PaymentFailed,
		"gateway_transaction_id": in.Provider.ID,
		"provider_status":        in.Provider.Status,
		"failure_reason":         "provider reported " + in.Provider.Status,
		"processed_at":           in.Now,
		"updated_at":             in.Now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to fail payment: %w", err)
	}
	err = tx.Model(order).Updates(map[string]interface{}{
		"status":        orders.StatusCancelled,
		"cancelled_at":  in.Now,
		"cancel_reason": orders.CancelReasonPaymentFailed,
		"updated_at":    in.Now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	if err := orders.ReleaseJournal(tx, order.ID); err != nil {
		return fmt.Errorf("failed to release journal: %w", err)
	}

	res.Outcome = OutcomeCancelled
	res.OrderStatusAfter = orders.StatusCancelled
	res.PaymentStatusAfter = orders.PaymentFailed
	return nil
}

// refund reverses a paid order: tickets are voided and the units return to sale.
func refund(tx *gorm.DB, order *orders.Order, in SettlementInput, res *SettlementResult) error {
	quantities := order.QuantitiesByTicketType()
	if _, err := lockTicketTypes(tx, quantities); err != nil {
		return err
	}
	for id, qty := range quantities {
		err := tx.Model(&events.TicketType{}).
			Where("id = ? AND sold >= ?", id, qty).
			Updates(map[string]interface{}{
				"sold":       gorm.Expr("sold - ?", qty),
				"updated_at": in.Now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to return units: %w", err)
		}
	}

	err := tx.Model(order).Updates(map[string]interface{}{
		"status":      orders.StatusRefunded,
		"refunded_at": in.Now,
		"updated_at":  in.Now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to refund order: %w", err)
	}
	err = tx.Model(&orders.Payment{}).
		Where("order_id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":          orders.PaymentRefunded,
			"provider_status": in.Provider.Status,
			"updated_at":      in.Now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to refund payment: %w", err)
	}
	if err := tickets.CancelForOrder(tx, order.ID); err != nil {
		return fmt.Errorf("failed to cancel tickets: %w", err)
	}

	res.Outcome = OutcomeRefunded
	res.OrderStatusAfter = orders.StatusRefunded
	res.PaymentStatusAfter = orders.PaymentRefunded
	return nil
}
