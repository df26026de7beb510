package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"boxoffice/internal/orders"
	"boxoffice/internal/shared/clock"
	"boxoffice/internal/tickets"
	"boxoffice/pkg/logger"

	"github.com/google/uuid"
)

// TicketIssuer creates the tickets of a paid order, idempotently.
type TicketIssuer interface {
	IssueTickets(ctx context.Context, orderID uuid.UUID) ([]tickets.Ticket, bool, error)
}

type OrderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*orders.Order, error)
	MarkFulfilled(ctx context.Context, id uuid.UUID, at time.Time) error
}

type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n *Notification) error
}

// Processor fulfils one order: tickets, fulfilled stamp, confirmation.
type Processor struct {
	tickets   TicketIssuer
	orders    OrderStore
	publisher NotificationPublisher
	clock     clock.Clock
	log       *logger.Logger
}

func NewProcessor(issuer TicketIssuer, store OrderStore, publisher NotificationPublisher, clk clock.Clock, log *logger.Logger) *Processor {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Processor{
		tickets:   issuer,
		orders:    store,
		publisher: publisher,
		clock:     clk,
		log:       logger.OrDefault(log).WithComponent("fulfillment"),
	}
}

// Process is safe to run more than once for the same order. Orders that
// are already fulfilled, or no longer PAID, are skipped.
func (p *Processor) Process(ctx context.Context, job Job) error {
	order, err := p.orders.GetByID(ctx, job.OrderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			p.log.InfoWithContext(ctx, "fulfillment skipped for unknown order", map[string]interface{}{"order_id": job.OrderID.String()})
			return nil
		}
		return fmt.Errorf("failed to load order: %w", err)
	}
	if order.FulfilledAt != nil {
		return nil
	}
	if order.Status != orders.StatusPaid {
		p.log.InfoWithContext(ctx, "fulfillment skipped", map[string]interface{}{
			"order_id": order.ID.String(),
			"status":   string(order.Status),
		})
		return nil
	}

	issued, _, err := p.tickets.IssueTickets(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to issue tickets: %w", err)
	}

	now := p.clock.Now()
	if p.publisher != nil {
		n := &Notification{
			ID:        uuid.New(),
			Type:      NotificationOrderConfirmed,
			OrderID:   order.ID,
			EventID:   order.EventID,
			Total:     order.Total,
			Currency:  order.Currency,
			CreatedAt: now,
		}
		if order.Buyer != nil {
			n.BuyerEmail = order.Buyer.Email
			n.BuyerName = strings.TrimSpace(order.Buyer.FirstName + " " + order.Buyer.LastName)
		}
		for _, t := range issued {
			n.TicketCodes = append(n.TicketCodes, t.Code)
		}
		if err := p.publisher.PublishNotification(ctx, n); err != nil {
			return err
		}
	}

	if err := p.orders.MarkFulfilled(ctx, order.ID, now); err != nil {
		return fmt.Errorf("failed to mark order fulfilled: %w", err)
	}

	p.log.InfoWithContext(ctx, "order fulfilled", map[string]interface{}{
		"order_id": order.ID.String(),
		"tickets":  len(issued),
		"attempt":  job.Attempt,
	})
	return nil
}

// DirectQueue runs fulfillment in-process. It stands in for Kafka when the
// broker is disabled; reconciliation retries whatever fails here.
type DirectQueue struct {
	processor *Processor
	clock     clock.Clock
}

func NewDirectQueue(processor *Processor, clk clock.Clock) *DirectQueue {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &DirectQueue{processor: processor, clock: clk}
}

func (q *DirectQueue) Enqueue(ctx context.Context, orderID uuid.UUID) error {
	return q.processor.Process(ctx, Job{OrderID: orderID, EnqueuedAt: q.clock.Now()})
}

// LogPublisher records buyer notifications in the log when no broker is
// configured to carry them to the mailer.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: logger.OrDefault(log).WithComponent("notifications")}
}

func (p *LogPublisher) PublishNotification(ctx context.Context, n *Notification) error {
	p.log.InfoWithContext(ctx, "notification not delivered, broker disabled", map[string]interface{}{
		"type":     string(n.Type),
		"order_id": n.OrderID.String(),
		"tickets":  len(n.TicketCodes),
	})
	return nil
}
