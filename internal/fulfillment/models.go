package fulfillment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job asks a worker to fulfil one paid order.
type Job struct {
	OrderID    uuid.UUID `json:"order_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type NotificationType string

const (
	NotificationOrderConfirmed NotificationType = "ORDER_CONFIRMED"
)

// Notification is handed to the external mailer through the notification topic.
type Notification struct {
	ID          uuid.UUID        `json:"id"`
	Type        NotificationType `json:"type"`
	OrderID     uuid.UUID        `json:"order_id"`
	EventID     uuid.UUID        `json:"event_id"`
	BuyerEmail  string           `json:"buyer_email"`
	BuyerName   string           `json:"buyer_name"`
	Total       int64            `json:"total"`
	Currency    string           `json:"currency"`
	TicketCodes []string         `json:"ticket_codes"`
	CreatedAt   time.Time        `json:"created_at"`
}

func (n *Notification) ToJSON() ([]byte, error) {
	return json.Marshal(n)
}

// PartitionKey keeps every message about one order on one partition.
func (n *Notification) PartitionKey() string {
	return n.OrderID.String()
}
