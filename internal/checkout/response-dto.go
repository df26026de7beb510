package checkout

import (
	"time"

	"boxoffice/internal/orders"
)

type SessionResponse struct {
	OrderID       string    `json:"order_id"`
	Total         int64     `json:"total"`
	Currency      string    `json:"currency"`
	ExpiresAt     time.Time `json:"expires_at"`
	ReservedUntil time.Time `json:"reserved_until"`
}

type OrderItemResponse struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
}

type PaymentResponse struct {
	Gateway     string               `json:"gateway"`
	Status      orders.PaymentStatus `json:"status"`
	CheckoutURL string               `json:"checkout_url,omitempty"`
}

type OrderResponse struct {
	ID            string              `json:"id"`
	EventID       string              `json:"event_id"`
	Status        orders.Status       `json:"status"`
	Total         int64               `json:"total"`
	Currency      string              `json:"currency"`
	ExpiresAt     time.Time           `json:"expires_at"`
	ReservedUntil time.Time           `json:"reserved_until"`
	HoldSeconds   *int64              `json:"hold_remaining_seconds,omitempty"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	CancelReason  string              `json:"cancel_reason,omitempty"`
	Items         []OrderItemResponse `json:"items"`
	Payment       *PaymentResponse    `json:"payment,omitempty"`
}

type PaymentStartResponse struct {
	OrderID       string    `json:"order_id"`
	Gateway       string    `json:"gateway"`
	PreferenceID  string    `json:"preference_id"`
	CheckoutURL   string    `json:"checkout_url"`
	ReservedUntil time.Time `json:"reserved_until"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func toOrderResponse(o *orders.Order) OrderResponse {
	resp := OrderResponse{
		ID:            o.ID.String(),
		EventID:       o.EventID.String(),
		Status:        o.Status,
		Total:         o.Total,
		Currency:      o.Currency,
		ExpiresAt:     o.ExpiresAt,
		ReservedUntil: o.ReservedUntil,
		PaidAt:        o.PaidAt,
		CancelReason:  o.CancelReason,
		Items:         make([]OrderItemResponse, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			TicketTypeID: item.TicketTypeID.String(),
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
		})
	}
	if o.Payment != nil {
		resp.Payment = &PaymentResponse{
			Gateway:     o.Payment.Gateway,
			Status:      o.Payment.Status,
			CheckoutURL: o.Payment.CheckoutURL,
		}
	}
	return resp
}
