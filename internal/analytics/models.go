package analytics

import (
	"time"

	"boxoffice/internal/events"
	"boxoffice/internal/orders"
	"boxoffice/internal/shared/money"
	"boxoffice/internal/tickets"
	"boxoffice/internal/users"
)

// Complimentary allowance per event, by venue size
const (
	largeVenueCapacity        = 2500
	largeVenueComplimentaries = 330
	smallVenueComplimentaries = 5
)

// AllowedComplimentaries is the free complimentary quota an event adds to
// its organizer's pool.
func AllowedComplimentaries(capacity int) int {
	if capacity >= largeVenueCapacity {
		return largeVenueComplimentaries
	}
	return smallVenueComplimentaries
}

// Platform Models

// CurrencyTotals sums PAID orders of one currency. Amounts are minor units.
type CurrencyTotals struct {
	Currency        string `json:"currency"`
	Orders          int    `json:"orders"`
	Total           int64  `json:"total"`
	PlatformFee     int64  `json:"platform_fee"`
	OrganizerIncome int64  `json:"organizer_income"`
}

type OrganizerCounts struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Pending   int `json:"pending"`
	Suspended int `json:"suspended"`
}

type EventCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

type OrderCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Paid      int `json:"paid"`
	Cancelled int `json:"cancelled"`
	Refunded  int `json:"refunded"`

	// paid orders a provider reversed after their tickets were used
	RefundRequired int `json:"refund_required"`
}

type PlatformMetrics struct {
	Organizers  OrganizerCounts  `json:"organizers"`
	Events      EventCounts      `json:"events"`
	Orders      OrderCounts      `json:"orders"`
	Revenue     []CurrencyTotals `json:"revenue"`
	GeneratedAt time.Time        `json:"generated_at"`
}

type OrganizerSummary struct {
	ID                string        `json:"id"`
	Email             string        `json:"email"`
	FirstName         string        `json:"first_name"`
	LastName          string        `json:"last_name"`
	Status            users.Status  `json:"status"`
	FeePlan           money.FeePlan `json:"fee_plan"`
	ComplimentaryFee  int64         `json:"complimentary_fee"`
	ComplimentaryUsed int           `json:"complimentary_used"`
	Events            int           `json:"events,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Organizer Models

type ComplimentaryUsage struct {
	Used         int                       `json:"used"`
	TotalAllowed int                       `json:"total_allowed"`
	Remaining    int                       `json:"remaining"`
	Events       []EventComplimentaryQuota `json:"events,omitempty"`
}

type EventComplimentaryQuota struct {
	EventID  string `json:"event_id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Allowed  int    `json:"allowed"`
}

type OrganizerStats struct {
	TotalEvents  int              `json:"total_events"`
	ActiveEvents int              `json:"active_events"`
	PaidOrders   int              `json:"paid_orders"`
	Revenue      []CurrencyTotals `json:"revenue"`
}

type OrganizerDashboard struct {
	Organizer     OrganizerSummary   `json:"organizer"`
	Stats         OrganizerStats     `json:"stats"`
	Complimentary ComplimentaryUsage `json:"complimentary"`
}

type TicketTypeSales struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Currency  string `json:"currency"`
	Capacity  int    `json:"capacity"`
	Sold      int    `json:"sold"`
	Available int    `json:"available"`
	Revenue   int64  `json:"revenue"`
}

type EventSales struct {
	TicketsSold int              `json:"tickets_sold"`
	PaidOrders  int              `json:"paid_orders"`
	Revenue     []CurrencyTotals `json:"revenue"`
}

// Attendance rate is a percentage of capacity.
type EventAttendance struct {
	CheckedIn int     `json:"checked_in"`
	Capacity  int     `json:"capacity"`
	Rate      float64 `json:"rate"`
}

type EventMetrics struct {
	EventID     string             `json:"event_id"`
	Name        string             `json:"name"`
	Status      events.EventStatus `json:"status"`
	StartsAt    time.Time          `json:"starts_at"`
	Sales       EventSales         `json:"sales"`
	Attendance  EventAttendance    `json:"attendance"`
	TicketTypes []TicketTypeSales  `json:"ticket_types"`
}

type OrderSummary struct {
	ID            string               `json:"id"`
	Status        orders.Status        `json:"status"`
	Total         int64                `json:"total"`
	Currency      string               `json:"currency"`
	Quantity      int                  `json:"quantity"`
	BuyerEmail    string               `json:"buyer_email"`
	BuyerName     string               `json:"buyer_name"`
	Gateway       string               `json:"gateway,omitempty"`
	PaymentStatus orders.PaymentStatus `json:"payment_status,omitempty"`
	Complimentary bool                 `json:"complimentary"`
	CreatedAt     time.Time            `json:"created_at"`
	PaidAt        *time.Time           `json:"paid_at,omitempty"`
}

// OrderDetails is the admin view of one order and everything issued for it.
type OrderDetails struct {
	Order   orders.Order             `json:"order"`
	Tickets []tickets.TicketResponse `json:"tickets"`
}

type ComplimentaryResponse struct {
	OrderID   string                   `json:"order_id"`
	Quantity  int                      `json:"quantity"`
	FreeUsed  int                      `json:"free_used"`
	PaidExtra int                      `json:"paid_extra"`
	Charged   int64                    `json:"charged"`
	Currency  string                   `json:"currency"`
	Tickets   []tickets.TicketResponse `json:"tickets"`
}

type ResendResponse struct {
	OrderID string `json:"order_id"`
	Queued  bool   `json:"queued"`
}
