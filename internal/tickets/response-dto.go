package tickets

import "time"

type TicketResponse struct {
	ID           string     `json:"id"`
	OrderID      string     `json:"order_id"`
	EventID      string     `json:"event_id"`
	TicketTypeID string     `json:"ticket_type_id"`
	Code         string     `json:"code"`
	Status       Status     `json:"status"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
}

type CheckInResponse struct {
	Ticket      TicketResponse `json:"ticket"`
	CheckedInAt time.Time      `json:"checked_in_at"`
}

type TicketTypeAttendance struct {
	TicketTypeID string `json:"ticket_type_id"`
	Name         string `json:"name"`
	Issued       int    `json:"issued"`
	CheckedIn    int    `json:"checked_in"`
}

// AttendanceResponse reports door progress for one event. Rate is a
// percentage of issued tickets.
type AttendanceResponse struct {
	EventID      string                 `json:"event_id"`
	Issued       int                    `json:"issued"`
	CheckedIn    int                    `json:"checked_in"`
	NotArrived   int                    `json:"not_arrived"`
	Rate         float64                `json:"rate"`
	ByTicketType []TicketTypeAttendance `json:"by_ticket_type"`
}
