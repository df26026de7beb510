package events

import "time"

type EventResponse struct {
	ID                    string               `json:"id"`
	OrganizerID           string               `json:"organizer_id"`
	Name                  string               `json:"name"`
	Description           string               `json:"description"`
	Venue                 string               `json:"venue"`
	StartsAt              time.Time            `json:"starts_at"`
	EndsAt                *time.Time           `json:"ends_at,omitempty"`
	Status                EventStatus          `json:"status"`
	MaxTicketsPerPurchase int                  `json:"max_tickets_per_purchase"`
	TicketTypes           []TicketTypeResponse `json:"ticket_types"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// TicketTypeResponse carries Available computed at read time from sales and live holds.
type TicketTypeResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	Sold      int    `json:"sold"`
	Available int    `json:"available"`
	UnitPrice int64  `json:"unit_price"`
	Currency  string `json:"currency"`
}

type PaginatedEvents struct {
	Events     []EventResponse `json:"events"`
	TotalCount int64           `json:"total_count"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"total_pages"`
}
