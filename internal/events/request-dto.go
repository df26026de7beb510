package events

import "time"

type CreateEventRequest struct {
	Name                  string     `json:"name" binding:"required,min=3,max=255"`
	Description           string     `json:"description" binding:"max=5000"`
	Venue                 string     `json:"venue" binding:"required,max=255"`
	StartsAt              time.Time  `json:"starts_at" binding:"required"`
	EndsAt                *time.Time `json:"ends_at"`
	MaxTicketsPerPurchase int        `json:"max_tickets_per_purchase" binding:"omitempty,min=1,max=100"`
}

type CreateTicketTypeRequest struct {
	Name      string `json:"name" binding:"required,min=1,max=120"`
	Capacity  int    `json:"capacity" binding:"required,min=1"`
	UnitPrice int64  `json:"unit_price" binding:"min=0"`
	Currency  string `json:"currency" binding:"required,len=3"`
}

// EventListQuery represents query parameters for listing events
type EventListQuery struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Search string `form:"search"`
}
