package events

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Event struct {
	ID                    uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizerID           uuid.UUID   `json:"organizer_id" gorm:"type:uuid;index;not null"`
	Name                  string      `json:"name" gorm:"not null;size:255"`
	Description           string      `json:"description" gorm:"type:text"`
	Venue                 string      `json:"venue" gorm:"not null;size:255"`
	StartsAt              time.Time   `json:"starts_at" gorm:"not null"`
	EndsAt                *time.Time  `json:"ends_at"`
	Status                EventStatus `json:"status" gorm:"type:varchar(20);not null;default:'DRAFT'"`
	MaxTicketsPerPurchase int         `json:"max_tickets_per_purchase" gorm:"not null;default:10;check:max_tickets_per_purchase > 0"`

	TicketTypes []TicketType `json:"ticket_types,omitempty" gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE;"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TicketType is a purchasable admission category. Prices are minor units.
type TicketType struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	EventID   uuid.UUID `json:"event_id" gorm:"type:uuid;index;not null"`
	Name      string    `json:"name" gorm:"not null;size:120"`
	Capacity  int       `json:"capacity" gorm:"not null;check:capacity >= 0"`
	Sold      int       `json:"sold" gorm:"not null;default:0;check:sold >= 0;check:sold <= capacity"`
	UnitPrice int64     `json:"unit_price" gorm:"not null;check:unit_price >= 0"`
	Currency  string    `json:"currency" gorm:"type:varchar(3);not null"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Event) TableName() string {
	return "events"
}

func (TicketType) TableName() string {
	return "ticket_types"
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (tt *TicketType) BeforeCreate(tx *gorm.DB) error {
	if tt.ID == uuid.Nil {
		tt.ID = uuid.New()
	}
	return nil
}

// IsPurchasable reports whether tickets can be bought at now.
func (e *Event) IsPurchasable(now time.Time) bool {
	if e.Status != EventStatusPublished {
		return false
	}
	if e.EndsAt != nil && !e.EndsAt.After(now) {
		return false
	}
	return true
}

// Remaining is capacity minus durable sales; holds are not included.
func (tt *TicketType) Remaining() int {
	r := tt.Capacity - tt.Sold
	if r < 0 {
		return 0
	}
	return r
}

func (e *Event) ToResponse() EventResponse {
	resp := EventResponse{
		ID:                    e.ID.String(),
		OrganizerID:           e.OrganizerID.String(),
		Name:                  e.Name,
		Description:           e.Description,
		Venue:                 e.Venue,
		StartsAt:              e.StartsAt,
		EndsAt:                e.EndsAt,
		Status:                e.Status,
		MaxTicketsPerPurchase: e.MaxTicketsPerPurchase,
		TicketTypes:           make([]TicketTypeResponse, 0, len(e.TicketTypes)),
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
	}
	for i := range e.TicketTypes {
		resp.TicketTypes = append(resp.TicketTypes, e.TicketTypes[i].ToResponse())
	}
	return resp
}

// ToResponse leaves Available at the durable figure; the service subtracts live holds.
func (tt *TicketType) ToResponse() TicketTypeResponse {
	return TicketTypeResponse{
		ID:        tt.ID.String(),
		Name:      tt.Name,
		Capacity:  tt.Capacity,
		Sold:      tt.Sold,
		Available: tt.Remaining(),
		UnitPrice: tt.UnitPrice,
		Currency:  tt.Currency,
	}
}
