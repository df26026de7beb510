package tickets

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusValid     Status = "VALID"
	StatusUsed      Status = "USED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusValid, StatusUsed, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Ticket is one admission unit issued for a paid order.
type Ticket struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID      uuid.UUID  `json:"order_id" gorm:"type:uuid;index;not null"`
	OrderItemID  uuid.UUID  `json:"order_item_id" gorm:"type:uuid;not null"`
	EventID      uuid.UUID  `json:"event_id" gorm:"type:uuid;index;not null"`
	TicketTypeID uuid.UUID  `json:"ticket_type_id" gorm:"type:uuid;not null"`
	Code         string     `json:"code" gorm:"uniqueIndex;size:64;not null"`
	Status       Status     `json:"status" gorm:"type:varchar(20);not null;default:'VALID'"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	CheckedInBy  *uuid.UUID `json:"checked_in_by,omitempty" gorm:"type:uuid"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Ticket) TableName() string {
	return "tickets"
}

func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// NewCode returns a ticket code of the form TKT-<unix ms>-<8 hex>.
func NewCode(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("TKT-%d-%s", now.UnixMilli(), strings.ToUpper(suffix))
}

func (t *Ticket) ToResponse() TicketResponse {
	return TicketResponse{
		ID:           t.ID.String(),
		OrderID:      t.OrderID.String(),
		EventID:      t.EventID.String(),
		TicketTypeID: t.TicketTypeID.String(),
		Code:         t.Code,
		Status:       t.Status,
		UsedAt:       t.UsedAt,
	}
}
