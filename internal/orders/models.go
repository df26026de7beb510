package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Buyer is the purchaser's contact record, reused across orders by email.
type Buyer struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null;size:255"`
	FirstName string    `json:"first_name" gorm:"size:120"`
	LastName  string    `json:"last_name" gorm:"size:120"`
	Phone     string    `json:"phone" gorm:"size:40"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

type Order struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	EventID  uuid.UUID `json:"event_id" gorm:"type:uuid;index;not null"`
	BuyerID  uuid.UUID `json:"buyer_id" gorm:"type:uuid;index;not null"`
	Status   Status    `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	Total    int64     `json:"total" gorm:"not null;check:total >= 0"`
	Currency string    `json:"currency" gorm:"type:varchar(3);not null"`

	// Settlement split, set when the order is paid
	PlatformFee     int64 `json:"platform_fee" gorm:"not null;default:0"`
	OrganizerIncome int64 `json:"organizer_income" gorm:"not null;default:0"`

	// ExpiresAt bounds the payable session; ReservedUntil mirrors the ledger hold.
	ExpiresAt     time.Time `json:"expires_at" gorm:"not null;index"`
	ReservedUntil time.Time `json:"reserved_until" gorm:"not null"`

	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`

	RefundRequired bool   `json:"refund_required" gorm:"not null;default:false"`
	Complimentary  bool   `json:"complimentary" gorm:"not null;default:false"`
	CancelReason   string `json:"cancel_reason,omitempty" gorm:"size:64"`

	IPAddress string `json:"-" gorm:"size:64"`
	UserAgent string `json:"-" gorm:"size:512"`

	Buyer   *Buyer      `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
	Items   []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE;"`
	Payment *Payment    `json:"payment,omitempty" gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// OrderItem snapshots the unit price at checkout time.
type OrderItem struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID      uuid.UUID `json:"order_id" gorm:"type:uuid;index;not null"`
	TicketTypeID uuid.UUID `json:"ticket_type_id" gorm:"type:uuid;index;not null"`
	Quantity     int       `json:"quantity" gorm:"not null;check:quantity > 0"`
	UnitPrice    int64     `json:"unit_price" gorm:"not null"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// Payment is the single payment intent of an order.
type Payment struct {
	ID                   uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID              uuid.UUID     `json:"order_id" gorm:"type:uuid;uniqueIndex;not null"`
	Gateway              string        `json:"gateway" gorm:"size:32;not null"`
	Status               PaymentStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	Amount               int64         `json:"amount" gorm:"not null"`
	Currency             string        `json:"currency" gorm:"type:varchar(3);not null"`
	GatewayTransactionID *string       `json:"gateway_transaction_id,omitempty" gorm:"size:128;index"`
	GatewayPreferenceID  string        `json:"gateway_preference_id,omitempty" gorm:"size:128"`
	CheckoutURL          string        `json:"checkout_url,omitempty" gorm:"size:1024"`
	ProviderStatus       string        `json:"provider_status,omitempty" gorm:"size:64"`
	FailureReason        string        `json:"failure_reason,omitempty" gorm:"size:255"`
	ProcessedAt          *time.Time    `json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// ReservationJournal is the durable intent to hold inventory in the ledger,
// written in the same transaction as the order.
type ReservationJournal struct {
	ID            uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID       uuid.UUID     `json:"order_id" gorm:"type:uuid;index;not null"`
	EventID       uuid.UUID     `json:"event_id" gorm:"type:uuid;not null"`
	TicketTypeID  uuid.UUID     `json:"ticket_type_id" gorm:"type:uuid;index:idx_journal_tt_status;not null"`
	Quantity      int           `json:"quantity" gorm:"not null"`
	Status        JournalStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index:idx_journal_tt_status"`
	HoldExpiresAt time.Time     `json:"hold_expires_at" gorm:"not null"`
	Attempts      int           `json:"attempts" gorm:"not null;default:0"`
	LastError     string        `json:"last_error,omitempty" gorm:"size:512"`
	AppliedAt     *time.Time    `json:"applied_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Buyer) TableName() string              { return "buyers" }
func (Order) TableName() string              { return "orders" }
func (OrderItem) TableName() string          { return "order_items" }
func (Payment) TableName() string            { return "payments" }
func (ReservationJournal) TableName() string { return "reservation_journal" }

func (b *Buyer) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Email = NormalizeEmail(b.Email)
	return nil
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (j *ReservationJournal) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// TotalQuantity sums units across every line.
func (o *Order) TotalQuantity() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// QuantitiesByTicketType folds items into ticket-type -> units.
func (o *Order) QuantitiesByTicketType() map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(o.Items))
	for _, item := range o.Items {
		out[item.TicketTypeID] += item.Quantity
	}
	return out
}

// IsExpired reports whether the payable session is over.
func (o *Order) IsExpired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}
