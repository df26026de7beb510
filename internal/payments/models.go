package payments

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outcome is what settlement did with one delivery.
type Outcome string

const (
	OutcomePaid             Outcome = "PAID"
	OutcomeCancelled        Outcome = "CANCELLED"
	OutcomePending          Outcome = "PENDING"
	OutcomeRefunded         Outcome = "REFUNDED"
	OutcomeOversold         Outcome = "OVERSOLD"
	OutcomeDuplicate        Outcome = "DUPLICATE"
	OutcomeInvalidState     Outcome = "INVALID_STATE"
	OutcomeUntrusted        Outcome = "UNTRUSTED"
	OutcomeIgnored          Outcome = "IGNORED"
	OutcomeUnmapped         Outcome = "UNMAPPED"
	OutcomeOrderNotFound    Outcome = "ORDER_NOT_FOUND"
	OutcomePaymentNotFound  Outcome = "PAYMENT_NOT_FOUND"
	OutcomeAmountMismatch   Outcome = "AMOUNT_MISMATCH"
	OutcomeProviderError    Outcome = "PROVIDER_ERROR"
	OutcomeMalformedPayload Outcome = "MALFORMED"
)

// Transitioned reports whether the outcome changed an order.
func (o Outcome) Transitioned() bool {
	switch o {
	case OutcomePaid, OutcomeCancelled, OutcomeRefunded, OutcomeOversold:
		return true
	}
	return false
}

// WebhookLog is one immutable row per delivery, written before any
// processing so the delivery survives every later failure.
type WebhookLog struct {
	ID                uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Gateway           string     `json:"gateway" gorm:"size:32;not null;index"`
	EventType         string     `json:"event_type" gorm:"size:64"`
	ProviderPaymentID string     `json:"provider_payment_id" gorm:"size:128;index"`
	OrderID           *uuid.UUID `json:"order_id,omitempty" gorm:"type:uuid;index"`
	Payload           string     `json:"payload" gorm:"type:text"`
	Signature         string     `json:"signature,omitempty" gorm:"size:512"`
	Verified          bool       `json:"verified" gorm:"not null;default:false"`
	ReceivedAt        time.Time  `json:"received_at" gorm:"not null;index"`
}

// SettlementLog is the append-only record of what each delivery did.
type SettlementLog struct {
	ID                  uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	WebhookLogID        uuid.UUID  `json:"webhook_log_id" gorm:"type:uuid;index;not null"`
	Gateway             string     `json:"gateway" gorm:"size:32;not null"`
	Outcome             Outcome    `json:"outcome" gorm:"type:varchar(32);not null;index"`
	OrderID             *uuid.UUID `json:"order_id,omitempty" gorm:"type:uuid;index"`
	PaymentID           *uuid.UUID `json:"payment_id,omitempty" gorm:"type:uuid"`
	ProviderPaymentID   string     `json:"provider_payment_id" gorm:"size:128"`
	ProviderStatus      string     `json:"provider_status,omitempty" gorm:"size:64"`
	MappedStatus        string     `json:"mapped_status,omitempty" gorm:"size:20"`
	OrderStatusBefore   string     `json:"order_status_before,omitempty" gorm:"size:20"`
	OrderStatusAfter    string     `json:"order_status_after,omitempty" gorm:"size:20"`
	PaymentStatusBefore string     `json:"payment_status_before,omitempty" gorm:"size:20"`
	PaymentStatusAfter  string     `json:"payment_status_after,omitempty" gorm:"size:20"`
	Detail              string     `json:"detail,omitempty" gorm:"size:512"`
	CreatedAt           time.Time  `json:"created_at" gorm:"not null"`
}

func (WebhookLog) TableName() string    { return "webhook_logs" }
func (SettlementLog) TableName() string { return "settlement_logs" }

func (w *WebhookLog) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

func (s *SettlementLog) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if len(s.Detail) > 512 {
		s.Detail = s.Detail[:512]
	}
	return nil
}
