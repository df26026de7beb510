package orders

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no settlement may move the order anymore.
// PAID can still become REFUNDED through a provider reversal.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusRefunded
}

// CanTransition enforces the order state machine:
// PENDING -> PAID | CANCELLED, PAID -> REFUNDED.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusPaid || to == StatusCancelled
	case StatusPaid:
		return to == StatusRefunded
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) String() string {
	return string(s)
}

// IsTerminal is the settlement idempotency gate.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentRefunded
}

type JournalStatus string

const (
	JournalPending  JournalStatus = "PENDING"
	JournalApplied  JournalStatus = "APPLIED"
	JournalReleased JournalStatus = "RELEASED"
)

// Cancel reasons recorded on the order
const (
	CancelReasonBuyer                 = "BUYER_CANCELLED"
	CancelReasonPaymentFailed         = "PAYMENT_FAILED"
	CancelReasonHoldExpired           = "HOLD_EXPIRED"
	CancelReasonSessionExpired        = "SESSION_EXPIRED"
	CancelReasonInsufficientInventory = "INSUFFICIENT_INVENTORY"
	CancelReasonOversold              = "OVERSOLD_AT_SETTLEMENT"
)
