package orders

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrOrderNotFound = errors.New("order not found")

const maxJournalErrorLen = 512

type Repository interface {
	// Reads
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByGatewayTransaction(ctx context.Context, gateway, transactionID string) (*Order, error)

	// Conditional transitions
	Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)

	// Hold bookkeeping
	UpdateReservedUntil(ctx context.Context, id uuid.UUID, until time.Time) error
	RefreshJournal(ctx context.Context, orderID uuid.UUID, at, holdExpiresAt time.Time) error
	ListPendingJournal(ctx context.Context, limit int) ([]ReservationJournal, error)
	MarkJournalApplied(ctx context.Context, orderID uuid.UUID, at time.Time) error
	MarkJournalEntryApplied(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkJournalEntryReleased(ctx context.Context, id uuid.UUID) error
	RecordJournalFailure(ctx context.Context, id uuid.UUID, reason string) error

	// Payment intent
	UpdatePaymentPreference(ctx context.Context, orderID uuid.UUID, gateway, preferenceID, checkoutURL string) error

	// Sweeps
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]Order, error)
	ListLapsedPending(ctx context.Context, now time.Time, limit int) ([]Order, error)
	ListUnfulfilled(ctx context.Context, paidBefore time.Time, limit int) ([]Order, error)
	MarkFulfilled(ctx context.Context, id uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payment").
		Preload("Buyer").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetByGatewayTransaction(ctx context.Context, gateway, transactionID string) (*Order, error) {
	var payment Payment
	err := r.db.WithContext(ctx).
		Where("gateway = ? AND gateway_transaction_id = ?", gateway, transactionID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return r.GetByID(ctx, payment.OrderID)
}

// Cancel moves a PENDING order to CANCELLED and closes its journal in one
// transaction. It returns false when the order was no longer PENDING.
func (r *repository) Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	cancelled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Order{}).
			Where("id = ? AND status = ?", id, StatusPending).
			Updates(map[string]interface{}{
				"status":        StatusCancelled,
				"cancelled_at":  at,
				"cancel_reason": reason,
				"updated_at":    at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		cancelled = true
		return ReleaseJournal(tx, id)
	})
	return cancelled, err
}

func (r *repository) UpdateReservedUntil(ctx context.Context, id uuid.UUID, until time.Time) error {
	return r.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ?", id).
		Update("reserved_until", until).Error
}

// RefreshJournal records a re-reserved hold on every open journal entry of the order.
func (r *repository) RefreshJournal(ctx context.Context, orderID uuid.UUID, at, holdExpiresAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&ReservationJournal{}).
		Where("order_id = ? AND status <> ?", orderID, JournalReleased).
		Updates(map[string]interface{}{
			"status":          JournalApplied,
			"hold_expires_at": holdExpiresAt,
			"applied_at":      at,
		}).Error
}

func (r *repository) ListPendingJournal(ctx context.Context, limit int) ([]ReservationJournal, error) {
	var entries []ReservationJournal
	err := r.db.WithContext(ctx).
		Where("status = ?", JournalPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *repository) MarkJournalApplied(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&ReservationJournal{}).
		Where("order_id = ? AND status = ?", orderID, JournalPending).
		Updates(map[string]interface{}{
			"status":     JournalApplied,
			"applied_at": at,
		}).Error
}

func (r *repository) MarkJournalEntryApplied(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&ReservationJournal{}).
		Where("id = ? AND status = ?", id, JournalPending).
		Updates(map[string]interface{}{
			"status":     JournalApplied,
			"applied_at": at,
		}).Error
}

func (r *repository) MarkJournalEntryReleased(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&ReservationJournal{}).
		Where("id = ?", id).
		Update("status", JournalReleased).Error
}

func (r *repository) RecordJournalFailure(ctx context.Context, id uuid.UUID, reason string) error {
	reason = truncate(reason, maxJournalErrorLen)
	return r.db.WithContext(ctx).
		Model(&ReservationJournal{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
		}).Error
}

func (r *repository) UpdatePaymentPreference(ctx context.Context, orderID uuid.UUID, gateway, preferenceID, checkoutURL string) error {
	return r.db.WithContext(ctx).
		Model(&Payment{}).
		Where("order_id = ? AND status = ?", orderID, PaymentPending).
		Updates(map[string]interface{}{
			"gateway":               gateway,
			"gateway_preference_id": preferenceID,
			"checkout_url":          checkoutURL,
		}).Error
}

// ListExpiredPending returns PENDING orders whose payable session has ended.
func (r *repository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]Order, error) {
	var orders []Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", StatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// ListLapsedPending returns PENDING orders still inside their session whose
// recorded hold window has passed. The caller confirms against the ledger.
func (r *repository) ListLapsedPending(ctx context.Context, now time.Time, limit int) ([]Order, error) {
	var orders []Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND reserved_until <= ? AND expires_at > ?", StatusPending, now, now).
		Order("reserved_until ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *repository) ListUnfulfilled(ctx context.Context, paidBefore time.Time, limit int) ([]Order, error) {
	var orders []Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND fulfilled_at IS NULL AND paid_at <= ?", StatusPaid, paidBefore).
		Order("paid_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *repository) MarkFulfilled(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ? AND fulfilled_at IS NULL", id).
		Update("fulfilled_at", at).Error
}

// PendingJournalQuantity sums journaled units for a ticket type that have
// not reached the ledger yet and whose hold window is still open.
// Callers inside a transaction pass the transaction handle.
func PendingJournalQuantity(db *gorm.DB, ticketTypeID uuid.UUID, now time.Time) (int, error) {
	return sumPendingJournal(db.Where("ticket_type_id = ?", ticketTypeID), now)
}

// OtherPendingJournalQuantity is PendingJournalQuantity without the entries
// of orderID.
func OtherPendingJournalQuantity(db *gorm.DB, ticketTypeID, orderID uuid.UUID, now time.Time) (int, error) {
	return sumPendingJournal(db.Where("ticket_type_id = ? AND order_id <> ?", ticketTypeID, orderID), now)
}

func sumPendingJournal(db *gorm.DB, now time.Time) (int, error) {
	var total int64
	err := db.Model(&ReservationJournal{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("status = ? AND hold_expires_at > ?", JournalPending, now).
		Scan(&total).Error
	return int(total), err
}

// ReopenJournal puts every open entry of an order back to PENDING with a new
// hold window, so the units count as promised until the ledger has them.
func ReopenJournal(db *gorm.DB, orderID uuid.UUID, holdExpiresAt time.Time) error {
	return db.Model(&ReservationJournal{}).
		Where("order_id = ? AND status <> ?", orderID, JournalReleased).
		Updates(map[string]interface{}{
			"status":          JournalPending,
			"hold_expires_at": holdExpiresAt,
			"applied_at":      nil,
		}).Error
}

// ReleaseJournal closes every open journal entry of an order.
func ReleaseJournal(db *gorm.DB, orderID uuid.UUID) error {
	return db.Model(&ReservationJournal{}).
		Where("order_id = ? AND status <> ?", orderID, JournalReleased).
		Update("status", JournalReleased).Error
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// UpsertBuyer creates the buyer or refreshes the contact fields of the
// existing one with the same email, then reads it back.
func UpsertBuyer(tx *gorm.DB, in Buyer) (*Buyer, error) {
	in.Email = NormalizeEmail(in.Email)
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "phone", "updated_at"}),
	}).Create(&in).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert buyer: %w", err)
	}

	var buyer Buyer
	if err := tx.Where("email = ?", in.Email).First(&buyer).Error; err != nil {
		return nil, fmt.Errorf("failed to load buyer: %w", err)
	}
	return &buyer, nil
}
