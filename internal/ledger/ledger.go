package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boxoffice/internal/shared/clock"
	"boxoffice/internal/shared/constants"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// keySlack keeps Redis-side key TTLs a little longer than the hold itself,
// so a key never disappears while its members still count as live.
const keySlack = time.Minute

var ErrHoldNotFound = errors.New("hold not found or expired")

// Ledger keeps time-bounded reservations ("holds") per order in Redis.
// It never touches durable sales; callers pass capacity and sold in.
type Ledger struct {
	redis   *redis.Client
	clock   clock.Clock
	holdTTL time.Duration
}

// NewLedger creates a ledger whose holds live for holdTTL.
func NewLedger(redisClient *redis.Client, clk clock.Clock, holdTTL time.Duration) *Ledger {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Ledger{
		redis:   redisClient,
		clock:   clk,
		holdTTL: holdTTL,
	}
}

func (l *Ledger) HoldTTL() time.Duration {
	return l.holdTTL
}

func (l *Ledger) nowMs() int64 {
	return l.clock.Now().UnixMilli()
}

// CheckAvailability reports whether qty more units fit next to durable sales
// and live holds, and how many units are available right now.
func (l *Ledger) CheckAvailability(ctx context.Context, eventID, ticketTypeID uuid.UUID, capacity, sold, qty int) (bool, int, error) {
	live, err := l.LiveReservations(ctx, eventID, ticketTypeID)
	if err != nil {
		return false, 0, err
	}

	available := capacity - sold - live
	if available < 0 {
		available = 0
	}
	return qty <= available, available, nil
}

// LiveReservations sums the units of unexpired holds for one ticket type.
func (l *Ledger) LiveReservations(ctx context.Context, eventID, ticketTypeID uuid.UUID) (int, error) {
	if l.redis == nil {
		return 0, fmt.Errorf("redis client not available")
	}

	keys := []string{
		constants.BuildLedgerExpiriesKey(eventID.String(), ticketTypeID.String()),
		constants.BuildLedgerQuantitiesKey(eventID.String(), ticketTypeID.String()),
	}
	total, err := liveScript.Run(ctx, l.redis, keys, l.nowMs()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to read live reservations: %w", err)
	}
	return int(total), nil
}

// Reserve records a hold of qty units for the order. It fails only on
// infrastructure errors; availability is the caller's check to make.
// Reserving the same line twice for an order replaces the quantity.
func (l *Ledger) Reserve(ctx context.Context, eventID, ticketTypeID uuid.UUID, qty int, orderID uuid.UUID) error {
	if l.redis == nil {
		return fmt.Errorf("redis client not available")
	}
	if qty <= 0 {
		return fmt.Errorf("invalid reservation quantity %d", qty)
	}

	line := constants.BuildLedgerLineField(eventID.String(), ticketTypeID.String())
	keys := []string{
		constants.BuildLedgerHoldKey(orderID.String()),
		constants.LEDGER_KEY_EXPIRIES + line,
		constants.LEDGER_KEY_QUANTITIES + line,
		constants.LEDGER_KEY_ACTIVE_SET,
	}
	args := []interface{}{
		line,
		qty,
		orderID.String(),
		l.nowMs(),
		l.holdTTL.Milliseconds(),
		keySlack.Milliseconds(),
		constants.LEDGER_KEY_EXPIRIES,
		constants.LEDGER_KEY_QUANTITIES,
	}

	if err := reserveScript.Run(ctx, l.redis, keys, args...).Err(); err != nil {
		return fmt.Errorf("failed to reserve hold: %w", err)
	}
	return nil
}

// Release drops every hold of the order and returns the units that were
// still live. Releasing an unknown or expired order is a no-op.
func (l *Ledger) Release(ctx context.Context, orderID uuid.UUID) (int, error) {
	if l.redis == nil {
		return 0, fmt.Errorf("redis client not available")
	}

	keys := []string{constants.BuildLedgerHoldKey(orderID.String())}
	args := []interface{}{
		orderID.String(),
		constants.LEDGER_KEY_EXPIRIES,
		constants.LEDGER_KEY_QUANTITIES,
		l.nowMs(),
	}

	released, err := releaseScript.Run(ctx, l.redis, keys, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to release hold: %w", err)
	}
	return int(released), nil
}

// Extend resets the order's hold to the full TTL. It returns false when
// the hold has already expired or never existed.
func (l *Ledger) Extend(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if l.redis == nil {
		return false, fmt.Errorf("redis client not available")
	}

	keys := []string{constants.BuildLedgerHoldKey(orderID.String())}
	args := []interface{}{
		orderID.String(),
		l.nowMs(),
		l.holdTTL.Milliseconds(),
		keySlack.Milliseconds(),
		constants.LEDGER_KEY_EXPIRIES,
		constants.LEDGER_KEY_QUANTITIES,
	}

	extended, err := extendScript.Run(ctx, l.redis, keys, args...).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to extend hold: %w", err)
	}
	return extended == 1, nil
}

// RemainingTTL returns how long the order's hold has left.
func (l *Ledger) RemainingTTL(ctx context.Context, orderID uuid.UUID) (time.Duration, error) {
	if l.redis == nil {
		return 0, fmt.Errorf("redis client not available")
	}

	keys := []string{constants.BuildLedgerHoldKey(orderID.String())}
	args := []interface{}{
		orderID.String(),
		l.nowMs(),
		constants.LEDGER_KEY_EXPIRIES,
	}

	ms, err := remainingScript.Run(ctx, l.redis, keys, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to read hold ttl: %w", err)
	}
	if ms < 0 {
		return 0, ErrHoldNotFound
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Prune removes expired hold entries from the per-ticket-type aggregates.
// Live counts are already correct without it; this only reclaims memory.
func (l *Ledger) Prune(ctx context.Context) (int, error) {
	if l.redis == nil {
		return 0, fmt.Errorf("redis client not available")
	}

	args := []interface{}{
		l.nowMs(),
		constants.LEDGER_KEY_EXPIRIES,
		constants.LEDGER_KEY_QUANTITIES,
	}
	pruned, err := pruneScript.Run(ctx, l.redis, []string{constants.LEDGER_KEY_ACTIVE_SET}, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger: %w", err)
	}
	return int(pruned), nil
}

// PreloadScripts loads Lua scripts into Redis for better performance
func (l *Ledger) PreloadScripts(ctx context.Context) error {
	if l.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	for _, script := range allScripts {
		if err := script.Load(ctx, l.redis).Err(); err != nil {
			return fmt.Errorf("failed to load ledger script: %w", err)
		}
	}
	return nil
}
