package constants

import (
	"fmt"
	"time"
)

// Redis key layout for the boxoffice service.
// Pattern: boxoffice:{module}:{operation}:{identifier}:{params?}

// ================== CACHE TTL DURATIONS ==================

const (
	TTL_STATIC_SHORT      = 6 * time.Hour
	TTL_SEMI_STATIC_SHORT = 1 * time.Hour
	TTL_SEMI_STATIC_QUICK = 15 * time.Minute
	TTL_DYNAMIC_SHORT     = 5 * time.Minute
)

// ================== REDIS KEY PREFIXES ==================

const (
	CACHE_PREFIX = "boxoffice"
)

// ================== EVENTS MODULE ==================

const (
	CACHE_KEY_EVENTS_LIST  = CACHE_PREFIX + ":events:list"         // + :page:X:limit:Y
	CACHE_KEY_EVENT_DETAIL = CACHE_PREFIX + ":events:detail:uuid:" // + event-id
)

const (
	TTL_EVENT_LIST   = TTL_SEMI_STATIC_QUICK
	TTL_EVENT_DETAIL = TTL_SEMI_STATIC_SHORT
)

// ================== ANALYTICS MODULE ==================

const (
	CACHE_KEY_ANALYTICS_PLATFORM = CACHE_PREFIX + ":analytics:platform"
	TTL_ANALYTICS_PLATFORM       = time.Minute
)

// ================== LEDGER MODULE ==================

// Ledger keys are never cached values; they are the reservation store itself.
const (
	LEDGER_PREFIX         = CACHE_PREFIX + ":ledger:"
	LEDGER_KEY_HOLD       = LEDGER_PREFIX + "hold:" // + order-id
	LEDGER_KEY_EXPIRIES   = LEDGER_PREFIX + "exp:"  // + event-id:ticket-type-id
	LEDGER_KEY_QUANTITIES = LEDGER_PREFIX + "qty:"  // + event-id:ticket-type-id
	LEDGER_KEY_ACTIVE_SET = LEDGER_PREFIX + "active"
)

// ================== IDEMPOTENCY / RATE LIMIT ==================

const (
	IDEMPOTENCY_PREFIX = CACHE_PREFIX + ":idempotency:"
	RATELIMIT_PREFIX   = CACHE_PREFIX + ":ratelimit:"
)

// ================== CACHE INVALIDATION PATTERNS ==================

const (
	PATTERN_INVALIDATE_EVENT_LIST = CACHE_PREFIX + ":events:list*"
)

// ================== HELPER FUNCTIONS ==================

func BuildEventListKey(page, limit int) string {
	return CACHE_KEY_EVENTS_LIST + ":page:" + fmt.Sprintf("%d", page) + ":limit:" + fmt.Sprintf("%d", limit)
}

func BuildEventDetailKey(eventID string) string {
	return CACHE_KEY_EVENT_DETAIL + eventID
}

func BuildLedgerHoldKey(orderID string) string {
	return LEDGER_KEY_HOLD + orderID
}

// BuildLedgerLineField is the per-ticket-type suffix shared by the aggregate keys.
func BuildLedgerLineField(eventID, ticketTypeID string) string {
	return eventID + ":" + ticketTypeID
}

func BuildLedgerExpiriesKey(eventID, ticketTypeID string) string {
	return LEDGER_KEY_EXPIRIES + BuildLedgerLineField(eventID, ticketTypeID)
}

func BuildLedgerQuantitiesKey(eventID, ticketTypeID string) string {
	return LEDGER_KEY_QUANTITIES + BuildLedgerLineField(eventID, ticketTypeID)
}

func BuildRateLimitKey(clientIP, limitType string) string {
	return RATELIMIT_PREFIX + clientIP + ":" + limitType
}
