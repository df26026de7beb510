package ratelimit

import (
	"context"
	"fmt"
	"time"

	"boxoffice/internal/shared/clock"
	"boxoffice/internal/shared/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RateLimitType string

const (
	RateLimitTypeDefault  RateLimitType = "default"
	RateLimitTypePublic   RateLimitType = "public"
	RateLimitTypeAuth     RateLimitType = "auth"
	RateLimitTypeCheckout RateLimitType = "checkout"
	RateLimitTypeWebhook  RateLimitType = "webhook"
	RateLimitTypeStaff    RateLimitType = "staff"
	RateLimitTypeHealth   RateLimitType = "health"
)

const keyPrefix = "boxoffice:ratelimit:"

// Result represents rate limit check result
type Result struct {
	Allowed   bool  `json:"allowed"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}

// Sliding window over a zset of request timestamps (ms). A request is
// only recorded when it is admitted.
var slidingWindowScript = redis.NewScript(`
-- KEYS[1] = window key
-- ARGV[1] = window start ms, ARGV[2] = now ms, ARGV[3] = limit,
-- ARGV[4] = window ms, ARGV[5] = member
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])

local count = redis.call("ZCARD", KEYS[1])
local limit = tonumber(ARGV[3])
if count >= limit then
    redis.call("PEXPIRE", KEYS[1], ARGV[4])
    return {0, 0}
end

redis.call("ZADD", KEYS[1], ARGV[2], ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return {1, limit - count - 1}
`)

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	client    *redis.Client
	config    config.RateLimitConfig
	clock     clock.Clock
	whitelist map[string]struct{}
}

func NewRateLimiter(client *redis.Client, cfg config.RateLimitConfig, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.NewSystem()
	}
	whitelist := make(map[string]struct{}, len(cfg.WhitelistedIPs))
	for _, ip := range cfg.WhitelistedIPs {
		whitelist[ip] = struct{}{}
	}
	return &RateLimiter{
		client:    client,
		config:    cfg,
		clock:     clk,
		whitelist: whitelist,
	}
}

// IsAllowed checks and records one request of clientIP in the limitType window.
func (r *RateLimiter) IsAllowed(ctx context.Context, clientIP string, limitType RateLimitType) (*Result, error) {
	limit := r.getLimit(limitType)
	now := r.clock.Now()

	if !r.config.Enabled || r.isWhitelisted(clientIP) {
		return &Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
			ResetTime: now.Add(r.config.WindowDuration).Unix(),
		}, nil
	}

	key := fmt.Sprintf("%s%s:%s", keyPrefix, clientIP, limitType)
	return r.checkLimit(ctx, key, limit, now)
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, now time.Time) (*Result, error) {
	windowStart := now.Add(-r.config.WindowDuration)
	member := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])

	values, err := slidingWindowScript.Run(ctx, r.client, []string{key},
		windowStart.UnixMilli(),
		now.UnixMilli(),
		limit,
		r.config.WindowDuration.Milliseconds(),
		member,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis eval failed: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	return &Result{
		Allowed:   values[0] == 1,
		Limit:     limit,
		Remaining: int(values[1]),
		ResetTime: now.Add(r.config.WindowDuration).Unix(),
	}, nil
}

func (r *RateLimiter) getLimit(limitType RateLimitType) int {
	switch limitType {
	case RateLimitTypePublic:
		return r.config.PublicRequests
	case RateLimitTypeAuth:
		return r.config.AuthRequests
	case RateLimitTypeCheckout:
		return r.config.CheckoutRequests
	case RateLimitTypeWebhook:
		return r.config.WebhookRequests
	case RateLimitTypeStaff:
		return r.config.StaffRequests
	case RateLimitTypeHealth:
		return r.config.HealthRequests
	default:
		return r.config.DefaultRequests
	}
}

func (r *RateLimiter) isWhitelisted(ip string) bool {
	_, ok := r.whitelist[ip]
	return ok
}
