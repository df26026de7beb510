package ledger

import "github.com/redis/go-redis/v9"

// Per-ticket-type state is two structures keyed by "<event>:<ticket-type>":
//   exp:<line>  zset  order-id -> hold expiry (unix ms, application clock)
//   qty:<line>  hash  order-id -> units held
// and one hash per order, hold:<order>, line -> units, used to find the
// order's lines on release/extend. Live reservations for a line are the
// qty of members whose expiry is still in the future, so an expired hold
// stops counting without any code running.

// Lua script for reserving one line of an order.
// Re-running it for the same (order, line) overwrites rather than adds.
const luaReserve = `
-- KEYS[1] = hold key, KEYS[2] = exp key, KEYS[3] = qty key, KEYS[4] = active lines set
-- ARGV[1] = line, ARGV[2] = qty, ARGV[3] = order id, ARGV[4] = now ms,
-- ARGV[5] = hold ttl ms, ARGV[6] = key slack ms, ARGV[7] = exp prefix, ARGV[8] = qty prefix
local now = tonumber(ARGV[4])
local expires = now + tonumber(ARGV[5])
local keyTTL = tonumber(ARGV[5]) + tonumber(ARGV[6])

redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("PEXPIRE", KEYS[1], keyTTL)

redis.call("ZADD", KEYS[2], expires, ARGV[3])
redis.call("HSET", KEYS[3], ARGV[3], ARGV[2])
redis.call("PEXPIRE", KEYS[2], keyTTL)
redis.call("PEXPIRE", KEYS[3], keyTTL)
redis.call("SADD", KEYS[4], ARGV[1])

-- Sibling lines of the same order share one expiry
local lines = redis.call("HKEYS", KEYS[1])
for i = 1, #lines do
    if lines[i] ~= ARGV[1] then
        local expKey = ARGV[7] .. lines[i]
        if redis.call("ZSCORE", expKey, ARGV[3]) then
            redis.call("ZADD", expKey, expires, ARGV[3])
            redis.call("PEXPIRE", expKey, keyTTL)
            redis.call("PEXPIRE", ARGV[8] .. lines[i], keyTTL)
        end
    end
end

return 1
`

// Lua script summing unexpired holds of one line. Read-only.
const luaLive = `
-- KEYS[1] = exp key, KEYS[2] = qty key
-- ARGV[1] = now ms
local members = redis.call("ZRANGEBYSCORE", KEYS[1], "(" .. ARGV[1], "+inf")
if #members == 0 then
    return 0
end

local qtys = redis.call("HMGET", KEYS[2], unpack(members))
local total = 0
for i = 1, #qtys do
    if qtys[i] then
        total = total + tonumber(qtys[i])
    end
end
return total
`

// Lua script for releasing every line of an order. Missing hold is a no-op.
const luaRelease = `
-- KEYS[1] = hold key
-- ARGV[1] = order id, ARGV[2] = exp prefix, ARGV[3] = qty prefix, ARGV[4] = now ms
local entries = redis.call("HGETALL", KEYS[1])
local released = 0
local now = tonumber(ARGV[4])

for i = 1, #entries, 2 do
    local line = entries[i]
    local expKey = ARGV[2] .. line
    local score = redis.call("ZSCORE", expKey, ARGV[1])
    if score and tonumber(score) > now then
        released = released + tonumber(entries[i + 1])
    end
    redis.call("ZREM", expKey, ARGV[1])
    redis.call("HDEL", ARGV[3] .. line, ARGV[1])
end

redis.call("DEL", KEYS[1])
return released
`

// Lua script resetting an order's hold to the full TTL if it is still live.
const luaExtend = `
-- KEYS[1] = hold key
-- ARGV[1] = order id, ARGV[2] = now ms, ARGV[3] = hold ttl ms, ARGV[4] = key slack ms,
-- ARGV[5] = exp prefix, ARGV[6] = qty prefix
local lines = redis.call("HKEYS", KEYS[1])
if #lines == 0 then
    return 0
end

local now = tonumber(ARGV[2])
local score = redis.call("ZSCORE", ARGV[5] .. lines[1], ARGV[1])
if (not score) or tonumber(score) <= now then
    return 0
end

local expires = now + tonumber(ARGV[3])
local keyTTL = tonumber(ARGV[3]) + tonumber(ARGV[4])
redis.call("PEXPIRE", KEYS[1], keyTTL)
for i = 1, #lines do
    redis.call("ZADD", ARGV[5] .. lines[i], expires, ARGV[1])
    redis.call("PEXPIRE", ARGV[5] .. lines[i], keyTTL)
    redis.call("PEXPIRE", ARGV[6] .. lines[i], keyTTL)
end
return 1
`

// Lua script returning remaining hold time in ms, or -2 when there is none.
const luaRemaining = `
-- KEYS[1] = hold key
-- ARGV[1] = order id, ARGV[2] = now ms, ARGV[3] = exp prefix
local lines = redis.call("HKEYS", KEYS[1])
if #lines == 0 then
    return -2
end

local score = redis.call("ZSCORE", ARGV[3] .. lines[1], ARGV[1])
if not score then
    return -2
end

local remaining = tonumber(score) - tonumber(ARGV[2])
if remaining <= 0 then
    return -2
end
return remaining
`

// Lua script dropping expired members from every active line.
const luaPrune = `
-- KEYS[1] = active lines set
-- ARGV[1] = now ms, ARGV[2] = exp prefix, ARGV[3] = qty prefix
local lines = redis.call("SMEMBERS", KEYS[1])
local pruned = 0

for i = 1, #lines do
    local expKey = ARGV[2] .. lines[i]
    local qtyKey = ARGV[3] .. lines[i]
    local expired = redis.call("ZRANGEBYSCORE", expKey, "-inf", ARGV[1])
    for j = 1, #expired do
        redis.call("HDEL", qtyKey, expired[j])
        pruned = pruned + 1
    end
    redis.call("ZREMRANGEBYSCORE", expKey, "-inf", ARGV[1])
    if redis.call("ZCARD", expKey) == 0 then
        redis.call("DEL", expKey, qtyKey)
        redis.call("SREM", KEYS[1], lines[i])
    end
end

return pruned
`

var (
	reserveScript   = redis.NewScript(luaReserve)
	liveScript      = redis.NewScript(luaLive)
	releaseScript   = redis.NewScript(luaRelease)
	extendScript    = redis.NewScript(luaExtend)
	remainingScript = redis.NewScript(luaRemaining)
	pruneScript     = redis.NewScript(luaPrune)
)

var allScripts = []*redis.Script{
	reserveScript,
	liveScript,
	releaseScript,
	extendScript,
	remainingScript,
	pruneScript,
}
