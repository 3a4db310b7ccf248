package reservation

import "github.com/redis/go-redis/v9"

// reserveScript is the atomic stock-decrement + user-quota-increment
// operation: a single read-modify-write done inside Redis so no two
// concurrent reservations can both observe sufficient stock and both
// decrement it. KEYS are stock, user-limit,
// idempotency (idempotency key may be the empty string, meaning "skip
// the idempotency check" — Lua can't receive a variable KEYS count
// cleanly through go-redis's fixed-arity Eval the way the caller wants
// it optional, so the script always receives three keys and treats an
// empty third key as absent).
var reserveScript = redis.NewScript(`
local stock_key = KEYS[1]
local user_key = KEYS[2]
local idem_key = KEYS[3]

local quantity = tonumber(ARGV[1])
local per_user_limit = tonumber(ARGV[2])
local order_id = ARGV[3]
local idem_ttl = tonumber(ARGV[4])
local counter_ttl = tonumber(ARGV[5])

if idem_key ~= "" then
    local existing = redis.call('GET', idem_key)
    if existing then
        return {"duplicate", -1, -1, existing}
    end
end

local stock = redis.call('GET', stock_key)
if stock == false then
    return {"inactive", -1, -1, ""}
end
stock = tonumber(stock)

if stock < quantity then
    return {"insufficient_stock", stock, -1, ""}
end

local purchased = redis.call('GET', user_key)
if purchased == false then
    purchased = 0
else
    purchased = tonumber(purchased)
end

if purchased + quantity > per_user_limit then
    return {"exceeds_user_limit", stock, purchased, ""}
end

local new_stock = stock - quantity
local new_purchased = purchased + quantity

redis.call('SET', stock_key, new_stock, 'KEEPTTL')
redis.call('SET', user_key, new_purchased, 'EX', counter_ttl)

if idem_key ~= "" then
    redis.call('SET', idem_key, order_id, 'EX', idem_ttl)
end

return {"ok", new_stock, new_purchased, order_id}
`)

// rollbackScript undoes a reservation whose downstream dispatch failed.
// It clamps the restored stock at totalStock and the restored user
// count at zero so a stray double-rollback (e.g. a retried call after a
// network blip) can never push either counter out of bounds.
var rollbackScript = redis.NewScript(`
local stock_key = KEYS[1]
local user_key = KEYS[2]
local idem_key = KEYS[3]

local quantity = tonumber(ARGV[1])
local total_stock = tonumber(ARGV[2])

local stock = redis.call('GET', stock_key)
if stock == false then
    stock = 0
else
    stock = tonumber(stock)
end
local restored_stock = math.min(total_stock, stock + quantity)
redis.call('SET', stock_key, restored_stock, 'KEEPTTL')

local purchased = redis.call('GET', user_key)
if purchased == false then
    purchased = 0
else
    purchased = tonumber(purchased)
end
local restored_purchased = math.max(0, purchased - quantity)
redis.call('SET', user_key, restored_purchased, 'KEEPTTL')

if idem_key ~= "" then
    redis.call('DEL', idem_key)
end

return {"rolled_back", restored_stock, restored_purchased, ""}
`)
