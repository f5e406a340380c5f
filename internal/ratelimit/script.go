package ratelimit

import "github.com/redis/go-redis/v9"

// slidingWindowScript is the atomic check-and-increment: trim entries
// outside the window, deny if at ceiling (reporting the reset time
// derived from the oldest surviving entry), otherwise record the new
// entry and refresh the key's expiry. Running it as a single script keeps
// the decision indivisible under concurrent callers.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local ceiling = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, 0, now - window_ms)

local current = redis.call("ZCARD", key)

if current >= ceiling then
	local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
	local reset = now + window_ms
	if #oldest >= 2 then
		reset = tonumber(oldest[2]) + window_ms
	end
	return {0, current, reset}
end

redis.call("ZADD", key, now, member)
redis.call("EXPIRE", key, math.ceil(window_ms / 1000) + 60)

return {1, current + 1, now + window_ms}
`)
