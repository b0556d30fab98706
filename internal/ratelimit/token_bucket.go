package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// refillScript keeps {level, at} in a hash. The redis clock is used so
// every API replica refills against the same time source. The level is
// returned as a string because Lua numbers are truncated on the way out.
var refillScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local level = tonumber(redis.call("HGET", KEYS[1], "level"))
local at = tonumber(redis.call("HGET", KEYS[1], "at"))
if level == nil or at == nil then
  level = burst
else
  local elapsed = math.max(0, now - at)
  level = math.min(burst, level + elapsed / 1000 * rate)
end

local granted = 0
if level >= 1 then
  granted = 1
  level = level - 1
end

redis.call("HSET", KEYS[1], "level", level, "at", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {granted, tostring(level)}
`)

var errBucketMisconfigured = errors.New("rate_limit_misconfigured")

// Bucket is a token bucket shared through redis.
type Bucket struct {
	client redis.Scripter
	rate   float64
	burst  int
	ttl    time.Duration
}

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// NewBucket refills rate tokens per second up to burst.
func NewBucket(client redis.Scripter, rate float64, burst int) (*Bucket, error) {
	if client == nil || rate <= 0 || burst <= 0 {
		return nil, errBucketMisconfigured
	}
	return &Bucket{client: client, rate: rate, burst: burst, ttl: idleTTL(rate, burst)}, nil
}

// Take spends one token from the bucket stored under key.
func (b *Bucket) Take(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, fmt.Errorf("%w: empty key", errBucketMisconfigured)
	}
	reply, err := refillScript.Run(ctx, b.client, []string{key}, b.rate, b.burst, b.ttl.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(reply) != 2 {
		return Decision{}, fmt.Errorf("rate limit script returned %d values", len(reply))
	}

	granted, _ := reply[0].(int64)
	level, err := parseLevel(reply[1])
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Allowed: granted == 1, Remaining: int(level)}
	if !d.Allowed {
		d.RetryAfter = time.Duration((1 - level) / b.rate * float64(time.Second))
	}
	return d, nil
}

// idleTTL lets an untouched bucket expire once it would have refilled twice.
func idleTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / rate * 2)
	return time.Duration(math.Max(seconds, 1)) * time.Second
}

func parseLevel(v any) (float64, error) {
	switch val := v.(type) {
	case string:
		return strconv.ParseFloat(val, 64)
	case int64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("unexpected token level %T", v)
	}
}
