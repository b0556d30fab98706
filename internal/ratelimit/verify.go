package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/milkbill/internal/config"
	"go.uber.org/zap"
)

const verifyKeyPrefix = "milkbill:ratelimit:verify:"

// VerifyLimiter throttles payment verification per caller. Every verify
// request costs one gateway lookup.
type VerifyLimiter struct {
	bucket *Bucket
}

// NewVerifyLimiter returns nil when redis is not configured; a nil limiter allows everything.
func NewVerifyLimiter(client *redis.Client, cfg config.Config, log *zap.Logger) *VerifyLimiter {
	if client == nil {
		return nil
	}
	bucket, err := NewBucket(client, cfg.RateLimit.VerifyRate, cfg.RateLimit.VerifyBurst)
	if err != nil {
		log.Warn("verify rate limit disabled",
			zap.Float64("rate", cfg.RateLimit.VerifyRate),
			zap.Int("burst", cfg.RateLimit.VerifyBurst),
		)
		return nil
	}
	return &VerifyLimiter{bucket: bucket}
}

func (l *VerifyLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *VerifyLimiter) Allow(ctx context.Context, callerID string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.Take(ctx, verifyKeyPrefix+strings.TrimSpace(callerID))
}
