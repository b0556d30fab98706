package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/milkbill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIdleTTL(t *testing.T) {
	assert.Equal(t, 60*time.Second, idleTTL(0.1, 3))
	assert.Equal(t, 50*time.Second, idleTTL(0.2, 5))
	assert.Equal(t, time.Second, idleTTL(100, 1))
}

func TestParseLevel(t *testing.T) {
	v, err := parseLevel("2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = parseLevel(int64(3))
	require.NoError(t, err)
	assert.Equal(t, float64(3), v)

	_, err = parseLevel(nil)
	assert.Error(t, err)
}

func TestNewBucketRejectsBadArguments(t *testing.T) {
	_, err := NewBucket(nil, 1, 1)
	assert.ErrorIs(t, err, errBucketMisconfigured)
}

func TestVerifyLimiterDisabledWithoutRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{VerifyRate: 1, VerifyBurst: 1}}
	l := NewVerifyLimiter(nil, cfg, zap.NewNop())
	assert.False(t, l.Enabled())

	res, err := l.Allow(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
