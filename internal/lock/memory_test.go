package lock

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerExclusiveUntilExpiry(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, time.March, 31, 23, 0, 0, 0, time.UTC))
	l := NewMemoryLocker(clk)
	ctx := context.Background()

	token, ok, err := l.TryLock(ctx, "milkbill:job:monthly_billing:03-2024", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = l.TryLock(ctx, "milkbill:job:monthly_billing:03-2024", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	clk.Advance(2 * time.Minute)
	_, ok, err = l.TryLock(ctx, "milkbill:job:monthly_billing:03-2024", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLockerReleaseRequiresToken(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	l := NewMemoryLocker(clk)
	ctx := context.Background()

	token, ok, err := l.TryLock(ctx, "key", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, "key", "someone-else"))
	_, ok, _ = l.TryLock(ctx, "key", time.Hour)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "key", token))
	_, ok, _ = l.TryLock(ctx, "key", time.Hour)
	assert.True(t, ok)
}

func TestMemoryLockerExtend(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	l := NewMemoryLocker(clk)
	ctx := context.Background()

	token, ok, err := l.TryLock(ctx, "key", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l.Extend(ctx, "key", token, 48*time.Hour))

	clk.Advance(time.Hour)
	_, ok, _ = l.TryLock(ctx, "key", time.Minute)
	assert.False(t, ok)
}

func TestValidation(t *testing.T) {
	l := NewMemoryLocker(clock.NewFakeClock(time.Now()))
	_, _, err := l.TryLock(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, _, err = l.TryLock(context.Background(), "key", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}
