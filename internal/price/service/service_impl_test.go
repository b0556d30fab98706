package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/dbtest"
	"github.com/smallbiznis/milkbill/internal/price/domain"
	"github.com/smallbiznis/milkbill/internal/price/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T, now time.Time) (domain.Service, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(now)
	svc := New(Params{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		GenID: dbtest.Node(t),
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, clk
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCurrentPriceUnsetSentinel(t *testing.T) {
	svc, _ := setup(t, time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC))

	_, ok, err := svc.CurrentPrice(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCurrentPricePicksLatestEffectiveOnOrBeforeAsOf(t *testing.T) {
	svc, _ := setup(t, time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()

	jan := date(2024, time.January, 1)
	mar15 := date(2024, time.March, 15)
	_, err := svc.SetPrice(ctx, domain.SetPriceRequest{PricePerLiter: decimal.NewFromInt(50), EffectiveDate: &jan})
	require.NoError(t, err)
	_, err = svc.SetPrice(ctx, domain.SetPriceRequest{PricePerLiter: decimal.NewFromInt(60), EffectiveDate: &mar15})
	require.NoError(t, err)

	current, ok, err := svc.CurrentPrice(ctx, time.Time{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, current.PricePerLiter.Equal(decimal.NewFromInt(50)))

	later, ok, err := svc.CurrentPrice(ctx, date(2024, time.March, 15))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, later.PricePerLiter.Equal(decimal.NewFromInt(60)))
}

func TestSetPriceCorrectionSameDayWins(t *testing.T) {
	svc, _ := setup(t, time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := svc.SetPrice(ctx, domain.SetPriceRequest{PricePerLiter: decimal.NewFromInt(55)})
	require.NoError(t, err)
	_, err = svc.SetPrice(ctx, domain.SetPriceRequest{PricePerLiter: decimal.RequireFromString("56.5")})
	require.NoError(t, err)

	current, ok, err := svc.CurrentPrice(ctx, time.Time{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "56.50", current.PricePerLiter.StringFixed(2))

	history, err := svc.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSetPriceRejectsNonPositive(t *testing.T) {
	svc, _ := setup(t, time.Now())
	for _, value := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := svc.SetPrice(context.Background(), domain.SetPriceRequest{PricePerLiter: value})
		assert.ErrorIs(t, err, domain.ErrInvalidPrice)
	}
}
