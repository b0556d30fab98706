package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type SetPriceRequest struct {
	PricePerLiter decimal.Decimal
	// EffectiveDate defaults to today in the business time zone.
	EffectiveDate *time.Time
}

type Service interface {
	// CurrentPrice returns the setting with the greatest effective date on or
	// before asOf. ok is false when no price has been set yet.
	CurrentPrice(ctx context.Context, asOf time.Time) (setting PriceSetting, ok bool, err error)
	SetPrice(ctx context.Context, req SetPriceRequest) (PriceSetting, error)
	History(ctx context.Context, limit int) ([]PriceSetting, error)
}

var (
	ErrInvalidPrice = errors.New("invalid_price")
	ErrPriceNotSet  = errors.New("price_not_set")
)
