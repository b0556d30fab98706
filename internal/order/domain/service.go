package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/milkbill/internal/authorization"
	"github.com/smallbiznis/milkbill/internal/period"
)

// MaxGenerateDays bounds one default-generation request.
const MaxGenerateDays = 62

type UpsertOrderRequest struct {
	// OwnerID is required for admins and ignored for company callers.
	OwnerID  snowflake.ID
	Date     time.Time
	Quantity decimal.Decimal
	Status   *Status
}

type GenerateDefaultsRequest struct {
	OwnerID   snowflake.ID
	StartDate time.Time
	Days      int
}

type ListOrdersRequest struct {
	OwnerID snowflake.ID
	Date    *time.Time
	Month   *period.Month
}

type Service interface {
	UpsertOrder(ctx context.Context, caller authorization.Caller, req UpsertOrderRequest) (Order, error)
	SetStatus(ctx context.Context, caller authorization.Caller, orderID snowflake.ID, status Status) (Order, error)
	GenerateDefaults(ctx context.Context, caller authorization.Caller, req GenerateDefaultsRequest) (int, error)
	List(ctx context.Context, caller authorization.Caller, req ListOrdersRequest) ([]Order, error)
}

var (
	ErrNotFound         = errors.New("order_not_found")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidDate      = errors.New("invalid_date")
	ErrInvalidDays      = errors.New("invalid_days")
	ErrInvalidOwner     = errors.New("invalid_owner_id")
	ErrStatusNotAllowed = errors.New("status_not_allowed")
	ErrDateNotInFuture  = errors.New("date_not_in_future")
	ErrEditWindowClosed = errors.New("edit_window_closed")
)
