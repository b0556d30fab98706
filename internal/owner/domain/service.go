package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateOwnerRequest struct {
	Name            string
	Email           string
	Role            string
	Phone           string
	Address         string
	ContactPerson   string
	DefaultQuantity *decimal.Decimal
	SkipDays        []int
}

// UpdateSettingsRequest applies only the fields that are set.
type UpdateSettingsRequest struct {
	DefaultQuantity *decimal.Decimal
	SkipDays        *[]int
	Address         *string
	Phone           *string
	ContactPerson   *string
}

type Service interface {
	Create(ctx context.Context, req CreateOwnerRequest) (Owner, error)
	Get(ctx context.Context, id snowflake.ID) (Owner, error)
	ListCompanies(ctx context.Context) ([]Owner, error)
	GetSettings(ctx context.Context, id snowflake.ID) (Settings, error)
	UpdateSettings(ctx context.Context, id snowflake.ID, req UpdateSettingsRequest) (Settings, error)
}

var (
	ErrNotFound          = errors.New("owner_not_found")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidEmail      = errors.New("invalid_email")
	ErrInvalidRole       = errors.New("invalid_role")
	ErrInvalidQuantity   = errors.New("invalid_default_quantity")
	ErrInvalidSkipDays   = errors.New("invalid_skip_days")
	ErrEmailAlreadyTaken = errors.New("email_already_taken")
)
