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

type GenerateBillRequest struct {
	OwnerID snowflake.ID
	Month   period.Month
	// Force confirms overwriting a bill that is already Paid.
	Force bool
}

// Skip reasons reported by the batch.
const (
	SkipNoDeliveries = "no_deliveries"
	SkipAlreadyPaid  = "already_paid"
)

type OwnerResult struct {
	OwnerID     snowflake.ID    `json:"owner_id"`
	BillID      snowflake.ID    `json:"bill_id,omitempty"`
	TotalLiters decimal.Decimal `json:"total_liters"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	LinkSource  LinkSource      `json:"link_source,omitempty"`
	Skipped     bool            `json:"skipped"`
	SkipReason  string          `json:"skip_reason,omitempty"`
	Error       string          `json:"error,omitempty"`
}

type Summary struct {
	Month     string        `json:"month"`
	Generated int           `json:"generated"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Results   []OwnerResult `json:"results"`
}

type ListBillsRequest struct {
	OwnerID snowflake.ID
	Month   *period.Month
	Status  Status
}

type ReminderSummary struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
}

type Service interface {
	GenerateBill(ctx context.Context, req GenerateBillRequest) (Bill, error)
	GenerateAllBills(ctx context.Context, month period.Month) (Summary, error)
	SetStatus(ctx context.Context, caller authorization.Caller, billID snowflake.ID, status Status) (Bill, error)
	Get(ctx context.Context, caller authorization.Caller, billID snowflake.ID) (Bill, error)
	List(ctx context.Context, caller authorization.Caller, req ListBillsRequest) ([]Bill, error)
	RenderStatement(ctx context.Context, caller authorization.Caller, billID snowflake.ID) ([]byte, error)
	SendReminders(ctx context.Context, asOf time.Time) (ReminderSummary, error)
}

var (
	ErrNotFound              = errors.New("bill_not_found")
	ErrInvalidStatus         = errors.New("invalid_bill_status")
	ErrInvalidMonth          = errors.New("invalid_month")
	ErrInvalidOwner          = errors.New("invalid_owner_id")
	ErrBillAlreadyPaid       = errors.New("bill_already_paid")
	ErrPaymentRecordRequired = errors.New("payment_record_required")
)
