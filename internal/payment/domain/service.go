package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/milkbill/internal/authorization"
)

// VerifyRequest comes from a browser returning from the gateway. Only the
// transaction id is trusted, and only as a lookup key.
type VerifyRequest struct {
	TransactionID string
	PaymentLinkID string
	OrderID       string
	Signature     string
}

type ManualPaymentRequest struct {
	BillID        snowflake.ID
	Amount        decimal.Decimal
	TransactionID string
	Method        string
	Status        Status
}

type ListPaymentsRequest struct {
	OwnerID snowflake.ID
	BillID  snowflake.ID
}

type Service interface {
	HandleWebhook(ctx context.Context, raw []byte, signature string) (Result, error)
	VerifyCallback(ctx context.Context, caller authorization.Caller, req VerifyRequest) (Result, error)
	RecordManualPayment(ctx context.Context, caller authorization.Caller, req ManualPaymentRequest) (Result, error)
	List(ctx context.Context, caller authorization.Caller, req ListPaymentsRequest) ([]PaymentRecord, error)
}

var (
	ErrBillNotFound       = errors.New("bill_not_found")
	ErrMissingBillRef     = errors.New("missing_bill_reference")
	ErrInvalidTransaction = errors.New("invalid_transaction_id")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidStatus      = errors.New("invalid_payment_status")
)
