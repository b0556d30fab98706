// Package gateway talks to the external payment gateway: payment links,
// payment lookups and signature checks for pushed and redirected confirmations.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway statuses the reconciler acts on. Anything else is ignored.
const (
	StatusCaptured = "captured"
	StatusFailed   = "failed"
)

// Webhook events carrying a payment entity.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

const SignatureHeader = "X-Razorpay-Signature"

var (
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrGatewayRejected    = errors.New("gateway_request_rejected")
	ErrPaymentNotFound    = errors.New("gateway_payment_not_found")
	ErrSignatureInvalid   = errors.New("signature_invalid")
	ErrInvalidPayload     = errors.New("invalid_gateway_payload")
)

type Customer struct {
	Name  string
	Email string
	Phone string
}

type LinkRequest struct {
	Amount      decimal.Decimal
	BillRef     string
	OwnerRef    string
	Customer    Customer
	Description string
}

// Notes are the references we attach to every link and get back on the payment.
type Notes struct {
	BillRef  string
	OwnerRef string
}

type PaymentDetails struct {
	ID        string
	OrderID   string
	Status    string
	Amount    decimal.Decimal
	Currency  string
	Method    string
	CreatedAt time.Time
	Notes     Notes
	Raw       []byte
}

type WebhookEvent struct {
	Event   string
	Payment *PaymentDetails
}

type Gateway interface {
	// Enabled is false when no API key is configured.
	Enabled() bool
	CreatePaymentLink(ctx context.Context, req LinkRequest) (string, error)
	FetchPayment(ctx context.Context, transactionID string) (PaymentDetails, error)
	VerifyWebhook(raw []byte, signature string) error
	VerifyPaymentSignature(orderID, paymentID, signature string) error
	ParseWebhook(raw []byte) (WebhookEvent, error)
}
