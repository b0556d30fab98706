package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/milkbill/internal/config"
	"github.com/smallbiznis/milkbill/internal/observability/metrics"
	"github.com/smallbiznis/milkbill/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
)

var tracer = otel.Tracer("milkbill/gateway")

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type Razorpay struct {
	baseURL       string
	callbackURL   string
	keyID         string
	keySecret     string
	webhookSecret string
	currency      string
	timeout       time.Duration

	client  *http.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(p Params) Gateway {
	return NewRazorpay(p.Config, p.Log, p.Metrics, nil)
}

// NewRazorpay builds the adapter. A nil client uses a plain http.Client.
func NewRazorpay(cfg config.Config, log *zap.Logger, m *metrics.Metrics, client *http.Client) *Razorpay {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Razorpay.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Razorpay.Currency))
	if currency == "" {
		currency = "INR"
	}

	r := &Razorpay{
		baseURL:       strings.TrimRight(cfg.Razorpay.BaseURL, "/"),
		callbackURL:   strings.TrimRight(cfg.BaseURL, "/") + "/payment/callback",
		keyID:         strings.TrimSpace(cfg.Razorpay.KeyID),
		keySecret:     strings.TrimSpace(cfg.Razorpay.KeySecret),
		webhookSecret: strings.TrimSpace(cfg.Razorpay.WebhookSecret),
		currency:      currency,
		timeout:       timeout,
		client:        client,
		log:           log.Named("gateway.razorpay"),
		metrics:       m,
	}
	if !r.Enabled() {
		r.log.Warn("razorpay key not configured, payment links will use the fallback URL")
	}
	return r
}

func (r *Razorpay) Enabled() bool {
	return r.keyID != "" && r.keySecret != ""
}

type linkCustomer struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

type linkNotify struct {
	SMS   bool `json:"sms"`
	Email bool `json:"email"`
}

type createLinkBody struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description"`
	Customer       linkCustomer      `json:"customer"`
	Notify         linkNotify        `json:"notify"`
	ReminderEnable bool              `json:"reminder_enable"`
	Notes          map[string]string `json:"notes"`
	CallbackURL    string            `json:"callback_url"`
	CallbackMethod string            `json:"callback_method"`
}

type linkResponse struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (r *Razorpay) CreatePaymentLink(ctx context.Context, req LinkRequest) (string, error) {
	if !r.Enabled() {
		return "", ErrGatewayUnavailable
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("%w: amount must be positive", ErrGatewayRejected)
	}

	description := req.Description
	if description == "" {
		description = "Monthly Milk Delivery Bill - " + req.BillRef
	}
	body := createLinkBody{
		Amount:      ToMinorUnits(req.Amount),
		Currency:    r.currency,
		Description: description,
		Customer: linkCustomer{
			Name:    req.Customer.Name,
			Email:   req.Customer.Email,
			Contact: req.Customer.Phone,
		},
		Notify:         linkNotify{SMS: true, Email: true},
		ReminderEnable: true,
		Notes: map[string]string{
			"billId": req.BillRef,
			"userId": req.OwnerRef,
		},
		CallbackURL:    r.callbackURL,
		CallbackMethod: "get",
	}

	var out linkResponse
	if _, err := r.do(ctx, "create_payment_link", http.MethodPost, "/payment_links", body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ShortURL) == "" {
		return "", fmt.Errorf("%w: empty short_url", ErrInvalidPayload)
	}
	r.log.Info("payment link created",
		zap.String("bill_id", req.BillRef),
		zap.String("link_id", out.ID),
	)
	return out.ShortURL, nil
}

func (r *Razorpay) FetchPayment(ctx context.Context, transactionID string) (PaymentDetails, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return PaymentDetails{}, ErrPaymentNotFound
	}
	if !r.Enabled() {
		return PaymentDetails{}, ErrGatewayUnavailable
	}

	raw, err := r.do(ctx, "fetch_payment", http.MethodGet, "/payments/"+url.PathEscape(transactionID), nil, nil)
	if err != nil {
		return PaymentDetails{}, err
	}
	var entity paymentEntity
	if err := json.Unmarshal(raw, &entity); err != nil {
		return PaymentDetails{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return entity.details(raw)
}

func (r *Razorpay) VerifyWebhook(raw []byte, signature string) error {
	return VerifySignature(raw, signature, r.webhookSecret)
}

func (r *Razorpay) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	if strings.TrimSpace(orderID) == "" || strings.TrimSpace(paymentID) == "" {
		return ErrSignatureInvalid
	}
	return VerifySignature([]byte(orderID+"|"+paymentID), signature, r.keySecret)
}

func (r *Razorpay) ParseWebhook(raw []byte) (WebhookEvent, error) {
	return ParseWebhook(raw)
}

// do performs one bounded API call. out may be nil when the caller wants the raw body.
func (r *Razorpay) do(ctx context.Context, operation, method, path string, in any, out any) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "gateway."+operation)
	defer span.End()
	span.SetAttributes(attribute.String("operation", operation))

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	raw, err := r.send(ctx, method, path, in)
	r.metrics.ObserveGatewayCall(ctx, operation, time.Since(started), err)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, operation+" failed")
		r.log.Warn("gateway call failed",
			zap.String("operation", operation),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return nil, err
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	return raw, nil
}

func (r *Razorpay) send(ctx context.Context, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(r.keyID, r.keySecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timeout", ErrGatewayUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPaymentNotFound
	case resp.StatusCode >= http.StatusBadRequest:
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		message := strings.TrimSpace(apiErr.Error.Description)
		if message == "" {
			message = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, message)
	}
	return raw, nil
}

// ToMinorUnits converts rupees to paise.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
