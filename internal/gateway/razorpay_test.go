package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/milkbill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		BaseURL: "https://milk.example.com",
		Razorpay: config.RazorpayConfig{
			BaseURL:       baseURL,
			KeyID:         "rzp_test_key",
			KeySecret:     "key_secret",
			WebhookSecret: "webhook_secret",
			Currency:      "INR",
			Timeout:       time.Second,
		},
	}
}

func TestCreatePaymentLinkSendsPaiseAndNotes(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payment_links", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "key_secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"plink_1","short_url":"https://rzp.io/i/abc","status":"created"}`))
	}))
	defer srv.Close()

	gw := NewRazorpay(testConfig(srv.URL), zap.NewNop(), nil, srv.Client())
	link, err := gw.CreatePaymentLink(context.Background(), LinkRequest{
		Amount:   decimal.RequireFromString("1234.56"),
		BillRef:  "101",
		OwnerRef: "202",
		Customer: Customer{Name: "Cafe", Email: "cafe@example.com", Phone: "9999999999"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://rzp.io/i/abc", link)

	assert.Equal(t, float64(123456), got["amount"])
	assert.Equal(t, "INR", got["currency"])
	assert.Equal(t, "https://milk.example.com/payment/callback", got["callback_url"])
	assert.Equal(t, "get", got["callback_method"])
	assert.Equal(t, true, got["reminder_enable"])
	assert.Equal(t, map[string]any{"billId": "101", "userId": "202"}, got["notes"])
	assert.Equal(t, map[string]any{"sms": true, "email": true}, got["notify"])
	customer := got["customer"].(map[string]any)
	assert.Equal(t, "9999999999", customer["contact"])
}

func TestCreatePaymentLinkDisabledWithoutKey(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Razorpay.KeyID = ""
	gw := NewRazorpay(cfg, zap.NewNop(), nil, nil)

	assert.False(t, gw.Enabled())
	_, err := gw.CreatePaymentLink(context.Background(), LinkRequest{Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestGatewayErrorsAreClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/payments/pay_missing":
			w.WriteHeader(http.StatusNotFound)
		case "/payments/pay_bad":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`))
		case "/payments/pay_slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Razorpay.Timeout = 50 * time.Millisecond
	gw := NewRazorpay(cfg, zap.NewNop(), nil, srv.Client())
	ctx := context.Background()

	_, err := gw.FetchPayment(ctx, "pay_missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	_, err = gw.FetchPayment(ctx, "pay_bad")
	assert.ErrorIs(t, err, ErrGatewayRejected)
	assert.Contains(t, err.Error(), "does not exist")

	_, err = gw.FetchPayment(ctx, "pay_down")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	_, err = gw.FetchPayment(ctx, "pay_slow")
	assert.True(t, errors.Is(err, ErrGatewayUnavailable))
}

func TestFetchPaymentParsesEntity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"pay_1","entity":"payment","amount":50000,"currency":"inr","status":"captured","order_id":"order_9","method":"upi","created_at":1710000000,"notes":{"billId":"11","userId":"22"}}`))
	}))
	defer srv.Close()

	gw := NewRazorpay(testConfig(srv.URL), zap.NewNop(), nil, srv.Client())
	details, err := gw.FetchPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, StatusCaptured, details.Status)
	assert.True(t, details.Amount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "INR", details.Currency)
	assert.Equal(t, "upi", details.Method)
	assert.Equal(t, "order_9", details.OrderID)
	assert.Equal(t, Notes{BillRef: "11", OwnerRef: "22"}, details.Notes)
	assert.Equal(t, time.Unix(1710000000, 0).UTC(), details.CreatedAt)
	assert.NotEmpty(t, details.Raw)
}

func TestSignaturesUseTheirOwnSecrets(t *testing.T) {
	gw := NewRazorpay(testConfig("http://unused"), zap.NewNop(), nil, nil)
	body := []byte(`{"event":"payment.captured"}`)

	assert.NoError(t, gw.VerifyWebhook(body, Sign(body, "webhook_secret")))
	assert.ErrorIs(t, gw.VerifyWebhook(body, Sign(body, "key_secret")), ErrSignatureInvalid)
	assert.ErrorIs(t, gw.VerifyWebhook(body, ""), ErrSignatureInvalid)

	direct := Sign([]byte("order_1|pay_1"), "key_secret")
	assert.NoError(t, gw.VerifyPaymentSignature("order_1", "pay_1", direct))
	assert.ErrorIs(t, gw.VerifyPaymentSignature("order_1", "pay_2", direct), ErrSignatureInvalid)
	assert.ErrorIs(t, gw.VerifyPaymentSignature("order_1", "pay_1", Sign([]byte("order_1|pay_1"), "webhook_secret")), ErrSignatureInvalid)
}

func TestVerifySignatureRejectsEmptySecret(t *testing.T) {
	body := []byte("payload")
	assert.ErrorIs(t, VerifySignature(body, Sign(body, ""), ""), ErrSignatureInvalid)
}

func TestParseWebhook(t *testing.T) {
	captured := []byte(`{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_7","amount":1000,"currency":"INR","status":"captured","method":"card","notes":[]}}}}`)
	event, err := ParseWebhook(captured)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentCaptured, event.Event)
	require.NotNil(t, event.Payment)
	assert.Equal(t, "pay_7", event.Payment.ID)
	assert.Equal(t, Notes{}, event.Payment.Notes)
	assert.True(t, event.Payment.Amount.Equal(decimal.NewFromInt(10)))

	other, err := ParseWebhook([]byte(`{"event":"order.paid","payload":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "order.paid", other.Event)
	assert.Nil(t, other.Payment)

	_, err = ParseWebhook([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(10050), ToMinorUnits(decimal.RequireFromString("100.499")))
	assert.True(t, FromMinorUnits(12345).Equal(decimal.RequireFromString("123.45")))
}
