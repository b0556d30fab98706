package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/milkbill/internal/audit/masking"
	"github.com/smallbiznis/milkbill/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/milkbill/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	razorpaySignatureHeader = "X-Razorpay-Signature"
	maxWebhookBodyBytes     = 1 << 20
)

// verifyPaymentRequest accepts both our field names and the query names the
// gateway appends to the callback URL.
type verifyPaymentRequest struct {
	TransactionID         string `json:"transaction_id"`
	PaymentLinkID         string `json:"payment_link_id"`
	OrderID               string `json:"order_id"`
	Signature             string `json:"signature"`
	RazorpayPaymentID     string `json:"razorpay_payment_id"`
	RazorpayPaymentLinkID string `json:"razorpay_payment_link_id"`
	RazorpaySignature     string `json:"razorpay_signature"`
}

type manualPaymentRequest struct {
	BillID        string          `json:"bill_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
}

func (s *Server) ListPayments(c *gin.Context) {
	ownerID, err := parseOptionalSnowflakeID("owner_id", c.Query("owner_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	billID, err := parseOptionalSnowflakeID("bill_id", c.Query("bill_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), callerFrom(c), paymentdomain.ListPaymentsRequest{
		OwnerID: ownerID,
		BillID:  billID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.VerifyCallback(c.Request.Context(), callerFrom(c), paymentdomain.VerifyRequest{
		TransactionID: firstNonEmpty(req.TransactionID, req.RazorpayPaymentID),
		PaymentLinkID: firstNonEmpty(req.PaymentLinkID, req.RazorpayPaymentLinkID),
		OrderID:       strings.TrimSpace(req.OrderID),
		Signature:     firstNonEmpty(req.Signature, req.RazorpaySignature),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecordManualPayment(c *gin.Context) {
	var req manualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	billID, err := parseRequiredSnowflakeID("bill_id", req.BillID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	manual := paymentdomain.ManualPaymentRequest{
		BillID:        billID,
		Amount:        req.Amount,
		TransactionID: strings.TrimSpace(req.TransactionID),
		Method:        strings.TrimSpace(req.Method),
	}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status, err := paymentdomain.ParseStatus(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		manual.Status = status
	}

	resp, err := s.paymentSvc.RecordManualPayment(c.Request.Context(), callerFrom(c), manual)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c.Request.Context(), "payment.manual", "bill", billID.String(), masking.MaskFields(map[string]any{
		"transaction_id": manual.TransactionID,
		"amount":         manual.Amount.String(),
		"method":         manual.Method,
		"status":         string(manual.Status),
		"duplicate":      resp.Duplicate,
	}, "transaction_id"))

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// HandleRazorpayWebhook answers 200 for duplicates and ignored events so the
// gateway stops retrying them.
func (s *Server) HandleRazorpayWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	result, err := s.paymentSvc.HandleWebhook(ctx, payload, c.GetHeader(razorpaySignatureHeader))
	if err != nil {
		logger.FromContext(ctx).Warn("razorpay webhook rejected", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	status := "processed"
	switch {
	case result.Ignored:
		status = "ignored"
	case result.Duplicate:
		status = "duplicate"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "data": result})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
