package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/milkbill/internal/authorization"
	"github.com/smallbiznis/milkbill/internal/gateway"
	"github.com/smallbiznis/milkbill/internal/payment/domain"
	"go.uber.org/zap"
)

// HandleWebhook verifies the signature over the raw body before anything is parsed.
func (s *Service) HandleWebhook(ctx context.Context, raw []byte, signature string) (domain.Result, error) {
	if err := s.gateway.VerifyWebhook(raw, signature); err != nil {
		s.metrics.RecordPaymentEvent(ctx, string(domain.SourceWebhook), outcomeRejected)
		s.log.Warn("webhook rejected", zap.Error(err))
		return domain.Result{}, gateway.ErrSignatureInvalid
	}

	event, err := s.gateway.ParseWebhook(raw)
	if err != nil {
		return domain.Result{}, err
	}
	if event.Payment == nil || (event.Event != gateway.EventPaymentCaptured && event.Event != gateway.EventPaymentFailed) {
		s.metrics.RecordPaymentEvent(ctx, string(domain.SourceWebhook), outcomeIgnored)
		s.log.Info("webhook event ignored", zap.String("event", event.Event))
		return domain.Result{Ignored: true, RawStatus: event.Event}, nil
	}

	payment := event.Payment
	status := payment.Status
	if status == "" {
		status = strings.TrimPrefix(event.Event, "payment.")
	}
	return s.reconcile(ctx, domain.Confirmation{
		TransactionID: payment.ID,
		GatewayStatus: status,
		Amount:        payment.Amount,
		Method:        payment.Method,
		BillRef:       payment.Notes.BillRef,
		OwnerRef:      payment.Notes.OwnerRef,
		PaidAt:        payment.CreatedAt,
		Source:        domain.SourceWebhook,
		Payload:       payment.Raw,
	}, reconcileOptions{})
}

// VerifyCallback re-fetches the payment from the gateway; the browser's claim is never trusted.
func (s *Service) VerifyCallback(ctx context.Context, caller authorization.Caller, req domain.VerifyRequest) (domain.Result, error) {
	if caller.Role == "" || caller.ID == 0 {
		return domain.Result{}, authorization.ErrUnauthorized
	}
	transactionID := strings.TrimSpace(req.TransactionID)
	if transactionID == "" {
		return domain.Result{}, domain.ErrInvalidTransaction
	}
	s.log.Info("verifying payment",
		zap.String("transaction_id", transactionID),
		zap.String("payment_link_id", strings.TrimSpace(req.PaymentLinkID)),
		zap.String("caller_id", caller.ID.String()),
	)
	if req.OrderID != "" && req.Signature != "" {
		if err := s.gateway.VerifyPaymentSignature(req.OrderID, transactionID, req.Signature); err != nil {
			s.metrics.RecordPaymentEvent(ctx, string(domain.SourceCallback), outcomeRejected)
			return domain.Result{}, gateway.ErrSignatureInvalid
		}
	}

	details, err := s.gateway.FetchPayment(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gateway.ErrPaymentNotFound) {
			return domain.Result{}, err
		}
		s.log.Warn("payment lookup failed",
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
		if errors.Is(err, gateway.ErrGatewayUnavailable) {
			return domain.Result{}, err
		}
		return domain.Result{}, fmt.Errorf("%w: %v", gateway.ErrGatewayUnavailable, err)
	}

	return s.reconcile(ctx, domain.Confirmation{
		TransactionID: details.ID,
		GatewayStatus: details.Status,
		Amount:        details.Amount,
		Method:        details.Method,
		BillRef:       details.Notes.BillRef,
		OwnerRef:      details.Notes.OwnerRef,
		PaidAt:        details.CreatedAt,
		Source:        domain.SourceCallback,
		Payload:       details.Raw,
	}, reconcileOptions{guard: &caller, fallbackOwner: caller.ID})
}

// RecordManualPayment stores an admin-entered payment. Pending records never touch the bill.
func (s *Service) RecordManualPayment(ctx context.Context, caller authorization.Caller, req domain.ManualPaymentRequest) (domain.Result, error) {
	if !caller.IsPrivileged() {
		return domain.Result{}, authorization.ErrForbidden
	}
	if req.BillID == 0 {
		return domain.Result{}, domain.ErrBillNotFound
	}
	if !req.Amount.IsPositive() {
		return domain.Result{}, domain.ErrInvalidAmount
	}
	transactionID := strings.TrimSpace(req.TransactionID)
	if transactionID == "" {
		return domain.Result{}, domain.ErrInvalidTransaction
	}
	status := req.Status
	if status == "" {
		status = domain.StatusSuccess
	}
	status, err := domain.ParseStatus(string(status))
	if err != nil {
		return domain.Result{}, err
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = domain.DefaultManualMethod
	}

	payload, err := json.Marshal(map[string]string{
		"recorded_by": caller.ID.String(),
		"status":      string(status),
	})
	if err != nil {
		return domain.Result{}, err
	}

	if status == domain.StatusPending {
		return s.recordPending(ctx, req, transactionID, method, payload)
	}

	gatewayStatus := gateway.StatusCaptured
	if status == domain.StatusFailed {
		gatewayStatus = gateway.StatusFailed
	}
	return s.reconcile(ctx, domain.Confirmation{
		TransactionID: transactionID,
		GatewayStatus: gatewayStatus,
		Amount:        req.Amount,
		Method:        method,
		BillRef:       req.BillID.String(),
		PaidAt:        s.now(),
		Source:        domain.SourceManual,
		Payload:       payload,
	}, reconcileOptions{})
}

func (s *Service) recordPending(ctx context.Context, req domain.ManualPaymentRequest, transactionID, method string, payload []byte) (domain.Result, error) {
	bill, err := s.resolveBill(ctx, req.BillID.String(), reconcileOptions{})
	if err != nil {
		return domain.Result{}, err
	}

	now := s.now()
	record := domain.PaymentRecord{
		ID:             s.genID.Generate(),
		BillID:         bill.ID,
		OwnerID:        bill.OwnerID,
		Amount:         req.Amount.Round(2),
		TransactionID:  transactionID,
		Status:         domain.StatusPending,
		Method:         method,
		Source:         domain.SourceManual,
		PaymentDate:    now,
		GatewayPayload: payloadOf(payload),
		CreatedAt:      now,
	}
	inserted, err := s.repo.Insert(ctx, s.db, &record)
	if err != nil {
		return domain.Result{}, err
	}
	if !inserted {
		existing, err := s.repo.FindByTransactionID(ctx, s.db, transactionID)
		if err != nil {
			return domain.Result{}, err
		}
		if existing == nil {
			return domain.Result{}, errTransactionRecorded
		}
		return s.duplicate(ctx, domain.SourceManual, existing, reconcileOptions{})
	}
	s.log.Info("pending manual payment recorded",
		zap.String("transaction_id", transactionID),
		zap.String("bill_id", bill.ID.String()),
	)
	return domain.Result{Record: &record, BillID: bill.ID, BillStatus: bill.Status}, nil
}
