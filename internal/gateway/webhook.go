package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity json.RawMessage `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Status    string          `json:"status"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Method    string          `json:"method"`
	CreatedAt int64           `json:"created_at"`
	Notes     json.RawMessage `json:"notes"`
}

func (e paymentEntity) details(raw []byte) (PaymentDetails, error) {
	if strings.TrimSpace(e.ID) == "" {
		return PaymentDetails{}, fmt.Errorf("%w: missing payment id", ErrInvalidPayload)
	}
	details := PaymentDetails{
		ID:       e.ID,
		OrderID:  e.OrderID,
		Status:   strings.ToLower(strings.TrimSpace(e.Status)),
		Amount:   FromMinorUnits(e.Amount),
		Currency: strings.ToUpper(e.Currency),
		Method:   e.Method,
		Notes:    parseNotes(e.Notes),
		Raw:      raw,
	}
	if e.CreatedAt > 0 {
		details.CreatedAt = time.Unix(e.CreatedAt, 0).UTC()
	}
	return details, nil
}

// parseNotes tolerates the empty-array form the API uses when no notes are set.
func parseNotes(raw json.RawMessage) Notes {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Notes{}
	}
	var notes map[string]any
	if err := json.Unmarshal(raw, &notes); err != nil {
		return Notes{}
	}
	return Notes{
		BillRef:  noteString(notes["billId"]),
		OwnerRef: noteString(notes["userId"]),
	}
}

func noteString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// ParseWebhook extracts the event name and, when present, the payment entity.
func ParseWebhook(raw []byte) (WebhookEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	event := WebhookEvent{Event: strings.TrimSpace(envelope.Event)}
	if envelope.Payload.Payment == nil || len(envelope.Payload.Payment.Entity) == 0 {
		return event, nil
	}

	var entity paymentEntity
	if err := json.Unmarshal(envelope.Payload.Payment.Entity, &entity); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	details, err := entity.details(envelope.Payload.Payment.Entity)
	if err != nil {
		return WebhookEvent{}, err
	}
	event.Payment = &details
	return event, nil
}
