package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/milkbill/internal/billing/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
	StatusPending Status = "Pending"
)

func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusSuccess, StatusFailed, StatusPending:
		return Status(value), nil
	}
	return "", ErrInvalidStatus
}

// Source records which entry path produced a payment record.
type Source string

const (
	SourceWebhook  Source = "webhook"
	SourceCallback Source = "callback"
	SourceManual   Source = "manual"
)

const DefaultManualMethod = "Cash"

type PaymentRecord struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	BillID         snowflake.ID    `gorm:"not null" json:"bill_id"`
	OwnerID        snowflake.ID    `gorm:"not null" json:"owner_id"`
	Amount         decimal.Decimal `gorm:"type:numeric" json:"amount"`
	TransactionID  string          `gorm:"column:transaction_id;not null" json:"transaction_id"`
	Status         Status          `gorm:"not null" json:"status"`
	Method         string          `json:"method"`
	Source         Source          `gorm:"not null" json:"source"`
	PaymentDate    time.Time       `gorm:"column:payment_date" json:"payment_date"`
	GatewayPayload datatypes.JSON  `gorm:"column:gateway_payload" json:"gateway_payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

// Confirmation is an authoritative payment outcome handed to the reconciler
// by one of its entry paths.
type Confirmation struct {
	TransactionID string
	GatewayStatus string
	Amount        decimal.Decimal
	Method        string
	BillRef       string
	OwnerRef      string
	PaidAt        time.Time
	Source        Source
	Payload       []byte
}

type Result struct {
	Record     *PaymentRecord       `json:"payment,omitempty"`
	BillID     snowflake.ID         `json:"bill_id,omitempty"`
	BillStatus billingdomain.Status `json:"bill_status,omitempty"`
	Duplicate  bool                 `json:"duplicate"`
	Ignored    bool                 `json:"ignored"`
	RawStatus  string               `json:"raw_status,omitempty"`
}
