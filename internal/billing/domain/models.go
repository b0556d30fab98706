package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "Pending"
	StatusPaid    Status = "Paid"
	StatusFailed  Status = "Failed"
)

func ParseStatus(value string) (Status, error) {
	switch status := Status(strings.TrimSpace(value)); status {
	case StatusPending, StatusPaid, StatusFailed:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

type LinkSource string

const (
	LinkSourceGateway  LinkSource = "gateway"
	LinkSourceFallback LinkSource = "fallback"
)

// Bill is the monthly statement of one owner. Totals are always derived from orders.
type Bill struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	OwnerID     snowflake.ID    `gorm:"column:owner_id" json:"owner_id"`
	Month       string          `gorm:"column:billing_month" json:"month"`
	TotalLiters decimal.Decimal `gorm:"column:total_liters;type:numeric" json:"total_liters"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:numeric" json:"total_amount"`
	Status      Status          `json:"status"`
	DueDate     time.Time       `gorm:"column:due_date" json:"due_date"`
	PaymentLink string          `gorm:"column:payment_link" json:"payment_link"`
	LinkSource  LinkSource      `gorm:"column:link_source" json:"link_source"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Bill) TableName() string { return "bills" }
