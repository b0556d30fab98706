package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending      Status = "Pending"
	StatusDelivered    Status = "Delivered"
	StatusNotDelivered Status = "NotDelivered"
	StatusCancelled    Status = "Cancelled"
)

// ParseStatus accepts only the canonical spelling. Legacy forms are
// rewritten by a data migration and never reach this path.
func ParseStatus(value string) (Status, error) {
	switch status := Status(strings.TrimSpace(value)); status {
	case StatusPending, StatusDelivered, StatusNotDelivered, StatusCancelled:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Order is the single delivery record of one owner for one calendar date.
type Order struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	OwnerID      snowflake.ID    `gorm:"column:owner_id" json:"owner_id"`
	OrderDate    time.Time       `gorm:"column:order_date" json:"date"`
	Quantity     decimal.Decimal `gorm:"type:numeric" json:"quantity"`
	Status       Status          `json:"status"`
	PricePerUnit decimal.Decimal `gorm:"column:price_per_unit;type:numeric" json:"price_per_unit"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// Amount is the order value at its frozen price.
func (o Order) Amount() decimal.Decimal {
	return o.Quantity.Mul(o.PricePerUnit)
}
