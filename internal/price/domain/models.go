package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PriceSetting is one append-only entry of the per-liter price history.
type PriceSetting struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	EffectiveDate time.Time       `gorm:"column:effective_date" json:"effective_date"`
	PricePerLiter decimal.Decimal `gorm:"column:price_per_liter;type:numeric" json:"price_per_liter"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (PriceSetting) TableName() string { return "price_settings" }
