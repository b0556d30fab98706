package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Owner is a customer company or an administrator.
type Owner struct {
	ID              snowflake.ID             `gorm:"primaryKey" json:"id"`
	Name            string                   `gorm:"not null" json:"name"`
	Email           string                   `gorm:"not null" json:"email"`
	Role            string                   `gorm:"not null" json:"role"`
	Phone           string                   `json:"phone,omitempty"`
	Address         string                   `json:"address,omitempty"`
	ContactPerson   string                   `gorm:"column:contact_person" json:"contact_person,omitempty"`
	DefaultQuantity decimal.Decimal          `gorm:"column:default_quantity;type:numeric" json:"default_quantity"`
	SkipDays        datatypes.JSONSlice[int] `gorm:"column:skip_days" json:"skip_days"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

func (Owner) TableName() string { return "owners" }

// Settings are the preferences an owner edits for themselves.
type Settings struct {
	DefaultQuantity decimal.Decimal `json:"default_quantity"`
	SkipDays        []int           `json:"skip_days"`
	Address         string          `json:"address"`
	Phone           string          `json:"phone"`
	ContactPerson   string          `json:"contact_person"`
}

func (o Owner) Settings() Settings {
	skip := []int(o.SkipDays)
	if skip == nil {
		skip = []int{}
	}
	return Settings{
		DefaultQuantity: o.DefaultQuantity,
		SkipDays:        skip,
		Address:         o.Address,
		Phone:           o.Phone,
		ContactPerson:   o.ContactPerson,
	}
}

// SkipsWeekday reports whether deliveries are skipped on weekday.
func (o Owner) SkipsWeekday(weekday time.Weekday) bool {
	for _, day := range o.SkipDays {
		if day == int(weekday) {
			return true
		}
	}
	return false
}
