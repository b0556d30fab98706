package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, setting *PriceSetting) error
	FindEffective(ctx context.Context, db *gorm.DB, asOf time.Time) (*PriceSetting, error)
	List(ctx context.Context, db *gorm.DB, limit int) ([]*PriceSetting, error)
}
