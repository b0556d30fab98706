package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/milkbill/internal/price/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, setting *domain.PriceSetting) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO price_settings (id, effective_date, price_per_liter, created_at)
		 VALUES (?, ?, ?, ?)`,
		setting.ID,
		setting.EffectiveDate,
		setting.PricePerLiter,
		setting.CreatedAt,
	).Error
}

// FindEffective breaks ties on the same effective date by the latest insertion.
func (r *repo) FindEffective(ctx context.Context, db *gorm.DB, asOf time.Time) (*domain.PriceSetting, error) {
	var setting domain.PriceSetting
	err := db.WithContext(ctx).Raw(
		`SELECT id, effective_date, price_per_liter, created_at
		 FROM price_settings
		 WHERE effective_date <= ?
		 ORDER BY effective_date DESC, id DESC
		 LIMIT 1`,
		asOf,
	).Scan(&setting).Error
	if err != nil {
		return nil, err
	}
	if setting.ID == 0 {
		return nil, nil
	}
	return &setting, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, limit int) ([]*domain.PriceSetting, error) {
	var items []*domain.PriceSetting
	err := db.WithContext(ctx).Raw(
		`SELECT id, effective_date, price_per_liter, created_at
		 FROM price_settings
		 ORDER BY effective_date DESC, id DESC
		 LIMIT ?`,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
