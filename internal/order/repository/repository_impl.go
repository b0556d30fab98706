package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/milkbill/internal/order/domain"
	"gorm.io/gorm"
)

const orderColumns = `id, owner_id, order_date, quantity, status, price_per_unit, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, order *domain.Order) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner_id, order_date) DO NOTHING`,
		order.ID,
		order.OwnerID,
		order.OrderDate,
		order.Quantity,
		order.Status,
		order.PricePerUnit,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindByOwnerDate(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, date time.Time) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE owner_id = ? AND order_date = ?`,
		ownerID,
		date,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

// UpdateQuantityStatus never touches price_per_unit.
func (r *repo) UpdateQuantityStatus(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET quantity = ?, status = ?, updated_at = ? WHERE id = ?`,
		order.Quantity,
		order.Status,
		order.UpdatedAt,
		order.ID,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		updatedAt,
		id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Order, error) {
	var orders []*domain.Order
	stmt := db.WithContext(ctx).Model(&domain.Order{})
	if filter.OwnerID != 0 {
		stmt = stmt.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.From != nil {
		stmt = stmt.Where("order_date >= ?", *filter.From)
	}
	if filter.To != nil {
		stmt = stmt.Where("order_date <= ?", *filter.To)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	err := stmt.Order("order_date desc, id desc").Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
