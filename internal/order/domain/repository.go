package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	OwnerID snowflake.ID
	From    *time.Time
	To      *time.Time
	Status  Status
}

type Repository interface {
	// InsertIfAbsent reports false when an order already exists for (owner, date).
	InsertIfAbsent(ctx context.Context, db *gorm.DB, order *Order) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByOwnerDate(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, date time.Time) (*Order, error)
	UpdateQuantityStatus(ctx context.Context, db *gorm.DB, order *Order) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, updatedAt time.Time) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Order, error)
}
