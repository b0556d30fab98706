package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, owner *Owner) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Owner, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Owner, error)
	ListByRole(ctx context.Context, db *gorm.DB, role string) ([]*Owner, error)
	UpdateSettings(ctx context.Context, db *gorm.DB, owner *Owner) error
}
