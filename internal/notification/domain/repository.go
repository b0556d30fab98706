package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/milkbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	OwnerID snowflake.ID
	After   *pagination.Cursor
	Limit   int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *LogEntry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*LogEntry, error)
}
