package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	OwnerID snowflake.ID
	Month   string
	Status  Status
}

type Repository interface {
	// Upsert writes the bill keyed by (owner, month), keeping the existing id on conflict.
	// A stored Paid bill is left untouched unless overwritePaid is set; written
	// reports whether the row was inserted or updated.
	Upsert(ctx context.Context, db *gorm.DB, bill *Bill, overwritePaid bool) (written bool, err error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Bill, error)
	FindByOwnerMonth(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, month string) (*Bill, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, updatedAt time.Time) error
	UpdateLink(ctx context.Context, db *gorm.DB, id snowflake.ID, link string, source LinkSource, updatedAt time.Time) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Bill, error)
	// ListPendingDueBy returns Pending bills due on or before dueBy, oldest due first.
	ListPendingDueBy(ctx context.Context, db *gorm.DB, dueBy time.Time) ([]*Bill, error)
	HasSuccessfulPayment(ctx context.Context, db *gorm.DB, billID snowflake.ID) (bool, error)
}
