package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	OwnerID snowflake.ID
	BillID  snowflake.ID
}

type Repository interface {
	// Insert reports false when the transaction id is already recorded.
	Insert(ctx context.Context, db *gorm.DB, record *PaymentRecord) (bool, error)
	FindByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*PaymentRecord, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*PaymentRecord, error)
}
