package repository

import (
	"context"

	"github.com/smallbiznis/milkbill/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.LogEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO notification_logs (id, owner_id, channel, category, message, status, error, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.OwnerID,
		entry.Channel,
		entry.Category,
		entry.Message,
		entry.Status,
		entry.Error,
		entry.SentAt,
	).Error
}

// List returns up to Limit+1 rows newest first, after the cursor when set.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.LogEntry, error) {
	var items []*domain.LogEntry
	stmt := db.WithContext(ctx).Model(&domain.LogEntry{})
	if filter.OwnerID != 0 {
		stmt = stmt.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.After != nil {
		stmt = stmt.Where("(sent_at < ? OR (sent_at = ? AND id < ?))",
			filter.After.CreatedAt, filter.After.CreatedAt, filter.After.ID)
	}
	err := stmt.Order("sent_at desc, id desc").Limit(filter.Limit + 1).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
