package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/milkbill/internal/billing/domain"
	"gorm.io/gorm"
)

const billColumns = `id, owner_id, billing_month, total_liters, total_amount, status, due_date, payment_link, link_source, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, bill *domain.Bill, overwritePaid bool) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO bills (`+billColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner_id, billing_month) DO UPDATE SET
		   total_liters = excluded.total_liters,
		   total_amount = excluded.total_amount,
		   status = excluded.status,
		   due_date = excluded.due_date,
		   payment_link = excluded.payment_link,
		   link_source = excluded.link_source,
		   updated_at = excluded.updated_at
		 WHERE bills.status <> ? OR ?`,
		bill.ID,
		bill.OwnerID,
		bill.Month,
		bill.TotalLiters,
		bill.TotalAmount,
		bill.Status,
		bill.DueDate,
		bill.PaymentLink,
		bill.LinkSource,
		bill.CreatedAt,
		bill.UpdatedAt,
		domain.StatusPaid,
		overwritePaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Bill, error) {
	var bill domain.Bill
	err := db.WithContext(ctx).Raw(
		`SELECT `+billColumns+` FROM bills WHERE id = ?`,
		id,
	).Scan(&bill).Error
	if err != nil {
		return nil, err
	}
	if bill.ID == 0 {
		return nil, nil
	}
	return &bill, nil
}

func (r *repo) FindByOwnerMonth(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, month string) (*domain.Bill, error) {
	var bill domain.Bill
	err := db.WithContext(ctx).Raw(
		`SELECT `+billColumns+` FROM bills WHERE owner_id = ? AND billing_month = ?`,
		ownerID,
		month,
	).Scan(&bill).Error
	if err != nil {
		return nil, err
	}
	if bill.ID == 0 {
		return nil, nil
	}
	return &bill, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bills SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		updatedAt,
		id,
	).Error
}

func (r *repo) UpdateLink(ctx context.Context, db *gorm.DB, id snowflake.ID, link string, source domain.LinkSource, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bills SET payment_link = ?, link_source = ?, updated_at = ? WHERE id = ?`,
		link,
		source,
		updatedAt,
		id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Bill, error) {
	var bills []*domain.Bill
	stmt := db.WithContext(ctx).Model(&domain.Bill{})
	if filter.OwnerID != 0 {
		stmt = stmt.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Month != "" {
		stmt = stmt.Where("billing_month = ?", filter.Month)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if err := stmt.Order("due_date desc, id desc").Find(&bills).Error; err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repo) ListPendingDueBy(ctx context.Context, db *gorm.DB, dueBy time.Time) ([]*domain.Bill, error) {
	var bills []*domain.Bill
	err := db.WithContext(ctx).
		Model(&domain.Bill{}).
		Where("status = ? AND due_date <= ?", domain.StatusPending, dueBy).
		Order("due_date asc, id asc").
		Find(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repo) HasSuccessfulPayment(ctx context.Context, db *gorm.DB, billID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM payment_records WHERE bill_id = ? AND status = 'Success'`,
		billID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
