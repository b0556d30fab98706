package repository

import (
	"context"

	"github.com/smallbiznis/milkbill/internal/payment/domain"
	"gorm.io/gorm"
)

const recordColumns = `id, bill_id, owner_id, amount, transaction_id, status, method, source,
	payment_date, gateway_payload, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (transaction_id) DO NOTHING`,
		record.ID,
		record.BillID,
		record.OwnerID,
		record.Amount,
		record.TransactionID,
		record.Status,
		record.Method,
		record.Source,
		record.PaymentDate,
		record.GatewayPayload,
		record.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*domain.PaymentRecord, error) {
	var item domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM payment_records
		 WHERE transaction_id = ?
		 LIMIT 1`,
		transactionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.PaymentRecord, error) {
	stmt := db.WithContext(ctx).Model(&domain.PaymentRecord{})
	if filter.OwnerID != 0 {
		stmt = stmt.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.BillID != 0 {
		stmt = stmt.Where("bill_id = ?", filter.BillID)
	}

	var records []*domain.PaymentRecord
	if err := stmt.Order("payment_date desc, id desc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
