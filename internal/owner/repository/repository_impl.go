package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/milkbill/internal/owner/domain"
	"gorm.io/gorm"
)

const ownerColumns = `id, name, email, role, phone, address, contact_person, default_quantity, skip_days, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, owner *domain.Owner) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO owners (`+ownerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		owner.ID,
		owner.Name,
		owner.Email,
		owner.Role,
		owner.Phone,
		owner.Address,
		owner.ContactPerson,
		owner.DefaultQuantity,
		owner.SkipDays,
		owner.CreatedAt,
		owner.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Owner, error) {
	var owner domain.Owner
	err := db.WithContext(ctx).Raw(
		`SELECT `+ownerColumns+` FROM owners WHERE id = ?`,
		id,
	).Scan(&owner).Error
	if err != nil {
		return nil, err
	}
	if owner.ID == 0 {
		return nil, nil
	}
	return &owner, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Owner, error) {
	var owner domain.Owner
	err := db.WithContext(ctx).Raw(
		`SELECT `+ownerColumns+` FROM owners WHERE LOWER(email) = ?`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&owner).Error
	if err != nil {
		return nil, err
	}
	if owner.ID == 0 {
		return nil, nil
	}
	return &owner, nil
}

func (r *repo) ListByRole(ctx context.Context, db *gorm.DB, role string) ([]*domain.Owner, error) {
	var owners []*domain.Owner
	err := db.WithContext(ctx).Raw(
		`SELECT `+ownerColumns+` FROM owners WHERE role = ? ORDER BY id ASC`,
		role,
	).Scan(&owners).Error
	if err != nil {
		return nil, err
	}
	return owners, nil
}

func (r *repo) UpdateSettings(ctx context.Context, db *gorm.DB, owner *domain.Owner) error {
	return db.WithContext(ctx).Exec(
		`UPDATE owners
		 SET default_quantity = ?, skip_days = ?, address = ?, phone = ?, contact_person = ?, updated_at = ?
		 WHERE id = ?`,
		owner.DefaultQuantity,
		owner.SkipDays,
		owner.Address,
		owner.Phone,
		owner.ContactPerson,
		owner.UpdatedAt,
		owner.ID,
	).Error
}
