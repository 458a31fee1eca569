package repository

import (
	"context"

	"coursepay/internal/apperr"
	"coursepay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, tx *gorm.DB, userID int64) (*model.User, error) {
	var user model.User
	err := conn(r.db, tx).WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByIDForUpdate 锁定用户行，同一用户的余额变更串行执行
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.User, error) {
	var user model.User
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Debit 条件扣款，余额不足时不更新任何行
func (r *UserRepository) Debit(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND balance >= ?", userID, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.ErrInsufficientBalance
	}
	return nil
}

func (r *UserRepository) Credit(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("balance", gorm.Expr("balance + ?", amount))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}
