package repository

import (
	"context"

	"coursepay/internal/apperr"
	"coursepay/internal/model"

	"gorm.io/gorm"
)

type PurchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Create 唯一索引冲突即视为重复购买
func (r *PurchaseRepository) Create(ctx context.Context, tx *gorm.DB, purchase *model.Purchase) error {
	err := conn(r.db, tx).WithContext(ctx).Create(purchase).Error
	if isDuplicate(err) {
		return apperr.ErrAlreadyPurchased
	}
	return err
}

func (r *PurchaseRepository) Exists(ctx context.Context, tx *gorm.DB, userID, courseID int64) (bool, error) {
	var count int64
	err := conn(r.db, tx).WithContext(ctx).
		Model(&model.Purchase{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error
	return count > 0, err
}

// ListCoursesByUser 用户已购课程，按购买时间倒序
func (r *PurchaseRepository) ListCoursesByUser(ctx context.Context, userID int64) ([]*model.Course, error) {
	var courses []*model.Course
	err := r.db.WithContext(ctx).
		Model(&model.Course{}).
		Select("courses.*").
		Joins("JOIN purchases ON purchases.course_id = courses.id").
		Where("purchases.user_id = ?", userID).
		Order("purchases.created_at DESC").
		Order("purchases.id DESC").
		Find(&courses).Error
	return courses, err
}
