package repository

import (
	"context"

	"coursepay/internal/apperr"
	"coursepay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CourseRepository struct {
	db *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) GetByID(ctx context.Context, tx *gorm.DB, courseID int64) (*model.Course, error) {
	var course model.Course
	err := conn(r.db, tx).WithContext(ctx).Where("id = ?", courseID).First(&course).Error
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrCourseNotFound
		}
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, courseID int64) (*model.Course, error) {
	var course model.Course
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", courseID).
		First(&course).Error
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrCourseNotFound
		}
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) IncrementJoined(ctx context.Context, tx *gorm.DB, courseID int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Course{}).
		Where("id = ?", courseID).
		UpdateColumn("joined_count", gorm.Expr("joined_count + 1"))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.ErrCourseNotFound
	}
	return nil
}

// UpdateRating 写入聚合后的评分。
// MySQL 对值未变化的行返回 0 影响行数，调用方需先锁定课程行确认存在。
func (r *CourseRepository) UpdateRating(ctx context.Context, tx *gorm.DB, courseID int64, rating decimal.Decimal, reviewCount int64) error {
	return tx.WithContext(ctx).
		Model(&model.Course{}).
		Where("id = ?", courseID).
		UpdateColumns(map[string]interface{}{
			"rating":       rating,
			"review_count": reviewCount,
		}).Error
}
