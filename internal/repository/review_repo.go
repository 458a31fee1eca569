package repository

import (
	"context"

	"coursepay/internal/apperr"
	"coursepay/internal/model"

	"gorm.io/gorm"
)

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) Create(ctx context.Context, tx *gorm.DB, review *model.Review) error {
	err := conn(r.db, tx).WithContext(ctx).Create(review).Error
	if isDuplicate(err) {
		return apperr.ErrAlreadyReviewed
	}
	return err
}

func (r *ReviewRepository) GetByID(ctx context.Context, tx *gorm.DB, reviewID int64) (*model.Review, error) {
	var review model.Review
	err := conn(r.db, tx).WithContext(ctx).Where("id = ?", reviewID).First(&review).Error
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrReviewNotFound
		}
		return nil, err
	}
	return &review, nil
}

func (r *ReviewRepository) Exists(ctx context.Context, tx *gorm.DB, userID, courseID int64) (bool, error) {
	var count int64
	err := conn(r.db, tx).WithContext(ctx).
		Model(&model.Review{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error
	return count > 0, err
}

func (r *ReviewRepository) UpdateContent(ctx context.Context, tx *gorm.DB, reviewID int64, rating int, comment *string) error {
	return tx.WithContext(ctx).
		Model(&model.Review{}).
		Where("id = ?", reviewID).
		Updates(map[string]interface{}{
			"rating":  rating,
			"comment": comment,
		}).Error
}

func (r *ReviewRepository) Delete(ctx context.Context, tx *gorm.DB, reviewID int64) error {
	result := tx.WithContext(ctx).Where("id = ?", reviewID).Delete(&model.Review{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.ErrReviewNotFound
	}
	return nil
}

// ListByCourse 最新的在前，附带评价人的 id 和 name
func (r *ReviewRepository) ListByCourse(ctx context.Context, courseID int64) ([]*model.Review, error) {
	var reviews []*model.Review
	err := r.db.WithContext(ctx).
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name")
		}).
		Where("course_id = ?", courseID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&reviews).Error
	return reviews, err
}

// RatingStats 课程评价的数量与评分总和
type RatingStats struct {
	ReviewCount int64
	RatingSum   int64
}

func (r *ReviewRepository) Stats(ctx context.Context, tx *gorm.DB, courseID int64) (RatingStats, error) {
	var stats RatingStats
	err := conn(r.db, tx).WithContext(ctx).
		Model(&model.Review{}).
		Select("COUNT(*) AS review_count, COALESCE(SUM(rating), 0) AS rating_sum").
		Where("course_id = ?", courseID).
		Scan(&stats).Error
	return stats, err
}
