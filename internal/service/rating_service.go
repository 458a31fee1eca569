package service

import (
	"context"
	"errors"
	"fmt"

	"coursepay/internal/apperr"
	"coursepay/internal/model"
	"coursepay/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RatingAggregator 在评价变更的同一事务内全量重算课程评分
type RatingAggregator struct {
	logger     *zap.Logger
	courseRepo *repository.CourseRepository
	reviewRepo *repository.ReviewRepository
}

func NewRatingAggregator(db *gorm.DB, logger *zap.Logger) *RatingAggregator {
	return &RatingAggregator{
		logger:     logger.Named("rating"),
		courseRepo: repository.NewCourseRepository(db),
		reviewRepo: repository.NewReviewRepository(db),
	}
}

// AverageRating 平均分保留一位小数，没有评价时为 0
func AverageRating(stats repository.RatingStats) decimal.Decimal {
	if stats.ReviewCount == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(stats.RatingSum).
		Div(decimal.NewFromInt(stats.ReviewCount)).
		Round(1)
}

// Recompute 必须在事务内调用
func (a *RatingAggregator) Recompute(ctx context.Context, tx *gorm.DB, courseID int64) (*model.Course, error) {
	course, err := a.lockCourse(ctx, tx, courseID)
	if err != nil {
		return nil, err
	}

	stats, err := a.reviewRepo.Stats(ctx, tx, courseID)
	if err != nil {
		return nil, fmt.Errorf("统计评价失败: %w", err)
	}

	rating := AverageRating(stats)
	if err := a.courseRepo.UpdateRating(ctx, tx, courseID, rating, stats.ReviewCount); err != nil {
		return nil, fmt.Errorf("更新课程评分失败: %w", err)
	}

	course.Rating = rating
	course.ReviewCount = stats.ReviewCount
	return course, nil
}

// lockCourse 锁定课程行，同一课程的评价变更串行执行。
// 评价存在而课程不存在属于数据不一致。
func (a *RatingAggregator) lockCourse(ctx context.Context, tx *gorm.DB, courseID int64) (*model.Course, error) {
	course, err := a.courseRepo.GetByIDForUpdate(ctx, tx, courseID)
	if err != nil {
		if errors.Is(err, apperr.ErrCourseNotFound) {
			a.logger.Error("重算评分时课程不存在", zap.Int64("course_id", courseID))
			return nil, apperr.Wrap(apperr.ErrInvariantViolation, fmt.Errorf("course %d not found", courseID))
		}
		return nil, err
	}
	return course, nil
}
