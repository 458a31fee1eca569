package service

import (
	"context"
	"errors"
	"fmt"

	"coursepay/internal/apperr"
	"coursepay/internal/model"
	"coursepay/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ReviewService struct {
	db           *gorm.DB
	logger       *zap.Logger
	rating       *RatingAggregator
	userRepo     *repository.UserRepository
	courseRepo   *repository.CourseRepository
	purchaseRepo *repository.PurchaseRepository
	reviewRepo   *repository.ReviewRepository
}

func NewReviewService(db *gorm.DB, rating *RatingAggregator, logger *zap.Logger) *ReviewService {
	return &ReviewService{
		db:           db,
		logger:       logger.Named("review"),
		rating:       rating,
		userRepo:     repository.NewUserRepository(db),
		courseRepo:   repository.NewCourseRepository(db),
		purchaseRepo: repository.NewPurchaseRepository(db),
		reviewRepo:   repository.NewReviewRepository(db),
	}
}

// Submit 已购用户对课程发表评价，每门课程只能评价一次
func (s *ReviewService) Submit(ctx context.Context, userID, courseID int64, rating int, comment *string) (*model.Review, error) {
	if !model.ValidRating(rating) {
		return nil, apperr.ErrInvalidRating
	}

	review := &model.Review{
		UserID:   userID,
		CourseID: courseID,
		Rating:   rating,
		Comment:  comment,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// 先锁课程行，同一课程的评价变更依次执行
		if _, err := s.courseRepo.GetByIDForUpdate(ctx, tx, courseID); err != nil {
			return err
		}

		purchased, err := s.purchaseRepo.Exists(ctx, tx, userID, courseID)
		if err != nil {
			return fmt.Errorf("查询购买记录失败: %w", err)
		}
		if !purchased {
			return apperr.ErrNotPurchased
		}

		reviewed, err := s.reviewRepo.Exists(ctx, tx, userID, courseID)
		if err != nil {
			return fmt.Errorf("查询评价失败: %w", err)
		}
		if reviewed {
			return apperr.ErrAlreadyReviewed
		}

		if err := s.reviewRepo.Create(ctx, tx, review); err != nil {
			return err
		}

		_, err = s.rating.Recompute(ctx, tx, courseID)
		return err
	})
	if err != nil {
		return nil, wrapTxError("评价事务失败", err)
	}

	s.logger.Info("提交评价", zap.Int64("user_id", userID), zap.Int64("course_id", courseID), zap.Int("rating", rating))
	return review, nil
}

// Update 只有作者本人可以修改
func (s *ReviewService) Update(ctx context.Context, reviewID, actorID int64, rating int, comment *string) (*model.Review, error) {
	if !model.ValidRating(rating) {
		return nil, apperr.ErrInvalidRating
	}

	var updated *model.Review
	err := s.db.Transaction(func(tx *gorm.DB) error {
		review, err := s.reviewRepo.GetByID(ctx, tx, reviewID)
		if err != nil {
			return err
		}
		if review.UserID != actorID {
			return apperr.ErrUnauthorized
		}

		if _, err := s.rating.lockCourse(ctx, tx, review.CourseID); err != nil {
			return err
		}

		if err := s.reviewRepo.UpdateContent(ctx, tx, reviewID, rating, comment); err != nil {
			return fmt.Errorf("更新评价失败: %w", err)
		}

		if _, err := s.rating.Recompute(ctx, tx, review.CourseID); err != nil {
			return err
		}

		updated, err = s.reviewRepo.GetByID(ctx, tx, reviewID)
		return err
	})
	if err != nil {
		return nil, wrapTxError("评价事务失败", err)
	}

	s.logger.Info("修改评价", zap.Int64("review_id", reviewID), zap.Int("rating", rating))
	return updated, nil
}

// Delete 作者本人或管理员可以删除
func (s *ReviewService) Delete(ctx context.Context, reviewID, actorID int64) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		review, err := s.reviewRepo.GetByID(ctx, tx, reviewID)
		if err != nil {
			return err
		}

		if review.UserID != actorID {
			actor, err := s.userRepo.GetByID(ctx, tx, actorID)
			if err != nil {
				if errors.Is(err, apperr.ErrUserNotFound) {
					return apperr.ErrUnauthorized
				}
				return err
			}
			if !actor.IsAdmin() {
				return apperr.ErrUnauthorized
			}
		}

		if _, err := s.rating.lockCourse(ctx, tx, review.CourseID); err != nil {
			return err
		}

		if err := s.reviewRepo.Delete(ctx, tx, reviewID); err != nil {
			return err
		}

		_, err = s.rating.Recompute(ctx, tx, review.CourseID)
		return err
	})
	if err != nil {
		return wrapTxError("评价事务失败", err)
	}

	s.logger.Info("删除评价", zap.Int64("review_id", reviewID), zap.Int64("actor_id", actorID))
	return nil
}

func (s *ReviewService) ListByCourse(ctx context.Context, courseID int64) ([]*model.Review, error) {
	if _, err := s.courseRepo.GetByID(ctx, nil, courseID); err != nil {
		return nil, err
	}
	reviews, err := s.reviewRepo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("查询评价失败: %w", err)
	}
	return reviews, nil
}
