package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"coursepay/internal/apperr"
	"coursepay/internal/config"
	"coursepay/internal/infrastructure/lock"
	"coursepay/internal/model"
	"coursepay/internal/repository"
	"coursepay/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PurchaseService struct {
	db           *gorm.DB
	locks        lock.Factory
	logger       *zap.Logger
	topic        string
	userRepo     *repository.UserRepository
	courseRepo   *repository.CourseRepository
	purchaseRepo *repository.PurchaseRepository
	entryRepo    *repository.EntryRepository
	outboxRepo   *repository.OutboxRepository
}

func NewPurchaseService(db *gorm.DB, cfg *config.Config, locks lock.Factory, logger *zap.Logger) *PurchaseService {
	return &PurchaseService{
		db:           db,
		locks:        locks,
		logger:       logger.Named("purchase"),
		topic:        eventTopic(cfg, cfg.Kafka.Topic.CoursePurchased),
		userRepo:     repository.NewUserRepository(db),
		courseRepo:   repository.NewCourseRepository(db),
		purchaseRepo: repository.NewPurchaseRepository(db),
		entryRepo:    repository.NewEntryRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
	}
}

type PurchaseResult struct {
	NewBalance int64           `json:"new_balance"`
	Purchase   *model.Purchase `json:"purchase"`
}

// CoursePurchasedEvent 购课成功事件
type CoursePurchasedEvent struct {
	PurchaseID  int64     `json:"purchase_id"`
	UserID      int64     `json:"user_id"`
	CourseID    int64     `json:"course_id"`
	PricePaid   int64     `json:"price_paid"`
	NewBalance  int64     `json:"new_balance"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// Purchase 用余额购买课程。
// 免费课程只写入购买记录；付费课程在一个事务内完成扣款、记录、计数、流水和事件。
func (s *PurchaseService) Purchase(ctx context.Context, userID, courseID int64) (*PurchaseResult, error) {
	course, err := s.courseRepo.GetByID(ctx, nil, courseID)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	// 按用户加锁，减少同一用户并发下单的冲突；正确性由唯一索引和行锁保证
	mu := s.locks.NewMutex(lock.UserKey(userID))
	if err := mu.Lock(ctx); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer func() {
		if err := mu.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("释放用户锁失败", zap.Int64("user_id", userID), zap.Error(err))
		}
	}()

	purchased, err := s.purchaseRepo.Exists(ctx, nil, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("查询购买记录失败: %w", err)
	}
	if purchased {
		return nil, apperr.ErrAlreadyPurchased
	}

	if course.IsFree() {
		return s.joinFree(ctx, user, course)
	}

	if user.Balance < course.Price {
		return nil, apperr.ErrInsufficientBalance
	}

	purchase := &model.Purchase{
		UserID:    userID,
		CourseID:  courseID,
		PricePaid: course.Price,
	}
	var newBalance int64

	err = s.db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.userRepo.GetByIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		if err := s.purchaseRepo.Create(ctx, tx, purchase); err != nil {
			return err
		}

		if err := s.userRepo.Debit(ctx, tx, userID, course.Price); err != nil {
			return err
		}
		newBalance = locked.Balance - course.Price

		if err := s.courseRepo.IncrementJoined(ctx, tx, courseID); err != nil {
			return err
		}

		entry := &model.BalanceEntry{
			EntryNo:       idgen.GenerateEntryNo(),
			UserID:        userID,
			Type:          model.EntryTypePurchase,
			Reference:     strconv.FormatInt(purchase.ID, 10),
			Amount:        -course.Price,
			BalanceBefore: locked.Balance,
			BalanceAfter:  newBalance,
			Remark:        fmt.Sprintf("购买课程-%d", courseID),
		}
		if err := s.entryRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		event := CoursePurchasedEvent{
			PurchaseID:  purchase.ID,
			UserID:      userID,
			CourseID:    courseID,
			PricePaid:   course.Price,
			NewBalance:  newBalance,
			PurchasedAt: purchase.CreatedAt,
		}
		if err := s.outboxRepo.Enqueue(ctx, tx, s.topic, entry.Reference, event); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, wrapTxError("购买事务失败", err)
	}

	s.logger.Info("购买成功",
		zap.Int64("user_id", userID),
		zap.Int64("course_id", courseID),
		zap.Int64("price", course.Price),
		zap.Int64("new_balance", newBalance))

	return &PurchaseResult{NewBalance: newBalance, Purchase: purchase}, nil
}

// joinFree 免费课程只写购买记录，余额和人数不变
func (s *PurchaseService) joinFree(ctx context.Context, user *model.User, course *model.Course) (*PurchaseResult, error) {
	purchase := &model.Purchase{UserID: user.ID, CourseID: course.ID}

	if err := s.purchaseRepo.Create(ctx, nil, purchase); err != nil {
		return nil, wrapTxError("加入免费课程失败", err)
	}

	s.logger.Info("加入免费课程", zap.Int64("user_id", user.ID), zap.Int64("course_id", course.ID))
	return &PurchaseResult{NewBalance: user.Balance, Purchase: purchase}, nil
}

// HasAccess 以购买记录为唯一依据
func (s *PurchaseService) HasAccess(ctx context.Context, userID, courseID int64) (bool, error) {
	if _, err := s.courseRepo.GetByID(ctx, nil, courseID); err != nil {
		return false, err
	}
	return s.purchaseRepo.Exists(ctx, nil, userID, courseID)
}

func (s *PurchaseService) ListPurchasedCourses(ctx context.Context, userID int64) ([]*model.Course, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}
	courses, err := s.purchaseRepo.ListCoursesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询已购课程失败: %w", err)
	}
	return courses, nil
}

// eventTopic Kafka 未启用时不写本地消息表
func eventTopic(cfg *config.Config, topic string) string {
	if !cfg.Kafka.Enabled {
		return ""
	}
	return topic
}
