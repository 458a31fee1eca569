package service

import (
	"context"
	"fmt"

	"coursepay/internal/model"
	"coursepay/internal/repository"

	"gorm.io/gorm"
)

// AccountService 余额与流水查询
type AccountService struct {
	userRepo  *repository.UserRepository
	entryRepo *repository.EntryRepository
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{
		userRepo:  repository.NewUserRepository(db),
		entryRepo: repository.NewEntryRepository(db),
	}
}

func (s *AccountService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return 0, err
	}
	return user.Balance, nil
}

func (s *AccountService) ListEntries(ctx context.Context, userID int64) ([]*model.BalanceEntry, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}
	entries, err := s.entryRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}
	return entries, nil
}
