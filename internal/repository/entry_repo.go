package repository

import (
	"context"

	"coursepay/internal/model"

	"gorm.io/gorm"
)

type EntryRepository struct {
	db *gorm.DB
}

func NewEntryRepository(db *gorm.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// Create 追加一条流水，(type, reference) 冲突返回 ErrDuplicateEntry
func (r *EntryRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.BalanceEntry) error {
	err := conn(r.db, tx).WithContext(ctx).Create(entry).Error
	if isDuplicate(err) {
		return ErrDuplicateEntry
	}
	return err
}

func (r *EntryRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.BalanceEntry, error) {
	var entries []*model.BalanceEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}
