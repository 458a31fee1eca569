package repository

import (
	"context"
	"time"

	"coursepay/internal/apperr"
	"coursepay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TopUpRepository struct {
	db *gorm.DB
}

func NewTopUpRepository(db *gorm.DB) *TopUpRepository {
	return &TopUpRepository{db: db}
}

func (r *TopUpRepository) Create(ctx context.Context, tx *gorm.DB, topUp *model.TopUp) error {
	return conn(r.db, tx).WithContext(ctx).Create(topUp).Error
}

func (r *TopUpRepository) GetByExternalID(ctx context.Context, externalID string) (*model.TopUp, error) {
	var topUp model.TopUp
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&topUp).Error
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrTopUpNotFound
		}
		return nil, err
	}
	return &topUp, nil
}

func (r *TopUpRepository) GetByExternalIDForUpdate(ctx context.Context, tx *gorm.DB, externalID string) (*model.TopUp, error) {
	var topUp model.TopUp
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_id = ?", externalID).
		First(&topUp).Error
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrTopUpNotFound
		}
		return nil, err
	}
	return &topUp, nil
}

// UpdateStatus 条件更新状态，只有当前状态仍为 fromStatus 时才生效。
// 0 行受影响说明已被并发请求推进，返回 ErrStatusConflict。
func (r *TopUpRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, externalID string, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrStatusConflict
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	if model.IsCreditStatus(toStatus) {
		updates["paid_at"] = time.Now()
	}

	result := conn(r.db, tx).WithContext(ctx).
		Model(&model.TopUp{}).
		Where("external_id = ? AND status = ?", externalID, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// GetPendingBefore 创建时间早于 before 且仍未终结的充值单
func (r *TopUpRepository) GetPendingBefore(ctx context.Context, before time.Time, limit int) ([]*model.TopUp, error) {
	var topUps []*model.TopUp
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.TopUpStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&topUps).Error
	return topUps, err
}

func (r *TopUpRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.TopUp, int64, error) {
	var topUps []*model.TopUp
	var total int64

	query := r.db.WithContext(ctx).Model(&model.TopUp{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&topUps).Error

	return topUps, total, err
}
