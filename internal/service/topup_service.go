package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coursepay/internal/apperr"
	"coursepay/internal/config"
	"coursepay/internal/gateway"
	"coursepay/internal/infrastructure/lock"
	"coursepay/internal/model"
	"coursepay/internal/repository"
	"coursepay/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InvoiceGateway 支付网关发票接口
type InvoiceGateway interface {
	CreateInvoice(ctx context.Context, req *gateway.CreateInvoiceRequest) (*gateway.Invoice, error)
	GetInvoice(ctx context.Context, externalID string) (*gateway.Invoice, error)
}

// TopUpNotifier 充值入账后的通知，失败不影响入账结果
type TopUpNotifier interface {
	TopUpCredited(ctx context.Context, user *model.User, topUp *model.TopUp, balance int64) error
}

type TopUpService struct {
	db         *gorm.DB
	gw         InvoiceGateway
	notifier   TopUpNotifier
	locks      lock.Factory
	logger     *zap.Logger
	timeout    time.Duration
	minAmount  int64
	topic      string
	userRepo   *repository.UserRepository
	topUpRepo  *repository.TopUpRepository
	entryRepo  *repository.EntryRepository
	outboxRepo *repository.OutboxRepository
}

// NewTopUpService notifier 可以为 nil
func NewTopUpService(db *gorm.DB, cfg *config.Config, gw InvoiceGateway, notifier TopUpNotifier, locks lock.Factory, logger *zap.Logger) *TopUpService {
	return &TopUpService{
		db:         db,
		gw:         gw,
		notifier:   notifier,
		locks:      locks,
		logger:     logger.Named("topup"),
		timeout:    cfg.Gateway.Timeout,
		minAmount:  cfg.Business.MinTopUpAmount,
		topic:      eventTopic(cfg, cfg.Kafka.Topic.TopUpPaid),
		userRepo:   repository.NewUserRepository(db),
		topUpRepo:  repository.NewTopUpRepository(db),
		entryRepo:  repository.NewEntryRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
	}
}

// TopUpPaidEvent 充值入账事件
type TopUpPaidEvent struct {
	ExternalID string    `json:"external_id"`
	UserID     int64     `json:"user_id"`
	Amount     int64     `json:"amount"`
	Status     string    `json:"status"`
	NewBalance int64     `json:"new_balance"`
	PaidAt     time.Time `json:"paid_at"`
}

// CreateTopUp 先在网关创建发票，成功后才落库
func (s *TopUpService) CreateTopUp(ctx context.Context, userID, amount int64) (*model.TopUp, error) {
	if amount <= 0 || amount < s.minAmount {
		return nil, apperr.ErrInvalidAmount
	}

	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	externalID := idgen.GenerateExternalID(userID)

	gwCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	invoice, err := s.gw.CreateInvoice(gwCtx, &gateway.CreateInvoiceRequest{
		ExternalID:  externalID,
		Amount:      amount,
		Description: "Top Up Balance for " + user.Name,
		Customer: gateway.Customer{
			Email:      user.Email,
			GivenNames: user.Name,
		},
	})
	if err != nil {
		s.logger.Warn("创建发票失败", zap.String("external_id", externalID), zap.Error(err))
		return nil, apperr.Wrap(apperr.ErrGateway, err)
	}

	topUp := &model.TopUp{
		UserID:     userID,
		ExternalID: externalID,
		Amount:     amount,
		Status:     model.TopUpStatusPending,
		PaymentURL: invoice.InvoiceURL,
	}
	if err := s.topUpRepo.Create(ctx, nil, topUp); err != nil {
		// 网关侧的发票会自然过期
		s.logger.Error("保存充值单失败，发票已创建", zap.String("external_id", externalID), zap.Error(err))
		return nil, fmt.Errorf("保存充值单失败: %w", err)
	}

	s.logger.Info("创建充值单", zap.Int64("user_id", userID), zap.String("external_id", externalID), zap.Int64("amount", amount))
	return topUp, nil
}

// CheckStatus 向网关查询并推进充值单状态，可重复调用，同一充值单最多入账一次。
// 终态直接返回，不再访问网关。
func (s *TopUpService) CheckStatus(ctx context.Context, externalID string) (string, error) {
	topUp, err := s.topUpRepo.GetByExternalID(ctx, externalID)
	if err != nil {
		return "", err
	}
	if model.IsTerminalStatus(topUp.Status) {
		return topUp.Status, nil
	}

	mu := s.locks.NewMutex(lock.TopUpKey(externalID))
	if err := mu.Lock(ctx); err != nil {
		return "", fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer func() {
		if err := mu.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("释放充值单锁失败", zap.String("external_id", externalID), zap.Error(err))
		}
	}()

	// 等锁期间可能已被其他请求推进
	topUp, err = s.topUpRepo.GetByExternalID(ctx, externalID)
	if err != nil {
		return "", err
	}
	if model.IsTerminalStatus(topUp.Status) {
		return topUp.Status, nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	invoice, err := s.gw.GetInvoice(gwCtx, externalID)
	if err != nil {
		if errors.Is(err, gateway.ErrInvoiceNotFound) {
			return "", apperr.ErrInvoiceNotFound
		}
		s.logger.Warn("查询发票失败", zap.String("external_id", externalID), zap.Error(err))
		return "", apperr.Wrap(apperr.ErrGateway, err)
	}

	switch {
	case model.IsCreditStatus(invoice.Status):
		return s.settle(ctx, externalID, invoice.Status)
	case invoice.Status == model.TopUpStatusExpired:
		return s.expire(ctx, externalID)
	default:
		return model.TopUpStatusPending, nil
	}
}

// settle 入账事务：锁充值单、条件推进状态、加余额、记流水、写事件
func (s *TopUpService) settle(ctx context.Context, externalID, reported string) (string, error) {
	var (
		credited   *model.TopUp
		user       *model.User
		newBalance int64
		status     string
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		topUp, err := s.topUpRepo.GetByExternalIDForUpdate(ctx, tx, externalID)
		if err != nil {
			return err
		}
		if model.IsTerminalStatus(topUp.Status) {
			status = topUp.Status
			return nil
		}

		if err := s.topUpRepo.UpdateStatus(ctx, tx, externalID, model.TopUpStatusPending, reported); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				// 已被并发请求推进
				return nil
			}
			return fmt.Errorf("更新充值单状态失败: %w", err)
		}

		user, err = s.userRepo.GetByIDForUpdate(ctx, tx, topUp.UserID)
		if err != nil {
			return err
		}
		if err := s.userRepo.Credit(ctx, tx, topUp.UserID, topUp.Amount); err != nil {
			return err
		}
		newBalance = user.Balance + topUp.Amount

		entry := &model.BalanceEntry{
			EntryNo:       idgen.GenerateEntryNo(),
			UserID:        topUp.UserID,
			Type:          model.EntryTypeTopUp,
			Reference:     externalID,
			Amount:        topUp.Amount,
			BalanceBefore: user.Balance,
			BalanceAfter:  newBalance,
			Remark:        "充值-" + reported,
		}
		if err := s.entryRepo.Create(ctx, tx, entry); err != nil {
			if errors.Is(err, repository.ErrDuplicateEntry) {
				s.logger.Error("充值单已有入账流水但状态仍为 PENDING", zap.String("external_id", externalID))
				return apperr.Wrap(apperr.ErrInvariantViolation, err)
			}
			return fmt.Errorf("记录流水失败: %w", err)
		}

		now := time.Now()
		event := TopUpPaidEvent{
			ExternalID: externalID,
			UserID:     topUp.UserID,
			Amount:     topUp.Amount,
			Status:     reported,
			NewBalance: newBalance,
			PaidAt:     now,
		}
		if err := s.outboxRepo.Enqueue(ctx, tx, s.topic, externalID, event); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		topUp.Status = reported
		topUp.PaidAt = &now
		credited = topUp
		status = reported
		return nil
	})
	if err != nil {
		return "", wrapTxError("充值入账失败", err)
	}

	if credited == nil {
		if status != "" {
			return status, nil
		}
		return s.currentStatus(ctx, externalID)
	}

	s.logger.Info("充值入账",
		zap.String("external_id", externalID),
		zap.Int64("user_id", credited.UserID),
		zap.Int64("amount", credited.Amount),
		zap.Int64("new_balance", newBalance))

	if s.notifier != nil {
		user.Balance = newBalance
		if err := s.notifier.TopUpCredited(ctx, user, credited, newBalance); err != nil {
			s.logger.Warn("发送入账通知失败", zap.String("external_id", externalID), zap.Error(err))
		}
	}
	return status, nil
}

// expire 过期不影响余额
func (s *TopUpService) expire(ctx context.Context, externalID string) (string, error) {
	err := s.topUpRepo.UpdateStatus(ctx, nil, externalID, model.TopUpStatusPending, model.TopUpStatusExpired)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return s.currentStatus(ctx, externalID)
		}
		return "", fmt.Errorf("更新充值单状态失败: %w", err)
	}
	s.logger.Info("充值单已过期", zap.String("external_id", externalID))
	return model.TopUpStatusExpired, nil
}

func (s *TopUpService) currentStatus(ctx context.Context, externalID string) (string, error) {
	topUp, err := s.topUpRepo.GetByExternalID(ctx, externalID)
	if err != nil {
		return "", err
	}
	return topUp.Status, nil
}

func (s *TopUpService) GetTopUp(ctx context.Context, externalID string) (*model.TopUp, error) {
	return s.topUpRepo.GetByExternalID(ctx, externalID)
}

// TopUpPage 分页结果，Page/PageSize 为修正后的实际取值
type TopUpPage struct {
	List     []*model.TopUp `json:"list"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

func (s *TopUpService) ListByUser(ctx context.Context, userID int64, page, pageSize int) (*TopUpPage, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}
	page, pageSize = normalizePage(page, pageSize)
	topUps, total, err := s.topUpRepo.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("查询充值记录失败: %w", err)
	}
	return &TopUpPage{List: topUps, Total: total, Page: page, PageSize: pageSize}, nil
}

// ReconcileResult 一轮对账的统计
type ReconcileResult struct {
	Checked  int
	Resolved int
	Failed   int
}

// ReconcilePending 对创建超过 olderThan 仍为 PENDING 的充值单逐个查询网关。
// 单笔失败只记录日志，不中断本轮。
func (s *TopUpService) ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (ReconcileResult, error) {
	var result ReconcileResult

	topUps, err := s.topUpRepo.GetPendingBefore(ctx, time.Now().Add(-olderThan), limit)
	if err != nil {
		return result, fmt.Errorf("查询待对账充值单失败: %w", err)
	}

	for _, topUp := range topUps {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++

		status, err := s.CheckStatus(ctx, topUp.ExternalID)
		if err != nil {
			result.Failed++
			s.logger.Warn("对账失败", zap.String("external_id", topUp.ExternalID), zap.Error(err))
			continue
		}
		if model.IsTerminalStatus(status) {
			result.Resolved++
		}
	}
	return result, nil
}
