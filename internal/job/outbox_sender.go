package job

import (
	"context"
	"sync"
	"time"

	"coursepay/internal/config"
	"coursepay/internal/model"
	"coursepay/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MessageSender 消息投递，mq.Producer 实现
type MessageSender interface {
	SendMessage(topic, key, value string) error
}

// OutboxSender 轮询本地消息表并投递到 Kafka，超过最大重试次数标记为失败
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	sender     MessageSender
	logger     *zap.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
	interval   time.Duration
	batchSize  int
	maxRetry   int
}

func NewOutboxSender(db *gorm.DB, cfg *config.Config, sender MessageSender, logger *zap.Logger) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		sender:     sender,
		logger:     logger.Named("outbox_sender"),
		stopCh:     make(chan struct{}),
		interval:   cfg.Business.OutboxInterval,
		batchSize:  cfg.Business.OutboxBatch,
		maxRetry:   cfg.Business.MaxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("消息发送任务启动", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.logger.Info("任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("查询消息失败", zap.Error(err))
		return
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	fields := []zap.Field{zap.Int64("id", msg.ID), zap.String("topic", msg.Topic), zap.String("key", msg.MessageKey)}

	err := s.sender.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			s.logger.Error("更新消息状态失败", append(fields, zap.Error(updateErr))...)
			return
		}
		s.logger.Debug("消息发送成功", fields...)
		return
	}

	s.logger.Warn("消息发送失败", append(fields, zap.Int("retry_count", msg.RetryCount), zap.Error(err))...)

	if msg.RetryCount+1 >= s.maxRetry {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			s.logger.Error("标记消息失败状态失败", append(fields, zap.Error(err))...)
			return
		}
		s.logger.Error("消息超过最大重试次数，标记为失败", fields...)
		return
	}

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		s.logger.Error("增加重试次数失败", append(fields, zap.Error(err))...)
	}
}
