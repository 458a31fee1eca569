package job

import (
	"context"
	"sync"
	"time"

	"coursepay/internal/config"
	"coursepay/internal/service"

	"go.uber.org/zap"
)

// Reconciler service.TopUpService 实现
type Reconciler interface {
	ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (service.ReconcileResult, error)
}

// TopUpReconcileJob 定时补偿：客户端未回查时，由后台向网关查询超过宽限期仍为 PENDING 的充值单
type TopUpReconcileJob struct {
	reconciler Reconciler
	logger     *zap.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
	interval   time.Duration
	grace      time.Duration
	batchSize  int
}

func NewTopUpReconcileJob(reconciler Reconciler, cfg *config.Config, logger *zap.Logger) *TopUpReconcileJob {
	return &TopUpReconcileJob{
		reconciler: reconciler,
		logger:     logger.Named("topup_reconcile"),
		stopCh:     make(chan struct{}),
		interval:   cfg.Business.ReconcileInterval,
		grace:      cfg.Business.ReconcileGrace,
		batchSize:  cfg.Business.ReconcileBatch,
	}
}

func (j *TopUpReconcileJob) Start(ctx context.Context) {
	j.logger.Info("充值对账任务启动", zap.Duration("interval", j.interval), zap.Duration("grace", j.grace))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.logger.Info("任务停止")
			return
		case <-ticker.C:
			j.reconcile(ctx)
		}
	}
}

func (j *TopUpReconcileJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

func (j *TopUpReconcileJob) reconcile(ctx context.Context) {
	res, err := j.reconciler.ReconcilePending(ctx, j.grace, j.batchSize)
	if err != nil {
		j.logger.Error("充值对账失败", zap.Error(err))
		return
	}
	if res.Checked == 0 {
		return
	}
	j.logger.Info("本轮充值对账完成",
		zap.Int("checked", res.Checked),
		zap.Int("resolved", res.Resolved),
		zap.Int("failed", res.Failed))
}
