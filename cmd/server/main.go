package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coursepay/internal/config"
	"coursepay/internal/gateway"
	"coursepay/internal/handler"
	"coursepay/internal/infrastructure/cache"
	"coursepay/internal/infrastructure/database"
	"coursepay/internal/infrastructure/lock"
	"coursepay/internal/infrastructure/mq"
	"coursepay/internal/job"
	"coursepay/internal/notify"
	"coursepay/internal/service"
	"coursepay/pkg/idgen"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	nodeID := flag.Int64("node", 1, "雪花算法节点号")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, *nodeID, logger); err != nil {
		logger.Fatal("服务异常退出", zap.Error(err))
	}
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == gin.DebugMode {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, nodeID int64, logger *zap.Logger) error {
	// 初始化 ID 生成器
	if err := idgen.Init(nodeID); err != nil {
		return err
	}

	logLevel := gormlogger.Warn
	if cfg.Server.Mode == gin.DebugMode {
		logLevel = gormlogger.Info
	}
	db, err := database.Open(&cfg.Database, logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 未启用 Redis 时退化为进程内锁，仅适用于单实例部署
	var locks lock.Factory = lock.NewLocalFactory()
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()
		locks = lock.NewRedisFactory(redisClient, lock.Options{TTL: cfg.Business.LockTTL})
	} else {
		logger.Warn("Redis 未启用，使用进程内锁")
	}

	var notifier service.TopUpNotifier
	if cfg.Mail.Enabled {
		notifier = notify.NewMailer(&cfg.Mail)
	}

	purchaseService := service.NewPurchaseService(db, cfg, locks, logger)
	reviewService := service.NewReviewService(db, service.NewRatingAggregator(db, logger), logger)
	topUpService := service.NewTopUpService(db, cfg, gateway.NewClient(&cfg.Gateway), notifier, locks, logger)
	accountService := service.NewAccountService(db)

	h := handler.NewHandler(purchaseService, reviewService, topUpService, accountService, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.SetupRouter(h, cfg.Server.Mode, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// 后台任务在 HTTP 服务关闭后才通过 Stop 退出
	jobCtx := context.WithoutCancel(gctx)
	var stoppers []func()

	// 启动后台任务
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(&cfg.Kafka)
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()

		outboxSender := job.NewOutboxSender(db, cfg, producer, logger)
		stoppers = append(stoppers, outboxSender.Stop)
		g.Go(func() error {
			outboxSender.Start(jobCtx)
			return nil
		})
	}

	reconcileJob := job.NewTopUpReconcileJob(topUpService, cfg, logger)
	stoppers = append(stoppers, reconcileJob.Stop)
	g.Go(func() error {
		reconcileJob.Start(jobCtx)
		return nil
	})

	g.Go(func() error {
		logger.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服务启动失败: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("正在关闭服务...")

		// 关闭 HTTP 服务（等待最多5秒）
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)

		for _, stop := range stoppers {
			stop()
		}
		return err
	})

	err = g.Wait()
	logger.Info("服务已关闭")
	return err
}
