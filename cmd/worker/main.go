package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"contenthub/config"
	"contenthub/contracts/events"
	"contenthub/internal/mqhandler"
	"contenthub/internal/repository"
	"contenthub/internal/service/achievement"
	"contenthub/internal/service/points"
	"contenthub/pkg/circuitbreaker"
	"contenthub/pkg/db"
	"contenthub/pkg/logger"
	"contenthub/pkg/mq"
	"contenthub/pkg/outbox"
	"contenthub/pkg/redis"
	"contenthub/pkg/util"
)

var (
	configDir   string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:          "contenthub-worker",
	Short:        "Outbox dispatcher and event consumers",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&configDir, "config", "config", "Directory holding base.yaml and <CONFIG_ENV>.yaml")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9091", "Listen address for /metrics, empty to disable")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type stopper interface {
	Stop()
}

// buildConsumers 依次创建 n 个消费者，中途失败时停止已创建的
func buildConsumers[T stopper](n int, build func(i int) (T, error)) ([]T, error) {
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		c, err := build(i)
		if err != nil {
			for _, done := range out {
				done.Stop()
			}
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// consumerBinding 一个路由键对应一个队列
type consumerBinding struct {
	routingKey string
	handler    mq.MessageHandler
}

func queueName(routingKey string) string {
	return "contenthub." + routingKey + ".q"
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting contenthub-worker...",
		zap.String("exchange", cfg.MQ.Exchange),
		zap.Duration("outbox_interval", cfg.Outbox.Interval),
	)

	// Redis
	rdb := redis.NewRedisClient(cfg.Redis, log)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, 24*time.Hour, log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// DB
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Error("DB initialization failed", zap.Error(err))
		return err
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool, log)
	pointsSvc := points.NewService(pool, repository.NewPointsRepository(pool, log), userRepo, repository.NewLeaderboardCache(rdb), cfg.Points, log)
	achievementSvc := achievement.NewService(pool, repository.NewAchievementRepository(pool, log), pointsSvc, log)

	// Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange)
	if err != nil {
		log.Error("Failed to init publisher", zap.Error(err))
		return err
	}
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// 任一 consumer 断开都会结束整个进程，由编排系统重启
	g, gctx := errgroup.WithContext(ctx)

	// Outbox Dispatcher
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		log.Warn("Outbox circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	})
	dispatcher := outbox.NewDispatcher(outbox.NewRepository(pool, log), publisher, breaker, outbox.DispatcherConfig{
		Interval:   cfg.Outbox.Interval,
		BatchSize:  cfg.Outbox.BatchSize,
		MaxRetries: cfg.Outbox.MaxRetries,
	}, log)
	g.Go(func() error {
		dispatcher.Start(gctx)
		return nil
	})

	// Consumers
	bindings := []consumerBinding{
		{events.PointsChanged, mqhandler.NewPointsChangedHandler(achievementSvc, pointsSvc, deduper, log).Handle},
		{events.UserRegistered, mqhandler.NewUserRegisteredHandler(achievementSvc, deduper, log).Handle},
		{events.ContentPublished, mqhandler.NewContentPublishedHandler(deduper, log).Handle},
	}

	consumers, err := buildConsumers(len(bindings), func(i int) (*mq.Consumer, error) {
		b := bindings[i]
		consumer, err := mq.NewConsumer(cfg.MQ.URL, mq.ConsumerOptions{
			Exchange:   cfg.MQ.Exchange,
			Queue:      queueName(b.routingKey),
			RoutingKey: b.routingKey,
			Retries:    retryCounter,
		}, log)
		if err != nil {
			log.Error("Failed to init consumer", zap.String("routing_key", b.routingKey), zap.Error(err))
			return nil, err
		}
		consumer.SetHandler(b.handler)
		return consumer, nil
	})
	if err != nil {
		stop()
		_ = g.Wait()
		return err
	}

	for i, consumer := range consumers {
		key := bindings[i].routingKey
		g.Go(func() error {
			if err := consumer.Start(gctx); err != nil {
				log.Error("Consumer stopped with error", zap.String("routing_key", key), zap.Error(err))
				return err
			}
			return nil
		})
	}

	var metricsSrv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	log.Info("Worker running", zap.Int("consumers", len(consumers)))

	// 优雅退出处理
	<-gctx.Done()
	log.Info("Shutting down contenthub-worker gracefully...")

	log.Info("Stopping MQ consumers...")
	for _, c := range consumers {
		c.Stop()
	}
	runErr := g.Wait()

	if metricsSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	log.Info("contenthub-worker shutdown complete")
	return runErr
}
