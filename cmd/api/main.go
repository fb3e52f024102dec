package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"contenthub/config"
	"contenthub/internal/handler"
	"contenthub/internal/httpserver"
	"contenthub/internal/repository"
	"contenthub/internal/service/achievement"
	"contenthub/internal/service/auth"
	"contenthub/internal/service/comic"
	"contenthub/internal/service/couplet"
	"contenthub/internal/service/menu"
	"contenthub/internal/service/points"
	"contenthub/internal/service/redeem"
	"contenthub/internal/service/role"
	"contenthub/pkg/db"
	"contenthub/pkg/logger"
	"contenthub/pkg/outbox"
	"contenthub/pkg/ratelimit"
	"contenthub/pkg/rbac"
	"contenthub/pkg/redis"
)

var (
	configDir string
	migrate   bool
)

var rootCmd = &cobra.Command{
	Use:          "contenthub-api",
	Short:        "ContentHub HTTP API",
	SilenceUsage: true,
	RunE:         runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema and seed default data, then exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "config", "Directory holding base.yaml and <CONFIG_ENV>.yaml")
	rootCmd.Flags().BoolVar(&migrate, "migrate", false, "Apply migrations and seed before serving")
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	log := logger.NewLogger()
	defer log.Sync()

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	return migrateAndSeed(cmd.Context(), pool, cfg, log)
}

func migrateAndSeed(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config, log *zap.Logger) error {
	if err := db.Migrate(ctx, pool, log); err != nil {
		return err
	}
	return db.Seed(ctx, pool, cfg.I18n.DefaultLocale, log)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting contenthub-api...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.String("port", cfg.Server.Port),
	)

	// DB
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Error("DB initialization failed", zap.Error(err))
		return err
	}
	defer pool.Close()

	if migrate {
		if err := migrateAndSeed(cmd.Context(), pool, cfg, log); err != nil {
			log.Error("Migration failed", zap.Error(err))
			return err
		}
	}

	// Redis
	rdb := redis.NewRedisClient(cfg.Redis, log)
	defer rdb.Close()

	// Repositories
	tenantRepo := repository.NewTenantRepository(pool, rdb, log)
	userRepo := repository.NewUserRepository(pool, log)
	roleRepo := repository.NewRoleRepository(pool, log)
	pointsRepo := repository.NewPointsRepository(pool, log)
	achievementRepo := repository.NewAchievementRepository(pool, log)
	comicRepo := repository.NewComicRepository(pool, log)
	episodeRepo := repository.NewEpisodeRepository(pool, log)
	pageRepo := repository.NewPageRepository(pool, log)
	coupletRepo := repository.NewCoupletRepository(pool, log)
	redeemRepo := repository.NewRedeemRepository(pool, log)
	menuRepo := repository.NewMenuRepository(pool, log)
	board := repository.NewLeaderboardCache(rdb)
	permCache := repository.NewPermissionCache(rdb, 5*time.Minute)

	// Services
	checker := rbac.NewChecker(roleRepo, permCache, log)
	pointsSvc := points.NewService(pool, pointsRepo, userRepo, board, cfg.Points, log)
	achievementSvc := achievement.NewService(pool, achievementRepo, pointsSvc, log)
	authSvc := auth.NewService(pool, userRepo, roleRepo, pointsSvc, checker, cfg.JWT, log)
	comicSvc := comic.NewService(pool, comicRepo, episodeRepo, pageRepo, userRepo, pointsSvc, checker, log)
	coupletSvc := couplet.NewService(pool, coupletRepo, log)
	redeemSvc := redeem.NewService(pool, redeemRepo, userRepo, pointsSvc, log)
	menuSvc := menu.NewService(pool, menuRepo, checker, log)
	roleSvc := role.NewService(pool, roleRepo, checker, log)
	replaySvc := outbox.NewReplayService(outbox.NewRepository(pool, log))

	limiter := ratelimit.NewLimiter(ratelimit.NewRedisCounter(rdb), log)

	router := httpserver.NewRouter(
		httpserver.Handlers{
			Auth:    handler.NewAuthHandler(authSvc, log),
			Comic:   handler.NewComicHandler(comicSvc, log),
			Couplet: handler.NewCoupletHandler(coupletSvc, log),
			Redeem:  handler.NewRedeemHandler(redeemSvc, log),
			Points:  handler.NewPointsHandler(pointsSvc, achievementSvc, log),
			Menu:    handler.NewMenuHandler(menuSvc, log),
			Role:    handler.NewRoleHandler(roleSvc, log),
			Admin:   handler.NewAdminHandler(replaySvc, log),
		},
		httpserver.Deps{
			Tenants:   tenantRepo,
			Checker:   checker,
			Limiter:   limiter,
			RateLimit: cfg.RateLimit,
			JWTSecret: cfg.JWT.Secret,
			ReadyChecks: map[string]httpserver.ReadyCheck{
				"db": pool.Ping,
				"redis": func(ctx context.Context) error {
					return redis.Ping(ctx, rdb)
				},
			},
			Logger: log,
		},
	)

	server := httpserver.NewServer(cfg.Server.Port, router, log)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
			return err
		}
	case sig := <-quit:
		log.Info("Received signal, shutting down gracefully...", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}

	log.Info("contenthub-api shutdown complete")
	return nil
}
