package app

import (
	"context"
	"errors"
	"time"

	"gamezone/internal/app/game"
	"gamezone/internal/app/health"
	"gamezone/internal/app/session"
	"gamezone/internal/app/user"
	"gamezone/internal/config"
	"gamezone/internal/db"
	"gamezone/internal/db/seeder"
	"gamezone/internal/gateways/websocket"
	"gamezone/internal/providers/amqp"
	"gamezone/internal/providers/minio"
	"gamezone/internal/providers/redis"
	"gamezone/internal/router"
	"gamezone/internal/scheduler"
	"gamezone/internal/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Application struct {
	Router    *router.Router
	DB        *gorm.DB
	Scheduler *scheduler.Scheduler
	redisP    *redis.RedisProvider
	logger    *zap.Logger
}

// core is the storage and domain layer shared by the server and the sweep command.
type core struct {
	db         *gorm.DB
	redisP     *redis.RedisProvider
	minioP     *minio.MinioProvider
	eventBus   *utils.EventBus
	gameRepo   game.Repository
	gameSvc    game.Service
	sessionSvc session.Service
	scheduler  *scheduler.Scheduler
}

func buildCore(cfg *config.Config, logger *zap.Logger) (*core, error) {
	dbConn, err := db.Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(dbConn, logger); err != nil {
		return nil, err
	}

	redisProvider := redis.NewRedisProvider(cfg.RedisURL, logger, cfg.RedisTTL)
	minioProvider, err := minio.NewMinioProvider(cfg, logger)
	if err != nil {
		logger.Warn("Failed to initialize MinIO provider", zap.Error(err))
		minioProvider = nil
	}
	eventBus := utils.NewEventBus()

	gameRepo := game.NewRepository(dbConn)
	gameService := game.NewService(gameRepo, logger)

	sessionService := session.NewService(session.NewRepository(dbConn), gameService, redisProvider, eventBus, logger, session.Options{
		ExitBaseURL: cfg.ExitBaseURL,
		SweepBatch:  cfg.SweepBatch,
		CacheTTL:    cfg.RedisTTL,
	})

	var store scheduler.RetentionStore
	if minioProvider != nil {
		store = minioProvider
	}
	sched, err := scheduler.New(sessionService, redisProvider, store, scheduler.Options{
		Interval:        cfg.SweepInterval,
		Grace:           cfg.SweepGrace,
		ExportRetention: cfg.ExportTTL,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &core{
		db:         dbConn,
		redisP:     redisProvider,
		minioP:     minioProvider,
		eventBus:   eventBus,
		gameRepo:   gameRepo,
		gameSvc:    gameService,
		sessionSvc: sessionService,
		scheduler:  sched,
	}, nil
}

// Bootstrap wires the HTTP application. Background workers stop when ctx is cancelled.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	c, err := buildCore(cfg, logger)
	if err != nil {
		return nil, err
	}

	userRepo := user.NewRepository(c.db)
	userService := user.NewService(userRepo, c.redisP, logger, user.Options{
		JWTSecret: cfg.JWTSecret,
		JWTTTL:    cfg.JWTTTL,
		CacheTTL:  cfg.RedisTTL,
	})

	seed := seeder.NewSeeder(c.gameRepo, c.gameSvc, userRepo, userService, seeder.AdminAccount{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
	}, logger)
	if err := seed.Seed(ctx); err != nil {
		logger.Warn("Failed to run seeders", zap.Error(err))
	}

	hub := websocket.NewHub(logger, c.eventBus)
	go hub.Run(ctx)

	if cfg.AMQPURL != "" {
		publisher := amqp.NewPublisher(cfg.AMQPURL, nil, logger)
		publisher.Attach(c.eventBus)
		go publisher.Run(ctx)
	} else {
		logger.Info("AMQP_URL not set, lifecycle events stay in-process")
	}

	if err := c.scheduler.Start(ctx); err != nil {
		return nil, err
	}

	checker := utils.NewHealthChecker(2*time.Second,
		utils.PostgresCheck(c.db),
		utils.RedisCheck(c.redisP.Client),
	)
	var exporter *session.Exporter
	if c.minioP != nil {
		checker.Add(utils.DependencyCheck{Name: "MinIO", Optional: true, Check: c.minioP.Ping})
		exporter = session.NewExporter(c.sessionSvc, c.minioP, logger)
	}

	r := router.NewRouter(logger, router.Options{
		FrontendURL: cfg.FrontendURL,
		JWTSecret:   cfg.JWTSecret,
		CronSecret:  cfg.CronSecret,
	})

	r.RegisterHealthRoutes(health.NewHandler(checker))
	r.RegisterWebSocketRoutes(hub)
	r.RegisterGameRoutes(game.NewHandler(c.gameSvc))
	r.RegisterSessionRoutes(session.NewHandler(c.sessionSvc, exporter, c.scheduler, logger))
	r.RegisterUserRoutes(user.NewHandler(userService, logger, cfg.IsProduction()))

	return &Application{
		Router:    r,
		DB:        c.db,
		Scheduler: c.scheduler,
		redisP:    c.redisP,
		logger:    logger,
	}, nil
}

func (a *Application) Close() error {
	var errs []error
	if err := a.Scheduler.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := a.redisP.Close(); err != nil {
		errs = append(errs, err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}

// NewSweepRunner builds only what a one-off sweep needs. The returned func releases it.
func NewSweepRunner(cfg *config.Config, logger *zap.Logger) (*scheduler.Scheduler, func(), error) {
	c, err := buildCore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = c.redisP.Close()
		if sqlDB, err := c.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return c.scheduler, cleanup, nil
}
