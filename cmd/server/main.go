package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/taskboard/backend/api/handler"
	"github.com/taskboard/backend/internal/config"
	"github.com/taskboard/backend/internal/infrastructure/journal"
	"github.com/taskboard/backend/internal/infrastructure/monitor"
	pgInfra "github.com/taskboard/backend/internal/infrastructure/postgres"
	redisInfra "github.com/taskboard/backend/internal/infrastructure/redis"
	"github.com/taskboard/backend/internal/middleware"
	"github.com/taskboard/backend/internal/router"
	"github.com/taskboard/backend/internal/services"
	"github.com/taskboard/backend/internal/services/lifecycle"
	"github.com/taskboard/backend/pkg/httpcontext"
	"github.com/taskboard/backend/pkg/logger"
	"github.com/taskboard/backend/repository"
	"github.com/taskboard/backend/repository/postgres"
	redisRepo "github.com/taskboard/backend/repository/redis"
	relationUC "github.com/taskboard/backend/usecase/relation"
	taskUC "github.com/taskboard/backend/usecase/task"
	userUC "github.com/taskboard/backend/usecase/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	redisClient, err := redisInfra.NewClient(cfg.Redis)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	journalStore, err := journal.Open(cfg.Journal.Path, "journal")
	if err != nil {
		zapLogger.Fatal("failed to open relation journal", zap.Error(err))
	}
	manager.Register("journal", func(ctx context.Context) error {
		return journalStore.Close()
	})

	mon := monitor.New(pool, redisClient, journalStore, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	taskRepo := postgres.NewTaskRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	var entityCache repository.EntityCache
	if cfg.Cache.Enabled {
		entityCache = redisRepo.NewEntityCache(redisClient, cfg.Cache.TTL)
	}

	coordinator := relationUC.New(taskRepo, userRepo, entityCache, journalStore, zapLogger)

	replayer := services.NewReplayer(
		journalStore,
		coordinator,
		mon,
		services.ReplayerConfig{
			Interval:   cfg.Journal.ReplayInterval,
			BatchSize:  cfg.Journal.BatchSize,
			MaxRetries: cfg.Journal.MaxRetry,
		},
		zapLogger,
	)
	if err := replayer.Start(); err != nil {
		zapLogger.Fatal("failed to start journal replayer", zap.Error(err))
	}
	manager.Register("journal_replayer", func(ctx context.Context) error {
		replayer.Stop()
		return nil
	})

	taskUseCase := taskUC.New(taskRepo, userRepo, coordinator, entityCache, zapLogger)
	userUseCase := userUC.New(userRepo, taskRepo, coordinator, entityCache, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Task:   apiHandler.NewTaskHandler(taskUseCase, ctxAdapter, zapLogger),
		User:   apiHandler.NewUserHandler(userUseCase, ctxAdapter, zapLogger),
		Health: apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	r := router.New(handlers)

	server := &fasthttp.Server{
		Handler:      middleware.RequestLog(zapLogger)(r.Handler),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.Shutdown()
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
