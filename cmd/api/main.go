package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/auth"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/calendar"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/config"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/handler"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/httpserver"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/lifecycle"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/repository"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/service"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/db"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/logger"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/mq"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/otel"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/outbox"
	redisclient "github.com/AcelinoMargotti/scinexa-project-nexus/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	ready := map[string]httpserver.ReadinessCheck{}
	var (
		projects repository.ProjectRepository
		activity repository.ActivityRepository
		admin    *handler.AdminHandler
	)

	switch cfg.Store.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		projects = repository.NewMemoryProjectRepository()
		activity = repository.NewMemoryActivityRepository()

	default:
		pool, err := db.NewConnection(ctx, cfg.DB, log)
		if err != nil {
			log.Fatal("DB initialization failed", zap.Error(err))
		}
		defer pool.Close()
		ready["db"] = pool.Ping

		projects = repository.NewPostgresProjectRepository(pool, log)
		activity = repository.NewPostgresActivityRepository(pool, log)

		if cfg.Cache.Enabled {
			rdb, err := redisclient.Connect(ctx, cfg.Redis, log)
			if err != nil {
				log.Fatal("Redis initialization failed", zap.Error(err))
			}
			defer rdb.Close()
			ready["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

			projects = repository.NewCachedProjectRepository(projects, repository.NewRedisCache(rdb), cfg.Cache.TTL, log)
		}

		publisher, err := mq.NewPublisher(cfg.MQ.Named("nexus-api"))
		if err != nil {
			log.Fatal("failed to init publisher", zap.Error(err))
		}
		defer publisher.Close()
		ready["mq"] = func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("connection closed")
			}
			return nil
		}

		replay := outbox.NewReplayService(outbox.NewRepository(pool), publisher, log).
			WithMaxRetries(cfg.Outbox.MaxRetries)
		admin = handler.NewAdminHandler(replay, log)
	}

	svc := service.NewProjectService(
		projects,
		activity,
		auth.ContextActorProvider{},
		lifecycle.NewEngine(),
		calendar.NewProjector(),
		log,
	)

	router := httpserver.NewRouter(httpserver.Deps{
		Projects: handler.NewProjectHandler(svc, log),
		Calendar: handler.NewCalendarHandler(svc, log),
		Admin:    admin,
		Tokens:   auth.NewTokens(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL),
		Ready:    ready,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router.Handler(),
	}

	go func() {
		log.Info("API server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server start failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
