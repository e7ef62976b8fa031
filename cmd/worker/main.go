package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	mqcontract "github.com/AcelinoMargotti/scinexa-project-nexus/contracts/mq"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/config"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/mqhandler"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/repository"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/db"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/logger"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/mq"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/otel"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/outbox"
	redisclient "github.com/AcelinoMargotti/scinexa-project-nexus/pkg/redis"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/util"
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

	if cfg.Store.Driver != config.DriverPostgres {
		log.Fatal("worker requires the postgres store", zap.String("driver", cfg.Store.Driver))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	log.Info("Starting worker...")

	pool, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redisclient.Connect(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.Named("nexus-worker"))
	if err != nil {
		log.Fatal("failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	if err := publisher.DeclareDLQ(cfg.Activity.Queue, "#"); err != nil {
		log.Fatal("failed to declare activity DLQ", zap.Error(err))
	}

	// (1) Outbox dispatcher
	dispatcher := outbox.NewDispatcher(outbox.NewRepository(pool), publisher, log).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithMaxRetries(cfg.Outbox.MaxRetries)

	// (2) Activity feed consumer
	activityHandler := mqhandler.NewActivityHandler(
		repository.NewPostgresActivityRepository(pool, log),
		util.NewDeduper(rdb, cfg.Activity.DedupTTL, log),
		util.NewRetryCounter(rdb, cfg.Activity.RetryTTL),
		publisher,
		log,
	).WithMaxRetries(cfg.Activity.MaxRetries)

	log.Info("Initializing activity consumer", zap.String("queue", cfg.Activity.Queue))
	consumer, err := mq.NewConsumer(cfg.MQ.Named("nexus-worker"), cfg.Activity.Queue, mqcontract.ActivityBindings, log)
	if err != nil {
		log.Fatal("failed to init activity consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(activityHandler.Handle)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := consumer.StartConsuming(ctx); err != nil {
			log.Error("activity consumer stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down worker")
	wg.Wait()
}
