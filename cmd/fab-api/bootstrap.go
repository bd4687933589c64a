package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/FabTrack/config"
	"github.com/BearBump/FabTrack/internal/api/fabapi"
	"github.com/BearBump/FabTrack/internal/broker/kafka"
	"github.com/BearBump/FabTrack/internal/cache/rediscache"
	"github.com/BearBump/FabTrack/internal/logger"
	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/services/importer"
	"github.com/BearBump/FabTrack/internal/services/inspections"
	"github.com/BearBump/FabTrack/internal/services/progress"
	"github.com/BearBump/FabTrack/internal/services/rollback"
	"github.com/BearBump/FabTrack/internal/storage/memfab"
	"github.com/BearBump/FabTrack/internal/storage/pgfab"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultHTTPAddr          = ":8080"
	defaultConsumerGroup     = "fab-api"
	defaultImportedTopic     = "assembly.imported"
	defaultStageChangedTopic = "assembly.stage_changed"
	defaultProgressTTL       = 10 * time.Minute
	postgresReadyWait        = 60 * time.Second
	driverMemory             = "memory"
	driverPostgres           = "postgres"
)

type store interface {
	inspections.Repository
	progress.Repository
	importer.Repository
	fabapi.UserRepository
	fabapi.ReasonRepository
	Ping(ctx context.Context) error
	Close()
}

type fabAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   fabAPIOpts

	api      *fabapi.API
	importer *importer.Service
	consumer *kafka.Consumer

	closers []func()
}

func mustBootstrapFabAPI() *fabAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	logger.Setup(cfg.FabTrack.LogLevel, cfg.FabTrack.LogFormat)

	app, err := newFabAPIApp(cfg, swaggerPath, func(dsn string) (store, error) {
		return openPostgresWithRetry(dsn, postgresReadyWait)
	})
	if err != nil {
		panic(err)
	}
	return app
}

func newFabAPIApp(cfg *config.Config, swaggerPath string, openPostgres func(dsn string) (store, error)) (*fabAPIApp, error) {
	httpAddr := cfg.FabTrack.HTTPAddr
	if httpAddr == "" {
		httpAddr = defaultHTTPAddr
	}
	consumerGroup := cfg.FabTrack.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = defaultConsumerGroup
	}
	importedTopic := cfg.Kafka.AssemblyImportedTopicName
	if importedTopic == "" {
		importedTopic = defaultImportedTopic
	}
	changedTopic := cfg.Kafka.StageChangedTopicName
	if changedTopic == "" {
		changedTopic = defaultStageChangedTopic
	}
	progressTTL := time.Duration(cfg.FabTrack.ProgressTTLSeconds) * time.Second
	if progressTTL <= 0 {
		progressTTL = defaultProgressTTL
	}

	app := &fabAPIApp{}

	st, err := openStore(cfg, openPostgres)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, st.Close)

	var (
		progressSvc *progress.Service
		limiter     fabapi.RateLimiter
		redisPing   fabapi.ReadyCheck
	)
	if cfg.Redis.Host != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
		app.closers = append(app.closers, func() { _ = rdb.Close() })
		rc := rediscache.NewWithClient(rdb)
		progressSvc = progress.New(st, rc, progressTTL)
		limiter = rediscache.NewRateLimiterWithClient(rdb)
		redisPing = rc.Ping
	} else {
		progressSvc = progress.New(st, nil, 0)
	}

	svc := inspections.New(st, rollback.New(st)).WithProgress(progressSvc)
	if cfg.Kafka.Host != "" {
		producer := kafka.NewProducer(cfg.Kafka.Brokers())
		app.closers = append(app.closers, func() { _ = producer.Close() })
		svc = svc.WithPublisher(producer, changedTopic)

		app.consumer = kafka.NewConsumer(cfg.Kafka.Brokers(), importedTopic, consumerGroup)
	}

	api := fabapi.New(svc, progressSvc, st, st).
		WithRateLimit(limiter, cfg.FabTrack.WriteRateLimitPerMinute).
		WithReadyCheck("storage", st.Ping)
	if redisPing != nil {
		api = api.WithReadyCheck("redis", redisPing)
	}

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.api = api
	app.importer = importer.New(st).WithProgress(progressSvc)
	app.opts = fabAPIOpts{
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
		topic:         importedTopic,
		consumerGroup: consumerGroup,
	}
	return app, nil
}

func openStore(cfg *config.Config, openPostgres func(dsn string) (store, error)) (store, error) {
	switch cfg.FabTrack.StorageDriver {
	case driverMemory:
		st := memfab.New()
		for _, u := range cfg.FabTrack.Users {
			st.AddUser(models.User{
				ID:              u.ID,
				Username:        u.Username,
				FullName:        u.FullName,
				PermissionLevel: models.PermissionLevel(u.Level),
				Company:         u.Company,
				IsActive:        true,
			})
		}
		slog.Warn("in-memory storage selected, data is lost on restart", "users", len(cfg.FabTrack.Users))
		return st, nil
	case "", driverPostgres:
		return openPostgres(cfg.Database.ConnString())
	default:
		return nil, errors.Errorf("unknown storage_driver %q", cfg.FabTrack.StorageDriver)
	}
}

func openPostgresWithRetry(connString string, wait time.Duration) (store, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgfab.New(connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	return nil, errors.Wrapf(lastErr, "postgres is not ready after %s", wait)
}

func (a *fabAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *fabAPIApp) Run() error {
	var consumer kafkaConsumer
	if a.consumer != nil {
		consumer = a.consumer
	}
	return runFabAPI(a.ctx, a.opts, a.api, a.importer, consumer)
}
