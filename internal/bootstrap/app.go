package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"voicedoc/internal/ai"
	"voicedoc/internal/app"
	"voicedoc/internal/cache"
	"voicedoc/internal/config"
	"voicedoc/internal/metrics"
	"voicedoc/internal/model"
	mysqlClient "voicedoc/internal/platform/mysql"
	rabbitmqClient "voicedoc/internal/platform/rabbitmq"
	redisClient "voicedoc/internal/platform/redis"
	"voicedoc/internal/registry"
	"voicedoc/internal/repository"
	"voicedoc/internal/vectorstore"
	"voicedoc/internal/worker"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	MySQL      *gorm.DB
	Redis      *redis.Client
	MQConn     *amqp.Connection
	TurnWorker *worker.MemoryTurnWorker

	DocsStore StoreClient
	ChatStore StoreClient

	Auth *app.AuthService
	RAG  *app.RAGService

	closers   []io.Closer
	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig connects every dependency. Redis and RabbitMQ are skipped
// when their address is empty; MySQL is always required.
func NewWithConfig(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	logger := NewLogger(cfg.App)
	a := &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.New(),
		StartedAt: time.Now(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN(), cfg.App.LogLevel == "debug")
	if err != nil {
		return nil, err
	}
	if err := a.MySQL.AutoMigrate(&model.User{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}
	a.Auth = app.NewAuthService(repository.NewUserRepository(a.MySQL), cfg.Auth.JWTSecret, cfg.JWTExpiration())

	var closers []io.Closer
	a.DocsStore, a.ChatStore, closers, err = openStores(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closers...)
	docs := vectorstore.New(a.DocsStore.Client, logger.With("index", a.DocsStore.Index), cfg.StoreTimeout())
	chat := vectorstore.New(a.ChatStore.Client, logger.With("index", a.ChatStore.Index), cfg.StoreTimeout())

	deps := app.RAGServiceDeps{
		Docs:     docs,
		Memory:   chat,
		Registry: registry.NewFileRegistry(cfg.Registry.Path, logger),
		LLM:      ai.NewOpenAICompatibleClient(cfg.LLMTimeout()),
		ChatConfig: ai.ChatConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
		},
		DefaultTemperature: &cfg.LLM.DefaultTemperature,
		Metrics:            a.Metrics,
		Logger:             logger,
	}

	if cfg.Redis.Addr != "" {
		a.Redis, err = redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		deps.ListCache = cache.NewDocListCache(a.Redis, cfg.DocListTTL(), logger)
	}

	if cfg.RabbitMQ.URL != "" {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.App.Name)
		if err != nil {
			return nil, err
		}
		a.TurnWorker = worker.NewMemoryTurnWorker(a.MQConn, app.NewMemoryTurnWriter(chat), cfg.RabbitMQ.MemoryTurnQueue, logger)
		if err := a.TurnWorker.Start(context.WithoutCancel(ctx)); err != nil {
			return nil, fmt.Errorf("start memory turn worker failed: %w", err)
		}
		deps.Turns = rabbitmqClient.NewTurnPublisher(a.MQConn, cfg.RabbitMQ.MemoryTurnQueue)
	}

	a.RAG = app.NewRAGService(deps)
	return a, nil
}

// Close drains pending memory writes before tearing connections down.
func (a *App) Close() error {
	var errs []error
	if a.RAG != nil {
		a.RAG.Wait()
	}
	if a.TurnWorker != nil {
		a.TurnWorker.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		errs = append(errs, a.MQConn.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
