package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Synchronizer/internal/config"
	"github.com/shaiso/Synchronizer/internal/mq"
	"github.com/shaiso/Synchronizer/internal/repo"
	"github.com/shaiso/Synchronizer/internal/synchronizer"
	"github.com/shaiso/Synchronizer/internal/telemetry"
)

// Env — то, что команды получают после парсинга флагов.
type Env struct {
	Config config.Config
	Logger *slog.Logger
}

// App — собранные зависимости процесса.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Pool  *pgxpool.Pool
	Store *repo.SyncRepo
	MQ    *mq.Connection
	Sync  *synchronizer.Synchronizer
}

// OpenStore подключается к БД и создаёт репозиторий синхронизаций.
func OpenStore(ctx context.Context, cfg config.Config) (*pgxpool.Pool, *repo.SyncRepo, error) {
	pool, err := repo.NewPool(ctx, repo.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}

	store := repo.NewSyncRepo(pool, repo.SyncRepoConfig{
		Table:        cfg.Table,
		QueryTimeout: cfg.QueryTimeout,
	})
	return pool, store, nil
}

// NewApp подключается к БД и брокеру и собирает Synchronizer.
// metrics может быть nil.
func NewApp(ctx context.Context, env *Env, metrics *telemetry.Metrics) (*App, error) {
	cfg := env.Config
	logger := env.Logger

	strategy, err := synchronizer.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	pool, store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("db connected", "table", cfg.Table)

	conn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQURL, Confirm: true}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		pool.Close()
		return nil, fmt.Errorf("rabbitmq topology: %w", err)
	}
	logger.Info("rabbitmq connected")

	sync := synchronizer.New(synchronizer.Config{
		Store:           store,
		Publisher:       mq.NewPublisher(conn, logger, cfg.PublishTimeout),
		Logger:          logger,
		Metrics:         metrics,
		MaxRetries:      cfg.MaxRetries,
		StallingMaxTime: cfg.StallingMaxTime,
		Strategy:        strategy,
	})

	return &App{
		Config: cfg,
		Logger: logger,
		Pool:   pool,
		Store:  store,
		MQ:     conn,
		Sync:   sync,
	}, nil
}

// Close закрывает соединения с брокером и БД.
func (a *App) Close() error {
	var errs []error
	if a.MQ != nil {
		errs = append(errs, a.MQ.Close())
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return errors.Join(errs...)
}

// ErrPassFailed — проход завершился с ошибкой выборки или был прерван.
var ErrPassFailed = errors.New("pass failed")

func passError(report synchronizer.Report) error {
	if report.Err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPassFailed, report.Mode, report.Err)
	}
	return nil
}
