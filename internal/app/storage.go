package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
	"github.com/vladislavdragonenkov/medistore/internal/health"
	"github.com/vladislavdragonenkov/medistore/internal/storage/memory"
	"github.com/vladislavdragonenkov/medistore/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/medistore/internal/storage/redis"
)

// runtimeDependencies — хранилище и связанные с ним репозитории.
type runtimeDependencies struct {
	uow             domain.UnitOfWork
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	// cleanupExpired выключается, когда ключи истекают сами (Redis).
	cleanupExpired bool
	checks         map[string]health.CheckFunc
	closers        []func() error
}

func (d *runtimeDependencies) addCloser(fn func() error) {
	d.closers = append(d.closers, fn)
}

// close освобождает ресурсы в обратном порядке.
func (d *runtimeDependencies) close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{
		cleanupExpired: true,
		checks:         make(map[string]health.CheckFunc),
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		deps.uow = store
		deps.outboxRepo = store.Outbox()
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("используется in-memory хранилище")

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires dsn")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		deps.addCloser(store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = deps.close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("миграции применены")
		}
		deps.uow = store
		deps.outboxRepo = store.Outbox()
		deps.idempotencyRepo = store.Idempotency()
		deps.checks["postgres"] = store.Ping

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.IdempotencyStore == IdempotencyStoreRedis {
		client, err := redisstore.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			_ = deps.close()
			return nil, err
		}
		deps.addCloser(client.Close)
		deps.idempotencyRepo = redisstore.NewIdempotencyRepository(client)
		deps.cleanupExpired = false
		deps.checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
		logger.WithField("addr", cfg.RedisAddr).Info("ключи идемпотентности хранятся в redis")
	}

	return deps, nil
}
