package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
	"github.com/vladislavdragonenkov/medistore/internal/metrics"
)

// Ключ живёт DefaultTTL, поэтому просроченные записи не обязаны исчезать сразу:
// четверти часа хватает, чтобы таблица idempotency_keys не разрасталась.
const (
	defaultSweepInterval = DefaultTTL / 96
	defaultSweepBatch    = 500
	// за один проход удаляем не больше maxSweepBatches порций,
	// остаток достаётся следующему тику
	maxSweepBatches = 50
)

// SweepReport — итог одного прохода очистки.
type SweepReport struct {
	Deleted int
	Batches int
	// Partial — проход остановился на maxSweepBatches, в хранилище остались просроченные ключи.
	Partial bool
}

type sweepConfig struct {
	logger    *log.Entry
	metrics   *metrics.CleanupMetrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*sweepConfig)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(c *sweepConfig) { c.logger = logger }
}

func WithMetrics(m *metrics.CleanupMetrics) CleanupOption {
	return func(c *sweepConfig) { c.metrics = m }
}

// WithInterval — пауза между проходами. Значения <= 0 игнорируются.
func WithInterval(interval time.Duration) CleanupOption {
	return func(c *sweepConfig) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithBatchSize — сколько ключей удаляется одним запросом. Значения <= 0 игнорируются.
func WithBatchSize(n int) CleanupOption {
	return func(c *sweepConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func withClock(now func() time.Time) CleanupOption {
	return func(c *sweepConfig) { c.now = now }
}

// CleanupWorker убирает ключи идемпотентности заказов и каталога, у которых истёк срок.
// Нужен только хранилищам без собственного TTL: Postgres и in-memory.
type CleanupWorker struct {
	repo domain.IdempotencyRepository
	cfg  sweepConfig
}

func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	cfg := sweepConfig{
		interval:  defaultSweepInterval,
		batchSize: defaultSweepBatch,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "idempotency-cleanup")
	}
	return &CleanupWorker{repo: repo, cfg: cfg}
}

// Run делает проход сразу и затем каждые interval, пока жив ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.cfg.logger.Warn("хранилище ключей идемпотентности не задано, очистка не запущена")
		return
	}
	w.cfg.logger.WithFields(log.Fields{
		"interval":   w.cfg.interval.String(),
		"batch_size": w.cfg.batchSize,
	}).Info("очистка ключей идемпотентности запущена")

	ticker := time.NewTicker(w.cfg.interval)
	defer ticker.Stop()

	for {
		w.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) tick(ctx context.Context) {
	started := w.cfg.now()
	report, err := w.Sweep(ctx, started)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		if w.cfg.metrics != nil {
			w.cfg.metrics.RecordRun("error", report.Deleted)
		}
		w.cfg.logger.WithError(err).WithField("deleted", report.Deleted).
			Warn("не удалось удалить просроченные ключи идемпотентности")
		return
	}

	if w.cfg.metrics != nil {
		w.cfg.metrics.RecordRun("ok", report.Deleted)
	}
	if report.Deleted == 0 {
		return
	}
	entry := w.cfg.logger.WithFields(log.Fields{
		"deleted":     report.Deleted,
		"batches":     report.Batches,
		"duration_ms": w.cfg.now().Sub(started).Milliseconds(),
	})
	if report.Partial {
		entry.Warn("просроченных ключей больше, чем помещается в один проход")
		return
	}
	entry.Info("просроченные ключи идемпотентности удалены")
}

// Sweep удаляет ключи с expires_at <= before порциями batchSize.
// При ошибке report содержит то, что успело удалиться.
func (w *CleanupWorker) Sweep(ctx context.Context, before time.Time) (SweepReport, error) {
	if before.IsZero() {
		before = w.cfg.now()
	}

	var report SweepReport
	for report.Batches < maxSweepBatches {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		n, err := w.repo.DeleteExpired(ctx, before, w.cfg.batchSize)
		if err != nil {
			return report, err
		}
		report.Batches++
		report.Deleted += n
		if n > 0 && w.cfg.metrics != nil {
			w.cfg.metrics.RecordDeleted(n)
		}
		if n < w.cfg.batchSize {
			return report, nil
		}
	}
	report.Partial = true
	return report, nil
}
