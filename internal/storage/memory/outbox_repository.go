package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg       domain.OutboxMessage
	status    string
	updatedAt time.Time
}

// outboxRepository работает с состоянием текущей транзакции. Порядок записей
// в срезе совпадает с порядком Enqueue.
type outboxRepository struct {
	st *state
}

// Enqueue сохраняет событие со статусом `pending`.
func (r *outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.AttemptCount = 0

	r.st.outbox = append(r.st.outbox, outboxRecord{msg: msg, status: outboxStatusPending, updatedAt: now})
	return msg, nil
}

// PullPending возвращает до limit самых старых сообщений со статусом `pending`.
func (r *outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	result := make([]domain.OutboxMessage, 0, limit)
	for _, rec := range r.st.outbox {
		if rec.status != outboxStatusPending {
			continue
		}
		result = append(result, rec.msg)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *outboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	for _, rec := range r.st.outbox {
		if rec.status != outboxStatusPending {
			continue
		}
		if stats.PendingCount == 0 || rec.msg.CreatedAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.msg.CreatedAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.markStatus(id, outboxStatusSent)
}

func (r *outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.markStatus(id, outboxStatusFailed)
}

func (r *outboxRepository) markStatus(id, status string) error {
	for i := range r.st.outbox {
		rec := &r.st.outbox[i]
		if rec.msg.ID != id {
			continue
		}
		rec.status = status
		rec.msg.AttemptCount++
		rec.updatedAt = time.Now().UTC()
		return nil
	}
	return fmt.Errorf("%w: message %s not found", domain.ErrOutboxPublish, id)
}

// lockedOutbox — outbox вне транзакций: каждый вызов берёт блокировку хранилища.
type lockedOutbox struct {
	store *Store
}

func (l *lockedOutbox) with(fn func(r *outboxRepository) error) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	return fn(&outboxRepository{st: l.store.state})
}

func (l *lockedOutbox) Enqueue(ctx context.Context, msg domain.OutboxMessage) (stored domain.OutboxMessage, err error) {
	err = l.with(func(r *outboxRepository) error {
		stored, err = r.Enqueue(ctx, msg)
		return err
	})
	return stored, err
}

func (l *lockedOutbox) PullPending(ctx context.Context, limit int) (msgs []domain.OutboxMessage, err error) {
	err = l.with(func(r *outboxRepository) error {
		msgs, err = r.PullPending(ctx, limit)
		return err
	})
	return msgs, err
}

func (l *lockedOutbox) Stats(ctx context.Context) (stats domain.OutboxStats, err error) {
	err = l.with(func(r *outboxRepository) error {
		stats, err = r.Stats(ctx)
		return err
	})
	return stats, err
}

func (l *lockedOutbox) MarkSent(ctx context.Context, id string) error {
	return l.with(func(r *outboxRepository) error { return r.MarkSent(ctx, id) })
}

func (l *lockedOutbox) MarkFailed(ctx context.Context, id string) error {
	return l.with(func(r *outboxRepository) error { return r.MarkFailed(ctx, id) })
}

var (
	_ domain.OutboxRepository = (*outboxRepository)(nil)
	_ domain.OutboxRepository = (*lockedOutbox)(nil)
)
