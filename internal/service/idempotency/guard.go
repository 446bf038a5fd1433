package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// DefaultTTL — срок хранения ключа по умолчанию.
const DefaultTTL = 24 * time.Hour

// Outcome — ответ на запрос в терминах HTTP: статус и тело.
// gRPC-транспорт хранит в том же виде и переводит статус в код при повторе.
type Outcome struct {
	Code int
	Body []byte
	// Replayed выставляется, когда ответ взят из сохранённой записи.
	Replayed bool
}

// Failed — ответ сообщает об ошибке.
func (o Outcome) Failed() bool {
	return o.Code >= 400
}

// Guard выполняет мутирующий запрос не более одного раза на ключ.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// NewGuard создаёт guard. ttl <= 0 заменяется на DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.WithField("component", "idempotency"),
	}
}

// RequestHash — sha256 от операции, актора и тела запроса.
// Тот же ключ с другим хэшем считается переиспользованием ключа.
func RequestHash(operation string, actor domain.Actor, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(operation))
	h.Write([]byte{0})
	h.Write([]byte(actor.ID))
	h.Write([]byte{0})
	h.Write([]byte(actor.Role))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Do выполняет fn, если ключ встречается впервые, и сохраняет её ответ.
// Повтор с тем же хэшем получает сохранённый ответ, включая ошибочный.
// Пустой ключ отключает защиту.
//
// Ошибки: domain.ErrIdempotencyHashMismatch, domain.ErrIdempotencyKeyInProgress.
func (g *Guard) Do(ctx context.Context, key, requestHash string, fn func(ctx context.Context) Outcome) (Outcome, error) {
	if g == nil || g.repo == nil || key == "" {
		return fn(ctx), nil
	}

	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	if err != nil {
		return g.replay(key, record, err)
	}

	outcome := fn(ctx)

	store := g.repo.MarkDone
	if outcome.Failed() {
		store = g.repo.MarkFailed
	}
	// ответ уже получен; сохраняем его даже если клиент отключился
	if err := store(context.WithoutCancel(ctx), key, outcome.Body, outcome.Code); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("не удалось сохранить ответ по ключу идемпотентности")
	}

	return outcome, nil
}

func (g *Guard) replay(key string, record domain.IdempotencyRecord, createErr error) (Outcome, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Outcome{}, createErr
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Completed() {
			return Outcome{}, domain.ErrIdempotencyKeyInProgress
		}
		g.logger.WithFields(log.Fields{
			"idempotency_key": key,
			"status":          record.Status,
		}).Debug("повтор запроса, возвращаем сохранённый ответ")
		return Outcome{Code: record.ResponseCode, Body: record.ResponseBody, Replayed: true}, nil
	default:
		return Outcome{}, fmt.Errorf("create idempotency record: %w", createErr)
	}
}
