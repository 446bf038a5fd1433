package ordering

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// RetryConfig ограничивает повторы единицы работы: коллизии номера заказа и конфликты транзакций.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  2 * time.Millisecond,
		MaxDelay:      50 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = def.BackoffFactor
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	return c
}

// shouldRetry — повторяются ошибки, после которых единица работы откатывается без следа:
// коллизия номера заказа (каждая попытка генерирует новый номер), конфликт версий
// и взаимоблокировка или сбой сериализации в БД.
func shouldRetry(err error) bool {
	return errors.Is(err, domain.ErrOrderNumberConflict) ||
		domain.IsVersionConflict(err) ||
		errors.Is(err, domain.ErrTransientConflict)
}

// withRetry вызывает fn, пока единица работы завершается повторяемой ошибкой.
// После MaxAttempts попыток возвращается последняя ошибка класса Conflict.
func (s *Service) withRetry(ctx context.Context, fn func(attempt int) error) error {
	cfg := s.retry
	delay := cfg.InitialDelay

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil || !shouldRetry(err) {
			return err
		}
		numberTaken := errors.Is(err, domain.ErrOrderNumberConflict)
		if attempt >= cfg.MaxAttempts {
			if numberTaken {
				s.logger.WithFields(log.Fields{
					"max_attempts": cfg.MaxAttempts,
				}).Error("не удалось подобрать свободный номер заказа")
				return fmt.Errorf("order number generation exhausted after %d attempts: %w", attempt, err)
			}
			s.logger.WithError(err).WithField("max_attempts", cfg.MaxAttempts).Error("транзакция не завершилась после повторов")
			return fmt.Errorf("transaction retries exhausted after %d attempts: %w", attempt, err)
		}

		if numberTaken {
			if s.metrics != nil {
				s.metrics.RecordOrderNumberRetry()
			}
			s.logger.WithFields(log.Fields{
				"attempt": attempt,
				"delay":   delay,
			}).Warn("номер заказа занят, генерируем новый")
		} else {
			s.logger.WithError(err).WithFields(log.Fields{
				"attempt": attempt,
				"delay":   delay,
			}).Warn("конфликт транзакции, повторяем")
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
