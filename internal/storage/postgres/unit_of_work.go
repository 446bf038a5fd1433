package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// Do выполняет fn в транзакции READ COMMITTED. Блокировки строк берут сами репозитории
// (SELECT ... FOR UPDATE и условные UPDATE), поэтому более строгая изоляция не нужна.
// Взаимоблокировка и сбой сериализации возвращаются как domain.ErrTransientConflict.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(ctx, &txHandle{q: sqlTx}); err != nil {
		return translateTxError(err)
	}

	if err = sqlTx.Commit(); err != nil {
		return translateTxError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// txHandle раздаёт репозитории, работающие внутри одной *sql.Tx.
type txHandle struct {
	q querier
}

func (t *txHandle) Medicines() domain.MedicineStore { return &medicineRepository{q: t.q} }

func (t *txHandle) Orders() domain.OrderStore { return &orderRepository{q: t.q} }

func (t *txHandle) Reviews() domain.ReviewStore { return &reviewRepository{q: t.q} }

func (t *txHandle) Outbox() domain.OutboxRepository { return &outboxRepository{q: t.q} }

func (t *txHandle) Timeline() domain.TimelineRepository { return &timelineRepository{q: t.q} }

var (
	_ domain.UnitOfWork = (*Store)(nil)
	_ domain.Tx         = (*txHandle)(nil)
)
