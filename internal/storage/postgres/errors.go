package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// Имена ограничений из миграций, по которым различаются конфликты.
const (
	constraintOrderNumber       = "orders_order_number_key"
	constraintOrderItemMedicine = "order_items_order_medicine_key"
	constraintReviewPerCustomer = "reviews_customer_medicine_key"
	constraintStockNonNegative  = "medicines_stock_non_negative"
)

func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == pgerrcode.UniqueViolation
}

// violatesConstraint проверяет нарушение конкретного ограничения.
func violatesConstraint(err error, name string) bool {
	pgErr, ok := pgError(err)
	if !ok {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation, pgerrcode.CheckViolation, pgerrcode.ForeignKeyViolation:
		return pgErr.ConstraintName == name
	default:
		return false
	}
}

func isForeignKeyViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == pgerrcode.ForeignKeyViolation
}

// isTransient — взаимоблокировка (40P01) или сбой сериализации (40001): транзакция
// откачена сервером целиком и её можно повторить.
func isTransient(err error) bool {
	pgErr, ok := pgError(err)
	return ok && (pgErr.Code == pgerrcode.DeadlockDetected || pgErr.Code == pgerrcode.SerializationFailure)
}

// translateTxError помечает повторяемые ошибки транзакции как domain.ErrTransientConflict.
func translateTxError(err error) error {
	if err == nil || !isTransient(err) || errors.Is(err, domain.ErrTransientConflict) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrTransientConflict, err)
}
