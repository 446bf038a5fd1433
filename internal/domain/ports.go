package domain

import (
	"context"
	"time"
)

// UnitOfWork выполняет функцию в одной транзакции хранилища.
// Если fn вернула ошибку, все изменения откатываются.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx — репозитории, привязанные к текущей транзакции.
type Tx interface {
	Medicines() MedicineStore
	Orders() OrderStore
	Reviews() ReviewStore
	Outbox() OutboxRepository
	Timeline() TimelineRepository
}

// MedicineStore — доступ к препаратам. Остаток меняется только через
// DecrementStock/IncrementStock, которыми пользуется складской учёт.
type MedicineStore interface {
	Create(ctx context.Context, m Medicine) error
	// Get возвращает препарат или ErrMedicineNotFound.
	Get(ctx context.Context, id string) (Medicine, error)
	// LockForOrder блокирует строку препарата продавца до конца транзакции.
	// Препарат другого продавца неотличим от отсутствующего: ErrMedicineNotFound.
	LockForOrder(ctx context.Context, id, sellerID string) (Medicine, error)
	// Lock блокирует строку препарата по идентификатору.
	Lock(ctx context.Context, id string) (Medicine, error)
	// DecrementStock — условное списание: ErrInsufficientStock, если остаток меньше qty.
	DecrementStock(ctx context.Context, id string, qty int) error
	// IncrementStock возвращает qty единиц; для неучитываемого остатка ничего не делает.
	IncrementStock(ctx context.Context, id string, qty int) error
	ListBySeller(ctx context.Context, sellerID string) ([]Medicine, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// OrderStore описывает требования к хранилищу заказов.
type OrderStore interface {
	// CreateHeader сохраняет заказ без позиций. Занятый номер даёт ErrOrderNumberConflict.
	CreateHeader(ctx context.Context, order Order) error
	// AddItem сохраняет позицию. Повтор препарата в заказе даёт ErrDuplicateLineItem.
	AddItem(ctx context.Context, item OrderItem) error
	// Get возвращает заказ с позициями или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// GetForUpdate делает то же, что Get, но блокирует строку заказа.
	GetForUpdate(ctx context.Context, id string) (Order, error)
	// Save сохраняет статус с учётом optimistic locking по Version.
	Save(ctx context.Context, order Order) error
	// ListByCustomer возвращает заказы клиента, новые первыми.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// ListBySeller возвращает заказы продавца, новые первыми.
	ListBySeller(ctx context.Context, sellerID string, limit int) ([]Order, error)
}

// ReviewStore хранит отзывы и ответы продавцов.
type ReviewStore interface {
	// Create сохраняет запись. Второй отзыв клиента на препарат даёт ErrAlreadyReviewed.
	Create(ctx context.Context, review Review) error
	Get(ctx context.Context, id string) (Review, error)
	// ListByMedicine возвращает отзывы и ответы, новые первыми.
	ListByMedicine(ctx context.Context, medicineID string) ([]Review, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, msg OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, responseCode int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, responseCode int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
