package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// state — всё содержимое хранилища. Транзакция работает с копией state
// и подменяет оригинал только при успешном завершении.
type state struct {
	medicines    map[string]domain.Medicine
	orders       map[string]domain.Order
	orderNumbers map[string]string
	reviews      map[string]domain.Review
	outbox       []outboxRecord
	timeline     map[string][]domain.TimelineEvent
}

func newState() *state {
	return &state{
		medicines:    make(map[string]domain.Medicine),
		orders:       make(map[string]domain.Order),
		orderNumbers: make(map[string]string),
		reviews:      make(map[string]domain.Review),
		timeline:     make(map[string][]domain.TimelineEvent),
	}
}

func (s *state) clone() *state {
	orders := make(map[string]domain.Order, len(s.orders))
	for id, order := range s.orders {
		order.Items = slices.Clone(order.Items)
		orders[id] = order
	}
	timeline := make(map[string][]domain.TimelineEvent, len(s.timeline))
	for id, events := range s.timeline {
		timeline[id] = slices.Clone(events)
	}
	return &state{
		medicines:    maps.Clone(s.medicines),
		orders:       orders,
		orderNumbers: maps.Clone(s.orderNumbers),
		reviews:      maps.Clone(s.reviews),
		outbox:       slices.Clone(s.outbox),
		timeline:     timeline,
	}
}

// Store — in-memory хранилище для локальной разработки и тестов.
// Транзакции выполняются строго по одной, поэтому изоляция полная.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Do выполняет fn над копией данных и применяет изменения, только если fn не вернула ошибку.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if s == nil {
		return errors.New("memory store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &txHandle{st: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// Outbox возвращает outbox вне транзакций, для фонового relay.
func (s *Store) Outbox() domain.OutboxRepository {
	return &lockedOutbox{store: s}
}

type txHandle struct {
	st *state
}

func (t *txHandle) Medicines() domain.MedicineStore { return &medicineRepository{st: t.st} }

func (t *txHandle) Orders() domain.OrderStore { return &orderRepository{st: t.st} }

func (t *txHandle) Reviews() domain.ReviewStore { return &reviewRepository{st: t.st} }

func (t *txHandle) Outbox() domain.OutboxRepository { return &outboxRepository{st: t.st} }

func (t *txHandle) Timeline() domain.TimelineRepository { return &timelineRepository{st: t.st} }

var (
	_ domain.UnitOfWork = (*Store)(nil)
	_ domain.Tx         = (*txHandle)(nil)
)
