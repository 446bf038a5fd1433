package ordering

import (
	"context"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// DefaultListLimit ограничивает выдачу списков заказов, если лимит не задан.
const DefaultListLimit = 100

// GetOrder возвращает заказ его клиенту, продавцу или администратору.
func (s *Service) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	if err := domain.Authorize(actor, domain.RoleCustomer, domain.RoleSeller, domain.RoleAdmin); err != nil {
		return domain.Order{}, err
	}

	var order domain.Order
	err := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		order, err = s.visibleOrder(ctx, tx, actor, orderID)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListCustomerOrders — заказы текущего клиента, новые первыми.
func (s *Service) ListCustomerOrders(ctx context.Context, actor domain.Actor, limit int) ([]domain.Order, error) {
	if err := domain.Authorize(actor, domain.RoleCustomer); err != nil {
		return nil, err
	}
	return s.list(ctx, limit, func(ctx context.Context, orders domain.OrderStore, limit int) ([]domain.Order, error) {
		return orders.ListByCustomer(ctx, actor.ID, limit)
	})
}

// ListSellerOrders — заказы текущего продавца, новые первыми.
func (s *Service) ListSellerOrders(ctx context.Context, actor domain.Actor, limit int) ([]domain.Order, error) {
	if err := domain.Authorize(actor, domain.RoleSeller); err != nil {
		return nil, err
	}
	return s.list(ctx, limit, func(ctx context.Context, orders domain.OrderStore, limit int) ([]domain.Order, error) {
		return orders.ListBySeller(ctx, actor.ID, limit)
	})
}

// Timeline возвращает хронологию заказа тем же акторам, которым виден сам заказ.
func (s *Service) Timeline(ctx context.Context, actor domain.Actor, orderID string) ([]domain.TimelineEvent, error) {
	if err := domain.Authorize(actor, domain.RoleCustomer, domain.RoleSeller, domain.RoleAdmin); err != nil {
		return nil, err
	}

	var events []domain.TimelineEvent
	err := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := s.visibleOrder(ctx, tx, actor, orderID); err != nil {
			return err
		}
		var err error
		events, err = tx.Timeline().List(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Service) visibleOrder(ctx context.Context, tx domain.Tx, actor domain.Actor, orderID string) (domain.Order, error) {
	order, err := tx.Orders().Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.VisibleTo(actor) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) list(
	ctx context.Context,
	limit int,
	query func(ctx context.Context, orders domain.OrderStore, limit int) ([]domain.Order, error),
) ([]domain.Order, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}

	var result []domain.Order
	err := s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		result, err = query(ctx, tx.Orders(), limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []domain.Order{}
	}
	return result, nil
}
