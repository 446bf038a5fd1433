package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

type orderRepository struct {
	st *state
}

// CreateHeader сохраняет заказ без позиций, номер заказа уникален.
func (r *orderRepository) CreateHeader(_ context.Context, order domain.Order) error {
	if _, taken := r.st.orderNumbers[order.OrderNumber]; taken {
		return domain.ErrOrderNumberConflict
	}
	if _, exists := r.st.orders[order.ID]; exists {
		return fmt.Errorf("%w: order id %s already exists", domain.ErrConflict, order.ID)
	}
	order.Items = nil
	r.st.orders[order.ID] = order
	r.st.orderNumbers[order.OrderNumber] = order.ID
	return nil
}

func (r *orderRepository) AddItem(_ context.Context, item domain.OrderItem) error {
	order, ok := r.st.orders[item.OrderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if _, ok := r.st.medicines[item.MedicineID]; !ok {
		return fmt.Errorf("insert order item: %w", domain.ErrMedicineNotFound)
	}
	if _, dup := order.Item(item.MedicineID); dup {
		return domain.ErrDuplicateLineItem
	}
	order.Items = append(order.Items, item)
	r.st.orders[item.OrderID] = order
	return nil
}

// Get возвращает копию заказа, чтобы вызывающий не мог изменить хранилище в обход Save.
func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	order, ok := r.st.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order.Items = slices.Clone(order.Items)
	return order, nil
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.Get(ctx, id)
}

// Save перезаписывает статус, проверяя версию (optimistic locking).
func (r *orderRepository) Save(_ context.Context, order domain.Order) error {
	current, ok := r.st.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	current.Status = order.Status
	current.UpdatedAt = order.UpdatedAt
	current.Version++
	r.st.orders[order.ID] = current
	return nil
}

func (r *orderRepository) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.CustomerID == customerID }, limit), nil
}

func (r *orderRepository) ListBySeller(_ context.Context, sellerID string, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.SellerID == sellerID }, limit), nil
}

func (r *orderRepository) list(match func(domain.Order) bool, limit int) []domain.Order {
	result := make([]domain.Order, 0)
	for _, order := range r.st.orders {
		if !match(order) {
			continue
		}
		order.Items = slices.Clone(order.Items)
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

var _ domain.OrderStore = (*orderRepository)(nil)
