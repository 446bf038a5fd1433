package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPlaced — заказ создан клиентом, остаток списан.
	OrderStatusPlaced OrderStatus = "PLACED"
	// OrderStatusProcessing — продавец принял заказ в работу.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered — заказ получен клиентом. Терминальный статус.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled — заказ отменён, остаток возвращён. Терминальный статус.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// AllOrderStatuses перечисляет статусы в порядке жизненного цикла.
var AllOrderStatuses = []OrderStatus{
	OrderStatusPlaced,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// orderTransitions — разрешённые переходы для обновлений продавцом или администратором.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced:     {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  nil,
	OrderStatusCancelled:  nil,
}

const alreadyShippedReason = "order cannot be cancelled as it's already shipped or delivered"

// ParseOrderStatus разбирает статус без учёта регистра.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOrderStatus, raw)
	}
	return status, nil
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// CanTransitionTo проверяет переход по таблице.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Cancellable — отмена возможна только до отгрузки.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPlaced || s == OrderStatusProcessing
}

// TransitionTo применяет обновление статуса продавцом или администратором.
// Отменённый заказ не меняется ни при каких условиях, таблица переходов для него не проверяется.
func (o *Order) TransitionTo(target OrderStatus, now time.Time) error {
	if !target.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOrderStatus, target)
	}
	switch {
	case o.Status == OrderStatusCancelled:
		return &InvalidTransitionError{From: o.Status, To: target, Reason: "order is already cancelled"}
	case o.Status.Terminal():
		return &InvalidTransitionError{From: o.Status, To: target, Reason: fmt.Sprintf("order is %s and can no longer change status", o.Status)}
	case !o.Status.CanTransitionTo(target):
		return &InvalidTransitionError{From: o.Status, To: target}
	}
	o.Status = target
	o.UpdatedAt = now
	return nil
}

// Cancel переводит заказ в CANCELLED по запросу клиента или продавца.
func (o *Order) Cancel(now time.Time) error {
	switch {
	case o.Status == OrderStatusCancelled:
		return &InvalidTransitionError{From: o.Status, To: OrderStatusCancelled, Reason: "order is already cancelled"}
	case !o.Status.Cancellable():
		return &InvalidTransitionError{From: o.Status, To: OrderStatusCancelled, Reason: alreadyShippedReason}
	}
	o.Status = OrderStatusCancelled
	o.UpdatedAt = now
	return nil
}

// AuthorizeStatusUpdate — обновлять статус может продавец заказа или администратор.
func (o *Order) AuthorizeStatusUpdate(actor Actor) error {
	if err := Authorize(actor, RoleSeller, RoleAdmin); err != nil {
		return err
	}
	if actor.Role == RoleSeller && actor.ID != o.SellerID {
		return fmt.Errorf("%w: order belongs to another seller", ErrForbidden)
	}
	return nil
}
