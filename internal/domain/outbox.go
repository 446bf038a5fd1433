package domain

import "time"

// AggregateTypeOrder — тип агрегата для событий заказа в outbox.
const AggregateTypeOrder = "order"

// Типы событий заказа, публикуемых через outbox.
const (
	EventOrderCreated       = "order.created"
	EventOrderCancelled     = "order.cancelled"
	EventOrderStatusChanged = "order.status_changed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	AttemptCount  int
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OrderEvent — полезная нагрузка событий заказа.
type OrderEvent struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	CustomerID  string      `json:"customer_id"`
	SellerID    string      `json:"seller_id"`
	Status      OrderStatus `json:"status"`
	Previous    OrderStatus `json:"previous_status,omitempty"`
	TotalAmount string      `json:"total_amount"`
	Items       []EventItem `json:"items,omitempty"`
	ActorID     string      `json:"actor_id,omitempty"`
	ActorRole   Role        `json:"actor_role,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// EventItem — позиция заказа в событии.
type EventItem struct {
	MedicineID string `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
	Price      string `json:"price"`
}

// NewOrderEvent собирает событие по текущему состоянию заказа.
func NewOrderEvent(order Order, previous OrderStatus, actor Actor, now time.Time) OrderEvent {
	event := OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		SellerID:    order.SellerID,
		Status:      order.Status,
		Previous:    previous,
		TotalAmount: order.TotalAmount.StringFixed(2),
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		OccurredAt:  now,
	}
	for _, item := range order.Items {
		event.Items = append(event.Items, EventItem{
			MedicineID: item.MedicineID,
			Quantity:   item.Quantity,
			Price:      item.Price.StringFixed(2),
		})
	}
	return event
}
