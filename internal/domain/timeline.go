package domain

import "time"

// Типы событий жизненного цикла заказа.
const (
	TimelineOrderPlaced   = "order_placed"
	TimelineStatusChanged = "status_changed"
	TimelineCancelled     = "order_cancelled"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID string
	Type    string
	// Reason — человекочитаемые детали: кто и из какого статуса.
	Reason   string
	Occurred time.Time
}
