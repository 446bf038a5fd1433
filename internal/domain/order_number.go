package domain

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// OrderNumberGenerator выдаёт человекочитаемый номер заказа.
type OrderNumberGenerator func(now time.Time) string

// NewOrderNumber формирует номер вида ORD-<unix ms>-<0..9999>.
// Коллизии возможны и обрабатываются повтором вставки.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%d", now.UnixMilli(), rand.IntN(10000))
}
