package domain

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod — способ оплаты заказа.
type PaymentMethod string

// PaymentMethodCashOnDelivery — оплата при получении, единственный поддерживаемый способ.
const PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"

// MaxItemQuantity — предел количества в позиции, столбец quantity имеет тип INTEGER.
const MaxItemQuantity = math.MaxInt32

// Денежные столбцы хранятся с двумя знаками после запятой.
const moneyScale = 2

var (
	// maxUnitPrice — NUMERIC(12,2).
	maxUnitPrice = decimal.RequireFromString("9999999999.99")
	// maxOrderTotal — NUMERIC(14,2).
	maxOrderTotal = decimal.RequireFromString("999999999999.99")
)

// fitsMoney сообщает, помещается ли сумма в денежный столбец без округления.
func fitsMoney(amount, max decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(moneyScale)) && !amount.GreaterThan(max)
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID      string
	OrderID string
	// MedicineID — препарат продавца, к которому относится позиция.
	MedicineID string
	// Quantity — количество единиц товара.
	Quantity int
	// Price — цена за единицу на момент покупки, не ссылка на текущую цену препарата.
	Price decimal.Decimal
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Subtotal возвращает price × quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order агрегирует покупку одного клиента у одного продавца.
type Order struct {
	ID              string
	OrderNumber     string
	CustomerID      string
	SellerID        string
	TotalAmount     decimal.Decimal
	Status          OrderStatus
	ShippingAddress string
	PaymentMethod   PaymentMethod
	Items           []OrderItem
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LineItem — позиция корзины в запросе на создание заказа.
type LineItem struct {
	MedicineID string
	Quantity   int
	Price      decimal.Decimal
}

// OrderDraft — корзина клиента для одного продавца.
type OrderDraft struct {
	CustomerID      string
	SellerID        string
	ShippingAddress string
	Items           []LineItem
}

// Validate проверяет корзину до любых обращений к хранилищу.
func (d OrderDraft) Validate() []error {
	var errs []error

	if d.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if d.SellerID == "" {
		errs = append(errs, ErrSellerRequired)
	}
	if strings.TrimSpace(d.ShippingAddress) == "" {
		errs = append(errs, ErrShippingAddressRequired)
	}
	if len(d.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	seen := make(map[string]struct{}, len(d.Items))
	for _, item := range d.Items {
		if item.MedicineID == "" {
			errs = append(errs, ErrMedicineIDRequired)
			continue
		}
		errs = append(errs, lineErrors(item.Quantity, item.Price)...)
		if _, dup := seen[item.MedicineID]; dup {
			errs = append(errs, ErrDuplicateLineItem)
		}
		seen[item.MedicineID] = struct{}{}
	}

	return errs
}

func lineErrors(quantity int, price decimal.Decimal) []error {
	var errs []error
	switch {
	case quantity <= 0:
		errs = append(errs, ErrItemQuantityInvalid)
	case quantity > MaxItemQuantity:
		errs = append(errs, ErrItemQuantityTooLarge)
	}
	switch {
	case price.IsNegative():
		errs = append(errs, ErrItemPriceInvalid)
	case !fitsMoney(price, maxUnitPrice):
		errs = append(errs, ErrItemPriceOutOfRange)
	}
	return errs
}

// BuildOrder собирает новый заказ в статусе PLACED с оплатой при получении.
// Номер заказа берётся из генератора; уникальность гарантирует хранилище.
func BuildOrder(draft OrderDraft, numbers OrderNumberGenerator, now time.Time) (Order, error) {
	if errs := draft.Validate(); len(errs) > 0 {
		return Order{}, errors.Join(errs...)
	}

	order := Order{
		ID:              uuid.NewString(),
		OrderNumber:     numbers(now),
		CustomerID:      draft.CustomerID,
		SellerID:        draft.SellerID,
		Status:          OrderStatusPlaced,
		ShippingAddress: strings.TrimSpace(draft.ShippingAddress),
		PaymentMethod:   PaymentMethodCashOnDelivery,
		Items:           make([]OrderItem, 0, len(draft.Items)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, li := range draft.Items {
		order.Items = append(order.Items, OrderItem{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			MedicineID: li.MedicineID,
			Quantity:   li.Quantity,
			Price:      li.Price,
			CreatedAt:  now,
		})
	}
	order.TotalAmount = TotalOf(order.Items)
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return Order{}, errors.Join(errs...)
	}

	return order, nil
}

// TotalOf — Σ(price × quantity) по позициям.
func TotalOf(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Item ищет позицию по препарату.
func (o *Order) Item(medicineID string) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.MedicineID == medicineID {
			return item, true
		}
	}
	return OrderItem{}, false
}

// VisibleTo сообщает, является ли актор стороной заказа или администратором.
func (o *Order) VisibleTo(actor Actor) bool {
	if actor.Role == RoleAdmin {
		return true
	}
	return actor.ID != "" && (actor.ID == o.CustomerID || actor.ID == o.SellerID)
}

// ValidateInvariants проверяет инварианты собранного заказа: позиции, сумму и статус.
// Вызывается перед записью заказа и после чтения его из хранилища.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.SellerID == "" {
		errs = append(errs, ErrSellerRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrUnknownOrderStatus)
	}

	seen := make(map[string]struct{}, len(o.Items))
	for _, item := range o.Items {
		errs = append(errs, lineErrors(item.Quantity, item.Price)...)
		if _, dup := seen[item.MedicineID]; dup {
			errs = append(errs, ErrDuplicateLineItem)
		}
		seen[item.MedicineID] = struct{}{}
	}
	if o.TotalAmount.IsNegative() || !fitsMoney(o.TotalAmount, maxOrderTotal) {
		errs = append(errs, ErrOrderTotalOutOfRange)
	}

	return errs
}
