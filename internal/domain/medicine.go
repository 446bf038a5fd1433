package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Stock — остаток препарата. Либо учитываемое количество (Tracked),
// либо неучитываемый остаток (Untracked), который всегда достаточен и никогда не списывается.
type Stock struct {
	tracked  bool
	quantity int
}

// Tracked возвращает учитываемый остаток в n единиц.
func Tracked(n int) Stock {
	return Stock{tracked: true, quantity: n}
}

// Untracked возвращает неограниченный остаток.
func Untracked() Stock {
	return Stock{}
}

// StockFromNullable собирает остаток из значения, хранимого как NULL/число.
func StockFromNullable(n *int) Stock {
	if n == nil {
		return Untracked()
	}
	return Tracked(*n)
}

func (s Stock) IsTracked() bool { return s.tracked }

// Quantity возвращает количество и признак учёта.
func (s Stock) Quantity() (int, bool) {
	return s.quantity, s.tracked
}

// Nullable возвращает nil для неучитываемого остатка.
func (s Stock) Nullable() *int {
	if !s.tracked {
		return nil
	}
	n := s.quantity
	return &n
}

// Covers сообщает, хватит ли остатка на qty единиц.
func (s Stock) Covers(qty int) bool {
	return !s.tracked || s.quantity >= qty
}

// Decrease списывает qty единиц. Для неучитываемого остатка ничего не меняется.
func (s Stock) Decrease(qty int) (Stock, error) {
	if !s.tracked {
		return s, nil
	}
	if s.quantity < qty {
		return s, ErrInsufficientStock
	}
	return Tracked(s.quantity - qty), nil
}

// Increase возвращает qty единиц на склад.
func (s Stock) Increase(qty int) Stock {
	if !s.tracked {
		return s
	}
	return Tracked(s.quantity + qty)
}

func (s Stock) Validate() error {
	if s.tracked && s.quantity < 0 {
		return ErrStockNegative
	}
	return nil
}

func (s Stock) String() string {
	if !s.tracked {
		return "untracked"
	}
	return fmt.Sprintf("%d", s.quantity)
}

// Medicine — препарат в каталоге продавца.
type Medicine struct {
	ID              string
	SellerID        string
	Name            string
	Manufacturer    string
	Unit            string
	BasePrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	Stock           Stock
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

var hundred = decimal.NewFromInt(100)

// UnitPrice — цена за единицу с учётом скидки, округлённая до копеек.
func (m Medicine) UnitPrice() decimal.Decimal {
	if m.DiscountPercent.IsZero() {
		return m.BasePrice.Round(2)
	}
	factor := hundred.Sub(m.DiscountPercent).Div(hundred)
	return m.BasePrice.Mul(factor).Round(2)
}

// Validate проверяет поля препарата и возвращает список замечаний.
func (m *Medicine) Validate() []error {
	var errs []error

	if m.SellerID == "" {
		errs = append(errs, ErrSellerRequired)
	}
	if m.Name == "" {
		errs = append(errs, ErrMedicineNameRequired)
	}
	if m.BasePrice.IsNegative() || !fitsMoney(m.BasePrice, maxUnitPrice) {
		errs = append(errs, ErrMedicinePriceInvalid)
	}
	if m.DiscountPercent.IsNegative() || m.DiscountPercent.GreaterThan(hundred) {
		errs = append(errs, ErrDiscountInvalid)
	}
	if err := m.Stock.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errs
}
