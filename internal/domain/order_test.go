package domain_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

func fixedNumber(now time.Time) string { return "ORD-1-1" }

// helper для создания корзины с двумя позициями.
func makeDraft() domain.OrderDraft {
	return domain.OrderDraft{
		CustomerID:      "customer-1",
		SellerID:        "seller-1",
		ShippingAddress: " Lenina 1, Moscow ",
		Items: []domain.LineItem{
			{MedicineID: "med-1", Quantity: 2, Price: decimal.RequireFromString("10.50")},
			{MedicineID: "med-2", Quantity: 3, Price: decimal.RequireFromString("1.25")},
		},
	}
}

func TestBuildOrder(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	order, err := domain.BuildOrder(makeDraft(), fixedNumber, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if order.Status != domain.OrderStatusPlaced {
		t.Fatalf("expected PLACED, got %s", order.Status)
	}
	if order.PaymentMethod != domain.PaymentMethodCashOnDelivery {
		t.Fatalf("expected cash on delivery, got %s", order.PaymentMethod)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("24.75")) {
		t.Fatalf("expected total 24.75, got %s", order.TotalAmount)
	}
	if order.OrderNumber != "ORD-1-1" {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if order.ShippingAddress != "Lenina 1, Moscow" {
		t.Fatalf("shipping address not trimmed: %q", order.ShippingAddress)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	for i, item := range order.Items {
		if item.OrderID != order.ID || item.ID == "" {
			t.Fatalf("item %d not attached to order: %+v", i, item)
		}
	}
	if order.Items[0].MedicineID != "med-1" || order.Items[1].MedicineID != "med-2" {
		t.Fatalf("items must keep request order")
	}
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("built order violates invariants: %v", errs)
	}
}

func TestBuildOrder_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(d *domain.OrderDraft)
		want error
	}{
		{name: "no customer", mut: func(d *domain.OrderDraft) { d.CustomerID = "" }, want: domain.ErrCustomerRequired},
		{name: "no seller", mut: func(d *domain.OrderDraft) { d.SellerID = "" }, want: domain.ErrSellerRequired},
		{name: "blank address", mut: func(d *domain.OrderDraft) { d.ShippingAddress = "  " }, want: domain.ErrShippingAddressRequired},
		{name: "no items", mut: func(d *domain.OrderDraft) { d.Items = nil }, want: domain.ErrItemsRequired},
		{name: "zero quantity", mut: func(d *domain.OrderDraft) { d.Items[0].Quantity = 0 }, want: domain.ErrItemQuantityInvalid},
		{
			name: "negative price",
			mut:  func(d *domain.OrderDraft) { d.Items[1].Price = decimal.NewFromInt(-1) },
			want: domain.ErrItemPriceInvalid,
		},
		{
			name: "duplicate medicine",
			mut:  func(d *domain.OrderDraft) { d.Items[1].MedicineID = d.Items[0].MedicineID },
			want: domain.ErrDuplicateLineItem,
		},
		{name: "missing medicine id", mut: func(d *domain.OrderDraft) { d.Items[0].MedicineID = "" }, want: domain.ErrMedicineIDRequired},
		{
			name: "quantity above int32",
			mut:  func(d *domain.OrderDraft) { d.Items[0].Quantity = domain.MaxItemQuantity + 1 },
			want: domain.ErrItemQuantityTooLarge,
		},
		{
			name: "sub-cent price",
			mut:  func(d *domain.OrderDraft) { d.Items[0].Price = decimal.RequireFromString("0.001") },
			want: domain.ErrItemPriceOutOfRange,
		},
		{
			name: "price above column precision",
			mut:  func(d *domain.OrderDraft) { d.Items[0].Price = decimal.RequireFromString("10000000000") },
			want: domain.ErrItemPriceOutOfRange,
		},
		{
			name: "total above column precision",
			mut: func(d *domain.OrderDraft) {
				d.Items[0].Quantity = domain.MaxItemQuantity
				d.Items[0].Price = decimal.RequireFromString("9999999999.99")
			},
			want: domain.ErrOrderTotalOutOfRange,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			draft := makeDraft()
			tc.mut(&draft)

			_, err := domain.BuildOrder(draft, fixedNumber, time.Now())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation class, got %v", err)
			}
		})
	}
}

func TestBuildOrder_AcceptsBoundaryValues(t *testing.T) {
	draft := makeDraft()
	draft.Items = []domain.LineItem{
		{MedicineID: "med-1", Quantity: 1, Price: decimal.RequireFromString("9999999999.99")},
		{MedicineID: "med-2", Quantity: 1, Price: decimal.RequireFromString("2.500")},
	}

	order, err := domain.BuildOrder(draft, fixedNumber, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("10000000002.49")) {
		t.Fatalf("unexpected total %s", order.TotalAmount)
	}
}

func TestOrderValidateInvariants(t *testing.T) {
	order, err := domain.BuildOrder(makeDraft(), fixedNumber, time.Now())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	order.Status = "LOST"
	order.Items[1].Quantity = 0
	order.TotalAmount = decimal.RequireFromString("0.005")

	errs := order.ValidateInvariants()
	joined := errors.Join(errs...)
	for _, want := range []error{domain.ErrUnknownOrderStatus, domain.ErrItemQuantityInvalid, domain.ErrOrderTotalOutOfRange} {
		if !errors.Is(joined, want) {
			t.Errorf("expected %v among %v", want, errs)
		}
	}
}

func TestNewOrderNumber(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	number := domain.NewOrderNumber(now)

	if !strings.HasPrefix(number, "ORD-1700000000123-") {
		t.Fatalf("unexpected number format: %s", number)
	}
	parts := strings.Split(number, "-")
	if len(parts) != 3 || len(parts[2]) == 0 || len(parts[2]) > 4 {
		t.Fatalf("unexpected suffix in %s", number)
	}
}

func TestOrderVisibleTo(t *testing.T) {
	order, err := domain.BuildOrder(makeDraft(), fixedNumber, time.Now())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	cases := []struct {
		actor domain.Actor
		want  bool
	}{
		{actor: domain.Actor{ID: "customer-1", Role: domain.RoleCustomer}, want: true},
		{actor: domain.Actor{ID: "seller-1", Role: domain.RoleSeller}, want: true},
		{actor: domain.Actor{ID: "admin", Role: domain.RoleAdmin}, want: true},
		{actor: domain.Actor{ID: "customer-2", Role: domain.RoleCustomer}, want: false},
		{actor: domain.Actor{}, want: false},
	}
	for _, tc := range cases {
		if got := order.VisibleTo(tc.actor); got != tc.want {
			t.Errorf("VisibleTo(%+v) = %v, want %v", tc.actor, got, tc.want)
		}
	}
}
