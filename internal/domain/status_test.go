package domain

import (
	"errors"
	"testing"
	"time"
)

func TestTransitionTo_FullMatrix(t *testing.T) {
	allowed := map[OrderStatus]map[OrderStatus]bool{
		OrderStatusPlaced:     {OrderStatusProcessing: true, OrderStatusCancelled: true},
		OrderStatusProcessing: {OrderStatusShipped: true, OrderStatusCancelled: true},
		OrderStatusShipped:    {OrderStatusDelivered: true},
	}
	now := time.Now().UTC()

	for _, from := range AllOrderStatuses {
		for _, to := range AllOrderStatuses {
			from, to := from, to
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				order := Order{Status: from}
				err := order.TransitionTo(to, now)

				if allowed[from][to] {
					if err != nil {
						t.Fatalf("expected transition to succeed, got %v", err)
					}
					if order.Status != to || !order.UpdatedAt.Equal(now) {
						t.Fatalf("order not updated: %+v", order)
					}
					return
				}
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				if order.Status != from {
					t.Fatalf("status must stay %s, got %s", from, order.Status)
				}
			})
		}
	}
}

func TestTransitionTo_UnknownTarget(t *testing.T) {
	order := Order{Status: OrderStatusPlaced}
	err := order.TransitionTo(OrderStatus("LOST"), time.Now())
	if !errors.Is(err, ErrUnknownOrderStatus) {
		t.Fatalf("expected ErrUnknownOrderStatus, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	tests := []struct {
		from       OrderStatus
		wantErr    bool
		wantReason string
	}{
		{from: OrderStatusPlaced},
		{from: OrderStatusProcessing},
		{from: OrderStatusShipped, wantErr: true, wantReason: alreadyShippedReason},
		{from: OrderStatusDelivered, wantErr: true, wantReason: alreadyShippedReason},
		{from: OrderStatusCancelled, wantErr: true, wantReason: "order is already cancelled"},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			order := Order{Status: tt.from}
			err := order.Cancel(time.Now())

			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if order.Status != OrderStatusCancelled {
					t.Fatalf("expected CANCELLED, got %s", order.Status)
				}
				return
			}

			var transitionErr *InvalidTransitionError
			if !errors.As(err, &transitionErr) {
				t.Fatalf("expected InvalidTransitionError, got %v", err)
			}
			if transitionErr.Error() != tt.wantReason {
				t.Fatalf("message = %q, want %q", transitionErr.Error(), tt.wantReason)
			}
			if order.Status != tt.from {
				t.Fatalf("status changed on rejected cancel")
			}
		})
	}
}

func TestTransitionFromTerminalStatus(t *testing.T) {
	tests := []struct {
		from       OrderStatus
		wantReason string
	}{
		{from: OrderStatusDelivered, wantReason: "order is DELIVERED and can no longer change status"},
		{from: OrderStatusCancelled, wantReason: "order is already cancelled"},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			order := Order{Status: tt.from}
			err := order.TransitionTo(OrderStatusProcessing, time.Now())

			var transitionErr *InvalidTransitionError
			if !errors.As(err, &transitionErr) {
				t.Fatalf("expected InvalidTransitionError, got %v", err)
			}
			if transitionErr.Error() != tt.wantReason {
				t.Fatalf("message = %q, want %q", transitionErr.Error(), tt.wantReason)
			}
			if order.Status != tt.from {
				t.Fatal("terminal status changed")
			}
		})
	}
}

func TestStatusHelpers(t *testing.T) {
	if !OrderStatusDelivered.Terminal() || !OrderStatusCancelled.Terminal() {
		t.Fatal("DELIVERED and CANCELLED must be terminal")
	}
	if OrderStatusPlaced.Terminal() {
		t.Fatal("PLACED is not terminal")
	}

	status, err := ParseOrderStatus(" processing ")
	if err != nil || status != OrderStatusProcessing {
		t.Fatalf("ParseOrderStatus() = %q, %v", status, err)
	}
	if _, err := ParseOrderStatus("refunded"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAuthorizeStatusUpdate(t *testing.T) {
	order := Order{SellerID: "seller-1", CustomerID: "customer-1"}

	tests := []struct {
		name  string
		actor Actor
		want  error
	}{
		{name: "owner seller", actor: Actor{ID: "seller-1", Role: RoleSeller}},
		{name: "admin", actor: Actor{ID: "root", Role: RoleAdmin}},
		{name: "other seller", actor: Actor{ID: "seller-2", Role: RoleSeller}, want: ErrForbidden},
		{name: "customer", actor: Actor{ID: "customer-1", Role: RoleCustomer}, want: ErrForbidden},
		{name: "anonymous", actor: Actor{}, want: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := order.AuthorizeStatusUpdate(tt.actor)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
