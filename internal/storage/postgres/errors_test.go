package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

func TestTranslateTxError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "deadlock", err: &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, transient: true},
		{name: "serialization failure", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, transient: true},
		{name: "wrapped deadlock", err: fmt.Errorf("decrement stock: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), transient: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, transient: false},
		{name: "domain error", err: domain.ErrOrderNotFound, transient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateTxError(tt.err)
			if errors.Is(got, domain.ErrTransientConflict) != tt.transient {
				t.Fatalf("translateTxError(%v) = %v, transient=%v", tt.err, got, tt.transient)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("original error must stay in the chain, got %v", got)
			}
			if tt.transient && domain.KindOf(got) != domain.KindConflict {
				t.Fatalf("transient error must be a conflict, got %s", domain.KindOf(got))
			}
		})
	}

	if translateTxError(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestCheckLoaded(t *testing.T) {
	now := time.Now().UTC()
	order := sampleOrder("order-1", "ORD-1", "customer-1", now)
	if err := checkLoaded(order); err != nil {
		t.Fatalf("consistent order rejected: %v", err)
	}

	order.Items = nil
	order.TotalAmount = decimal.RequireFromString("0.001")
	err := checkLoaded(order)
	if err == nil {
		t.Fatal("expected error for order without items")
	}
	if domain.KindOf(err) != domain.KindInternal {
		t.Fatalf("corrupted row must surface as internal error, got %s", domain.KindOf(err))
	}
	if !strings.Contains(err.Error(), "order-1") {
		t.Fatalf("error should name the order: %v", err)
	}
}
