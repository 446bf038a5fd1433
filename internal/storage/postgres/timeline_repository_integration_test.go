package postgres

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedMedicine(t, store, "med-1", "seller-1", domain.Tracked(10), true)

	createdAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	order := sampleOrder("timeline-order", "ORD-timeline", "customer-timeline", createdAt)

	inTx(t, store, func(ctx context.Context, tx domain.Tx) error {
		if err := persistOrder(ctx, tx, order); err != nil {
			return err
		}
		// Нулевое время заполняется репозиторием.
		if err := tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID: order.ID,
			Type:    domain.TimelineOrderPlaced,
		}); err != nil {
			return err
		}
		return tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.TimelineCancelled,
			Reason:   "customer request",
			Occurred: time.Now().UTC().Add(10 * time.Second),
		})
	})

	inTx(t, store, func(ctx context.Context, tx domain.Tx) error {
		events, err := tx.Timeline().List(ctx, order.ID)
		if err != nil {
			t.Fatalf("list timeline events: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 timeline events, got %d", len(events))
		}
		if events[0].Occurred.After(events[1].Occurred) {
			t.Fatalf("events should be sorted by occurred asc: %+v", events)
		}
		types := []string{events[0].Type, events[1].Type}
		if !slices.Contains(types, domain.TimelineOrderPlaced) || !slices.Contains(types, domain.TimelineCancelled) {
			t.Fatalf("unexpected event types: %+v", types)
		}
		return nil
	})
}

func TestTimelineRepository_PostgresMissingOrder(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := store.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID: "missing-order",
			Type:    domain.TimelineOrderPlaced,
		})
	})
	if err == nil {
		t.Fatal("expected append error for missing order due FK constraint")
	}

	inTx(t, store, func(ctx context.Context, tx domain.Tx) error {
		events, err := tx.Timeline().List(ctx, "missing-order")
		if err != nil {
			t.Fatalf("list for missing order should not fail: %v", err)
		}
		if len(events) != 0 {
			t.Fatalf("expected no events for missing order, got %d", len(events))
		}
		return nil
	})
}
