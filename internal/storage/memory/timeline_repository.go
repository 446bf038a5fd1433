package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

type timelineRepository struct {
	st *state
}

// Append добавляет событие; заказ должен существовать.
func (r *timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	if _, ok := r.st.orders[event.OrderID]; !ok {
		return fmt.Errorf("append timeline event: %w", domain.ErrOrderNotFound)
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	events := append(r.st.timeline[event.OrderID], event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	r.st.timeline[event.OrderID] = events
	return nil
}

// List возвращает события заказа в хронологическом порядке.
func (r *timelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	events := slices.Clone(r.st.timeline[orderID])
	if events == nil {
		events = make([]domain.TimelineEvent, 0)
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
