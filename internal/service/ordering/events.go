package ordering

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

// emit пишет событие outbox и запись хронологии в текущую единицу работы.
func (s *Service) emit(
	ctx context.Context,
	tx domain.Tx,
	order domain.Order,
	previous domain.OrderStatus,
	actor domain.Actor,
	eventType string,
	timelineType string,
	reason string,
) error {
	now := s.now()

	payload, err := json.Marshal(domain.NewOrderEvent(order, previous, actor, now))
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
	}); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}

	if err := tx.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     timelineType,
		Reason:   reason,
		Occurred: now,
	}); err != nil {
		return fmt.Errorf("append timeline %s: %w", timelineType, err)
	}

	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
		s.metrics.RecordTimelineEvent()
	}
	return nil
}
