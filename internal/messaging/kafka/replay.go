package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DeadLetter — payload сообщения в DLQ, которое пишет outbox relay.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

// ReplayMessage — событие, восстановленное из DLQ для повторной публикации.
type ReplayMessage struct {
	Topic string
	Key   string
	Value []byte
	// EventType нужен для заголовка x-event-type.
	EventType string
}

// ExtractReplay восстанавливает исходный envelope из DLQ-сообщения.
// ok == false означает, что сообщение не похоже на DLQ-запись relay и его нужно пропустить.
func ExtractReplay(value []byte, topic string, now time.Time) (msg ReplayMessage, ok bool, err error) {
	envelope, err := ParseEnvelope(value)
	if err != nil || len(envelope.Payload) == 0 {
		return ReplayMessage{}, false, nil
	}

	var dead DeadLetter
	if err := json.Unmarshal(envelope.Payload, &dead); err != nil {
		return ReplayMessage{}, false, fmt.Errorf("decode dead letter: %w", err)
	}
	if len(dead.Payload) == 0 {
		return ReplayMessage{}, false, fmt.Errorf("dead letter %s does not contain the original payload", envelope.ID)
	}

	replay := Envelope{
		ID:            firstNonEmpty(dead.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(dead.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(dead.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(dead.EventType, envelope.EventType),
		Payload:       dead.Payload,
		PublishedAt:   now,
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return ReplayMessage{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	return ReplayMessage{
		Topic:     topic,
		Key:       replay.Key(),
		Value:     encoded,
		EventType: replay.EventType,
	}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
