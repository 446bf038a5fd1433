package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

func testOutboxMessage() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":"order-1","order_number":"ORD-1","status":"PENDING"}`),
		CreatedAt:     time.Now().UTC(),
	}
}

func TestOutboxPublisher_Publish(t *testing.T) {
	producer, mockProducer := newTestProducer(t)
	publisher := NewOutboxPublisher(producer, "")

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "order-1" {
			return errors.New("key must be the aggregate id")
		}
		value, _ := msg.Value.Encode()
		envelope, err := ParseEnvelope(value)
		if err != nil {
			return err
		}
		if envelope.ID != "outbox-1" || envelope.EventType != domain.EventOrderCreated {
			return errors.New("unexpected envelope metadata")
		}
		event, err := envelope.OrderEvent()
		if err != nil {
			return err
		}
		if event.OrderNumber != "ORD-1" {
			return errors.New("unexpected order number " + event.OrderNumber)
		}
		return nil
	})

	if err := publisher.Publish(context.Background(), testOutboxMessage()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	producer, mockProducer := newTestProducer(t)
	publisher := NewOutboxPublisher(producer, TopicDeadLetterQueue)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	err := publisher.Publish(context.Background(), testOutboxMessage())
	if !errors.Is(err, sarama.ErrNotLeaderForPartition) {
		t.Fatalf("expected producer error, got %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishCancelledContext(t *testing.T) {
	producer, mockProducer := newTestProducer(t)
	publisher := NewOutboxPublisher(producer, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := publisher.Publish(ctx, testOutboxMessage()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	publisher := NewOutboxPublisher(nil, "")
	if err := publisher.Publish(context.Background(), testOutboxMessage()); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestEnvelope_OrderEventRejectsOtherAggregates(t *testing.T) {
	msg := testOutboxMessage()
	msg.AggregateType = "review"

	envelope := NewEnvelope(msg, time.Now())
	if _, err := envelope.OrderEvent(); err == nil {
		t.Fatal("expected error for non-order aggregate")
	}
	if envelope.Key() != "order-1" {
		t.Fatalf("unexpected key %s", envelope.Key())
	}

	envelope.AggregateID = ""
	if envelope.Key() != "outbox-1" {
		t.Fatalf("expected fallback to outbox id, got %s", envelope.Key())
	}
}

func TestExtractReplay(t *testing.T) {
	original := testOutboxMessage()
	dead, err := json.Marshal(DeadLetter{
		OutboxID:      original.ID,
		AggregateType: original.AggregateType,
		AggregateID:   original.AggregateID,
		EventType:     original.EventType,
		Payload:       json.RawMessage(original.Payload),
		PublishError:  "broker down",
	})
	if err != nil {
		t.Fatal(err)
	}
	dlqMessage := original
	dlqMessage.Payload = dead
	value, err := json.Marshal(NewEnvelope(dlqMessage, time.Now()))
	if err != nil {
		t.Fatal(err)
	}

	replay, ok, err := ExtractReplay(value, TopicOrderEvents, time.Now())
	if err != nil || !ok {
		t.Fatalf("expected replay, got ok=%v err=%v", ok, err)
	}
	if replay.Topic != TopicOrderEvents || replay.Key != "order-1" || replay.EventType != domain.EventOrderCreated {
		t.Fatalf("unexpected replay message %+v", replay)
	}

	envelope, err := ParseEnvelope(replay.Value)
	if err != nil {
		t.Fatal(err)
	}
	event, err := envelope.OrderEvent()
	if err != nil {
		t.Fatalf("replayed envelope must carry the original event: %v", err)
	}
	if event.OrderID != "order-1" {
		t.Fatalf("unexpected order id %s", event.OrderID)
	}
}

func TestExtractReplay_Skips(t *testing.T) {
	if _, ok, err := ExtractReplay([]byte("not json"), TopicOrderEvents, time.Now()); ok || err != nil {
		t.Fatalf("garbage must be skipped, got ok=%v err=%v", ok, err)
	}

	empty, _ := json.Marshal(NewEnvelope(domain.OutboxMessage{ID: "x", Payload: []byte(`{"outbox_id":"x"}`)}, time.Now()))
	if _, ok, err := ExtractReplay(empty, TopicOrderEvents, time.Now()); ok || err == nil {
		t.Fatalf("dead letter without payload must fail, got ok=%v err=%v", ok, err)
	}
}
