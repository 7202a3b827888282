package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestProducer_Send(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSarama(mockProducer)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != DefaultItemTopic {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "item-1" {
			return errors.New("unexpected key " + string(key))
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != HeaderEventType {
			return errors.New("event type header is missing")
		}
		return nil
	})

	err := producer.Send(context.Background(), DefaultItemTopic, "item-1", []byte(`{}`), map[string]string{
		HeaderEventType: "inventory.stock_reserved",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_Send_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSarama(mockProducer)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.Send(context.Background(), DefaultOrderTopic, "order-1", []byte(`{}`), nil)
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_Send_CancelledContext(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSarama(mockProducer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := producer.Send(ctx, DefaultOrderTopic, "order-1", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewSaramaConfig(t *testing.T) {
	config := NewSaramaConfig("orderstock-test")

	if config.ClientID != "orderstock-test" {
		t.Errorf("unexpected client id %q", config.ClientID)
	}
	if !config.Producer.Idempotent || config.Net.MaxOpenRequests != 1 {
		t.Error("producer must be idempotent with a single in-flight request")
	}
	if config.Producer.RequiredAcks != sarama.WaitForAll {
		t.Error("producer must wait for all in-sync replicas")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("config must be valid: %v", err)
	}
}

func TestTopics_For(t *testing.T) {
	topics := Topics{Item: "items"}.withDefaults()

	tests := []struct {
		aggregate string
		want      string
	}{
		{aggregate: "item", want: "items"},
		{aggregate: "order", want: DefaultOrderTopic},
		{aggregate: "unknown", want: DefaultDLQTopic},
	}
	for _, tt := range tests {
		if got := topics.For(tt.aggregate); got != tt.want {
			t.Errorf("For(%q) = %q, want %q", tt.aggregate, got, tt.want)
		}
	}
}
