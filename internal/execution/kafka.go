package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"gapsniper-go/internal/signal"
)

// MessageWriter is the subset of *kafka.Writer the emitter needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmitter publishes signals to a topic keyed by base asset.
type KafkaEmitter struct {
	writer   MessageWriter
	topic    string
	template string
}

type kafkaPayload struct {
	Text      string    `json:"text"`
	Base      string    `json:"base"`
	EmittedAt time.Time `json:"emitted_at"`
}

// NewKafkaEmitter builds a synchronous hash-balanced writer so one base always lands on one partition.
func NewKafkaEmitter(brokers []string, topic, template string) *KafkaEmitter {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return NewKafkaEmitterWithWriter(w, topic, template)
}

// NewKafkaEmitterWithWriter allows injecting a writer (tests, shared writers).
func NewKafkaEmitterWithWriter(w MessageWriter, topic, template string) *KafkaEmitter {
	if template == "" {
		template = DefaultTextTemplate
	}
	return &KafkaEmitter{writer: w, topic: topic, template: template}
}

// Name identifies the emitter in logs.
func (k *KafkaEmitter) Name() string { return "kafka" }

// Emit writes one message; a broker acknowledgement counts as acceptance.
func (k *KafkaEmitter) Emit(ctx context.Context, base string) (signal.Outcome, error) {
	value, err := json.Marshal(kafkaPayload{
		Text:      renderText(k.template, base),
		Base:      base,
		EmittedAt: time.Now().UTC(),
	})
	if err != nil {
		return signal.Outcome{}, fmt.Errorf("encode payload: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(base), Value: value}); err != nil {
		return signal.Outcome{}, fmt.Errorf("kafka write: %w", err)
	}
	return signal.Outcome{Accepted: true, Detail: "topic=" + k.topic}, nil
}

// Close flushes and closes the writer.
func (k *KafkaEmitter) Close() error { return k.writer.Close() }
