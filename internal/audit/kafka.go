package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrCircuitOpen is returned while the Kafka sink is backing off.
var ErrCircuitOpen = errors.New("audit sink circuit open")

// Producer is the subset of *kgo.Client the Kafka sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSink publishes events as JSON records keyed by image ID so every event
// of one image lands on the same partition.
type KafkaSink struct {
	producer Producer
	topic    string
	breaker  *CircuitBreaker
	logger   *slog.Logger
}

type SinkOption func(*KafkaSink)

func WithSinkLogger(logger *slog.Logger) SinkOption {
	return func(k *KafkaSink) {
		k.logger = logger
	}
}

func NewKafkaSink(producer Producer, topic string, opts ...SinkOption) *KafkaSink {
	k := &KafkaSink{
		producer: producer,
		topic:    topic,
		breaker:  NewCircuitBreaker(5, 30*time.Second),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *KafkaSink) Append(ctx context.Context, event Event) error {
	if !k.breaker.Allow() {
		return ErrCircuitOpen
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.ImageID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := k.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		if k.breaker.RecordFailure() {
			k.logger.WarnContext(ctx, "audit sink circuit opened",
				"topic", k.topic,
				"cooldown", k.breaker.cooldown,
				"error", err,
			)
		}
		return fmt.Errorf("produce audit event: %w", err)
	}
	k.breaker.RecordSuccess()
	return nil
}
