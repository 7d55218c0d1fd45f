// Package kafkabridge mirrors dsx-connect's named Redis queues
// (REQUEST/REQUEST_BATCH/VERDICT/ANALYZE) onto Kafka/Redpanda topics for
// downstream analytics consumers that want to tail scan activity without
// touching the coordination broker. Grounded on the teacher's
// internal/adapter/queue/redpanda.Producer (transactional produce, OTEL
// hook wiring via kotel), simplified to plain at-least-once ProduceSync:
// this module's non-goals explicitly exclude exactly-once delivery, so
// the teacher's transactional wrapping has nothing to do here and is
// dropped rather than carried over unused.
package kafkabridge

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
)

// Bridge produces a copy of every enqueued task onto a Kafka/Redpanda topic
// named after its queue.
type Bridge struct {
	client       *kgo.Client
	topicPrefix  string
}

// New constructs a Bridge connected to brokers, tracing instrumented via
// kotel. topicPrefix is prepended to each queue name to form the topic
// (e.g. prefix "dsxconnect." + queue "REQUEST" -> topic "dsxconnect.REQUEST").
func New(brokers []string, topicPrefix string) (*Bridge, error) {
	tracer := kotel.NewTracer()
	kotelService := kotel.NewKotel(kotel.WithTracer(tracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=kafkabridge.New: %w", err)
	}
	return &Bridge{client: client, topicPrefix: topicPrefix}, nil
}

// Close releases the underlying Kafka client.
func (b *Bridge) Close() {
	b.client.Close()
}

// Mirror produces one record per call onto the topic mapped from queue,
// keyed by scanRequestTaskID so all mirrored records for one correlation
// chain land on the same partition. Mirror failures are the caller's to
// log-and-swallow; the bridge is a best-effort side channel, never a
// dependency of the queue's own delivery guarantee.
func (b *Bridge) Mirror(ctx context.Context, queue, scanRequestTaskID string, payload []byte) error {
	topic := b.topicPrefix + queue
	rec := &kgo.Record{
		Topic: topic,
		Key:   []byte(scanRequestTaskID),
		Value: payload,
	}
	result := b.client.ProduceSync(ctx, rec)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("op=kafkabridge.Mirror: topic=%s: %w", topic, err)
	}
	return nil
}
