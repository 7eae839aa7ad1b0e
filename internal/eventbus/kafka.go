// Package eventbus carries saga events between services. The Kafka transport
// is the production path; the memory transport backs single-process runs and
// tests.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/electroshop/internal/events"
)

const (
	defaultBatchTimeout   = 10 * time.Millisecond
	defaultBatchSize      = 100
	defaultCommitInterval = time.Second
)

// KafkaPublisher implements events.Publisher over one shared kafka.Writer.
// The topic travels per message, so one writer serves every saga topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a publisher against the given brokers.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: defaultBatchTimeout,
			BatchSize:    defaultBatchSize,
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Publish marshals the payload and writes it keyed for partition affinity.
func (publisher *KafkaPublisher) Publish(ctx context.Context, topic string, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	return publisher.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: body,
	})
}

// Close flushes and closes the underlying writer.
func (publisher *KafkaPublisher) Close() error {
	return publisher.writer.Close()
}

// KafkaConsumer runs one reader goroutine per registered topic and feeds
// messages through the registry. Offsets are committed only after the
// handler succeeds, so a crashed handler sees the message again.
type KafkaConsumer struct {
	brokers  []string
	groupID  string
	registry *events.Registry
	logger   *zap.Logger
}

// NewKafkaConsumer builds a consumer for every topic in the registry.
func NewKafkaConsumer(brokers []string, groupID string, registry *events.Registry, logger *zap.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		brokers:  brokers,
		groupID:  groupID,
		registry: registry,
		logger:   logger,
	}
}

// Run blocks until the context is cancelled, consuming every registered topic.
func (consumer *KafkaConsumer) Run(ctx context.Context) error {
	var waitGroup sync.WaitGroup
	for _, topic := range consumer.registry.Topics() {
		waitGroup.Add(1)
		go func(topic string) {
			defer waitGroup.Done()
			consumer.consumeTopic(ctx, topic)
		}(topic)
	}
	waitGroup.Wait()
	return ctx.Err()
}

func (consumer *KafkaConsumer) consumeTopic(ctx context.Context, topic string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        consumer.brokers,
		Topic:          topic,
		GroupID:        consumer.groupID,
		CommitInterval: defaultCommitInterval,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			consumer.logger.Warn("close kafka reader", zap.String("topic", topic), zap.Error(err))
		}
	}()
	for {
		message, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			consumer.logger.Error("fetch message", zap.String("topic", topic), zap.Error(err))
			continue
		}
		if err := consumer.registry.Dispatch(ctx, topic, message.Value); err != nil {
			// Leave the offset uncommitted; the message is redelivered and
			// the handler's idempotency absorbs the replay.
			consumer.logger.Error("handle message",
				zap.String("topic", topic),
				zap.String("key", string(message.Key)),
				zap.Error(err))
			continue
		}
		if err := reader.CommitMessages(ctx, message); err != nil {
			consumer.logger.Error("commit message", zap.String("topic", topic), zap.Error(err))
		}
	}
}
