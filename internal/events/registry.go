package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher emits one event payload to a topic. Implementations marshal the
// payload to JSON; the key parameter drives partition affinity where the
// transport has partitions.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload any) error
}

// Handler consumes one raw message from a topic. Returning an error leaves
// the message uncommitted so the transport redelivers it.
type Handler func(ctx context.Context, value []byte) error

// Registry maps topics to their handlers. Each service registers the typed
// handlers it consumes and hands the registry to a bus consumer.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a topic, replacing any previous binding.
func (registry *Registry) Register(topic string, handler Handler) {
	registry.handlers[topic] = handler
}

// Topics lists every registered topic.
func (registry *Registry) Topics() []string {
	topics := make([]string, 0, len(registry.handlers))
	for topic := range registry.handlers {
		topics = append(topics, topic)
	}
	return topics
}

// Dispatch routes a raw message to the topic's handler.
func (registry *Registry) Dispatch(ctx context.Context, topic string, value []byte) error {
	handler, ok := registry.handlers[topic]
	if !ok {
		return fmt.Errorf("no handler registered for topic %q", topic)
	}
	return handler(ctx, value)
}

// Typed adapts a typed handler into a raw Handler by unmarshalling the
// message body first. A body that does not decode is a permanent failure,
// so the error is returned and the caller decides whether to park it.
func Typed[T any](handle func(ctx context.Context, event T) error) Handler {
	return func(ctx context.Context, value []byte) error {
		var event T
		if err := json.Unmarshal(value, &event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		return handle(ctx, event)
	}
}
