package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/MarkoPoloResearchLab/electroshop/internal/events"
)

// MemoryBus is an in-process transport: publish dispatches synchronously to
// every subscribed registry. It keeps the at-least-once contract loose on
// purpose; handlers written for Kafka must not notice the difference.
type MemoryBus struct {
	mutex       sync.Mutex
	subscribers []*events.Registry
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Subscribe attaches a registry; its handlers receive every later publish.
func (bus *MemoryBus) Subscribe(registry *events.Registry) {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()
	bus.subscribers = append(bus.subscribers, registry)
}

// Publish marshals the payload and dispatches it to every registry that has
// a handler for the topic. The first handler error aborts the fan-out.
func (bus *MemoryBus) Publish(ctx context.Context, topic string, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	bus.mutex.Lock()
	subscribers := make([]*events.Registry, len(bus.subscribers))
	copy(subscribers, bus.subscribers)
	bus.mutex.Unlock()
	for _, registry := range subscribers {
		if !registryHandles(registry, topic) {
			continue
		}
		if err := registry.Dispatch(ctx, topic, body); err != nil {
			return err
		}
	}
	return nil
}

func registryHandles(registry *events.Registry, topic string) bool {
	for _, registered := range registry.Topics() {
		if registered == topic {
			return true
		}
	}
	return false
}
