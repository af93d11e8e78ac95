package registry

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// payloadValidator is implemented by payloads that can reject semantically
// broken data after a successful unmarshal.
type payloadValidator interface {
	Validate() error
}

// DecoderRegistry maps an event type and payload version to the struct the
// payload decodes into.
type DecoderRegistry struct {
	mu        sync.RWMutex
	factories map[enums.OutboxEventType]map[int]func() any
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{factories: make(map[enums.OutboxEventType]map[int]func() any)}
}

// Register adds a payload factory. Registering the same type and version
// twice is an error.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, factory func() any) error {
	if factory == nil {
		return fmt.Errorf("payload factory required for %s@v%d", eventType, version)
	}
	if version <= 0 {
		return fmt.Errorf("invalid payload version %d for %s", version, eventType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.factories[eventType]
	if !ok {
		versions = make(map[int]func() any)
		r.factories[eventType] = versions
	}
	if _, exists := versions[version]; exists {
		return fmt.Errorf("decoder already registered for %s@v%d", eventType, version)
	}
	versions[version] = factory
	return nil
}

// Versions lists the registered payload versions for eventType, ascending.
func (r *DecoderRegistry) Versions(eventType enums.OutboxEventType) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := make([]int, 0, len(r.factories[eventType]))
	for version := range r.factories[eventType] {
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions
}

// Decode unmarshals payload into a fresh value for the event type and
// version, then validates it when the payload supports that.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	factory, ok := r.factories[eventType][version]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}

	value := factory()
	if err := json.Unmarshal(payload, value); err != nil {
		return nil, err
	}
	if v, ok := value.(payloadValidator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", eventType, err)
		}
	}
	return value, nil
}
