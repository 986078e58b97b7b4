package publisher

import (
	"context"
	"sync"

	"capture-go/internal/capture"
)

// MemoryPublisher keeps published objects in memory. It is safe for
// concurrent use.
type MemoryPublisher struct {
	prefix  string
	objects map[string][]byte
	mu      sync.RWMutex
}

var _ capture.Publisher = (*MemoryPublisher)(nil)

func NewMemoryPublisher(prefix string) *MemoryPublisher {
	return &MemoryPublisher{prefix: prefix, objects: make(map[string][]byte)}
}

func (m *MemoryPublisher) Name() string {
	return "memory"
}

func (m *MemoryPublisher) Publish(ctx context.Context, b *capture.Bundle) (string, error) {
	if err := validate(b); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, rawKey, metaKey := objectKeys(m.prefix, b)
	meta, err := encodeMetadata(b)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[rawKey] = append([]byte(nil), b.Raw...)
	m.objects[metaKey] = meta
	return id, nil
}

// Object returns a stored object by key.
func (m *MemoryPublisher) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}

// Len returns the number of stored objects.
func (m *MemoryPublisher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
