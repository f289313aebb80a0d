package archive

import (
	"context"
	"sync"

	"github.com/shaiso/Foundry/internal/domain"
)

// DefaultMemoryCapacity — размер кольца по умолчанию.
const DefaultMemoryCapacity = 500

// Memory хранит последние события в памяти.
type Memory struct {
	mu     sync.RWMutex
	events []domain.CompletionEvent
	next   int
	full   bool
}

// NewMemory создаёт кольцо на capacity событий (<=0 — DefaultMemoryCapacity).
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{events: make([]domain.CompletionEvent, capacity)}
}

// Store сохраняет событие, вытесняя самое старое при переполнении.
func (m *Memory) Store(_ context.Context, ev domain.CompletionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[m.next] = ev
	m.next = (m.next + 1) % len(m.events)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Len возвращает количество хранимых событий.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.full {
		return len(m.events)
	}
	return m.next
}

// List возвращает до limit событий, новые первыми. limit <= 0 — все.
func (m *Memory) List(limit int) []domain.CompletionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.next
	if m.full {
		n = len(m.events)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]domain.CompletionEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.events)) % len(m.events)
		out = append(out, m.events[idx])
	}
	return out
}
