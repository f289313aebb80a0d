package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Foundry/internal/domain"
)

// Store — получатель событий (совпадает с orchestrator.Archive).
type Store interface {
	Store(ctx context.Context, ev domain.CompletionEvent) error
}

// Named — получатель с именем для сообщений об ошибках.
type Named struct {
	Name  string
	Store Store
}

// Multi рассылает событие всем получателям.
//
// Ошибка одного получателя не мешает остальным; ошибки объединяются.
type Multi struct {
	targets []Named
}

// NewMulti создаёт Multi.
func NewMulti(targets ...Named) *Multi {
	return &Multi{targets: targets}
}

// Add добавляет получателя.
func (m *Multi) Add(name string, s Store) {
	m.targets = append(m.targets, Named{Name: name, Store: s})
}

// Len возвращает количество получателей.
func (m *Multi) Len() int {
	return len(m.targets)
}

// Store отправляет событие каждому получателю.
func (m *Multi) Store(ctx context.Context, ev domain.CompletionEvent) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.Store.Store(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}
