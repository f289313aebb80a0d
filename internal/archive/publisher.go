package archive

import (
	"context"

	"github.com/shaiso/Foundry/internal/domain"
)

// CompletedPublisher публикует job.completed. Реализуется mq.Publisher.
type CompletedPublisher interface {
	PublishJobCompleted(ctx context.Context, ev domain.CompletionEvent) error
}

// EventPublisher превращает архивирование в публикацию события.
type EventPublisher struct {
	publisher CompletedPublisher
}

// NewEventPublisher создаёт EventPublisher.
func NewEventPublisher(p CompletedPublisher) *EventPublisher {
	return &EventPublisher{publisher: p}
}

// Store публикует событие.
func (p *EventPublisher) Store(ctx context.Context, ev domain.CompletionEvent) error {
	return p.publisher.PublishJobCompleted(ctx, ev)
}
