package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Foundry/internal/domain"
)

// Stage — одна стадия pipeline.
//
// Реализация должна проверять ctx.Done(): emergency halt и дедлайн job
// приходят через отмену контекста. Повторный запуск стадии не предполагается,
// поэтому ошибка сразу переводит job в FAILED.
type Stage interface {
	Run(ctx context.Context, sc *StageContext) (*StageResult, error)
}

// StageFunc — адаптер функции к Stage.
type StageFunc func(ctx context.Context, sc *StageContext) (*StageResult, error)

// Run вызывает f.
func (f StageFunc) Run(ctx context.Context, sc *StageContext) (*StageResult, error) {
	return f(ctx, sc)
}

// StageContext — входные данные стадии.
type StageContext struct {
	JobID   uuid.UUID
	Stage   domain.StageName
	Index   int
	Total   int
	Workers []string

	// Payload — payload job из JobSpec. Стадии его не изменяют.
	Payload map[string]any

	// Outputs — outputs предыдущих стадий (stage → outputs).
	Outputs map[string]any
}

// StageResult — результат стадии.
type StageResult struct {
	Outputs map[string]any
}

// Registry — реестр стадий по имени.
type Registry struct {
	mu     sync.RWMutex
	stages map[domain.StageName]Stage
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[domain.StageName]Stage)}
}

// Register добавляет или заменяет стадию.
func (r *Registry) Register(name domain.StageName, stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[name] = stage
}

// Get возвращает стадию по имени.
func (r *Registry) Get(name domain.StageName) (Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stage, ok := r.stages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}
	return stage, nil
}

// Has проверяет, зарегистрирована ли стадия.
func (r *Registry) Has(name domain.StageName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.stages[name]
	return ok
}

// Names возвращает отсортированный список зарегистрированных стадий.
func (r *Registry) Names() []domain.StageName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]domain.StageName, 0, len(r.stages))
	for name := range r.stages {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
