// Package registry хранит workers, их capability-теги и текущую нагрузку.
//
// CurrentLoad меняется только через Reserve/Release (и ResetAll при
// emergency halt). Каждая операция держит мьютекс только на время
// изменения карты и никогда не вызывает внешний код под ним.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/shaiso/Foundry/internal/domain"
)

// Ошибки реестра.
var (
	// ErrDuplicateID — worker с таким ID уже зарегистрирован с другими параметрами.
	ErrDuplicateID = errors.New("duplicate worker id")

	// ErrInvalidWorker — некорректный WorkerDescriptor.
	ErrInvalidWorker = errors.New("invalid worker descriptor")

	// ErrWorkerNotFound — worker не найден.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrCapacityExceeded — у worker'а нет свободной ёмкости.
	ErrCapacityExceeded = errors.New("worker capacity exceeded")
)

// Registry — реестр workers.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*domain.Worker
	logger  *slog.Logger
}

// New создаёт пустой реестр.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		workers: make(map[string]*domain.Worker),
		logger:  logger,
	}
}

// Register добавляет worker.
//
// Повторная регистрация с теми же тегами и ёмкостью — no-op.
// Конфликтующая регистрация существующего ID возвращает ErrDuplicateID.
func (r *Registry) Register(desc domain.WorkerDescriptor) error {
	if desc.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidWorker)
	}
	if desc.MaxConcurrentJobs < 1 {
		return fmt.Errorf("%w: %s: max_concurrent_jobs must be >= 1", ErrInvalidWorker, desc.ID)
	}

	capabilities := domain.NormalizeCapabilities(desc.Capabilities)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.workers[desc.ID]; ok {
		if existing.MaxConcurrentJobs == desc.MaxConcurrentJobs && slices.Equal(existing.Capabilities, capabilities) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateID, desc.ID)
	}

	r.workers[desc.ID] = &domain.Worker{
		ID:                desc.ID,
		Capabilities:      capabilities,
		MaxConcurrentJobs: desc.MaxConcurrentJobs,
	}

	r.logger.Info("worker registered",
		"worker_id", desc.ID,
		"capabilities", capabilities,
		"max_concurrent_jobs", desc.MaxConcurrentJobs,
	)
	return nil
}

// FindAvailable возвращает до maxCount workers, у которых есть все required
// теги и свободная ёмкость. Порядок: по возрастанию нагрузки, затем по ID.
func (r *Registry) FindAvailable(required []string, maxCount int) []domain.Worker {
	if maxCount <= 0 {
		return nil
	}

	r.mu.Lock()
	candidates := make([]domain.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		if w.Available() && w.Satisfies(required) {
			candidates = append(candidates, w.Clone())
		}
	}
	r.mu.Unlock()

	sortByLoad(candidates)

	if len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}
	return candidates
}

// Reserve атомарно увеличивает нагрузку worker'а.
func (r *Registry) Reserve(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
	}
	if !w.Available() {
		return fmt.Errorf("%w: %s (%d/%d)", ErrCapacityExceeded, id, w.CurrentLoad, w.MaxConcurrentJobs)
	}

	w.CurrentLoad++
	return nil
}

// Release атомарно уменьшает нагрузку worker'а.
// Release на нулевой нагрузке — no-op с предупреждением в логе.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	w, ok := r.workers[id]
	var underflow bool
	if ok {
		if w.CurrentLoad > 0 {
			w.CurrentLoad--
		} else {
			underflow = true
		}
	}
	r.mu.Unlock()

	switch {
	case !ok:
		r.logger.Warn("release of unknown worker", "worker_id", id)
	case underflow:
		r.logger.Warn("release on idle worker ignored", "worker_id", id)
	}
}

// ResetAll обнуляет нагрузку всех workers.
// Вызывается только emergency halt.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.workers {
		w.CurrentLoad = 0
	}
}

// Get возвращает копию worker'а.
func (r *Registry) Get(id string) (domain.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return domain.Worker{}, false
	}
	return w.Clone(), true
}

// Len возвращает количество workers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// Snapshot возвращает неизменяемую копию реестра.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	workers := make([]domain.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w.Clone())
	}
	r.mu.Unlock()

	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
	return Snapshot{Workers: workers}
}

// Utilization возвращает занятую ёмкость в процентах.
func (r *Registry) Utilization() float64 {
	return r.Snapshot().Utilization()
}

func sortByLoad(workers []domain.Worker) {
	sort.Slice(workers, func(i, j int) bool {
		if workers[i].CurrentLoad != workers[j].CurrentLoad {
			return workers[i].CurrentLoad < workers[j].CurrentLoad
		}
		return workers[i].ID < workers[j].ID
	})
}
