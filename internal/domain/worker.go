package domain

import "slices"

// WorkerDescriptor — описание worker'а из конфигурации или динамической регистрации.
type WorkerDescriptor struct {
	// ID — уникальный идентификатор worker'а.
	ID string `json:"id" yaml:"id"`

	// Capabilities — теги возможностей worker'а.
	Capabilities []string `json:"capabilities" yaml:"capabilities"`

	// MaxConcurrentJobs — сколько job worker держит одновременно (>= 1).
	MaxConcurrentJobs int `json:"max_concurrent_jobs" yaml:"max_concurrent_jobs"`
}

// Worker — worker с текущей нагрузкой.
//
// CurrentLoad меняется только через registry.Reserve/Release.
type Worker struct {
	ID                string   `json:"id"`
	Capabilities      []string `json:"capabilities"`
	MaxConcurrentJobs int      `json:"max_concurrent_jobs"`
	CurrentLoad       int      `json:"current_load"`
}

// Available возвращает true, если у worker'а есть свободная ёмкость.
func (w *Worker) Available() bool {
	return w.CurrentLoad < w.MaxConcurrentJobs
}

// Satisfies проверяет, что у worker'а есть все требуемые теги.
// Capabilities хранятся отсортированными (NormalizeCapabilities).
func (w *Worker) Satisfies(required []string) bool {
	for _, tag := range required {
		if _, found := slices.BinarySearch(w.Capabilities, tag); !found {
			return false
		}
	}
	return true
}

// Clone возвращает независимую копию.
func (w Worker) Clone() Worker {
	w.Capabilities = slices.Clone(w.Capabilities)
	return w
}
