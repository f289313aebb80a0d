package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultPriority — приоритет job, если JobSpec его не указал.
const DefaultPriority = 5

// JobSpec — описание работы, поступающее от внешнего builder'а.
//
// Ядро проверяет только структуру: содержание payload и смысл
// capability-тегов его не касаются.
type JobSpec struct {
	// RequiredCapabilities — теги, которыми должен обладать каждый назначенный worker.
	RequiredCapabilities []string `json:"required_capabilities,omitempty" yaml:"required_capabilities,omitempty"`

	// Priority — чем больше, тем раньше dispatch. Nil — DefaultPriority.
	Priority *int `json:"priority,omitempty" yaml:"priority,omitempty"`

	// WorkerCount — сколько workers зарезервировать (default: 1).
	WorkerCount int `json:"worker_count,omitempty" yaml:"worker_count,omitempty"`

	// Payload — непрозрачные данные, передаются стадиям как есть.
	Payload map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`

	// Stages — упорядоченный список стадий.
	Stages []StageName `json:"stages" yaml:"stages"`

	// TimeoutSec — дедлайн на весь pipeline (0 — без дедлайна).
	TimeoutSec int `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
}

// Validate проверяет структурную корректность JobSpec.
//
// Проверяет:
//   - непустой список стадий без дубликатов и пустых имён
//   - непустые capability-теги
//   - неотрицательные WorkerCount и TimeoutSec
func (s *JobSpec) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: spec is nil", ErrInvalidJobSpec)
	}

	if len(s.Stages) == 0 {
		return fmt.Errorf("%w: stage list is empty", ErrInvalidJobSpec)
	}

	seen := make(map[StageName]bool, len(s.Stages))
	for i, stage := range s.Stages {
		if strings.TrimSpace(string(stage)) == "" {
			return fmt.Errorf("%w: stage %d has empty name", ErrInvalidJobSpec, i)
		}
		if seen[stage] {
			return fmt.Errorf("%w: duplicate stage %s", ErrInvalidJobSpec, stage)
		}
		seen[stage] = true
	}

	for _, capability := range s.RequiredCapabilities {
		if strings.TrimSpace(capability) == "" {
			return fmt.Errorf("%w: empty capability tag", ErrInvalidJobSpec)
		}
	}

	if s.WorkerCount < 0 {
		return fmt.Errorf("%w: worker_count must be >= 0", ErrInvalidJobSpec)
	}

	if s.TimeoutSec < 0 {
		return fmt.Errorf("%w: timeout_sec must be >= 0", ErrInvalidJobSpec)
	}

	return nil
}

// EffectivePriority возвращает приоритет с учётом default.
func (s *JobSpec) EffectivePriority() int {
	if s.Priority == nil {
		return DefaultPriority
	}
	return *s.Priority
}

// EffectiveWorkerCount возвращает количество workers с учётом default.
func (s *JobSpec) EffectiveWorkerCount() int {
	if s.WorkerCount <= 0 {
		return 1
	}
	return s.WorkerCount
}

// Timeout возвращает дедлайн pipeline.
func (s *JobSpec) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// NormalizeCapabilities приводит теги к множеству: trim, без дубликатов, отсортированы.
func NormalizeCapabilities(tags []string) []string {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		set[tag] = struct{}{}
	}

	result := make([]string, 0, len(set))
	for tag := range set {
		result = append(result, tag)
	}
	sort.Strings(result)
	return result
}
