// Package queue — очередь ожидающих job, упорядоченная по приоритету.
//
// Порядок: по убыванию Priority, внутри одного приоритета — FIFO
// (по порядковому номеру вставки).
//
// PeekReady только смотрит: удаление делает оркестратор через Remove
// после успешного резервирования workers (peek-then-commit), поэтому
// неудачная резервация не теряет job.
package queue

import (
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Entry — элемент очереди.
type Entry struct {
	JobID                uuid.UUID
	Priority             int
	RequiredCapabilities []string
	WorkerCount          int

	seq uint64
}

// Matcher отвечает на вопрос "можно ли сейчас зарезервировать workers".
// Реализуется registry.Snapshot.
type Matcher interface {
	CanSatisfy(required []string, count int) bool
}

// Queue — приоритетная очередь job.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	nextSeq uint64
}

// New создаёт пустую очередь.
func New() *Queue {
	return &Queue{}
}

// Enqueue вставляет entry, сохраняя порядок.
func (q *Queue) Enqueue(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e.seq = q.nextSeq
	q.nextSeq++
	e.RequiredCapabilities = slices.Clone(e.RequiredCapabilities)

	// Первая позиция с приоритетом строго ниже — новая entry встаёт после равных.
	idx := sort.Search(len(q.entries), func(i int) bool {
		return q.entries[i].Priority < e.Priority
	})
	q.entries = slices.Insert(q.entries, idx, e)
}

// PeekReady возвращает (не удаляя) entry с наибольшим приоритетом,
// которую matcher может обслужить.
func (q *Queue) PeekReady(m Matcher) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if m.CanSatisfy(e.RequiredCapabilities, e.WorkerCount) {
			return e, true
		}
	}
	return Entry{}, false
}

// Remove удаляет job из очереди. Возвращает false, если его там нет.
func (q *Queue) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := slices.IndexFunc(q.entries, func(e Entry) bool { return e.JobID == id })
	if idx < 0 {
		return false
	}
	q.entries = slices.Delete(q.entries, idx, idx+1)
	return true
}

// Size возвращает количество job в очереди.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// PeekAll возвращает копию очереди в порядке dispatch.
func (q *Queue) PeekAll() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.entries)
}

// Clear очищает очередь и возвращает удалённые entries.
func (q *Queue) Clear() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := q.entries
	q.entries = nil
	return removed
}
