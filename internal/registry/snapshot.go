package registry

import "github.com/shaiso/Foundry/internal/domain"

// Snapshot — копия реестра на момент вызова Registry.Snapshot.
type Snapshot struct {
	Workers []domain.Worker
}

// CanSatisfy проверяет, хватит ли свободных workers с нужными тегами
// для резервирования count мест (по одному месту на worker).
func (s Snapshot) CanSatisfy(required []string, count int) bool {
	if count <= 0 {
		count = 1
	}

	matched := 0
	for i := range s.Workers {
		w := &s.Workers[i]
		if w.Available() && w.Satisfies(required) {
			matched++
			if matched >= count {
				return true
			}
		}
	}
	return false
}

// Utilization возвращает занятую ёмкость в процентах (0 для пустого реестра).
func (s Snapshot) Utilization() float64 {
	var load, capacity int
	for _, w := range s.Workers {
		load += w.CurrentLoad
		capacity += w.MaxConcurrentJobs
	}
	if capacity == 0 {
		return 0
	}
	return float64(load) / float64(capacity) * 100
}
