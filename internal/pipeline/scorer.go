package pipeline

import (
	"context"
	"math/rand/v2"
)

// DefaultPassThreshold — порог качества, ниже которого job считается неуспешным.
const DefaultPassThreshold = 0.8

// Scorer оценивает результат job на стадии QUALITY_ASSURANCE.
//
// Контракт: результат в [0, 1] (выход за границы обрезается executor'ом),
// ошибка или нечисловая оценка (NaN, ±Inf) переводит job в FAILED.
type Scorer interface {
	Score(ctx context.Context, sc *StageContext) (float64, error)
}

// FixedScorer всегда возвращает одно значение. Для тестов и детерминированных стендов.
type FixedScorer float64

// Score возвращает s.
func (s FixedScorer) Score(context.Context, *StageContext) (float64, error) {
	return float64(s), nil
}

// RandomScorer возвращает равномерно распределённую оценку в [Min, Max).
// Заглушка для реальной оценки качества.
type RandomScorer struct {
	Min float64
	Max float64
}

// NewRandomScorer создаёт scorer с диапазоном 0.95–1.0.
func NewRandomScorer() *RandomScorer {
	return &RandomScorer{Min: 0.95, Max: 1.0}
}

// Score возвращает случайную оценку.
func (s *RandomScorer) Score(context.Context, *StageContext) (float64, error) {
	if s.Max <= s.Min {
		return s.Min, nil
	}
	return s.Min + rand.Float64()*(s.Max-s.Min), nil
}

func clampScore(v float64) float64 {
	return min(max(v, 0), 1)
}
