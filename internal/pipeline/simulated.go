package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/shaiso/Foundry/internal/domain"
	"github.com/shaiso/Foundry/internal/telemetry"
)

// SimulatedStage — стадия-заглушка, имитирующая работу задержкой.
//
// Длительность выбирается равномерно в [Min, Max]. Поддерживает отмену
// через context. Payload может переопределить длительность:
//   - duration_ms (number): точная длительность в миллисекундах
//
// Outputs:
//   - elapsed_ms (int64): фактическая задержка
//   - Extra: дополнительные ключи стадии (например, enhanced для ENHANCE)
type SimulatedStage struct {
	Min   time.Duration
	Max   time.Duration
	Extra map[string]any
}

// Run выполняет задержку.
func (s *SimulatedStage) Run(ctx context.Context, sc *StageContext) (*StageResult, error) {
	duration := s.duration(sc.Payload)

	telemetry.FromContext(ctx).Debug("simulated stage",
		"stage", sc.Stage,
		"duration", duration,
	)

	// Context-aware ожидание
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	outputs := map[string]any{"elapsed_ms": duration.Milliseconds()}
	for k, v := range s.Extra {
		outputs[k] = v
	}
	return &StageResult{Outputs: outputs}, nil
}

func (s *SimulatedStage) duration(payload map[string]any) time.Duration {
	if val, ok := payload["duration_ms"]; ok {
		switch v := val.(type) {
		case float64:
			return time.Duration(v * float64(time.Millisecond))
		case int:
			return time.Duration(v) * time.Millisecond
		case int64:
			return time.Duration(v) * time.Millisecond
		}
	}

	if s.Max <= s.Min {
		return s.Min
	}
	return s.Min + rand.N(s.Max-s.Min)
}

// NewDefaultRegistry регистрирует шесть стандартных стадий как SimulatedStage
// с задержкой в [minDelay, maxDelay].
func NewDefaultRegistry(minDelay, maxDelay time.Duration) *Registry {
	r := NewRegistry()
	for _, name := range domain.DefaultStages() {
		stage := &SimulatedStage{Min: minDelay, Max: maxDelay}
		if name == domain.StageEnhance {
			stage.Extra = map[string]any{"enhanced": true}
		}
		r.Register(name, stage)
	}
	return r
}
