package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Foundry/internal/domain"
	"github.com/shaiso/Foundry/internal/telemetry"
)

// Tracker — handle job, через который executor сообщает о прогрессе.
//
// Реализуется оркестратором: job принадлежит ему, executor только
// продвигает его по стадиям.
type Tracker interface {
	JobID() uuid.UUID
	Payload() map[string]any
	Workers() []string

	// EnterStage фиксирует вход в стадию index.
	// false — job уже остановлен, стадию начинать нельзя.
	EnterStage(index int, name domain.StageName) bool

	// Stopped сообщает, остановлен ли job извне.
	Stopped() bool
}

// Result — итог выполнения pipeline.
type Result struct {
	Status       domain.JobStatus
	QualityScore *float64
	Success      bool
	Outputs      map[string]any
	Err          error
}

// Executor проводит один job через упорядоченный список стадий.
//
// В рамках одного job стадии выполняются строго последовательно;
// разные job обслуживаются независимыми вызовами Run в своих горутинах.
type Executor struct {
	stages        *Registry
	scorer        Scorer
	passThreshold float64
	logger        *slog.Logger
	metrics       *telemetry.Metrics
}

// Config — конфигурация Executor.
type Config struct {
	// Stages — реестр стадий (если nil — NewDefaultRegistry(1s, 3s)).
	Stages *Registry

	// Scorer — оценка QUALITY_ASSURANCE (если nil — NewRandomScorer()).
	Scorer Scorer

	// PassThreshold — порог качества в [0, 1] (nil — DefaultPassThreshold).
	// 0 отключает проверку качества: любая оценка даёт Success=true.
	PassThreshold *float64

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// NewExecutor создаёт Executor.
func NewExecutor(cfg Config) *Executor {
	stages := cfg.Stages
	if stages == nil {
		stages = NewDefaultRegistry(time.Second, 3*time.Second)
	}

	var scorer Scorer = cfg.Scorer
	if scorer == nil {
		scorer = NewRandomScorer()
	}

	threshold := DefaultPassThreshold
	if cfg.PassThreshold != nil {
		threshold = clampScore(*cfg.PassThreshold)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		stages:        stages,
		scorer:        scorer,
		passThreshold: threshold,
		logger:        logger,
		metrics:       cfg.Metrics,
	}
}

// Stages возвращает реестр стадий.
func (e *Executor) Stages() *Registry {
	return e.stages
}

// PassThreshold возвращает порог качества.
func (e *Executor) PassThreshold() float64 {
	return e.passThreshold
}

// Run выполняет стадии по порядку и возвращает итог.
//
//  1. Перед стадией i проверяется ctx, затем вызывается
//     Tracker.EnterStage (прогресс i/total*100)
//  2. Остановленный job не входит в следующую стадию → STOPPED
//  3. Ошибка стадии → FAILED (ErrStageExecution), без retry
//  4. После QUALITY_ASSURANCE вызывается Scorer; оценка ниже порога
//     даёт Success=false, но job всё равно COMPLETED. NaN и ±Inf
//     считаются ошибкой оценки → FAILED (ErrScoring)
//  5. Отмена ctx: остановленный job → STOPPED, дедлайн → FAILED (ErrJobTimeout)
func (e *Executor) Run(ctx context.Context, job Tracker, stages []domain.StageName) Result {
	logger := telemetry.WithJobID(e.logger, job.JobID().String())
	ctx = telemetry.WithLogger(ctx, logger)

	outputs := make(map[string]any, len(stages))
	var score *float64

	for i, name := range stages {
		// Прогресс не должен указывать на стадию, в которую job не вошёл.
		if err := ctx.Err(); err != nil {
			return e.interrupted(job, err, outputs)
		}

		if !job.EnterStage(i, name) {
			logger.Info("job stopped before stage", "stage", name)
			return Result{Status: domain.JobStatusStopped, Outputs: outputs}
		}

		stage, err := e.stages.Get(name)
		if err != nil {
			return e.failed(logger, name, err, outputs)
		}

		sc := &StageContext{
			JobID:   job.JobID(),
			Stage:   name,
			Index:   i,
			Total:   len(stages),
			Workers: job.Workers(),
			Payload: job.Payload(),
			Outputs: maps.Clone(outputs),
		}

		logger.Debug("stage started", "stage", name, "index", i)

		start := time.Now()
		res, err := stage.Run(ctx, sc)
		e.metrics.ObserveStage(string(name), time.Since(start))

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return e.interrupted(job, ctxErr, outputs)
			}
			return e.failed(logger, name, err, outputs)
		}

		if res != nil && res.Outputs != nil {
			outputs[string(name)] = res.Outputs
		}

		if name == domain.StageQualityAssurance {
			v, err := e.scorer.Score(ctx, sc)
			if err != nil {
				return e.failed(logger, name, fmt.Errorf("%w: %v", ErrScoring, err), outputs)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return e.failed(logger, name, fmt.Errorf("%w: non-finite score %v", ErrScoring, v), outputs)
			}
			v = clampScore(v)
			score = &v

			if v < e.passThreshold {
				logger.Warn("quality below threshold",
					"quality_score", v,
					"threshold", e.passThreshold,
				)
			}
		}
	}

	success := score == nil || *score >= e.passThreshold
	return Result{
		Status:       domain.JobStatusCompleted,
		QualityScore: score,
		Success:      success,
		Outputs:      outputs,
	}
}

func (e *Executor) failed(logger *slog.Logger, stage domain.StageName, err error, outputs map[string]any) Result {
	logger.Warn("stage failed", "stage", stage, "error", err)
	return Result{
		Status:  domain.JobStatusFailed,
		Outputs: outputs,
		Err:     fmt.Errorf("%w: %s: %w", ErrStageExecution, stage, err),
	}
}

// interrupted разбирает причину отмены контекста.
func (e *Executor) interrupted(job Tracker, err error, outputs map[string]any) Result {
	if job.Stopped() {
		return Result{Status: domain.JobStatusStopped, Outputs: outputs}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Result{Status: domain.JobStatusFailed, Outputs: outputs, Err: ErrJobTimeout}
	}
	return Result{Status: domain.JobStatusStopped, Outputs: outputs, Err: err}
}
