package pipeline

import "errors"

// Ошибки pipeline.
var (
	// ErrUnknownStage — стадия не зарегистрирована.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrStageExecution — стадия завершилась ошибкой. Job переходит в FAILED без retry.
	ErrStageExecution = errors.New("stage execution failed")

	// ErrJobTimeout — истёк дедлайн job.
	ErrJobTimeout = errors.New("job deadline exceeded")

	// ErrScoring — scorer не смог оценить результат.
	ErrScoring = errors.New("quality scoring failed")

	// ErrWebhook — webhook-стадия получила ошибку.
	ErrWebhook = errors.New("webhook request failed")
)
