package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrJobNotFound — job нет ни среди активных, ни в кэше недавних.
	ErrJobNotFound = errors.New("job not found")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
