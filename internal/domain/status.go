package domain

// JobStatus — статус job.
//
// Жизненный цикл:
//
//	QUEUED → PROCESSING → COMPLETED
//	                    ↘ FAILED
//	                    ↘ STOPPED (emergency halt)
//	QUEUED → STOPPED (очередь очищена emergency halt)
type JobStatus string

const (
	// JobStatusQueued — job в очереди, ожидает свободных workers.
	JobStatusQueued JobStatus = "QUEUED"

	// JobStatusProcessing — workers зарезервированы, pipeline выполняется.
	JobStatusProcessing JobStatus = "PROCESSING"

	// JobStatusCompleted — все стадии пройдены.
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusStopped — job остановлен emergency halt.
	JobStatusStopped JobStatus = "STOPPED"

	// JobStatusFailed — стадия завершилась ошибкой или истёк таймаут.
	JobStatusFailed JobStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusStopped, JobStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет, допустим ли переход s → next.
// Переходы монотонны: назад из PROCESSING или терминального статуса вернуться нельзя.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing || next == JobStatusStopped
	case JobStatusProcessing:
		return next.IsTerminal()
	default:
		return false
	}
}

// ParseJobStatus парсит строку в JobStatus.
// Неизвестное значение возвращает false.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusStopped, JobStatusFailed:
		return JobStatus(s), true
	default:
		return "", false
	}
}
