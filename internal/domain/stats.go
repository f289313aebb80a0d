package domain

import "time"

// SystemStats — агрегированная статистика обработки.
type SystemStats struct {
	// TotalProcessed — количество job, дошедших до терминального статуса после старта.
	TotalProcessed int64 `json:"total_processed"`

	// AverageProcessingTime — скользящее среднее длительности.
	AverageProcessingTime time.Duration `json:"average_processing_time"`

	// SuccessRate — скользящее среднее флага "качество пройдено".
	SuccessRate float64 `json:"success_rate"`

	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Stopped   int64 `json:"stopped"`
}
