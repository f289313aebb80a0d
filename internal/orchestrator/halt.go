package orchestrator

import (
	"context"
	"time"

	"github.com/shaiso/Foundry/internal/telemetry"
)

// haltReason — текст ошибки job, остановленных emergency halt.
const haltReason = "emergency halt"

// HaltReport — итог emergency halt.
type HaltReport struct {
	StoppedProcessing int       `json:"stopped_processing"`
	ClearedQueued     int       `json:"cleared_queued"`
	HaltedAt          time.Time `json:"halted_at"`
}

// HaltAll — emergency stop.
//
//  1. Каждый PROCESSING job → STOPPED("emergency halt"), его executor отменяется
//  2. Нагрузка всех workers сбрасывается в 0
//  3. Очередь очищается, снятые с неё job → STOPPED
//
// Операция разрушающая и не откатывается: это аварийный клапан, а не пауза.
// Остановленные job, успевшие стартовать, попадают в статистику и архив,
// когда их executor вернётся. Снятые с очереди job не учитываются:
// они не начинали выполнение.
func (o *Orchestrator) HaltAll(ctx context.Context) HaltReport {
	o.dispatchMu.Lock()
	defer o.dispatchMu.Unlock()

	o.mu.RLock()
	states := make([]*jobState, 0, len(o.jobs))
	for _, st := range o.jobs {
		states = append(states, st)
	}
	o.mu.RUnlock()

	report := HaltReport{HaltedAt: time.Now()}

	for _, st := range states {
		if st.halt(haltReason) {
			report.StoppedProcessing++
		}
	}

	// Все PROCESSING job уже помечены released, их executor'ы
	// не будут освобождать workers повторно.
	o.registry.ResetAll()

	for _, entry := range o.queue.Clear() {
		o.mu.RLock()
		st := o.jobs[entry.JobID]
		o.mu.RUnlock()
		if st == nil {
			continue
		}

		st.mu.Lock()
		st.job.MarkStopped(haltReason)
		snap := st.job.Snapshot()
		st.mu.Unlock()

		o.retire(snap)
		report.ClearedQueued++
	}

	o.metrics.EmergencyHalt()
	o.syncGauges()

	telemetry.FromContext(ctx).Warn("emergency halt",
		"stopped_processing", report.StoppedProcessing,
		"cleared_queued", report.ClearedQueued,
	)

	return report
}
