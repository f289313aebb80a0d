package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Foundry/internal/domain"
	"github.com/shaiso/Foundry/internal/mq"
	"github.com/shaiso/Foundry/internal/pipeline"
	"github.com/shaiso/Foundry/internal/queue"
	"github.com/shaiso/Foundry/internal/registry"
	"github.com/shaiso/Foundry/internal/stats"
	"github.com/shaiso/Foundry/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval   = time.Second
	defaultRecentLimit    = 1000
	defaultArchiveTimeout = 5 * time.Second
)

// Archive — внешний получатель событий о завершённых job.
type Archive interface {
	Store(ctx context.Context, event domain.CompletionEvent) error
}

// SystemStatus — сводка состояния системы.
type SystemStatus struct {
	QueuedCount              int                `json:"queued_count"`
	ProcessingCount          int                `json:"processing_count"`
	CompletedCount           int64              `json:"completed_count"`
	WorkerUtilizationPercent float64            `json:"worker_utilization_percent"`
	Workers                  []domain.Worker    `json:"workers"`
	Stats                    domain.SystemStats `json:"stats"`
}

// Orchestrator — центральный компонент: очередь, dispatch, pipeline, статистика.
//
// Dispatch loop — одна логическая задача (Tick под dispatchMu);
// каждый принятый job выполняется executor'ом в своей горутине.
type Orchestrator struct {
	registry *registry.Registry
	queue    *queue.Queue
	executor *pipeline.Executor
	stats    *stats.Aggregator
	archive  Archive
	metrics  *telemetry.Metrics

	// MQ intake (опционально)
	conn           *mq.Connection
	submitConsumer *mq.Consumer

	// jobs — активные job (QUEUED и PROCESSING).
	jobs   map[uuid.UUID]*jobState
	recent *recentCache
	mu     sync.RWMutex

	// dispatchMu сериализует Tick и HaltAll.
	dispatchMu sync.Mutex

	// wakeCh будит dispatch loop (submit, release, регистрация worker).
	wakeCh chan struct{}

	// runCtx — родительский контекст всех executor'ов.
	runCtx    context.Context
	runCancel context.CancelFunc

	// Configuration
	pollInterval   time.Duration
	archiveTimeout time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	loopWg     sync.WaitGroup
	jobsWg     sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Registry — реестр workers (если nil — пустой).
	Registry *registry.Registry

	// Executor — pipeline executor (если nil — стадии-заглушки по умолчанию).
	Executor *pipeline.Executor

	// Archive — получатель CompletionEvent (опционально).
	Archive Archive

	// Metrics — prometheus-метрики (опционально).
	Metrics *telemetry.Metrics

	// Conn — соединение с RabbitMQ; если задано, Start слушает jobs.submitted.
	Conn *mq.Connection

	PollInterval   time.Duration // fallback-интервал dispatch (default: 1s)
	RecentLimit    int           // размер кэша терминальных job (default: 1000)
	ArchiveTimeout time.Duration // таймаут Archive.Store (default: 5s)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := cfg.Registry
	if reg == nil {
		reg = registry.New(logger)
	}

	executor := cfg.Executor
	if executor == nil {
		executor = pipeline.NewExecutor(pipeline.Config{Logger: logger, Metrics: cfg.Metrics})
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	recentLimit := cfg.RecentLimit
	if recentLimit <= 0 {
		recentLimit = defaultRecentLimit
	}

	archiveTimeout := cfg.ArchiveTimeout
	if archiveTimeout <= 0 {
		archiveTimeout = defaultArchiveTimeout
	}

	runCtx, runCancel := context.WithCancel(context.Background())

	return &Orchestrator{
		registry:       reg,
		queue:          queue.New(),
		executor:       executor,
		stats:          stats.New(),
		archive:        cfg.Archive,
		metrics:        cfg.Metrics,
		conn:           cfg.Conn,
		jobs:           make(map[uuid.UUID]*jobState),
		recent:         newRecentCache(recentLimit),
		wakeCh:         make(chan struct{}, 1),
		runCtx:         runCtx,
		runCancel:      runCancel,
		pollInterval:   pollInterval,
		archiveTimeout: archiveTimeout,
		logger:         logger,
	}
}

// Start запускает Orchestrator.
//
// Запускает:
//   - Dispatch loop (wake-канал + fallback ticker)
//   - Consumer для jobs.submitted (если задан Conn)
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.IsStopped() {
		return ErrOrchestratorStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"poll_interval", o.pollInterval,
		"workers", o.registry.Len(),
	)

	if o.conn != nil {
		o.submitConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueJobsSubmitted),
			Handler:  o.handleJobSubmitted,
			Accept:   []mq.MessageType{mq.MessageTypeJobSubmitted},
			Prefetch: 10,
		})

		o.loopWg.Add(1)
		go func() {
			defer o.loopWg.Done()
			if err := o.submitConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("submit consumer error", "error", err)
			}
		}()
	}

	o.loopWg.Add(1)
	go func() {
		defer o.loopWg.Done()
		o.dispatchLoop(ctx)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator.
//
// Новые job не принимаются; выполняющиеся job отменяются (STOPPED),
// Stop ждёт завершения их горутин.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	if o.stopped {
		o.stoppedMu.Unlock()
		return
	}
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.submitConsumer != nil {
		o.submitConsumer.Stop()
	}
	o.loopWg.Wait()

	o.runCancel()
	o.jobsWg.Wait()

	o.logger.Info("orchestrator stopped",
		"queued", o.queue.Size(),
	)
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// Submit валидирует spec и ставит job в очередь.
//
// Не ждёт dispatch. Наружу выходит только domain.ErrInvalidJobSpec
// (и ErrOrchestratorStopped после Stop).
func (o *Orchestrator) Submit(ctx context.Context, spec domain.JobSpec) (uuid.UUID, error) {
	if o.IsStopped() {
		return uuid.Nil, ErrOrchestratorStopped
	}

	if err := o.validate(&spec); err != nil {
		o.metrics.JobRejected()
		return uuid.Nil, err
	}

	job := domain.NewJob(&spec, time.Now())

	o.mu.Lock()
	o.jobs[job.ID] = newJobState(job)
	o.mu.Unlock()

	o.queue.Enqueue(queue.Entry{
		JobID:                job.ID,
		Priority:             job.Priority,
		RequiredCapabilities: job.RequiredCapabilities,
		WorkerCount:          job.WorkerCount,
	})

	o.metrics.JobSubmitted()
	o.metrics.SetQueueDepth(o.queue.Size())

	telemetry.FromContext(ctx).Debug("job submitted",
		"job_id", job.ID,
		"priority", job.Priority,
		"capabilities", job.RequiredCapabilities,
	)

	o.wake()
	return job.ID, nil
}

// validate проверяет структуру spec и наличие стадий в реестре executor'а.
func (o *Orchestrator) validate(spec *domain.JobSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	for _, name := range spec.Stages {
		if !o.executor.Stages().Has(name) {
			return fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidJobSpec, name)
		}
	}
	return nil
}

// RegisterWorker добавляет worker и будит dispatch.
func (o *Orchestrator) RegisterWorker(desc domain.WorkerDescriptor) error {
	if err := o.registry.Register(desc); err != nil {
		return err
	}
	o.metrics.SetWorkerLoad(desc.ID, 0)
	o.wake()
	return nil
}

// Workers возвращает снимок workers, отсортированный по ID.
func (o *Orchestrator) Workers() []domain.Worker {
	return o.registry.Snapshot().Workers
}

// wake будит dispatch loop, не блокируясь.
func (o *Orchestrator) wake() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}

// dispatchLoop — цикл dispatch.
func (o *Orchestrator) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	// Первый tick сразу: job могли прийти до Start
	o.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.wakeCh:
			o.Tick(ctx)
		case <-ticker.C:
			o.Tick(ctx)
		}
	}
}

// Tick выполняет один проход dispatch и возвращает число запущенных job.
//
// Пока в очереди есть job, которую текущий снимок registry может обслужить:
//  1. Резервирует workers по одному
//  2. При любой неудаче откатывает уже сделанные резервирования,
//     оставляет job в QUEUED и завершает tick
//  3. При успехе убирает job из очереди, переводит в PROCESSING и
//     запускает executor
func (o *Orchestrator) Tick(ctx context.Context) int {
	o.dispatchMu.Lock()
	defer o.dispatchMu.Unlock()

	dispatched := 0
	for ctx.Err() == nil && !o.IsStopped() {
		entry, ok := o.queue.PeekReady(o.registry.Snapshot())
		if !ok {
			break
		}

		workers, err := o.reserve(entry)
		if err != nil {
			o.metrics.ReservationConflict()
			o.logger.Debug("reservation conflict, job stays queued",
				"job_id", entry.JobID,
				"error", err,
			)
			break
		}

		o.queue.Remove(entry.JobID)

		o.mu.RLock()
		st := o.jobs[entry.JobID]
		o.mu.RUnlock()

		if st == nil || !o.launch(st, workers) {
			o.releaseWorkers(workers)
			continue
		}
		dispatched++
	}

	o.syncGauges()
	return dispatched
}

// reserve резервирует entry.WorkerCount workers. Всё или ничего.
func (o *Orchestrator) reserve(entry queue.Entry) ([]string, error) {
	candidates := o.registry.FindAvailable(entry.RequiredCapabilities, entry.WorkerCount)
	if len(candidates) < entry.WorkerCount {
		return nil, fmt.Errorf("%w: need %d workers, found %d",
			registry.ErrCapacityExceeded, entry.WorkerCount, len(candidates))
	}

	return o.reserveAll(candidates)
}

// reserveAll резервирует каждого кандидата по очереди. Если worker успел
// заполниться после FindAvailable, уже взятые резервирования откатываются.
func (o *Orchestrator) reserveAll(candidates []domain.Worker) ([]string, error) {
	reserved := make([]string, 0, len(candidates))
	for _, w := range candidates {
		if err := o.registry.Reserve(w.ID); err != nil {
			o.releaseWorkers(reserved)
			return nil, err
		}
		reserved = append(reserved, w.ID)
	}
	return reserved, nil
}

func (o *Orchestrator) releaseWorkers(ids []string) {
	for _, id := range ids {
		o.registry.Release(id)
	}
}

// launch переводит job в PROCESSING и запускает executor.
func (o *Orchestrator) launch(st *jobState, workers []string) bool {
	ctx, cancel := context.WithCancel(o.runCtx)
	if timeout := st.job.Timeout; timeout > 0 {
		ctx, cancel = withTimeout(ctx, cancel, timeout)
	}

	if !st.start(workers, cancel) {
		cancel()
		return false
	}

	o.metrics.JobDispatched()
	o.logger.Info("job dispatched",
		"job_id", st.JobID(),
		"workers", workers,
	)

	o.jobsWg.Add(1)
	go o.run(ctx, st, cancel)
	return true
}

// withTimeout навешивает дедлайн, сохраняя отмену родителя.
func withTimeout(ctx context.Context, parent context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		parent()
	}
}

// run выполняет pipeline job.
func (o *Orchestrator) run(ctx context.Context, st *jobState, cancel context.CancelFunc) {
	defer o.jobsWg.Done()
	defer cancel()

	res := o.executor.Run(ctx, st, st.job.Stages)
	o.onJobComplete(st, res)
}

// onJobComplete финализирует job.
//
//  1. Освобождает workers (если их ещё не сбросил halt)
//  2. Переводит job в терминальный статус по Result
//  3. Учитывает job в статистике и переносит в кэш недавних
//  4. Отправляет CompletionEvent в архив
//  5. Будит dispatch
func (o *Orchestrator) onJobComplete(st *jobState, res pipeline.Result) {
	st.mu.Lock()
	if !st.released {
		o.releaseWorkers(st.workers)
		st.released = true
	}

	job := st.job
	if job.Status == domain.JobStatusProcessing {
		job.Outputs = res.Outputs
	}

	switch res.Status {
	case domain.JobStatusCompleted:
		job.MarkCompleted(res.QualityScore, res.Success)
	case domain.JobStatusFailed:
		job.MarkFailed(errorText(res.Err))
	default:
		reason := "stopped"
		if res.Err != nil {
			reason = res.Err.Error()
		}
		job.MarkStopped(reason)
	}

	// Статистика и кэш обновляются до того, как терминальный статус
	// станет виден снаружи.
	o.stats.Record(stats.RecordFromJob(job))
	event := domain.NewCompletionEvent(job, st.workers)
	snap := job.Snapshot()
	o.retire(snap)
	st.mu.Unlock()

	o.metrics.JobFinished(string(snap.Status))

	logger := telemetry.WithJobID(o.logger, snap.ID.String())
	logger.Info("job finished",
		"status", snap.Status,
		"success", snap.Success,
		"duration", snap.Duration(),
		"error", snap.Error,
	)

	o.store(logger, event)
	o.syncGauges()
	o.wake()
}

func errorText(err error) string {
	if err == nil {
		return "failed"
	}
	return err.Error()
}

// retire убирает job из активных и кладёт снимок в кэш недавних.
func (o *Orchestrator) retire(snap domain.JobSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.jobs, snap.ID)
	o.recent.put(snap)
}

// store отправляет событие в архив. Ошибка архива не влияет на job.
func (o *Orchestrator) store(logger *slog.Logger, event domain.CompletionEvent) {
	if o.archive == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.archiveTimeout)
	defer cancel()

	if err := o.archive.Store(ctx, event); err != nil {
		logger.Error("failed to archive job", "error", err)
	}
}

// syncGauges обновляет gauge-метрики.
func (o *Orchestrator) syncGauges() {
	if o.metrics == nil {
		return
	}
	o.metrics.SetQueueDepth(o.queue.Size())
	o.metrics.SetProcessing(o.processingCount())
	for _, w := range o.registry.Snapshot().Workers {
		o.metrics.SetWorkerLoad(w.ID, w.CurrentLoad)
	}
}

// GetStatus возвращает снимок job.
func (o *Orchestrator) GetStatus(id uuid.UUID) (domain.JobSnapshot, error) {
	o.mu.RLock()
	st, live := o.jobs[id]
	snap, recent := o.recent.get(id)
	o.mu.RUnlock()

	switch {
	case live:
		return st.snapshot(), nil
	case recent:
		return snap, nil
	default:
		return domain.JobSnapshot{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
}

// ListJobs возвращает снимки активных и недавних job.
// Пустой status — все статусы. Активные идут первыми в порядке создания.
func (o *Orchestrator) ListJobs(status domain.JobStatus) []domain.JobSnapshot {
	o.mu.RLock()
	states := make([]*jobState, 0, len(o.jobs))
	for _, st := range o.jobs {
		states = append(states, st)
	}
	recent := o.recent.list()
	o.mu.RUnlock()

	live := make([]domain.JobSnapshot, 0, len(states))
	for _, st := range states {
		live = append(live, st.snapshot())
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].CreatedAt.Before(live[j].CreatedAt)
	})

	out := make([]domain.JobSnapshot, 0, len(live)+len(recent))
	for _, snap := range append(live, recent...) {
		if status == "" || snap.Status == status {
			out = append(out, snap)
		}
	}
	return out
}

// GetSystemStatus возвращает сводку системы.
func (o *Orchestrator) GetSystemStatus() SystemStatus {
	snap := o.registry.Snapshot()
	st := o.stats.Snapshot()

	return SystemStatus{
		QueuedCount:              o.queue.Size(),
		ProcessingCount:          o.processingCount(),
		CompletedCount:           st.TotalProcessed,
		WorkerUtilizationPercent: snap.Utilization(),
		Workers:                  snap.Workers,
		Stats:                    st,
	}
}

// Stats возвращает снимок статистики.
func (o *Orchestrator) Stats() domain.SystemStats {
	return o.stats.Snapshot()
}

// processingCount считает job в статусе PROCESSING.
func (o *Orchestrator) processingCount() int {
	o.mu.RLock()
	states := make([]*jobState, 0, len(o.jobs))
	for _, st := range o.jobs {
		states = append(states, st)
	}
	o.mu.RUnlock()

	n := 0
	for _, st := range states {
		if st.status() == domain.JobStatusProcessing {
			n++
		}
	}
	return n
}
