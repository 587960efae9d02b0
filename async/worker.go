package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/sequence"
	"github.com/teranos/smartcoat/sym"
)

// stopTimeout bounds how long Stop waits for in-flight solves. A solve under
// a canceled context returns its best route quickly, so this is generous.
const stopTimeout = 10 * time.Second

// WorkerPool manages a pool of workers that execute queued solve runs
type WorkerPool struct {
	queue     *Queue
	cfg       PoolConfig
	parentCtx context.Context // parent context from which the worker context is derived
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	log       *zap.SugaredLogger

	mu            sync.Mutex
	activeWorkers int // workers currently executing a solve
	solvesDone    int
	startTime     time.Time
}

// PoolConfig contains configuration for the worker pool
type PoolConfig struct {
	Workers      int           `json:"workers"`       // number of concurrent workers
	PollInterval time.Duration `json:"poll_interval"` // how often idle workers re-check the queue
}

// DefaultPoolConfig returns sensible defaults. One worker keeps solves
// strictly ordered; the solver parallelizes internally when configured to.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:      1,
		PollInterval: time.Second,
	}
}

// NewWorkerPool creates a worker pool draining the given queue. The parent
// context coordinates shutdown: when the server cancels it, workers finish
// their current solve and exit.
func NewWorkerPool(ctx context.Context, queue *Queue, cfg PoolConfig, logger *zap.SugaredLogger) *WorkerPool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPoolConfig().PollInterval
	}
	workerCtx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		queue:     queue,
		cfg:       cfg,
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		log:       logger.Named("async"),
	}
}

// Start sweeps runs stranded by a previous process, then begins draining the
// queue. Safe to call again after Stop; a fresh worker context is derived
// from the parent.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.log.Debugw("Recreated worker context after previous shutdown")
	default:
	}
	wp.startTime = time.Now()
	wp.solvesDone = 0
	wp.mu.Unlock()

	swept, err := wp.queue.RecoverInterrupted(wp.ctx)
	if err != nil {
		wp.log.Warnw("Failed to sweep interrupted runs", "error", err)
	}
	if swept > 0 {
		wp.log.Infow("Swept interrupted runs to failed", "count", swept)
	}

	if warning := wp.checkMemoryPressure(); warning != "" {
		wp.log.Warnw("Memory pressure warning", "warning", warning, "workers", wp.cfg.Workers)
	}

	for i := 0; i < wp.cfg.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Infow(fmt.Sprintf("%s Worker pool started", sym.RunOpen), "workers", wp.cfg.Workers)
}

// Stop shuts the pool down. In-flight solves see their context cancel and
// finish with the best route found so far; jobs still waiting are canceled,
// since their payloads cannot survive the process.
func (wp *WorkerPool) Stop() {
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.log.Infow(fmt.Sprintf("%s Worker pool stopped, all workers exited cleanly", sym.RunClose))
	case <-time.After(stopTimeout):
		wp.log.Warnw("Worker pool stop timed out, workers may still be finishing", "timeout", stopTimeout)
	}

	canceled, err := wp.queue.drainQueued(context.Background(), "worker pool stopped before execution")
	if err != nil {
		wp.log.Warnw("Failed to cancel some queued runs on shutdown", "error", err)
	}
	if canceled > 0 {
		wp.log.Infow("Canceled queued runs on shutdown", "count", canceled)
	}
}

// worker drains the queue until the pool context is canceled
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	errorCount := 0
	const maxConsecutiveErrors = 3
	backoff := time.Second
	const maxBackoff = 10 * time.Second

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-wp.queue.wake:
		case <-ticker.C:
		}

		if err := wp.processNext(); err != nil {
			select {
			case <-wp.ctx.Done():
				// Shutdown in progress, exit without noise
				return
			default:
			}
			errorCount++
			wp.log.Errorw("Worker error processing run",
				"worker_id", id,
				"error", err,
				"consecutive_errors", errorCount)
			if errorCount >= maxConsecutiveErrors {
				wp.log.Warnw("Worker backing off after consecutive errors",
					"worker_id", id,
					"backoff", backoff)
				time.Sleep(backoff)
				backoff = min(backoff*2, maxBackoff)
			}
			continue
		}
		errorCount = 0
		backoff = time.Second

		// Keep draining without waiting out the poll interval
		if wp.queue.Depth() > 0 {
			select {
			case wp.queue.wake <- struct{}{}:
			default:
			}
		}
	}
}

// processNext executes one queued solve, if any. A solve that fails is
// recorded against its run; only store-level trouble surfaces as an error
// so the worker's backoff reflects system health, not input quality.
func (wp *WorkerPool) processNext() error {
	select {
	case <-wp.ctx.Done():
		return nil
	default:
	}

	job := wp.queue.dequeue()
	if job == nil {
		return nil
	}

	if err := wp.queue.start(wp.ctx, job); err != nil {
		// Canceled between dequeue and start, or the store is away.
		// Nothing to execute either way.
		wp.log.Warnw("Skipping run that could not start", "run_id", job.RunID, "error", err)
		return nil
	}

	wp.mu.Lock()
	wp.activeWorkers++
	wp.solvesDone++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
	}()

	emitter := NewRunProgressEmitter(job, wp.queue, wp.log)
	res, tl, err := wp.runSolve(wp.ctx, job, emitter)

	// Outcome writes use a background context so a shutdown racing the
	// final transition cannot lose a finished solve.
	if err != nil {
		emitter.Error(job.Phase, err)
		return wp.queue.fail(context.Background(), job, err)
	}
	wp.log.Infow("Solve completed",
		"run_id", job.RunID,
		"jobs", job.JobCount,
		"total_cost", res.TotalCost,
		"iterations", res.Iterations,
		"duration", res.Duration)
	return wp.queue.complete(context.Background(), job, res, tl, memorySnapshotMB())
}

// runSolve walks one run through the solve phases
func (wp *WorkerPool) runSolve(ctx context.Context, job *Job, emitter ProgressEmitter) (sequence.Result, sequence.Timeline, error) {
	req := job.request

	emitter.Phase(PhaseValidate)
	list, err := coat.NewJobList(req.Jobs...)
	if err != nil {
		return sequence.Result{}, sequence.Timeline{}, err
	}
	if err := list.Validate(req.Table.Chemicals()); err != nil {
		return sequence.Result{}, sequence.Timeline{}, err
	}
	anchor, err := anchorIndex(req.Jobs, req.AnchorJob)
	if err != nil {
		return sequence.Result{}, sequence.Timeline{}, err
	}
	cfg := req.Config
	cfg.Trace = func(stage string) { emitter.Phase(Phase(stage)) }
	solver, err := sequence.NewSolver(cfg)
	if err != nil {
		return sequence.Result{}, sequence.Timeline{}, err
	}

	emitter.Phase(PhaseMatrix)
	opts := sequence.DefaultMatrixOptions()
	if req.Matrix != nil {
		opts = *req.Matrix
	}
	matrix, err := sequence.BuildMatrix(list.Jobs(), req.Table, opts)
	if err != nil {
		return sequence.Result{}, sequence.Timeline{}, err
	}

	// Solve announces the construct and improve phases through the trace hook
	res, err := solver.Solve(ctx, matrix, anchor)
	if err != nil {
		return sequence.Result{}, sequence.Timeline{}, err
	}

	emitter.Phase(PhaseAssemble)
	tl, err := sequence.Assemble(res, matrix)
	if err != nil {
		return sequence.Result{}, sequence.Timeline{}, err
	}
	return res, tl, nil
}

// anchorIndex resolves the anchor job ID to its position in the job slice.
// An empty ID pins the first job, matching the solver's convention.
func anchorIndex(jobs []coat.Job, anchorJob string) (int, error) {
	if anchorJob == "" {
		return 0, nil
	}
	for i, j := range jobs {
		if j.ID == anchorJob {
			return i, nil
		}
	}
	return 0, errors.Mark(
		errors.Newf("anchor job %q is not in the job set", anchorJob),
		errors.ErrInvalidRequest)
}

// GetQueue returns the solve queue (useful for enqueuing runs)
func (wp *WorkerPool) GetQueue() *Queue {
	return wp.queue
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.cfg.Workers
}
