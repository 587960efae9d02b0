package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/sequence"
	"github.com/teranos/smartcoat/store"
)

const (
	// MaxQueuedRuns is the default bound on solve submissions waiting in
	// memory. Every queued run carries its full job list, so the bound also
	// caps payload memory held by the queue.
	MaxQueuedRuns = 256
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// Queue hands solve submissions to the worker pool in FIFO order. The run
// store is the durable record: every transition is written there first, then
// announced to subscribers. Solve inputs stay in memory only, which is why a
// run interrupted by a process exit cannot be resumed, only swept to failed.
type Queue struct {
	store *store.Store

	mu          sync.RWMutex
	maxQueued   int             // queued-run bound, MaxQueuedRuns unless overridden
	pending     []*Job          // queued jobs in submission order
	jobs        map[string]*Job // run ID -> live job, queued or running
	subscribers []chan *Job
	wake        chan struct{} // nudges workers out of their poll wait
}

// NewQueue creates a solve queue backed by the given run store
func NewQueue(st *store.Store) *Queue {
	return &Queue{
		store:       st,
		maxQueued:   MaxQueuedRuns,
		jobs:        make(map[string]*Job),
		subscribers: make([]chan *Job, 0),
		wake:        make(chan struct{}, 1),
	}
}

// SetMaxQueued applies a configured queued-run bound. Zero or negative keeps
// the current bound.
func (q *Queue) SetMaxQueued(n int) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	q.maxQueued = n
	q.mu.Unlock()
}

// Enqueue records a queued run in the store and adds the job to the queue.
// The returned Job is a snapshot; later transitions reach callers through
// Subscribe or the run store.
func (q *Queue) Enqueue(ctx context.Context, req Request) (*Job, error) {
	if len(req.Jobs) == 0 {
		return nil, errors.Mark(errors.New("solve request has no jobs"), errors.ErrInvalidRequest)
	}
	if req.Table == nil {
		return nil, errors.Mark(errors.New("solve request has no changeover table"), errors.ErrInvalidRequest)
	}
	q.mu.RLock()
	depth, bound := len(q.pending), q.maxQueued
	q.mu.RUnlock()
	if depth >= bound {
		return nil, errors.Mark(
			errors.Newf("solve queue is full (%d runs waiting)", depth),
			errors.ErrServiceUnavailable)
	}

	run, err := q.store.CreateRun(ctx, req.JobSetID, req.Config.Strategy, req.AnchorJob)
	if err != nil {
		err = errors.Wrap(err, "failed to enqueue solve")
		err = errors.WithDetail(err, fmt.Sprintf("Job set: %s", req.JobSetName))
		err = errors.WithDetail(err, fmt.Sprintf("Strategy: %s", req.Config.Strategy))
		return nil, err
	}

	job := NewJob(run.ID, req)

	q.mu.Lock()
	q.pending = append(q.pending, job)
	q.jobs[job.RunID] = job
	q.notifySubscribers(job)
	snapshot := *job
	q.mu.Unlock()

	// Wake a polling worker without blocking if one is already awake
	select {
	case q.wake <- struct{}{}:
	default:
	}

	return &snapshot, nil
}

// dequeue pops the oldest queued job, or nil when the queue is empty. The
// job stays in the live map until a terminal transition removes it.
func (q *Queue) dequeue() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	return job
}

// start moves a dequeued job to running. An error means the job must not be
// executed: the run was canceled between dequeue and start, or the store is
// unreachable. Either way the job is dropped from the live map.
func (q *Queue) start(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.MarkRunStarted(ctx, job.RunID); err != nil {
		delete(q.jobs, job.RunID)
		err = errors.Wrap(err, "failed to start solve")
		err = errors.WithDetail(err, fmt.Sprintf("Run ID: %s", job.RunID))
		return err
	}

	job.Start()
	q.notifySubscribers(job)
	return nil
}

// setPhase records the stage a running solve has entered and announces it.
// Phases are ephemeral progress, not persisted state, so there is no store
// write here.
func (q *Queue) setPhase(job *Job, phase Phase) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.SetPhase(phase)
	q.notifySubscribers(job)
}

// complete stores the solve outcome and retires the job. If the store write
// fails the run row stays running and the next restart sweeps it to failed.
func (q *Queue) complete(ctx context.Context, job *Job, res sequence.Result, tl sequence.Timeline, memoryMB float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, job.RunID)

	if err := q.store.CompleteRun(ctx, job.RunID, res); err != nil {
		err = errors.Wrap(err, "failed to complete solve")
		err = errors.WithDetail(err, fmt.Sprintf("Run ID: %s", job.RunID))
		err = errors.WithDetail(err, fmt.Sprintf("Total cost: %d", res.TotalCost))
		return err
	}

	job.Complete(&res, &tl, memoryMB)
	q.notifySubscribers(job)
	return nil
}

// fail records the solve error and retires the job
func (q *Queue) fail(ctx context.Context, job *Job, solveErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, job.RunID)

	if err := q.store.FailRun(ctx, job.RunID, solveErr); err != nil {
		err = errors.Wrap(err, "failed to mark solve as failed")
		err = errors.WithDetail(err, fmt.Sprintf("Run ID: %s", job.RunID))
		err = errors.WithDetail(err, fmt.Sprintf("Solve error: %s", solveErr.Error()))
		return err
	}

	job.Fail(solveErr)
	q.notifySubscribers(job)
	return nil
}

// Cancel withdraws a queued run before any worker picks it up. Runs that
// have started keep going; a solve in flight finishes with its best route.
func (q *Queue) Cancel(ctx context.Context, runID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.CancelRun(ctx, runID, reason); err != nil {
		err = errors.Wrapf(err, "failed to cancel run %s", runID)
		err = errors.WithDetail(err, fmt.Sprintf("Run ID: %s", runID))
		return err
	}

	job, ok := q.jobs[runID]
	if !ok {
		// Queued row from a previous process; the store row is already
		// canceled and there is no live job to announce.
		return nil
	}
	q.removePending(runID)
	delete(q.jobs, runID)
	job.Cancel(reason)
	q.notifySubscribers(job)
	return nil
}

// drainQueued cancels every job still waiting in the queue. Used on shutdown:
// queued payloads die with the process, so leaving the rows queued would
// strand them. Returns how many runs were canceled and the first store error.
func (q *Queue) drainQueued(ctx context.Context, reason string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var firstErr error
	canceled := 0
	for _, job := range q.pending {
		delete(q.jobs, job.RunID)
		if err := q.store.CancelRun(ctx, job.RunID, reason); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		job.Cancel(reason)
		q.notifySubscribers(job)
		canceled++
	}
	q.pending = q.pending[:0]
	return canceled, firstErr
}

// RecoverInterrupted sweeps run rows left queued or running by a previous
// process to failed. Solve inputs only ever live in memory, so these runs
// cannot be re-executed. Live jobs owned by this process are left alone.
func (q *Queue) RecoverInterrupted(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	swept := 0
	for _, status := range []string{store.RunStatusQueued, store.RunStatusRunning} {
		runs, err := q.store.ListRuns(ctx, status, 0)
		if err != nil {
			return swept, errors.Wrapf(err, "failed to list %s runs for recovery", status)
		}
		for _, run := range runs {
			if _, live := q.jobs[run.ID]; live {
				continue
			}
			if err := q.store.FailRun(ctx, run.ID, errors.New("interrupted by restart")); err != nil {
				return swept, errors.Wrapf(err, "failed to sweep run %s", run.ID)
			}
			swept++
		}
	}
	return swept, nil
}

// Get returns a snapshot of a live job, or false if the run is not queued or
// running in this process. Finished runs live in the store, not here.
func (q *Queue) Get(runID string) (*Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.jobs[runID]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// Depth returns the number of jobs waiting for a worker
func (q *Queue) Depth() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}

// GetJobCounts returns quick counts of queued and running jobs (for system metrics)
func (q *Queue) GetJobCounts() (queued int, running int) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending), len(q.jobs) - len(q.pending)
}

// QueueStats returns statistics about the queue
type QueueStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
	Total     int `json:"total"`
}

// GetStats returns run counts across the whole store, not just this process
func (q *Queue) GetStats(ctx context.Context) (*QueueStats, error) {
	counts, err := q.store.CountRunsByStatus(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count runs")
	}

	stats := &QueueStats{
		Queued:    counts[store.RunStatusQueued],
		Running:   counts[store.RunStatusRunning],
		Completed: counts[store.RunStatusCompleted],
		Failed:    counts[store.RunStatusFailed],
		Canceled:  counts[store.RunStatusCanceled],
	}
	stats.Total = stats.Queued + stats.Running + stats.Completed + stats.Failed + stats.Canceled
	return stats, nil
}

// Subscribe returns a channel that receives job snapshots on every
// transition. The caller is responsible for calling Unsubscribe when done.
// The returned channel is buffered to prevent blocking the notifier.
func (q *Queue) Subscribe() chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the queue.
// The channel is NOT closed by this method - callers should close it
// themselves after unsubscribing if needed. This prevents double-close panics.
func (q *Queue) Unsubscribe(ch chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends a snapshot of the job to all subscribers.
// REQUIRES: q.mu must be held by caller. Sends a copy so subscribers never
// observe later mutations, and uses non-blocking sends to avoid stalling on
// a slow subscriber.
func (q *Queue) notifySubscribers(job *Job) {
	snapshot := *job
	for _, ch := range q.subscribers {
		select {
		case ch <- &snapshot:
		default:
		}
	}
}

// removePending drops a run from the pending slice if it is still there.
// REQUIRES: q.mu must be held by caller.
func (q *Queue) removePending(runID string) {
	for i, job := range q.pending {
		if job.RunID == runID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}
