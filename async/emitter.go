package async

import (
	"go.uber.org/zap"
)

// ProgressEmitter receives solve lifecycle events while a run executes.
// Implementations must be cheap: emits happen on the solving goroutine.
type ProgressEmitter interface {
	Phase(phase Phase)
	Info(message string)
	Error(phase Phase, err error)
}

// RunProgressEmitter publishes phase transitions to queue subscribers and
// mirrors them to the log with the run ID pre-configured.
type RunProgressEmitter struct {
	job   *Job
	queue *Queue
	log   *zap.SugaredLogger
}

// NewRunProgressEmitter creates a progress emitter for one solve run. The
// provided logger should be the worker pool's logger so solve tracing lands
// under the pool's name.
func NewRunProgressEmitter(job *Job, queue *Queue, baseLogger *zap.SugaredLogger) *RunProgressEmitter {
	return &RunProgressEmitter{
		job:   job,
		queue: queue,
		log:   baseLogger.With("run_id", job.RunID),
	}
}

// Phase announces the stage the solve has entered
func (e *RunProgressEmitter) Phase(phase Phase) {
	e.queue.setPhase(e.job, phase)
	e.log.Debugw("solve phase", "phase", phase)
}

// Info logs informational messages
func (e *RunProgressEmitter) Info(message string) {
	e.log.Info(message)
}

// Error logs a solve failure with the phase it died in. The failed status
// itself is recorded by the worker, which owns the terminal transition.
func (e *RunProgressEmitter) Error(phase Phase, err error) {
	e.log.Errorw("solve failed",
		"phase", phase,
		"error", err,
	)
}
