package server

import (
	"time"

	"github.com/teranos/smartcoat/async"
	"github.com/teranos/smartcoat/store"
	"github.com/teranos/smartcoat/version"
)

const (
	// Queue status broadcast intervals by activity level
	statusIntervalIdle   = 30 * time.Second
	statusIntervalActive = 5 * time.Second
	statusIntervalBusy   = time.Second

	// initialRunsLimit caps the run history sent to a newly connected client
	initialRunsLimit = 20
)

// RunUpdateMessage carries a live run snapshot from the queue
type RunUpdateMessage struct {
	Type      string     `json:"type"`
	Run       *async.Job `json:"run"`
	Timestamp time.Time  `json:"timestamp"`
}

// RunRecordMessage carries an archived run row from the store
type RunRecordMessage struct {
	Type      string     `json:"type"`
	Run       *store.Run `json:"run"`
	Timestamp time.Time  `json:"timestamp"`
}

// QueueStatusMessage summarizes queue and worker health
type QueueStatusMessage struct {
	Type      string              `json:"type"`
	Stats     *async.QueueStats   `json:"stats"`
	Metrics   async.SystemMetrics `json:"metrics"`
	Depth     int                 `json:"depth"`
	Clients   int                 `json:"clients"`
	State     string              `json:"state"`
	Timestamp time.Time           `json:"timestamp"`
}

// VersionMessage is the first frame sent on every WebSocket connection
type VersionMessage struct {
	Type    string       `json:"type"`
	Version version.Info `json:"version"`
}

func newRunUpdateMessage(job *async.Job) RunUpdateMessage {
	return RunUpdateMessage{
		Type:      "run_update",
		Run:       job,
		Timestamp: time.Now(),
	}
}

func newRunRecordMessage(run *store.Run) RunRecordMessage {
	return RunRecordMessage{
		Type:      "run_record",
		Run:       run,
		Timestamp: time.Now(),
	}
}

// cachedQueueStatus is the last broadcast state, used for change detection.
// Only the status broadcaster goroutine touches it.
type cachedQueueStatus struct {
	queued  int
	running int
	clients int
}

// buildQueueStatus assembles the current queue status message
func (s *Server) buildQueueStatus() QueueStatusMessage {
	queue := s.pool.GetQueue()

	stats, err := queue.GetStats(s.ctx)
	if err != nil {
		s.logger.Debugw("Queue stats unavailable", "error", err)
		stats = &async.QueueStats{}
	}

	s.mu.RLock()
	clients := len(s.clients)
	s.mu.RUnlock()

	return QueueStatusMessage{
		Type:      "queue_status",
		Stats:     stats,
		Metrics:   s.pool.GetSystemMetrics(),
		Depth:     queue.Depth(),
		Clients:   clients,
		State:     stateString(s.getState()),
		Timestamp: time.Now(),
	}
}

// startRunUpdateBroadcaster relays queue transitions to all clients
func (s *Server) startRunUpdateBroadcaster() {
	updates := s.pool.GetQueue().Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			// Order matters: unsubscribe first, closing while still
			// subscribed could panic the queue's notify.
			s.pool.GetQueue().Unsubscribe(updates)
			close(updates)
		}()

		for {
			select {
			case <-s.ctx.Done():
				return
			case job, ok := <-updates:
				if !ok {
					return
				}
				sent := s.broadcastMessage(newRunUpdateMessage(job))
				s.logger.Debugw("Run update broadcast",
					"run_id", job.RunID,
					"status", job.Status,
					"clients", sent,
				)
			}
		}
	}()
}

// startQueueStatusBroadcaster periodically broadcasts queue status. The
// interval adapts to activity: 1s while solves run, 5s with runs queued,
// 30s when idle. Unchanged status is not rebroadcast early.
func (s *Server) startQueueStatusBroadcaster() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		var lastBroadcast time.Time
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				queued, running := s.pool.GetQueue().GetJobCounts()

				s.mu.RLock()
				clients := len(s.clients)
				s.mu.RUnlock()

				if clients == 0 {
					continue
				}

				interval := statusIntervalIdle
				switch {
				case running > 0:
					interval = statusIntervalBusy
				case queued > 0:
					interval = statusIntervalActive
				}

				current := &cachedQueueStatus{queued: queued, running: running, clients: clients}
				if !s.statusChanged(current) && time.Since(lastBroadcast) < interval {
					continue
				}

				s.lastStatus = current
				lastBroadcast = time.Now()
				s.broadcastMessage(s.buildQueueStatus())
			}
		}
	}()
}

// statusChanged reports whether the queue moved since the last broadcast
func (s *Server) statusChanged(current *cachedQueueStatus) bool {
	if s.lastStatus == nil {
		return true
	}
	return *current != *s.lastStatus
}

// sendInitialRunsToClient pushes recent run history to a new client.
// Runs still live in the queue are sent as updates, the rest as records.
func (s *Server) sendInitialRunsToClient(client *Client) {
	// Brief delay so the client's pumps are running before history arrives
	select {
	case <-time.After(50 * time.Millisecond):
	case <-s.ctx.Done():
		return
	}

	runs, err := s.store.ListRuns(s.ctx, "", initialRunsLimit)
	if err != nil {
		s.logger.Warnw("Failed to load run history for client",
			"client_id", client.id,
			"error", err,
		)
		return
	}

	queue := s.pool.GetQueue()
	sent := 0
	for _, run := range runs {
		if job, ok := queue.Get(run.ID); ok {
			if client.sendJSON(newRunUpdateMessage(job)) {
				sent++
			}
			continue
		}
		if client.sendJSON(newRunRecordMessage(run)) {
			sent++
		}
	}

	if sent > 0 {
		s.logger.Debugw("Sent run history to client",
			"client_id", client.id,
			"count", sent,
		)
	}
}
