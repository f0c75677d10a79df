package server

import (
	"sync"

	types "github.com/apia-framework/a2a/types"
	zap "go.uber.org/zap"
)

// StreamEvent is one unit delivered over a streaming subscription: either a
// task update event or an in-stream error that terminates the subscription.
type StreamEvent struct {
	Event types.TaskUpdateEvent
	Err   *types.A2AError
}

// Terminal reports whether the event ends the subscription
func (e StreamEvent) Terminal() bool {
	if e.Err != nil {
		return true
	}
	if status, ok := e.Event.(types.TaskStatusUpdateEvent); ok {
		return status.Final
	}
	return false
}

// streamQueue is the per-task delivery queue behind one subscription. Pushes
// after close are dropped, and a full buffer drops interim events rather than
// blocking the producer. The channel carries one slot beyond the configured
// size, reserved for the terminal event, so the terminal event is delivered
// even when the consumer has not drained the interim backlog.
type streamQueue struct {
	logger *zap.Logger
	taskID string
	size   int

	mu        sync.Mutex
	ch        chan StreamEvent
	closed    bool
	finalSent bool
}

func newStreamQueue(taskID string, size int, logger *zap.Logger) *streamQueue {
	if size < 1 {
		size = 1
	}
	return &streamQueue{
		logger: logger,
		taskID: taskID,
		size:   size,
		ch:     make(chan StreamEvent, size+1),
	}
}

// push enqueues an interim event, dropping it when the queue is closed or the
// interim buffer is full. The reserved terminal slot is never used here.
func (q *streamQueue) push(event StreamEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Debug("dropping event for closed subscription", zap.String("task_id", q.taskID))
		return false
	}

	if len(q.ch) >= q.size {
		q.logger.Warn("streaming queue full, dropping event", zap.String("task_id", q.taskID))
		return false
	}

	q.ch <- event
	return true
}

// pushFinal enqueues the terminal event into the reserved slot. It only fails
// when the subscription is already closed, so an open subscription always
// receives its terminal event.
func (q *streamQueue) pushFinal(event StreamEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Debug("dropping terminal event for closed subscription", zap.String("task_id", q.taskID))
		return false
	}
	if q.finalSent {
		q.logger.Warn("terminal event already sent", zap.String("task_id", q.taskID))
		return false
	}

	q.finalSent = true
	q.ch <- event
	return true
}

// close closes the queue exactly once
func (q *streamQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Subscription is the consumer handle of a streaming task. Events ends after
// exactly one terminal event unless the consumer goes away first; Close must
// be called when the consumer stops reading for any reason.
type Subscription struct {
	taskID  string
	queue   *streamQueue
	manager *DefaultTaskManager

	closeOnce sync.Once
}

// TaskID returns the subscribed task id
func (s *Subscription) TaskID() string {
	return s.taskID
}

// Events returns the delivery channel. The channel is closed when the
// subscription ends.
func (s *Subscription) Events() <-chan StreamEvent {
	return s.queue.ch
}

// Close releases the subscription's queue entry and stops delivery
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.manager.releaseQueue(s.taskID, s.queue)
	})
}
