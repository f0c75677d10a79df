package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	zap "go.uber.org/zap"

	config "github.com/apia-framework/a2a/server/config"
	otel "github.com/apia-framework/a2a/server/otel"
	types "github.com/apia-framework/a2a/types"
)

// Knowledge base metric addressing for task lifecycle counters
const (
	kbTaskCategory    = "a2a_tasks"
	kbMetricReceived  = "received"
	kbMetricCompleted = "completed"
	kbMetricFailed    = "failed"
	kbMetricCanceled  = "canceled"
	kbMetricDLQCount  = "dlq_count"
)

// DeadLetterEntry records one request that could not be routed or whose
// handler failed
type DeadLetterEntry struct {
	TaskID string    `json:"taskId"`
	Method string    `json:"method"`
	Reason string    `json:"reason"`
	Time   time.Time `json:"time"`
}

// TaskManager defines task lifecycle management
type TaskManager interface {
	// OnSendTask serves tasks/send: one-shot, blocks until the task is terminal
	OnSendTask(ctx context.Context, params types.TaskSendParams) (*types.Task, error)

	// OnSendTaskSubscribe serves tasks/sendSubscribe: returns a live subscription
	OnSendTaskSubscribe(ctx context.Context, params types.TaskSendParams) (*Subscription, error)

	// OnGetTask serves tasks/get
	OnGetTask(ctx context.Context, params types.TaskQueryParams) (*types.Task, error)

	// OnCancelTask serves tasks/cancel
	OnCancelTask(ctx context.Context, params types.TaskIDParams) (*types.Task, error)

	// DeadLetters returns a snapshot of the dead letter queue
	DeadLetters() []DeadLetterEntry
}

// DefaultTaskManager implements the TaskManager interface. The registry, the
// per-task lock table and the streaming queue table are process-wide and only
// mutated through the public operations.
type DefaultTaskManager struct {
	logger             *zap.Logger
	router             *TaskRouter
	knowledge          KnowledgeBase
	telemetry          otel.OpenTelemetry
	notificationSender PushNotificationSender
	queueSize          int

	// mu guards the maps themselves: task existence, lock existence and
	// queue attachment. It is never held across a handler invocation.
	mu        sync.Mutex
	tasks     map[string]*types.Task
	taskLocks map[string]*sync.Mutex
	queues    map[string]*streamQueue
	cancels   map[string]*cancelEntry

	dlqMu sync.Mutex
	dlq   []DeadLetterEntry
}

var _ TaskManager = (*DefaultTaskManager)(nil)

// NewDefaultTaskManager creates a new default task manager
func NewDefaultTaskManager(logger *zap.Logger, router *TaskRouter, knowledge KnowledgeBase, cfg config.QueueConfig) *DefaultTaskManager {
	return &DefaultTaskManager{
		logger:    logger,
		router:    router,
		knowledge: knowledge,
		telemetry: otel.NoopTelemetry{},
		queueSize: cfg.MaxSize,
		tasks:     make(map[string]*types.Task),
		taskLocks: make(map[string]*sync.Mutex),
		queues:    make(map[string]*streamQueue),
		cancels:   make(map[string]*cancelEntry),
	}
}

// SetTelemetry attaches a telemetry recorder
func (tm *DefaultTaskManager) SetTelemetry(telemetry otel.OpenTelemetry) {
	if telemetry != nil {
		tm.telemetry = telemetry
	}
}

// SetNotificationSender attaches a push notification sender for terminal
// task states
func (tm *DefaultTaskManager) SetNotificationSender(sender PushNotificationSender) {
	tm.notificationSender = sender
}

// taskLock returns the task's lock, creating it on first use
func (tm *DefaultTaskManager) taskLock(taskID string) *sync.Mutex {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	lock, ok := tm.taskLocks[taskID]
	if !ok {
		lock = &sync.Mutex{}
		tm.taskLocks[taskID] = lock
	}
	return lock
}

// OnSendTask serves tasks/send. A handler failure is not an RPC error: the
// caller receives a terminal task with state failed. Routing and validation
// failures are RPC errors and never touch the registry.
func (tm *DefaultTaskManager) OnSendTask(ctx context.Context, params types.TaskSendParams) (*types.Task, error) {
	handler, a2aErr := tm.resolveHandler(ctx, params, types.MethodTasksSend)
	if a2aErr != nil {
		return nil, a2aErr
	}

	snapshot, a2aErr := tm.applyInboundMessage(ctx, params, types.MethodTasksSend)
	if a2aErr != nil {
		return nil, a2aErr
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	entry := tm.registerCancel(params.ID, cancel)
	defer tm.unregisterCancel(params.ID, entry)

	taskCtx := tm.newTaskContext(handlerCtx, snapshot, params, nil)
	result, err := tm.invokeHandler(handler, taskCtx)

	return tm.commitResult(ctx, params.ID, params.SkillID(), types.MethodTasksSend, result, err), nil
}

// OnSendTaskSubscribe serves tasks/sendSubscribe. The subscription carries an
// initial working event, any interim handler events and exactly one terminal
// event. The caller must Close the subscription when it stops reading.
func (tm *DefaultTaskManager) OnSendTaskSubscribe(ctx context.Context, params types.TaskSendParams) (*Subscription, error) {
	handler, a2aErr := tm.resolveHandler(ctx, params, types.MethodTasksSendSubscribe)
	if a2aErr != nil {
		return nil, a2aErr
	}

	snapshot, a2aErr := tm.applyInboundMessage(ctx, params, types.MethodTasksSendSubscribe)
	if a2aErr != nil {
		return nil, a2aErr
	}

	queue := tm.attachQueue(params.ID)
	subscription := &Subscription{taskID: params.ID, queue: queue, manager: tm}
	tm.telemetry.RecordStreamingSubscription(ctx, 1)

	queue.push(StreamEvent{Event: types.TaskStatusUpdateEvent{
		ID: params.ID,
		Status: types.TaskStatus{
			State:     types.TaskStateWorking,
			Message:   types.NewAgentTextMessage("Task submitted for processing..."),
			Timestamp: time.Now().UTC(),
		},
		Final: false,
	}})

	handlerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	entry := tm.registerCancel(params.ID, cancel)

	go func() {
		defer tm.telemetry.RecordStreamingSubscription(context.Background(), -1)
		defer queue.close()
		defer tm.unregisterCancel(params.ID, entry)

		taskCtx := tm.newTaskContext(handlerCtx, snapshot, params, func(event types.TaskUpdateEvent) {
			queue.push(StreamEvent{Event: event})
		})

		result, err := tm.invokeHandler(handler, taskCtx)

		committed := tm.commitResult(context.Background(), params.ID, params.SkillID(), types.MethodTasksSendSubscribe, result, err)

		queue.pushFinal(StreamEvent{Event: types.TaskStatusUpdateEvent{
			ID:     params.ID,
			Status: committed.Status,
			Final:  true,
		}})
	}()

	return subscription, nil
}

// OnGetTask serves tasks/get, returning a deep copy with history truncated to
// the requested length. The stored history is never touched.
func (tm *DefaultTaskManager) OnGetTask(ctx context.Context, params types.TaskQueryParams) (*types.Task, error) {
	if params.ID == "" {
		return nil, types.NewInvalidParamsError("task id is required")
	}

	tm.mu.Lock()
	task, ok := tm.tasks[params.ID]
	tm.mu.Unlock()
	if !ok {
		return nil, types.NewTaskNotFoundError(params.ID)
	}

	lock := tm.taskLock(params.ID)
	lock.Lock()
	clone := task.Clone()
	lock.Unlock()

	if params.HistoryLength <= 0 {
		clone.History = nil
	} else if len(clone.History) > params.HistoryLength {
		clone.History = clone.History[len(clone.History)-params.HistoryLength:]
	}

	return clone, nil
}

// OnCancelTask serves tasks/cancel. Cancelling a terminal task is a no-op
// returning the existing task; otherwise the task moves to canceled and its
// artifacts are cleared. Cancellation is cooperative: a running handler sees
// its context canceled but is not preempted, and a handler that completes
// anyway still lands its result.
func (tm *DefaultTaskManager) OnCancelTask(ctx context.Context, params types.TaskIDParams) (*types.Task, error) {
	if params.ID == "" {
		return nil, types.NewInvalidParamsError("task id is required")
	}

	tm.mu.Lock()
	task, ok := tm.tasks[params.ID]
	entry := tm.cancels[params.ID]
	tm.mu.Unlock()
	if !ok {
		return nil, types.NewTaskNotFoundError(params.ID)
	}

	lock := tm.taskLock(params.ID)
	lock.Lock()
	defer lock.Unlock()

	if task.Status.State.IsTerminal() {
		return task.Clone(), nil
	}

	task.Status = types.TaskStatus{
		State:     types.TaskStateCanceled,
		Timestamp: time.Now().UTC(),
	}
	task.Artifacts = nil

	if entry != nil {
		entry.cancel()
	}

	tm.incrementCounter(ctx, kbMetricCanceled)
	tm.telemetry.RecordTaskCanceled(ctx)
	tm.logger.Info("task canceled", zap.String("task_id", params.ID))

	clone := task.Clone()
	tm.notifyTerminal(clone)
	return clone, nil
}

// DeadLetters returns a snapshot of the dead letter queue
func (tm *DefaultTaskManager) DeadLetters() []DeadLetterEntry {
	tm.dlqMu.Lock()
	defer tm.dlqMu.Unlock()

	snapshot := make([]DeadLetterEntry, len(tm.dlq))
	copy(snapshot, tm.dlq)
	return snapshot
}

// resolveHandler validates the send params and routes them to a handler.
// Unroutable requests are dead-lettered without creating any task state.
func (tm *DefaultTaskManager) resolveHandler(ctx context.Context, params types.TaskSendParams, method string) (TaskHandler, *types.A2AError) {
	if params.ID == "" {
		return nil, types.NewInvalidParamsError("task id is required")
	}
	if len(params.Message.Parts) == 0 {
		return nil, types.NewInvalidParamsError("message with at least one part is required")
	}

	skillID := params.SkillID()
	handler, ok := tm.router.Resolve(skillID)
	if !ok {
		reason := fmt.Sprintf("no handler registered for skill %q and no default handler", skillID)
		tm.addToDeadLetterQueue(ctx, params.ID, method, reason)
		tm.logger.Error("unroutable task request",
			zap.String("task_id", params.ID),
			zap.String("skill_id", skillID),
			zap.String("method", method))
		return nil, types.NewMethodNotFoundError(reason)
	}

	return handler, nil
}

// applyInboundMessage validates state, appends the message and flips the task
// to working, all under the task's lock. It returns an immutable snapshot for
// the handler invocation.
func (tm *DefaultTaskManager) applyInboundMessage(ctx context.Context, params types.TaskSendParams, method string) (*types.Task, *types.A2AError) {
	lock := tm.taskLock(params.ID)
	lock.Lock()
	defer lock.Unlock()

	tm.mu.Lock()
	task, exists := tm.tasks[params.ID]
	tm.mu.Unlock()

	now := time.Now().UTC()

	if exists {
		if !task.Status.State.CanReceiveMessage() {
			return nil, types.NewInvalidTaskStateError(params.ID, task.Status.State)
		}
		task.History = append(task.History, params.Message)
		task.Status = types.TaskStatus{State: types.TaskStateWorking, Timestamp: now}
	} else {
		sessionID := params.SessionID
		if sessionID == nil {
			generated := uuid.New().String()
			sessionID = &generated
		}
		task = &types.Task{
			ID:        params.ID,
			SessionID: sessionID,
			Status:    types.TaskStatus{State: types.TaskStateWorking, Timestamp: now},
			History:   []types.Message{params.Message},
			Metadata:  params.Metadata,
		}
		tm.mu.Lock()
		tm.tasks[params.ID] = task
		tm.mu.Unlock()
	}

	tm.incrementCounter(ctx, kbMetricReceived)
	tm.telemetry.RecordTaskReceived(ctx, method, params.SkillID())
	tm.logger.Info("task message accepted",
		zap.String("task_id", params.ID),
		zap.String("skill_id", params.SkillID()),
		zap.String("method", method),
		zap.Bool("new_task", !exists))

	return task.Clone(), nil
}

// newTaskContext builds the handler-facing view from a snapshot
func (tm *DefaultTaskManager) newTaskContext(ctx context.Context, snapshot *types.Task, params types.TaskSendParams, emit func(types.TaskUpdateEvent)) *TaskContext {
	return &TaskContext{
		taskID:    snapshot.ID,
		sessionID: snapshot.SessionID,
		message:   params.Message.Clone(),
		metadata:  params.Message.Metadata,
		ctx:       ctx,
		logger:    tm.logger,
		knowledge: tm.knowledge,
		emit:      emit,
	}
}

// invokeHandler runs the handler outside any lock, converting panics into
// ordinary handler errors so a crash can never leave the task in working.
func (tm *DefaultTaskManager) invokeHandler(handler TaskHandler, taskCtx *TaskContext) (result *TaskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			tm.logger.Error("handler panic recovered",
				zap.String("task_id", taskCtx.TaskID()),
				zap.Any("panic", r))
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler(taskCtx)
}

// commitResult applies the handler outcome under the task lock: final status
// committed, artifacts replaced wholesale, counters and DLQ updated. Exactly
// one dead letter entry is filed per failure. Returns a deep copy.
func (tm *DefaultTaskManager) commitResult(ctx context.Context, taskID string, skillID string, method string, result *TaskResult, handlerErr error) *types.Task {
	lock := tm.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	tm.mu.Lock()
	task := tm.tasks[taskID]
	tm.mu.Unlock()

	now := time.Now().UTC()

	switch {
	case handlerErr != nil:
		task.Status = types.TaskStatus{
			State:     types.TaskStateFailed,
			Message:   types.NewAgentTextMessage(handlerErr.Error()),
			Timestamp: now,
		}
		task.Artifacts = nil
		tm.addToDeadLetterQueue(ctx, taskID, method, handlerErr.Error())
		tm.incrementCounter(ctx, kbMetricFailed)
		tm.telemetry.RecordTaskFailed(ctx, skillID, handlerErr.Error())
		tm.logger.Error("task failed",
			zap.String("task_id", taskID),
			zap.String("skill_id", skillID),
			zap.Error(handlerErr))

	case result == nil:
		reason := "handler returned no result"
		task.Status = types.TaskStatus{
			State:     types.TaskStateFailed,
			Message:   types.NewAgentTextMessage(reason),
			Timestamp: now,
		}
		task.Artifacts = nil
		tm.addToDeadLetterQueue(ctx, taskID, method, reason)
		tm.incrementCounter(ctx, kbMetricFailed)
		tm.telemetry.RecordTaskFailed(ctx, skillID, reason)
		tm.logger.Error("task failed", zap.String("task_id", taskID), zap.String("reason", reason))

	default:
		status := result.Status
		if status.Timestamp.IsZero() {
			status.Timestamp = now
		}
		task.Status = status
		task.Artifacts = result.Artifacts

		switch status.State {
		case types.TaskStateCompleted:
			tm.incrementCounter(ctx, kbMetricCompleted)
			tm.telemetry.RecordTaskCompleted(ctx, skillID)
			tm.logger.Info("task completed",
				zap.String("task_id", taskID),
				zap.String("skill_id", skillID),
				zap.Int("artifacts", len(result.Artifacts)))
		case types.TaskStateFailed:
			reason := "handler reported failure"
			if status.Message != nil {
				if texts := status.Message.TextParts(); len(texts) > 0 {
					reason = texts[0]
				}
			}
			tm.addToDeadLetterQueue(ctx, taskID, method, reason)
			tm.incrementCounter(ctx, kbMetricFailed)
			tm.telemetry.RecordTaskFailed(ctx, skillID, reason)
			tm.logger.Warn("task failed",
				zap.String("task_id", taskID),
				zap.String("skill_id", skillID),
				zap.String("reason", reason))
		default:
			tm.logger.Info("task paused",
				zap.String("task_id", taskID),
				zap.String("state", status.State.String()))
		}
	}

	clone := task.Clone()
	if clone.Status.State.IsTerminal() {
		tm.notifyTerminal(clone)
	}
	return clone
}

// addToDeadLetterQueue appends one entry and bumps the external counter
func (tm *DefaultTaskManager) addToDeadLetterQueue(ctx context.Context, taskID string, method string, reason string) {
	tm.dlqMu.Lock()
	tm.dlq = append(tm.dlq, DeadLetterEntry{
		TaskID: taskID,
		Method: method,
		Reason: reason,
		Time:   time.Now().UTC(),
	})
	tm.dlqMu.Unlock()

	tm.incrementCounter(ctx, kbMetricDLQCount)
	tm.telemetry.RecordDeadLetter(ctx, method)
}

// incrementCounter bumps a task lifecycle counter in the knowledge base. The
// knowledge base is treated as an always-available sink, failures are logged.
func (tm *DefaultTaskManager) incrementCounter(ctx context.Context, name string) {
	if tm.knowledge == nil {
		return
	}
	if err := tm.knowledge.IncrementMetric(ctx, kbTaskCategory, name, 1); err != nil {
		tm.logger.Warn("failed to update task counter",
			zap.String("counter", name),
			zap.Error(err))
	}
}

// notifyTerminal delivers a terminal state change to the push notification
// sender, if one is attached
func (tm *DefaultTaskManager) notifyTerminal(task *types.Task) {
	if tm.notificationSender == nil {
		return
	}

	event := types.TaskStatusUpdateEvent{
		ID:     task.ID,
		Status: task.Status,
		Final:  true,
	}

	go func() {
		if err := tm.notificationSender.SendTaskUpdate(context.Background(), event); err != nil {
			tm.logger.Warn("push notification delivery failed",
				zap.String("task_id", task.ID),
				zap.Error(err))
		}
	}()
}

// attachQueue creates and registers the task's streaming queue, replacing a
// previous subscription if one is still attached
func (tm *DefaultTaskManager) attachQueue(taskID string) *streamQueue {
	queue := newStreamQueue(taskID, tm.queueSize, tm.logger)

	tm.mu.Lock()
	previous := tm.queues[taskID]
	tm.queues[taskID] = queue
	tm.mu.Unlock()

	if previous != nil {
		tm.logger.Warn("replacing live streaming subscription", zap.String("task_id", taskID))
		previous.close()
	}
	return queue
}

// releaseQueue removes the queue table entry if it still belongs to this
// subscription and closes the queue
func (tm *DefaultTaskManager) releaseQueue(taskID string, queue *streamQueue) {
	tm.mu.Lock()
	if tm.queues[taskID] == queue {
		delete(tm.queues, taskID)
	}
	tm.mu.Unlock()

	queue.close()
}

// cancelEntry wraps a handler's cancel func in a comparable identity, so a
// stale unregister cannot remove a newer registration for the same task id
type cancelEntry struct {
	cancel context.CancelFunc
}

func (tm *DefaultTaskManager) registerCancel(taskID string, cancel context.CancelFunc) *cancelEntry {
	entry := &cancelEntry{cancel: cancel}
	tm.mu.Lock()
	tm.cancels[taskID] = entry
	tm.mu.Unlock()
	return entry
}

func (tm *DefaultTaskManager) unregisterCancel(taskID string, entry *cancelEntry) {
	tm.mu.Lock()
	if tm.cancels[taskID] == entry {
		delete(tm.cancels, taskID)
	}
	tm.mu.Unlock()
	entry.cancel()
}
