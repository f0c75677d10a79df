package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	types "github.com/apia-framework/a2a/types"
	zap "go.uber.org/zap"
)

// ErrURIFetchNotImplemented is returned by ProcessFilePart for URI-only file
// parts. Remote file fetching is out of scope for the server core.
var ErrURIFetchNotImplemented = errors.New("fetching file parts by URI is not implemented")

// TaskContext is the handler-facing view of one task turn: a stable snapshot
// of ids and the incoming message, plus emit hooks for interim updates.
// Snapshot fields never change while the handler runs; interim emissions reach
// the client only when a streaming subscription is live, otherwise they are
// logged and dropped.
type TaskContext struct {
	taskID    string
	sessionID *string
	message   types.Message
	metadata  map[string]any

	ctx       context.Context
	logger    *zap.Logger
	knowledge KnowledgeBase
	emit      func(event types.TaskUpdateEvent)
}

// Context returns the request context. It is canceled when the task is
// canceled, so cooperative handlers can stop early.
func (tc *TaskContext) Context() context.Context {
	return tc.ctx
}

// TaskID returns the task id
func (tc *TaskContext) TaskID() string {
	return tc.taskID
}

// SessionID returns the session id, or nil when the task has none
func (tc *TaskContext) SessionID() *string {
	return tc.sessionID
}

// IncomingMessage returns the message that started this turn
func (tc *TaskContext) IncomingMessage() types.Message {
	return tc.message
}

// Metadata returns the request metadata of this turn
func (tc *TaskContext) Metadata() map[string]any {
	return tc.metadata
}

// Knowledge returns the shared knowledge base collaborator
func (tc *TaskContext) Knowledge() KnowledgeBase {
	return tc.knowledge
}

// TextParts returns the text content of the incoming message in order
func (tc *TaskContext) TextParts() []string {
	return tc.message.TextParts()
}

// FileParts returns the file parts of the incoming message in order
func (tc *TaskContext) FileParts() []types.FilePart {
	return tc.message.FileParts()
}

// ProcessFilePart materializes the content of a file part. Inline base64
// bytes are decoded; URI-only parts return ErrURIFetchNotImplemented; a part
// carrying neither is invalid.
func (tc *TaskContext) ProcessFilePart(part types.FilePart) ([]byte, error) {
	if part.File.Bytes != nil {
		decoded, err := base64.StdEncoding.DecodeString(*part.File.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to decode file part bytes: %w", err)
		}
		return decoded, nil
	}
	if part.File.URI != nil {
		return nil, ErrURIFetchNotImplemented
	}
	return nil, fmt.Errorf("file part carries neither bytes nor uri")
}

// UpdateStatus emits an interim status update to the live subscription. The
// registry state is not touched; only the final TaskResult commits.
func (tc *TaskContext) UpdateStatus(state types.TaskState, message *types.Message) {
	event := types.TaskStatusUpdateEvent{
		ID: tc.taskID,
		Status: types.TaskStatus{
			State:     state,
			Message:   message,
			Timestamp: time.Now().UTC(),
		},
		Final: false,
	}

	if tc.emit == nil {
		tc.logger.Debug("no streaming subscription, dropping interim status update",
			zap.String("task_id", tc.taskID),
			zap.String("state", state.String()))
		return
	}
	tc.emit(event)
}

// YieldArtifact emits an artifact update to the live subscription. Artifacts
// that should survive the turn must also be returned in the TaskResult.
func (tc *TaskContext) YieldArtifact(artifact types.Artifact) {
	if tc.emit == nil {
		tc.logger.Debug("no streaming subscription, dropping artifact update",
			zap.String("task_id", tc.taskID))
		return
	}
	tc.emit(types.TaskArtifactUpdateEvent{
		ID:       tc.taskID,
		Artifact: artifact,
	})
}

// TaskResult is what a handler turn commits: the final status of the turn and
// the artifact list that replaces the task's artifacts wholesale.
type TaskResult struct {
	Status    types.TaskStatus
	Artifacts []types.Artifact
}

// NewTaskResult builds a result with the given state and optional message
func NewTaskResult(state types.TaskState, message *types.Message, artifacts ...types.Artifact) *TaskResult {
	return &TaskResult{
		Status: types.TaskStatus{
			State:     state,
			Message:   message,
			Timestamp: time.Now().UTC(),
		},
		Artifacts: artifacts,
	}
}

// NewCompletedResult builds a completed result
func NewCompletedResult(message *types.Message, artifacts ...types.Artifact) *TaskResult {
	return NewTaskResult(types.TaskStateCompleted, message, artifacts...)
}

// NewFailedResult builds a failed result with an explanatory message
func NewFailedResult(message *types.Message) *TaskResult {
	return NewTaskResult(types.TaskStateFailed, message)
}

// NewInputRequiredResult builds an input-required result, pausing the task
// until the client sends a follow-up message
func NewInputRequiredResult(message *types.Message) *TaskResult {
	return NewTaskResult(types.TaskStateInputRequired, message)
}
