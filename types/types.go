package types

import "time"

// TaskState represents the lifecycle state of an A2A task.
// Based on the A2A specification task state machine.
type TaskState string

// TaskState enum values
const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateUnknown       TaskState = "unknown"
)

// String returns the string representation of the TaskState
func (s TaskState) String() string {
	return string(s)
}

// IsValid checks if the TaskState is one of the supported values
func (s TaskState) IsValid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateUnknown:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state is final. Terminal tasks accept no
// further processing, and cancellation of a terminal task is a no-op.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed:
		return true
	default:
		return false
	}
}

// CanReceiveMessage reports whether a task in this state may accept a new
// inbound message and be moved back to working.
func (s TaskState) CanReceiveMessage() bool {
	switch s {
	case TaskStateInputRequired, TaskStateCompleted, TaskStateWorking,
		TaskStateSubmitted, TaskStateCanceled:
		return true
	default:
		return false
	}
}

// Message roles
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Health status constants
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusDegraded  = "degraded"
	HealthStatusUnhealthy = "unhealthy"
)

// Message is one unit of communication between client and agent. Messages are
// immutable once appended to a task's history.
type Message struct {
	Role     string         `json:"role"`
	Parts    []Part         `json:"parts"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TextParts returns the text content of every text part in order.
func (m *Message) TextParts() []string {
	var texts []string
	for _, part := range m.Parts {
		if tp, ok := part.(TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return texts
}

// FileParts returns every file part in order.
func (m *Message) FileParts() []FilePart {
	var files []FilePart
	for _, part := range m.Parts {
		if fp, ok := part.(FilePart); ok {
			files = append(files, fp)
		}
	}
	return files
}

// Artifact represents a task output produced by a handler. Index and Append
// allow chunked delivery; the server carries them through unchanged and
// replaces the full artifact list on every commit.
type Artifact struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Index       int            `json:"index"`
	Append      bool           `json:"append,omitempty"`
	LastChunk   *bool          `json:"lastChunk,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TaskStatus is a container for the state of a task. Timestamp is refreshed
// on every state transition.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is the core unit of A2A work: a current status plus the accumulated
// conversation history and the artifacts of the latest handler turn.
type Task struct {
	ID        string         `json:"id"`
	SessionID *string        `json:"sessionId,omitempty"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskSendParams carries the parameters of tasks/send and tasks/sendSubscribe.
type TaskSendParams struct {
	ID                  string         `json:"id"`
	SessionID           *string        `json:"sessionId,omitempty"`
	Message             Message        `json:"message"`
	AcceptedOutputModes []string       `json:"acceptedOutputModes,omitempty"`
	HistoryLength       *int           `json:"historyLength,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// SkillID returns the skill routing hint carried in the message metadata,
// or empty when the message carries none.
func (p *TaskSendParams) SkillID() string {
	if p.Message.Metadata == nil {
		return ""
	}
	if skillID, ok := p.Message.Metadata["skill_id"].(string); ok {
		return skillID
	}
	return ""
}

// TaskQueryParams carries the parameters of tasks/get.
type TaskQueryParams struct {
	ID            string `json:"id"`
	HistoryLength int    `json:"historyLength,omitempty"`
}

// TaskIDParams carries the parameters of tasks/cancel.
type TaskIDParams struct {
	ID string `json:"id"`
}

// TaskUpdateEvent is the closed set of events delivered over a streaming
// subscription. Concrete event types implement the unexported marker.
type TaskUpdateEvent interface{ isTaskUpdateEvent() }

// TaskStatusUpdateEvent notifies the client of a change in a task's status.
// The event carrying Final=true terminates the subscription.
type TaskStatusUpdateEvent struct {
	ID       string         `json:"id"`
	Status   TaskStatus     `json:"status"`
	Final    bool           `json:"final"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (TaskStatusUpdateEvent) isTaskUpdateEvent() {}

// TaskArtifactUpdateEvent notifies the client of an artifact produced while
// the task is running.
type TaskArtifactUpdateEvent struct {
	ID       string         `json:"id"`
	Artifact Artifact       `json:"artifact"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (TaskArtifactUpdateEvent) isTaskUpdateEvent() {}

// AgentProvider represents the service provider of an agent.
type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url"`
}

// AgentCapabilities declares optional protocol capabilities of an agent.
type AgentCapabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// AgentAuthentication declares the authentication schemes an agent accepts.
type AgentAuthentication struct {
	Schemes     []string `json:"schemes"`
	Credentials *string  `json:"credentials,omitempty"`
}

// AgentSkill represents a distinct capability a handler registers to serve.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// AgentCard is the self-describing capability document an agent publishes at
// its well-known path. Clients cache it keyed by normalized base URL.
type AgentCard struct {
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	URL                string              `json:"url"`
	Provider           *AgentProvider      `json:"provider,omitempty"`
	Version            string              `json:"version"`
	DocumentationURL   *string             `json:"documentationUrl,omitempty"`
	Capabilities       AgentCapabilities   `json:"capabilities"`
	Authentication     AgentAuthentication `json:"authentication"`
	DefaultInputModes  []string            `json:"defaultInputModes"`
	DefaultOutputModes []string            `json:"defaultOutputModes"`
	Skills             []AgentSkill        `json:"skills"`
}
