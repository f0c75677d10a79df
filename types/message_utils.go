package types

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// NewUserMessage creates a user message from plain text
func NewUserMessage(text string, metadata map[string]any) Message {
	return Message{
		Role:     RoleUser,
		Parts:    []Part{CreateTextPart(text)},
		Metadata: metadata,
	}
}

// NewAgentMessage creates an agent message from the given parts
func NewAgentMessage(parts []Part) Message {
	return Message{
		Role:  RoleAgent,
		Parts: parts,
	}
}

// NewAgentTextMessage creates an agent message from plain text
func NewAgentTextMessage(text string) *Message {
	return &Message{
		Role:  RoleAgent,
		Parts: []Part{CreateTextPart(text)},
	}
}

// NewSkillMessage creates a user message routed to a specific skill via the
// skill_id metadata key.
func NewSkillMessage(skillID string, parts []Part) Message {
	return Message{
		Role:     RoleUser,
		Parts:    parts,
		Metadata: map[string]any{"skill_id": skillID},
	}
}

// NewTaskStatusEvent creates a CloudEvent carrying a task status transition,
// used for push notification delivery of terminal states.
func NewTaskStatusEvent(agentName string, event TaskStatusUpdateEvent) cloudevents.Event {
	ce := cloudevents.NewEvent()
	ce.SetID(fmt.Sprintf("task-status-%s-%s", event.ID, event.Status.State))
	ce.SetType("a2a.task.status")
	ce.SetSource(fmt.Sprintf("a2a/%s", agentName))
	ce.SetTime(time.Now())
	ce.SetExtension("taskid", event.ID)
	ce.SetExtension("taskstate", event.Status.State.String())
	_ = ce.SetData(cloudevents.ApplicationJSON, event)

	return ce
}

// NewTaskArtifactEvent creates a CloudEvent carrying a task artifact
func NewTaskArtifactEvent(agentName string, event TaskArtifactUpdateEvent) cloudevents.Event {
	ce := cloudevents.NewEvent()
	ce.SetID(fmt.Sprintf("task-artifact-%s-%d", event.ID, event.Artifact.Index))
	ce.SetType("a2a.task.artifact")
	ce.SetSource(fmt.Sprintf("a2a/%s", agentName))
	ce.SetTime(time.Now())
	ce.SetExtension("taskid", event.ID)
	_ = ce.SetData(cloudevents.ApplicationJSON, event)

	return ce
}
