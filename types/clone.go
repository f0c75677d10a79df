package types

import "encoding/json"

// Clone returns a deep copy of the task. Every task handed out across the API
// boundary is cloned first so callers can never mutate registry state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	clone := &Task{
		ID:       t.ID,
		Status:   t.Status.Clone(),
		Metadata: cloneMetadata(t.Metadata),
	}
	if t.SessionID != nil {
		sessionID := *t.SessionID
		clone.SessionID = &sessionID
	}
	if t.History != nil {
		clone.History = make([]Message, len(t.History))
		for i, msg := range t.History {
			clone.History[i] = msg.Clone()
		}
	}
	if t.Artifacts != nil {
		clone.Artifacts = make([]Artifact, len(t.Artifacts))
		for i, artifact := range t.Artifacts {
			clone.Artifacts[i] = artifact.Clone()
		}
	}

	return clone
}

// Clone returns a deep copy of the status
func (s TaskStatus) Clone() TaskStatus {
	clone := TaskStatus{
		State:     s.State,
		Timestamp: s.Timestamp,
	}
	if s.Message != nil {
		msg := s.Message.Clone()
		clone.Message = &msg
	}
	return clone
}

// Clone returns a deep copy of the message
func (m Message) Clone() Message {
	return Message{
		Role:     m.Role,
		Parts:    cloneParts(m.Parts),
		Metadata: cloneMetadata(m.Metadata),
	}
}

// Clone returns a deep copy of the artifact
func (a Artifact) Clone() Artifact {
	clone := Artifact{
		Parts:    cloneParts(a.Parts),
		Index:    a.Index,
		Append:   a.Append,
		Metadata: cloneMetadata(a.Metadata),
	}
	if a.Name != nil {
		name := *a.Name
		clone.Name = &name
	}
	if a.Description != nil {
		description := *a.Description
		clone.Description = &description
	}
	if a.LastChunk != nil {
		lastChunk := *a.LastChunk
		clone.LastChunk = &lastChunk
	}
	return clone
}

func cloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	cloned := make([]Part, len(parts))
	for i, part := range parts {
		cloned[i] = clonePart(part)
	}
	return cloned
}

func clonePart(part Part) Part {
	switch p := part.(type) {
	case TextPart:
		return TextPart{Text: p.Text, Metadata: cloneMetadata(p.Metadata)}
	case FilePart:
		clone := FilePart{Metadata: cloneMetadata(p.Metadata)}
		if p.File.Name != nil {
			name := *p.File.Name
			clone.File.Name = &name
		}
		if p.File.MimeType != nil {
			mimeType := *p.File.MimeType
			clone.File.MimeType = &mimeType
		}
		if p.File.Bytes != nil {
			bytes := *p.File.Bytes
			clone.File.Bytes = &bytes
		}
		if p.File.URI != nil {
			uri := *p.File.URI
			clone.File.URI = &uri
		}
		return clone
	case DataPart:
		return DataPart{Data: cloneAnyMap(p.Data), Metadata: cloneMetadata(p.Metadata)}
	default:
		return part
	}
}

func cloneMetadata(metadata map[string]any) map[string]any {
	return cloneAnyMap(metadata)
}

// cloneAnyMap deep-copies via a JSON round trip. Metadata maps hold only
// JSON-decoded values, so the round trip is lossless.
func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		cloned := make(map[string]any, len(m))
		for k, v := range m {
			cloned[k] = v
		}
		return cloned
	}
	var cloned map[string]any
	if err := json.Unmarshal(raw, &cloned); err != nil {
		cloned = make(map[string]any, len(m))
		for k, v := range m {
			cloned[k] = v
		}
	}
	return cloned
}
