package types

import (
	"encoding/json"
	"fmt"
)

// Part type discriminator values
const (
	PartTypeText = "text"
	PartTypeFile = "file"
	PartTypeData = "data"
)

// Part is the closed union of message content variants. The wire form carries
// a "type" discriminator: "text", "file" or "data". Concrete variants are
// TextPart, FilePart and DataPart; no other implementations exist.
type Part interface {
	PartType() string
	isPart()
}

// TextPart carries plain text content.
type TextPart struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (TextPart) PartType() string { return PartTypeText }
func (TextPart) isPart()          {}

// FileContent carries a file either inline as base64 bytes or by URI.
// Exactly one of Bytes and URI should be set.
type FileContent struct {
	Name     *string `json:"name,omitempty"`
	MimeType *string `json:"mimeType,omitempty"`
	Bytes    *string `json:"bytes,omitempty"`
	URI      *string `json:"uri,omitempty"`
}

// FilePart carries file content.
type FilePart struct {
	File     FileContent    `json:"file"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (FilePart) PartType() string { return PartTypeFile }
func (FilePart) isPart()          {}

// DataPart carries arbitrary structured data.
type DataPart struct {
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (DataPart) PartType() string { return PartTypeData }
func (DataPart) isPart()          {}

// MarshalJSON emits the text part with its "type" discriminator
func (p TextPart) MarshalJSON() ([]byte, error) {
	type alias TextPart
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: PartTypeText, alias: alias(p)})
}

// MarshalJSON emits the file part with its "type" discriminator
func (p FilePart) MarshalJSON() ([]byte, error) {
	type alias FilePart
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: PartTypeFile, alias: alias(p)})
}

// MarshalJSON emits the data part with its "type" discriminator
func (p DataPart) MarshalJSON() ([]byte, error) {
	type alias DataPart
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: PartTypeData, alias: alias(p)})
}

// UnmarshalPart unmarshals a single Part, dispatching on the "type" field.
func UnmarshalPart(data []byte) (Part, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to unmarshal part: %w", err)
	}

	switch probe.Type {
	case PartTypeText:
		var part TextPart
		if err := json.Unmarshal(data, &part); err != nil {
			return nil, fmt.Errorf("failed to unmarshal text part: %w", err)
		}
		return part, nil
	case PartTypeFile:
		var part FilePart
		if err := json.Unmarshal(data, &part); err != nil {
			return nil, fmt.Errorf("failed to unmarshal file part: %w", err)
		}
		return part, nil
	case PartTypeData:
		var part DataPart
		if err := json.Unmarshal(data, &part); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data part: %w", err)
		}
		return part, nil
	default:
		return nil, fmt.Errorf("unknown part type: %q", probe.Type)
	}
}

// UnmarshalParts unmarshals a slice of Parts with proper type handling
func UnmarshalParts(data []byte) ([]Part, error) {
	var rawParts []json.RawMessage
	if err := json.Unmarshal(data, &rawParts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw parts: %w", err)
	}

	parts := make([]Part, len(rawParts))
	for i, rawPart := range rawParts {
		part, err := UnmarshalPart(rawPart)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal part at index %d: %w", i, err)
		}
		parts[i] = part
	}

	return parts, nil
}

// messageUnmarshalHelper is a wrapper for Message that ensures Parts are properly unmarshaled
type messageUnmarshalHelper struct {
	Role     string            `json:"role"`
	Parts    []json.RawMessage `json:"parts"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

// UnmarshalJSON custom unmarshaler for Message that properly handles typed Parts
func (m *Message) UnmarshalJSON(data []byte) error {
	var helper messageUnmarshalHelper
	if err := json.Unmarshal(data, &helper); err != nil {
		return err
	}

	parts := make([]Part, len(helper.Parts))
	for i, rawPart := range helper.Parts {
		part, err := UnmarshalPart(rawPart)
		if err != nil {
			return fmt.Errorf("failed to unmarshal part at index %d: %w", i, err)
		}
		parts[i] = part
	}

	m.Role = helper.Role
	m.Parts = parts
	m.Metadata = helper.Metadata

	return nil
}

// artifactUnmarshalHelper is a wrapper for Artifact that ensures Parts are properly unmarshaled
type artifactUnmarshalHelper struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Parts       []json.RawMessage `json:"parts"`
	Index       int               `json:"index"`
	Append      bool              `json:"append,omitempty"`
	LastChunk   *bool             `json:"lastChunk,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// UnmarshalJSON custom unmarshaler for Artifact that properly handles typed Parts
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var helper artifactUnmarshalHelper
	if err := json.Unmarshal(data, &helper); err != nil {
		return err
	}

	parts := make([]Part, len(helper.Parts))
	for i, rawPart := range helper.Parts {
		part, err := UnmarshalPart(rawPart)
		if err != nil {
			return fmt.Errorf("failed to unmarshal part at index %d: %w", i, err)
		}
		parts[i] = part
	}

	a.Name = helper.Name
	a.Description = helper.Description
	a.Parts = parts
	a.Index = helper.Index
	a.Append = helper.Append
	a.LastChunk = helper.LastChunk
	a.Metadata = helper.Metadata

	return nil
}

// CreateTextPart creates a text Part
func CreateTextPart(text string, metadata ...map[string]any) TextPart {
	part := TextPart{Text: text}
	if len(metadata) > 0 {
		part.Metadata = metadata[0]
	}
	return part
}

// CreateFilePart creates a file Part
func CreateFilePart(file FileContent, metadata ...map[string]any) FilePart {
	part := FilePart{File: file}
	if len(metadata) > 0 {
		part.Metadata = metadata[0]
	}
	return part
}

// CreateDataPart creates a data Part
func CreateDataPart(data map[string]any, metadata ...map[string]any) DataPart {
	part := DataPart{Data: data}
	if len(metadata) > 0 {
		part.Metadata = metadata[0]
	}
	return part
}
