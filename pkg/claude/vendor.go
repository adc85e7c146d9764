// Package claude runs the Claude CLI as a coding-agent subprocess and
// normalizes its stream-json output into conversation entries. The
// executor spawns the agent (fresh or resumed), its log processor
// consumes the raw stdout stream from a MsgStore and republishes
// normalized entries as JSON-patch messages on the same store.
package claude

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Vendor message type discriminants.
const (
	typeSystem     = "system"
	typeAssistant  = "assistant"
	typeUser       = "user"
	typeToolUse    = "tool_use"
	typeToolResult = "tool_result"
	typeResult     = "result"
)

// errNoDiscriminant marks JSON lines without a "type" field; the caller
// downgrades them to raw output like any other unparseable line.
var errNoDiscriminant = errors.New("vendor message has no type field")

// VendorMessage is one parsed line of Claude's stream-json output. Type
// holds the discriminant; unrecognized discriminants are preserved so the
// processor can emit its catch-all entry. Raw is the original line.
type VendorMessage struct {
	Type      string
	Subtype   string
	SessionID string
	Model     string
	Message   *Message
	ToolName  string
	Input     json.RawMessage
	Raw       json.RawMessage
}

// Message is the inner message of assistant/user vendor messages.
type Message struct {
	Role    string        `json:"role"`
	Model   string        `json:"model"`
	Content []ContentItem `json:"content"`
}

// ContentItem is one element of a message's content array. Type selects
// the populated fields: text, thinking, tool_use (ID/Name/Input) or
// tool_result (ToolUseID/Content/IsError).
type ContentItem struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   *bool           `json:"is_error,omitempty"`
}

// Content item discriminants.
const (
	itemText       = "text"
	itemThinking   = "thinking"
	itemToolUse    = "tool_use"
	itemToolResult = "tool_result"
)

type rawVendorMessage struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	SessionID string          `json:"session_id"`
	Model     string          `json:"model"`
	Message   *Message        `json:"message"`
	ToolName  string          `json:"tool_name"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

// ParseVendorLine parses one trimmed stdout line into a VendorMessage.
// It fails for non-JSON input and for JSON without a type discriminant;
// the caller treats failures as raw output.
func ParseVendorLine(line string) (*VendorMessage, error) {
	var raw rawVendorMessage
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("parse vendor line: %w", err)
	}
	if raw.Type == "" {
		return nil, errNoDiscriminant
	}

	msg := &VendorMessage{
		Type:      raw.Type,
		Subtype:   raw.Subtype,
		SessionID: raw.SessionID,
		Model:     raw.Model,
		Message:   raw.Message,
		Input:     raw.Input,
		Raw:       json.RawMessage(line),
	}

	switch raw.Type {
	case typeAssistant, typeUser:
		// A missing inner message makes the line unusable as a
		// conversation event.
		if raw.Message == nil {
			return nil, fmt.Errorf("%s message without message body", raw.Type)
		}
	case typeToolUse:
		// Top-level tool_use carries the tool name either as the tagged
		// payload ("name" + "input") or the legacy "tool_name" field.
		msg.ToolName = raw.Name
		if msg.ToolName == "" {
			msg.ToolName = raw.ToolName
		}
	}
	return msg, nil
}

// ExtractSessionID returns the session identifier carried by this
// message, if any. Terminal result messages never carry one.
func (m *VendorMessage) ExtractSessionID() (string, bool) {
	switch m.Type {
	case typeSystem, typeAssistant, typeUser, typeToolUse, typeToolResult:
		return m.SessionID, m.SessionID != ""
	default:
		return "", false
	}
}

// Known reports whether the type discriminant is part of the vendor
// grammar. Unknown messages produce a catch-all system entry.
func (m *VendorMessage) Known() bool {
	switch m.Type {
	case typeSystem, typeAssistant, typeUser, typeToolUse, typeToolResult, typeResult:
		return true
	default:
		return false
	}
}
