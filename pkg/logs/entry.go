// Package logs defines the normalized conversation entry — the unit of
// agent conversation history shared by every executor — and the JSON
// patch format that carries entries to subscribers.
package logs

import "encoding/json"

// Entry kind discriminants for NormalizedEntryType.
const (
	KindSystemMessage    = "system_message"
	KindAssistantMessage = "assistant_message"
	KindThinking         = "thinking"
	KindToolUse          = "tool_use"
	KindErrorOutput      = "error_output"
)

// Action kind discriminants for ActionType.
const (
	ActionFileRead         = "file_read"
	ActionFileEdit         = "file_edit"
	ActionCommandRun       = "command_run"
	ActionSearch           = "search"
	ActionWebFetch         = "web_fetch"
	ActionTaskCreate       = "task_create"
	ActionPlanPresentation = "plan_presentation"
	ActionTodoManagement   = "todo_management"
	ActionOther            = "other"
)

// File change kinds.
const (
	ChangeEdit  = "edit"
	ChangeWrite = "write"
)

// NormalizedEntry is one item of a conversation, rendered client-side as
// entries of a reconstructable transcript. Metadata preserves the original
// vendor payload opaquely.
type NormalizedEntry struct {
	Timestamp *string             `json:"timestamp"`
	EntryType NormalizedEntryType `json:"entry_type"`
	Content   string              `json:"content"`
	Metadata  json.RawMessage     `json:"metadata,omitempty"`
}

// NormalizedEntryType discriminates entry variants. ToolName and Action
// are populated only for tool_use entries.
type NormalizedEntryType struct {
	Kind     string      `json:"type"`
	ToolName string      `json:"tool_name,omitempty"`
	Action   *ActionType `json:"action_type,omitempty"`
}

// SystemMessage is the entry type for system notices.
func SystemMessage() NormalizedEntryType { return NormalizedEntryType{Kind: KindSystemMessage} }

// AssistantMessage is the entry type for assistant text output.
func AssistantMessage() NormalizedEntryType { return NormalizedEntryType{Kind: KindAssistantMessage} }

// Thinking is the entry type for assistant reasoning output.
func Thinking() NormalizedEntryType { return NormalizedEntryType{Kind: KindThinking} }

// ErrorOutput is the entry type for raw stderr lines.
func ErrorOutput() NormalizedEntryType { return NormalizedEntryType{Kind: KindErrorOutput} }

// ToolUse is the entry type for a tool invocation with its classified
// action.
func ToolUse(toolName string, action ActionType) NormalizedEntryType {
	return NormalizedEntryType{Kind: KindToolUse, ToolName: toolName, Action: &action}
}

// ActionType classifies what a tool invocation does. Kind selects which
// payload fields are meaningful.
type ActionType struct {
	Kind        string       `json:"action"`
	Path        string       `json:"path,omitempty"`
	Changes     []FileChange `json:"changes,omitempty"`
	Command     string       `json:"command,omitempty"`
	Query       string       `json:"query,omitempty"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
	Plan        string       `json:"plan,omitempty"`
	Todos       []TodoItem   `json:"todos,omitempty"`
	Operation   string       `json:"operation,omitempty"`
}

// FileChange is one modification within a file_edit action: either a
// unified diff or a whole-file write.
type FileChange struct {
	Kind           string `json:"type"`
	UnifiedDiff    string `json:"unified_diff,omitempty"`
	HasLineNumbers bool   `json:"has_line_numbers,omitempty"`
	Content        string `json:"content,omitempty"`
}

// EditChange builds a diff-based FileChange.
func EditChange(unifiedDiff string, hasLineNumbers bool) FileChange {
	return FileChange{Kind: ChangeEdit, UnifiedDiff: unifiedDiff, HasLineNumbers: hasLineNumbers}
}

// WriteChange builds a whole-file-write FileChange.
func WriteChange(content string) FileChange {
	return FileChange{Kind: ChangeWrite, Content: content}
}

// TodoItem is one item of a TODO management action.
type TodoItem struct {
	Content  string `json:"content"`
	Status   string `json:"status"`
	Priority string `json:"priority,omitempty"`
}
