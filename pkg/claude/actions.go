package claude

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"conduit/pkg/logs"
	"conduit/pkg/textdiff"
)

// Tool input schemas, one per known Claude tool.
type (
	readInput struct {
		FilePath string `json:"file_path"`
	}
	editInput struct {
		FilePath  string  `json:"file_path"`
		OldString *string `json:"old_string"`
		NewString *string `json:"new_string"`
	}
	editItem struct {
		OldString *string `json:"old_string"`
		NewString *string `json:"new_string"`
	}
	multiEditInput struct {
		FilePath string     `json:"file_path"`
		Edits    []editItem `json:"edits"`
	}
	writeInput struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	bashInput struct {
		Command string `json:"command"`
	}
	grepInput struct {
		Pattern string `json:"pattern"`
	}
	globInput struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	lsInput struct {
		Path string `json:"path"`
	}
	webFetchInput struct {
		URL string `json:"url"`
	}
	webSearchInput struct {
		Query string `json:"query"`
	}
	taskInput struct {
		Description string `json:"description"`
		Prompt      string `json:"prompt"`
	}
	exitPlanInput struct {
		Plan string `json:"plan"`
	}
	todoWriteInput struct {
		Todos []todoInputItem `json:"todos"`
	}
	todoInputItem struct {
		Content  string `json:"content"`
		Status   string `json:"status"`
		Priority string `json:"priority"`
	}
	notebookEditInput struct {
		NotebookPath string `json:"notebook_path"`
	}
)

// relPath makes p relative to the worktree root. Already-relative paths
// pass through unchanged; paths outside the worktree stay absolute.
func relPath(p, worktree string) string {
	if p == "" || !filepath.IsAbs(p) {
		return p
	}
	if worktree == "" {
		return p
	}
	rel, err := filepath.Rel(worktree, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return p
	}
	if rel == "." {
		return ""
	}
	return rel
}

// mapToolAction classifies a tool invocation into an action and its
// concise display content. Inputs that do not match the tool's schema
// fall through to the catch-all action, like an unrecognized tool.
func mapToolAction(name string, input json.RawMessage, worktree string) (logs.ActionType, string) {
	unmarshal := func(v any) bool {
		if len(input) == 0 {
			return false
		}
		return json.Unmarshal(input, v) == nil
	}

	switch name {
	case "Read":
		var in readInput
		if unmarshal(&in) && in.FilePath != "" {
			path := relPath(in.FilePath, worktree)
			return logs.ActionType{Kind: logs.ActionFileRead, Path: path}, fmt.Sprintf("`%s`", path)
		}
	case "Edit":
		var in editInput
		if unmarshal(&in) && in.FilePath != "" {
			path := relPath(in.FilePath, worktree)
			var changes []logs.FileChange
			if in.OldString != nil || in.NewString != nil {
				diff := textdiff.Unified(in.FilePath, deref(in.OldString), deref(in.NewString))
				changes = []logs.FileChange{logs.EditChange(diff, false)}
			}
			return logs.ActionType{Kind: logs.ActionFileEdit, Path: path, Changes: changes}, fmt.Sprintf("`%s`", path)
		}
	case "MultiEdit":
		var in multiEditInput
		if unmarshal(&in) && in.FilePath != "" {
			path := relPath(in.FilePath, worktree)
			var hunks []string
			for _, e := range in.Edits {
				if e.OldString != nil || e.NewString != nil {
					hunks = append(hunks, textdiff.Hunk(deref(e.OldString), deref(e.NewString)))
				}
			}
			changes := []logs.FileChange{logs.EditChange(textdiff.ConcatHunks(in.FilePath, hunks), false)}
			return logs.ActionType{Kind: logs.ActionFileEdit, Path: path, Changes: changes}, fmt.Sprintf("`%s`", path)
		}
	case "Write":
		var in writeInput
		if unmarshal(&in) && in.FilePath != "" {
			path := relPath(in.FilePath, worktree)
			changes := []logs.FileChange{logs.WriteChange(in.Content)}
			return logs.ActionType{Kind: logs.ActionFileEdit, Path: path, Changes: changes}, fmt.Sprintf("`%s`", path)
		}
	case "Bash":
		var in bashInput
		if unmarshal(&in) && in.Command != "" {
			return logs.ActionType{Kind: logs.ActionCommandRun, Command: in.Command}, fmt.Sprintf("`%s`", in.Command)
		}
	case "Grep":
		var in grepInput
		if unmarshal(&in) && in.Pattern != "" {
			return logs.ActionType{Kind: logs.ActionSearch, Query: in.Pattern}, fmt.Sprintf("`%s`", in.Pattern)
		}
	case "Glob":
		var in globInput
		if unmarshal(&in) && in.Pattern != "" {
			return logs.ActionType{Kind: logs.ActionSearch, Query: in.Pattern}, fmt.Sprintf("`%s`", in.Pattern)
		}
	case "LS":
		var in lsInput
		if unmarshal(&in) && in.Path != "" {
			action := logs.ActionType{Kind: logs.ActionOther, Description: "List directory"}
			rel := relPath(in.Path, worktree)
			if rel == "" {
				return action, "List directory"
			}
			return action, fmt.Sprintf("List directory: `%s`", rel)
		}
	case "WebFetch":
		var in webFetchInput
		if unmarshal(&in) && in.URL != "" {
			return logs.ActionType{Kind: logs.ActionWebFetch, URL: in.URL}, fmt.Sprintf("`%s`", in.URL)
		}
	case "WebSearch":
		var in webSearchInput
		if unmarshal(&in) && in.Query != "" {
			return logs.ActionType{Kind: logs.ActionWebFetch, URL: in.Query}, fmt.Sprintf("`%s`", in.Query)
		}
	case "Task":
		var in taskInput
		if unmarshal(&in) && (in.Description != "" || in.Prompt != "") {
			desc := in.Description
			if desc == "" {
				desc = in.Prompt
			}
			return logs.ActionType{Kind: logs.ActionTaskCreate, Description: desc}, desc
		}
	case "ExitPlanMode":
		var in exitPlanInput
		if unmarshal(&in) && in.Plan != "" {
			return logs.ActionType{Kind: logs.ActionPlanPresentation, Plan: in.Plan}, in.Plan
		}
	case "TodoWrite":
		var in todoWriteInput
		if unmarshal(&in) {
			todos := make([]logs.TodoItem, 0, len(in.Todos))
			for _, t := range in.Todos {
				todos = append(todos, logs.TodoItem{Content: t.Content, Status: t.Status, Priority: t.Priority})
			}
			action := logs.ActionType{Kind: logs.ActionTodoManagement, Todos: todos, Operation: "write"}
			return action, "TODO list updated"
		}
	case "NotebookEdit":
		var in notebookEditInput
		if unmarshal(&in) && in.NotebookPath != "" {
			path := relPath(in.NotebookPath, worktree)
			return logs.ActionType{Kind: logs.ActionFileEdit, Path: path}, fmt.Sprintf("`%s`", path)
		}
	}

	displayName := name
	if displayName == "" {
		displayName = "unknown"
	}
	action := logs.ActionType{Kind: logs.ActionOther, Description: fmt.Sprintf("Tool: %s", displayName)}
	return action, displayName
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
