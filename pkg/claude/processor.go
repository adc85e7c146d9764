package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"conduit/pkg/lines"
	"conduit/pkg/logmsg"
	"conduit/pkg/logs"
	"conduit/pkg/msgstore"
)

// Transport noise emitted by the claude-code-router wrapper; discarded
// before JSON parsing.
const (
	noiseServiceStarting = "Service not running, starting service"
	noiseServiceStopped  = "claude code router service has been successfully stopped"
)

// LogProcessor turns one executor run's raw stdout stream into normalized
// conversation entries. It holds the per-run state: whether a session ID
// was already captured (first wins) and the model name from the first
// assistant message that carries one.
type LogProcessor struct {
	store     *msgstore.Store
	provider  *msgstore.EntryIndexProvider
	worktree  string
	log       *zap.Logger
	modelName string
	sessionID bool
}

// NewLogProcessor creates a processor emitting into store with patch
// indices from provider. Tool paths are relativized against worktree.
func NewLogProcessor(store *msgstore.Store, provider *msgstore.EntryIndexProvider, worktree string, logger *zap.Logger) *LogProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogProcessor{store: store, provider: provider, worktree: worktree, log: logger}
}

// Run consumes the store's fused stream on a new goroutine: stdout chunks
// are framed into lines, parsed as vendor JSON, and republished as entry
// patches. The goroutine stops at the Finished marker (flushing any
// unterminated remainder as raw output), on store close, or when ctx is
// done.
func (p *LogProcessor) Run(ctx context.Context) {
	go func() {
		deliveries := p.store.HistoryPlusStream(ctx)
		var framer lines.Framer

	stream:
		for d := range deliveries {
			switch d.Msg.Kind {
			case logmsg.KindStdout:
				for _, line := range framer.Push(d.Msg.Text) {
					p.handleLine(line)
				}
			case logmsg.KindFinished:
				break stream
			}
		}

		if rest, ok := framer.Flush(); ok && strings.TrimSpace(rest) != "" {
			p.pushEntry(logs.NormalizedEntry{
				EntryType: logs.SystemMessage(),
				Content:   fmt.Sprintf("Raw output: %s", strings.TrimSpace(rest)),
			})
		}
	}()
}

// handleLine implements the per-line algorithm: trim, drop noise, parse,
// capture the session ID once, map to entries, emit patches. Parse
// failures downgrade to a raw-output entry; the processor never stops on
// bad input.
func (p *LogProcessor) handleLine(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	if strings.HasPrefix(trimmed, noiseServiceStarting) || strings.Contains(trimmed, noiseServiceStopped) {
		return
	}

	msg, err := ParseVendorLine(trimmed)
	if err != nil {
		p.pushEntry(logs.NormalizedEntry{
			EntryType: logs.SystemMessage(),
			Content:   fmt.Sprintf("Raw output: %s", trimmed),
		})
		return
	}

	if !p.sessionID {
		if id, ok := msg.ExtractSessionID(); ok {
			p.store.PushSessionID(id)
			p.sessionID = true
		}
	}

	for _, entry := range p.normalize(msg) {
		p.pushEntry(entry)
	}
}

// normalize maps one vendor message to zero or more entries, preserving
// the source content order.
func (p *LogProcessor) normalize(msg *VendorMessage) []logs.NormalizedEntry {
	switch msg.Type {
	case typeSystem:
		switch msg.Subtype {
		case "init":
			// The model in an init message may be a router placeholder;
			// the system-initialized entry waits for the first assistant
			// message that names a model.
			return nil
		case "":
			return []logs.NormalizedEntry{{
				EntryType: logs.SystemMessage(),
				Content:   "System message",
				Metadata:  msg.Raw,
			}}
		default:
			return []logs.NormalizedEntry{{
				EntryType: logs.SystemMessage(),
				Content:   fmt.Sprintf("System: %s", msg.Subtype),
				Metadata:  msg.Raw,
			}}
		}

	case typeAssistant:
		var entries []logs.NormalizedEntry
		if p.modelName == "" && msg.Message.Model != "" {
			p.modelName = msg.Message.Model
			entries = append(entries, logs.NormalizedEntry{
				EntryType: logs.SystemMessage(),
				Content:   fmt.Sprintf("System initialized with model: %s", msg.Message.Model),
			})
		}
		for i := range msg.Message.Content {
			if entry, ok := p.normalizeContentItem(&msg.Message.Content[i]); ok {
				entries = append(entries, entry)
			}
		}
		return entries

	case typeUser:
		return nil

	case typeToolUse:
		action, content := mapToolAction(msg.ToolName, msg.Input, p.worktree)
		name := msg.ToolName
		if name == "" {
			name = "unknown"
		}
		return []logs.NormalizedEntry{{
			EntryType: logs.ToolUse(name, action),
			Content:   content,
			Metadata:  msg.Raw,
		}}

	case typeToolResult, typeResult:
		return nil

	default:
		return []logs.NormalizedEntry{{
			EntryType: logs.SystemMessage(),
			Content:   "Unrecognized JSON message from Claude",
		}}
	}
}

// normalizeContentItem maps one assistant content item. Tool results are
// skipped: the entry model has no representation for them yet.
func (p *LogProcessor) normalizeContentItem(item *ContentItem) (logs.NormalizedEntry, bool) {
	switch item.Type {
	case itemText:
		return logs.NormalizedEntry{
			EntryType: logs.AssistantMessage(),
			Content:   item.Text,
			Metadata:  itemMetadata(item),
		}, true
	case itemThinking:
		return logs.NormalizedEntry{
			EntryType: logs.Thinking(),
			Content:   item.Thinking,
			Metadata:  itemMetadata(item),
		}, true
	case itemToolUse:
		action, content := mapToolAction(item.Name, item.Input, p.worktree)
		return logs.NormalizedEntry{
			EntryType: logs.ToolUse(item.Name, action),
			Content:   content,
			Metadata:  itemMetadata(item),
		}, true
	default:
		return logs.NormalizedEntry{}, false
	}
}

// itemMetadata re-serializes a content item so the entry's metadata
// preserves the vendor payload for just that item.
func itemMetadata(item *ContentItem) json.RawMessage {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil
	}
	return raw
}

func (p *LogProcessor) pushEntry(entry logs.NormalizedEntry) {
	raw, err := logs.AddEntry(p.provider.Next(), entry).Raw()
	if err != nil {
		p.log.Error("drop conversation entry", zap.Error(err))
		return
	}
	p.store.PushPatch(raw)
}
