package claude_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"conduit/pkg/claude"
	"conduit/pkg/logmsg"
	"conduit/pkg/logs"
	"conduit/pkg/msgstore"
)

// runProcessor feeds stdout chunks through a fresh store and processor,
// marks the stream finished, and returns the emitted patches in order.
func runProcessor(t *testing.T, worktree string, chunks ...string) []logs.Patch {
	t.Helper()

	s := msgstore.New()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := claude.NewLogProcessor(s, msgstore.StartFrom(s), worktree, nil)
	p.Run(ctx)

	for _, c := range chunks {
		s.PushStdout(c)
	}
	s.PushFinished()

	return awaitPatches(t, s, ctx)
}

// awaitPatches waits for the processor to drain: it polls history until
// the patch count is stable across a settle window.
func awaitPatches(t *testing.T, s *msgstore.Store, ctx context.Context) []logs.Patch {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	last, stable := -1, 0
	for time.Now().Before(deadline) {
		count := 0
		for _, m := range s.GetHistory() {
			if m.Kind == logmsg.KindJSONPatch {
				count++
			}
		}
		if count == last {
			stable++
			if stable >= 5 {
				break
			}
		} else {
			last, stable = count, 0
		}
		time.Sleep(10 * time.Millisecond)
	}

	var patches []logs.Patch
	for _, m := range s.GetHistory() {
		if m.Kind != logmsg.KindJSONPatch {
			continue
		}
		var p logs.Patch
		if err := json.Unmarshal(m.Patch, &p); err != nil {
			t.Fatalf("unmarshal patch: %v", err)
		}
		patches = append(patches, p)
	}
	return patches
}

// entryAt decodes the NormalizedEntry value of patch i.
func entryAt(t *testing.T, patches []logs.Patch, i int) logs.NormalizedEntry {
	t.Helper()
	if i >= len(patches) {
		t.Fatalf("want patch %d, have %d patches", i, len(patches))
	}
	raw, err := json.Marshal(patches[i][0].Value)
	if err != nil {
		t.Fatalf("re-marshal value: %v", err)
	}
	var e logs.NormalizedEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	return e
}

func TestAssistantMessageEmitsModelInitFirst(t *testing.T) {
	t.Parallel()

	line := `{"type":"assistant","message":{"role":"assistant","model":"claude-sonnet-4","content":[{"type":"text","text":"hello"}]}}` + "\n"
	patches := runProcessor(t, "", line)

	if len(patches) != 2 {
		t.Fatalf("patches = %d, want 2", len(patches))
	}
	first := entryAt(t, patches, 0)
	if first.EntryType.Kind != logs.KindSystemMessage {
		t.Fatalf("first entry kind = %q", first.EntryType.Kind)
	}
	if first.Content != "System initialized with model: claude-sonnet-4" {
		t.Fatalf("first entry content = %q", first.Content)
	}
	second := entryAt(t, patches, 1)
	if second.EntryType.Kind != logs.KindAssistantMessage || second.Content != "hello" {
		t.Fatalf("second entry = %+v", second)
	}
}

func TestModelInitEmittedOnce(t *testing.T) {
	t.Parallel()

	line := `{"type":"assistant","message":{"role":"assistant","model":"m1","content":[{"type":"text","text":"a"}]}}` + "\n"
	line2 := `{"type":"assistant","message":{"role":"assistant","model":"m2","content":[{"type":"text","text":"b"}]}}` + "\n"
	patches := runProcessor(t, "", line, line2)

	inits := 0
	for i := range patches {
		e := entryAt(t, patches, i)
		if strings.HasPrefix(e.Content, "System initialized with model:") {
			inits++
			if e.Content != "System initialized with model: m1" {
				t.Fatalf("init content = %q", e.Content)
			}
		}
	}
	if inits != 1 {
		t.Fatalf("model init emitted %d times, want 1", inits)
	}
}

func TestSessionIDFirstWins(t *testing.T) {
	t.Parallel()

	s := msgstore.New()
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	claude.NewLogProcessor(s, msgstore.StartFrom(s), "", nil).Run(ctx)

	s.PushStdout(`{"type":"system","subtype":"init","session_id":"first"}` + "\n")
	s.PushStdout(`{"type":"system","subtype":"init","session_id":"second"}` + "\n")
	s.PushFinished()
	awaitPatches(t, s, ctx)

	var ids []string
	for _, m := range s.GetHistory() {
		if m.Kind == logmsg.KindSessionID {
			ids = append(ids, m.Text)
		}
	}
	if len(ids) != 1 || ids[0] != "first" {
		t.Fatalf("session ids = %v, want [first]", ids)
	}
}

func TestMalformedLineBecomesRawOutput(t *testing.T) {
	t.Parallel()

	patches := runProcessor(t, "", "this is not json\n")
	if len(patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(patches))
	}
	e := entryAt(t, patches, 0)
	if e.EntryType.Kind != logs.KindSystemMessage {
		t.Fatalf("entry kind = %q", e.EntryType.Kind)
	}
	if e.Content != "Raw output: this is not json" {
		t.Fatalf("content = %q", e.Content)
	}
}

func TestNoiseLinesDiscarded(t *testing.T) {
	t.Parallel()

	patches := runProcessor(t, "",
		"Service not running, starting service...\n",
		"shutdown: claude code router service has been successfully stopped now\n",
	)
	if len(patches) != 0 {
		t.Fatalf("noise produced %d patches", len(patches))
	}
}

func TestSystemSubtypeEntries(t *testing.T) {
	t.Parallel()

	patches := runProcessor(t, "",
		`{"type":"system","subtype":"init","model":"router"}`+"\n",
		`{"type":"system","subtype":"compact"}`+"\n",
		`{"type":"system"}`+"\n",
	)
	if len(patches) != 2 {
		t.Fatalf("patches = %d, want 2", len(patches))
	}
	if e := entryAt(t, patches, 0); e.Content != "System: compact" {
		t.Fatalf("subtype entry content = %q", e.Content)
	}
	if e := entryAt(t, patches, 1); e.Content != "System message" {
		t.Fatalf("bare system entry content = %q", e.Content)
	}
}

func TestUserAndResultMessagesSkipped(t *testing.T) {
	t.Parallel()

	patches := runProcessor(t, "",
		`{"type":"user","message":{"role":"user","content":[{"type":"text","text":"hi"}]}}`+"\n",
		`{"type":"result","subtype":"success"}`+"\n",
	)
	if len(patches) != 0 {
		t.Fatalf("user/result messages produced %d patches", len(patches))
	}
}

func TestUnknownTypeProducesCatchAll(t *testing.T) {
	t.Parallel()

	patches := runProcessor(t, "", `{"type":"mystery"}`+"\n")
	if len(patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(patches))
	}
	if e := entryAt(t, patches, 0); e.Content != "Unrecognized JSON message from Claude" {
		t.Fatalf("content = %q", e.Content)
	}
}

func TestThinkingContentItem(t *testing.T) {
	t.Parallel()

	line := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"thinking","thinking":"pondering"}]}}` + "\n"
	patches := runProcessor(t, "", line)
	if len(patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(patches))
	}
	e := entryAt(t, patches, 0)
	if e.EntryType.Kind != logs.KindThinking || e.Content != "pondering" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestToolUseContentItem(t *testing.T) {
	t.Parallel()

	line := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls -la"}}]}}` + "\n"
	patches := runProcessor(t, "/work", line)
	if len(patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(patches))
	}
	e := entryAt(t, patches, 0)
	if e.EntryType.Kind != logs.KindToolUse || e.EntryType.ToolName != "Bash" {
		t.Fatalf("entry type = %+v", e.EntryType)
	}
	if e.EntryType.Action == nil || e.EntryType.Action.Kind != logs.ActionCommandRun {
		t.Fatalf("action = %+v", e.EntryType.Action)
	}
	if e.Content != "`ls -la`" {
		t.Fatalf("content = %q", e.Content)
	}
}

func TestUnterminatedTailFlushedAsRawOutput(t *testing.T) {
	t.Parallel()

	patches := runProcessor(t, "", "tail without newline")
	if len(patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(patches))
	}
	if e := entryAt(t, patches, 0); e.Content != "Raw output: tail without newline" {
		t.Fatalf("content = %q", e.Content)
	}
}

func TestPatchIndicesAreDense(t *testing.T) {
	t.Parallel()

	patches := runProcessor(t, "",
		"bad line one\n",
		"bad line two\n",
		"bad line three\n",
	)
	if len(patches) != 3 {
		t.Fatalf("patches = %d, want 3", len(patches))
	}
	for i, p := range patches {
		if want := logs.EntryPath(i); p[0].Path != want {
			t.Fatalf("patch %d path = %q, want %q", i, p[0].Path, want)
		}
	}
}
