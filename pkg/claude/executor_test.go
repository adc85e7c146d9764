package claude

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestShellQuote(t *testing.T) {
	t.Parallel()

	if got := shellQuote("simple"); got != "'simple'" {
		t.Fatalf("got %q", got)
	}
	if got := shellQuote("it's"); got != `'it'\''s'` {
		t.Fatalf("got %q", got)
	}
}

func TestCombinePrompt(t *testing.T) {
	t.Parallel()

	if got := combinePrompt("do it", ""); got != "do it" {
		t.Fatalf("got %q", got)
	}
	if got := combinePrompt("do it", "carefully"); got != "do it\ncarefully" {
		t.Fatalf("got %q", got)
	}
}

func TestWatchkillScriptEmbedsCommandAndMarker(t *testing.T) {
	t.Parallel()

	script := watchkillScript("claude -p")
	if !strings.Contains(script, planStopMarker) {
		t.Fatal("script missing stop marker")
	}
	if !strings.Contains(script, `command="claude -p"`) {
		t.Fatalf("script missing command: %s", script)
	}
}

func TestWrapPlanOnlyWhenEnabled(t *testing.T) {
	t.Parallel()

	e := &Executor{}
	if got := e.wrapPlan("cmd"); got != "cmd" {
		t.Fatalf("plan off mutated command: %q", got)
	}
	e.Plan = true
	if got := e.wrapPlan("cmd"); got == "cmd" {
		t.Fatal("plan on did not wrap command")
	}
}

func TestBaseCommandDefault(t *testing.T) {
	t.Parallel()

	e := &Executor{}
	if got := e.baseCommand(); got != DefaultCommand {
		t.Fatalf("got %q", got)
	}
	e.Command = "custom"
	if got := e.baseCommand(); got != "custom" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveSessionPrefersValidProvidedID(t *testing.T) {
	root := fakeProjects(t)
	worktree := "/tmp/resolve"

	dir := filepath.Join(root, "-tmp-resolve")
	writeConversation(t, dir, "a.jsonl",
		`{"sessionId":"provided"}`+"\n", time.Now().Add(-time.Hour))
	writeConversation(t, dir, "b.jsonl",
		`{"sessionId":"recent"}`+"\n", time.Now())

	e := &Executor{}
	if got := e.resolveSession(worktree, "provided"); got != "provided" {
		t.Fatalf("got %q, want provided", got)
	}
}

func TestResolveSessionHealsStaleID(t *testing.T) {
	root := fakeProjects(t)
	worktree := "/tmp/heal"

	dir := filepath.Join(root, "-tmp-heal")
	writeConversation(t, dir, "a.jsonl",
		`{"sessionId":"recent"}`+"\n", time.Now())

	e := &Executor{}
	if got := e.resolveSession(worktree, "gone-session"); got != "recent" {
		t.Fatalf("got %q, want recent", got)
	}
}

func TestResolveSessionNoSessionsStartsFresh(t *testing.T) {
	fakeProjects(t)

	e := &Executor{}
	if got := e.resolveSession("/tmp/empty", "whatever"); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
