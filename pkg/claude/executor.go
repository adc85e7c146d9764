package claude

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"conduit/pkg/logs"
	"conduit/pkg/msgstore"
)

// DefaultCommand is the base Claude CLI invocation for non-interactive
// runs with stream-json output.
const DefaultCommand = "claude -p --verbose --output-format=stream-json --dangerously-skip-permissions"

// Executor spawns Claude CLI processes and wires their output through the
// normalization pipeline.
type Executor struct {
	// Command is the base shell command; DefaultCommand when empty.
	Command string
	// AppendPrompt is extra text appended to every prompt.
	AppendPrompt string
	// Plan wraps the command in a watchkill script that terminates the
	// agent once the plan-presentation marker appears on stdout.
	Plan bool
	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// Child is a spawned agent process with its stdio pipes. The process runs
// in its own process group; canceling the spawn context kills the whole
// tree.
type Child struct {
	Cmd    *exec.Cmd
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Executor) baseCommand() string {
	if e.Command == "" {
		return DefaultCommand
	}
	return e.Command
}

// Spawn starts a fresh agent run in dir, feeding prompt on stdin and
// closing it so the agent sees EOF.
func (e *Executor) Spawn(ctx context.Context, dir, prompt string) (*Child, error) {
	return e.spawnShell(ctx, dir, e.wrapPlan(e.baseCommand()), prompt)
}

// SpawnFollowUp resumes a prior conversation. A stale or empty session ID
// heals to the most recent session recorded for dir; when none exists the
// run starts fresh.
func (e *Executor) SpawnFollowUp(ctx context.Context, dir, prompt, sessionID string) (*Child, error) {
	effective := e.resolveSession(dir, sessionID)

	command := e.baseCommand()
	if effective != "" {
		command = fmt.Sprintf("%s --resume %s", command, shellQuote(effective))
	}
	return e.spawnShell(ctx, dir, e.wrapPlan(command), prompt)
}

// resolveSession picks the session to resume: the provided ID if it still
// exists in this worktree's conversation files, otherwise the most recent
// session for the worktree, otherwise none.
func (e *Executor) resolveSession(dir, sessionID string) string {
	log := e.logger()

	if sessionID != "" && sessionIDExists(dir, sessionID) {
		return sessionID
	}

	fallback, err := FindResumeSessionID(dir)
	if err != nil {
		log.Warn("no resumable session found, starting fresh conversation",
			zap.String("dir", dir), zap.Error(err))
		return ""
	}
	if sessionID == "" {
		log.Info("no session ID provided, resuming most recent conversation",
			zap.String("session_id", fallback))
	} else {
		log.Info("provided session ID not found, resuming most recent conversation",
			zap.String("session_id", fallback))
	}
	return fallback
}

func (e *Executor) spawnShell(ctx context.Context, dir, command, prompt string) (*Child, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = dir
	// Each run gets its own process group so cancellation kills the
	// whole tree (claude + node + bash descendants).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	// Strip CLAUDECODE* env vars: inherited ones alter the spawned
	// agent's behavior.
	cmd.Env = slices.DeleteFunc(os.Environ(), func(v string) bool {
		return strings.HasPrefix(v, "CLAUDECODE")
	})

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn agent: %w", err)
	}

	combined := combinePrompt(prompt, e.AppendPrompt)
	go func() {
		_, _ = io.WriteString(stdin, combined)
		_ = stdin.Close()
	}()

	return &Child{Cmd: cmd, Stdout: stdout, Stderr: stderr}, nil
}

func (e *Executor) wrapPlan(command string) string {
	if !e.Plan {
		return command
	}
	return watchkillScript(command)
}

// NormalizeLogs attaches the stdout log processor and the stderr
// normalizer to store, sharing one entry-index provider so the two
// emitters never collide on a patch index.
func (e *Executor) NormalizeLogs(ctx context.Context, store *msgstore.Store, worktree string) {
	provider := msgstore.StartFrom(store)
	NewLogProcessor(store, provider, worktree, e.logger()).Run(ctx)
	logs.NormalizeStderr(ctx, store, provider, e.logger())
}

// Forward pumps the child's stdio into store as raw chunks, waits for the
// process, pushes the Finished marker, and returns the process error, if
// any.
func (c *Child) Forward(store *msgstore.Store) error {
	done := make(chan struct{}, 2)
	pump := func(r io.Reader, push func(string)) {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				push(string(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}
	go pump(c.Stdout, store.PushStdout)
	go pump(c.Stderr, store.PushStderr)
	<-done
	<-done

	err := c.Cmd.Wait()
	store.PushFinished()
	if err != nil {
		return fmt.Errorf("agent process: %w", err)
	}
	return nil
}

// combinePrompt appends the executor's extra prompt text after the user
// prompt.
func combinePrompt(prompt, appendPrompt string) string {
	if appendPrompt == "" {
		return prompt
	}
	return prompt + "\n" + appendPrompt
}

// shellQuote single-quotes s for safe interpolation into a sh -c string.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// planStopMarker is the stdout text that signals the agent is presenting
// a plan. Split so reading this source file through the agent does not
// trip the watchkill itself.
var planStopMarker = "Exit " + "plan mode?"

// watchkillScript wraps command in a bash loop that echoes its output and
// exits as soon as the plan-presentation marker appears.
func watchkillScript(command string) string {
	return fmt.Sprintf(`#!/usr/bin/env bash
set -euo pipefail

word="%s"
command="%s"

exit_code=0
while IFS= read -r line; do
    printf '%%s\n' "$line"
    if [[ $line == *"$word"* ]]; then
        exit 0
    fi
done < <($command <&0 2>&1)

exit_code=${PIPESTATUS[0]}
exit "$exit_code"
`, planStopMarker, command)
}
