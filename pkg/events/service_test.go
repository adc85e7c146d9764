package events

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"conduit/pkg/logmsg"
	"conduit/pkg/store"
)

func openTestService(t *testing.T) (*Service, *store.DB) {
	t.Helper()
	svc, db, err := Open(context.Background(), filepath.Join(t.TempDir(), "events.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open service: %v", err)
	}
	t.Cleanup(func() {
		svc.Close()
		_ = db.Close()
	})
	return svc, db
}

type patchValue struct {
	DBOp   string `json:"db_op"`
	Record struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	} `json:"record"`
}

type patchOp struct {
	Op    string     `json:"op"`
	Path  string     `json:"path"`
	Value patchValue `json:"value"`
}

func awaitEventPatches(t *testing.T, svc *Service, want int) []patchOp {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		var ops []patchOp
		for _, m := range svc.MsgStore().GetHistory() {
			if m.Kind != logmsg.KindJSONPatch {
				continue
			}
			var patch []patchOp
			if err := json.Unmarshal(m.Patch, &patch); err != nil {
				t.Fatalf("unmarshal patch: %v", err)
			}
			ops = append(ops, patch...)
		}
		if len(ops) >= want {
			return ops
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out with %d patches, want %d", len(ops), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInsertEmitsTaskRecord(t *testing.T) {
	t.Parallel()

	svc, db := openTestService(t)

	task, err := db.CreateTask(context.Background(), "first task", "desc")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	ops := awaitEventPatches(t, svc, 1)
	op := ops[0]
	if op.Op != "add" || op.Path != "/entries/1" {
		t.Fatalf("op = %+v", op)
	}
	if op.Value.DBOp != "insert" {
		t.Fatalf("db_op = %q", op.Value.DBOp)
	}
	if op.Value.Record.Type != RecordTask {
		t.Fatalf("record type = %q", op.Value.Record.Type)
	}

	var got store.Task
	if err := json.Unmarshal(op.Value.Record.Data, &got); err != nil {
		t.Fatalf("unmarshal record data: %v", err)
	}
	if got.ID != task.ID || got.Title != "first task" {
		t.Fatalf("record data = %+v", got)
	}
}

func TestDeleteEmitsTombstone(t *testing.T) {
	t.Parallel()

	svc, db := openTestService(t)
	ctx := context.Background()

	task, err := db.CreateTask(ctx, "doomed", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	awaitEventPatches(t, svc, 1)

	if err := db.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ops := awaitEventPatches(t, svc, 2)

	last := ops[len(ops)-1]
	if last.Value.DBOp != "delete" {
		t.Fatalf("db_op = %q", last.Value.DBOp)
	}
	if last.Value.Record.Type != RecordDeletedTask {
		t.Fatalf("record type = %q", last.Value.Record.Type)
	}
	var data struct {
		Rowid int64 `json:"rowid"`
	}
	if err := json.Unmarshal(last.Value.Record.Data, &data); err != nil {
		t.Fatalf("unmarshal tombstone: %v", err)
	}
	if data.Rowid == 0 {
		t.Fatalf("tombstone rowid = %d", data.Rowid)
	}
}

func TestAttemptAndProcessEventsFlow(t *testing.T) {
	t.Parallel()

	svc, db := openTestService(t)
	ctx := context.Background()

	task, err := db.CreateTask(ctx, "t", "")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	attempt, err := db.CreateTaskAttempt(ctx, task.ID, "claude", "/wt", "")
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if _, err := db.CreateExecutionProcess(ctx, attempt.ID, "agent"); err != nil {
		t.Fatalf("create process: %v", err)
	}

	ops := awaitEventPatches(t, svc, 3)
	types := map[string]bool{}
	for _, op := range ops {
		types[op.Value.Record.Type] = true
	}
	for _, want := range []string{RecordTask, RecordTaskAttempt, RecordExecutionProcess} {
		if !types[want] {
			t.Fatalf("missing record type %q in %v", want, types)
		}
	}
}

func TestUnwatchedTableIgnored(t *testing.T) {
	t.Parallel()

	svc, db := openTestService(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `CREATE TABLE scratch (x INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO scratch (x) VALUES (1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Give a would-be event time to surface, then confirm silence.
	time.Sleep(100 * time.Millisecond)
	for _, m := range svc.MsgStore().GetHistory() {
		if m.Kind == logmsg.KindJSONPatch {
			t.Fatalf("unwatched table emitted a patch: %s", m.Patch)
		}
	}
}

func TestCounterRebase(t *testing.T) {
	t.Parallel()

	svc := NewService(zap.NewNop())
	defer svc.Close()

	svc.entryCountMu.Lock()
	svc.entryCount = maxEntryCount + 7
	svc.entryCountMu.Unlock()

	svc.Cleanup(true)

	stats := svc.MemoryStats()
	if stats.EntryCount != cleanupBatchSize {
		t.Fatalf("entry count after rebase = %d, want %d", stats.EntryCount, cleanupBatchSize)
	}
}

func TestCleanupReapsFinishedTasks(t *testing.T) {
	t.Parallel()

	svc := NewService(zap.NewNop())
	defer svc.Close()

	done := &hookTask{done: make(chan struct{})}
	close(done.done)
	pending := &hookTask{done: make(chan struct{})}

	svc.track("hook_tasks_1", done)
	svc.track("hook_tasks_2", pending)

	svc.Cleanup(true)

	stats := svc.MemoryStats()
	if stats.ActiveTasks != 1 {
		t.Fatalf("active tasks after reap = %d, want 1", stats.ActiveTasks)
	}
}

func TestCleanupDebounce(t *testing.T) {
	t.Parallel()

	svc := NewService(zap.NewNop())
	defer svc.Close()

	svc.Cleanup(true)

	finished := &hookTask{done: make(chan struct{})}
	close(finished.done)
	svc.track("hook_tasks_9", finished)

	// Within the interval a non-forced cleanup is a no-op.
	svc.Cleanup(false)
	if stats := svc.MemoryStats(); stats.ActiveTasks != 1 {
		t.Fatalf("debounced cleanup reaped: %d active", stats.ActiveTasks)
	}

	svc.Cleanup(true)
	if stats := svc.MemoryStats(); stats.ActiveTasks != 0 {
		t.Fatalf("forced cleanup did not reap: %d active", stats.ActiveTasks)
	}
}
