package store

import (
	"context"
	"fmt"
)

// Watched tables, in hook-dispatch order of interest.
const (
	TableTasks              = "tasks"
	TableTaskAttempts       = "task_attempts"
	TableExecutionProcesses = "execution_processes"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'todo',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS task_attempts (
    id         TEXT PRIMARY KEY,
    task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    executor   TEXT NOT NULL DEFAULT '',
    worktree   TEXT NOT NULL DEFAULT '',
    branch     TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS execution_processes (
    id              TEXT PRIMARY KEY,
    task_attempt_id TEXT NOT NULL REFERENCES task_attempts(id) ON DELETE CASCADE,
    run_reason      TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'running',
    exit_code       INTEGER,
    started_at      TEXT NOT NULL,
    completed_at    TEXT
);

CREATE INDEX IF NOT EXISTS idx_task_attempts_task_id
    ON task_attempts(task_id);
CREATE INDEX IF NOT EXISTS idx_execution_processes_attempt_id
    ON execution_processes(task_attempt_id);
`

// Migrate creates the schema. Statements are idempotent; re-running on an
// existing database is a no-op.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
