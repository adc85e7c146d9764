package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a rowid lookup finds no row, which for the
// event service means the row was deleted before it could be
// materialized.
var ErrNotFound = errors.New("row not found")

// Task is one unit of work on the kanban board.
type Task struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

// TaskAttempt is one agent run against a task, in its own worktree.
type TaskAttempt struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	Executor  string    `json:"executor"`
	Worktree  string    `json:"worktree"`
	Branch    string    `json:"branch"`
	CreatedAt string    `json:"created_at"`
}

// ExecutionProcess is one spawned process within an attempt.
type ExecutionProcess struct {
	ID            uuid.UUID  `json:"id"`
	TaskAttemptID uuid.UUID  `json:"task_attempt_id"`
	RunReason     string     `json:"run_reason"`
	Status        string     `json:"status"`
	ExitCode      *int64     `json:"exit_code"`
	StartedAt     string     `json:"started_at"`
	CompletedAt   *string    `json:"completed_at"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// CreateTask inserts a new task and returns it.
func (d *DB) CreateTask(ctx context.Context, title, description string) (*Task, error) {
	t := &Task{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Status:      "todo",
		CreatedAt:   now(),
		UpdatedAt:   now(),
	}
	_, err := d.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.Title, t.Description, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// UpdateTaskStatus moves a task to status and bumps updated_at.
func (d *DB) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status string) error {
	res, err := d.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		status, now(), id.String())
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask removes a task; attempts and processes cascade.
func (d *DB) DeleteTask(ctx context.Context, id uuid.UUID) error {
	res, err := d.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTask fetches a task by ID.
func (d *DB) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	return scanTask(d.QueryRowContext(ctx,
		`SELECT id, title, description, status, created_at, updated_at
		 FROM tasks WHERE id = ?`, id.String()))
}

// ListTasks returns all tasks, newest first.
func (d *DB) ListTasks(ctx context.Context) ([]*Task, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT id, title, description, status, created_at, updated_at
		 FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// FindTaskByRowID materializes a task from the rowid reported by the
// update hook.
func (d *DB) FindTaskByRowID(ctx context.Context, rowid int64) (*Task, error) {
	return scanTask(d.QueryRowContext(ctx,
		`SELECT id, title, description, status, created_at, updated_at
		 FROM tasks WHERE rowid = ?`, rowid))
}

// CreateTaskAttempt inserts a new attempt for a task.
func (d *DB) CreateTaskAttempt(ctx context.Context, taskID uuid.UUID, executor, worktree, branch string) (*TaskAttempt, error) {
	a := &TaskAttempt{
		ID:        uuid.New(),
		TaskID:    taskID,
		Executor:  executor,
		Worktree:  worktree,
		Branch:    branch,
		CreatedAt: now(),
	}
	_, err := d.ExecContext(ctx,
		`INSERT INTO task_attempts (id, task_id, executor, worktree, branch, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.TaskID.String(), a.Executor, a.Worktree, a.Branch, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert task attempt: %w", err)
	}
	return a, nil
}

// FindTaskAttemptByRowID materializes an attempt from a hook rowid.
func (d *DB) FindTaskAttemptByRowID(ctx context.Context, rowid int64) (*TaskAttempt, error) {
	row := d.QueryRowContext(ctx,
		`SELECT id, task_id, executor, worktree, branch, created_at
		 FROM task_attempts WHERE rowid = ?`, rowid)

	var a TaskAttempt
	var id, taskID string
	err := row.Scan(&id, &taskID, &a.Executor, &a.Worktree, &a.Branch, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task attempt: %w", err)
	}
	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("task attempt id: %w", err)
	}
	if a.TaskID, err = uuid.Parse(taskID); err != nil {
		return nil, fmt.Errorf("task attempt task_id: %w", err)
	}
	return &a, nil
}

// CreateExecutionProcess inserts a new running process row.
func (d *DB) CreateExecutionProcess(ctx context.Context, attemptID uuid.UUID, runReason string) (*ExecutionProcess, error) {
	p := &ExecutionProcess{
		ID:            uuid.New(),
		TaskAttemptID: attemptID,
		RunReason:     runReason,
		Status:        "running",
		StartedAt:     now(),
	}
	_, err := d.ExecContext(ctx,
		`INSERT INTO execution_processes (id, task_attempt_id, run_reason, status, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID.String(), p.TaskAttemptID.String(), p.RunReason, p.Status, p.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("insert execution process: %w", err)
	}
	return p, nil
}

// CompleteExecutionProcess marks a process finished with exitCode.
func (d *DB) CompleteExecutionProcess(ctx context.Context, id uuid.UUID, status string, exitCode int64) error {
	res, err := d.ExecContext(ctx,
		`UPDATE execution_processes
		 SET status = ?, exit_code = ?, completed_at = ?
		 WHERE id = ?`,
		status, exitCode, now(), id.String())
	if err != nil {
		return fmt.Errorf("complete execution process: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindExecutionProcessByRowID materializes a process from a hook rowid.
func (d *DB) FindExecutionProcessByRowID(ctx context.Context, rowid int64) (*ExecutionProcess, error) {
	row := d.QueryRowContext(ctx,
		`SELECT id, task_attempt_id, run_reason, status, exit_code, started_at, completed_at
		 FROM execution_processes WHERE rowid = ?`, rowid)

	var p ExecutionProcess
	var id, attemptID string
	err := row.Scan(&id, &attemptID, &p.RunReason, &p.Status, &p.ExitCode, &p.StartedAt, &p.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution process: %w", err)
	}
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("execution process id: %w", err)
	}
	if p.TaskAttemptID, err = uuid.Parse(attemptID); err != nil {
		return nil, fmt.Errorf("execution process attempt id: %w", err)
	}
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var id string
	err := row.Scan(&id, &t.Title, &t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("task id: %w", err)
	}
	return &t, nil
}
