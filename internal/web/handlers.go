package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"conduit/pkg/claude"
	"conduit/pkg/msgstore"
	"conduit/pkg/store"
)

type createTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type startAttemptRequest struct {
	Prompt    string `json:"prompt" binding:"required"`
	Worktree  string `json:"worktree" binding:"required"`
	Branch    string `json:"branch"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := s.db.CreateTask(c.Request.Context(), req.Title, req.Description)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.db.ListTasks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

func taskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	task, err := s.db.GetTask(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleUpdateTaskStatus(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := s.db.UpdateTaskStatus(c.Request.Context(), id, req.Status)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	err := s.db.DeleteTask(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleStartAttempt creates an attempt and its execution-process row,
// spawns the agent in the requested worktree, and begins streaming its
// logs. The response carries the process ID to use with
// /api/processes/:id/logs.
func (s *Server) handleStartAttempt(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var req startAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := s.db.GetTask(ctx, id); errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	attempt, err := s.db.CreateTaskAttempt(ctx, id, "claude", req.Worktree, req.Branch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	proc, err := s.db.CreateExecutionProcess(ctx, attempt.ID, "agent")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := s.runAgent(proc.ID, req); err != nil {
		_ = s.db.CompleteExecutionProcess(context.Background(), proc.ID, "failed", -1)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"attempt": attempt,
		"process": proc,
	})
}

// runAgent spawns the agent, attaches log normalization, and records the
// exit status once the process finishes. The log store stays registered
// so clients can replay the conversation after exit.
func (s *Server) runAgent(procID uuid.UUID, req startAttemptRequest) error {
	// The run outlives the HTTP request.
	runCtx, cancel := context.WithCancel(context.Background())

	var child *claude.Child
	var err error
	if req.SessionID != "" {
		child, err = s.exec.SpawnFollowUp(runCtx, req.Worktree, req.Prompt, req.SessionID)
	} else {
		child, err = s.exec.Spawn(runCtx, req.Worktree, req.Prompt)
	}
	if err != nil {
		cancel()
		return err
	}

	ms := msgstore.NewWithLogger(s.log.Named("process").With(zap.String("id", procID.String())))
	s.procs.Put(procID.String(), ms)
	s.exec.NormalizeLogs(runCtx, ms, req.Worktree)

	go func() {
		defer cancel()
		runErr := child.Forward(ms)

		status, exitCode := "completed", int64(0)
		if runErr != nil {
			status = "failed"
			if code := child.Cmd.ProcessState.ExitCode(); code >= 0 {
				exitCode = int64(code)
			} else {
				exitCode = -1
			}
			s.log.Warn("agent run failed", zap.String("process", procID.String()), zap.Error(runErr))
		}
		if err := s.db.CompleteExecutionProcess(context.Background(), procID, status, exitCode); err != nil {
			s.log.Error("record process completion", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"events":    s.events.MemoryStats(),
		"processes": s.procs.Len(),
	})
}
