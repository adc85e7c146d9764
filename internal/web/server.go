// Package web is the HTTP surface of the daemon: task CRUD endpoints
// that drive the database (and therefore the change-event stream), plus
// SSE endpoints streaming the event store and per-process conversation
// logs.
package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"conduit/pkg/claude"
	"conduit/pkg/events"
	"conduit/pkg/msgstore"
	"conduit/pkg/store"
)

// Server wires the HTTP routes to the daemon's services.
type Server struct {
	db     *store.DB
	events *events.Service
	procs  *msgstore.Registry
	exec   *claude.Executor
	log    *zap.Logger
	router *gin.Engine
}

// NewServer builds the router. Pass gin.ReleaseMode via gin.SetMode
// before calling if the default debug logging is unwanted.
func NewServer(db *store.DB, svc *events.Service, procs *msgstore.Registry, exec *claude.Executor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		db:     db,
		events: svc,
		procs:  procs,
		exec:   exec,
		log:    logger,
		router: gin.New(),
	}
	s.router.Use(gin.Recovery())

	api := s.router.Group("/api")
	{
		api.GET("/events/stream", s.handleEventStream)
		api.GET("/processes/:id/logs", s.handleProcessLogs)

		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks", s.handleListTasks)
		api.GET("/tasks/:id", s.handleGetTask)
		api.PUT("/tasks/:id/status", s.handleUpdateTaskStatus)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
		api.POST("/tasks/:id/attempts", s.handleStartAttempt)

		api.GET("/stats", s.handleStats)
	}
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return s
}

// Handler exposes the router for tests and custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
