package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"conduit/pkg/msgstore"
)

// streamStore writes a store's fused history-plus-live stream to the
// client as server-sent events until the client disconnects or the store
// closes.
func (s *Server) streamStore(c *gin.Context, ms *msgstore.Store) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for d := range ms.HistoryPlusStream(ctx) {
		if d.Lagged > 0 {
			s.log.Warn("sse subscriber lagged; stream has a gap")
		}
		event, data := d.Msg.SSEEvent()
		writeSSE(c.Writer, event, data)
		c.Writer.Flush()
	}
}

// writeSSE emits one event. Multi-line data becomes multiple data fields
// per the SSE framing rules; the client reassembles them with newlines.
func writeSSE(w gin.ResponseWriter, event, data string) {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteString("\n")
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, _ = w.WriteString(b.String())
}

func (s *Server) handleEventStream(c *gin.Context) {
	s.streamStore(c, s.events.MsgStore())
}

func (s *Server) handleProcessLogs(c *gin.Context) {
	ms := s.procs.Get(c.Param("id"))
	if ms == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown process"})
		return
	}
	s.streamStore(c, ms)
}
