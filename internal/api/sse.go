package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/instantory/internal/jobs"
)

// jobEvents streams a job's progress as server-sent events. A "progress"
// event is sent whenever the snapshot changes; the stream ends with a
// "done" event once the job is terminal, or "gone" if it expires.
func (h *handlers) jobEvents(c *gin.Context) {
	id := c.Param("id")
	job, err := h.orch.Status(id)
	if errors.Is(err, jobs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid task ID"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})
	c.Status(http.StatusOK)

	if job.Status.Terminal() {
		writeSSE(c.Writer, "done", job)
		c.Writer.Flush()
		return
	}
	writeSSE(c.Writer, "progress", job)
	c.Writer.Flush()
	last := job

	ctx := c.Request.Context()
	ticker := time.NewTicker(h.poll)
	heartbeat := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-ticker.C:
			job, err := h.orch.Status(id)
			if err != nil {
				writeSSE(c.Writer, "gone", gin.H{"task_id": id, "error": "Invalid task ID"})
				c.Writer.Flush()
				return
			}
			if job.Status.Terminal() {
				writeSSE(c.Writer, "done", job)
				c.Writer.Flush()
				return
			}
			if job == last {
				continue
			}
			last = job
			writeSSE(c.Writer, "progress", job)
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
