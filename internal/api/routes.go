package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/instantory/internal/export"
	"github.com/zulandar/instantory/internal/filetype"
	"github.com/zulandar/instantory/internal/jobs"
	"github.com/zulandar/instantory/internal/orchestrator"
	"github.com/zulandar/instantory/internal/store"
)

type handlers struct {
	orch      Orchestrator
	catalog   Catalog
	ready     func(ctx context.Context) error
	log       zerolog.Logger
	poll      time.Duration
	heartbeat time.Duration
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", h.healthz)

	// Submission.
	router.POST("/api/process-inventory", h.submit("image", filetype.Image))
	router.POST("/api/process-documents", h.submit("document", filetype.Document))
	router.POST("/api/jobs", h.submit(""))

	// Job status.
	router.GET("/processing-status/:id", h.jobStatus)
	router.GET("/api/jobs/:id", h.jobStatus)
	router.GET("/api/jobs/:id/events", h.jobEvents)

	// Catalog.
	router.GET("/api/inventory", h.listInventory)
	router.POST("/api/inventory/reset", h.resetInventory)
	router.GET("/api/documents", h.listDocuments)
	router.GET("/api/documents/:id/text", h.documentText)
	router.POST("/api/documents/search", h.searchDocuments)
	router.POST("/api/documents/reset", h.resetDocuments)

	// Exports.
	router.GET("/export-inventory", h.exportInventory)
	router.GET("/export-documents", h.exportDocuments)
}

type submitRequest struct {
	Files       []orchestrator.File `json:"files"`
	Instruction string              `json:"instruction"`
}

// submit accepts a batch. label names the kind in validation errors; only
// restricts the accepted kinds.
func (h *handlers) submit(label string, only ...filetype.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.Files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
			return
		}

		id, err := h.orch.Submit(c.Request.Context(), req.Files, req.Instruction, only...)
		switch {
		case errors.Is(err, orchestrator.ErrNoValidItems):
			msg := "No valid files provided"
			if label != "" {
				msg = fmt.Sprintf("No valid %s files provided", label)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		case errors.Is(err, orchestrator.ErrShuttingDown):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		case err != nil:
			h.log.Error().Err(err).Msg("api.submit.failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "success", "task_id": id})
	}
}

func (h *handlers) jobStatus(c *gin.Context) {
	job, err := h.orch.Status(c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid task ID"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *handlers) healthz(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) listInventory(c *gin.Context) {
	items, err := h.catalog.ListInventory(c.Request.Context(), limitParam(c))
	if err != nil {
		h.log.Error().Err(err).Msg("api.inventory.list.failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch inventory"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *handlers) listDocuments(c *gin.Context) {
	docs, err := h.catalog.ListDocuments(c.Request.Context(), limitParam(c))
	if err != nil {
		h.log.Error().Err(err).Msg("api.documents.list.failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch documents"})
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *handlers) documentText(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	text, err := h.catalog.DocumentText(c.Request.Context(), uint(id))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Uint64("document_id", id).Msg("api.documents.text.failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch document text"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

type searchRequest struct {
	Query string `json:"query"`
	Field string `json:"field"`
}

func (h *handlers) searchDocuments(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Search query is required"})
		return
	}
	if req.Field == "" {
		req.Field = store.FieldAll
	}
	results, err := h.catalog.SearchDocuments(c.Request.Context(), req.Query, req.Field)
	if errors.Is(err, store.ErrEmptyQuery) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Search query is required"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("api.documents.search.failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *handlers) resetInventory(c *gin.Context) {
	h.reset(c, "inventory", h.catalog.ResetInventory)
}

func (h *handlers) resetDocuments(c *gin.Context) {
	h.reset(c, "documents", h.catalog.ResetDocuments)
}

func (h *handlers) reset(c *gin.Context, what string, fn func(context.Context) (int64, error)) {
	n, err := fn(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Str("table", what).Msg("api.reset.failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to reset %s", what)})
		return
	}
	h.log.Warn().Str("table", what).Int64("deleted", n).Msg("api.reset")
	c.JSON(http.StatusOK, gin.H{"status": "success", "deleted": n})
}

func (h *handlers) exportInventory(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	items, err := h.catalog.ListInventory(c.Request.Context(), 0)
	if err != nil {
		h.log.Error().Err(err).Msg("api.export.inventory.failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch inventory"})
		return
	}
	writeAttachment(c, "inventory", format)
	if err := export.Inventory(c.Writer, format, items); err != nil {
		h.log.Error().Err(err).Msg("api.export.inventory.write_failed")
	}
}

func (h *handlers) exportDocuments(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	docs, err := h.catalog.ListDocuments(c.Request.Context(), 0)
	if err != nil {
		h.log.Error().Err(err).Msg("api.export.documents.failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch documents"})
		return
	}
	writeAttachment(c, "documents", format)
	if err := export.Documents(c.Writer, format, docs); err != nil {
		h.log.Error().Err(err).Msg("api.export.documents.write_failed")
	}
}

func writeAttachment(c *gin.Context, base string, format export.Format) {
	name := fmt.Sprintf("%s-%s.%s", base, time.Now().UTC().Format("20060102-150405"), format)
	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Status(http.StatusOK)
}

// limitParam reads ?limit=, defaulting to store.DefaultListLimit.
func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return store.DefaultListLimit
	}
	return n
}
