// Package api exposes job submission, job status and the stored catalog
// over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/instantory/internal/filetype"
	"github.com/zulandar/instantory/internal/jobs"
	"github.com/zulandar/instantory/internal/models"
	"github.com/zulandar/instantory/internal/orchestrator"
	"github.com/zulandar/instantory/internal/store"
)

// Orchestrator accepts batches and reports job state.
type Orchestrator interface {
	Submit(ctx context.Context, files []orchestrator.File, instruction string, only ...filetype.Kind) (string, error)
	Status(id string) (jobs.Job, error)
}

// Catalog is the read and reset side of the store.
type Catalog interface {
	ListInventory(ctx context.Context, limit int) ([]models.InventoryItem, error)
	ListDocuments(ctx context.Context, limit int) ([]models.Document, error)
	DocumentText(ctx context.Context, id uint) (string, error)
	SearchDocuments(ctx context.Context, query, field string) ([]store.SearchResult, error)
	ResetInventory(ctx context.Context) (int64, error)
	ResetDocuments(ctx context.Context) (int64, error)
}

// RouterOpts holds the collaborators of the HTTP handlers.
type RouterOpts struct {
	Orchestrator Orchestrator
	Catalog      Catalog
	// Ready backs /healthz. Optional.
	Ready  func(ctx context.Context) error
	Logger *zerolog.Logger

	// SSE timing; zero values use 3s polling and a 15s heartbeat.
	PollInterval time.Duration
	Heartbeat    time.Duration
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	RouterOpts
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Out          io.Writer
}

// NewRouter returns a gin engine with every route registered.
func NewRouter(opts RouterOpts) *gin.Engine {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	registerRoutes(router, &handlers{
		orch:      opts.Orchestrator,
		catalog:   opts.Catalog,
		ready:     opts.Ready,
		log:       log,
		poll:      opts.PollInterval,
		heartbeat: opts.Heartbeat,
	})
	return router
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Orchestrator == nil {
		return fmt.Errorf("api: orchestrator is required")
	}
	if opts.Catalog == nil {
		return fmt.Errorf("api: catalog is required")
	}
	if opts.Port <= 0 {
		opts.Port = 10000
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", opts.Port),
		Handler:     NewRouter(opts.RouterOpts),
		ReadTimeout: opts.ReadTimeout,
		// Event streams clear their own write deadline.
		WriteTimeout: opts.WriteTimeout,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Instantory API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// requestLogger logs one line per request.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("api.request")
	}
}
