package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zulandar/instantory/internal/analyzer"
	"github.com/zulandar/instantory/internal/api"
	"github.com/zulandar/instantory/internal/batch"
	"github.com/zulandar/instantory/internal/config"
	"github.com/zulandar/instantory/internal/db"
	"github.com/zulandar/instantory/internal/fetch"
	"github.com/zulandar/instantory/internal/filetype"
	"github.com/zulandar/instantory/internal/jobs"
	"github.com/zulandar/instantory/internal/llm"
	"github.com/zulandar/instantory/internal/logging"
	"github.com/zulandar/instantory/internal/notify"
	"github.com/zulandar/instantory/internal/orchestrator"
	"github.com/zulandar/instantory/internal/store"
)

// shutdownGrace bounds how long in-flight jobs may keep running after a
// stop signal.
const shutdownGrace = 2 * time.Minute

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the processing API server",
		Long:  "Starts the HTTP API that accepts batches, runs enrichment jobs in the background and serves the catalog.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "instantory.yaml", "path to Instantory config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

// app holds the wired components of a running server.
type app struct {
	conn    *db.Conn
	orch    *orchestrator.Orchestrator
	sweeper *jobs.Sweeper
	router  api.RouterOpts
}

// buildApp connects to the database, migrates it and wires every component.
func buildApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	conn, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(conn.DB); err != nil {
		conn.Close()
		return nil, err
	}

	registry := jobs.NewRegistry(jobs.RegistryOpts{TTL: cfg.Jobs.TTL})
	sweeper, err := jobs.NewSweeper(registry, cfg.Jobs.SweepSchedule, log)
	if err != nil {
		conn.Close()
		return nil, err
	}

	notifier, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		conn.Close()
		return nil, err
	}

	st := store.New(conn.DB)
	an := analyzer.New(analyzer.Options{
		Fetcher: fetch.New(fetch.Options{Timeout: cfg.Fetch.Timeout, MaxBytes: cfg.Fetch.MaxBytes}),
		LLM: llm.New(llm.Options{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Timeout: cfg.LLM.Timeout,
			Logger:  &log,
		}),
		ImageModel:     cfg.LLM.ImageModel,
		DocumentModel:  cfg.LLM.DocumentModel,
		ImageMaxTokens: cfg.LLM.MaxTokens,
		Logger:         &log,
	})
	proc := batch.New(batch.Options{
		Analyzer:  an,
		Store:     st,
		Tracker:   registry,
		ChunkSize: cfg.Jobs.ChunkSize,
		Logger:    &log,
	})
	orch := orchestrator.New(orchestrator.Options{
		Registry:   registry,
		Classifier: filetype.NewClassifier(cfg.Files.Images, cfg.Files.Documents),
		Runner:     proc,
		Notifier:   notifier,
		Ready:      conn.Ping,
		Logger:     &log,
	})

	return &app{
		conn:    conn,
		orch:    orch,
		sweeper: sweeper,
		router: api.RouterOpts{
			Orchestrator: orch,
			Catalog:      st,
			Ready:        conn.Ping,
			Logger:       &log,
		},
	}, nil
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.conn.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a.sweeper.Start()
	defer a.sweeper.Stop()

	log.Info().
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Int("chunk_size", cfg.Jobs.ChunkSize).
		Msg("serve.start")

	serveErr := api.Start(ctx, api.StartOpts{
		RouterOpts:   a.router,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Out:          cmd.OutOrStdout(),
	})

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownGrace)
	defer stop()
	if err := a.orch.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("serve.shutdown.jobs_cancelled")
	}
	log.Info().Msg("serve.stopped")
	return serveErr
}
