// Package orchestrator accepts batches, owns their background execution and
// drives every job to a terminal status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zulandar/instantory/internal/batch"
	"github.com/zulandar/instantory/internal/filetype"
	"github.com/zulandar/instantory/internal/jobs"
	"github.com/zulandar/instantory/internal/notify"
)

var (
	// ErrNoValidItems is returned by Submit when no file survives
	// classification. No job is created.
	ErrNoValidItems = errors.New("no valid files provided")
	// ErrShuttingDown is returned by Submit once Shutdown has begun.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// File is one submitted source reference.
type File struct {
	URL  string `json:"blobUrl"`
	Name string `json:"originalName"`
}

// Runner executes the items of one job. *batch.Processor satisfies it.
type Runner interface {
	Run(ctx context.Context, jobID string, items []batch.Item, instruction string) batch.Outcome
}

// Options configures an Orchestrator.
type Options struct {
	Registry   *jobs.Registry
	Classifier *filetype.Classifier
	Runner     Runner
	// Notifier is told about every terminal job. Optional.
	Notifier notify.Notifier
	// Ready runs before a job's items are processed, e.g. a database ping.
	// An error fails the whole job. Optional.
	Ready  func(ctx context.Context) error
	Logger *zerolog.Logger
}

// Orchestrator is the single writer of job terminal states.
type Orchestrator struct {
	registry   *jobs.Registry
	classifier *filetype.Classifier
	runner     Runner
	notifier   notify.Notifier
	ready      func(ctx context.Context) error
	log        zerolog.Logger

	// base outlives the submitting request; Shutdown cancels it when the
	// grace period runs out.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New returns an Orchestrator.
func New(opts Options) *Orchestrator {
	base, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		registry:   opts.Registry,
		classifier: opts.Classifier,
		runner:     opts.Runner,
		notifier:   opts.Notifier,
		ready:      opts.Ready,
		log:        zerolog.Nop(),
		base:       base,
		cancel:     cancel,
	}
	if opts.Logger != nil {
		o.log = *opts.Logger
	}
	return o
}

// Submit classifies files, registers a queued job and starts processing it
// in the background. It returns the job ID without waiting for analysis.
// When only is given, files of other kinds are dropped as well.
func (o *Orchestrator) Submit(ctx context.Context, files []File, instruction string, only ...filetype.Kind) (string, error) {
	items, dropped := o.classify(files, only)
	if len(dropped) > 0 {
		o.log.Warn().Strs("files", dropped).Msg("orchestrator.submit.dropped")
	}
	if len(items) == 0 {
		return "", ErrNoValidItems
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrShuttingDown
	}
	job := o.registry.Create(len(items))
	o.inflight.Add(1)
	o.mu.Unlock()

	o.log.Info().
		Str("job_id", job.ID).
		Int("items", len(items)).
		Str("kind", batch.Noun(items)).
		Msg("orchestrator.submit")

	go func() {
		defer o.inflight.Done()
		o.run(o.base, job.ID, items, instruction)
	}()
	return job.ID, nil
}

// classify keeps files with an allowed extension, optionally restricted to
// the kinds in only, preserving submission order.
func (o *Orchestrator) classify(files []File, only []filetype.Kind) ([]batch.Item, []string) {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	kept, dropped := o.classifier.Partition(names)

	items := make([]batch.Item, 0, len(kept))
	for _, e := range kept {
		if len(only) > 0 && !containsKind(only, e.Kind) {
			dropped = append(dropped, e.Name)
			continue
		}
		f := files[e.Index]
		if f.URL == "" {
			dropped = append(dropped, e.Name)
			continue
		}
		items = append(items, batch.Item{URL: f.URL, Name: f.Name, Kind: e.Kind})
	}
	return items, dropped
}

func containsKind(kinds []filetype.Kind, k filetype.Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

// run is the background routine of one job. Nothing it does may escape as
// a panic; failures become the failed status.
func (o *Orchestrator) run(ctx context.Context, jobID string, items []batch.Item, instruction string) {
	status, msg := o.execute(ctx, jobID, items, instruction)
	if err := o.registry.Finish(jobID, status, msg); err != nil {
		o.log.Warn().Err(err).Str("job_id", jobID).Msg("orchestrator.finish.failed")
		return
	}

	ev := o.log.Info()
	if status != jobs.StatusCompleted {
		ev = o.log.Warn()
	}
	ev.Str("job_id", jobID).Str("status", string(status)).Msg("orchestrator.job.done")

	o.notify(jobID)
}

func (o *Orchestrator) execute(ctx context.Context, jobID string, items []batch.Item, instruction string) (status jobs.Status, msg string) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Str("job_id", jobID).Interface("panic", r).Msg("orchestrator.job.panic")
			status, msg = jobs.StatusFailed, fmt.Sprintf("Error: %v", r)
		}
	}()

	if err := o.registry.Start(jobID); err != nil {
		return jobs.StatusFailed, fmt.Sprintf("Error: %v", err)
	}
	if o.ready != nil {
		if err := o.ready(ctx); err != nil {
			o.log.Error().Err(err).Str("job_id", jobID).Msg("orchestrator.job.not_ready")
			return jobs.StatusFailed, fmt.Sprintf("Error: %v", err)
		}
	}

	out := o.runner.Run(ctx, jobID, items, instruction)
	msg = fmt.Sprintf("Processing complete! %d/%d %s processed successfully.", out.Processed, out.Total, batch.Noun(items))
	if out.Complete() {
		return jobs.StatusCompleted, msg
	}
	return jobs.StatusCompletedWithErrors, msg
}

func (o *Orchestrator) notify(jobID string) {
	if o.notifier == nil {
		return
	}
	job, err := o.registry.Get(jobID)
	if err != nil {
		return
	}
	// The base context may already be cancelled during shutdown; notices
	// are still worth sending.
	if err := o.notifier.Notify(context.WithoutCancel(o.base), job); err != nil {
		o.log.Warn().Err(err).Str("job_id", jobID).Msg("orchestrator.notify.failed")
	}
}

// Status returns a snapshot of job id.
func (o *Orchestrator) Status(id string) (jobs.Job, error) {
	return o.registry.Get(id)
}

// Shutdown stops accepting jobs and waits for in-flight jobs to finish.
// When ctx expires first, running jobs are cancelled and Shutdown waits for
// them to record their terminal state before returning ctx's error.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.log.Warn().Msg("orchestrator.shutdown.cancelling")
		o.cancel()
		<-done
		return ctx.Err()
	}
}
