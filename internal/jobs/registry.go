// Package jobs keeps the in-memory state of submitted batches. Job state is
// ephemeral: it lives only in process memory and expires after a TTL.
package jobs

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown or expired job IDs.
	ErrNotFound = errors.New("job not found")
	// ErrFinished is returned when mutating a job that reached a terminal status.
	ErrFinished = errors.New("job already finished")
	// ErrNotStarted is returned when reporting progress on a queued job.
	ErrNotStarted = errors.New("job not started")
)

// Status is a job lifecycle state.
type Status string

const (
	StatusQueued              Status = "queued"
	StatusProcessing          Status = "processing"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed:
		return true
	}
	return false
}

// DefaultTTL is how long a job is retained after creation.
const DefaultTTL = 24 * time.Hour

// Progress milestones.
const (
	ProgressQueued  = 0
	ProgressStarted = 10
	ProgressDone    = 100
)

// Job is a snapshot of one batch's lifecycle.
type Job struct {
	ID       string `json:"task_id"`
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`
	Total    int    `json:"total"`

	CreatedAt time.Time `json:"-"`
}

// RegistryOpts configures a Registry.
type RegistryOpts struct {
	// TTL defaults to DefaultTTL.
	TTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Registry is a concurrency-safe job store keyed by job ID.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
	now  func() time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts RegistryOpts) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{jobs: make(map[string]*Job), ttl: opts.TTL, now: opts.Now}
}

// Create registers a new queued job for a batch of total items.
func (r *Registry) Create(total int) Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Progress:  ProgressQueued,
		Message:   "Task queued",
		Total:     total,
		CreatedAt: r.now(),
	}
	r.jobs[j.ID] = j
	return *j
}

// Get returns a copy of job id. Expired jobs are evicted and reported as
// ErrNotFound.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.lookup(id)
	if err != nil {
		return Job{}, err
	}
	return *j, nil
}

// Start moves a queued job to processing at ProgressStarted.
func (r *Registry) Start(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.lookup(id)
	if err != nil {
		return err
	}
	switch {
	case j.Status.Terminal():
		return fmt.Errorf("jobs: start %s: %w", id, ErrFinished)
	case j.Status == StatusProcessing:
		return nil
	}
	j.Status = StatusProcessing
	j.Progress = ProgressStarted
	j.Message = "Processing started"
	return nil
}

// Progress records progress on a processing job. Progress never decreases
// and is clamped to [0, 100].
func (r *Registry) Progress(id string, pct int, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.lookup(id)
	if err != nil {
		return err
	}
	switch j.Status {
	case StatusQueued:
		return fmt.Errorf("jobs: progress %s: %w", id, ErrNotStarted)
	case StatusProcessing:
	default:
		return fmt.Errorf("jobs: progress %s: %w", id, ErrFinished)
	}
	pct = min(max(pct, 0), ProgressDone)
	if pct > j.Progress {
		j.Progress = pct
	}
	j.Message = message
	return nil
}

// RecordError appends msg to the job's error without changing its status.
func (r *Registry) RecordError(id, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.lookup(id)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		return fmt.Errorf("jobs: record error %s: %w", id, ErrFinished)
	}
	if j.Error == "" {
		j.Error = msg
	} else {
		j.Error = strings.Join([]string{j.Error, msg}, "; ")
	}
	return nil
}

// Finish moves a job to the terminal status at ProgressDone.
func (r *Registry) Finish(id string, status Status, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("jobs: finish %s: status %q is not terminal", id, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.lookup(id)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		return fmt.Errorf("jobs: finish %s: %w", id, ErrFinished)
	}
	j.Status = status
	j.Progress = ProgressDone
	j.Message = message
	return nil
}

// Sweep evicts every expired job and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for id, j := range r.jobs {
		if r.expired(j, now) {
			delete(r.jobs, id)
			n++
		}
	}
	return n
}

// Len returns the number of retained jobs, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// lookup returns the live job for id. Callers hold r.mu.
func (r *Registry) lookup(id string) (*Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("jobs: %s: %w", id, ErrNotFound)
	}
	if r.expired(j, r.now()) {
		delete(r.jobs, id)
		return nil, fmt.Errorf("jobs: %s: %w", id, ErrNotFound)
	}
	return j, nil
}

func (r *Registry) expired(j *Job, now time.Time) bool {
	return now.Sub(j.CreatedAt) > r.ttl
}
