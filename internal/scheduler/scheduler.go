// Package scheduler runs ingestion on a cron schedule while the server is up.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const runTimeout = 30 * time.Minute

// Job is one scheduled ingestion run.
type Job func(ctx context.Context) error

// Scheduler triggers a Job on a cron spec. Runs never overlap: a tick that
// fires while the previous run is still going is skipped.
type Scheduler struct {
	ctx  context.Context
	cron *cron.Cron
	spec string
	job  Job
	log  *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a Scheduler. The spec is a standard five-field cron spec
// evaluated in UTC.
func New(ctx context.Context, spec string, job Job, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		ctx:  ctx,
		cron: cron.New(cron.WithLocation(time.UTC)),
		spec: spec,
		job:  job,
		log:  log,
	}
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.tick); err != nil {
		return fmt.Errorf("invalid ingest schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.log.InfoContext(s.ctx, "Ingestion scheduled", "schedule", s.spec)
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick() {
	if !s.begin() {
		s.log.WarnContext(s.ctx, "Previous ingestion still running, skipping tick")
		return
	}
	defer s.end()

	ctx, cancel := context.WithTimeout(s.ctx, runTimeout)
	defer cancel()

	if ctx.Err() != nil {
		return
	}
	if err := s.job(ctx); err != nil {
		s.log.ErrorContext(ctx, "Scheduled ingestion failed", "error", err)
	}
}

func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}
