// Package scheduler runs periodic maintenance on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anyclaw/anyclaw/internal/logger"
	"github.com/robfig/cron/v3"
)

// JobFunc is one maintenance task. The context is cancelled when the
// scheduler stops.
type JobFunc func(ctx context.Context) error

type job struct {
	name string
	spec string
	fn   JobFunc
	id   cron.EntryID
}

type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	jobs    map[string]*job
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		jobs:    make(map[string]*job),
		ctx:     ctx,
		cancel:  cancel,
		timeout: 5 * time.Minute,
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Success("Scheduler started with %d jobs", len(s.Jobs()))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	logger.Success("Scheduler stopped")
}

// Add registers fn under name, replacing any job with the same name. spec
// is a six-field cron expression (seconds first).
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.jobs[name]; exists {
		s.cron.Remove(old.id)
		delete(s.jobs, name)
	}

	j := &job{name: name, spec: spec, fn: fn}
	id, err := s.cron.AddFunc(spec, func() { s.run(j) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	j.id = id
	s.jobs[name] = j
	logger.Debug("Added job %s with cron=%s", name, spec)
	return nil
}

// RunNow executes a registered job synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job: %s", name)
	}
	return s.run(j)
}

// Jobs lists registered job names in order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) run(j *job) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := j.fn(ctx)
	if err != nil {
		logger.Error("Job %s failed after %s: %v", j.name, time.Since(start).Round(time.Millisecond), err)
		return err
	}
	logger.Debug("Job %s finished in %s", j.name, time.Since(start).Round(time.Millisecond))
	return nil
}
