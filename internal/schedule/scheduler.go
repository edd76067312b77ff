// Package schedule drives refresh and collection passes on cron specs.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is one scheduled unit of work
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type entry struct {
	job    Job
	active atomic.Bool
}

// Scheduler runs registered jobs. A job still running from its previous
// tick is skipped, and at most maxConcurrent jobs run at once.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.RWMutex
	jobs    map[string]*entry
	running chan struct{}
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a stopped scheduler
func New(maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	logger := cron.PrintfLogger(logrus.StandardLogger())

	return &Scheduler{
		cron:    cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger))),
		jobs:    make(map[string]*entry),
		running: make(chan struct{}, maxConcurrent),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a job under its cron spec
func (s *Scheduler) Register(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}

	e := &entry{job: job}
	if _, err := s.cron.AddFunc(job.Spec, func() { s.execute(e) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Spec, job.Name, err)
	}
	s.jobs[job.Name] = e

	logrus.WithFields(logrus.Fields{
		"job":  job.Name,
		"spec": job.Spec,
	}).Info("Job registered")
	return nil
}

// Start begins firing jobs
func (s *Scheduler) Start() {
	s.cron.Start()
	logrus.Infof("Scheduler started with %d jobs", len(s.Jobs()))
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	logrus.Info("Scheduler stopped")
}

// Trigger runs a job now, outside its schedule
func (s *Scheduler) Trigger(name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(e)
	}()
	return nil
}

// Jobs returns the registered job names, sorted
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// execute runs e once and reports whether it actually ran
func (s *Scheduler) execute(e *entry) bool {
	log := logrus.WithField("job", e.job.Name)

	if !e.active.CompareAndSwap(false, true) {
		log.Warn("Job skipped: previous run still active")
		return false
	}
	defer e.active.Store(false)

	select {
	case s.running <- struct{}{}:
		defer func() { <-s.running }()
	default:
		log.Warn("Job skipped: max concurrent jobs reached")
		return false
	}

	if s.ctx.Err() != nil {
		return false
	}

	ctx := s.ctx
	if e.job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.job.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := e.job.Run(ctx); err != nil {
		log.WithField("duration", time.Since(start)).Errorf("Job failed: %v", err)
		return true
	}
	log.WithField("duration", time.Since(start)).Debug("Job finished")
	return true
}
