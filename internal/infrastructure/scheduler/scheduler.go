package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// Job is one scheduled invocation. Next is the zero time for jobs that
// will not run again.
type Job struct {
	Name string
	Spec string
	Next time.Time
}

// Scheduler runs named jobs on cron specs (with seconds). A job that is still
// running when it is triggered again is skipped. Jobs receive a context that
// is cancelled when the scheduler stops.
type Scheduler struct {
	cron   *cron.Cron
	logger Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[cron.EntryID]Job
}

func New(logger Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[cron.EntryID]Job),
	}
}

func (s *Scheduler) AddJob(name, spec string, job func(context.Context) error) error {
	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			s.logger.Errorf("Scheduled job [%s] failed: %v", name, err)
			return
		}
		s.logger.Infof("Scheduled job [%s] completed in %v", name, time.Since(start).Round(time.Millisecond))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job [%s]: %w", name, err)
	}

	s.mu.Lock()
	s.jobs[id] = Job{Name: name, Spec: spec}
	s.mu.Unlock()

	return nil
}

// Jobs lists the scheduled jobs with their next invocation.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []Job
	for _, entry := range s.cron.Entries() {
		job, ok := s.jobs[entry.ID]
		if !ok {
			continue
		}
		job.Next = entry.Next
		jobs = append(jobs, job)
	}
	return jobs
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}
