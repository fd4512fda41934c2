// Package session opens and closes realtime connections on a market-hours
// schedule.
package session

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/aegis/kisrt/pkg/logger"
)

// Scheduler runs jobs on cron schedules
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron     *cron.Cron
	logger   *logger.Logger
	location *time.Location

	mu      sync.RWMutex
	jobs    map[string]Job
	entries map[string]cron.EntryID
	history map[string]*History
}

// New creates a scheduler whose schedules are read in loc.
func New(loc *time.Location, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		logger:   log.Component("session"),
		location: loc,
		jobs:     make(map[string]Job),
		entries:  make(map[string]cron.EntryID),
		history:  make(map[string]*History),
	}
}

// AddJob schedules a job. Names must be unique.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	id, err := s.cron.AddFunc(job.Schedule(), func() {
		s.runJob(context.Background(), job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.entries[name] = id
	s.history[name] = &History{}

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
		"location": s.location.String(),
	}).Info("Job added to scheduler")
	return nil
}

// RemoveJob unschedules a job.
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.entries[name]
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	s.cron.Remove(id)
	delete(s.jobs, name)
	delete(s.entries, name)
	delete(s.history, name)

	s.logger.WithField("job", name).Info("Job removed from scheduler")
	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop waits for running jobs and stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// RunJob runs a job now, outside its schedule.
func (s *Scheduler) RunJob(ctx context.Context, name string) (Result, error) {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return Result{}, fmt.Errorf("job %s not found", name)
	}
	return s.runJob(ctx, job), nil
}

func (s *Scheduler) runJob(ctx context.Context, job Job) Result {
	name := job.Name()
	start := time.Now()

	err := job.Run(ctx)
	result := Result{
		Job:       name,
		StartTime: start,
		Duration:  time.Since(start),
		Success:   err == nil,
	}
	if err != nil {
		result.Error = err.Error()
	}

	s.mu.Lock()
	if h, exists := s.history[name]; exists {
		h.add(result)
	}
	s.mu.Unlock()

	log := s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"duration": result.Duration,
	})
	if err != nil {
		log.WithError(err).Error("Job failed")
	} else {
		log.Info("Job completed")
	}
	return result
}

// Jobs returns the job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// JobStats summarizes one job.
type JobStats struct {
	Job          string     `json:"job"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	FailureCount int        `json:"failure_count"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  bool       `json:"last_success"`
	Next         *time.Time `json:"next,omitempty"`
}

// Stats returns statistics for every job.
func (s *Scheduler) Stats() []JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStats, 0, len(s.jobs))
	for name, job := range s.jobs {
		h := s.history[name]
		st := JobStats{
			Job:          name,
			Schedule:     job.Schedule(),
			TotalRuns:    len(h.Results),
			FailureCount: h.Failures(),
		}
		if last, ok := h.Last(); ok {
			t := last.StartTime
			st.LastRun = &t
			st.LastSuccess = last.Success
		}
		// 스케줄러 시작 전에는 다음 실행 시각이 없음
		if next := s.cron.Entry(s.entries[name]).Next; !next.IsZero() {
			st.Next = &next
		}
		out = append(out, st)
	}

	slices.SortFunc(out, func(a, b JobStats) int {
		return cmp.Compare(a.Job, b.Job)
	})
	return out
}
