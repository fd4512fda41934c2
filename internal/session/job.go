package session

import (
	"context"
	"time"
)

// Job is a scheduled task
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string
	// Schedule is a cron expression with a seconds field, e.g. "0 30 8 * * 1-5"
	Schedule() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name     string
	schedule string
	fn       func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Schedule() string              { return j.schedule }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

// NewJob wraps fn as a Job.
func NewJob(name, schedule string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, schedule: schedule, fn: fn}
}

// Result is one job execution.
type Result struct {
	Job       string        `json:"job"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

const historyLimit = 50

// History keeps the latest results of a job.
type History struct {
	Results []Result
}

func (h *History) add(r Result) {
	h.Results = append(h.Results, r)
	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}
}

// Last returns the latest result.
func (h *History) Last() (Result, bool) {
	if len(h.Results) == 0 {
		return Result{}, false
	}
	return h.Results[len(h.Results)-1], true
}

// Failures counts failed runs.
func (h *History) Failures() int {
	n := 0
	for _, r := range h.Results {
		if !r.Success {
			n++
		}
	}
	return n
}
