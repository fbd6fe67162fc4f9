// Package schedule fires a job on a cron schedule with second precision.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Job is invoked at every firing.
type Job func(ctx context.Context)

// Runner invokes a Job at each time produced by its schedule. At most one
// invocation runs at a time; a firing that arrives while the previous run is
// still in progress is skipped.
type Runner struct {
	name    string
	spec    string
	sched   cron.Schedule
	job     Job
	now     func() time.Time
	running atomic.Bool
	wg      sync.WaitGroup
}

// New parses spec, a five- or six-field cron expression (seconds first when
// six fields are given) or a descriptor such as "@daily".
func New(name, spec string, job Job) (*Runner, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}
	return &Runner{name: name, spec: spec, sched: sched, job: job, now: time.Now}, nil
}

// Next returns the first firing strictly after t.
func (r *Runner) Next(t time.Time) time.Time {
	return r.sched.Next(t)
}

// Run blocks until ctx is cancelled, firing the job on schedule, then waits
// for an in-flight invocation to return.
func (r *Runner) Run(ctx context.Context) {
	logger := log.WithFields(log.Fields{"job": r.name, "schedule": r.spec})
	logger.Info("Scheduler started")
	defer r.wg.Wait()

	for {
		next := r.Next(r.now())
		if next.IsZero() {
			logger.Warn("Schedule has no future firings, stopping")
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("Scheduler stopped")
			return
		case <-timer.C:
			r.Fire(ctx)
		}
	}
}

// Fire starts one invocation in the background. It returns false when the
// previous invocation has not finished and this firing was skipped.
func (r *Runner) Fire(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		log.WithField("job", r.name).Warn("Previous run still in progress, skipping firing")
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		defer func() {
			if p := recover(); p != nil {
				log.WithField("job", r.name).Errorf("Job panicked: %v", p)
			}
		}()
		r.job(ctx)
	}()
	return true
}

// Wait blocks until the in-flight invocation, if any, has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
