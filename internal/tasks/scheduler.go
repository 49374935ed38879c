// Package tasks runs the periodic loops. Every firing and every submitted write
// executes on one runner goroutine, so the store only ever sees one writer.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrStopped = errors.New("tasks: scheduler stopped")

// Names of the loops serve registers.
const (
	QueueWaitlistJob      = "queue_waitlist"
	VotePassedWaitlistJob = "vote_passed_waitlist"
	AddPlayerJob          = "add_player"
	AFKTimerJob           = "afk_timer"
	MapRotationJob        = "map_rotation"
)

// TickFunc is one bounded unit of work.
type TickFunc func(ctx context.Context) error

type job struct {
	name   string
	every  time.Duration
	run    TickFunc
	queued atomic.Bool
}

type submission struct {
	fn   TickFunc
	ctx  context.Context
	done chan error
}

type Scheduler struct {
	cron     *cron.Cron
	jobs     []*job
	ready    chan *job
	submits  chan submission
	stopped  chan struct{}
	stopOnce sync.Once
	log      *slog.Logger
}

func NewScheduler(log *slog.Logger) *Scheduler {
	errLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cron.PrintfLogger(errLog))),
		submits: make(chan submission),
		stopped: make(chan struct{}),
		log:     log,
	}
}

// Add registers a loop. It must be called before Run.
func (s *Scheduler) Add(name string, every time.Duration, fn TickFunc) {
	s.jobs = append(s.jobs, &job{name: name, every: every, run: fn})
	s.ready = make(chan *job, len(s.jobs))
}

// Run starts the timers and executes work until ctx is cancelled. Each loop runs
// once immediately. A loop that is still waiting to run when its timer fires
// again is not queued twice.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, j := range s.jobs {
		j := j
		s.cron.Schedule(cron.Every(j.every), cron.FuncJob(func() { s.enqueue(j) }))
		s.enqueue(j)
	}
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.jobs))
	defer func() {
		<-s.cron.Stop().Done()
		s.stopOnce.Do(func() { close(s.stopped) })
		s.log.Info("scheduler stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-s.ready:
			j.queued.Store(false)
			start := time.Now()
			if err := s.safe(ctx, j.name, j.run); err != nil {
				s.log.Error("tick failed", "job", j.name, "error", err)
				continue
			}
			if d := time.Since(start); d > j.every {
				s.log.Warn("tick overran its interval", "job", j.name, "took", d)
			}
		case sub := <-s.submits:
			sub.done <- s.safe(sub.ctx, "submit", sub.fn)
		}
	}
}

// Trigger queues a registered loop to run as soon as the runner is free.
func (s *Scheduler) Trigger(name string) bool {
	for _, j := range s.jobs {
		if j.name == name {
			s.enqueue(j)
			return true
		}
	}
	return false
}

func (s *Scheduler) enqueue(j *job) {
	if !j.queued.CompareAndSwap(false, true) {
		return
	}
	s.ready <- j
}

// Submit runs fn on the runner between ticks and returns its error.
func (s *Scheduler) Submit(ctx context.Context, fn TickFunc) error {
	done := make(chan error, 1)
	select {
	case s.submits <- submission{fn: fn, ctx: ctx, done: done}:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) safe(ctx context.Context, name string, fn TickFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	return fn(ctx)
}
