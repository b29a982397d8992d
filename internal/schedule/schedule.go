// Package schedule fires index maintenance jobs at fixed times of day.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fruitsalade/folderserve/internal/logging"
	"github.com/fruitsalade/folderserve/internal/retry"
	"go.uber.org/zap"
)

// At is a wall-clock time of day.
type At struct {
	Hour   int
	Minute int
}

// ParseAt parses "HH:MM" (24-hour clock).
func ParseAt(s string) (At, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return At{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return At{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return At{}, fmt.Errorf("invalid minute in %q", s)
	}
	return At{Hour: hour, Minute: minute}, nil
}

// MustParseAt is ParseAt for constants.
func MustParseAt(s string) At {
	at, err := ParseAt(s)
	if err != nil {
		panic(err)
	}
	return at
}

func (a At) String() string {
	return fmt.Sprintf("%02d:%02d", a.Hour, a.Minute)
}

// Next returns the first time strictly after now that falls on at, in now's location.
func Next(now time.Time, at At) time.Time {
	y, mo, d := now.Date()
	t := time.Date(y, mo, d, at.Hour, at.Minute, 0, 0, now.Location())
	if !t.After(now) {
		t = time.Date(y, mo, d+1, at.Hour, at.Minute, 0, 0, now.Location())
	}
	return t
}

// Job is one daily task.
type Job struct {
	Name string
	At   At
	Run  func(ctx context.Context) error
}

// Options configures a Scheduler.
type Options struct {
	// Retry applies when a job returns an error marked with retry.Retryable.
	Retry retry.Config
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// Scheduler runs each job once a day at its fire time. Jobs never share a
// fire time.
type Scheduler struct {
	opts Options

	mu      sync.Mutex
	jobs    []Job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a scheduler.
func New(opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.After == nil {
		opts.After = time.After
	}
	if opts.Retry.MaxAttempts == 0 && opts.Retry.InitialWait == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	return &Scheduler{opts: opts}
}

// Add registers a job. It fails if another job already fires at the same time.
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already started")
	}
	for _, j := range s.jobs {
		if j.At == job.At {
			return fmt.Errorf("job %q fires at %s, same as %q", job.Name, job.At, j.Name)
		}
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Jobs returns the registered jobs.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Start launches one goroutine per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
		logging.Info("job scheduled",
			zap.String("job", job.Name),
			zap.String("at", job.At.String()),
			zap.Time("next", Next(s.opts.Now(), job.At)))
	}
}

// Stop cancels all jobs and waits for a running one to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()
	for {
		now := s.opts.Now()
		wait := Next(now, job.At).Sub(now)
		select {
		case <-ctx.Done():
			return
		case <-s.opts.After(wait):
			s.RunJob(ctx, job)
		}
	}
}

// RunJob runs job to completion, retrying while it reports a retryable error.
func (s *Scheduler) RunJob(ctx context.Context, job Job) error {
	start := time.Now()
	cfg := s.opts.Retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		logging.Warn("job deferred",
			zap.String("job", job.Name),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := retry.Do(ctx, cfg, job.Run)
	if err != nil {
		logging.Error("job failed",
			zap.String("job", job.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return err
	}
	logging.Info("job completed",
		zap.String("job", job.Name),
		zap.Duration("duration", time.Since(start)))
	return nil
}
