// Package scheduler runs named cron jobs in a fixed timezone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/lottery-crawler/internal/metrics"
)

// ErrUnknownJob is returned by RunOnce for an unregistered name.
var ErrUnknownJob = errors.New("unknown job")

// Job is the unit of scheduled work. The context is canceled when the
// service stops.
type Job func(ctx context.Context)

// Entry describes a registered job.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next_run"`
	Prev time.Time `json:"prev_run"`
}

type registration struct {
	spec string
	id   cron.EntryID
	run  cron.Job
}

// Service wraps a cron runner with named registrations.
type Service struct {
	cron   *cron.Cron
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*registration
}

// New builds a Service evaluating specs in loc (UTC when nil).
func New(loc *time.Location, logger *zap.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cron:   cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{logger})),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*registration),
	}
}

// Register adds a job under a unique name using a standard 5-field spec
// or a descriptor such as "@every 1h".
func (s *Service) Register(name, spec string, fn Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q already registered", name)
	}

	log := cronLogger{s.logger.With(zap.String("job", name))}
	wrapped := cron.NewChain(cron.Recover(log), cron.SkipIfStillRunning(log)).
		Then(cron.FuncJob(func() {
			metrics.ObserveJob(name)
			start := time.Now()
			s.logger.Info("job started", zap.String("job", name))
			fn(s.ctx)
			s.logger.Info("job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
		}))

	id, err := s.cron.AddJob(spec, wrapped)
	if err != nil {
		return fmt.Errorf("register job %q with spec %q: %w", name, spec, err)
	}
	s.jobs[name] = &registration{spec: spec, id: id, run: wrapped}
	return nil
}

// Start begins running jobs in the background.
func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.Entries())))
}

// Stop prevents new runs and waits for running jobs to finish or for ctx to
// expire, then cancels the job context.
func (s *Service) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	defer s.cancel()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

// RunOnce executes a registered job synchronously on the caller's goroutine.
func (s *Service) RunOnce(name string) error {
	s.mu.Lock()
	reg, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownJob)
	}
	reg.run.Run()
	return nil
}

// Entries lists registrations sorted by name.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.jobs))
	for name, reg := range s.jobs {
		e := s.cron.Entry(reg.id)
		out = append(out, Entry{Name: name, Spec: reg.spec, Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
