package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs one job on a cron spec. A tick that fires while the previous
// run is still going is skipped.
type Scheduler struct {
	cron *cron.Cron
	job  func()

	mu        sync.Mutex
	isRunning bool
}

// New registers job on spec. An invalid spec is an error.
func New(spec string, job func(), l zerolog.Logger) (*Scheduler, error) {
	cl := cronLogger{l: l}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))
	if _, err := c.AddFunc(spec, job); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, job: job}, nil
}

// Start starts ticking. Calling it while running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.cron.Start()
	s.isRunning = true
}

// Stop stops ticking. The returned context is done once a running job returns.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRunning = false
	return s.cron.Stop()
}

// RunNow executes the job in the caller's goroutine, outside the cron chain.
func (s *Scheduler) RunNow() { s.job() }

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
