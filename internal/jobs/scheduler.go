package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs named maintenance jobs on cron schedules in the platform
// timezone. A run that is still going when its next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	ctx     context.Context
}

func New(loc *time.Location, timeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		timeout: timeout,
		ctx:     context.Background(),
	}
}

// Add registers run under a standard five-field spec. An empty spec leaves
// the job disabled.
func (s *Scheduler) Add(name, spec string, run func(context.Context) error) error {
	if spec == "" {
		log.Printf("job disabled name=%s", name)
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.run(name, run)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) run(name string, run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	start := time.Now()
	if err := run(ctx); err != nil {
		log.Printf("job failed name=%s duration_ms=%d err=%v", name, time.Since(start).Milliseconds(), err)
		return
	}
	log.Printf("job done name=%s duration_ms=%d", name, time.Since(start).Milliseconds())
}

// Start begins firing jobs; they are cancelled when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}
