package sol

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// Scheduler drives the three SOL jobs off wall-clock triggers using a
// single cooperative loop (§4.3, §5 "single cooperative scheduler running
// jobs sequentially"), adapted from the python original's schedule-based
// loop into Go's idiomatic ticker pattern.
type Scheduler struct {
	runner *Runner

	mu      sync.Mutex
	running map[string]bool

	seq sync.Mutex // held while a job executes, so jobs run one at a time
}

func NewScheduler(runner *Runner) *Scheduler {
	return &Scheduler{runner: runner, running: make(map[string]bool)}
}

// Run blocks until ctx is cancelled, checking every minute whether any job
// is due. Jobs run in their own goroutine so a slow job doesn't delay the
// next tick's due-check; they still execute one at a time, and two firings
// of the *same* job never overlap (§5 overlap-skip semantics: the second is
// logged skipped_overlap).
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	log.Info().Msg("sol: scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sol: scheduler stopping")
			return
		case now := <-ticker.C:
			s.checkDue(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) checkDue(ctx context.Context, now time.Time) {
	if now.Hour() == 0 && now.Minute() == 1 {
		s.fire(ctx, JobDailyBSERecalculation, s.runner.RunDailyBSERecalculation)
	}
	if now.Weekday() == time.Monday && now.Hour() == 0 && now.Minute() == 10 {
		s.fire(ctx, JobWeeklyChallengesReset, s.runner.RunWeeklyChallengesReset)
	}
	if now.Minute() == 0 {
		s.fire(ctx, JobHourlyFlaggedDetection, s.runner.RunHourlyFlaggedUserDetection)
	}
}

func (s *Scheduler) fire(ctx context.Context, jobName string, job func(context.Context)) {
	s.mu.Lock()
	if s.running[jobName] {
		s.mu.Unlock()
		log.Warn().Str("job", jobName).Msg("sol: previous firing still running, skipping")
		s.runner.jobLogs.Create(ctx, &models.JobLog{
			JobName: jobName,
			Status:  models.JobStatusSkippedOverlap,
		})
		return
	}
	s.running[jobName] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.running[jobName] = false
			s.mu.Unlock()
		}()
		s.seq.Lock()
		defer s.seq.Unlock()
		job(ctx)
	}()
}
