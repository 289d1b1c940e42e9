package verify

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires the reconciler on a fixed cadence. Overlapping ticks are
// prevented, not discouraged: the single cron entry is wrapped in
// SkipIfStillRunning, so a slow tick makes the next one a no-op.
type Scheduler struct {
	rec    *Reconciler
	cron   *cron.Cron
	job    cron.Job
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(rec *Reconciler) *Scheduler {
	return &Scheduler{rec: rec}
}

// Start schedules ticks every interval and fires one immediately. The
// initial run goes through the same single-flight chain as scheduled ones.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	clog := cron.PrintfLogger(log.Default())
	s.cron = cron.New()
	s.job = cron.NewChain(
		cron.Recover(clog),
		cron.SkipIfStillRunning(clog),
	).Then(cron.FuncJob(s.run))
	s.cron.Schedule(cron.Every(interval), s.job)
	s.cron.Start()

	go s.job.Run()
	log.Printf("verify: reconciliation scheduled every %v", interval)
}

// Stop cancels in-flight work and waits for the running tick to drain.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	log.Printf("verify: reconciliation stopped")
}

func (s *Scheduler) run() {
	if err := s.rec.Tick(s.ctx); err != nil {
		if s.ctx.Err() != nil {
			return
		}
		log.Printf("verify: tick failed: %v", err)
	}
}
