// Package jobs runs periodic background work on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"crewshift-bot/internal/service"
)

type Sweeper interface {
	Sweep(ctx context.Context) service.SweepReport
}

// ReminderJob runs reminder sweeps on a cron schedule. Overlapping runs are skipped.
type ReminderJob struct {
	cron     *cron.Cron
	sweeper  Sweeper
	schedule string
	timeout  time.Duration
	jobID    cron.EntryID

	// mu serializes scheduled and manual sweeps.
	mu sync.Mutex
}

func NewReminderJob(sweeper Sweeper, schedule string, timeout time.Duration, loc *time.Location) *ReminderJob {
	if loc == nil {
		loc = time.UTC
	}
	return &ReminderJob{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		sweeper:  sweeper,
		schedule: schedule,
		timeout:  timeout,
	}
}

// Start schedules the sweep. An empty schedule leaves the job disabled.
func (j *ReminderJob) Start() error {
	if j.schedule == "" {
		log.Println("Reminder scheduler disabled: REMINDER_SCHEDULE is empty")
		return nil
	}
	var err error
	j.jobID, err = j.cron.AddFunc(j.schedule, func() {
		j.Run(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule reminders %q: %w", j.schedule, err)
	}
	j.cron.Start()
	log.Printf("Reminder scheduler started: %s", j.schedule)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (j *ReminderJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	log.Println("Reminder scheduler stopped")
}

// Run performs one sweep bounded by the configured timeout.
func (j *ReminderJob) Run(ctx context.Context) service.SweepReport {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	return j.sweeper.Sweep(ctx)
}
