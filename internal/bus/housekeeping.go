package bus

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// HousekeepingOptions configures the bus-owned background timers.
type HousekeepingOptions struct {
	// HealthCheckEvery is the agent health probe interval. Zero means 30s.
	HealthCheckEvery time.Duration
	// PruneEvery is the terminal-workflow sweep interval. Zero means 5m.
	PruneEvery time.Duration
	// WorkflowRetention keeps terminal workflows queryable for this long.
	// Zero means 1h.
	WorkflowRetention time.Duration
}

// StartHousekeeping launches the periodic health checks and the workflow
// sweep. The jobs are owned by the bus: StopHousekeeping shuts them down and
// waits for a running job to return. Job failures are logged and never reach
// in-flight requests.
func (b *Bus) StartHousekeeping(opts HousekeepingOptions) error {
	if b.cron != nil {
		return fmt.Errorf("housekeeping already started")
	}
	if opts.HealthCheckEvery <= 0 {
		opts.HealthCheckEvery = 30 * time.Second
	}
	if opts.PruneEvery <= 0 {
		opts.PruneEvery = 5 * time.Minute
	}
	if opts.WorkflowRetention <= 0 {
		opts.WorkflowRetention = time.Hour
	}

	c := cron.New()

	_, err := c.AddFunc(every(opts.HealthCheckEvery), func() {
		defer logPanic("health check")
		b.registry.CheckNow(context.Background())
	})
	if err != nil {
		return fmt.Errorf("housekeeping: schedule health check: %w", err)
	}

	_, err = c.AddFunc(every(opts.PruneEvery), func() {
		defer logPanic("workflow sweep")
		if n := b.workflows.PruneTerminal(opts.WorkflowRetention); n > 0 {
			log.Printf("bus: pruned %d terminal workflows", n)
		}
	})
	if err != nil {
		return fmt.Errorf("housekeeping: schedule workflow sweep: %w", err)
	}

	c.Start()
	b.cron = c
	return nil
}

// StopHousekeeping stops the timers and waits for any running job to finish.
func (b *Bus) StopHousekeeping() {
	if b.cron == nil {
		return
	}
	<-b.cron.Stop().Done()
	b.cron = nil
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

func logPanic(job string) {
	if r := recover(); r != nil {
		log.Printf("bus: %s job panicked: %v", job, r)
	}
}
