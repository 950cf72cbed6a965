package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Refresher re-fetches the weather on a fixed cadence. The station's core
// never refreshes weather on its own cadence; this is the external timer.
type Refresher struct {
	scheduler gocron.Scheduler
}

// NewRefresher schedules refresh every interval. Each run gets its own
// timeout; errors are the callee's to log.
func NewRefresher(interval time.Duration, refresh func(ctx context.Context) error) (*Refresher, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create weather scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()
			_ = refresh(ctx)
		}),
		gocron.WithName("weather-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule weather refresh: %w", err)
	}
	return &Refresher{scheduler: s}, nil
}

// Start begins the refresh cadence.
func (r *Refresher) Start() { r.scheduler.Start() }

// Stop shuts the scheduler down and waits for a running refresh.
func (r *Refresher) Stop() error { return r.scheduler.Shutdown() }
