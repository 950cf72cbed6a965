// Package station is the lifecycle controller: it boots the station with a
// synchronous self-test, runs the periodic capture, status and camera
// reconnect tasks, and owns the restart and shutdown paths.
package station

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"mothstation/internal/hardware"
	"mothstation/internal/logger"
	"mothstation/internal/models"
	"mothstation/internal/scheduler"
	"mothstation/internal/service"
	"mothstation/internal/weather"
)

const shutdownTimeout = 30 * time.Second

// Button assignments on the display panel.
const (
	ButtonReconnect = 1
	ButtonPoll      = 2
	ButtonRestart   = 3
)

// ButtonPanel binds physical buttons to handlers and delivers presses.
type ButtonPanel interface {
	SetButtonHandler(button int, fn func()) error
	Dispatch(ctx context.Context, events <-chan hardware.ButtonEvent)
}

type Rebooter interface {
	Reboot(ctx context.Context) error
}

// Deps are the collaborators of the controller. Panel, Buttons, Camera and
// Notify are optional.
type Deps struct {
	Config   service.ConfigStore
	Power    service.Power
	Capture  service.Capture
	Status   service.Status
	Weather  service.Weather
	Journal  service.EventLog
	Panel    ButtonPanel
	Buttons  <-chan hardware.ButtonEvent
	Camera   io.Closer
	Rebooter Rebooter
	Notify   func(state string) error
	Clock    clockwork.Clock
	Log      *logger.Logger
}

// Controller runs the station from boot to shutdown.
type Controller struct {
	Deps

	tasks     scheduler.Group
	pictures  *scheduler.Task
	status    *scheduler.Task
	reconnect *scheduler.Task
	refresher *weather.Refresher

	// base context handed to task and button callbacks
	ctx context.Context

	mu         sync.Mutex
	restarting bool
	stopping   bool
}

// New builds the controller and its scheduled tasks in the stopped state.
// Task intervals are read once; changes take effect on the next start.
func New(d Deps) *Controller {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Notify == nil {
		d.Notify = func(string) error { return nil }
	}
	c := &Controller{Deps: d, ctx: context.Background()}

	cfg := d.Config.Current()
	opts := []scheduler.Option{scheduler.Stopped(), scheduler.WithClock(d.Clock)}
	c.pictures = scheduler.New("pictures", cfg.CaptureEvery(), c.captureCycle, opts...)
	c.status = scheduler.New("status", cfg.PollEvery(), c.pollCycle, opts...)
	c.reconnect = scheduler.New("camera-reconnect", cfg.ReconnectEvery(), c.reconnectCycle, opts...)
	c.tasks.Add(c.pictures, c.status, c.reconnect)
	return c
}

// Tasks returns the scheduled tasks owned by the controller.
func (c *Controller) Tasks() []*scheduler.Task { return c.tasks.Tasks() }

// Run boots the station, serves until ctx is cancelled and then shuts down.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = context.WithoutCancel(ctx)
	cfg := c.Config.Current()
	c.Log.Infow("station_starting",
		"capture_interval", cfg.CaptureEvery(),
		"polling_interval", cfg.PollEvery(),
		"cam_reconnect_interval", cfg.ReconnectEvery(),
	)
	c.Journal.Record(ctx, models.EventStart, "station starting", nil)

	if err := c.Status.Restore(ctx); err != nil {
		c.Log.Warnw("status_restore_failed", "err", err)
	}
	c.Status.SetRestarter(c.Restart)

	if err := c.Power.SetRelais(ctx, service.RelayOn); err != nil {
		c.Log.Errorw("relay_init_failed", "err", err)
	}
	c.bindButtons(ctx)

	if err := c.Weather.Refresh(ctx); err != nil {
		c.Log.Warnw("initial_weather_failed", "err", err)
	}
	c.selfTest(ctx)

	if cfg.UseWeatherData || cfg.PowerSaveWeather {
		r, err := weather.NewRefresher(cfg.WeatherEvery(), c.Weather.Refresh)
		if err != nil {
			c.Log.Errorw("weather_refresher_failed", "err", err)
		} else {
			c.refresher = r
			r.Start()
		}
	}

	c.tasks.StartAll()
	if err := c.Notify("READY=1"); err != nil {
		c.Log.Warnw("notify_ready_failed", "err", err)
	}
	c.Log.Infow("station_ready")

	<-ctx.Done()
	return c.shutdown()
}

func (c *Controller) bindButtons(ctx context.Context) {
	if c.Panel == nil {
		return
	}
	bindings := map[int]func(){
		ButtonReconnect: func() { c.reconnectCycle() },
		ButtonPoll:      func() { c.pollCycle() },
		ButtonRestart:   func() { c.Restart(c.ctx) },
	}
	for id, fn := range bindings {
		if err := c.Panel.SetButtonHandler(id, fn); err != nil {
			c.Log.Errorw("button_bind_failed", "button", id, "err", err)
		}
	}
	if c.Buttons != nil {
		go c.Panel.Dispatch(ctx, c.Buttons)
	}
}

// selfTest surfaces hardware problems at boot instead of in the background.
func (c *Controller) selfTest(ctx context.Context) {
	if !c.Capture.ReconnectCamera(ctx) {
		c.Log.Warnw("selftest_camera_unavailable")
	}
	_ = c.Status.Poll(ctx)
	if _, err := c.Capture.TakePicture(ctx); err != nil {
		c.Log.Errorw("selftest_capture_failed", "err", err)
	}
	_ = c.Status.Poll(ctx)
}

// captureCycle runs one capture. The capture policy logs and journals its
// own failures.
func (c *Controller) captureCycle() {
	res, _ := c.Capture.TakePicture(c.ctx)
	c.Log.Debugw("capture_cycle", "outcome", res.Outcome, "picture", res.Picture, "reason", res.Reason)
}

// pollCycle runs the status aggregator. It logs and journals its own errors
// and may enter the restart path.
func (c *Controller) pollCycle() {
	_ = c.Status.Poll(c.ctx)
}

func (c *Controller) reconnectCycle() {
	ok := c.Capture.ReconnectCamera(c.ctx)
	c.Log.Infow("camera_reconnect", "available", ok)
}

// Restart stops the tasks, waits for a running capture, switches the relay
// off and reboots the host. It is safe to call from the status callback. If
// the reboot command fails the station resumes normal operation, unless
// shutdown has begun, and the next poll tries again.
func (c *Controller) Restart(ctx context.Context) {
	c.mu.Lock()
	if c.restarting || c.stopping {
		c.mu.Unlock()
		return
	}
	c.restarting = true
	c.mu.Unlock()

	c.Log.Warnw("station_restarting")
	c.tasks.StopAll()
	// a capture in flight restores the lamp when it returns
	waitCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	if err := c.pictures.StopWait(waitCtx); err != nil {
		c.Log.Warnw("restart_capture_still_running", "err", err)
	}
	cancel()

	if err := c.Power.SetRelais(ctx, service.RelayOff); err != nil {
		c.Log.Errorw("relay_off_failed", "err", err)
	}
	c.Journal.Record(ctx, models.EventRestart, "restarting station", nil)

	err := c.Rebooter.Reboot(ctx)
	if err == nil {
		return
	}
	c.Log.Errorw("reboot_failed", "err", err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.restarting = false
	if c.stopping {
		return
	}
	if err := c.Power.SetRelais(ctx, service.RelayOn); err != nil {
		c.Log.Errorw("relay_init_failed", "err", err)
	}
	c.tasks.StartAll()
}

func (c *Controller) shutdown() error {
	c.mu.Lock()
	c.stopping = true
	c.mu.Unlock()

	c.Log.Infow("station_stopping")
	_ = c.Notify("STOPPING=1")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := c.tasks.StopAllWait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop tasks: %w", err))
	}
	if c.refresher != nil {
		if err := c.refresher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop weather refresher: %w", err))
		}
	}
	if err := c.Power.SetRelais(ctx, service.RelayOff); err != nil {
		errs = append(errs, fmt.Errorf("relay off: %w", err))
	}
	if c.Camera != nil {
		if err := c.Camera.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close camera: %w", err))
		}
	}
	c.Journal.Record(ctx, models.EventStop, "station stopped", nil)

	err := errors.Join(errs...)
	if err != nil {
		c.Log.Errorw("station_stopped_with_errors", "err", err)
	} else {
		c.Log.Infow("station_stopped")
	}
	return err
}
