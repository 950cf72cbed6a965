package station

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"mothstation/internal/config"
	"mothstation/internal/hardware"
	"mothstation/internal/models"
	"mothstation/internal/service"
	"mothstation/internal/weather"
)

// recorder collects the calls of every stub in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
	seen  chan string
}

func newRecorder() *recorder { return &recorder{seen: make(chan string, 64)} }

func (r *recorder) add(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	select {
	case r.seen <- call:
	default:
	}
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.list() {
		if c == call {
			n++
		}
	}
	return n
}

func (r *recorder) waitFor(t *testing.T, call string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-r.seen:
			if got == call {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q; calls so far: %v", call, r.list())
		}
	}
}

type fakeConfig struct{ cfg config.Config }

func (f *fakeConfig) Current() config.Config                     { return f.cfg }
func (f *fakeConfig) Settings() map[string]any                   { return nil }
func (f *fakeConfig) UpdateFromMap(map[string]any) (bool, error) { return true, nil }
func (f *fakeConfig) Save() error                                { return nil }

type fakePower struct{ rec *recorder }

func (p *fakePower) SetRelais(_ context.Context, state string) error {
	p.rec.add("relay:" + state)
	return nil
}
func (p *fakePower) PowerSaveMode() bool      { return false }
func (p *fakePower) State() models.PowerState { return models.PowerEngaged }
func (p *fakePower) Relays() map[int]bool     { return nil }

type fakeCapture struct {
	rec  *recorder
	mu   sync.Mutex
	hold chan struct{} // when set, the next capture blocks until it is closed
}

func (c *fakeCapture) holdNext() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold = make(chan struct{})
	return c.hold
}

func (c *fakeCapture) TakePicture(context.Context) (service.CaptureResult, error) {
	c.rec.add("capture")
	c.mu.Lock()
	hold := c.hold
	c.hold = nil
	c.mu.Unlock()
	if hold != nil {
		<-hold
		c.rec.add("capture:done")
	}
	return service.CaptureResult{Outcome: service.OutcomeSaved}, nil
}

func (c *fakeCapture) ReconnectCamera(context.Context) bool {
	c.rec.add("reconnect")
	return true
}

type fakeStatus struct {
	rec       *recorder
	mu        sync.Mutex
	restarter func(context.Context)
}

func (s *fakeStatus) Poll(context.Context) error {
	s.rec.add("poll")
	return nil
}
func (s *fakeStatus) Snapshot() models.StatusSnapshot { return models.StatusSnapshot{} }
func (s *fakeStatus) StatusImage() ([]byte, error)    { return nil, service.ErrNoStatusImage }
func (s *fakeStatus) Restore(context.Context) error {
	s.rec.add("restore")
	return nil
}
func (s *fakeStatus) SetRestarter(fn func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarter = fn
}

type fakeWeather struct{ rec *recorder }

func (w *fakeWeather) Refresh(context.Context) error {
	w.rec.add("weather")
	return errors.New("offline")
}
func (w *fakeWeather) Current() weather.Conditions { return weather.DefaultConditions() }

type fakeJournal struct{ rec *recorder }

func (j *fakeJournal) Record(_ context.Context, typ, _ string, _ any) { j.rec.add("journal:" + typ) }
func (j *fakeJournal) List(context.Context, service.LogFilter) ([]models.StationEvent, error) {
	return nil, nil
}

type fakePanel struct {
	rec      *recorder
	mu       sync.Mutex
	handlers map[int]func()
}

func (p *fakePanel) SetButtonHandler(button int, fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handlers == nil {
		p.handlers = map[int]func(){}
	}
	p.handlers[button] = fn
	return nil
}

func (p *fakePanel) Dispatch(ctx context.Context, events <-chan hardware.ButtonEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.mu.Lock()
			fn := p.handlers[ev.Button]
			p.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	}
}

type fakeRebooter struct {
	rec    *recorder
	err    error
	during func()
}

func (r *fakeRebooter) Reboot(context.Context) error {
	r.rec.add("reboot")
	if r.during != nil {
		r.during()
	}
	return r.err
}

type fakeCamera struct{ rec *recorder }

func (c *fakeCamera) Close() error {
	c.rec.add("camera:close")
	return nil
}

type fixture struct {
	rec      *recorder
	clock    *clockwork.FakeClock
	cfg      *fakeConfig
	capture  *fakeCapture
	status   *fakeStatus
	panel    *fakePanel
	rebooter *fakeRebooter
	buttons  chan hardware.ButtonEvent
	deps     Deps
}

func newFixture() *fixture {
	rec := newRecorder()
	f := &fixture{
		rec:      rec,
		clock:    clockwork.NewFakeClock(),
		cfg:      &fakeConfig{cfg: config.Defaults()},
		capture:  &fakeCapture{rec: rec},
		status:   &fakeStatus{rec: rec},
		panel:    &fakePanel{rec: rec},
		rebooter: &fakeRebooter{rec: rec},
		buttons:  make(chan hardware.ButtonEvent, 1),
	}
	f.deps = Deps{
		Config:   f.cfg,
		Power:    &fakePower{rec: rec},
		Capture:  f.capture,
		Status:   f.status,
		Weather:  &fakeWeather{rec: rec},
		Journal:  &fakeJournal{rec: rec},
		Panel:    f.panel,
		Buttons:  f.buttons,
		Camera:   &fakeCamera{rec: rec},
		Rebooter: f.rebooter,
		Notify: func(state string) error {
			rec.add("notify:" + state)
			return nil
		},
		Clock: f.clock,
	}
	return f
}

// start runs the controller until the returned stop func is called.
func (f *fixture) start(t *testing.T) (*Controller, func() error) {
	t.Helper()
	c := New(f.deps)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	f.rec.waitFor(t, "notify:READY=1")
	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
	return c, stop
}

func TestNew_TasksCreatedStopped(t *testing.T) {
	f := newFixture()
	c := New(f.deps)

	tasks := c.Tasks()
	require.Len(t, tasks, 3)
	want := map[string]time.Duration{
		"pictures":         300 * time.Second,
		"status":           60 * time.Second,
		"camera-reconnect": 18000 * time.Second,
	}
	for _, task := range tasks {
		require.False(t, task.Running(), task.Name())
		require.Equal(t, want[task.Name()], task.Interval(), task.Name())
	}
}

func TestRun_BootSequenceAndShutdown(t *testing.T) {
	f := newFixture()
	c, stop := f.start(t)

	for _, task := range c.Tasks() {
		require.True(t, task.Running(), task.Name())
	}
	require.NoError(t, stop())

	require.Equal(t, []string{
		"journal:" + models.EventStart,
		"restore",
		"relay:on",
		"weather",
		"reconnect",
		"poll",
		"capture",
		"poll",
		"notify:READY=1",
		"notify:STOPPING=1",
		"relay:off",
		"camera:close",
		"journal:" + models.EventStop,
	}, f.rec.list())

	for _, task := range c.Tasks() {
		require.False(t, task.Running(), task.Name())
	}
	f.panel.mu.Lock()
	require.Len(t, f.panel.handlers, 3)
	f.panel.mu.Unlock()
}

func TestRun_TasksFireOnTheirCadence(t *testing.T) {
	f := newFixture()
	_, stop := f.start(t)
	defer func() { require.NoError(t, stop()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 3))

	f.clock.Advance(60 * time.Second)
	f.rec.waitFor(t, "poll")
	require.Equal(t, 1, f.rec.count("capture"))

	require.NoError(t, f.clock.BlockUntilContext(ctx, 3))
	f.clock.Advance(240 * time.Second)
	f.rec.waitFor(t, "capture")
}

func TestButtons_DispatchToHandlers(t *testing.T) {
	f := newFixture()
	_, stop := f.start(t)
	defer func() { require.NoError(t, stop()) }()

	f.buttons <- hardware.ButtonEvent{Button: ButtonPoll, At: time.Now()}
	f.rec.waitFor(t, "poll")

	f.buttons <- hardware.ButtonEvent{Button: ButtonReconnect, At: time.Now()}
	f.rec.waitFor(t, "reconnect")
}

func TestRestart_StopsTasksAndReboots(t *testing.T) {
	f := newFixture()
	c, stop := f.start(t)

	f.status.mu.Lock()
	restart := f.status.restarter
	f.status.mu.Unlock()
	require.NotNil(t, restart)

	restart(context.Background())
	restart(context.Background())

	require.Equal(t, 1, f.rec.count("reboot"))
	require.Equal(t, 1, f.rec.count("journal:"+models.EventRestart))
	for _, task := range c.Tasks() {
		require.False(t, task.Running(), task.Name())
	}
	require.NoError(t, stop())
}

func TestRestart_RebootFailureResumesOperation(t *testing.T) {
	f := newFixture()
	f.rebooter.err = errors.New("sudo: a password is required")
	c, stop := f.start(t)
	defer func() { require.NoError(t, stop()) }()

	before := f.rec.count("relay:on")
	c.Restart(context.Background())

	require.Equal(t, 1, f.rec.count("reboot"))
	require.Equal(t, before+1, f.rec.count("relay:on"))
	for _, task := range c.Tasks() {
		require.True(t, task.Running(), task.Name())
	}

	c.Restart(context.Background())
	require.Equal(t, 2, f.rec.count("reboot"), fmt.Sprint(f.rec.list()))
}

func indexOf(calls []string, call string, from int) int {
	for i := from; i < len(calls); i++ {
		if calls[i] == call {
			return i
		}
	}
	return -1
}

func TestRestart_WaitsForRunningCapture(t *testing.T) {
	f := newFixture()
	c, stop := f.start(t)
	defer func() { require.NoError(t, stop()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 3))

	hold := f.capture.holdNext()
	booted := len(f.rec.list())
	f.clock.Advance(300 * time.Second)
	f.rec.waitFor(t, "capture")

	restarted := make(chan struct{})
	go func() {
		c.Restart(context.Background())
		close(restarted)
	}()
	close(hold)
	select {
	case <-restarted:
	case <-time.After(2 * time.Second):
		t.Fatal("restart did not finish")
	}

	calls := f.rec.list()
	done := indexOf(calls, "capture:done", booted)
	off := indexOf(calls, "relay:off", booted)
	require.NotEqual(t, -1, done, fmt.Sprint(calls))
	require.Greater(t, off, done, "relay switched off before the capture returned: %v", calls)
	require.Equal(t, -1, indexOf(calls, "relay:on", off), "lamp re-energized after restart: %v", calls)
	require.Equal(t, 1, f.rec.count("reboot"))
}

func TestRestart_AfterShutdownIsIgnored(t *testing.T) {
	f := newFixture()
	f.rebooter.err = errors.New("sudo: a password is required")
	c, stop := f.start(t)
	require.NoError(t, stop())

	c.Restart(context.Background())
	require.Zero(t, f.rec.count("reboot"))
	for _, task := range c.Tasks() {
		require.False(t, task.Running(), task.Name())
	}
}

func TestRestart_FailedRebootDuringShutdownDoesNotResume(t *testing.T) {
	f := newFixture()
	f.rebooter.err = errors.New("reboot: interrupted")
	c, stop := f.start(t)
	f.rebooter.during = func() { require.NoError(t, stop()) }

	onBefore := f.rec.count("relay:on")
	c.Restart(context.Background())

	require.Equal(t, 1, f.rec.count("reboot"))
	require.Equal(t, onBefore, f.rec.count("relay:on"))
	for _, task := range c.Tasks() {
		require.False(t, task.Running(), task.Name())
	}
}

func TestRun_WeatherRefresherWhenEnabled(t *testing.T) {
	f := newFixture()
	f.cfg.cfg.UseWeatherData = true
	c, stop := f.start(t)
	require.NotNil(t, c.refresher)
	require.NoError(t, stop())
}
