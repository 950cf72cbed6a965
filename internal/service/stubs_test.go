package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mothstation/internal/config"
	"mothstation/internal/hardware"
	"mothstation/internal/models"
	"mothstation/internal/weather"
)

// stubRelay records the calls made on the relay board.
type stubRelay struct {
	mu     sync.Mutex
	states map[int]bool
	calls  []string
	err    error
}

func newStubRelay() *stubRelay {
	return &stubRelay{states: map[int]bool{1: false, 2: false, 3: false}}
}

func (r *stubRelay) SetOn(ch int) error  { return r.set(ch, true) }
func (r *stubRelay) SetOff(ch int) error { return r.set(ch, false) }

func (r *stubRelay) set(ch int, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if on {
		r.calls = append(r.calls, fmt.Sprintf("on:%d", ch))
	} else {
		r.calls = append(r.calls, fmt.Sprintf("off:%d", ch))
	}
	if r.err != nil {
		return r.err
	}
	r.states[ch] = on
	return nil
}

func (r *stubRelay) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "reset")
	for ch := range r.states {
		r.states[ch] = false
	}
	return nil
}

func (r *stubRelay) States() map[int]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]bool, len(r.states))
	for k, v := range r.states {
		out[k] = v
	}
	return out
}

func (r *stubRelay) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// stubConfig serves a fixed configuration.
type stubConfig struct {
	mu       sync.Mutex
	cfg      config.Config
	updateFn func(map[string]any) (bool, error)
	saveErr  error
	saves    int
}

func newStubConfig(t interface{ TempDir() string }) *stubConfig {
	cfg := config.Defaults()
	cfg.PicturesSaveFolder = filepath.Join(t.TempDir(), "pics")
	_ = os.MkdirAll(cfg.PicturesSaveFolder, 0o755)
	cfg.PowerSaveDaylight = false
	return &stubConfig{cfg: cfg}
}

func (c *stubConfig) Current() config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *stubConfig) Settings() map[string]any { return map[string]any{"lat": c.Current().Lat} }

func (c *stubConfig) UpdateFromMap(values map[string]any) (bool, error) {
	if c.updateFn != nil {
		return c.updateFn(values)
	}
	return true, nil
}

func (c *stubConfig) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	return c.saveErr
}

func (c *stubConfig) edit(fn func(*config.Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.cfg)
}

// stubWeather returns fixed conditions.
type stubWeather struct {
	cond      weather.Conditions
	updateErr error
	updates   int
}

func (w *stubWeather) Current() weather.Conditions { return w.cond }

func (w *stubWeather) Update(context.Context, float64, float64) error {
	w.updates++
	return w.updateErr
}

// stubCamera hands out frames written to a staging dir.
type stubCamera struct {
	staging    string
	available  bool
	captureErr error
	saved      []string
	discarded  int
	reconnects int
}

func (c *stubCamera) Available() bool { return c.available }

func (c *stubCamera) Reconnect(context.Context) bool {
	c.reconnects++
	return c.available
}

func (c *stubCamera) Capture(context.Context) (*hardware.Frame, error) {
	if c.captureErr != nil {
		return nil, c.captureErr
	}
	if !c.available {
		return nil, hardware.ErrCameraUnavailable
	}
	p := filepath.Join(c.staging, "frame.jpg")
	if err := os.WriteFile(p, []byte("jpeg"), 0o644); err != nil {
		return nil, err
	}
	return &hardware.Frame{Path: p, CapturedAt: time.Now()}, nil
}

func (c *stubCamera) Save(f *hardware.Frame, target string) error {
	c.saved = append(c.saved, target)
	return os.Rename(f.Path, target)
}

func (c *stubCamera) Discard(f *hardware.Frame) error {
	c.discarded++
	return os.Remove(f.Path)
}

// stubDisplay remembers the last page shown.
type stubDisplay struct {
	available bool
	pages     []hardware.Page
	persisted []string
	err       error
}

func (d *stubDisplay) Available() bool { return d.available }

func (d *stubDisplay) Show(page hardware.Page, persistPath string) error {
	d.pages = append(d.pages, page)
	d.persisted = append(d.persisted, persistPath)
	if d.err != nil {
		return d.err
	}
	if persistPath != "" {
		return os.WriteFile(persistPath, []byte("png"), 0o644)
	}
	return nil
}

// recordingJournal collects journal entries in memory.
type recordingJournal struct {
	mu     sync.Mutex
	events []models.StationEvent
}

func (j *recordingJournal) Record(_ context.Context, typ, desc string, meta any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, models.StationEvent{Type: typ, Description: desc, Metadata: meta})
}

func (j *recordingJournal) List(context.Context, LogFilter) ([]models.StationEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.StationEvent(nil), j.events...), nil
}

func (j *recordingJournal) types() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.events))
	for _, e := range j.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeStatusRepo keeps the saved snapshot in memory.
type fakeStatusRepo struct {
	saved   []models.StatusSnapshot
	loaded  models.StatusSnapshot
	found   bool
	saveErr error
	loadErr error
}

func (r *fakeStatusRepo) Save(_ context.Context, s models.StatusSnapshot) error {
	r.saved = append(r.saved, s)
	return r.saveErr
}

func (r *fakeStatusRepo) Load(context.Context) (models.StatusSnapshot, bool, error) {
	return r.loaded, r.found, r.loadErr
}

// fakeEventRepo is a minimal stub that satisfies repository.EventRepo.
type fakeEventRepo struct {
	gotFrom time.Time
	gotTo   time.Time
	gotType string

	appended  []models.StationEvent
	events    []models.StationEvent
	err       error
	appendErr error
	calls     int
}

func (f *fakeEventRepo) List(_ context.Context, from, to time.Time, typ string) ([]models.StationEvent, error) {
	f.calls++
	f.gotFrom, f.gotTo, f.gotType = from, to, typ
	return f.events, f.err
}

func (f *fakeEventRepo) Append(_ context.Context, e models.StationEvent) error {
	f.appended = append(f.appended, e)
	return f.appendErr
}

// fakeOperators is an in-memory operator table.
type fakeOperators struct {
	byName    map[string]*models.Operator
	createErr error
}

func newFakeOperators() *fakeOperators { return &fakeOperators{byName: map[string]*models.Operator{}} }

func (f *fakeOperators) Create(_ context.Context, username, hash string) (int, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	if _, ok := f.byName[username]; ok {
		return 0, errors.New("UNIQUE constraint failed")
	}
	id := len(f.byName) + 1
	f.byName[username] = &models.Operator{ID: id, Username: username, PasswordHash: hash}
	return id, nil
}

func (f *fakeOperators) GetByUsername(_ context.Context, username string) (*models.Operator, error) {
	return f.byName[username], nil
}

func (f *fakeOperators) Count(context.Context) (int, error) { return len(f.byName), nil }
