package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"mothstation/internal/conditions"
	"mothstation/internal/hardware"
	"mothstation/internal/logger"
	"mothstation/internal/metrics"
	"mothstation/internal/models"
	"mothstation/internal/repository"
)

// ErrNoStatusImage is returned before the first status frame was rendered.
var ErrNoStatusImage = errors.New("no status image rendered yet")

// ButtonLabels are shown in the status page footer.
var ButtonLabels = map[int]string{
	1: "CamReconn",
	2: "Status",
	3: "Reboot",
}

// StatusBoard holds the live status snapshot. Readers get copies.
type StatusBoard struct {
	mu   sync.RWMutex
	snap models.StatusSnapshot
}

func NewStatusBoard(upSince time.Time) *StatusBoard {
	buttons := make(map[int]string, len(ButtonLabels))
	for id, label := range ButtonLabels {
		buttons[id] = label
	}
	return &StatusBoard{snap: models.StatusSnapshot{
		UpSince:     upSince,
		LastPicture: models.NoPictureYet,
		Buttons:     buttons,
		Temperature: 15,
	}}
}

func (b *StatusBoard) Snapshot() models.StatusSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap.Clone()
}

// Update applies fn under the write lock and returns the resulting copy.
func (b *StatusBoard) Update(fn func(s *models.StatusSnapshot)) models.StatusSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.snap)
	return b.snap.Clone()
}

func (b *StatusBoard) SetLastPicture(stamp string) {
	b.Update(func(s *models.StatusSnapshot) { s.LastPicture = stamp })
}

// StatusDeps are the collaborators of the status aggregator.
type StatusDeps struct {
	Board     *StatusBoard
	Camera    Camera
	Display   Display
	Power     Power
	Weather   WeatherProvider
	Config    ConfigStore
	Repo      repository.StatusRepo
	Journal   EventLog
	Metrics   metrics.Collector
	Log       *logger.Logger
	DiskFree  conditions.DiskFreeFunc
	Addresses func() (map[string][]string, error)
	Now       func() time.Time
}

// StatusService refreshes the status snapshot, renders it and decides when
// the daily restart is due.
type StatusService struct {
	StatusDeps
	startedOn time.Time

	mu        sync.Mutex
	restarter func(ctx context.Context)
}

func NewStatusService(d StatusDeps) *StatusService {
	if d.Metrics == nil {
		d.Metrics = metrics.Noop()
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.DiskFree == nil {
		d.DiskFree = conditions.FreeBytes
	}
	if d.Board == nil {
		d.Board = NewStatusBoard(d.Now())
	}
	return &StatusService{StatusDeps: d, startedOn: d.Now()}
}

// SetRestarter installs the restart path invoked when the daily reboot is due.
func (s *StatusService) SetRestarter(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarter = fn
}

func (s *StatusService) Snapshot() models.StatusSnapshot { return s.Board.Snapshot() }

// StartedOn is the reference time of the daily restart deadline.
func (s *StatusService) StartedOn() time.Time { return s.startedOn }

// Restore brings back the last-picture marker persisted by a previous run.
func (s *StatusService) Restore(ctx context.Context) error {
	if s.Repo == nil {
		return nil
	}
	prev, found, err := s.Repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore status: %w", err)
	}
	if found && prev.LastPicture != "" {
		s.Board.SetLastPicture(prev.LastPicture)
		s.Log.Infow("status_restored", "last_picture", prev.LastPicture)
	}
	return nil
}

// Poll refreshes the snapshot, shows it and checks the restart policy. The
// restart check runs even when parts of the refresh failed.
func (s *StatusService) Poll(ctx context.Context) error {
	cfg := s.Config.Current()
	now := s.Now()
	var errs []error

	count, err := countPictures(cfg.PicturesSaveFolder, cfg.PicturesFileFormat)
	if err != nil {
		errs = append(errs, err)
	}
	slots, err := conditions.PictureSlots(s.DiskFree, cfg.PicturesSaveFolder, conditions.DefaultDiskMargin, conditions.DefaultPictureSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("free slots: %w", err))
	}
	var addrs map[string][]string
	if s.Addresses != nil {
		if addrs, err = s.Addresses(); err != nil {
			errs = append(errs, err)
		}
	}

	cameraOK := s.Camera != nil && s.Camera.Available()
	displayOK := s.Display != nil && s.Display.Available()
	snap := s.Board.Update(func(st *models.StatusSnapshot) {
		st.CameraAvailable = cameraOK
		st.DisplayAvailable = displayOK
		st.PictureCount = count
		st.FreeSlots = slots
		st.PollTime = now
		st.Addresses = addrs
		if s.Power != nil {
			st.PowerSave = s.Power.PowerSaveMode()
			st.Relays = s.Power.Relays()
		}
		if s.Weather != nil {
			w := s.Weather.Current()
			st.WindSpeed, st.Temperature = w.WindSpeed, w.Temperature
		}
	})
	s.Metrics.SetStoredPictures(count)
	s.Metrics.SetFreeSlots(slots)

	if s.Display != nil {
		if err := s.Display.Show(StatusPage(snap), cfg.StatusImagePath()); err != nil {
			errs = append(errs, fmt.Errorf("display: %w", err))
		}
	}
	if s.Repo != nil {
		if err := s.Repo.Save(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		s.Log.Errorw("status_poll_failed", "err", err)
		if s.Journal != nil {
			s.Journal.Record(ctx, models.EventStatusError, "status poll incomplete", map[string]any{"error": err.Error()})
		}
	} else {
		s.Log.Debugw("status_polled", "pictures", count, "free_slots", slots, "camera", cameraOK)
	}

	if conditions.ReadyForRestart(cfg.DailyReboot, s.startedOn, now) {
		s.mu.Lock()
		restart := s.restarter
		s.mu.Unlock()
		if restart != nil {
			s.Log.Infow("daily_restart_due", "started_on", s.startedOn, "deadline", conditions.RestartDeadline(s.startedOn))
			restart(ctx)
		}
	}
	return err
}

// StatusImage returns the PNG copy of the last rendered status page.
func (s *StatusService) StatusImage() ([]byte, error) {
	b, err := os.ReadFile(s.Config.Current().StatusImagePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoStatusImage
		}
		return nil, err
	}
	return b, nil
}

func countPictures(folder, format string) (int, error) {
	ext := strings.TrimPrefix(format, ".")
	if ext == "" {
		ext = "jpg"
	}
	matches, err := filepath.Glob(filepath.Join(folder, "*."+ext))
	if err != nil {
		return 0, fmt.Errorf("count pictures: %w", err)
	}
	return len(matches), nil
}

// StatusPage lays out the snapshot for the status display.
func StatusPage(s models.StatusSnapshot) hardware.Page {
	lines := []string{
		"Camera: " + yesNo(s.CameraAvailable) + "  Display: " + yesNo(s.DisplayAvailable),
		"Up since: " + s.UpSince.Format("2006-01-02 15:04"),
		"Last picture: " + s.LastPicture,
		fmt.Sprintf("Pictures: %d  Free: %d", s.PictureCount, s.FreeSlots),
		fmt.Sprintf("Power save: %s  Relais: %s", yesNo(s.PowerSave), relayLine(s.Relays)),
	}
	ifaces := make([]string, 0, len(s.Addresses))
	for name := range s.Addresses {
		ifaces = append(ifaces, name)
	}
	sort.Strings(ifaces)
	for _, name := range ifaces {
		lines = append(lines, name+": "+strings.Join(s.Addresses[name], ", "))
	}
	lines = append(lines, footerLine(s.Buttons))
	return hardware.Page{Title: hardware.StatusTitle(s.PollTime), Lines: lines}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func relayLine(relays map[int]bool) string {
	chs := make([]int, 0, len(relays))
	for ch := range relays {
		chs = append(chs, ch)
	}
	sort.Ints(chs)
	parts := make([]string, 0, len(chs))
	for _, ch := range chs {
		state := "off"
		if relays[ch] {
			state = "on"
		}
		parts = append(parts, fmt.Sprintf("%d:%s", ch, state))
	}
	return strings.Join(parts, " ")
}

func footerLine(buttons map[int]string) string {
	ids := make([]int, 0, len(buttons))
	for id := range buttons {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d:%s", id, buttons[id]))
	}
	return strings.Join(parts, " ")
}
