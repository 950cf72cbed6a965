package service

import (
	"context"
	"time"

	"mothstation/internal/conditions"
	"mothstation/internal/config"
	"mothstation/internal/hardware"
	"mothstation/internal/logger"
	"mothstation/internal/metrics"
	"mothstation/internal/models"
	"mothstation/internal/repository"
	"mothstation/internal/weather"
)

// Collaborators the policies drive. The hardware package provides the real
// implementations.

type RelayBoard interface {
	SetOn(channel int) error
	SetOff(channel int) error
	Reset() error
	States() map[int]bool
}

type Camera interface {
	Available() bool
	Reconnect(ctx context.Context) bool
	Capture(ctx context.Context) (*hardware.Frame, error)
	Save(f *hardware.Frame, target string) error
	Discard(f *hardware.Frame) error
}

type Display interface {
	Available() bool
	Show(page hardware.Page, persistPath string) error
}

type WeatherProvider interface {
	Current() weather.Conditions
	Update(ctx context.Context, lat, lon float64) error
}

// ConfigStore is the configuration manager as seen by the services.
type ConfigStore interface {
	Current() config.Config
	Settings() map[string]any
	UpdateFromMap(values map[string]any) (bool, error)
	Save() error
}

// Handler-facing services.

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	AddOperator(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Power is the only writer of the relay board.
type Power interface {
	SetRelais(ctx context.Context, state string) error
	PowerSaveMode() bool
	State() models.PowerState
	Relays() map[int]bool
}

type Capture interface {
	TakePicture(ctx context.Context) (CaptureResult, error)
	ReconnectCamera(ctx context.Context) bool
}

type Status interface {
	Poll(ctx context.Context) error
	Snapshot() models.StatusSnapshot
	StatusImage() ([]byte, error)
	Restore(ctx context.Context) error
	SetRestarter(fn func(ctx context.Context))
}

type EventLog interface {
	Record(ctx context.Context, typ, description string, meta any)
	List(ctx context.Context, f LogFilter) ([]models.StationEvent, error)
}

type Configuration interface {
	Settings() map[string]any
	Update(ctx context.Context, values map[string]any) (bool, error)
}

type Weather interface {
	Refresh(ctx context.Context) error
	Current() weather.Conditions
}

// Service aggregates the station services.
type Service struct {
	Power
	Capture
	Status
	EventLog
	Authorization
	Configuration
	Weather
}

// Deps are the collaborators NewService wires together. Zero-valued
// optional fields get defaults.
type Deps struct {
	Repos   *repository.Repository
	Config  ConfigStore
	Camera  Camera
	Relay   RelayBoard
	Display Display
	Weather WeatherProvider
	Metrics metrics.Collector
	Log     *logger.Logger

	DiskFree  conditions.DiskFreeFunc
	Addresses func() (map[string][]string, error)
	Now       func() time.Time
}

func (d *Deps) defaults() {
	if d.Metrics == nil {
		d.Metrics = metrics.Noop()
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.DiskFree == nil {
		d.DiskFree = conditions.FreeBytes
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Addresses == nil {
		d.Addresses = func() (map[string][]string, error) { return nil, nil }
	}
}

func NewService(d Deps) *Service {
	d.defaults()
	events := NewEventLogService(d.Repos.EventRepo, d.Log.Named("journal"))
	power := NewPowerService(d.Relay, d.Config, d.Weather, events, d.Metrics, d.Log.Named("power"))
	power.now = d.Now
	board := NewStatusBoard(d.Now())

	capture := NewCaptureService(d.Camera, power, d.Config, board, events, d.Metrics, d.Log.Named("capture"))
	capture.diskFree, capture.now = d.DiskFree, d.Now

	status := NewStatusService(StatusDeps{
		Board:     board,
		Camera:    d.Camera,
		Display:   d.Display,
		Power:     power,
		Weather:   d.Weather,
		Config:    d.Config,
		Repo:      d.Repos.StatusRepo,
		Journal:   events,
		Metrics:   d.Metrics,
		Log:       d.Log.Named("status"),
		DiskFree:  d.DiskFree,
		Addresses: d.Addresses,
		Now:       d.Now,
	})

	return &Service{
		Power:         power,
		Capture:       capture,
		Status:        status,
		EventLog:      events,
		Authorization: NewAuthService(d.Repos.Operators, func() string { return d.Config.Current().Auth.SigningKey }),
		Configuration: NewConfigService(d.Config, events, d.Log.Named("config")),
		Weather:       NewWeatherService(d.Weather, d.Config, events, d.Metrics, d.Log.Named("weather")),
	}
}
