package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mothstation/internal/conditions"
	"mothstation/internal/config"
	"mothstation/internal/logger"
	"mothstation/internal/metrics"
	"mothstation/internal/models"
	"mothstation/internal/weather"
)

var ErrInvalidRelayRequest = errors.New("invalid relay request: must be on or off")

// PowerSaveConditions reports whether actuated hardware must stay off:
// daylight with power_save_daylight set, or unsafe weather with
// power_save_weather set.
func PowerSaveConditions(cfg config.Config, w weather.Conditions, at time.Time) bool {
	if cfg.PowerSaveDaylight && conditions.IsDaylight(cfg.Lat, cfg.Lon, at) {
		return true
	}
	if cfg.PowerSaveWeather && !conditions.WeatherIsSafeForMoths(w.WindSpeed, w.Temperature, conditions.DefaultWeatherLimits()) {
		return true
	}
	return false
}

// PowerService owns the relay board. Requests are serialized so the last
// request always determines the channel states.
type PowerService struct {
	mu      sync.Mutex
	relay   RelayBoard
	cfg     ConfigStore
	weather WeatherProvider
	journal EventLog
	metrics metrics.Collector
	log     *logger.Logger
	now     func() time.Time

	state models.PowerState
}

func NewPowerService(relay RelayBoard, cfg ConfigStore, w WeatherProvider, journal EventLog, m metrics.Collector, log *logger.Logger) *PowerService {
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PowerService{
		relay:   relay,
		cfg:     cfg,
		weather: w,
		journal: journal,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// PowerSaveMode evaluates the power-save conditions now.
func (p *PowerService) PowerSaveMode() bool {
	return PowerSaveConditions(p.cfg.Current(), p.currentWeather(), p.now())
}

func (p *PowerService) currentWeather() weather.Conditions {
	if p.weather == nil {
		return weather.DefaultConditions()
	}
	return p.weather.Current()
}

// State is the result of the last SetRelais, empty before the first call.
func (p *PowerService) State() models.PowerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *PowerService) Relays() map[int]bool { return p.relay.States() }

// SetRelais applies "on" (configured defaults, or all off in power-save
// mode) or "off" (all off).
func (p *PowerService) SetRelais(ctx context.Context, request string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg := p.cfg.Current()
	var (
		target models.PowerState
		err    error
	)
	switch request {
	case RelayOn:
		saving := PowerSaveConditions(cfg, p.currentWeather(), p.now())
		p.metrics.SetPowerSave(saving)
		if saving {
			target, err = models.PowerSaved, p.relay.Reset()
		} else {
			target, err = models.PowerEngaged, p.engage(cfg)
		}
	case RelayOff:
		target, err = models.PowerSaved, p.relay.Reset()
	default:
		p.log.Errorw("relay_request_invalid", "request", request)
		return fmt.Errorf("%w: %q", ErrInvalidRelayRequest, request)
	}

	for ch, on := range p.relay.States() {
		p.metrics.SetRelay(ch, on)
	}
	if err != nil {
		p.log.Errorw("relay_apply_failed", "request", request, "target", target, "err", err)
	}

	if target != p.state {
		prev := p.state
		p.state = target
		p.log.Infow("power_state_changed", "from", prev, "to", target, "request", request)
		if p.journal != nil {
			p.journal.Record(ctx, models.EventRelay, fmt.Sprintf("relay board %s", target), map[string]any{
				"from":    string(prev),
				"to":      string(target),
				"request": request,
			})
		}
	}
	return err
}

func (p *PowerService) engage(cfg config.Config) error {
	var errs []error
	defaults := cfg.RelayDefaults()
	for _, ch := range cfg.RelayChannels() {
		var err error
		if defaults[ch] {
			err = p.relay.SetOn(ch)
		} else {
			err = p.relay.SetOff(ch)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
