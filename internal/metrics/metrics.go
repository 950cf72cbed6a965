// Package metrics exposes station telemetry to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Capture outcomes.
const (
	CaptureSaved   = "saved"
	CaptureSkipped = "skipped"
	CaptureFailed  = "failed"
)

// Collector receives station telemetry. Calls are made inline from the
// scheduled tasks and must not block.
type Collector interface {
	IncCapture(result string)
	SetFreeSlots(slots int)
	SetStoredPictures(count int)
	SetRelay(channel int, on bool)
	SetPowerSave(on bool)
	SetWeather(windSpeed, temperature float64)
	IncWeatherUpdate(ok bool)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector { return noopCollector{} }

func (noopCollector) IncCapture(string)           {}
func (noopCollector) SetFreeSlots(int)            {}
func (noopCollector) SetStoredPictures(int)       {}
func (noopCollector) SetRelay(int, bool)          {}
func (noopCollector) SetPowerSave(bool)           {}
func (noopCollector) SetWeather(float64, float64) {}
func (noopCollector) IncWeatherUpdate(bool)       {}

// PrometheusCollector records station telemetry on a registry.
type PrometheusCollector struct {
	registry       *prometheus.Registry
	captures       *prometheus.CounterVec
	freeSlots      prometheus.Gauge
	storedPictures prometheus.Gauge
	relays         *prometheus.GaugeVec
	powerSave      prometheus.Gauge
	windSpeed      prometheus.Gauge
	temperature    prometheus.Gauge
	weatherUpdates *prometheus.CounterVec
}

// NewPrometheusCollector registers the station metrics on reg. A nil reg gets
// a fresh registry.
func NewPrometheusCollector(reg *prometheus.Registry) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	p := &PrometheusCollector{
		registry: reg,
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mothstation_captures_total",
			Help: "Capture cycles by outcome.",
		}, []string{"result"}),
		freeSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mothstation_free_picture_slots",
			Help: "Estimated number of pictures that still fit on disk.",
		}),
		storedPictures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mothstation_stored_pictures",
			Help: "Pictures in the picture folder.",
		}),
		relays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mothstation_relay_on",
			Help: "Relay channel state (1 = energized).",
		}, []string{"channel"}),
		powerSave: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mothstation_power_save",
			Help: "Whether power-save mode is active.",
		}),
		windSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mothstation_weather_wind_speed",
			Help: "Last fetched wind speed (km/h).",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mothstation_weather_temperature_celsius",
			Help: "Last fetched temperature.",
		}),
		weatherUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mothstation_weather_updates_total",
			Help: "Weather refresh attempts by outcome.",
		}, []string{"result"}),
	}
	for _, c := range []prometheus.Collector{
		p.captures, p.freeSlots, p.storedPictures, p.relays,
		p.powerSave, p.windSpeed, p.temperature, p.weatherUpdates,
	} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				return nil, errors.New("station metrics already registered on this registry")
			}
			return nil, err
		}
	}
	return p, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusCollector) IncCapture(result string) {
	p.captures.WithLabelValues(result).Inc()
}

func (p *PrometheusCollector) SetFreeSlots(slots int) { p.freeSlots.Set(float64(slots)) }

func (p *PrometheusCollector) SetStoredPictures(count int) {
	p.storedPictures.Set(float64(count))
}

func (p *PrometheusCollector) SetRelay(channel int, on bool) {
	p.relays.WithLabelValues(strconv.Itoa(channel)).Set(boolToFloat(on))
}

func (p *PrometheusCollector) SetPowerSave(on bool) { p.powerSave.Set(boolToFloat(on)) }

func (p *PrometheusCollector) SetWeather(windSpeed, temperature float64) {
	p.windSpeed.Set(windSpeed)
	p.temperature.Set(temperature)
}

func (p *PrometheusCollector) IncWeatherUpdate(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	p.weatherUpdates.WithLabelValues(result).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
