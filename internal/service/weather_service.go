package service

import (
	"context"

	"mothstation/internal/logger"
	"mothstation/internal/metrics"
	"mothstation/internal/models"
	"mothstation/internal/weather"
)

// WeatherService refreshes the weather cache for the configured location.
type WeatherService struct {
	provider WeatherProvider
	cfg      ConfigStore
	journal  EventLog
	metrics  metrics.Collector
	log      *logger.Logger
}

func NewWeatherService(p WeatherProvider, cfg ConfigStore, journal EventLog, m metrics.Collector, log *logger.Logger) *WeatherService {
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WeatherService{provider: p, cfg: cfg, journal: journal, metrics: m, log: log}
}

func (s *WeatherService) Current() weather.Conditions {
	if s.provider == nil {
		return weather.DefaultConditions()
	}
	return s.provider.Current()
}

// Refresh fetches the current hour's weather. On failure the stale values
// stay cached.
func (s *WeatherService) Refresh(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}
	cfg := s.cfg.Current()
	err := s.provider.Update(ctx, cfg.Lat, cfg.Lon)
	s.metrics.IncWeatherUpdate(err == nil)

	cur := s.provider.Current()
	s.metrics.SetWeather(cur.WindSpeed, cur.Temperature)
	meta := map[string]any{"wind_speed": cur.WindSpeed, "temperature": cur.Temperature}
	desc := "weather updated"
	if err != nil {
		meta["error"] = err.Error()
		desc = "weather update failed, keeping previous values"
	}
	if s.journal != nil {
		s.journal.Record(ctx, models.EventWeather, desc, meta)
	}
	return err
}
