// Package weather caches the current wind and temperature near the station.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"mothstation/internal/logger"
)

// DefaultBaseURL is the Bright Sky (DWD open data) endpoint.
const DefaultBaseURL = "https://api.brightsky.dev/weather"

const defaultTimeout = 20 * time.Second

// ErrNoHourlyRecord means the response had no entry for the current hour.
var ErrNoHourlyRecord = errors.New("weather response has no record for the current hour")

// Conditions is the cached weather. FetchedAt is zero until the first
// successful update.
type Conditions struct {
	WindSpeed   float64   `json:"wind_speed"`
	Temperature float64   `json:"temperature"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// DefaultConditions is used before any fetch succeeds.
func DefaultConditions() Conditions {
	return Conditions{WindSpeed: 0, Temperature: 15}
}

// Provider fetches hourly weather and keeps the last good reading.
type Provider struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
	log     *logger.Logger

	mu      sync.RWMutex
	current Conditions
}

// Option configures a Provider.
type Option func(*Provider)

func WithBaseURL(u string) Option          { return func(p *Provider) { p.baseURL = u } }
func WithHTTPClient(c *http.Client) Option { return func(p *Provider) { p.client = c } }
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// NewProvider returns a provider seeded with DefaultConditions.
func NewProvider(log *logger.Logger, opts ...Option) *Provider {
	if log == nil {
		log = logger.Nop()
	}
	p := &Provider{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		now:     time.Now,
		log:     log,
		current: DefaultConditions(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns the cached conditions.
func (p *Provider) Current() Conditions {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

type brightskyResponse struct {
	Weather []brightskyRecord `json:"weather"`
}

type brightskyRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	WindSpeed   *float64  `json:"wind_speed"`
	Temperature *float64  `json:"temperature"`
}

// Update queries today's hourly weather at lat/lon and caches the record of
// the current hour. On any failure the previous reading stays in place and
// the error is logged and returned.
func (p *Provider) Update(ctx context.Context, lat, lon float64) error {
	now := p.now()
	address := p.requestURL(lat, lon, now)

	rec, err := p.fetch(ctx, address, now.Truncate(time.Hour))
	if err != nil {
		p.log.Errorw("weather_update_failed", "url", address, "err", err)
		return err
	}

	p.mu.Lock()
	if rec.WindSpeed != nil {
		p.current.WindSpeed = *rec.WindSpeed
	}
	if rec.Temperature != nil {
		p.current.Temperature = *rec.Temperature
	}
	p.current.FetchedAt = now
	cur := p.current
	p.mu.Unlock()

	p.log.Infow("weather_updated", "url", address, "wind_speed", cur.WindSpeed, "temperature", cur.Temperature)
	return nil
}

func (p *Provider) requestURL(lat, lon float64, at time.Time) string {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	// without a tz parameter the date is read as a UTC day
	q.Set("date", at.UTC().Format("2006-01-02"))
	return p.baseURL + "?" + q.Encode()
}

// fetch returns the hourly record stamped with hour. Bright Sky returns the
// records of the requested UTC day with offset timestamps.
func (p *Provider) fetch(ctx context.Context, address string, hour time.Time) (brightskyRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return brightskyRecord{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return brightskyRecord{}, fmt.Errorf("get weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return brightskyRecord{}, fmt.Errorf("get weather: unexpected status %d", resp.StatusCode)
	}
	var body brightskyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return brightskyRecord{}, fmt.Errorf("decode weather: %w", err)
	}
	for _, rec := range body.Weather {
		if rec.Timestamp.Equal(hour) {
			return rec, nil
		}
	}
	return brightskyRecord{}, fmt.Errorf("%w (%s)", ErrNoHourlyRecord, hour.UTC().Format(time.RFC3339))
}
