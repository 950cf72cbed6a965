// Package config holds the station tunables and the viper-backed manager that
// loads, validates, updates and writes them back.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Validated ranges, all exclusive.
const (
	latMin, latMax                   = -90.0, 90.0
	lonMin, lonMax                   = -180.0, 180.0
	captureMin, captureMax           = 20, 3700
	reconnectMin, reconnectMax       = 3600, 1_000_000
	relayChannelMin, relayChannelMax = 1, 3
)

// Config is an immutable-per-cycle copy of the station tunables.
type Config struct {
	Lat                    float64         `mapstructure:"lat"`
	Lon                    float64         `mapstructure:"lon"`
	CaptureInterval        int             `mapstructure:"capture_interval"`       // seconds
	PollingInterval        int             `mapstructure:"polling_interval"`       // seconds
	CamReconnectInterval   int             `mapstructure:"cam_reconnect_interval"` // seconds
	WeatherRefreshInterval int             `mapstructure:"weather_refresh_interval"`
	PicturesSaveFolder     string          `mapstructure:"pictures_save_folder"`
	StatusImageFilename    string          `mapstructure:"status_image_filename"`
	PicturesFileFormat     string          `mapstructure:"pictures_file_format"`
	RelaisConf             map[string]bool `mapstructure:"relais_conf"` // channel -> default on/off
	UseWeatherData         bool            `mapstructure:"use_weather_data"`
	DailyReboot            bool            `mapstructure:"daily_reboot"`
	PowerSaveWeather       bool            `mapstructure:"power_save_weather"`
	PowerSaveDaylight      bool            `mapstructure:"power_save_daylight"`
	LampDuringCapture      bool            `mapstructure:"lamp_during_capture"`
	RebootCommand          []string        `mapstructure:"reboot_command"`

	HTTP     HTTPConfig     `mapstructure:"http"`
	DB       DBConfig       `mapstructure:"db"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Hardware HardwareConfig `mapstructure:"hardware"`
}

type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SigningKey string `mapstructure:"signing_key"`
}

// HardwareConfig selects drivers. Simulate forces the simulated camera.
type HardwareConfig struct {
	Simulate bool `mapstructure:"simulate"`
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

// Defaults returns the factory configuration.
func Defaults() Config {
	home := homeDir()
	return Config{
		Lat:                    48.151,
		Lon:                    11.568,
		CaptureInterval:        60 * 5,
		PollingInterval:        60,
		CamReconnectInterval:   60 * 60 * 5,
		WeatherRefreshInterval: 60 * 60,
		PicturesSaveFolder:     filepath.Join(home, "pics"),
		StatusImageFilename:    "epaper_display.png",
		PicturesFileFormat:     "jpg",
		RelaisConf:             map[string]bool{"1": false, "2": false, "3": true},
		UseWeatherData:         false,
		DailyReboot:            true,
		PowerSaveWeather:       false,
		PowerSaveDaylight:      true,
		LampDuringCapture:      false,
		RebootCommand:          []string{"sudo", "reboot"},
		HTTP:                   HTTPConfig{Enabled: true, Port: "8000"},
		DB:                     DBConfig{Path: filepath.Join(home, "mothpi.db")},
	}
}

// Validate resets out-of-range values to their defaults. It returns true when
// every value was accepted as is.
func (c *Config) Validate() bool {
	d := Defaults()
	accepted := true
	reset := func(bad bool, apply func()) {
		if bad {
			apply()
			accepted = false
		}
	}

	reset(!(c.Lat > latMin && c.Lat < latMax), func() { c.Lat = d.Lat })
	reset(!(c.Lon > lonMin && c.Lon < lonMax), func() { c.Lon = d.Lon })
	reset(!(c.CaptureInterval > captureMin && c.CaptureInterval < captureMax),
		func() { c.CaptureInterval = d.CaptureInterval })
	reset(!(c.CamReconnectInterval > reconnectMin && c.CamReconnectInterval < reconnectMax),
		func() { c.CamReconnectInterval = d.CamReconnectInterval })
	reset(c.PollingInterval <= 0, func() { c.PollingInterval = d.PollingInterval })
	reset(c.WeatherRefreshInterval <= 0, func() { c.WeatherRefreshInterval = d.WeatherRefreshInterval })
	reset(c.PicturesSaveFolder == "", func() { c.PicturesSaveFolder = d.PicturesSaveFolder })
	reset(c.StatusImageFilename == "", func() { c.StatusImageFilename = d.StatusImageFilename })
	reset(c.PicturesFileFormat == "", func() { c.PicturesFileFormat = d.PicturesFileFormat })

	if c.RelaisConf == nil {
		c.RelaisConf = d.RelaisConf
		accepted = false
	}
	for key := range c.RelaisConf {
		ch, err := strconv.Atoi(key)
		if err != nil || ch < relayChannelMin || ch > relayChannelMax {
			delete(c.RelaisConf, key)
			accepted = false
		}
	}
	return accepted
}

// RelayDefaults returns the configured channel states keyed by channel number.
func (c Config) RelayDefaults() map[int]bool {
	out := make(map[int]bool, len(c.RelaisConf))
	for key, on := range c.RelaisConf {
		if ch, err := strconv.Atoi(key); err == nil {
			out[ch] = on
		}
	}
	return out
}

// RelayChannels returns the configured channels in ascending order.
func (c Config) RelayChannels() []int {
	defaults := c.RelayDefaults()
	out := make([]int, 0, len(defaults))
	for ch := range defaults {
		out = append(out, ch)
	}
	sort.Ints(out)
	return out
}

// StatusImagePath is where the rendered status page is copied.
func (c Config) StatusImagePath() string {
	return filepath.Join(c.PicturesSaveFolder, c.StatusImageFilename)
}

func (c Config) CaptureEvery() time.Duration   { return time.Duration(c.CaptureInterval) * time.Second }
func (c Config) PollEvery() time.Duration      { return time.Duration(c.PollingInterval) * time.Second }
func (c Config) ReconnectEvery() time.Duration { return time.Duration(c.CamReconnectInterval) * time.Second }
func (c Config) WeatherEvery() time.Duration   { return time.Duration(c.WeatherRefreshInterval) * time.Second }

// settings flattens the configuration into viper keys.
func (c Config) settings() map[string]any {
	relais := make(map[string]any, len(c.RelaisConf))
	for k, v := range c.RelaisConf {
		relais[k] = v
	}
	return map[string]any{
		"lat":                      c.Lat,
		"lon":                      c.Lon,
		"capture_interval":         c.CaptureInterval,
		"polling_interval":         c.PollingInterval,
		"cam_reconnect_interval":   c.CamReconnectInterval,
		"weather_refresh_interval": c.WeatherRefreshInterval,
		"pictures_save_folder":     c.PicturesSaveFolder,
		"status_image_filename":    c.StatusImageFilename,
		"pictures_file_format":     c.PicturesFileFormat,
		"relais_conf":              relais,
		"use_weather_data":         c.UseWeatherData,
		"daily_reboot":             c.DailyReboot,
		"power_save_weather":       c.PowerSaveWeather,
		"power_save_daylight":      c.PowerSaveDaylight,
		"lamp_during_capture":      c.LampDuringCapture,
		"reboot_command":           append([]string(nil), c.RebootCommand...),
		"http.enabled":             c.HTTP.Enabled,
		"http.port":                c.HTTP.Port,
		"db.path":                  c.DB.Path,
		"auth.signing_key":         c.Auth.SigningKey,
		"hardware.simulate":        c.Hardware.Simulate,
	}
}

// clone copies the reference-typed fields.
func (c Config) clone() Config {
	out := c
	out.RelaisConf = make(map[string]bool, len(c.RelaisConf))
	for k, v := range c.RelaisConf {
		out.RelaisConf[k] = v
	}
	out.RebootCommand = append([]string(nil), c.RebootCommand...)
	return out
}
