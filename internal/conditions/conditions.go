// Package conditions holds the pure gating decisions of the station: daylight,
// disk capacity, weather safety and the daily restart deadline.
package conditions

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// Defaults used by the station when no explicit limits are configured.
const (
	DefaultDiskMargin  uint64 = 50_000_000
	DefaultPictureSize uint64 = 5_000_000

	DefaultWindMax = 10.0
	DefaultTempMin = -5.0
	DefaultTempMax = 50.0
)

// IsDaylight reports whether at lies in [sunrise, sunset) at the given
// coordinate. The calendar date is taken in at's own location, so callers
// should pass a time in the station's local zone. Polar day and night yield
// false because no sunrise exists.
func IsDaylight(lat, lon float64, at time.Time) bool {
	year, month, day := at.Date()
	rise, set := sunrise.SunriseSunset(lat, lon, year, month, day)
	if rise.IsZero() || set.IsZero() {
		return false
	}
	return !at.Before(rise) && at.Before(set)
}

// WeatherLimits bounds the conditions under which the lamp is worth running.
type WeatherLimits struct {
	WindMax float64
	TempMin float64
	TempMax float64
}

// DefaultWeatherLimits returns wind 10, temperature band [-5, 50].
func DefaultWeatherLimits() WeatherLimits {
	return WeatherLimits{WindMax: DefaultWindMax, TempMin: DefaultTempMin, TempMax: DefaultTempMax}
}

// WeatherIsSafeForMoths returns false when the wind exceeds the maximum and
// false when the temperature lies inside [TempMin, TempMax]; otherwise true.
//
// The temperature test looks inverted. It is kept exactly as the deployed
// stations behave until the intended band is confirmed.
func WeatherIsSafeForMoths(windSpeed, temperature float64, limits WeatherLimits) bool {
	if windSpeed > limits.WindMax {
		return false
	}
	if limits.TempMin <= temperature && temperature <= limits.TempMax {
		return false
	}
	return true
}

// RestartDeadline is noon of the day after startedOn, in startedOn's location.
func RestartDeadline(startedOn time.Time) time.Time {
	y, m, d := startedOn.Date()
	return time.Date(y, m, d+1, 12, 0, 0, 0, startedOn.Location())
}

// ReadyForRestart reports whether a daily reboot is due.
func ReadyForRestart(dailyReboot bool, startedOn, now time.Time) bool {
	if !dailyReboot {
		return false
	}
	return now.After(RestartDeadline(startedOn))
}
