package conditions

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWeatherIsSafeForMoths(t *testing.T) {
	limits := DefaultWeatherLimits()
	cases := []struct {
		name string
		wind float64
		temp float64
		want bool
	}{
		{"calm and mild is inside the unsafe band", 5, 10, false},
		{"wind above max", 20, 10, false},
		{"calm and cold", 5, -10, true},
		{"calm and very hot", 5, 55, true},
		{"wind exactly at max is not above", 10, -10, true},
		{"band lower edge inclusive", 0, -5, false},
		{"band upper edge inclusive", 0, 50, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, WeatherIsSafeForMoths(tc.wind, tc.temp, limits))
		})
	}
}

func TestFreePictureSlots_NeverNegative(t *testing.T) {
	cases := []struct {
		free uint64
		want int
	}{
		{0, 0},
		{1, 0},
		{DefaultDiskMargin - 1, 0},
		{DefaultDiskMargin, 0},
		{DefaultDiskMargin + DefaultPictureSize - 1, 0},
		{DefaultDiskMargin + DefaultPictureSize, 1},
		{DefaultDiskMargin + 10*DefaultPictureSize + 7, 10},
	}
	for _, tc := range cases {
		got := FreePictureSlots(tc.free, DefaultDiskMargin, DefaultPictureSize)
		require.GreaterOrEqual(t, got, 0)
		require.Equal(t, tc.want, got, "free=%d", tc.free)
	}
	require.Equal(t, 0, FreePictureSlots(math.MaxUint64, DefaultDiskMargin, 0))
}

func TestDiskFull(t *testing.T) {
	require.True(t, DiskFull(DefaultDiskMargin-1, DefaultDiskMargin))
	require.False(t, DiskFull(DefaultDiskMargin, DefaultDiskMargin))

	fixed := func(n uint64) DiskFreeFunc {
		return func(string) (uint64, error) { return n, nil }
	}
	full, err := IsDiskFull(fixed(10), "/pics", DefaultDiskMargin)
	require.NoError(t, err)
	require.True(t, full)

	slots, err := PictureSlots(fixed(DefaultDiskMargin+3*DefaultPictureSize), "/pics", DefaultDiskMargin, DefaultPictureSize)
	require.NoError(t, err)
	require.Equal(t, 3, slots)

	boom := errors.New("statfs failed")
	_, err = IsDiskFull(func(string) (uint64, error) { return 0, boom }, "/pics", DefaultDiskMargin)
	require.ErrorIs(t, err, boom)
}

func TestFreeBytes_TempDir(t *testing.T) {
	n, err := FreeBytes(t.TempDir())
	require.NoError(t, err)
	require.Greater(t, n, uint64(0))

	_, err = FreeBytes("/definitely/not/a/path")
	require.Error(t, err)
}

func TestIsDaylight_Munich(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	lat, lon := 48.151, 11.568
	require.True(t, IsDaylight(lat, lon, time.Date(2021, time.June, 21, 13, 0, 0, 0, berlin)))
	require.False(t, IsDaylight(lat, lon, time.Date(2021, time.June, 21, 2, 0, 0, 0, berlin)))
	require.False(t, IsDaylight(lat, lon, time.Date(2021, time.December, 21, 22, 0, 0, 0, berlin)))

	// Same instant expressed in UTC gives the same answer.
	noon := time.Date(2021, time.March, 20, 12, 0, 0, 0, berlin)
	require.Equal(t, IsDaylight(lat, lon, noon), IsDaylight(lat, lon, noon.UTC()))
}

func TestIsDaylight_SunsetIsExclusive(t *testing.T) {
	lat, lon := 48.151, 11.568
	day := time.Date(2021, time.September, 1, 12, 0, 0, 0, time.UTC)
	// Independent of the exact ephemeris: one second before midnight UTC is dark in Munich.
	require.False(t, IsDaylight(lat, lon, day.Add(11*time.Hour+59*time.Minute)))
	require.True(t, IsDaylight(lat, lon, day))
}

func TestReadyForRestart(t *testing.T) {
	started := time.Date(2021, time.July, 1, 8, 0, 0, 0, time.Local)
	require.False(t, ReadyForRestart(true, started, time.Date(2021, time.July, 2, 11, 59, 0, 0, time.Local)))
	require.True(t, ReadyForRestart(true, started, time.Date(2021, time.July, 2, 12, 1, 0, 0, time.Local)))
	require.False(t, ReadyForRestart(false, started, time.Date(2021, time.July, 9, 12, 1, 0, 0, time.Local)))

	// Started after noon: deadline is still noon the next day.
	late := time.Date(2021, time.July, 1, 23, 30, 0, 0, time.Local)
	require.Equal(t, time.Date(2021, time.July, 2, 12, 0, 0, 0, time.Local), RestartDeadline(late))

	// Month rollover.
	eom := time.Date(2021, time.July, 31, 8, 0, 0, 0, time.Local)
	require.Equal(t, time.Date(2021, time.August, 1, 12, 0, 0, 0, time.Local), RestartDeadline(eom))
}
