package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// hourlyBody lists the first hours of 2021-12-08 UTC the way Bright Sky
// stamps them.
func hourlyBody(hours int, wind, temp func(h int) string) string {
	var b strings.Builder
	b.WriteString(`{"weather":[`)
	for h := 0; h < hours; h++ {
		if h > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"timestamp":"2021-12-08T%02d:00:00+00:00","wind_speed":%s,"temperature":%s}`, h, wind(h), temp(h))
	}
	b.WriteString(`]}`)
	return b.String()
}

func TestProvider_UpdatePicksCurrentHour(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(hourlyBody(24,
			func(h int) string { return fmt.Sprintf("%d.5", h) },
			func(h int) string { return fmt.Sprintf("-%d", h) },
		)))
	}))
	defer srv.Close()

	at := time.Date(2021, time.December, 8, 14, 30, 0, 0, time.UTC)
	p := NewProvider(nil, WithBaseURL(srv.URL), WithClock(func() time.Time { return at }))
	require.Equal(t, DefaultConditions(), p.Current())

	require.NoError(t, p.Update(context.Background(), 48.151, 11.568))
	cur := p.Current()
	require.Equal(t, 14.5, cur.WindSpeed)
	require.Equal(t, -14.0, cur.Temperature)
	require.Equal(t, at, cur.FetchedAt)
	require.Contains(t, gotQuery, "date=2021-12-08")
	require.Contains(t, gotQuery, "lat=48.151")
	require.Contains(t, gotQuery, "lon=11.568")
}

func TestProvider_UpdateMatchesRecordTimestamp(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(hourlyBody(24,
			func(h int) string { return fmt.Sprintf("%d", h) },
			func(h int) string { return fmt.Sprintf("%d", 100+h) },
		)))
	}))
	defer srv.Close()

	// 01:30 on Dec 9 at UTC+2 is 23:30 on Dec 8 UTC
	cest := time.FixedZone("CEST", 2*60*60)
	at := time.Date(2021, time.December, 9, 1, 30, 0, 0, cest)
	p := NewProvider(nil, WithBaseURL(srv.URL), WithClock(func() time.Time { return at }))

	require.NoError(t, p.Update(context.Background(), 48.151, 11.568))
	require.Contains(t, gotQuery, "date=2021-12-08")
	require.Equal(t, 23.0, p.Current().WindSpeed)
	require.Equal(t, 123.0, p.Current().Temperature)
}

func TestProvider_FailureKeepsStaleValues(t *testing.T) {
	status := http.StatusOK
	body := hourlyBody(24, func(int) string { return "3" }, func(int) string { return "7" })
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	at := time.Date(2021, time.December, 8, 3, 0, 0, 0, time.UTC)
	p := NewProvider(nil, WithBaseURL(srv.URL), WithClock(func() time.Time { return at }))
	require.NoError(t, p.Update(context.Background(), 1, 2))
	good := p.Current()

	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "oops"},
		{"malformed json", http.StatusOK, "{"},
		{"too few hours", http.StatusOK, hourlyBody(2, func(int) string { return "99" }, func(int) string { return "99" })},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body = tc.status, tc.body
			require.Error(t, p.Update(context.Background(), 1, 2))
			require.Equal(t, good, p.Current())
		})
	}

	status, body = http.StatusOK, hourlyBody(3, func(int) string { return "99" }, func(int) string { return "99" })
	require.ErrorIs(t, p.Update(context.Background(), 1, 2), ErrNoHourlyRecord)

	srv.Close()
	require.Error(t, p.Update(context.Background(), 1, 2))
	require.Equal(t, good, p.Current())
}

func TestProvider_NullFieldsKeepPrevious(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(hourlyBody(24, func(int) string { return "null" }, func(int) string { return "2.5" })))
	}))
	defer srv.Close()

	p := NewProvider(nil, WithBaseURL(srv.URL), WithClock(func() time.Time {
		return time.Date(2021, time.December, 8, 5, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, p.Update(context.Background(), 1, 2))
	require.Equal(t, 0.0, p.Current().WindSpeed)
	require.Equal(t, 2.5, p.Current().Temperature)
}

func TestRefresher_RunsUpdates(t *testing.T) {
	hits := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hits <- struct{}{}:
		default:
		}
		_, _ = w.Write([]byte(hourlyBody(24, func(int) string { return "1" }, func(int) string { return "1" })))
	}))
	defer srv.Close()

	p := NewProvider(nil, WithBaseURL(srv.URL))
	r, err := NewRefresher(50*time.Millisecond, func(ctx context.Context) error {
		return p.Update(ctx, 48, 11)
	})
	require.NoError(t, err)
	r.Start()
	defer func() { require.NoError(t, r.Stop()) }()

	select {
	case <-hits:
	case <-time.After(3 * time.Second):
		t.Fatal("refresher never queried the weather service")
	}
}
