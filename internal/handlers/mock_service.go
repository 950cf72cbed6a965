package handlers

import (
	"context"
	"net/http"

	"mothstation/internal/models"
	"mothstation/internal/service"
	"mothstation/internal/weather"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	addID         int
	addErr        error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastAddUsername    string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) AddOperator(_ context.Context, username, password string) (int, error) {
	m.lastAddUsername = username
	return m.addID, m.addErr
}
func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockPower struct {
	err       error
	requests  []string
	powerSave bool
	state     models.PowerState
	relays    map[int]bool
}

func (m *mockPower) SetRelais(_ context.Context, state string) error {
	m.requests = append(m.requests, state)
	return m.err
}
func (m *mockPower) PowerSaveMode() bool      { return m.powerSave }
func (m *mockPower) State() models.PowerState { return m.state }
func (m *mockPower) Relays() map[int]bool     { return m.relays }

type mockCapture struct {
	result     service.CaptureResult
	err        error
	available  bool
	captures   int
	reconnects int
	ctxErr     error
}

func (m *mockCapture) TakePicture(ctx context.Context) (service.CaptureResult, error) {
	m.captures++
	m.ctxErr = ctx.Err()
	return m.result, m.err
}
func (m *mockCapture) ReconnectCamera(context.Context) bool {
	m.reconnects++
	return m.available
}

type mockStatus struct {
	snap     models.StatusSnapshot
	image    []byte
	imageErr error
	pollErr  error
	polls    int
}

func (m *mockStatus) Poll(context.Context) error {
	m.polls++
	return m.pollErr
}
func (m *mockStatus) Snapshot() models.StatusSnapshot        { return m.snap }
func (m *mockStatus) StatusImage() ([]byte, error)           { return m.image, m.imageErr }
func (m *mockStatus) Restore(context.Context) error          { return nil }
func (m *mockStatus) SetRestarter(func(ctx context.Context)) {}

type mockEventLog struct {
	resp     []models.StationEvent
	err      error
	lastFrom service.LogFilter
	calls    int
}

func (m *mockEventLog) Record(context.Context, string, string, any) {}
func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.StationEvent, error) {
	m.calls++
	m.lastFrom = f
	return m.resp, m.err
}

type mockConfiguration struct {
	settings   map[string]any
	accepted   bool
	err        error
	lastValues map[string]any
}

func (m *mockConfiguration) Settings() map[string]any {
	out := make(map[string]any, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out
}
func (m *mockConfiguration) Update(_ context.Context, values map[string]any) (bool, error) {
	m.lastValues = values
	return m.accepted, m.err
}

type mockWeather struct{ cond weather.Conditions }

func (m *mockWeather) Refresh(context.Context) error { return nil }
func (m *mockWeather) Current() weather.Conditions   { return m.cond }

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func withHeader(req *http.Request, hdr http.Header) *http.Request {
	for k, vv := range hdr {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	return req
}
