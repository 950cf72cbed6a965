package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"mothstation/internal/service"
)

func TestConfigHandlers_GetRedactsSecrets(t *testing.T) {
	cfg := &mockConfiguration{settings: map[string]any{
		"capture_interval": 300,
		"auth.signing_key": "super-secret",
	}}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Configuration: cfg})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, withHeader(httptest.NewRequest(http.MethodGet, "/api/v1/config", nil), authHeader("valid")))
	if w.Code != http.StatusOK {
		t.Fatalf("get config status=%d", w.Code)
	}
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out["auth.signing_key"] != redacted {
		t.Fatalf("signing key leaked: %v", out["auth.signing_key"])
	}
	if out["capture_interval"].(float64) != 300 {
		t.Fatalf("unexpected settings %v", out)
	}
	if cfg.settings["auth.signing_key"] != "super-secret" {
		t.Fatal("redaction modified the source settings")
	}
}

func TestConfigHandlers_Update(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		accepted     bool
		err          error
		wantCode     int
		wantAccepted bool
	}{
		{name: "accepted", body: `{"capture_interval":600}`, accepted: true, wantCode: http.StatusOK, wantAccepted: true},
		{name: "corrected", body: `{"capture_interval":5}`, accepted: false, wantCode: http.StatusOK, wantAccepted: false},
		{name: "empty", body: `{}`, wantCode: http.StatusBadRequest},
		{name: "not json", body: `capture_interval=600`, wantCode: http.StatusBadRequest},
		{name: "unknown key", body: `{"shutter_speed":1}`, err: fmt.Errorf("%w: unknown key", service.ErrConfigRejected), wantCode: http.StatusBadRequest},
		{name: "save failed", body: `{"lat":48.1}`, err: errors.New("save configuration: read-only file system"), wantCode: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &mockConfiguration{accepted: tc.accepted, err: tc.err}
			r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Configuration: cfg})

			req := withHeader(httptest.NewRequest(http.MethodPut, "/api/v1/config", bytes.NewBufferString(tc.body)), authHeader("valid"))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("code=%d want %d body=%s", w.Code, tc.wantCode, w.Body.String())
			}
			if tc.wantCode != http.StatusOK {
				return
			}
			var out struct {
				Accepted bool `json:"accepted"`
			}
			_ = json.Unmarshal(w.Body.Bytes(), &out)
			if out.Accepted != tc.wantAccepted {
				t.Fatalf("accepted=%v want %v", out.Accepted, tc.wantAccepted)
			}
		})
	}
}
