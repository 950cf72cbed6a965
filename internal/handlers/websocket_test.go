package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"mothstation/internal/models"
	"mothstation/internal/service"
)

func TestStreamInterval(t *testing.T) {
	cases := []struct {
		query string
		want  time.Duration
	}{
		{"", defaultStreamInterval},
		{"interval=200ms", 200 * time.Millisecond},
		{"interval_ms=150", 150 * time.Millisecond},
		{"interval=2m", defaultStreamInterval},
		{"interval=10ms", defaultStreamInterval},
		{"interval_ms=120000", defaultStreamInterval},
		{"interval=bogus", defaultStreamInterval},
		{"interval_ms=NaN", defaultStreamInterval},
		{"interval=2s&interval_ms=150", 2 * time.Second},
		{"interval=bogus&interval_ms=250", 250 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/ws?"+tc.query, nil)
			require.Equal(t, tc.want, streamInterval(c))
		})
	}
}

type wsFrame struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func dialStream(t *testing.T, s *service.Service, query string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", NewHandler(s, nil, nil).wsConnect)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f wsFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestStatusStream_InitialAndPeriodic(t *testing.T) {
	st := &mockStatus{snap: models.StatusSnapshot{
		CameraAvailable: true,
		LastPicture:     "20211208-221500",
		PictureCount:    42,
		FreeSlots:       1200,
	}}
	conn := dialStream(t, &service.Service{Status: st}, "interval_ms=100")

	first := readFrame(t, conn)
	require.Equal(t, msgStatus, first.Type)
	var snap models.StatusSnapshot
	require.NoError(t, json.Unmarshal(first.Data, &snap))
	require.True(t, snap.CameraAvailable)
	require.Equal(t, 42, snap.PictureCount)
	require.Equal(t, "20211208-221500", snap.LastPicture)

	require.Equal(t, msgStatus, readFrame(t, conn).Type)
}

func TestStatusStream_RefreshOnRequest(t *testing.T) {
	conn := dialStream(t, &service.Service{Status: &mockStatus{}}, "interval=1m")
	require.Equal(t, msgStatus, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(wsEnvelope{Type: msgRefresh}))
	require.Equal(t, msgStatus, readFrame(t, conn).Type)
}

func TestStatusStream_NoStatusService(t *testing.T) {
	conn := dialStream(t, &service.Service{}, "")
	f := readFrame(t, conn)
	require.Equal(t, msgError, f.Type)
	require.Equal(t, "status unavailable", f.Error)
}

func TestStatusStream_PlainHTTPRejected(t *testing.T) {
	r := newTestRouter(&service.Service{Status: &mockStatus{}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
