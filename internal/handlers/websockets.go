package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	maxMsgSize  = 1 << 12
	minInterval = 100 * time.Millisecond

	defaultStreamInterval = 5 * time.Second
	maxStreamInterval     = time.Minute
)

// Message types on the status stream.
const (
	msgStatus  = "status"
	msgError   = "error"
	msgRefresh = "refresh" // client -> server: send a snapshot now
)

// wsEnvelope is the frame format in both directions.
type wsEnvelope struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// The station is reached over the local network by address, so any origin
// is accepted.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamInterval reads ?interval=10s or ?interval_ms=10000. Values outside
// [minInterval, maxStreamInterval] fall back to the default.
func streamInterval(c *gin.Context) time.Duration {
	valid := func(d time.Duration) bool { return d >= minInterval && d <= maxStreamInterval }

	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && valid(d) {
			return d
		}
	}
	if s := c.Query("interval_ms"); s != "" {
		if ms, err := strconv.Atoi(s); err == nil && valid(time.Duration(ms)*time.Millisecond) {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultStreamInterval
}

// @Summary      Live status stream
// @Description  Streams the status snapshot over a websocket every interval. Send {"type":"refresh"} for an immediate snapshot.
// @Tags         status
// @Param        interval     query  string  false  "Go duration, 100ms..1m"
// @Param        interval_ms  query  int     false  "milliseconds, 100..60000"
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	interval := streamInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Infow("ws_upgrade_failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()
	h.log.Debugw("ws_connected", "remote", c.ClientIP(), "interval", interval)

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	refresh := make(chan struct{}, 1)
	done := make(chan struct{})
	go h.readClient(conn, refresh, done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	send := func() bool {
		if err := h.writeStatus(conn); err != nil {
			h.log.Infow("ws_write_failed", "err", err)
			return false
		}
		return true
	}
	if !send() {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.log.Infow("ws_ping_failed", "err", err)
				return
			}
		case <-refresh:
			if !send() {
				return
			}
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}

// readClient handles control frames and refresh requests until the
// connection closes. Anything but a refresh request is dropped.
func (h *Handler) readClient(conn *websocket.Conn, refresh chan<- struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
		var msg wsEnvelope
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != msgRefresh {
			h.log.Debugw("ws_message_ignored", "size", len(raw))
			continue
		}
		select {
		case refresh <- struct{}{}:
		default:
		}
	}
}

func (h *Handler) writeStatus(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if h.services.Status == nil {
		return conn.WriteJSON(wsEnvelope{Type: msgError, Error: "status unavailable"})
	}
	return conn.WriteJSON(wsEnvelope{Type: msgStatus, Data: h.services.Status.Snapshot()})
}
