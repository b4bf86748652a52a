// Package websocket bridges one Task's Progress Bus topic to a single
// WebSocket connection for GET /tasks/{task_id}/stream (§4.H, §6).
package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kubilitics/kubilitics-backend/internal/pkg/validate"
	"github.com/kubilitics/kubilitics-backend/internal/progress"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades a single HTTP request into a push stream of one Task's
// ProgressEvents.
type Handler struct {
	bus    *progress.Bus
	logger *slog.Logger
}

func NewHandler(bus *progress.Bus, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{bus: bus, logger: logger}
}

// ServeTaskStream handles GET /tasks/{task_id}/stream. Subscribing replays
// the topic's current backlog immediately, then streams subsequent events;
// a terminal event closes the connection (§4.H).
func (h *Handler) ServeTaskStream(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	if !validate.TaskID(taskID) {
		http.Error(w, "invalid task_id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("progress stream upgrade failed", "task_id", taskID, "error", err)
		return
	}
	defer conn.Close()

	backlog, events, unsubscribe := h.bus.Subscribe(taskID)
	defer unsubscribe()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go h.drainReads(conn)

	for _, ev := range backlog {
		if !h.write(conn, true, ev) {
			return
		}
		if ev.State.IsTerminal() {
			return
		}
	}

	for ev := range events {
		if !h.write(conn, ev.State != "", ev) {
			return
		}
		if ev.State.IsTerminal() {
			return
		}
	}
}

// write sends one ProgressEvent as a text frame. meaningful distinguishes a
// real state transition from a bare heartbeat (§4.H keepalive); heartbeats
// are sent as WebSocket pings instead of a JSON payload.
func (h *Handler) write(conn *websocket.Conn, meaningful bool, ev interface{}) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if !meaningful {
		return conn.WriteMessage(websocket.PingMessage, nil) == nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	return conn.WriteMessage(websocket.TextMessage, b) == nil
}

// drainReads discards client frames (this endpoint is one-directional) but
// must keep reading so pong control frames are processed and the read
// deadline resets.
func (h *Handler) drainReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
