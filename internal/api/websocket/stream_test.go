package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kubilitics/kubilitics-backend/internal/models"
	"github.com/kubilitics/kubilitics-backend/internal/progress"
)

func newTestServer(t *testing.T, bus *progress.Bus) *httptest.Server {
	t.Helper()
	h := NewHandler(bus, nil)
	r := mux.NewRouter()
	r.HandleFunc("/tasks/{task_id}/stream", h.ServeTaskStream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, taskID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tasks/" + taskID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServeTaskStream_DeliversBacklogThenLive(t *testing.T) {
	bus := progress.NewBus()
	taskID := "task-1"

	bus.Publish(models.ProgressEvent{TaskID: taskID, State: models.TaskQueued, ProgressPercent: 0})

	srv := newTestServer(t, bus)
	conn := dial(t, srv, taskID)

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read backlog message: %v", err)
	}
	if !strings.Contains(string(msg), `"state":"queued"`) {
		t.Fatalf("expected backlog queued event, got %s", msg)
	}

	bus.Publish(models.ProgressEvent{TaskID: taskID, State: models.TaskAnalyzing, ProgressPercent: 50})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read live message: %v", err)
	}
	if !strings.Contains(string(msg), `"state":"analyzing"`) {
		t.Fatalf("expected live analyzing event, got %s", msg)
	}
}

func TestServeTaskStream_ClosesOnTerminalEvent(t *testing.T) {
	bus := progress.NewBus()
	taskID := "task-2"
	bus.Publish(models.ProgressEvent{TaskID: taskID, State: models.TaskDone, ProgressPercent: 100})

	srv := newTestServer(t, bus)
	conn := dial(t, srv, taskID)

	_, _, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read terminal message: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close after terminal event")
	}
}

func TestServeTaskStream_RejectsInvalidTaskID(t *testing.T) {
	bus := progress.NewBus()
	srv := newTestServer(t, bus)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tasks/" + "bad%20id" + "/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail for invalid task_id")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}
