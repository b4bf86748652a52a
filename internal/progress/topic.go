package progress

import (
	"sync"
	"time"

	"github.com/kubilitics/kubilitics-backend/internal/models"
)

// subscriber is one stream consumer's channel and heartbeat ticker.
type subscriber struct {
	ch     chan models.ProgressEvent
	done   chan struct{}
	once   sync.Once
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan models.ProgressEvent, subscriberDepth), done: make(chan struct{})}
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		close(s.ch)
	})
}

// topic is one Task's progress stream: a small ring buffer of the most
// recent events plus the set of currently-attached subscribers.
type topic struct {
	taskID string

	mu          sync.Mutex
	ring        []models.ProgressEvent
	subscribers map[*subscriber]bool
	closed      bool
}

func newTopic(taskID string) *topic {
	return &topic{taskID: taskID, subscribers: make(map[*subscriber]bool)}
}

func (t *topic) publish(ev models.ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.ring = append(t.ring, ev)
	if len(t.ring) > ringBufferSize {
		t.ring = t.ring[len(t.ring)-ringBufferSize:]
	}
	for s := range t.subscribers {
		select {
		case s.ch <- ev:
		default:
			// slow subscriber: drop this event, it can catch up from the
			// next poll/backlog rather than stall the publisher (§4.H).
		}
	}
}

func (t *topic) subscribe() ([]models.ProgressEvent, *subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := newSubscriber()
	backlog := make([]models.ProgressEvent, len(t.ring))
	copy(backlog, t.ring)
	if !t.closed {
		t.subscribers[s] = true
		go t.heartbeat(s)
	} else {
		s.stop()
	}
	return backlog, s
}

func (t *topic) unsubscribe(s *subscriber) {
	t.mu.Lock()
	delete(t.subscribers, s)
	t.mu.Unlock()
	s.stop()
}

// heartbeat keeps a subscriber's connection alive with an idle keepalive
// event every heartbeatPeriod, so an HTTP long-poll/SSE transport doesn't
// get reaped by an intermediary proxy during a quiet analysis stage (§4.H).
func (t *topic) heartbeat(s *subscriber) {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			select {
			case s.ch <- models.ProgressEvent{TaskID: t.taskID, UpdatedAt: time.Now()}:
			default:
			}
		}
	}
}

func (t *topic) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for s := range t.subscribers {
		s.stop()
	}
	t.subscribers = make(map[*subscriber]bool)
}
