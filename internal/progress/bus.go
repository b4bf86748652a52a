// Package progress implements the Progress Bus (§4.H): per-task broadcast
// topics with a small ring buffer for late subscribers and a periodic
// heartbeat, adapted from a single global broadcast hub into many small
// per-task ones.
package progress

import (
	"sync"
	"time"

	"github.com/kubilitics/kubilitics-backend/internal/models"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/metrics"
)

const (
	ringBufferSize  = 20
	subscriberDepth = 16
	heartbeatPeriod = 15 * time.Second
)

// Bus owns one topic per Task. Topics are created lazily on first publish
// or subscribe and removed once their Task reaches a terminal state and its
// subscribers have drained.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*topic
}

func NewBus() *Bus {
	return &Bus{topics: make(map[string]*topic)}
}

func (b *Bus) topicFor(taskID string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[taskID]
	if !ok {
		t = newTopic(taskID)
		b.topics[taskID] = t
	}
	return t
}

// Publish appends ev to its Task's topic, fanning it out to every current
// subscriber and into the ring buffer for subscribers that join later
// (§4.H). Delivery to a full subscriber channel is dropped rather than
// blocking the publisher — the ring buffer is what makes a late or slow
// subscriber eventually consistent.
func (b *Bus) Publish(ev models.ProgressEvent) {
	t := b.topicFor(ev.TaskID)
	t.publish(ev)
	if ev.State.IsTerminal() {
		go b.closeAfterDrain(ev.TaskID)
	}
}

// Subscribe returns the topic's ring-buffer backlog plus a channel of
// future events. Call unsubscribe when done to release the slot.
func (b *Bus) Subscribe(taskID string) (backlog []models.ProgressEvent, ch <-chan models.ProgressEvent, unsubscribe func()) {
	t := b.topicFor(taskID)
	backlog, sub := t.subscribe()
	metrics.ProgressSubscribersActive.Inc()
	return backlog, sub.ch, func() {
		t.unsubscribe(sub)
		metrics.ProgressSubscribersActive.Dec()
	}
}

// closeAfterDrain gives slow subscribers one heartbeat period to observe
// the terminal event before the topic is torn down.
func (b *Bus) closeAfterDrain(taskID string) {
	time.Sleep(heartbeatPeriod)
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[taskID]; ok {
		t.close()
		delete(b.topics, taskID)
	}
}
