// Package broadcast fans live pipeline events out to in-process subscribers.
//
// Events are JSON envelopes with a "kind" discriminator: "alert" carries a
// persisted alert, "tick" carries replay progress, "error" carries a replay
// failure message. Each envelope is serialised once and the same bytes are
// handed to every subscriber.
package broadcast

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/vessel.report/internal/ais"
)

// KindAlert, KindTick and KindError are the envelope discriminators.
const (
	KindAlert = "alert"
	KindTick  = "tick"
	KindError = "error"
)

// DefaultSubscriberBuffer is the per-subscriber channel depth used when
// Subscribe is called with a non-positive buffer.
const DefaultSubscriberBuffer = 10

// Hub distributes serialised events to subscribers. A subscriber that
// cannot keep up (its channel is full when an event arrives) is evicted and
// its channel closed; a stalled consumer must never stall the pipeline.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan []byte
	nextID int

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan []byte)}
}

// Subscribe registers a new subscriber and returns its event channel plus a
// cancel function. The channel is closed on cancel or eviction.
func (h *Hub) Subscribe(buffer int) (<-chan []byte, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan []byte, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	total := len(h.subs)
	h.mu.Unlock()

	log.Printf("[Broadcast] Subscriber %d connected (total: %d)", id, total)

	cancel := func() { h.remove(id) }
	return ch, cancel
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(ch)
	}
	remaining := len(h.subs)
	h.mu.Unlock()

	if ok {
		log.Printf("[Broadcast] Subscriber %d disconnected (remaining: %d)", id, remaining)
	}
}

// PublishAlert broadcasts a persisted alert.
func (h *Hub) PublishAlert(a *ais.Alert) {
	h.publish(map[string]any{"kind": KindAlert, "data": a})
}

// PublishTick broadcasts replay progress.
func (h *Hub) PublishTick(processed int) {
	h.publish(map[string]any{"kind": KindTick, "processed": processed})
}

// PublishError broadcasts a replay failure.
func (h *Hub) PublishError(msg string) {
	h.publish(map[string]any{"kind": KindError, "message": msg})
}

func (h *Hub) publish(envelope map[string]any) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[Broadcast] Failed to serialise %v event: %v", envelope["kind"], err)
		return
	}
	h.published.Add(1)

	var evict []int
	h.mu.RLock()
	for id, ch := range h.subs {
		select {
		case ch <- payload:
		default:
			evict = append(evict, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range evict {
		h.dropped.Add(1)
		log.Printf("[Broadcast] Subscriber %d too slow, evicting", id)
		h.remove(id)
	}
}

// Stats reports hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.subs)
	h.mu.RUnlock()
	return Stats{
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
		Subscribers: n,
	}
}

// Stats contains hub counters.
type Stats struct {
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}
