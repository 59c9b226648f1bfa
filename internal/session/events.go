package session

import (
	"sync"
	"time"

	"github.com/docassist/docassist/internal/alert"
	"github.com/docassist/docassist/internal/note"
	"github.com/docassist/docassist/internal/transcript"
)

// EventType names what an [Event] carries.
type EventType string

const (
	EventState   EventType = "state"
	EventInterim EventType = "interim"
	EventSegment EventType = "segment"
	EventEntity  EventType = "entity"
	EventAlert   EventType = "alert"
	EventNote    EventType = "note"
	EventError   EventType = "error"
)

// EntityKind distinguishes detected entities.
type EntityKind string

const (
	EntityMedication EntityKind = "medication"
	EntitySymptom    EntityKind = "symptom"
)

// Entity is a newly detected medication or symptom.
type Entity struct {
	Kind EntityKind `json:"kind"`
	Name string     `json:"name"`
}

// Event is pushed to subscribers as the session changes. Only the field
// matching Type is set.
type Event struct {
	Type      EventType           `json:"type"`
	SessionID string              `json:"session_id"`
	Time      time.Time           `json:"time"`
	State     State               `json:"state,omitempty"`
	Text      string              `json:"text,omitempty"`
	Segment   *transcript.Segment `json:"segment,omitempty"`
	Entity    *Entity             `json:"entity,omitempty"`
	Alert     *alert.Alert        `json:"alert,omitempty"`
	Note      *note.SessionNote   `json:"note,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// subscriberBuffer is the per-subscriber queue length. Events are dropped
// for a subscriber whose queue is full.
const subscriberBuffer = 64

// hub fans events out to subscribers without blocking the publisher.
type hub struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Event)}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *hub) publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
