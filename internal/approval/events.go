package approval

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventKind names coordinator notifications.
type EventKind string

const (
	EventAckReceived    EventKind = "ack_received"
	EventLinkLost       EventKind = "link_lost"
	EventAlreadyPending EventKind = "already_pending"
	EventTimedOut       EventKind = "timed_out"
	EventUnsolicitedAck EventKind = "unsolicited_ack"
)

// Event is one notification delivered to subscribers.
type Event struct {
	Kind      EventKind `json:"kind"`
	RequestID string    `json:"request_id,omitempty"`
	SubjectID string    `json:"subject_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

type broker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	last   *Event
	closed bool
	buffer int
}

func newBroker(buffer int) *broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &broker{subs: make(map[int]chan Event), buffer: buffer}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// publish never blocks; a subscriber with a full buffer misses the event.
func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	last := ev
	b.last = &last
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Int("subscriber", id).Str("kind", string(ev.Kind)).Msg("approval.broker dropped event")
		}
	}
}

func (b *broker) lastEvent() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return Event{}, false
	}
	return *b.last, true
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
