package http

import (
	"sync"

	"github.com/dkeye/voicematch/internal/core"
	"github.com/dkeye/voicematch/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EventState            = "state"
	EventPeerConnected    = "peer-connected"
	EventPeerDisconnected = "peer-disconnected"
	EventError            = "error"
)

// Event is one message of the /api/session/events stream.
type Event struct {
	Type   string                  `json:"type"`
	State  *domain.ConnectionState `json:"state,omitempty"`
	PeerID string                  `json:"peerId,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

// Notifier is the hook surface of the session manager.
type Notifier interface {
	OnStateChange(fn func(domain.ConnectionState))
	OnPeerConnected(fn func(peerID string))
	OnPeerDisconnected(fn func())
	OnError(fn func(error))
}

// Hub fans session events out to SSE subscribers. A subscriber that falls
// behind loses events instead of stalling the session's event loop.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]chan Event
	buffer int
	log    zerolog.Logger
}

func NewHub(buffer int, log zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[string]chan Event),
		buffer: buffer,
		log:    log.With().Str("module", "adapters.http.events").Logger(),
	}
}

// Attach registers the hub as the notifier's only hook set.
func (h *Hub) Attach(n Notifier) {
	n.OnStateChange(func(s domain.ConnectionState) {
		h.Publish(Event{Type: EventState, State: &s})
	})
	n.OnPeerConnected(func(peerID string) {
		h.Publish(Event{Type: EventPeerConnected, PeerID: peerID})
	})
	n.OnPeerDisconnected(func() {
		h.Publish(Event{Type: EventPeerDisconnected})
	})
	n.OnError(func(err error) {
		h.Publish(Event{Type: EventError, Error: err.Error()})
	})
}

func (h *Hub) Subscribe() (string, <-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch, func() { h.unsubscribe(id) }
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		if err := trySend(ch, e); err != nil {
			h.log.Warn().Str("subscriber", id).Str("event", e.Type).Err(err).Msg("dropping event")
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func trySend(ch chan<- Event, e Event) error {
	select {
	case ch <- e:
		return nil
	default:
		return core.ErrBackpressure
	}
}
