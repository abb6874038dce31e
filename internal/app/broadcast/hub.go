// Package broadcast fans session deltas out to connected subscribers.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundhaus/partyline/internal/domain/delta"
	"github.com/soundhaus/partyline/internal/telemetry"
)

// Subscription is one subscriber's ordered delta stream. The channel
// is closed when the subscriber is dropped or the hub shuts down; a
// closed channel tells the client to reconnect and resync.
type Subscription struct {
	ID string
	C  <-chan delta.Delta

	ch chan delta.Delta
}

// Hub delivers every published delta to every live subscriber in
// version order. Delivery is non-blocking: a subscriber whose buffer
// is full is dropped rather than allowed to stall the session.
type Hub struct {
	mu        sync.Mutex
	sessionID string
	bufSize   int
	history   *history
	subs      map[string]*Subscription
	closed    bool
}

// NewHub creates a hub retaining historySize deltas for catch-up and
// giving each subscriber a buffer of bufSize pending deltas.
func NewHub(sessionID string, historySize, bufSize int) *Hub {
	if bufSize < 1 {
		bufSize = 1
	}
	return &Hub{
		sessionID: sessionID,
		bufSize:   bufSize,
		history:   newHistory(historySize),
		subs:      make(map[string]*Subscription),
	}
}

// Subscribe registers a new subscriber. The caller supplies its last
// observed version and a snapshot delta built at the current version;
// the subscription channel is pre-loaded with either the missed deltas
// (when the baseline is still inside the retained history) or the full
// snapshot, before any new publish can be delivered.
func (h *Hub) Subscribe(baseline, current uint64, snapshot delta.Delta) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	var backlog []delta.Delta
	needSnapshot := true
	if baseline > 0 {
		if baseline == current {
			needSnapshot = false
		} else if missed, ok := h.history.since(baseline); ok {
			backlog, needSnapshot = missed, false
		}
	}

	size := h.bufSize
	if needSnapshot {
		size++
	} else if len(backlog) >= size {
		size = len(backlog) + 1
	}

	sub := &Subscription{
		ID: uuid.NewString(),
		ch: make(chan delta.Delta, size),
	}
	sub.C = sub.ch

	if h.closed {
		close(sub.ch)
		return sub
	}

	if needSnapshot {
		sub.ch <- snapshot
	} else {
		for _, d := range backlog {
			sub.ch <- d
		}
	}

	h.subs[sub.ID] = sub
	telemetry.ActiveSubscribers.Inc()
	zlog.Debug().Str("session_id", h.sessionID).Str("subscriber_id", sub.ID).
		Uint64("baseline", baseline).Bool("snapshot", needSnapshot).Msg("subscriber attached")
	return sub
}

// Publish records the delta in the catch-up history and hands it to
// every subscriber. Subscribers that cannot keep up are dropped.
func (h *Hub) Publish(d delta.Delta) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.history.append(d)
	for id, sub := range h.subs {
		select {
		case sub.ch <- d:
		default:
			delete(h.subs, id)
			close(sub.ch)
			telemetry.ActiveSubscribers.Dec()
			telemetry.SubscribersDropped.Inc()
			zlog.Warn().Str("session_id", h.sessionID).Str("subscriber_id", id).
				Msg("subscriber too slow, dropped")
		}
	}
}

// Unsubscribe detaches a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, found := h.subs[id]
	if !found {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
	telemetry.ActiveSubscribers.Dec()
}

// SubscriberCount returns the number of attached subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops all subscribers. Further publishes are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
		telemetry.ActiveSubscribers.Dec()
	}
}
