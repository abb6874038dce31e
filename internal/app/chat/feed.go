// Package chat provides the session-scoped, bounded chat feed.
package chat

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Message is one immutable chat entry. IDs are ULIDs so they sort by
// append time.
type Message struct {
	ID            string
	ParticipantID string
	DisplayName   string
	Text          string
	SentAt        time.Time
}

// Feed is an append-only message log capped at the N most recent
// entries. Chat is ephemeral and scoped to the live session: evicted
// entries are dropped, not persisted. It is not internally
// synchronized: the owning session engine is its only mutator.
type Feed struct {
	capacity int
	messages []Message
	entropy  *ulid.MonotonicEntropy
}

// NewFeed creates a feed that retains at most capacity messages.
func NewFeed(capacity int) *Feed {
	if capacity < 1 {
		capacity = 1
	}
	return &Feed{
		capacity: capacity,
		messages: make([]Message, 0, capacity),
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Append adds a message, evicting the oldest entry when the feed is at
// capacity. Eviction is not an error: the append still succeeds.
func (f *Feed) Append(participantID, displayName, text string, now time.Time) (msg Message, evicted bool) {
	msg = Message{
		ID:            ulid.MustNew(ulid.Timestamp(now), f.entropy).String(),
		ParticipantID: participantID,
		DisplayName:   displayName,
		Text:          text,
		SentAt:        now,
	}

	if len(f.messages) >= f.capacity {
		f.messages = f.messages[1:]
		evicted = true
	}
	f.messages = append(f.messages, msg)
	return msg, evicted
}

// Messages returns the retained messages, oldest first.
func (f *Feed) Messages() []Message {
	out := make([]Message, len(f.messages))
	copy(out, f.messages)
	return out
}

// Len returns the number of retained messages.
func (f *Feed) Len() int {
	return len(f.messages)
}
