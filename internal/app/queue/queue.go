// Package queue provides the vote-ranked track queue.
package queue

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/soundhaus/partyline/internal/domain/track"
)

var (
	ErrEmptyQueue    = errors.New("queue is empty")
	ErrTrackNotFound = errors.New("track is not queued")
)

// Entry is one pending track. Votes are tracked as a set of participant
// IDs rather than a counter so that voting is idempotent and a leaving
// participant's votes can be retracted exactly.
type Entry struct {
	Track        track.Track
	RequestedBy  string
	InsertionSeq uint64
	AddedAt      time.Time

	votes map[string]struct{}
}

// VoteCount returns the number of distinct voters.
func (e *Entry) VoteCount() int {
	return len(e.votes)
}

// HasVote reports whether the participant has voted for this entry.
func (e *Entry) HasVote(participantID string) bool {
	_, ok := e.votes[participantID]
	return ok
}

// Voters returns the voter IDs in stable (sorted) order.
func (e *Entry) Voters() []string {
	ids := make([]string, 0, len(e.votes))
	for id := range e.votes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Queue ranks pending tracks by vote count with FIFO fairness among
// ties. It is not internally synchronized: the owning session engine
// is its only mutator.
type Queue struct {
	entries []*Entry
	nextSeq uint64
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{entries: make([]*Entry, 0)}
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Get returns the entry for the given track ID.
func (q *Queue) Get(trackID string) (*Entry, bool) {
	for _, e := range q.entries {
		if e.Track.ID == trackID {
			return e, true
		}
	}
	return nil, false
}

// Enqueue appends a new entry with the requester's implicit first vote
// and a fresh insertion sequence. If the track is already queued the
// call folds into a vote by the requester instead; folded reports which
// path was taken, and changed reports whether any state changed at all
// (re-adding a track you already voted for is a no-op).
func (q *Queue) Enqueue(t track.Track, requestedBy string, now time.Time) (entry *Entry, folded, changed bool) {
	if existing, ok := q.Get(t.ID); ok {
		if existing.HasVote(requestedBy) {
			return existing, true, false
		}
		existing.votes[requestedBy] = struct{}{}
		return existing, true, true
	}

	q.nextSeq++
	entry = &Entry{
		Track:        t,
		RequestedBy:  requestedBy,
		InsertionSeq: q.nextSeq,
		AddedAt:      now,
		votes:        map[string]struct{}{requestedBy: {}},
	}
	q.entries = append(q.entries, entry)
	return entry, false, true
}

// Vote adds the participant's vote to the entry for trackID. Voting
// twice is idempotent: changed is false and no error is returned.
func (q *Queue) Vote(trackID, participantID string) (changed bool, err error) {
	entry, ok := q.Get(trackID)
	if !ok {
		return false, errors.Wrapf(ErrTrackNotFound, "vote for %s", trackID)
	}
	if entry.HasVote(participantID) {
		return false, nil
	}
	entry.votes[participantID] = struct{}{}
	return true, nil
}

// RetractVote removes the participant's vote from the entry for
// trackID. Retracting an absent vote is idempotent.
func (q *Queue) RetractVote(trackID, participantID string) (changed bool, err error) {
	entry, ok := q.Get(trackID)
	if !ok {
		return false, errors.Wrapf(ErrTrackNotFound, "retract vote for %s", trackID)
	}
	if !entry.HasVote(participantID) {
		return false, nil
	}
	delete(entry.votes, participantID)
	return true, nil
}

// RetractAll removes the participant's votes from every entry. Used
// when a participant leaves the session. Entries left with zero votes
// stay queued; rank alone decides when they play.
func (q *Queue) RetractAll(participantID string) (changed bool) {
	for _, e := range q.entries {
		if e.HasVote(participantID) {
			delete(e.votes, participantID)
			changed = true
		}
	}
	return changed
}

// Ordering returns the entries ranked by (vote count desc, insertion
// sequence asc). Rank is a pure function of the current vote sets and
// insertion order; call order of past votes never matters beyond ties.
func (q *Queue) Ordering() []*Entry {
	ranked := make([]*Entry, len(q.entries))
	copy(ranked, q.entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].VoteCount() != ranked[j].VoteCount() {
			return ranked[i].VoteCount() > ranked[j].VoteCount()
		}
		return ranked[i].InsertionSeq < ranked[j].InsertionSeq
	})
	return ranked
}

// PopNext removes and returns the highest-ranked entry.
func (q *Queue) PopNext() (*Entry, error) {
	if len(q.entries) == 0 {
		return nil, ErrEmptyQueue
	}
	next := q.Ordering()[0]
	for i, e := range q.entries {
		if e == next {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return next, nil
}
