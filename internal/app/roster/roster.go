// Package roster provides session membership and host designation.
package roster

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/soundhaus/partyline/internal/domain/party"
)

var (
	ErrDuplicateParticipant = errors.New("participant already joined")
	ErrParticipantNotFound  = errors.New("participant not in roster")
)

// Roster is the set of connected participants of one session. Exactly
// one participant holds the host role while the roster is non-empty.
// It is not internally synchronized: the owning session engine is its
// only mutator.
type Roster struct {
	participants map[string]*party.Participant
}

// New creates an empty roster.
func New() *Roster {
	return &Roster{participants: make(map[string]*party.Participant)}
}

// Join adds a participant. The first participant to join an empty
// roster is auto-assigned the host role. A reconnecting client must
// reuse its participant ID instead of rejoining; joining twice fails
// with ErrDuplicateParticipant.
func (r *Roster) Join(participantID, displayName string, now time.Time) (*party.Participant, error) {
	if _, ok := r.participants[participantID]; ok {
		return nil, errors.Wrapf(ErrDuplicateParticipant, "join %s", participantID)
	}

	role := party.RoleGuest
	if len(r.participants) == 0 {
		role = party.RoleHost
	}

	p := &party.Participant{
		ID:          participantID,
		DisplayName: displayName,
		Role:        role,
		ConnectedAt: now,
	}
	r.participants[participantID] = p
	return p, nil
}

// Leave removes a participant. If the departing participant was host,
// the host role transfers to the remaining participant with the
// earliest ConnectedAt; newHost is nil when no transfer happened.
func (r *Roster) Leave(participantID string) (left, newHost *party.Participant, err error) {
	p, ok := r.participants[participantID]
	if !ok {
		return nil, nil, errors.Wrapf(ErrParticipantNotFound, "leave %s", participantID)
	}
	delete(r.participants, participantID)

	if p.Role == party.RoleHost {
		if successor := r.earliest(); successor != nil {
			successor.Role = party.RoleHost
			newHost = successor
		}
	}
	return p, newHost, nil
}

// Get returns the participant with the given ID.
func (r *Roster) Get(participantID string) (*party.Participant, bool) {
	p, ok := r.participants[participantID]
	return p, ok
}

// IsHost reports whether the participant holds the host role. Used to
// authorize host-only commands against the live roster.
func (r *Roster) IsHost(participantID string) bool {
	p, ok := r.participants[participantID]
	return ok && p.IsHost()
}

// Host returns the current host, if any.
func (r *Roster) Host() (*party.Participant, bool) {
	for _, p := range r.participants {
		if p.IsHost() {
			return p, true
		}
	}
	return nil, false
}

// Len returns the number of connected participants.
func (r *Roster) Len() int {
	return len(r.participants)
}

// All returns the participants ordered by join time.
func (r *Roster) All() []*party.Participant {
	all := make([]*party.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ConnectedAt.Equal(all[j].ConnectedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].ConnectedAt.Before(all[j].ConnectedAt)
	})
	return all
}

func (r *Roster) earliest() *party.Participant {
	var first *party.Participant
	for _, p := range r.participants {
		if first == nil {
			first = p
			continue
		}
		if p.ConnectedAt.Before(first.ConnectedAt) ||
			(p.ConnectedAt.Equal(first.ConnectedAt) && p.ID < first.ID) {
			first = p
		}
	}
	return first
}
