package engine

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundhaus/partyline/internal/app/filter"
	"github.com/soundhaus/partyline/internal/domain/party"
	"github.com/soundhaus/partyline/internal/telemetry"
)

var ErrSessionNotFound = errors.New("session not found")

// FilterFactory builds a fresh filter chain for a new session. Filters
// hold per-session state, so chains are never shared.
type FilterFactory func() *filter.Chain

// Registry owns the live session engines, one per party.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Engine

	defaults   Config
	newFilters FilterFactory
}

// NewRegistry creates a registry. defaults supplies the per-session
// tuning; newFilters may be nil for sessions without enqueue filters.
func NewRegistry(defaults Config, newFilters FilterFactory) *Registry {
	if newFilters == nil {
		newFilters = func() *filter.Chain { return filter.NewChain() }
	}
	return &Registry{
		sessions:   make(map[string]*Engine),
		defaults:   defaults,
		newFilters: newFilters,
	}
}

// Open returns the live session for the party, starting one if none is
// running. partyID doubles as the session ID.
func (r *Registry) Open(p party.Party) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[p.ID]; ok {
		return e
	}

	cfg := r.defaults
	cfg.SessionID = p.ID
	cfg.PartyName = p.Name
	cfg.Genre = p.Genre

	e := New(cfg, r.newFilters())
	r.sessions[p.ID] = e
	e.Start()
	telemetry.ActiveSessions.Inc()
	zlog.Info().Str("session_id", p.ID).Str("party_name", p.Name).Msg("session opened")

	// Reap the slot when the session ends, whatever ended it.
	go func() {
		<-e.Done()
		r.mu.Lock()
		if r.sessions[p.ID] == e {
			delete(r.sessions, p.ID)
		}
		r.mu.Unlock()
		telemetry.ActiveSessions.Dec()
		zlog.Info().Str("session_id", p.ID).Msg("session reaped")
	}()

	return e
}

// Get returns the live session for the party.
func (r *Registry) Get(partyID string) (*Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[partyID]
	if !ok {
		return nil, errors.Wrapf(ErrSessionNotFound, "party %s", partyID)
	}
	return e, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll shuts every live session down and waits for each to end.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	engines := make([]*Engine, 0, len(r.sessions))
	for _, e := range r.sessions {
		engines = append(engines, e)
	}
	r.mu.RUnlock()

	for _, e := range engines {
		e.Close()
		<-e.Done()
	}
}
