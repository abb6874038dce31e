// Package filter provides the enqueue filter chain.
package filter

import (
	"context"

	"github.com/soundhaus/partyline/internal/domain/party"
	"github.com/soundhaus/partyline/internal/domain/track"
)

// Candidate represents an enqueue request to be validated.
type Candidate struct {
	Track     track.Track
	Requester *party.Participant
	// PendingCount is the number of queue entries the requester
	// already has waiting, the current track excluded.
	PendingCount int
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duration_limit_exceeded", "pending_limit_exceeded"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for enqueue filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to requesters with the given role.
	AppliesTo(role party.Role) bool
	// Check performs the filter check.
	Check(ctx context.Context, c Candidate) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}
