// Package track provides the Track domain entity.
package track

import "time"

// Track is an immutable descriptor for a playable track. Metadata is
// resolved by an external catalog before the track enters a session;
// the engine never mutates it after creation.
type Track struct {
	ID       string        // Catalog track ID
	Title    string        // Track title
	Artist   string        // Primary artist
	CoverRef string        // Cover art reference (opaque URL or key)
	Duration time.Duration // Track duration
}

// Valid reports whether the descriptor carries the minimum fields the
// engine requires to schedule playback.
func (t Track) Valid() bool {
	return t.ID != "" && t.Title != "" && t.Duration > 0
}
