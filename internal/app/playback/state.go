// Package playback provides the session playback clock and state.
package playback

// State represents the playback state of a session.
type State int

const (
	StateIdle    State = iota // No current track (queue empty or never started)
	StatePlaying              // Current track advancing
	StatePaused               // Current track frozen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
