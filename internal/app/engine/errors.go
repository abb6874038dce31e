package engine

import "github.com/cockroachdb/errors"

var (
	// ErrSessionClosed is returned for any command sent to a session
	// that has shut down.
	ErrSessionClosed = errors.New("session is closed")

	// ErrNotHost is returned when a guest attempts a host-only control.
	ErrNotHost = errors.New("operation requires host")

	// ErrUnknownParticipant is returned when the acting participant is
	// not on the roster.
	ErrUnknownParticipant = errors.New("unknown participant")

	// ErrInvalidTrack is returned for a structurally invalid track.
	ErrInvalidTrack = errors.New("invalid track")

	// ErrUnknownTrack is returned for a vote on a track that is neither
	// queued nor currently playing.
	ErrUnknownTrack = errors.New("unknown track")

	// ErrFilterRejected is returned when the enqueue filter chain
	// rejects a request. The wrap message carries the filter code.
	ErrFilterRejected = errors.New("request rejected by filter")

	// ErrNoTrackPlaying is returned for playback controls issued while
	// the session is idle.
	ErrNoTrackPlaying = errors.New("no track playing")

	// ErrEmptyChatMessage is returned for blank chat input.
	ErrEmptyChatMessage = errors.New("empty chat message")

	// ErrChatMessageTooLong is returned when a chat message exceeds the
	// length limit.
	ErrChatMessageTooLong = errors.New("chat message too long")
)
