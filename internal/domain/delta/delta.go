// Package delta defines the versioned state-change records broadcast to
// session observers.
package delta

import "time"

// Kind enumerates delta categories.
type Kind string

const (
	KindFullSnapshot         Kind = "full_snapshot"
	KindTrackStarted         Kind = "track_started"
	KindTrackFinished        Kind = "track_finished"
	KindQueueChanged         Kind = "queue_changed"
	KindRosterChanged        Kind = "roster_changed"
	KindChatAppended         Kind = "chat_appended"
	KindPlaybackStateChanged Kind = "playback_state_changed"
)

// Delta is one broadcastable state-change record. Version is the
// session's monotonic mutation counter; within a session, deltas form a
// strict total order with no gaps.
type Delta struct {
	Version uint64 `json:"version"`
	Kind    Kind   `json:"kind"`
	Payload any    `json:"payload"`
}

// ClockInfo is the authoritative playback position. Clients may
// extrapolate from it for smoothness but must resynchronize on every
// received delta.
type ClockInfo struct {
	ElapsedMs int64 `json:"elapsed_ms"`
	Playing   bool  `json:"playing"`
}

// TrackInfo describes a track in delta payloads.
type TrackInfo struct {
	TrackID     string `json:"track_id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	CoverRef    string `json:"cover_ref,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// QueueEntryInfo describes one pending queue entry.
type QueueEntryInfo struct {
	Track        TrackInfo `json:"track"`
	Votes        int       `json:"votes"`
	Voters       []string  `json:"voters"`
	InsertionSeq uint64    `json:"insertion_seq"`
}

// ParticipantInfo describes one roster member.
type ParticipantInfo struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Role          string    `json:"role"`
	ConnectedAt   time.Time `json:"connected_at"`
}

// ChatMessageInfo describes one chat message.
type ChatMessageInfo struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Text          string    `json:"text"`
	SentAt        time.Time `json:"sent_at"`
}

// TrackPayload accompanies KindTrackStarted and KindTrackFinished.
// Reason distinguishes a natural finish from a host skip.
type TrackPayload struct {
	Track  TrackInfo `json:"track"`
	Clock  ClockInfo `json:"clock"`
	Reason string    `json:"reason,omitempty"` // "finished" or "skipped"
}

// QueuePayload accompanies KindQueueChanged and carries the full
// re-ranked queue in play order.
type QueuePayload struct {
	Entries []QueueEntryInfo `json:"entries"`
}

// RosterPayload accompanies KindRosterChanged.
type RosterPayload struct {
	Participants []ParticipantInfo `json:"participants"`
	HostID       string            `json:"host_id,omitempty"`
}

// ChatPayload accompanies KindChatAppended.
type ChatPayload struct {
	Message ChatMessageInfo `json:"message"`
}

// PlaybackPayload accompanies KindPlaybackStateChanged.
type PlaybackPayload struct {
	State string     `json:"state"` // idle, playing, paused
	Clock ClockInfo  `json:"clock"`
	Track *TrackInfo `json:"track,omitempty"`
}

// Snapshot is the full session state sent to a newly joining observer
// as the payload of a synthetic KindFullSnapshot delta. The embedded
// Version equals the session's current version at snapshot time.
type Snapshot struct {
	SessionID    string            `json:"session_id"`
	Version      uint64            `json:"version"`
	PartyName    string            `json:"party_name"`
	Genre        string            `json:"genre"`
	State        string            `json:"state"`
	CurrentTrack *TrackInfo        `json:"current_track,omitempty"`
	Clock        ClockInfo         `json:"clock"`
	Queue        []QueueEntryInfo  `json:"queue"`
	Participants []ParticipantInfo `json:"participants"`
	HostID       string            `json:"host_id,omitempty"`
	Chat         []ChatMessageInfo `json:"chat"`
}
