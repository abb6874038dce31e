// Package engine runs one party session: the vote-ranked queue, the
// playback clock, the roster, chat, and the versioned delta stream.
package engine

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundhaus/partyline/internal/app/broadcast"
	"github.com/soundhaus/partyline/internal/app/chat"
	"github.com/soundhaus/partyline/internal/app/filter"
	"github.com/soundhaus/partyline/internal/app/playback"
	"github.com/soundhaus/partyline/internal/app/queue"
	"github.com/soundhaus/partyline/internal/app/roster"
	"github.com/soundhaus/partyline/internal/domain/delta"
	"github.com/soundhaus/partyline/internal/domain/party"
	"github.com/soundhaus/partyline/internal/domain/track"
	"github.com/soundhaus/partyline/internal/telemetry"
)

const (
	reasonFinished = "finished"
	reasonSkipped  = "skipped"
)

// Config holds per-session tuning.
type Config struct {
	SessionID        string
	PartyName        string
	Genre            party.Genre
	TickInterval     time.Duration
	GraceWindow      time.Duration
	ChatCapacity     int
	ChatMaxRunes     int
	DeltaHistory     int
	SubscriberBuffer int
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.GraceWindow <= 0 {
		c.GraceWindow = 30 * time.Second
	}
	if c.ChatCapacity <= 0 {
		c.ChatCapacity = 200
	}
	if c.ChatMaxRunes <= 0 {
		c.ChatMaxRunes = 500
	}
	if c.DeltaHistory <= 0 {
		c.DeltaHistory = 512
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 32
	}
}

// command is one unit of work for the session goroutine. All state
// mutation and all snapshot reads flow through it, so every observer
// sees mutations in version order.
type command struct {
	fn    func(now time.Time) error
	reply chan error
}

// Engine is the single-writer state machine for one session. All
// component state (queue, clock, roster, feed) is owned by the run
// goroutine; the exported methods are thin command submitters.
type Engine struct {
	cfg Config

	version    uint64
	state      playback.State
	clock      *playback.Clock
	queue      *queue.Queue
	roster     *roster.Roster
	feed       *chat.Feed
	hub        *broadcast.Hub
	filters    *filter.Chain
	current    *queue.Entry
	pauseVotes map[string]struct{}
	emptySince time.Time

	nowFn    func() time.Time
	cmds     chan command
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool
}

// New creates a session engine. Start must be called before any
// command is submitted.
func New(cfg Config, filters *filter.Chain) *Engine {
	cfg.applyDefaults()
	if filters == nil {
		filters = filter.NewChain()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        cfg,
		state:      playback.StateIdle,
		clock:      playback.NewClock(),
		queue:      queue.New(),
		roster:     roster.New(),
		feed:       chat.NewFeed(cfg.ChatCapacity),
		hub:        broadcast.NewHub(cfg.SessionID, cfg.DeltaHistory, cfg.SubscriberBuffer),
		filters:    filters,
		pauseVotes: make(map[string]struct{}),
		nowFn:      time.Now,
		cmds:       make(chan command),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start launches the session goroutine.
func (e *Engine) Start() {
	e.emptySince = e.nowFn()
	go e.run()
}

// Done is closed when the session has shut down.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Close shuts the session down from outside, dropping all subscribers.
func (e *Engine) Close() {
	e.cancel()
}

func (e *Engine) run() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Str("session_id", e.cfg.SessionID).Msgf("session panicked: %v", r)
		}
		e.hub.Close()
		close(e.done)
	}()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			zlog.Info().Str("session_id", e.cfg.SessionID).Msg("session stopped")
			return
		case <-ticker.C:
			e.handleTick(e.nowFn())
		case cmd := <-e.cmds:
			now := e.nowFn()
			// Run pending clock work first so command results reflect
			// the true position, then the command itself.
			e.advanceClock(now)
			cmd.reply <- cmd.fn(now)
		}
		if e.stopping {
			zlog.Info().Str("session_id", e.cfg.SessionID).Msg("session closed by host")
			return
		}
	}
}

// exec submits fn to the session goroutine and waits for its result.
func (e *Engine) exec(ctx context.Context, fn func(now time.Time) error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case e.cmds <- cmd:
	case <-e.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "session command not submitted")
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-e.done:
		// The command may have completed just before shutdown.
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

func (e *Engine) handleTick(now time.Time) {
	e.advanceClock(now)

	if e.roster.Len() == 0 && !e.emptySince.IsZero() && now.Sub(e.emptySince) >= e.cfg.GraceWindow {
		zlog.Info().Str("session_id", e.cfg.SessionID).
			Dur("grace_window", e.cfg.GraceWindow).Msg("session empty past grace window, shutting down")
		e.stopping = true
	}
}

// advanceClock folds wall time into the playback clock and handles a
// track that has just run out.
func (e *Engine) advanceClock(now time.Time) {
	if e.clock.Tick(now) {
		e.finishCurrent(now, reasonFinished)
	}
}

// finishCurrent retires the current track and starts the next queued
// one, if any.
func (e *Engine) finishCurrent(now time.Time, reason string) {
	entry := e.current
	e.current = nil

	payload := delta.TrackPayload{
		Track:  trackInfo(entry),
		Clock:  delta.ClockInfo{ElapsedMs: e.clock.Elapsed().Milliseconds(), Playing: false},
		Reason: reason,
	}
	e.clock.Clear()
	e.state = playback.StateIdle
	e.clearPauseVotes()
	e.emit(delta.KindTrackFinished, payload)

	e.startNext(now)
}

// startNext pops the top-ranked entry and starts playing it.
func (e *Engine) startNext(now time.Time) {
	if e.queue.Len() == 0 {
		return
	}
	entry, err := e.queue.PopNext()
	if err != nil {
		return
	}
	e.current = entry
	e.clock.SetTrack(entry.Track, now)
	e.clock.Start(now)
	e.state = playback.StatePlaying

	zlog.Info().Str("session_id", e.cfg.SessionID).Str("track_id", entry.Track.ID).
		Str("title", entry.Track.Title).Msg("track started")
	e.emit(delta.KindTrackStarted, delta.TrackPayload{
		Track: trackInfo(entry),
		Clock: delta.ClockInfo{ElapsedMs: 0, Playing: true},
	})
	e.emit(delta.KindQueueChanged, e.queuePayload())
}

// emit assigns the next version and publishes the delta.
func (e *Engine) emit(kind delta.Kind, payload any) {
	e.version++
	e.hub.Publish(delta.Delta{Version: e.version, Kind: kind, Payload: payload})
	telemetry.DeltasPublished.WithLabelValues(string(kind)).Inc()
}

// Join adds a participant to the roster. The first joiner becomes
// host. Joining twice with the same ID is treated as a reconnect and
// returns the existing participant without a delta.
func (e *Engine) Join(ctx context.Context, participantID, displayName string) (party.Participant, error) {
	var joined party.Participant
	err := e.exec(ctx, func(now time.Time) error {
		p, err := e.roster.Join(participantID, displayName, now)
		if errors.Is(err, roster.ErrDuplicateParticipant) {
			if existing, ok := e.roster.Get(participantID); ok {
				joined = *existing
			}
			return nil
		}
		if err != nil {
			return err
		}
		joined = *p
		e.emptySince = time.Time{}
		zlog.Info().Str("session_id", e.cfg.SessionID).Str("participant_id", p.ID).
			Str("display_name", p.DisplayName).Str("role", string(p.Role)).Msg("participant joined")
		e.emit(delta.KindRosterChanged, e.rosterPayload())
		return nil
	})
	return joined, err
}

// Leave removes a participant, retracting all their votes. Departure
// of an unknown participant is a no-op. If the host leaves, hosting
// transfers to the longest-connected remaining participant.
func (e *Engine) Leave(ctx context.Context, participantID string) error {
	return e.exec(ctx, func(now time.Time) error {
		left, newHost, err := e.roster.Leave(participantID)
		if errors.Is(err, roster.ErrParticipantNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		delete(e.pauseVotes, participantID)
		if e.queue.RetractAll(participantID) {
			e.emit(delta.KindQueueChanged, e.queuePayload())
		}

		evt := zlog.Info().Str("session_id", e.cfg.SessionID).Str("participant_id", left.ID)
		if newHost != nil {
			evt = evt.Str("new_host_id", newHost.ID)
		}
		evt.Msg("participant left")
		e.emit(delta.KindRosterChanged, e.rosterPayload())

		if e.roster.Len() == 0 {
			e.emptySince = now
			e.clearPauseVotes()
		} else {
			e.maybePauseByMajority(now)
		}
		return nil
	})
}

// Enqueue adds a track request. A request for an already queued track
// folds into a vote for it; a request for the currently playing track
// succeeds silently. When the session is idle the new entry starts
// playing immediately.
func (e *Engine) Enqueue(ctx context.Context, participantID string, t track.Track) error {
	return e.exec(ctx, func(now time.Time) error {
		p, ok := e.roster.Get(participantID)
		if !ok {
			return ErrUnknownParticipant
		}
		if !t.Valid() {
			return errors.Wrapf(ErrInvalidTrack, "track %q", t.ID)
		}
		if e.current != nil && e.current.Track.ID == t.ID {
			return nil
		}

		if _, queued := e.queue.Get(t.ID); !queued {
			cand := filter.Candidate{
				Track:        t,
				Requester:    p,
				PendingCount: e.pendingCount(participantID),
			}
			if result := e.filters.Execute(ctx, cand); !result.Accepted {
				telemetry.RequestsRejected.WithLabelValues(result.Code).Inc()
				zlog.Debug().Str("session_id", e.cfg.SessionID).Str("participant_id", participantID).
					Str("track_id", t.ID).Str("code", result.Code).Msg("request rejected by filter")
				return errors.Wrap(ErrFilterRejected, result.Code)
			}
		}

		_, folded, changed := e.queue.Enqueue(t, participantID, now)
		if changed {
			zlog.Info().Str("session_id", e.cfg.SessionID).Str("participant_id", participantID).
				Str("track_id", t.ID).Bool("folded", folded).Msg("track requested")
			e.emit(delta.KindQueueChanged, e.queuePayload())
		}
		if e.state == playback.StateIdle {
			e.startNext(now)
		}
		return nil
	})
}

// Vote adds a participant's vote to a queued track. A repeat vote is a
// silent no-op; a vote for the currently playing track is a silent
// no-op; a vote for any other unknown track is rejected.
func (e *Engine) Vote(ctx context.Context, participantID, trackID string) error {
	return e.exec(ctx, func(now time.Time) error {
		if _, ok := e.roster.Get(participantID); !ok {
			return ErrUnknownParticipant
		}
		changed, err := e.queue.Vote(trackID, participantID)
		if errors.Is(err, queue.ErrTrackNotFound) {
			if e.current != nil && e.current.Track.ID == trackID {
				return nil
			}
			return errors.Wrapf(ErrUnknownTrack, "track %q", trackID)
		}
		if err != nil {
			return err
		}
		if changed {
			e.emit(delta.KindQueueChanged, e.queuePayload())
		}
		return nil
	})
}

// RetractVote removes a participant's vote from a queued track.
// Retracting a vote that does not exist is a no-op.
func (e *Engine) RetractVote(ctx context.Context, participantID, trackID string) error {
	return e.exec(ctx, func(now time.Time) error {
		if _, ok := e.roster.Get(participantID); !ok {
			return ErrUnknownParticipant
		}
		changed, err := e.queue.RetractVote(trackID, participantID)
		if err != nil {
			return nil
		}
		if changed {
			e.emit(delta.KindQueueChanged, e.queuePayload())
		}
		return nil
	})
}

// Skip ends the current track immediately and starts the next one.
// Host only. Skipping with nothing playing is a no-op.
func (e *Engine) Skip(ctx context.Context, participantID string) error {
	return e.exec(ctx, func(now time.Time) error {
		if err := e.requireHost(participantID); err != nil {
			return err
		}
		if e.current == nil {
			return nil
		}
		zlog.Info().Str("session_id", e.cfg.SessionID).Str("participant_id", participantID).
			Str("track_id", e.current.Track.ID).Msg("track skipped")
		e.finishCurrent(now, reasonSkipped)
		return nil
	})
}

// Pause freezes playback. The host pauses directly; a guest's pause
// counts as a vote, and playback pauses once a strict majority of the
// roster has voted. Pausing an already paused session is a no-op.
func (e *Engine) Pause(ctx context.Context, participantID string) error {
	return e.exec(ctx, func(now time.Time) error {
		p, ok := e.roster.Get(participantID)
		if !ok {
			return ErrUnknownParticipant
		}
		if e.current == nil {
			return ErrNoTrackPlaying
		}
		if e.state == playback.StatePaused {
			return nil
		}
		if p.IsHost() {
			e.pauseNow(now)
			return nil
		}
		e.pauseVotes[participantID] = struct{}{}
		e.maybePauseByMajority(now)
		return nil
	})
}

// Resume restarts paused playback. Host only.
func (e *Engine) Resume(ctx context.Context, participantID string) error {
	return e.exec(ctx, func(now time.Time) error {
		if err := e.requireHost(participantID); err != nil {
			return err
		}
		if e.current == nil {
			return ErrNoTrackPlaying
		}
		if e.state == playback.StatePlaying {
			return nil
		}
		e.clock.Start(now)
		e.state = playback.StatePlaying
		e.clearPauseVotes()
		e.emit(delta.KindPlaybackStateChanged, e.playbackPayload())
		return nil
	})
}

// Seek moves the playback position. Host only. Out-of-range offsets
// are clamped, never rejected.
func (e *Engine) Seek(ctx context.Context, participantID string, offset time.Duration) error {
	return e.exec(ctx, func(now time.Time) error {
		if err := e.requireHost(participantID); err != nil {
			return err
		}
		if e.current == nil {
			return ErrNoTrackPlaying
		}
		e.clock.Seek(offset)
		e.emit(delta.KindPlaybackStateChanged, e.playbackPayload())
		return nil
	})
}

// Chat appends a message to the session feed.
func (e *Engine) Chat(ctx context.Context, participantID, text string) error {
	return e.exec(ctx, func(now time.Time) error {
		p, ok := e.roster.Get(participantID)
		if !ok {
			return ErrUnknownParticipant
		}
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return ErrEmptyChatMessage
		}
		if utf8.RuneCountInString(trimmed) > e.cfg.ChatMaxRunes {
			return errors.Wrapf(ErrChatMessageTooLong, "limit %d runes", e.cfg.ChatMaxRunes)
		}
		msg, _ := e.feed.Append(p.ID, p.DisplayName, trimmed, now)
		e.emit(delta.KindChatAppended, delta.ChatPayload{Message: chatInfo(msg)})
		return nil
	})
}

// Subscribe attaches a delta stream observer. baseline is the last
// version the observer has applied, 0 for none; the stream opens with
// either the missed deltas or a full snapshot.
func (e *Engine) Subscribe(ctx context.Context, baseline uint64) (*broadcast.Subscription, error) {
	var sub *broadcast.Subscription
	err := e.exec(ctx, func(now time.Time) error {
		snap := delta.Delta{
			Version: e.version,
			Kind:    delta.KindFullSnapshot,
			Payload: e.snapshot(),
		}
		sub = e.hub.Subscribe(baseline, e.version, snap)
		return nil
	})
	return sub, err
}

// Unsubscribe detaches a delta stream observer.
func (e *Engine) Unsubscribe(subscriberID string) {
	e.hub.Unsubscribe(subscriberID)
}

// Snapshot returns the full session state at the current version.
func (e *Engine) Snapshot(ctx context.Context) (delta.Snapshot, error) {
	var snap delta.Snapshot
	err := e.exec(ctx, func(now time.Time) error {
		snap = e.snapshot()
		return nil
	})
	return snap, err
}

// CloseByHost shuts the session down at the host's request.
func (e *Engine) CloseByHost(ctx context.Context, participantID string) error {
	return e.exec(ctx, func(now time.Time) error {
		if err := e.requireHost(participantID); err != nil {
			return err
		}
		e.stopping = true
		return nil
	})
}

func (e *Engine) requireHost(participantID string) error {
	if _, ok := e.roster.Get(participantID); !ok {
		return ErrUnknownParticipant
	}
	if !e.roster.IsHost(participantID) {
		return ErrNotHost
	}
	return nil
}

func (e *Engine) pauseNow(now time.Time) {
	e.clock.Pause(now)
	e.state = playback.StatePaused
	e.clearPauseVotes()
	zlog.Info().Str("session_id", e.cfg.SessionID).Msg("playback paused")
	e.emit(delta.KindPlaybackStateChanged, e.playbackPayload())
}

// maybePauseByMajority pauses when a strict majority of the current
// roster has voted to pause. Called after votes arrive and after the
// roster shrinks.
func (e *Engine) maybePauseByMajority(now time.Time) {
	if e.state != playback.StatePlaying || len(e.pauseVotes) == 0 {
		return
	}
	if 2*len(e.pauseVotes) > e.roster.Len() {
		zlog.Info().Str("session_id", e.cfg.SessionID).
			Int("votes", len(e.pauseVotes)).Int("roster", e.roster.Len()).Msg("pause carried by majority")
		e.pauseNow(now)
	}
}

func (e *Engine) clearPauseVotes() {
	for id := range e.pauseVotes {
		delete(e.pauseVotes, id)
	}
}

func (e *Engine) pendingCount(participantID string) int {
	count := 0
	for _, entry := range e.queue.Ordering() {
		if entry.RequestedBy == participantID {
			count++
		}
	}
	return count
}

func (e *Engine) clockInfo() delta.ClockInfo {
	return delta.ClockInfo{
		ElapsedMs: e.clock.Elapsed().Milliseconds(),
		Playing:   e.clock.Playing(),
	}
}

func (e *Engine) playbackPayload() delta.PlaybackPayload {
	p := delta.PlaybackPayload{
		State: e.state.String(),
		Clock: e.clockInfo(),
	}
	if e.current != nil {
		info := trackInfo(e.current)
		p.Track = &info
	}
	return p
}

func (e *Engine) queuePayload() delta.QueuePayload {
	ordered := e.queue.Ordering()
	entries := make([]delta.QueueEntryInfo, 0, len(ordered))
	for _, entry := range ordered {
		entries = append(entries, delta.QueueEntryInfo{
			Track:        trackInfo(entry),
			Votes:        entry.VoteCount(),
			Voters:       entry.Voters(),
			InsertionSeq: entry.InsertionSeq,
		})
	}
	return delta.QueuePayload{Entries: entries}
}

func (e *Engine) rosterPayload() delta.RosterPayload {
	all := e.roster.All()
	participants := make([]delta.ParticipantInfo, 0, len(all))
	for _, p := range all {
		participants = append(participants, participantInfo(p))
	}
	payload := delta.RosterPayload{Participants: participants}
	if host, ok := e.roster.Host(); ok {
		payload.HostID = host.ID
	}
	return payload
}

func (e *Engine) snapshot() delta.Snapshot {
	snap := delta.Snapshot{
		SessionID:    e.cfg.SessionID,
		Version:      e.version,
		PartyName:    e.cfg.PartyName,
		Genre:        string(e.cfg.Genre),
		State:        e.state.String(),
		Clock:        e.clockInfo(),
		Queue:        e.queuePayload().Entries,
		Participants: e.rosterPayload().Participants,
	}
	if host, ok := e.roster.Host(); ok {
		snap.HostID = host.ID
	}
	if e.current != nil {
		info := trackInfo(e.current)
		snap.CurrentTrack = &info
	}
	msgs := e.feed.Messages()
	snap.Chat = make([]delta.ChatMessageInfo, 0, len(msgs))
	for _, m := range msgs {
		snap.Chat = append(snap.Chat, chatInfo(m))
	}
	return snap
}

func trackInfo(entry *queue.Entry) delta.TrackInfo {
	return delta.TrackInfo{
		TrackID:     entry.Track.ID,
		Title:       entry.Track.Title,
		Artist:      entry.Track.Artist,
		CoverRef:    entry.Track.CoverRef,
		DurationMs:  entry.Track.Duration.Milliseconds(),
		RequestedBy: entry.RequestedBy,
	}
}

func participantInfo(p *party.Participant) delta.ParticipantInfo {
	return delta.ParticipantInfo{
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		Role:          string(p.Role),
		ConnectedAt:   p.ConnectedAt,
	}
}

func chatInfo(m chat.Message) delta.ChatMessageInfo {
	return delta.ChatMessageInfo{
		ID:            m.ID,
		ParticipantID: m.ParticipantID,
		DisplayName:   m.DisplayName,
		Text:          m.Text,
		SentAt:        m.SentAt,
	}
}
