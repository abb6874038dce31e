package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundhaus/partyline/internal/app/broadcast"
	"github.com/soundhaus/partyline/internal/domain/delta"
	"github.com/soundhaus/partyline/internal/domain/party"
	"github.com/soundhaus/partyline/internal/domain/track"
)

// fakeClock feeds the engine synthetic time so playback progression is
// driven by the test instead of the wall clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	e := New(Config{
		SessionID: "session-1",
		PartyName: "Friday Night",
		Genre:     party.GenreHouse,
		// Ticker must never fire during the test, commands drive time.
		TickInterval: time.Hour,
		GraceWindow:  time.Hour,
	}, nil)
	e.nowFn = clk.Now
	e.Start()
	t.Cleanup(e.Close)
	return e, clk
}

func mkTrack(id string, d time.Duration) track.Track {
	return track.Track{ID: id, Title: "Title " + id, Artist: "Artist", Duration: d}
}

func drainDeltas(sub *broadcast.Subscription) []delta.Delta {
	var out []delta.Delta
	for {
		select {
		case d, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, d)
		default:
			return out
		}
	}
}

func kinds(deltas []delta.Delta) []delta.Kind {
	out := make([]delta.Kind, 0, len(deltas))
	for _, d := range deltas {
		out = append(out, d.Kind)
	}
	return out
}

func TestFirstJoinerBecomesHost(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	host, err := e.Join(ctx, "p-host", "alice")
	require.NoError(t, err)
	assert.Equal(t, party.RoleHost, host.Role)

	guest, err := e.Join(ctx, "p-guest", "bob")
	require.NoError(t, err)
	assert.Equal(t, party.RoleGuest, guest.Role)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p-host", snap.HostID)
	assert.Equal(t, uint64(2), snap.Version) // one roster delta per join
}

func TestRejoinIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Join(ctx, "p1", "alice")
	require.NoError(t, err)

	again, err := e.Join(ctx, "p1", "alice")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version) // rejoin emits no delta
}

func TestEnqueueStartsPlaybackWhenIdle(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "p1", "alice")
	require.NoError(t, err)

	sub, err := e.Subscribe(ctx, 0)
	require.NoError(t, err)
	drainDeltas(sub)

	require.NoError(t, e.Enqueue(ctx, "p1", mkTrack("t1", 3*time.Minute)))

	got := drainDeltas(sub)
	require.Equal(t, []delta.Kind{
		delta.KindQueueChanged,
		delta.KindTrackStarted,
		delta.KindQueueChanged,
	}, kinds(got))

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "playing", snap.State)
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, "t1", snap.CurrentTrack.TrackID)
	assert.Empty(t, snap.Queue)
	assert.True(t, snap.Clock.Playing)
}

func TestVoteRankingAndLeaveRetraction(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "host", "alice")
	require.NoError(t, err)
	_, err = e.Join(ctx, "guest1", "bob")
	require.NoError(t, err)
	_, err = e.Join(ctx, "guest2", "carol")
	require.NoError(t, err)

	// first request starts playing and leaves the queue
	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("t0", 10*time.Minute)))
	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("tA", 3*time.Minute)))
	require.NoError(t, e.Enqueue(ctx, "guest1", mkTrack("tB", 3*time.Minute)))
	require.NoError(t, e.Vote(ctx, "guest2", "tB"))

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Queue, 2)
	assert.Equal(t, "tB", snap.Queue[0].Track.TrackID) // 2 votes beats 1
	assert.Equal(t, "tA", snap.Queue[1].Track.TrackID)

	sub, err := e.Subscribe(ctx, snap.Version)
	require.NoError(t, err)

	require.NoError(t, e.Leave(ctx, "guest1"))

	got := drainDeltas(sub)
	require.Equal(t, []delta.Kind{
		delta.KindQueueChanged,
		delta.KindRosterChanged,
	}, kinds(got))

	// tie on votes, earlier insertion wins
	snap, err = e.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Queue, 2)
	assert.Equal(t, "tA", snap.Queue[0].Track.TrackID)
	assert.Equal(t, "tB", snap.Queue[1].Track.TrackID)
}

func TestDuplicateEnqueueFoldsIntoVote(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "host", "alice")
	require.NoError(t, err)
	_, err = e.Join(ctx, "guest", "bob")
	require.NoError(t, err)

	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("t0", 10*time.Minute)))
	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("tA", 3*time.Minute)))
	require.NoError(t, e.Enqueue(ctx, "guest", mkTrack("tA", 3*time.Minute)))

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, 2, snap.Queue[0].Votes)
	assert.ElementsMatch(t, []string{"host", "guest"}, snap.Queue[0].Voters)
}

func TestVoteEdgeCases(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "host", "alice")
	require.NoError(t, err)

	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("t0", 10*time.Minute)))
	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("tA", 3*time.Minute)))

	before, err := e.Snapshot(ctx)
	require.NoError(t, err)

	// repeat vote by requester changes nothing
	require.NoError(t, e.Vote(ctx, "host", "tA"))
	// vote for the currently playing track is a silent no-op
	require.NoError(t, e.Vote(ctx, "host", "t0"))
	// retracting a vote that was never cast is a no-op
	require.NoError(t, e.RetractVote(ctx, "host", "t9"))

	err = e.Vote(ctx, "host", "no-such-track")
	assert.ErrorIs(t, err, ErrUnknownTrack)

	err = e.Vote(ctx, "stranger", "tA")
	assert.ErrorIs(t, err, ErrUnknownParticipant)

	after, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
}

func TestSkipIsHostOnly(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "host", "alice")
	require.NoError(t, err)
	_, err = e.Join(ctx, "guest", "bob")
	require.NoError(t, err)

	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("t0", 10*time.Minute)))
	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("t1", 3*time.Minute)))

	err = e.Skip(ctx, "guest")
	assert.ErrorIs(t, err, ErrNotHost)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	sub, err := e.Subscribe(ctx, snap.Version)
	require.NoError(t, err)

	require.NoError(t, e.Skip(ctx, "host"))

	got := drainDeltas(sub)
	require.Equal(t, []delta.Kind{
		delta.KindTrackFinished,
		delta.KindTrackStarted,
		delta.KindQueueChanged,
	}, kinds(got))
	payload, ok := got[0].Payload.(delta.TrackPayload)
	require.True(t, ok)
	assert.Equal(t, "skipped", payload.Reason)
	assert.Equal(t, "t0", payload.Track.TrackID)

	snap, err = e.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, "t1", snap.CurrentTrack.TrackID)
}

func TestSkipWithNothingPlayingIsNoop(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "host", "alice")
	require.NoError(t, err)

	before, err := e.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Skip(ctx, "host"))
	after, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
}

func TestNaturalFinishAdvancesQueue(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "host", "alice")
	require.NoError(t, err)

	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("t0", 2*time.Minute)))
	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("t1", 3*time.Minute)))

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	sub, err := e.Subscribe(ctx, snap.Version)
	require.NoError(t, err)

	clk.Advance(2*time.Minute + time.Second)

	snap, err = e.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, "t1", snap.CurrentTrack.TrackID)

	got := drainDeltas(sub)
	require.Equal(t, []delta.Kind{
		delta.KindTrackFinished,
		delta.KindTrackStarted,
		delta.KindQueueChanged,
	}, kinds(got))
	payload, ok := got[0].Payload.(delta.TrackPayload)
	require.True(t, ok)
	assert.Equal(t, "finished", payload.Reason)

	// finish fires exactly once per track instance
	snap2, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, snap2.Version)
	assert.Empty(t, drainDeltas(sub))
}

func TestFinishWithEmptyQueueGoesIdle(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "host", "alice")
	require.NoError(t, err)
	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("t0", time.Minute)))

	clk.Advance(time.Minute + time.Second)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", snap.State)
	assert.Nil(t, snap.CurrentTrack)
	assert.False(t, snap.Clock.Playing)
}

func TestPauseByHostAndMajority(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "host", "alice")
	require.NoError(t, err)
	_, err = e.Join(ctx, "guest1", "bob")
	require.NoError(t, err)
	_, err = e.Join(ctx, "guest2", "carol")
	require.NoError(t, err)

	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("t0", 10*time.Minute)))

	// one guest vote out of three participants is not a majority
	require.NoError(t, e.Pause(ctx, "guest1"))
	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "playing", snap.State)

	// second guest vote carries it
	require.NoError(t, e.Pause(ctx, "guest2"))
	snap, err = e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "paused", snap.State)
	assert.False(t, snap.Clock.Playing)

	// resume is host-only
	err = e.Resume(ctx, "guest1")
	assert.ErrorIs(t, err, ErrNotHost)

	require.NoError(t, e.Resume(ctx, "host"))
	snap, err = e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "playing", snap.State)

	// host pauses directly
	require.NoError(t, e.Pause(ctx, "host"))
	snap, err = e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "paused", snap.State)
}

func TestPauseWhileIdleRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "host", "alice")
	require.NoError(t, err)

	assert.ErrorIs(t, e.Pause(ctx, "host"), ErrNoTrackPlaying)
	assert.ErrorIs(t, e.Resume(ctx, "host"), ErrNoTrackPlaying)
	assert.ErrorIs(t, e.Seek(ctx, "host", time.Second), ErrNoTrackPlaying)
}

func TestSeekClampsSilently(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "host", "alice")
	require.NoError(t, err)
	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("t0", 3*time.Minute)))

	require.NoError(t, e.Seek(ctx, "host", time.Hour))
	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, (3 * time.Minute).Milliseconds(), snap.Clock.ElapsedMs)

	require.NoError(t, e.Seek(ctx, "host", -time.Minute))
	snap, err = e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Clock.ElapsedMs)
}

func TestChat(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "p1", "alice")
	require.NoError(t, err)

	sub, err := e.Subscribe(ctx, 0)
	require.NoError(t, err)
	drainDeltas(sub)

	require.NoError(t, e.Chat(ctx, "p1", "  hello room  "))

	got := drainDeltas(sub)
	require.Len(t, got, 1)
	assert.Equal(t, delta.KindChatAppended, got[0].Kind)
	payload, ok := got[0].Payload.(delta.ChatPayload)
	require.True(t, ok)
	assert.Equal(t, "hello room", payload.Message.Text)
	assert.Equal(t, "alice", payload.Message.DisplayName)

	assert.ErrorIs(t, e.Chat(ctx, "p1", "   "), ErrEmptyChatMessage)
	assert.ErrorIs(t, e.Chat(ctx, "ghost", "hi"), ErrUnknownParticipant)
}

func TestLateJoinerSnapshotMatchesVersion(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "host", "alice")
	require.NoError(t, err)
	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("t0", 10*time.Minute)))
	require.NoError(t, e.Chat(ctx, "host", "first!"))

	sub, err := e.Subscribe(ctx, 0)
	require.NoError(t, err)

	got := drainDeltas(sub)
	require.Len(t, got, 1)
	require.Equal(t, delta.KindFullSnapshot, got[0].Kind)
	snap, ok := got[0].Payload.(delta.Snapshot)
	require.True(t, ok)
	assert.Equal(t, got[0].Version, snap.Version)

	live, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, live.Version, snap.Version)
}

func TestVersionsHaveNoGaps(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	sub, err := e.Subscribe(ctx, 0)
	require.NoError(t, err)
	drainDeltas(sub)

	_, err = e.Join(ctx, "host", "alice")
	require.NoError(t, err)
	_, err = e.Join(ctx, "guest", "bob")
	require.NoError(t, err)
	require.NoError(t, e.Enqueue(ctx, "host", mkTrack("t0", 10*time.Minute)))
	require.NoError(t, e.Enqueue(ctx, "guest", mkTrack("t1", 3*time.Minute)))
	require.NoError(t, e.Vote(ctx, "host", "t1"))
	require.NoError(t, e.Chat(ctx, "guest", "banger"))
	require.NoError(t, e.Skip(ctx, "host"))
	require.NoError(t, e.Leave(ctx, "guest"))

	got := drainDeltas(sub)
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.Equal(t, got[i-1].Version+1, got[i].Version)
	}
}

func TestCloseByHost(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Join(ctx, "host", "alice")
	require.NoError(t, err)
	_, err = e.Join(ctx, "guest", "bob")
	require.NoError(t, err)

	assert.ErrorIs(t, e.CloseByHost(ctx, "guest"), ErrNotHost)

	sub, err := e.Subscribe(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, e.CloseByHost(ctx, "host"))

	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not shut down")
	}

	// subscriber channel closes on shutdown
	drainDeltas(sub)
	_, open := <-sub.C
	assert.False(t, open)

	_, err = e.Join(ctx, "late", "dave")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestEmptySessionExpiresAfterGraceWindow(t *testing.T) {
	e := New(Config{
		SessionID:    "session-grace",
		PartyName:    "Ghost Town",
		Genre:        party.GenreTechno,
		TickInterval: 10 * time.Millisecond,
		GraceWindow:  30 * time.Millisecond,
	}, nil)
	e.Start()
	defer e.Close()

	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("empty session did not expire")
	}
}

func TestJoinCancelsGraceWindow(t *testing.T) {
	e := New(Config{
		SessionID:    "session-grace-2",
		PartyName:    "Ghost Town",
		Genre:        party.GenreTechno,
		TickInterval: 10 * time.Millisecond,
		GraceWindow:  200 * time.Millisecond,
	}, nil)
	e.Start()
	defer e.Close()

	_, err := e.Join(context.Background(), "p1", "alice")
	require.NoError(t, err)

	select {
	case <-e.Done():
		t.Fatal("occupied session expired")
	case <-time.After(400 * time.Millisecond):
	}
}
