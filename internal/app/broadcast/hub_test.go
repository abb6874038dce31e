package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundhaus/partyline/internal/domain/delta"
)

func mkDelta(version uint64) delta.Delta {
	return delta.Delta{Version: version, Kind: delta.KindQueueChanged}
}

func snapshotAt(version uint64) delta.Delta {
	return delta.Delta{Version: version, Kind: delta.KindFullSnapshot, Payload: delta.Snapshot{Version: version}}
}

func drain(c <-chan delta.Delta) []delta.Delta {
	var out []delta.Delta
	for {
		select {
		case d, ok := <-c:
			if !ok {
				return out
			}
			out = append(out, d)
		default:
			return out
		}
	}
}

func TestSubscribeBaselineZeroGetsSnapshot(t *testing.T) {
	hub := NewHub("s1", 8, 4)
	defer hub.Close()

	sub := hub.Subscribe(0, 5, snapshotAt(5))

	got := drain(sub.C)
	require.Len(t, got, 1)
	assert.Equal(t, delta.KindFullSnapshot, got[0].Kind)
	assert.Equal(t, uint64(5), got[0].Version)
}

func TestSubscribeCatchUpFromHistory(t *testing.T) {
	hub := NewHub("s1", 8, 4)
	defer hub.Close()

	for v := uint64(1); v <= 5; v++ {
		hub.Publish(mkDelta(v))
	}

	sub := hub.Subscribe(3, 5, snapshotAt(5))

	got := drain(sub.C)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(4), got[0].Version)
	assert.Equal(t, uint64(5), got[1].Version)
}

func TestSubscribeGapFallsBackToSnapshot(t *testing.T) {
	hub := NewHub("s1", 3, 4)
	defer hub.Close()

	for v := uint64(1); v <= 10; v++ {
		hub.Publish(mkDelta(v))
	}

	// versions 1..7 have fallen out of the ring
	sub := hub.Subscribe(2, 10, snapshotAt(10))

	got := drain(sub.C)
	require.Len(t, got, 1)
	assert.Equal(t, delta.KindFullSnapshot, got[0].Kind)
}

func TestSubscribeCurrentBaselineGetsNothing(t *testing.T) {
	hub := NewHub("s1", 8, 4)
	defer hub.Close()

	for v := uint64(1); v <= 3; v++ {
		hub.Publish(mkDelta(v))
	}

	sub := hub.Subscribe(3, 3, snapshotAt(3))
	assert.Empty(t, drain(sub.C))

	hub.Publish(mkDelta(4))
	got := drain(sub.C)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(4), got[0].Version)
}

func TestPublishFanout(t *testing.T) {
	hub := NewHub("s1", 8, 4)
	defer hub.Close()

	a := hub.Subscribe(0, 0, snapshotAt(0))
	b := hub.Subscribe(0, 0, snapshotAt(0))
	drain(a.C)
	drain(b.C)

	hub.Publish(mkDelta(1))
	hub.Publish(mkDelta(2))

	for _, sub := range []*Subscription{a, b} {
		got := drain(sub.C)
		require.Len(t, got, 2)
		assert.Equal(t, uint64(1), got[0].Version)
		assert.Equal(t, uint64(2), got[1].Version)
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	hub := NewHub("s1", 16, 2)
	defer hub.Close()

	slow := hub.Subscribe(0, 0, snapshotAt(0))
	require.Equal(t, 1, hub.SubscriberCount())

	// snapshot plus buffer fills the channel, next publish overflows
	for v := uint64(1); v <= 4; v++ {
		hub.Publish(mkDelta(v))
	}

	assert.Equal(t, 0, hub.SubscriberCount())

	// channel closed after delivering what fit
	got := drain(slow.C)
	assert.NotEmpty(t, got)
	_, open := <-slow.C
	assert.False(t, open)
}

func TestUnsubscribe(t *testing.T) {
	hub := NewHub("s1", 8, 4)
	defer hub.Close()

	sub := hub.Subscribe(0, 0, snapshotAt(0))
	require.Equal(t, 1, hub.SubscriberCount())

	hub.Unsubscribe(sub.ID)
	assert.Equal(t, 0, hub.SubscriberCount())

	drain(sub.C)
	_, open := <-sub.C
	assert.False(t, open)

	hub.Unsubscribe(sub.ID) // second detach is a no-op
}

func TestCloseDropsSubscribers(t *testing.T) {
	hub := NewHub("s1", 8, 4)

	sub := hub.Subscribe(0, 0, snapshotAt(0))
	hub.Close()

	assert.Equal(t, 0, hub.SubscriberCount())
	drain(sub.C)
	_, open := <-sub.C
	assert.False(t, open)

	hub.Publish(mkDelta(1)) // discarded after close

	late := hub.Subscribe(0, 0, snapshotAt(0))
	_, open = <-late.C
	assert.False(t, open)
}
