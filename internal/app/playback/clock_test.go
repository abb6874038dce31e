package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/soundhaus/partyline/internal/domain/track"
)

func shortTrack(duration time.Duration) track.Track {
	return track.Track{ID: "t1", Title: "Test", Artist: "Artist", Duration: duration}
}

func TestClock_StartPause(t *testing.T) {
	c := NewClock()
	base := time.Now()

	c.SetTrack(shortTrack(time.Minute), base)
	assert.False(t, c.Playing())

	c.Start(base)
	assert.True(t, c.Playing())

	// Start while playing is a no-op.
	c.Start(base.Add(time.Second))
	assert.True(t, c.Playing())

	c.Tick(base.Add(10 * time.Second))
	assert.Equal(t, 10*time.Second, c.Elapsed())

	c.Pause(base.Add(15 * time.Second))
	assert.False(t, c.Playing())
	assert.Equal(t, 15*time.Second, c.Elapsed())

	// Ticks while paused do not advance.
	c.Tick(base.Add(30 * time.Second))
	assert.Equal(t, 15*time.Second, c.Elapsed())

	// Resume: time spent paused never counts.
	c.Start(base.Add(40 * time.Second))
	c.Tick(base.Add(45 * time.Second))
	assert.Equal(t, 20*time.Second, c.Elapsed())
}

func TestClock_SeekClamps(t *testing.T) {
	tests := []struct {
		name     string
		seek     time.Duration
		expected time.Duration
	}{
		{name: "within range", seek: 30 * time.Second, expected: 30 * time.Second},
		{name: "negative clamped to zero", seek: -5 * time.Second, expected: 0},
		{name: "past end clamped to duration", seek: 2 * time.Minute, expected: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClock()
			c.SetTrack(shortTrack(time.Minute), time.Now())
			c.Seek(tt.seek)
			assert.Equal(t, tt.expected, c.Elapsed())
		})
	}
}

func TestClock_TrackFinishedFiresOnce(t *testing.T) {
	// Same single-fire outcome regardless of tick granularity.
	granularities := []time.Duration{
		time.Millisecond,
		250 * time.Millisecond,
		time.Second,
	}

	for _, g := range granularities {
		t.Run(g.String(), func(t *testing.T) {
			c := NewClock()
			base := time.Now()
			c.SetTrack(shortTrack(3*time.Second), base)
			c.Start(base)

			fired := 0
			now := base
			for i := 0; i < int(5*time.Second/g)+1; i++ {
				now = now.Add(g)
				if c.Tick(now) {
					fired++
				}
			}
			assert.Equal(t, 1, fired)
			assert.Equal(t, 3*time.Second, c.Elapsed(), "clock never free-runs past track end")
		})
	}
}

func TestClock_BoundaryCrossingSingleTick(t *testing.T) {
	// Clock at durationMs-1; one 2ms tick crosses the boundary once.
	c := NewClock()
	base := time.Now()
	duration := 271 * time.Second
	c.SetTrack(shortTrack(duration), base)
	c.Start(base)

	c.Seek(duration - time.Millisecond)
	c.Tick(base) // resync lastTick without advancing

	assert.True(t, c.Tick(base.Add(2*time.Millisecond)))
	assert.False(t, c.Tick(base.Add(4*time.Millisecond)))
	assert.Equal(t, duration, c.Elapsed())
}

func TestClock_FinishedGuardResetsWithNewTrack(t *testing.T) {
	c := NewClock()
	base := time.Now()

	c.SetTrack(shortTrack(time.Second), base)
	c.Start(base)
	assert.True(t, c.Tick(base.Add(2*time.Second)))

	next := base.Add(2 * time.Second)
	c.SetTrack(shortTrack(time.Second), next)
	c.Start(next)
	assert.False(t, c.Tick(next.Add(500*time.Millisecond)))
	assert.True(t, c.Tick(next.Add(1500*time.Millisecond)))
}

func TestClock_NoTrack(t *testing.T) {
	c := NewClock()

	assert.False(t, c.Tick(time.Now()))
	assert.Equal(t, time.Duration(0), c.Elapsed())
	assert.Equal(t, time.Duration(0), c.Remaining())

	_, ok := c.Track()
	assert.False(t, ok)
}
