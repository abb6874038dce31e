package playback

import (
	"time"

	"github.com/soundhaus/partyline/internal/domain/track"
)

// Clock tracks elapsed playback time for the current track. It is the
// single source of truth for "where are we in the song": clients render
// from broadcast snapshots of it, never from local free-running timers.
//
// The clock is advanced by explicit Tick calls carrying the caller's
// notion of now, so the owning engine can drive it from a real ticker
// while tests drive it with synthetic times. It is not internally
// synchronized: the owning session engine is its only mutator.
type Clock struct {
	track    *track.Track
	elapsed  time.Duration
	playing  bool
	lastTick time.Time
	finished bool
}

// NewClock creates a stopped clock with no track.
func NewClock() *Clock {
	return &Clock{}
}

// SetTrack makes t the current track and rewinds to zero. The finished
// guard resets with the new track instance.
func (c *Clock) SetTrack(t track.Track, now time.Time) {
	c.track = &t
	c.elapsed = 0
	c.playing = false
	c.lastTick = now
	c.finished = false
}

// Clear drops the current track and stops the clock.
func (c *Clock) Clear() {
	c.track = nil
	c.elapsed = 0
	c.playing = false
	c.finished = false
}

// Start begins advancing elapsed time at wall-clock rate. No-op if
// already playing or no track is set.
func (c *Clock) Start(now time.Time) {
	if c.track == nil || c.playing {
		return
	}
	c.playing = true
	c.lastTick = now
}

// Pause freezes elapsed time, folding in wall time accrued since the
// last tick. No-op if not playing.
func (c *Clock) Pause(now time.Time) {
	if !c.playing {
		return
	}
	c.advance(now)
	c.playing = false
}

// Seek moves the position to d. Out-of-range values are silently
// clamped to [0, duration]: UI scrubbing must never hard-fail.
func (c *Clock) Seek(d time.Duration) {
	if c.track == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	if d > c.track.Duration {
		d = c.track.Duration
	}
	c.elapsed = d
}

// Tick advances elapsed time by the real wall time since the previous
// tick and reports whether the current track just finished. The
// finished signal fires exactly once per track instance regardless of
// tick granularity.
func (c *Clock) Tick(now time.Time) (finished bool) {
	if c.track == nil || !c.playing {
		c.lastTick = now
		return false
	}
	c.advance(now)
	if !c.finished && c.elapsed >= c.track.Duration {
		c.finished = true
		return true
	}
	return false
}

func (c *Clock) advance(now time.Time) {
	if d := now.Sub(c.lastTick); d > 0 {
		c.elapsed += d
		// Never run past track end; the remainder belongs to the next track.
		if c.track != nil && c.elapsed > c.track.Duration {
			c.elapsed = c.track.Duration
		}
	}
	c.lastTick = now
}

// Track returns the current track, if any.
func (c *Clock) Track() (track.Track, bool) {
	if c.track == nil {
		return track.Track{}, false
	}
	return *c.track, true
}

// Elapsed returns the elapsed time into the current track.
func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}

// Playing reports whether the clock is advancing.
func (c *Clock) Playing() bool {
	return c.playing
}

// Remaining returns the time left on the current track.
func (c *Clock) Remaining() time.Duration {
	if c.track == nil {
		return 0
	}
	remaining := c.track.Duration - c.elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
