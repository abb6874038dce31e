package broadcast

import (
	"github.com/soundhaus/partyline/internal/domain/delta"
)

// history is a fixed-capacity ring of the most recently published
// deltas, kept so reconnecting subscribers can catch up from a known
// version instead of forcing a full snapshot.
type history struct {
	buf  []delta.Delta
	head int
	size int
}

func newHistory(capacity int) *history {
	if capacity < 1 {
		capacity = 1
	}
	return &history{buf: make([]delta.Delta, capacity)}
}

func (h *history) append(d delta.Delta) {
	h.buf[h.head] = d
	h.head = (h.head + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

// oldest returns the lowest version still retained, or 0 when empty.
func (h *history) oldest() uint64 {
	if h.size == 0 {
		return 0
	}
	return h.buf[(h.head-h.size+len(h.buf))%len(h.buf)].Version
}

// since returns all retained deltas with version strictly greater than
// baseline, in version order. ok is false when the baseline has fallen
// out of the ring and the caller needs a full snapshot instead.
func (h *history) since(baseline uint64) (out []delta.Delta, ok bool) {
	if h.size == 0 {
		return nil, false
	}
	if baseline+1 < h.oldest() {
		return nil, false
	}
	for i := 0; i < h.size; i++ {
		d := h.buf[(h.head-h.size+i+len(h.buf))%len(h.buf)]
		if d.Version > baseline {
			out = append(out, d)
		}
	}
	return out, true
}
