// Package acquisition models the fuel gauge side of the battery log: a fixed
// ring of log slots that the gauge overwrites once full, read out in one go.
package acquisition

import (
	"context"
	"sync"

	"batlog-go/batlog"
	"batlog-go/errcode"
)

// Source yields the current contents of a gauge's log ring.
type Source interface {
	Serial() string
	ReadLog(ctx context.Context) ([]batlog.Entry, error)
}

// Ring is an in-memory gauge log ring. Slot positions run 0..Cap()-1 and are
// reused after the ring wraps.
type Ring struct {
	serial string

	mu    sync.Mutex
	slots [][]byte
	wr    uint32 // monotonic write count
}

// NewRing creates an empty ring with size slots.
func NewRing(serial string, size int) *Ring {
	if size < 1 {
		panic("acquisition: ring size must be >= 1")
	}
	return &Ring{serial: serial, slots: make([][]byte, size)}
}

func (r *Ring) Serial() string { return r.serial }

func (r *Ring) Cap() int { return len(r.slots) }

// Len is the number of filled slots.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.len()
}

func (r *Ring) len() int {
	if int(r.wr) < len(r.slots) {
		return int(r.wr)
	}
	return len(r.slots)
}

// Push stores a copy of payload in the next slot, overwriting the oldest
// once the ring is full. It returns the slot position written.
func (r *Ring) Push(payload []byte) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos := r.wr % uint32(len(r.slots))
	r.slots[pos] = append([]byte(nil), payload...)
	r.wr++
	return pos
}

// Entries returns the filled slots oldest first.
func (r *Ring) Entries() []batlog.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.len()
	out := make([]batlog.Entry, 0, n)
	size := uint32(len(r.slots))
	start := r.wr - uint32(n)
	for i := uint32(0); i < uint32(n); i++ {
		pos := (start + i) % size
		out = append(out, batlog.Entry{
			RingPosition: pos,
			Payload:      append([]byte(nil), r.slots[pos]...),
		})
	}
	return out
}

// ReadLog implements Source. An empty ring reads as NotFound.
func (r *Ring) ReadLog(ctx context.Context) ([]batlog.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errcode.Wrap(errcode.Timeout, "acquisition.read", err)
	}
	e := r.Entries()
	if len(e) == 0 {
		return nil, errcode.New(errcode.NotFound, "acquisition.read", "gauge log empty")
	}
	return e, nil
}

// Clear empties the ring, as after a gauge reset.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		r.slots[i] = nil
	}
	r.wr = 0
}
