package decoder

import (
	"iter"
	"log/slog"
)

// Handle addresses a Set in an Arena.
type Handle int

// NoHandle is the zero reference.
const NoHandle Handle = -1

// Arena owns the decoder sets of a stream, one per program. Released
// slots are reused. It is not safe for concurrent use.
type Arena struct {
	sets []*Set
	free []Handle
	last Handle
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{last: NoHandle}
}

// New creates a set for program and returns its handle.
func (a *Arena) New(program int, cfg Config, sink Sink, log *slog.Logger) Handle {
	if log == nil {
		log = slog.Default()
	}
	s := NewSet(cfg, sink, log.With("program", program))
	s.Program = program
	s.Prev = a.last

	var h Handle
	if n := len(a.free); n > 0 {
		h = a.free[n-1]
		a.free = a.free[:n-1]
		a.sets[h] = s
	} else {
		h = Handle(len(a.sets))
		a.sets = append(a.sets, s)
	}
	a.last = h
	return h
}

// Get returns the set for h, or nil if h was released or never issued.
func (a *Arena) Get(h Handle) *Set {
	if h < 0 || int(h) >= len(a.sets) {
		return nil
	}
	return a.sets[h]
}

// Find returns the handle of the set decoding program.
func (a *Arena) Find(program int) (Handle, bool) {
	for h, s := range a.All() {
		if s.Program == program {
			return h, true
		}
	}
	return NoHandle, false
}

// Release flushes the set for h and frees its slot.
func (a *Arena) Release(h Handle) {
	s := a.Get(h)
	if s == nil {
		return
	}
	s.Flush()
	a.sets[h] = nil
	a.free = append(a.free, h)
	for _, o := range a.sets {
		if o != nil && o.Prev == h {
			o.Prev = s.Prev
		}
	}
	if a.last == h {
		a.last = s.Prev
	}
}

// Len returns the number of live sets.
func (a *Arena) Len() int {
	return len(a.sets) - len(a.free)
}

// All iterates over live sets in handle order.
func (a *Arena) All() iter.Seq2[Handle, *Set] {
	return func(yield func(Handle, *Set) bool) {
		for i, s := range a.sets {
			if s == nil {
				continue
			}
			if !yield(Handle(i), s) {
				return
			}
		}
	}
}

// Flush flushes every live set.
func (a *Arena) Flush() {
	for _, s := range a.All() {
		s.Flush()
	}
}
