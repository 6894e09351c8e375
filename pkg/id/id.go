package id

import "sync/atomic"

// Sequence is a process-local monotonic counter. The zero value is ready to
// use and its first Next returns 1.
type Sequence struct {
	last atomic.Uint64
}

// Next returns a value strictly greater than every value previously returned
// or restored.
func (s *Sequence) Next() uint64 {
	return s.last.Add(1)
}

// Last returns the most recently issued value, 0 if none.
func (s *Sequence) Last() uint64 {
	return s.last.Load()
}

// Restore raises the floor to v. Lower values are ignored so a stale restore
// can never move the sequence backwards.
func (s *Sequence) Restore(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur {
			return
		}
		if s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}
