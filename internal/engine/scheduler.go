package engine

import "time"

// Scheduler runs at most one tick per frame. A tick that wants another frame requests it
// again before returning; nothing runs unless requested.
type Scheduler struct {
	next func(now time.Time)
}

// Request schedules tick for the next frame, replacing any earlier request.
func (s *Scheduler) Request(tick func(now time.Time)) {
	s.next = tick
}

// Cancel drops the pending request.
func (s *Scheduler) Cancel() {
	s.next = nil
}

// Pending reports whether a tick is scheduled.
func (s *Scheduler) Pending() bool {
	return s.next != nil
}

// Step runs the scheduled tick, if any. Returns false when nothing was scheduled.
func (s *Scheduler) Step(now time.Time) bool {
	tick := s.next
	if tick == nil {
		return false
	}
	s.next = nil
	tick(now)
	return true
}
