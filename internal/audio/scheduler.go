package audio

import "time"

// Scheduler places inbound buffers back to back on the playback clock so
// they never overlap and never start in the past.
type Scheduler struct {
	sampleRate int
	next       time.Duration
}

func NewScheduler(sampleRate int) *Scheduler {
	if sampleRate <= 0 {
		sampleRate = PlaybackSampleRate
	}
	return &Scheduler{sampleRate: sampleRate}
}

// Peek returns when a buffer of n samples would start given the device clock
// now. The cursor does not move until Commit.
func (s *Scheduler) Peek(now time.Duration, n int) (start, dur time.Duration) {
	start = now
	if s.next > start {
		start = s.next
	}
	return start, time.Duration(n) * time.Second / time.Duration(s.sampleRate)
}

// Commit advances the cursor past a buffer the device accepted.
func (s *Scheduler) Commit(start, dur time.Duration) {
	if end := start + dur; end > s.next {
		s.next = end
	}
}

// Schedule is Peek followed by Commit.
func (s *Scheduler) Schedule(now time.Duration, n int) (start, dur time.Duration) {
	start, dur = s.Peek(now, n)
	s.Commit(start, dur)
	return start, dur
}

// Next is the cursor: the earliest start time for the next buffer.
func (s *Scheduler) Next() time.Duration { return s.next }

// Reset moves the cursor to the device clock after queued audio was flushed,
// as on a barge-in or a new session. Audio already played stays behind it.
func (s *Scheduler) Reset(now time.Duration) { s.next = now }
