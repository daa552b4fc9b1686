package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerPlacesBuffersBackToBack(t *testing.T) {
	s := NewScheduler(24000)
	start0 := 100 * time.Millisecond

	var starts, durs []time.Duration
	for _, n := range []int{2400, 4800, 1200} {
		start, dur := s.Schedule(start0, n)
		starts = append(starts, start)
		durs = append(durs, dur)
	}

	assert.Equal(t, start0, starts[0])
	assert.Equal(t, start0+durs[0], starts[1])
	assert.Equal(t, start0+durs[0]+durs[1], starts[2])
	assert.Equal(t, start0+durs[0]+durs[1]+durs[2], s.Next())
	assert.Equal(t, 100*time.Millisecond, durs[0])
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i], starts[i-1]+durs[i-1], "buffers must not overlap")
	}
}

func TestSchedulerNeverStartsInThePast(t *testing.T) {
	s := NewScheduler(24000)
	s.Schedule(0, 2400)

	start, _ := s.Schedule(time.Second, 2400)
	assert.Equal(t, time.Second, start)
}

func TestSchedulerResetMovesCursorToClock(t *testing.T) {
	s := NewScheduler(24000)
	s.Schedule(time.Second, 24000)
	s.Reset(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, s.Next())

	start, _ := s.Schedule(1500*time.Millisecond, 240)
	assert.Equal(t, 1500*time.Millisecond, start)
}

func TestSchedulerPeekDoesNotAdvance(t *testing.T) {
	s := NewScheduler(24000)
	start, dur := s.Peek(0, 2400)
	assert.Zero(t, s.Next())

	again, _ := s.Peek(0, 2400)
	assert.Equal(t, start, again, "an uncommitted slot is offered again")

	s.Commit(start, dur)
	assert.Equal(t, 100*time.Millisecond, s.Next())
	s.Commit(0, time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, s.Next(), "commit never moves the cursor back")
}
