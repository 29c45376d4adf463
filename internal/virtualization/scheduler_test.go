package virtualization

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerCoalescesBursts(t *testing.T) {
	s := NewScheduler(20 * time.Millisecond)
	defer s.Stop()

	var ran int32
	var last int32
	for i := 1; i <= 10; i++ {
		n := int32(i)
		s.Schedule(func() {
			atomic.AddInt32(&ran, 1)
			atomic.StoreInt32(&last, n)
		})
	}

	time.Sleep(100 * time.Millisecond)

	// A burst within one frame runs once, with the newest request.
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
	assert.Equal(t, int32(10), atomic.LoadInt32(&last))
}

func TestSchedulerRunsAgainAfterFiring(t *testing.T) {
	s := NewScheduler(10 * time.Millisecond)
	defer s.Stop()

	var ran int32
	s.Schedule(func() { atomic.AddInt32(&ran, 1) })
	time.Sleep(50 * time.Millisecond)
	s.Schedule(func() { atomic.AddInt32(&ran, 1) })
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(2), atomic.LoadInt32(&ran))
}

func TestSchedulerStopCancelsPending(t *testing.T) {
	s := NewScheduler(20 * time.Millisecond)

	var ran int32
	s.Schedule(func() { atomic.AddInt32(&ran, 1) })
	s.Stop()
	s.Schedule(func() { atomic.AddInt32(&ran, 1) })

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestEngineScrollUpdatesCoalesce(t *testing.T) {
	e := NewEngine(40, 0, 5)
	defer e.Close()

	e.SetTotalItems(1000)
	e.SetContainerHeight(400)

	// Rapid scrolling settles on the newest offset.
	for offset := 0; offset <= 4000; offset += 400 {
		e.SetScrollTop(offset)
	}
	time.Sleep(100 * time.Millisecond)

	w := e.Window()
	assert.Equal(t, 95, w.StartIndex)
	assert.Equal(t, 115, w.EndIndex)
}

func TestEngineResizeRecomputesImmediately(t *testing.T) {
	e := NewEngine(40, 0, 5)
	defer e.Close()

	e.SetTotalItems(100)
	e.SetContainerHeight(400)

	w := e.Window()
	assert.Equal(t, 20, w.EndIndex)
	assert.Equal(t, 4000, w.TotalHeight)
}
