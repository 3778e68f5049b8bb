package loop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRunsInOrder(t *testing.T) {
	l := New()
	defer l.Stop()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, l.Dispatch(func() { got = append(got, i) }))
	}
	require.NoError(t, l.DispatchWait(func() {}))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestDispatchWaitBlocksUntilRun(t *testing.T) {
	l := New()
	defer l.Stop()

	ran := false
	require.NoError(t, l.DispatchWait(func() { ran = true }))
	assert.True(t, ran)
}

func TestStopDrainsQueuedTasks(t *testing.T) {
	l := New()

	var count atomic.Int64
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Dispatch(func() { count.Add(1) }))
	}
	l.Stop()

	assert.Equal(t, int64(50), count.Load())
}

func TestDispatchAfterStop(t *testing.T) {
	l := New()
	l.Stop()

	err := l.Dispatch(func() { t.Fatal("task ran on stopped loop") })
	assert.ErrorIs(t, err, ErrStopped)

	err = l.DispatchWait(func() {})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestStopIsIdempotent(t *testing.T) {
	l := New()
	l.Stop()
	l.Stop()
}

func TestPanickingTaskDoesNotKillLoop(t *testing.T) {
	l := New()
	defer l.Stop()

	_ = l.Dispatch(func() { panic("boom") })

	done := make(chan struct{})
	require.NoError(t, l.Dispatch(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not survive a panicking task")
	}
}
