package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTasksFireOnInterval(t *testing.T) {
	s := New()
	var runs atomic.Int64
	s.Register("counter", 20*time.Millisecond, func(runID string) {
		assert.NotEmpty(t, runID)
		runs.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(110 * time.Millisecond)
	cancel()
	s.Wait()

	assert.GreaterOrEqual(t, runs.Load(), int64(3))
}

func TestNoOverlappingRuns(t *testing.T) {
	s := New()
	var started atomic.Int64
	release := make(chan struct{})
	s.Register("slow", 10*time.Millisecond, func(runID string) {
		started.Add(1)
		<-release
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	// Many ticks elapse while the first run blocks; none of them may start
	// a second invocation.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), started.Load())

	close(release)
	cancel()
	s.Wait()
}

func TestTriggerRespectsGuard(t *testing.T) {
	s := New()
	release := make(chan struct{})
	done := make(chan struct{})
	s.Register("guarded", time.Hour, func(runID string) {
		close(done)
		<-release
	})

	go s.Trigger("guarded")
	<-done

	// Second fire while the first holds the slot must be refused.
	assert.False(t, s.Trigger("guarded"))
	close(release)

	assert.False(t, s.Trigger("missing"))
}

func TestRegisterValidation(t *testing.T) {
	s := New()
	s.Register("once", time.Minute, func(string) {})

	require.Panics(t, func() { s.Register("once", time.Minute, func(string) {}) })
	require.Panics(t, func() { s.Register("bad", 0, func(string) {}) })
}

func TestPanicReleasesSlot(t *testing.T) {
	s := New()
	var runs atomic.Int64
	s.Register("flaky", time.Hour, func(runID string) {
		runs.Add(1)
		panic("boom")
	})

	assert.True(t, s.Trigger("flaky"))
	assert.True(t, s.Trigger("flaky"), "slot must be free after a panic")
	assert.Equal(t, int64(2), runs.Load())
}
