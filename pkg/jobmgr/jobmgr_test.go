package jobmgr

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRejectsDuplicateName(t *testing.T) {
	m := New()
	defer m.StopAll()

	block := make(chan struct{})
	require.NoError(t, m.Start("work", func(ctx context.Context) { <-block }))
	assert.Error(t, m.Start("work", func(ctx context.Context) {}))

	close(block)
}

func TestJobsRemoveThemselves(t *testing.T) {
	m := New()

	require.NoError(t, m.Start("quick", func(ctx context.Context) {}))
	assert.Eventually(t, func() bool { return len(m.List()) == 0 },
		time.Second, 5*time.Millisecond)
}

func TestStopCancelsContext(t *testing.T) {
	m := New()

	cancelled := make(chan struct{})
	require.NoError(t, m.Start("work", func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	}))

	require.NoError(t, m.Stop("work"))
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled")
	}

	assert.Error(t, m.Stop("work"), "stopping twice must fail")
}

func TestScheduleFiresAfterDelay(t *testing.T) {
	m := New()
	defer m.StopAll()

	var fired atomic.Bool
	m.Schedule("later", 20*time.Millisecond, func() { fired.Store(true) })

	assert.False(t, fired.Load())
	assert.Eventually(t, fired.Load, time.Second, 5*time.Millisecond)
}

func TestScheduleStopPreventsFiring(t *testing.T) {
	m := New()

	var fired atomic.Bool
	m.Schedule("later", 50*time.Millisecond, func() { fired.Store(true) })
	require.NoError(t, m.Stop("later"))

	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestScheduleReplacesPending(t *testing.T) {
	m := New()
	defer m.StopAll()

	var first, second atomic.Bool
	m.Schedule("job", 50*time.Millisecond, func() { first.Store(true) })
	m.Schedule("job", 20*time.Millisecond, func() { second.Store(true) })

	assert.Eventually(t, second.Load, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.False(t, first.Load(), "replaced job must not fire")
}
