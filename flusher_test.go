package pushbuf

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFlushDeadline(t *testing.T) {
	s, _, _ := newTestSequencer(t, 64, true, WithFlushDeadline(5*time.Millisecond))

	var ran atomic.Bool
	lockBoth(s)
	require.NoError(t, s.AttachWork(s.Current(), func() { ran.Store(true) }))
	unlockBoth(s)

	require.Eventually(t, ran.Load, time.Second, time.Millisecond)
	require.NoError(t, s.Close())
	require.True(t, s.PushBuffer().Kicks() >= 1)
}

func TestFlushDeadlineIdle(t *testing.T) {
	s, k, _ := newTestSequencer(t, 64, true, WithFlushDeadline(time.Millisecond))

	// Arm the deadline with nothing to flush.
	lockBoth(s)
	require.NoError(t, s.Reserve(1))
	unlockBoth(s)

	time.Sleep(10 * time.Millisecond)
	lockBoth(s)
	require.Len(t, k.kicks, 0)
	unlockBoth(s)
	require.NoError(t, s.Close())
}

func TestFlusherStop(t *testing.T) {
	s, _, _ := newTestSequencer(t, 64, true, WithFlushDeadline(time.Hour))
	require.NotNil(t, s.flusher)
	require.NoError(t, s.Close())

	select {
	case <-s.flusher.exited:
	default:
		t.Fatal("flusher still running after Close")
	}
	// Close is idempotent.
	require.NoError(t, s.Close())
}

func TestPollInterval(t *testing.T) {
	s, k, hw := newTestSequencer(t, 64, false, WithPollInterval(time.Millisecond))

	var ran atomic.Bool
	lockBoth(s)
	f := s.Current().Ref()
	require.NoError(t, s.AttachWork(f, func() { ran.Store(true) }))
	require.NoError(t, s.Emit(f))
	s.Unlock()
	require.NoError(t, s.PushBuffer().Done())

	require.False(t, ran.Load())
	hw.set(f.Sequence())
	require.Eventually(t, ran.Load, time.Second, time.Millisecond)

	s.Lock()
	require.Equal(t, FenceSignalled, f.State())
	f.Unref()
	s.Unlock()

	// Let Cleanup complete its fence.
	s.PushBuffer().Acquire()
	k.execute = true
	s.PushBuffer().Release()
	require.NoError(t, s.Close())

	select {
	case <-s.poller.exited:
	default:
		t.Fatal("poller still running after Close")
	}
}
