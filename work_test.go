package pushbuf

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestAttachWorkNilFence(t *testing.T) {
	s, _, _ := newTestSequencer(t, 64, false)
	ran := false
	// No locks are needed when there is no fence to wait for.
	require.NoError(t, s.AttachWork(nil, func() { ran = true }))
	require.True(t, ran)
}

func TestAttachWorkSignalledFence(t *testing.T) {
	s, _, hw := newTestSequencer(t, 64, false)
	lockBoth(s)
	defer unlockBoth(s)

	f := s.NewFence()
	require.NoError(t, s.Emit(f))
	hw.set(1)
	require.True(t, s.Signalled(f))

	ran := false
	require.NoError(t, s.AttachWork(f, func() { ran = true }))
	require.True(t, ran)
	require.Equal(t, 0, f.PendingWork())
	require.Equal(t, uint64(1), s.Stats().WorkRun)
}

func TestAttachWorkRunsOnceAfterSignal(t *testing.T) {
	s, _, hw := newTestSequencer(t, 64, false)
	lockBoth(s)
	defer unlockBoth(s)

	f := s.NewFence()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, s.AttachWork(f, func() {
			require.True(t, s.ack >= f.sequence)
			order = append(order, i)
		}))
	}
	require.Equal(t, 5, f.PendingWork())
	require.Equal(t, int32(2), f.Refs())

	require.NoError(t, s.Emit(f))
	s.Update()
	require.Empty(t, order)

	hw.set(1)
	s.Update()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
	require.Equal(t, 0, f.PendingWork())
	// The work list and the queue let go of the fence.
	require.Equal(t, int32(1), f.Refs())

	hw.set(1)
	s.Update()
	require.True(t, s.Signalled(f))
	require.Len(t, order, 5)
	require.Equal(t, uint64(5), s.Stats().WorkRun)
}

func TestAttachWorkBackpressure(t *testing.T) {
	s, k, _ := newTestSequencer(t, 64, false)
	lockBoth(s)
	defer unlockBoth(s)

	c := s.Current()
	c.Ref()
	for i := 0; i < DefaultWorkThreshold; i++ {
		require.NoError(t, s.AttachWork(c, func() {}))
		require.Equal(t, FenceAvailable, c.State())
	}
	require.Len(t, k.kicks, 0)

	require.NoError(t, s.AttachWork(c, func() {}))
	require.NotEqual(t, FenceAvailable, c.State())
	require.Equal(t, FenceFlushed, c.State())
	require.Len(t, k.kicks, 1)
	require.False(t, s.Current() == c)
	c.Unref()
}

func TestAttachWorkThresholdOption(t *testing.T) {
	s, k, _ := newTestSequencer(t, 64, true, WithWorkThreshold(2))
	lockBoth(s)
	defer unlockBoth(s)

	c := s.Current()
	ran := 0
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AttachWork(c, func() { ran++ }))
	}
	require.Len(t, k.kicks, 1)
	require.Equal(t, 3, ran)
}

func TestAttachWorkKickFailure(t *testing.T) {
	s, k, _ := newTestSequencer(t, 64, true, WithWorkThreshold(1))
	lockBoth(s)
	defer unlockBoth(s)

	kickErr := errors.New("kick failed")
	k.err = kickErr

	f := s.Current().Ref()
	ran := 0
	require.NoError(t, s.AttachWork(f, func() { ran++ }))
	err := s.AttachWork(f, func() { ran++ })
	require.Error(t, err)
	require.Equal(t, kickErr, errors.Cause(err))
	require.Equal(t, 2, f.PendingWork())
	require.Equal(t, 0, ran)

	k.err = nil
	require.NoError(t, s.Wait(f))
	require.Equal(t, 2, ran)
	f.Unref()
}
