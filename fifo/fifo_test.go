package fifo

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	pushbuf "github.com/hodgesds/pushbuf-go"
)

func decodeAll(t *testing.T, words []uint32) []Method {
	var methods []Method
	require.NoError(t, Decode(words, func(m Method) error {
		methods = append(methods, m)
		return nil
	}))
	return methods
}

func TestHeaders(t *testing.T) {
	require.Equal(t, uint32(0x20040004), IncHeader(0, SemaphoreA, 4))
	require.Equal(t, uint32(0x60022010), NonIncHeader(1, 0x40, 2))
	require.Equal(t, uint32(0xa0034008), OnceHeader(2, 0x20, 3))
	require.Equal(t, uint32(0x80052040), ImmdHeader(1, 0x100, 5))
}

func TestHeaderInvalid(t *testing.T) {
	require.Panics(t, func() { IncHeader(8, SemaphoreA, 1) })
	require.Panics(t, func() { IncHeader(-1, SemaphoreA, 1) })
	require.Panics(t, func() { IncHeader(0, 0x11, 1) })
	require.Panics(t, func() { IncHeader(0, 0x8000, 1) })
	require.Panics(t, func() { ImmdHeader(0, SemaphoreA, 0x2000) })
}

func TestDecode(t *testing.T) {
	words := []uint32{
		IncHeader(0, SemaphoreA, 2), 1, 2,
		0,
		NonIncHeader(1, 0x40, 2), 3, 4,
		OnceHeader(2, 0x20, 3), 5, 6, 7,
		ImmdHeader(3, 0x100, 8),
	}
	require.Equal(t, []Method{
		{Subchannel: 0, Method: SemaphoreA, Data: 1},
		{Subchannel: 0, Method: SemaphoreB, Data: 2},
		{Subchannel: 1, Method: 0x40, Data: 3},
		{Subchannel: 1, Method: 0x40, Data: 4},
		{Subchannel: 2, Method: 0x20, Data: 5},
		{Subchannel: 2, Method: 0x24, Data: 6},
		{Subchannel: 2, Method: 0x24, Data: 7},
		{Subchannel: 3, Method: 0x100, Data: 8},
	}, decodeAll(t, words))
}

func TestDecodeTruncated(t *testing.T) {
	err := Decode([]uint32{IncHeader(0, SemaphoreA, 4), 1, 2}, func(Method) error { return nil })
	require.Error(t, err)
	require.Equal(t, errTruncated, errors.Cause(err))
}

func TestDecodeUnknownPacket(t *testing.T) {
	err := Decode([]uint32{0x40010004, 1}, func(Method) error { return nil })
	require.Error(t, err)
}

func TestDecodeCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := Decode([]uint32{IncHeader(0, SemaphoreA, 4), 1, 2, 3, 4}, func(Method) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	require.Equal(t, stop, err)
	require.Equal(t, 2, calls)
}

func TestSemaphoreEmitter(t *testing.T) {
	var submitted []uint32
	p, err := pushbuf.NewPushBuffer(32, pushbuf.KickerFunc(func(words []uint32) error {
		submitted = append(submitted, words...)
		return nil
	}))
	require.NoError(t, err)

	e := SemaphoreEmitter{Address: 0x1_0000_2000, Subchannel: 1}
	require.Equal(t, 5, e.FenceWords())

	p.Acquire()
	require.NoError(t, p.Reserve(10))
	e.EmitFence(p, 7)
	WaitSequence(p, 0, 0x3000, 9)
	require.NoError(t, p.Done())

	require.Len(t, submitted, 10)
	require.Equal(t, []Method{
		{Subchannel: 1, Method: SemaphoreA, Data: 0x1},
		{Subchannel: 1, Method: SemaphoreB, Data: 0x2000},
		{Subchannel: 1, Method: SemaphoreC, Data: 7},
		{Subchannel: 1, Method: SemaphoreD, Data: SemaphoreRelease | SemaphoreReleaseSize4},
		{Subchannel: 0, Method: SemaphoreA, Data: 0},
		{Subchannel: 0, Method: SemaphoreB, Data: 0x3000},
		{Subchannel: 0, Method: SemaphoreC, Data: 9},
		{Subchannel: 0, Method: SemaphoreD, Data: SemaphoreAcquireGEQ},
	}, decodeAll(t, submitted))
}
