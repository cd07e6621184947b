package pushbuf

import (
	"github.com/pkg/errors"
)

var (
	// ErrWaitTimeout is returned by Wait when the spin budget runs out
	// before the fence signals.
	ErrWaitTimeout = errors.New("fence wait timed out")
	// ErrReserveTooLarge is returned when a reservation can never fit in
	// the push buffer.
	ErrReserveTooLarge = errors.New("reservation exceeds push buffer capacity")
	// ErrPushBufferFull is returned when a reservation made during a kick
	// does not fit in the remaining margin.
	ErrPushBufferFull = errors.New("push buffer full")
	// ErrClosed is returned by operations on a closed sequencer, and by
	// Next once Cleanup dropped the current fence.
	ErrClosed = errors.New("sequencer closed")
)

// Kicker hands command words to the kernel. It is the submission primitive
// behind PushBuffer.Kick; the slice is only valid for the duration of the
// call.
type Kicker interface {
	Kick(words []uint32) error
}

// KickerFunc adapts a function to the Kicker interface.
type KickerFunc func(words []uint32) error

// Kick implements Kicker.
func (f KickerFunc) Kick(words []uint32) error { return f(words) }

// Emitter encodes a fence release into the push buffer. FenceWords must not
// exceed the push buffer's reserve margin, the space for it has already been
// reserved when EmitFence is called.
type Emitter interface {
	FenceWords() int
	EmitFence(p *PushBuffer, seq uint32)
}

// Updater reads back the latest sequence the GPU has released.
type Updater interface {
	FenceSequence() uint32
}

// UpdaterFunc adapts a function to the Updater interface.
type UpdaterFunc func() uint32

// FenceSequence implements Updater.
func (f UpdaterFunc) FenceSequence() uint32 { return f() }

// kickHook is notified around every push buffer submission.
type kickHook interface {
	// preKick runs before the words are handed to the kernel, while the
	// reserve margin is still available.
	preKick(p *PushBuffer)
	// postKick runs after the kernel accepted the words.
	postKick(p *PushBuffer)
}

// seqAfter reports whether a comes strictly after b in wrapping sequence
// space.
func seqAfter(a, b uint32) bool {
	return int32(a-b) > 0
}
