package pushbuf

import (
	"sync/atomic"
)

// Fence marks a point in the command stream. It signals once the GPU has
// executed everything submitted before it. Fences are reference counted: the
// creator, the sequencer queue, a non-empty work list and every Ref caller
// each hold a reference.
//
// Except for Ref and Unref, Fence methods require the sequencer lock.
type Fence struct {
	s        *Sequencer
	next     *Fence
	work     []workItem
	sequence uint32
	state    FenceState
	ref      int32
}

func newFence(s *Sequencer) *Fence {
	return &Fence{
		s:   s,
		ref: 1,
	}
}

// State returns the state of the fence.
func (f *Fence) State() FenceState {
	return f.state
}

// Sequence returns the sequence number assigned at emission, zero before.
func (f *Fence) Sequence() uint32 {
	return f.sequence
}

// PendingWork returns the number of work items waiting on the fence.
func (f *Fence) PendingWork() int {
	return len(f.work)
}

// Refs returns the current reference count.
func (f *Fence) Refs() int32 {
	return atomic.LoadInt32(&f.ref)
}

// Ref takes a reference on the fence and returns it.
func (f *Fence) Ref() *Fence {
	atomic.AddInt32(&f.ref, 1)
	return f
}

// Unref drops a reference. Dropping the last one deletes the fence, which
// requires the sequencer lock.
func (f *Fence) Unref() {
	switch n := atomic.AddInt32(&f.ref, -1); {
	case n == 0:
		f.s.del(f)
	case n < 0:
		panic("pushbuf: fence reference count underflow")
	}
}

// signalled reports whether the state is terminal.
func (f *Fence) signalled() bool {
	return f.state == FenceSignalled
}
