package fifo

import (
	pushbuf "github.com/hodgesds/pushbuf-go"
)

// SemaphoreEmitter emits fences as channel semaphore releases of the fence
// sequence to a GPU virtual address. It implements pushbuf.Emitter.
type SemaphoreEmitter struct {
	// Address is the GPU virtual address of the fence semaphore.
	Address uint64
	// Subchannel the semaphore methods are sent on.
	Subchannel int
}

var _ pushbuf.Emitter = SemaphoreEmitter{}

// FenceWords implements pushbuf.Emitter.
func (e SemaphoreEmitter) FenceWords() int {
	return 5
}

// EmitFence implements pushbuf.Emitter.
func (e SemaphoreEmitter) EmitFence(p *pushbuf.PushBuffer, seq uint32) {
	p.Write(
		IncHeader(e.Subchannel, SemaphoreA, 4),
		uint32(e.Address>>32),
		uint32(e.Address),
		seq,
		SemaphoreRelease|SemaphoreReleaseSize4,
	)
}

// WaitSequence writes a semaphore acquire that stalls the channel until the
// semaphore at addr reaches seq. The caller must have reserved 5 words.
func WaitSequence(p *pushbuf.PushBuffer, subc int, addr uint64, seq uint32) {
	p.Write(
		IncHeader(subc, SemaphoreA, 4),
		uint32(addr>>32),
		uint32(addr),
		seq,
		SemaphoreAcquireGEQ,
	)
}
