// Package simgpu is a software GPU channel. It accepts push buffer
// submissions, decodes their FIFO methods and executes channel semaphore
// operations, which is enough to drive fences without hardware.
package simgpu

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/hodgesds/pushbuf-go/fifo"
)

// DefaultFenceAddress is the GPU virtual address of the fence semaphore when
// none is configured.
const DefaultFenceAddress uint64 = 0x100000

type opKind uint8

const (
	opRelease opKind = iota
	opAcquire
)

type op struct {
	kind    opKind
	addr    uint64
	payload uint32
}

// semaphore latches the SEMAPHOREA..C methods of one subchannel until
// SEMAPHORED triggers them.
type semaphore struct {
	addrHi  uint32
	addrLo  uint32
	payload uint32
}

// GPU is a simulated GPU channel. It implements pushbuf.Kicker and
// pushbuf.Updater and is safe for concurrent use.
type GPU struct {
	mu        sync.Mutex
	mem       map[uint64]uint32
	sema      [8]semaphore
	pending   []op
	fenceAddr uint64
	manual    bool
	stalled   bool
	kickErr   error
	kicks     int
	words     int
}

// Option configures a GPU.
type Option func(*GPU)

// WithFenceAddress sets the address of the fence semaphore.
func WithFenceAddress(addr uint64) Option {
	return func(g *GPU) {
		g.fenceAddr = addr
	}
}

// WithManualRetire makes the GPU queue submitted work until Retire is
// called instead of executing it during Kick.
func WithManualRetire() Option {
	return func(g *GPU) {
		g.manual = true
	}
}

// New returns a GPU.
func New(opts ...Option) *GPU {
	g := &GPU{
		mem:       map[uint64]uint32{},
		fenceAddr: DefaultFenceAddress,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Emitter returns a fence emitter releasing to the GPU's fence semaphore.
func (g *GPU) Emitter() fifo.SemaphoreEmitter {
	return fifo.SemaphoreEmitter{Address: g.fenceAddr}
}

// Kick implements pushbuf.Kicker.
func (g *GPU) Kick(words []uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.kickErr != nil {
		return g.kickErr
	}
	var ops []op
	err := fifo.Decode(words, func(m fifo.Method) error {
		s := &g.sema[m.Subchannel]
		switch m.Method {
		case fifo.SemaphoreA:
			s.addrHi = m.Data & 0xff
		case fifo.SemaphoreB:
			s.addrLo = m.Data
		case fifo.SemaphoreC:
			s.payload = m.Data
		case fifo.SemaphoreD:
			o := op{
				addr:    uint64(s.addrHi)<<32 | uint64(s.addrLo),
				payload: s.payload,
			}
			switch m.Data & fifo.SemaphoreOperationMask {
			case fifo.SemaphoreRelease:
				o.kind = opRelease
			case fifo.SemaphoreAcquireGEQ:
				o.kind = opAcquire
			default:
				return errors.Errorf("unsupported semaphore operation %#x", m.Data)
			}
			ops = append(ops, o)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "invalid push buffer")
	}
	g.kicks++
	g.words += len(words)
	g.pending = append(g.pending, ops...)
	if !g.manual {
		g.retire(len(g.pending))
	}
	return nil
}

// FenceSequence implements pushbuf.Updater.
func (g *GPU) FenceSequence() uint32 {
	return g.Read(g.fenceAddr)
}

// Read returns the 32 bit value at addr.
func (g *GPU) Read(addr uint64) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mem[addr]
}

// Write stores v at addr, as another engine or the CPU would.
func (g *GPU) Write(addr uint64, v uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mem[addr] = v
}

// Retire executes up to n pending semaphore operations and returns how many
// ran. An acquire that is not yet satisfied blocks everything behind it.
func (g *GPU) Retire(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.retire(n)
}

// RetireAll executes every pending operation it can.
func (g *GPU) RetireAll() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.retire(len(g.pending))
}

func (g *GPU) retire(n int) int {
	if g.stalled {
		return 0
	}
	done := 0
	for done < n && done < len(g.pending) {
		o := g.pending[done]
		if o.kind == opAcquire && int32(g.mem[o.addr]-o.payload) < 0 {
			break
		}
		if o.kind == opRelease {
			g.mem[o.addr] = o.payload
		}
		done++
	}
	g.pending = g.pending[done:]
	return done
}

// SetManualRetire switches between queueing submitted work until Retire and
// executing it during Kick. Switching manual retirement off executes
// everything already pending.
func (g *GPU) SetManualRetire(manual bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.manual = manual
	if !manual {
		g.retire(len(g.pending))
	}
}

// Pending returns the number of queued semaphore operations.
func (g *GPU) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// SetStalled stops or resumes execution, simulating a hung channel.
func (g *GPU) SetStalled(stalled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stalled = stalled
}

// FailKicks makes every following Kick fail with err. A nil err restores
// normal submission.
func (g *GPU) FailKicks(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.kickErr = err
}

// Kicks returns the number of accepted submissions.
func (g *GPU) Kicks() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.kicks
}

// Words returns the number of command words accepted.
func (g *GPU) Words() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.words
}
