package pushbuf

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Stats are counters describing sequencer activity.
type Stats struct {
	// Emitted counts fences written into the push buffer.
	Emitted uint64
	// Signalled counts fences acknowledged by the GPU.
	Signalled uint64
	// Kicks counts push buffer submissions.
	Kicks uint64
	// Stalls counts waits that had to poll at least once.
	Stalls uint64
	// Timeouts counts waits that exhausted the spin budget.
	Timeouts uint64
	// WorkRun counts deferred work items that ran.
	WorkRun uint64
	// OrphanedWork counts work items run because their fence was deleted
	// before it signalled.
	OrphanedWork uint64
	// Destroyed counts deleted fences.
	Destroyed uint64
}

// Sequencer orders fences emitted into a PushBuffer and maps the sequence
// numbers acknowledged by the GPU back to pending work.
//
// The sequencer does not lock itself: callers Lock it around batches of
// operations, and every exported method panics when it is not held. Methods
// that write to the push buffer also need the submission lock, which must be
// taken first. Kicks issued directly on the PushBuffer lock the sequencer
// from the kick hook, so the sequencer lock must not be held around them; use
// Sequencer.Reserve instead when both locks are held.
type Sequencer struct {
	stats Stats

	mu   sync.Mutex
	held atomic.Bool

	push    *PushBuffer
	emitter Emitter
	updater Updater

	head    *Fence
	tail    *Fence
	current *Fence

	sequence uint32
	ack      uint32

	// inPush counts sequencer frames currently inside a push buffer call.
	// Only touched under the submission lock.
	inPush int

	workThreshold  int
	spinBudget     uint64
	yieldInterval  uint64
	fencesDisabled bool
	log            *slog.Logger

	flushDeadline time.Duration
	pollInterval  time.Duration
	flusher       *flusher
	poller        *poller
	closeOnce     sync.Once
	closed        atomic.Bool
}

// NewSequencer returns a Sequencer emitting fences into p with e and reading
// completions with u. The sequencer installs itself as p's kick hook.
func NewSequencer(p *PushBuffer, e Emitter, u Updater, opts ...SequencerOption) (*Sequencer, error) {
	if p == nil || e == nil || u == nil {
		return nil, errors.New("push buffer, emitter and updater are required")
	}
	if p.hook != nil {
		return nil, errors.New("push buffer already has a sequencer")
	}
	if n := e.FenceWords(); n <= 0 || n > p.margin {
		return nil, errors.Errorf("fence of %d words does not fit the %d word reserve margin", n, p.margin)
	}
	s := &Sequencer{
		push:          p,
		emitter:       e,
		updater:       u,
		sequence:      DefaultInitialSequence,
		ack:           DefaultInitialSequence - 1,
		workThreshold: DefaultWorkThreshold,
		spinBudget:    DefaultSpinBudget,
		yieldInterval: DefaultYieldInterval,
		log:           Logger(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.current = newFence(s)
	p.hook = s
	if s.flushDeadline > 0 {
		s.flusher = newFlusher(s, s.flushDeadline)
		go s.flusher.run()
	}
	if s.pollInterval > 0 {
		s.poller = newPoller(s, s.pollInterval)
		go s.poller.run()
	}
	return s, nil
}

// Lock takes the sequencer lock.
func (s *Sequencer) Lock() {
	s.mu.Lock()
	s.held.Store(true)
}

// Unlock releases the sequencer lock.
func (s *Sequencer) Unlock() {
	if !s.held.Load() {
		panic("pushbuf: unlock of unlocked sequencer")
	}
	s.held.Store(false)
	s.mu.Unlock()
}

func (s *Sequencer) assertLocked() {
	if !s.held.Load() {
		panic("pushbuf: sequencer lock not held")
	}
}

// PushBuffer returns the push buffer fences are emitted into.
func (s *Sequencer) PushBuffer() *PushBuffer {
	return s.push
}

// Stats returns a snapshot of the sequencer counters. It is safe for calling
// concurrently.
func (s *Sequencer) Stats() Stats {
	return Stats{
		Emitted:      atomic.LoadUint64(&s.stats.Emitted),
		Signalled:    atomic.LoadUint64(&s.stats.Signalled),
		Kicks:        s.push.Kicks(),
		Stalls:       atomic.LoadUint64(&s.stats.Stalls),
		Timeouts:     atomic.LoadUint64(&s.stats.Timeouts),
		WorkRun:      atomic.LoadUint64(&s.stats.WorkRun),
		OrphanedWork: atomic.LoadUint64(&s.stats.OrphanedWork),
		Destroyed:    atomic.LoadUint64(&s.stats.Destroyed),
	}
}

// Sequence returns the next sequence number to be assigned.
func (s *Sequencer) Sequence() uint32 {
	s.assertLocked()
	return s.sequence
}

// Acked returns the highest sequence acknowledged by the GPU.
func (s *Sequencer) Acked() uint32 {
	s.assertLocked()
	return s.ack
}

// NewFence returns an available fence holding one reference.
func (s *Sequencer) NewFence() *Fence {
	s.assertLocked()
	return newFence(s)
}

// Current returns the fence collecting work for the next emission. The
// returned fence is borrowed; Ref it to keep it past the lock. Current is nil
// after Cleanup.
func (s *Sequencer) Current() *Fence {
	s.assertLocked()
	return s.current
}

// Reserve reserves n words in the push buffer for a caller holding both
// locks. A kick caused by the reservation may emit the current fence.
func (s *Sequencer) Reserve(n int) error {
	s.assertLocked()
	s.push.assertHeld()
	if s.closed.Load() {
		return ErrClosed
	}
	s.notifyFlusher()
	return s.reserve(n)
}

func (s *Sequencer) reserve(n int) error {
	s.inPush++
	defer func() { s.inPush-- }()
	return s.push.Reserve(n)
}

// Emit writes f into the push buffer, assigning its sequence number and
// queueing it. f must be available; emitting a fence twice panics.
func (s *Sequencer) Emit(f *Fence) error {
	s.assertLocked()
	s.push.assertHeld()
	if f.state != FenceAvailable {
		panic(errors.Errorf("pushbuf: emit of %s fence %d", f.state, f.sequence))
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return s.emit(f)
}

func (s *Sequencer) emit(f *Fence) error {
	if f.state == FenceEmitting {
		panic("pushbuf: fence emitted twice")
	}
	if f.state >= FenceEmitted {
		return nil
	}
	n := s.emitter.FenceWords()
	if err := s.reserve(n); err != nil {
		return errors.Wrap(err, "failed to reserve fence")
	}
	// The kick hook emits the current fence when the reservation flushes.
	if f.state >= FenceEmitted {
		return nil
	}

	f.state = FenceEmitting
	// Queue reference, dropped when the fence signals.
	f.Ref()
	if s.tail != nil {
		s.tail.next = f
	} else {
		s.head = f
	}
	s.tail = f

	f.sequence = s.sequence
	s.sequence++
	s.inPush++
	s.emitter.EmitFence(s.push, f.sequence)
	s.inPush--

	f.state = FenceEmitted
	atomic.AddUint64(&s.stats.Emitted, 1)
	return nil
}

// Next retires the current fence. A current fence nobody else references is
// reused; otherwise it is emitted and replaced by a fresh one.
func (s *Sequencer) Next() error {
	s.assertLocked()
	s.push.assertHeld()
	return s.next()
}

func (s *Sequencer) next() error {
	c := s.current
	if c == nil {
		return ErrClosed
	}
	if c.state < FenceEmitting {
		if c.Refs() <= 1 {
			return nil
		}
		if err := s.emit(c); err != nil {
			return err
		}
	}
	s.current = newFence(s)
	c.Unref()
	return nil
}

// del is called when the last reference to f is dropped.
func (s *Sequencer) del(f *Fence) {
	s.assertLocked()
	if f.state == FenceEmitted || f.state == FenceFlushed {
		s.unlink(f)
	}
	if n := len(f.work); n > 0 {
		s.log.Warn("deleting fence with pending work",
			"sequence", f.sequence,
			"state", f.state.String(),
			"work", n,
		)
		work := f.work
		f.work = nil
		for _, fn := range work {
			fn()
		}
		atomic.AddUint64(&s.stats.OrphanedWork, uint64(n))
	}
	atomic.AddUint64(&s.stats.Destroyed, 1)
}

func (s *Sequencer) unlink(f *Fence) {
	if s.head == f {
		s.head = f.next
		if s.head == nil {
			s.tail = nil
		}
		f.next = nil
		return
	}
	it := s.head
	for it != nil && it.next != f {
		it = it.next
	}
	if it == nil {
		return
	}
	it.next = f.next
	if s.tail == f {
		s.tail = it
	}
	f.next = nil
}

func (s *Sequencer) preKick(p *PushBuffer) {
	if s.inPush == 0 {
		s.Lock()
		defer s.Unlock()
	}
	if s.current == nil {
		return
	}
	if err := s.next(); err != nil {
		s.log.Error("failed to emit fence before kick", "err", err)
	}
}

func (s *Sequencer) postKick(p *PushBuffer) {
	if s.inPush == 0 {
		s.Lock()
		defer s.Unlock()
	}
	s.update(true)
	s.log.Debug("push buffer kicked",
		"emitted", s.sequence-1,
		"ack", s.ack,
	)
}

// Cleanup waits for the current fence and drops it, running all work attached
// so far. The sequencer has no current fence afterwards.
func (s *Sequencer) Cleanup() error {
	s.assertLocked()
	s.push.assertHeld()
	if s.current == nil {
		return nil
	}
	c := s.current.Ref()
	err := s.Wait(c)
	c.Unref()
	s.current.Unref()
	s.current = nil
	return err
}

// Close stops the background flusher and poller and runs Cleanup. It must be
// called without either lock held. Afterwards Emit, Reserve, Wait and
// AttachWork on unsignalled fences return ErrClosed.
func (s *Sequencer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.flusher != nil {
			s.flusher.stop()
		}
		if s.poller != nil {
			s.poller.stop()
		}
		s.push.Acquire()
		s.Lock()
		err = s.Cleanup()
		s.closed.Store(true)
		s.Unlock()
		s.push.Release()
	})
	return err
}
