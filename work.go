package pushbuf

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// workItem is a callback deferred until a fence signals.
type workItem func()

// AttachWork runs fn once f has signalled. A nil or already signalled fence
// runs fn immediately. When more than the work threshold is pending on f, f
// is kicked to bound the backlog; a failure of that kick is returned and fn
// stays queued.
//
// Work runs with the sequencer lock held and must not lock it again. Both the
// submission and the sequencer lock must be held.
func (s *Sequencer) AttachWork(f *Fence, fn func()) error {
	if f == nil {
		fn()
		return nil
	}
	s.assertLocked()
	s.push.assertHeld()
	if f.signalled() {
		fn()
		atomic.AddUint64(&s.stats.WorkRun, 1)
		return nil
	}
	if s.closed.Load() {
		return ErrClosed
	}
	if len(f.work) == 0 {
		// The work list keeps the fence alive, and makes Next emit it
		// rather than reuse it.
		f.Ref()
	}
	f.work = append(f.work, fn)
	s.notifyFlusher()
	if len(f.work) > s.workThreshold {
		if err := s.kick(f); err != nil {
			return errors.Wrap(err, "failed to kick fence with pending work")
		}
	}
	return nil
}

// triggerWork runs and clears the work queued on f in attachment order.
func (s *Sequencer) triggerWork(f *Fence) {
	if len(f.work) == 0 {
		return
	}
	work := f.work
	f.work = nil
	for _, fn := range work {
		fn()
	}
	atomic.AddUint64(&s.stats.WorkRun, uint64(len(work)))
	f.Unref()
}

// Update polls the GPU for the latest acknowledged sequence, signals every
// fence up to it and runs their work.
func (s *Sequencer) Update() {
	s.assertLocked()
	s.update(false)
}

func (s *Sequencer) update(flushed bool) {
	seq := s.updater.FenceSequence()
	if s.fencesDisabled {
		seq = s.sequence - 1
	}
	if seqAfter(seq, s.ack) {
		s.ack = seq
		for s.head != nil && !seqAfter(s.head.sequence, s.ack) {
			f := s.head
			s.head = f.next
			f.next = nil
			f.state = FenceSignalled
			atomic.AddUint64(&s.stats.Signalled, 1)
			s.triggerWork(f)
			// Queue reference.
			f.Unref()
		}
		if s.head == nil {
			s.tail = nil
		}
	}
	if flushed {
		for f := s.head; f != nil; f = f.next {
			if f.state == FenceEmitted {
				f.state = FenceFlushed
			}
		}
	}
}
