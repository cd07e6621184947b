package pushbuf

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Signalled reports whether f has signalled, polling the GPU once if f has
// been emitted. It never blocks.
func (s *Sequencer) Signalled(f *Fence) bool {
	s.assertLocked()
	return s.signalled(f)
}

func (s *Sequencer) signalled(f *Fence) bool {
	if f.state == FenceSignalled {
		return true
	}
	if f.state >= FenceEmitted {
		s.update(false)
	}
	return f.state == FenceSignalled
}

// kick makes sure f has been emitted and handed to the kernel.
func (s *Sequencer) kick(f *Fence) error {
	if f.state == FenceEmitting {
		panic("pushbuf: kick of a fence being emitted")
	}
	current := f == s.current

	if f.state < FenceEmitted {
		n := s.emitter.FenceWords()
		if s.push.Space() < n+s.push.margin {
			// A flush here runs the kick hook, which takes the sequencer
			// lock itself.
			s.Unlock()
			err := s.push.Reserve(n)
			s.Lock()
			if err != nil {
				return err
			}
		}
		if err := s.emit(f); err != nil {
			return err
		}
	}

	if f.state < FenceFlushed {
		s.inPush++
		err := s.push.Kick()
		s.inPush--
		if err != nil {
			return err
		}
	}

	if current {
		if err := s.next(); err != nil && err != ErrClosed {
			return err
		}
	}
	s.update(false)
	return nil
}

// Wait kicks f to the kernel and polls until it signals. Polling yields the
// processor every yield interval and gives up with ErrWaitTimeout once the
// spin budget is spent. Both locks must be held; the sequencer lock may be
// dropped and retaken while f is emitted.
func (s *Sequencer) Wait(f *Fence) error {
	s.assertLocked()
	s.push.assertHeld()
	if f.signalled() {
		return nil
	}
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.kick(f); err != nil {
		return errors.Wrap(err, "failed to kick fence")
	}

	var (
		spins uint64
		start time.Time
	)
	for spins < s.spinBudget {
		if s.signalled(f) {
			if spins > 0 {
				s.log.Debug("stalled waiting for fence",
					"sequence", f.sequence,
					"spins", spins,
					"duration", time.Since(start),
				)
			}
			return nil
		}
		if spins == 0 {
			atomic.AddUint64(&s.stats.Stalls, 1)
			start = time.Now()
		}
		spins++
		if spins%s.yieldInterval == 0 {
			runtime.Gosched()
		}
	}

	atomic.AddUint64(&s.stats.Timeouts, 1)
	s.log.Warn("fence wait timed out",
		"sequence", f.sequence,
		"ack", s.ack,
		"next", s.sequence,
	)
	return errors.Wrapf(ErrWaitTimeout, "fence %d (ack %d, next %d)", f.sequence, s.ack, s.sequence)
}
