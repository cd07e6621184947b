package pushbuf

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// PushBufferOption is an option for configuring a PushBuffer.
type PushBufferOption func(*PushBuffer) error

// WithReserveMargin sets the number of words every reservation keeps free for
// a fence release.
func WithReserveMargin(words int) PushBufferOption {
	return func(p *PushBuffer) error {
		if words < 0 {
			return errors.Errorf("invalid reserve margin %d", words)
		}
		p.margin = words
		return nil
	}
}

// WithLockTimeout sets how long Acquire waits before panicking.
func WithLockTimeout(d time.Duration) PushBufferOption {
	return func(p *PushBuffer) error {
		if d <= 0 {
			return errors.Errorf("invalid lock timeout %v", d)
		}
		p.lockTimeout = d
		return nil
	}
}

// SequencerOption is an option for configuring a Sequencer.
type SequencerOption func(*Sequencer) error

// WithWorkThreshold sets the number of pending work items after which a
// fence is kicked.
func WithWorkThreshold(n int) SequencerOption {
	return func(s *Sequencer) error {
		if n <= 0 {
			return errors.Errorf("invalid work threshold %d", n)
		}
		s.workThreshold = n
		return nil
	}
}

// WithSpinBudget sets the number of polls Wait performs before timing out.
func WithSpinBudget(n uint64) SequencerOption {
	return func(s *Sequencer) error {
		if n == 0 {
			return errors.New("spin budget must be positive")
		}
		s.spinBudget = n
		return nil
	}
}

// WithYieldInterval sets how many polls Wait performs between yields.
func WithYieldInterval(n int) SequencerOption {
	return func(s *Sequencer) error {
		if n <= 0 {
			return errors.Errorf("invalid yield interval %d", n)
		}
		s.yieldInterval = uint64(n)
		return nil
	}
}

// WithInitialSequence sets the first sequence number handed out. The
// acknowledged sequence starts one below it.
func WithInitialSequence(seq uint32) SequencerOption {
	return func(s *Sequencer) error {
		s.sequence = seq
		s.ack = seq - 1
		return nil
	}
}

// WithLogger sets the logger used by the sequencer, overriding the package
// logger.
func WithLogger(l *slog.Logger) SequencerOption {
	return func(s *Sequencer) error {
		if l == nil {
			l = newNopLogger()
		}
		s.log = l
		return nil
	}
}

// WithFencesDisabled makes every emitted fence complete as soon as it is
// polled. It is meant for running without hardware.
func WithFencesDisabled() SequencerOption {
	return func(s *Sequencer) error {
		s.fencesDisabled = true
		return nil
	}
}

// WithFlushDeadline is used to emit and kick the current fence when work has
// been pending for d.
func WithFlushDeadline(d time.Duration) SequencerOption {
	return func(s *Sequencer) error {
		if d <= 0 {
			return errors.Errorf("invalid flush deadline %v", d)
		}
		s.flushDeadline = d
		return nil
	}
}

// WithPollInterval is used to poll for completed fences every d so deferred
// work runs without a waiter.
func WithPollInterval(d time.Duration) SequencerOption {
	return func(s *Sequencer) error {
		if d <= 0 {
			return errors.Errorf("invalid poll interval %v", d)
		}
		s.pollInterval = d
		return nil
	}
}
