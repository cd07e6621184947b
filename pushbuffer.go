package pushbuf

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// PushBuffer is a fixed capacity command stream. Producers reserve space,
// write command words and kick the contents to the kernel. All methods
// except Acquire, Held and the statistics accessors require the submission
// lock.
type PushBuffer struct {
	words  []uint32
	cur    int
	margin int
	kicker Kicker
	hook   kickHook

	lock        chan struct{}
	held        atomic.Bool
	lockTimeout time.Duration

	// kicking is set while the kick hook runs so reservations made from it
	// consume the margin instead of flushing again.
	kicking bool
	kicks   uint64
}

// NewPushBuffer returns a PushBuffer holding size words that submits through
// k.
func NewPushBuffer(size int, k Kicker, opts ...PushBufferOption) (*PushBuffer, error) {
	if k == nil {
		return nil, errors.New("nil kicker")
	}
	p := &PushBuffer{
		words:       make([]uint32, size),
		margin:      DefaultReserveMargin,
		kicker:      k,
		lock:        make(chan struct{}, 1),
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if size <= p.margin {
		return nil, errors.Errorf("push buffer of %d words cannot hold a %d word margin", size, p.margin)
	}
	return p, nil
}

// Acquire takes the submission lock. Failing to get it within the lock
// timeout means a holder leaked the lock, so Acquire panics.
func (p *PushBuffer) Acquire() {
	select {
	case p.lock <- struct{}{}:
	default:
		timer := time.NewTimer(p.lockTimeout)
		defer timer.Stop()
		select {
		case p.lock <- struct{}{}:
		case <-timer.C:
			panic(errors.Errorf("pushbuf: submission lock not acquired within %v", p.lockTimeout))
		}
	}
	p.held.Store(true)
}

// Release drops the submission lock.
func (p *PushBuffer) Release() {
	if !p.held.Load() {
		panic("pushbuf: release of unheld submission lock")
	}
	p.held.Store(false)
	<-p.lock
}

// Held reports whether the submission lock is currently held by anyone.
func (p *PushBuffer) Held() bool {
	return p.held.Load()
}

func (p *PushBuffer) assertHeld() {
	if !p.held.Load() {
		panic("pushbuf: submission lock not held")
	}
}

// Cap returns the capacity of the push buffer in words.
func (p *PushBuffer) Cap() int {
	return len(p.words)
}

// Len returns the number of words written since the last kick.
func (p *PushBuffer) Len() int {
	return p.cur
}

// Space returns the number of free words, including the margin.
func (p *PushBuffer) Space() int {
	return len(p.words) - p.cur
}

// Kicks returns the number of successful submissions. It is safe for
// calling concurrently.
func (p *PushBuffer) Kicks() uint64 {
	return atomic.LoadUint64(&p.kicks)
}

// Reserve guarantees room for n words plus the reserve margin, kicking the
// current contents if needed. A kick runs the kick hook which may emit the
// current fence, so callers must not assume fence state is unchanged.
func (p *PushBuffer) Reserve(n int) error {
	p.assertHeld()
	if p.kicking {
		if p.cur+n > len(p.words) {
			return errors.Wrapf(ErrPushBufferFull, "reserve %d words during kick with %d free", n, p.Space())
		}
		return nil
	}
	if n+p.margin > len(p.words) {
		return errors.Wrapf(ErrReserveTooLarge, "reserve %d words", n)
	}
	if p.cur+n+p.margin <= len(p.words) {
		return nil
	}
	return p.Kick()
}

// Write appends command words. Space must have been reserved.
func (p *PushBuffer) Write(words ...uint32) {
	p.assertHeld()
	if p.cur+len(words) > len(p.words) {
		panic(errors.Errorf("pushbuf: write of %d words overflows push buffer (%d free)", len(words), p.Space()))
	}
	p.cur += copy(p.words[p.cur:], words)
}

// Kick hands the current contents to the kernel. On failure the contents are
// left in place. The kick hook locks the sequencer, so Kick must not be
// called with the sequencer lock held; use Sequencer.Reserve there instead.
func (p *PushBuffer) Kick() error {
	p.assertHeld()
	if p.kicking {
		// A kick from inside the hook would submit half a fence.
		panic("pushbuf: recursive kick")
	}
	if p.hook != nil {
		p.kicking = true
		p.hook.preKick(p)
		p.kicking = false
	}
	if p.cur == 0 {
		return nil
	}
	if err := p.kicker.Kick(p.words[:p.cur]); err != nil {
		return errors.Wrap(err, "failed to kick push buffer")
	}
	p.cur = 0
	atomic.AddUint64(&p.kicks, 1)
	if p.hook != nil {
		p.hook.postKick(p)
	}
	return nil
}

// Done kicks the push buffer and releases the submission lock. Like Kick, it
// must not be called with the sequencer lock held, or it deadlocks.
func (p *PushBuffer) Done() error {
	err := p.Kick()
	p.Release()
	return err
}
