package pushbuf

import "time"

// flusher kicks the current fence once work has been pending for a deadline,
// so deferred work does not wait for the next explicit flush.
type flusher struct {
	s        *Sequencer
	done     chan struct{}
	exited   chan struct{}
	work     chan struct{}
	deadline time.Duration
}

func newFlusher(s *Sequencer, deadline time.Duration) *flusher {
	return &flusher{
		s:        s,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		work:     make(chan struct{}, 1),
		deadline: deadline,
	}
}

// notifyFlusher arms the flush deadline if a flusher is running.
func (s *Sequencer) notifyFlusher() {
	if s.flusher != nil {
		s.flusher.notify()
	}
}

func (f *flusher) notify() {
	select {
	case f.work <- struct{}{}:
	default:
	}
}

func (f *flusher) run() {
	defer close(f.exited)
	timer := time.NewTimer(f.deadline)
	if !timer.Stop() {
		<-timer.C
	}
	timerActive := false
	for {
		select {
		case <-timer.C:
			timerActive = false
			f.flush()

		case <-f.work:
			if !timerActive {
				timerActive = true
				timer.Reset(f.deadline)
			}

		case <-f.done:
			if timerActive && !timer.Stop() {
				<-timer.C
			}
			return
		}
	}
}

func (f *flusher) flush() {
	s := f.s
	s.push.Acquire()
	defer s.push.Release()
	s.Lock()
	defer s.Unlock()

	c := s.current
	if c == nil || (c.PendingWork() == 0 && s.push.Len() == 0) {
		return
	}
	if err := s.kick(c); err != nil {
		s.log.Warn("deadline flush failed", "err", err)
		return
	}
	s.log.Debug("deadline flush", "sequence", c.sequence, "ack", s.ack)
}

func (f *flusher) stop() {
	close(f.done)
	<-f.exited
}
