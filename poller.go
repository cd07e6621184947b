package pushbuf

import "time"

// poller periodically reads back the acknowledged sequence so work attached
// to completed fences runs even when nobody waits.
type poller struct {
	s        *Sequencer
	interval time.Duration
	stopCh   chan struct{}
	exited   chan struct{}
}

func newPoller(s *Sequencer, interval time.Duration) *poller {
	return &poller{
		s:        s,
		interval: interval,
		stopCh:   make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

func (p *poller) run() {
	defer close(p.exited)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.s.Lock()
			p.s.update(false)
			p.s.Unlock()
		}
	}
}

func (p *poller) stop() {
	close(p.stopCh)
	<-p.exited
}
