// Package metrics exports sequencer statistics as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	pushbuf "github.com/hodgesds/pushbuf-go"
)

// StatsSource provides a snapshot of sequencer counters. *pushbuf.Sequencer
// implements it.
type StatsSource interface {
	Stats() pushbuf.Stats
}

type counter struct {
	desc  *prometheus.Desc
	value func(pushbuf.Stats) uint64
}

// Collector is a prometheus.Collector reading a StatsSource on every scrape.
type Collector struct {
	src      StatsSource
	counters []counter
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector for src. Every metric carries the given
// constant labels, which is how multiple channels are told apart.
func NewCollector(src StatsSource, labels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName("pushbuf", "", name),
			help,
			nil,
			labels,
		)
	}
	return &Collector{
		src: src,
		counters: []counter{
			{desc("fences_emitted_total", "Fences written into the push buffer."),
				func(s pushbuf.Stats) uint64 { return s.Emitted }},
			{desc("fences_signalled_total", "Fences acknowledged by the GPU."),
				func(s pushbuf.Stats) uint64 { return s.Signalled }},
			{desc("kicks_total", "Push buffer submissions to the kernel."),
				func(s pushbuf.Stats) uint64 { return s.Kicks }},
			{desc("wait_stalls_total", "Fence waits that had to poll."),
				func(s pushbuf.Stats) uint64 { return s.Stalls }},
			{desc("wait_timeouts_total", "Fence waits that exhausted the spin budget."),
				func(s pushbuf.Stats) uint64 { return s.Timeouts }},
			{desc("work_run_total", "Deferred work items run."),
				func(s pushbuf.Stats) uint64 { return s.WorkRun }},
			{desc("work_orphaned_total", "Deferred work items run because their fence was deleted early."),
				func(s pushbuf.Stats) uint64 { return s.OrphanedWork }},
			{desc("fences_destroyed_total", "Fences deleted after their last reference was dropped."),
				func(s pushbuf.Stats) uint64 { return s.Destroyed }},
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.counters {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.src.Stats()
	for _, m := range c.counters {
		ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, float64(m.value(stats)))
	}
}
