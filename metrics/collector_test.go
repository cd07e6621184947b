package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	pushbuf "github.com/hodgesds/pushbuf-go"
)

type staticStats pushbuf.Stats

func (s staticStats) Stats() pushbuf.Stats { return pushbuf.Stats(s) }

func TestCollector(t *testing.T) {
	c := NewCollector(staticStats{
		Emitted:   3,
		Signalled: 2,
		Kicks:     1,
		Stalls:    1,
	}, prometheus.Labels{"channel": "0"})

	require.Equal(t, 8, testutil.CollectAndCount(c))

	expected := `
# HELP pushbuf_fences_emitted_total Fences written into the push buffer.
# TYPE pushbuf_fences_emitted_total counter
pushbuf_fences_emitted_total{channel="0"} 3
# HELP pushbuf_fences_signalled_total Fences acknowledged by the GPU.
# TYPE pushbuf_fences_signalled_total counter
pushbuf_fences_signalled_total{channel="0"} 2
# HELP pushbuf_wait_timeouts_total Fence waits that exhausted the spin budget.
# TYPE pushbuf_wait_timeouts_total counter
pushbuf_wait_timeouts_total{channel="0"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"pushbuf_fences_emitted_total",
		"pushbuf_fences_signalled_total",
		"pushbuf_wait_timeouts_total",
	))
}

func TestCollectorRegister(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(staticStats{}, nil)))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 8)
}
