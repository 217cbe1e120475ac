package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

type fakeStats struct{ stats contracts.PortStats }

func (f *fakeStats) Stats() contracts.PortStats { return f.stats }

func TestRegisterExposesPortStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &fakeStats{}
	_, err := Register(reg, "synth", src)
	require.NoError(t, err)

	src.stats = contracts.PortStats{Delivered: 5, Dropped: 2, Flushes: 1, Connected: 3}

	expected := `
# HELP midiport_receiver_batches_delivered_total Batches handed to a receiver
# TYPE midiport_receiver_batches_delivered_total counter
midiport_receiver_batches_delivered_total{port="synth"} 5
# HELP midiport_receiver_connected_sources Sources currently connected
# TYPE midiport_receiver_connected_sources gauge
midiport_receiver_connected_sources{port="synth"} 3
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"midiport_receiver_batches_delivered_total", "midiport_receiver_connected_sources")
	assert.NoError(t, err)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestRegisterTwiceFailsAndRollsBack(t *testing.T) {
	reg := prometheus.NewRegistry()
	pc, err := Register(reg, "synth", &fakeStats{})
	require.NoError(t, err)

	_, err = Register(reg, "synth", &fakeStats{})
	assert.Error(t, err)

	require.NoError(t, pc.Unregister())
	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = Register(reg, "synth", &fakeStats{})
	assert.NoError(t, err)
}
