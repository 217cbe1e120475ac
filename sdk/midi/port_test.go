package midi

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leandrodaf/midiport/internal/logger"
	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/leandrodaf/midiport/sdk/packet"
)

func TestApplyDefaultOptions(t *testing.T) {
	opts := applyDefaultOptions(contracts.WithLogger(logger.NewNopLogger()))

	assert.Equal(t, contracts.DefaultMaxSources, opts.MaxSources)
	assert.Equal(t, contracts.DefaultReclaimPoll, opts.ReclaimPoll)
	require.NotNil(t, opts.TransportConfig)
	assert.Equal(t, "GO MIDI Receiver", opts.TransportConfig.ClientName)

	opts = applyDefaultOptions(
		contracts.WithLogger(logger.NewNopLogger()),
		contracts.WithMaxSources(3),
		contracts.WithReclaimPoll(5*time.Millisecond),
		contracts.WithTransportConfig(contracts.TransportConfig{ClientName: "studio"}),
	)
	assert.Equal(t, 3, opts.MaxSources)
	assert.Equal(t, 5*time.Millisecond, opts.ReclaimPoll)
	assert.Equal(t, "studio", opts.TransportConfig.ClientName)
}

func TestNewReceiverPort(t *testing.T) {
	var got int
	p, err := NewReceiverPort("synth", "", func(contracts.SourceID, *packet.Batch) { got++ },
		contracts.WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	defer p.Close(context.Background())

	assert.Equal(t, "synth", p.Name())
	assert.Equal(t, "synth", p.Title())
	assert.False(t, p.MultiInstance())

	id, err := p.Connect(context.Background(), contracts.SourceInfo{Title: "Keys"})
	require.NoError(t, err)
	src, ok := p.Source(id)
	require.True(t, ok)
	assert.NotEmpty(t, src.Key)

	b, err := packet.New(id, packet.Packet{Message: []byte{0x90, 60, 100}})
	require.NoError(t, err)
	assert.True(t, p.Receive(id, b))
	assert.Equal(t, 1, got)
}

func TestNewReceiverPortErrorsReturnNil(t *testing.T) {
	p, err := NewReceiverPort("", "", func(contracts.SourceID, *packet.Batch) {},
		contracts.WithLogger(logger.NewNopLogger()))
	assert.ErrorIs(t, err, contracts.ErrInvalidName)
	assert.Nil(t, p)

	p, err = NewMultiInstanceReceiverPort("multi", "", nil, nil,
		contracts.WithLogger(logger.NewNopLogger()))
	assert.ErrorIs(t, err, contracts.ErrNilHandler)
	assert.Nil(t, p)
}

func TestNewMultiInstanceReceiverPort(t *testing.T) {
	var connected, disconnected []contracts.SourceID
	reg := prometheus.NewRegistry()
	p, err := NewMultiInstanceReceiverPort("multi", "Multi",
		func(inst contracts.Instance) { connected = append(connected, inst.ID()) },
		func(inst contracts.Instance) { disconnected = append(disconnected, inst.ID()) },
		contracts.WithLogger(logger.NewNopLogger()),
		contracts.WithMetrics(reg),
	)
	require.NoError(t, err)
	assert.True(t, p.MultiInstance())

	id, err := p.Connect(context.Background(), contracts.SourceInfo{Key: "a"})
	require.NoError(t, err)
	assert.Equal(t, []contracts.SourceID{id}, connected)

	n, err := testutil.GatherAndCount(reg, "midiport_receiver_connected_sources")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, []contracts.SourceID{id}, disconnected)
}

func TestNewSystemTransport(t *testing.T) {
	tr, err := NewSystemTransport(contracts.WithLogger(logger.NewNopLogger()))
	if _, ok := transportInitializers[runtime.GOOS]; !ok {
		assert.True(t, errors.Is(err, ErrUnsupportedOS))
		assert.Nil(t, tr)
		return
	}
	require.NoError(t, err)
	assert.NotNil(t, tr)
}
