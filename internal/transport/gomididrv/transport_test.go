package gomididrv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/leandrodaf/midiport/internal/logger"
	"github.com/leandrodaf/midiport/internal/port"
	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/leandrodaf/midiport/sdk/packet"
)

type fakeIn struct {
	open      bool
	closed    int
	listenErr error
	onMsg     func(msg []byte, milliseconds int32)
	stopped   int
}

func (f *fakeIn) Open() error             { f.open = true; return nil }
func (f *fakeIn) Close() error            { f.open = false; f.closed++; return nil }
func (f *fakeIn) IsOpen() bool            { return f.open }
func (f *fakeIn) Number() int             { return 3 }
func (f *fakeIn) String() string          { return "Fake Keys" }
func (f *fakeIn) Underlying() interface{} { return nil }

func (f *fakeIn) Listen(onMsg func(msg []byte, milliseconds int32), _ drivers.ListenConfig) (func(), error) {
	if f.listenErr != nil {
		return nil, f.listenErr
	}
	f.onMsg = onMsg
	return func() { f.stopped++ }, nil
}

var _ drivers.In = (*fakeIn)(nil)

func newPort(t *testing.T, receive contracts.ReceiverFunc) *port.ReceiverPort {
	t.Helper()
	p, err := port.New(port.Config{
		Name:     "gomidi",
		Receiver: receive,
		Options: contracts.PortOptions{
			Logger:      logger.NewNopLogger(),
			MaxSources:  2,
			ReclaimPoll: time.Millisecond,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestTransportDeliversMessages(t *testing.T) {
	var got [][]byte
	var from contracts.SourceID
	p := newPort(t, func(id contracts.SourceID, b *packet.Batch) {
		from = id
		for i := 0; i < b.Len(); i++ {
			got = append(got, b.AppendMessage(nil, i))
		}
	})

	in := &fakeIn{}
	tr := New(in, "", logger.NewNopLogger())
	require.NoError(t, tr.Start(context.Background(), p))
	require.NotNil(t, in.onMsg)

	sources := p.Sources()
	require.Len(t, sources, 1)
	assert.Equal(t, "gomidi:3:Fake Keys", sources[0].Key)
	assert.Equal(t, "Fake Keys", sources[0].Title)

	in.onMsg([]byte{0x90, 60, 100}, 0)
	in.onMsg([]byte{0x80, 60, 0}, 5)
	assert.Equal(t, sources[0].ID, from)
	assert.Equal(t, [][]byte{{0x90, 60, 100}, {0x80, 60, 0}}, got)

	assert.ErrorIs(t, tr.Start(context.Background(), p), contracts.ErrTransportStarted)

	require.NoError(t, tr.Stop())
	assert.Equal(t, 1, in.stopped)
	assert.Equal(t, 1, in.closed)
	assert.Empty(t, p.Sources())
	require.NoError(t, tr.Stop())
}

func TestTransportListenFailureDisconnects(t *testing.T) {
	p := newPort(t, func(contracts.SourceID, *packet.Batch) {})
	tr := New(&fakeIn{listenErr: errors.New("boom")}, "Keys", logger.NewNopLogger())

	require.Error(t, tr.Start(context.Background(), p))
	assert.Empty(t, p.Sources())
	assert.NoError(t, tr.Stop())
}
