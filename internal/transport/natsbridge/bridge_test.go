package natsbridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leandrodaf/midiport/internal/logger"
	"github.com/leandrodaf/midiport/internal/port"
	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/leandrodaf/midiport/sdk/packet"
)

// loopback delivers published messages straight to the subscribed handler.
type loopback struct {
	mu      sync.Mutex
	subject string
	handler nats.MsgHandler
}

func (l *loopback) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subject, l.handler = subj, cb
	return nil, nil
}

func (l *loopback) Publish(subj string, data []byte) error {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if h != nil {
		h(&nats.Msg{Subject: subj, Data: data})
	}
	return nil
}

type received struct {
	id   contracts.SourceID
	msgs [][]byte
	ts   []packet.Timestamp
}

type recorder struct {
	mu      sync.Mutex
	batches []received
	flushes []contracts.SourceID
}

func (r *recorder) receive(id contracts.SourceID, b *packet.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := received{id: id}
	for i := 0; i < b.Len(); i++ {
		rec.msgs = append(rec.msgs, b.AppendMessage(nil, i))
		rec.ts = append(rec.ts, b.Timestamp(i))
	}
	r.batches = append(r.batches, rec)
}

func (r *recorder) flush(id contracts.SourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes = append(r.flushes, id)
}

func newPort(t *testing.T, rec *recorder) *port.ReceiverPort {
	t.Helper()
	p, err := port.New(port.Config{
		Name:     "synth",
		Receiver: rec.receive,
		Options: contracts.PortOptions{
			Logger:      logger.NewNopLogger(),
			MaxSources:  4,
			ReclaimPoll: time.Millisecond,
		},
	})
	require.NoError(t, err)
	p.SetFlushHandler(rec.flush)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func startBridge(t *testing.T, p contracts.Sink) (*Bridge, *loopback) {
	t.Helper()
	conn := &loopback{}
	b := New(conn, "midi", "synth", time.Second, logger.NewNopLogger())
	require.NoError(t, b.Start(context.Background(), p))
	return b, conn
}

func TestBridgeSubscribesToPortWildcard(t *testing.T) {
	rec := &recorder{}
	_, conn := startBridge(t, newPort(t, rec))
	assert.Equal(t, "midi.synth.>", conn.subject)
}

func TestBridgeDeliversPeerLifecycle(t *testing.T) {
	rec := &recorder{}
	p := newPort(t, rec)
	_, conn := startBridge(t, p)

	peer := NewPeer(conn, "midi", "synth", "keyboard-1")
	require.NoError(t, peer.Connect(contracts.SourceInfo{Name: "kbd", Title: "Keyboard", Icon: []byte{1, 2}}))

	sources := p.Sources()
	require.Len(t, sources, 1)
	assert.Equal(t, "keyboard-1", sources[0].Key)
	assert.Equal(t, "Keyboard", p.SourcesTitle())
	assert.Equal(t, []byte{1, 2}, p.SourcesIcon())

	require.NoError(t, peer.Send(
		packet.Packet{Timestamp: 10, Message: []byte{0x90, 60, 100}},
		packet.Packet{Timestamp: 20, Message: []byte{0x80, 60, 0}},
	))
	require.NoError(t, peer.Flush())

	rec.mu.Lock()
	require.Len(t, rec.batches, 1)
	assert.Equal(t, sources[0].ID, rec.batches[0].id)
	assert.Equal(t, [][]byte{{0x90, 60, 100}, {0x80, 60, 0}}, rec.batches[0].msgs)
	assert.Equal(t, []packet.Timestamp{10, 20}, rec.batches[0].ts)
	assert.Equal(t, []contracts.SourceID{sources[0].ID}, rec.flushes)
	rec.mu.Unlock()

	require.NoError(t, peer.Disconnect())
	assert.Empty(t, p.Sources())

	require.NoError(t, peer.Send(packet.Packet{Timestamp: 30, Message: []byte{0x90, 62, 100}}))
	rec.mu.Lock()
	assert.Len(t, rec.batches, 1)
	rec.mu.Unlock()
}

func TestBridgeRejectsMalformedEvents(t *testing.T) {
	rec := &recorder{}
	p := newPort(t, rec)
	_, conn := startBridge(t, p)

	require.NoError(t, conn.Publish(Subject("midi", "synth", KindConnect), []byte("{")))
	require.NoError(t, conn.Publish(Subject("midi", "synth", "bogus"), []byte("{}")))
	assert.Empty(t, p.Sources())

	peer := NewPeer(conn, "midi", "synth", "k")
	require.NoError(t, peer.Connect(contracts.SourceInfo{}))
	require.NoError(t, peer.Send(
		packet.Packet{Timestamp: 20, Message: []byte{0x90, 60, 100}},
		packet.Packet{Timestamp: 10, Message: []byte{0x80, 60, 0}},
	))
	require.NoError(t, peer.Send(packet.Packet{Timestamp: 1, Message: nil}))

	rec.mu.Lock()
	assert.Empty(t, rec.batches)
	rec.mu.Unlock()
}

func TestBridgeIgnoresConnectWithoutKey(t *testing.T) {
	rec := &recorder{}
	p := newPort(t, rec)
	b, conn := startBridge(t, p)

	peer := NewPeer(conn, "midi", "synth", "")
	require.NoError(t, peer.Connect(contracts.SourceInfo{Title: "Anonymous"}))
	assert.Empty(t, p.Sources())
	assert.Zero(t, p.Stats().Connected)

	require.NoError(t, peer.Disconnect())
	require.NoError(t, b.Stop())
	assert.Empty(t, p.Sources())
}

func TestBridgeStopDisconnectsPeers(t *testing.T) {
	rec := &recorder{}
	p := newPort(t, rec)
	b, conn := startBridge(t, p)

	require.NoError(t, NewPeer(conn, "midi", "synth", "a").Connect(contracts.SourceInfo{Title: "A"}))
	require.NoError(t, NewPeer(conn, "midi", "synth", "b").Connect(contracts.SourceInfo{Title: "B"}))
	require.Len(t, p.Sources(), 2)

	require.NoError(t, b.Stop())
	assert.Empty(t, p.Sources())

	rec.mu.Lock()
	assert.Len(t, rec.flushes, 2)
	rec.mu.Unlock()

	require.NoError(t, b.Stop())
}

func TestBridgeStartTwice(t *testing.T) {
	rec := &recorder{}
	p := newPort(t, rec)
	b, _ := startBridge(t, p)
	assert.ErrorIs(t, b.Start(context.Background(), p), contracts.ErrTransportStarted)
}
