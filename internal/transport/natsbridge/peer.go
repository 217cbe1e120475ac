package natsbridge

import (
	"encoding/json"

	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/leandrodaf/midiport/sdk/packet"
)

// Publisher is the part of *nats.Conn a Peer uses.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Peer is the sending side of a bridge: a remote source publishing to one port.
type Peer struct {
	pub    Publisher
	prefix string
	port   string
	key    string
}

// NewPeer returns a peer identified by key.
func NewPeer(pub Publisher, prefix, port, key string) *Peer {
	return &Peer{pub: pub, prefix: prefix, port: port, key: key}
}

func (p *Peer) publish(kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.pub.Publish(Subject(p.prefix, p.port, kind), data)
}

// Connect announces the peer. info.Key is replaced by the peer's key.
func (p *Peer) Connect(info contracts.SourceInfo) error {
	return p.publish(KindConnect, ConnectEvent{Key: p.key, Name: info.Name, Title: info.Title, Icon: info.Icon})
}

// Send publishes one batch.
func (p *Peer) Send(packets ...packet.Packet) error {
	ev := PacketsEvent{Key: p.key, Packets: make([]WirePacket, len(packets))}
	for i, pk := range packets {
		ev.Packets[i] = WirePacket{T: uint64(pk.Timestamp), Data: pk.Message}
	}
	return p.publish(KindPackets, ev)
}

// Flush asks the port to drop the peer's scheduled events.
func (p *Peer) Flush() error {
	return p.publish(KindFlush, KeyEvent{Key: p.key})
}

// Disconnect announces that the peer is going away.
func (p *Peer) Disconnect() error {
	return p.publish(KindDisconnect, KeyEvent{Key: p.key})
}
