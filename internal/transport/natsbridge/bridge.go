// Package natsbridge receives MIDI sources over NATS.
//
// Every port listens on one wildcard subject, <prefix>.<port>.>, so all
// events for a port arrive in publish order on a single subscription:
//
//	<prefix>.<port>.connect     {"key","name","title","icon"}
//	<prefix>.<port>.packets     {"key","packets":[{"t","data"}]}
//	<prefix>.<port>.flush       {"key"}
//	<prefix>.<port>.disconnect  {"key"}
package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/multierr"

	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/leandrodaf/midiport/sdk/packet"
)

// Event kinds, used as the last subject token.
const (
	KindConnect    = "connect"
	KindPackets    = "packets"
	KindFlush      = "flush"
	KindDisconnect = "disconnect"
)

// ErrMissingKey is reported for events that do not name their peer.
var ErrMissingKey = errors.New("event has no peer key")

// ConnectEvent announces a peer.
type ConnectEvent struct {
	Key   string `json:"key"`
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
	Icon  []byte `json:"icon,omitempty"`
}

// KeyEvent names a peer for flush and disconnect.
type KeyEvent struct {
	Key string `json:"key"`
}

// WirePacket is one timestamped message on the wire.
type WirePacket struct {
	T    uint64 `json:"t"`
	Data []byte `json:"data"`
}

// PacketsEvent carries one batch from a peer.
type PacketsEvent struct {
	Key     string       `json:"key"`
	Packets []WirePacket `json:"packets"`
}

// Subscriber is the part of *nats.Conn the bridge uses.
type Subscriber interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Subject returns the subject of one event kind for a port.
func Subject(prefix, port, kind string) string {
	return prefix + "." + port + "." + kind
}

// Bridge is a contracts.Transport fed by NATS messages.
type Bridge struct {
	conn    Subscriber
	base    string
	timeout time.Duration
	logger  contracts.Logger

	mu      sync.Mutex
	sink    contracts.Sink
	sub     *nats.Subscription
	ids     map[string]contracts.SourceID
	builder *packet.Builder
}

// New returns a bridge for the port called port under prefix. timeout
// bounds connect and disconnect handling.
func New(conn Subscriber, prefix, port string, timeout time.Duration, logger contracts.Logger) *Bridge {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bridge{
		conn:    conn,
		base:    prefix + "." + port,
		timeout: timeout,
		logger:  logger,
		ids:     make(map[string]contracts.SourceID),
		builder: packet.NewBuilder(16, 256),
	}
}

// Start subscribes and routes events into sink.
func (b *Bridge) Start(ctx context.Context, sink contracts.Sink) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sink != nil {
		return contracts.ErrTransportStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sub, err := b.conn.Subscribe(b.base+".>", b.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s.>: %w", b.base, err)
	}
	b.sink, b.sub = sink, sub
	b.logger.Info("NATS bridge subscribed", b.logger.Field().String("subject", b.base+".>"))
	return nil
}

func (b *Bridge) handle(msg *nats.Msg) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sink == nil {
		return
	}
	kind := strings.TrimPrefix(msg.Subject, b.base+".")
	var err error
	switch kind {
	case KindConnect:
		err = b.onConnect(msg.Data)
	case KindPackets:
		err = b.onPackets(msg.Data)
	case KindFlush:
		err = b.onFlush(msg.Data)
	case KindDisconnect:
		err = b.onDisconnect(msg.Data)
	default:
		err = fmt.Errorf("unknown event kind %q", kind)
	}
	if err != nil {
		b.logger.Warn("NATS bridge event rejected",
			b.logger.Field().String("subject", msg.Subject),
			b.logger.Field().Error("error", err))
	}
}

func (b *Bridge) onConnect(data []byte) error {
	var ev ConnectEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	// Later events find the peer by key only.
	if ev.Key == "" {
		return ErrMissingKey
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	id, err := b.sink.Connect(ctx, contracts.SourceInfo{Key: ev.Key, Name: ev.Name, Title: ev.Title, Icon: ev.Icon})
	if err != nil {
		return err
	}
	b.ids[ev.Key] = id
	return nil
}

func (b *Bridge) lookup(key string) (contracts.SourceID, error) {
	id, ok := b.ids[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", contracts.ErrUnknownSource, key)
	}
	return id, nil
}

func (b *Bridge) onPackets(data []byte) error {
	var ev PacketsEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	id, err := b.lookup(ev.Key)
	if err != nil {
		return err
	}
	if len(ev.Packets) == 0 {
		return nil
	}
	b.builder.Reset(id)
	for _, p := range ev.Packets {
		if err := b.builder.Add(packet.Timestamp(p.T), p.Data); err != nil {
			return err
		}
	}
	b.sink.Receive(id, b.builder.Batch())
	return nil
}

func (b *Bridge) onFlush(data []byte) error {
	var ev KeyEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	id, err := b.lookup(ev.Key)
	if err != nil {
		return err
	}
	b.sink.Flush(id)
	return nil
}

func (b *Bridge) onDisconnect(data []byte) error {
	var ev KeyEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	id, err := b.lookup(ev.Key)
	if err != nil {
		return err
	}
	delete(b.ids, ev.Key)

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	return b.sink.Disconnect(ctx, id)
}

// Stop unsubscribes and disconnects every peer the bridge connected.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sink == nil {
		return nil
	}
	var errs error
	if b.sub != nil {
		errs = multierr.Append(errs, b.sub.Unsubscribe())
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	for key, id := range b.ids {
		b.sink.Flush(id)
		errs = multierr.Append(errs, b.sink.Disconnect(ctx, id))
		delete(b.ids, key)
	}
	b.sink, b.sub = nil, nil
	b.logger.Info("NATS bridge stopped", b.logger.Field().String("subject", b.base+".>"))
	return errs
}
