package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/leandrodaf/midiport/internal/logger"
	"github.com/leandrodaf/midiport/internal/transport/gomididrv"
	"github.com/leandrodaf/midiport/internal/transport/natsbridge"
	"github.com/leandrodaf/midiport/sdk/contracts"
	midiport "github.com/leandrodaf/midiport/sdk/midi"
	"github.com/leandrodaf/midiport/sdk/packet"
)

// note is handed from the real-time thread to the logging goroutine.
type note struct {
	source   contracts.SourceID
	at       packet.Timestamp
	key      uint8
	velocity uint8
}

func main() {
	log := logger.NewZapLogger()

	notes := make(chan note, 256)

	// Runs on the real-time thread: no allocation, no blocking.
	receive := func(id contracts.SourceID, b *packet.Batch) {
		var channel, key, velocity uint8
		for i := 0; i < b.Len(); i++ {
			if b.Message(i).GetNoteOn(&channel, &key, &velocity) {
				select {
				case notes <- note{source: id, at: b.Timestamp(i), key: key, velocity: velocity}:
				default:
				}
			}
		}
	}

	port, err := midiport.NewMultiInstanceReceiverPort("example", "Example Receiver",
		func(inst contracts.Instance) {
			log.Info("Source connected",
				log.Field().String("source", inst.ID().String()),
				log.Field().String("title", inst.Source().Title))
			inst.SetReceiver(receive)
			inst.SetFlushHandler(func(contracts.SourceID) {})
		},
		func(inst contracts.Instance) {
			log.Info("Source disconnected", log.Field().String("source", inst.ID().String()))
		},
		contracts.WithLogger(log),
		contracts.WithLogLevel(contracts.InfoLevel),
	)
	if err != nil {
		log.Error("Failed to create receiver port", log.Field().Error("error", err))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var transports []contracts.Transport

	system, err := midiport.NewSystemTransport(contracts.WithLogger(log))
	if err == nil {
		err = system.Start(ctx, port)
	}
	switch {
	case err == nil:
		transports = append(transports, system)
	case errors.Is(err, midiport.ErrUnsupportedOS), errors.Is(err, contracts.ErrUnsupportedPlatform):
		log.Warn("No system MIDI transport on this platform")
	default:
		log.Error("Failed to start system MIDI transport", log.Field().Error("error", err))
	}

	// MIDI_IN selects a port from whichever gomidi driver the binary links.
	if name := os.Getenv("MIDI_IN"); name != "" {
		in, err := gomididrv.Find(name, log)
		if err == nil {
			err = in.Start(ctx, port)
		}
		if err != nil {
			log.Error("Failed to start gomidi input", log.Field().Error("error", err))
		} else {
			transports = append(transports, in)
		}
	}

	// Remote sources publish to midi.example.* when NATS_URL is set.
	if url := os.Getenv("NATS_URL"); url != "" {
		nc, err := nats.Connect(url)
		if err != nil {
			log.Error("Failed to connect to NATS", log.Field().Error("error", err))
			return
		}
		defer nc.Close()

		bridge := natsbridge.New(nc, "midi", port.Name(), 5*time.Second, log)
		if err := bridge.Start(ctx, port); err != nil {
			log.Error("Failed to start NATS bridge", log.Field().Error("error", err))
			return
		}
		transports = append(transports, bridge)
	}

	fmt.Println("Receiving MIDI notes... Press Ctrl+C to exit.")
	for done := false; !done; {
		select {
		case n := <-notes:
			log.Info("Note on",
				log.Field().String("source", n.source.String()),
				log.Field().Uint64("timestamp", uint64(n.at)),
				log.Field().Int("key", int(n.key)),
				log.Field().Int("velocity", int(n.velocity)))
		case <-ctx.Done():
			done = true
		}
	}

	for _, t := range transports {
		if err := t.Stop(); err != nil {
			log.Error("Failed to stop transport", log.Field().Error("error", err))
		}
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := port.Close(closeCtx); err != nil {
		log.Error("Failed to close receiver port", log.Field().Error("error", err))
	}
}
