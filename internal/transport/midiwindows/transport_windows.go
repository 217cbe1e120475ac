//go:build windows
// +build windows

package midiwindows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/leandrodaf/midiport/sdk/contracts"
	"github.com/leandrodaf/midiport/sdk/packet"
	"go.uber.org/multierr"
	"golang.org/x/sys/windows"
)

// Type definitions for MIDI handles
type HMIDIIN windows.Handle

// Constants for callback flags
const (
	CALLBACK_FUNCTION = 0x00030000 // Indicates that the callback is a function
	MIDI_IO_STATUS    = 0x00000020 // MIDI input/output status
)

// Constants for MIDI message types
const (
	MIM_OPEN      = 0x3C1 // MIDI device opened
	MIM_CLOSE     = 0x3C2 // MIDI device closed
	MIM_DATA      = 0x3C3 // MIDI data received
	MIM_ERROR     = 0x3C5 // MIDI error
	MIM_LONGERROR = 0x3C6 // Long MIDI error
	MIM_MOREDATA  = 0x3CC // More MIDI data available
)

// ErrNoMIDIDevices is returned by Start when winmm reports no input devices.
var ErrNoMIDIDevices = errors.New("no MIDI devices found")

// Struct representing MIDI device capabilities
type midiInCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	dwSupport      uint32
}

// Load the winmm.dll library and required functions
var (
	winmm                = windows.NewLazySystemDLL("winmm.dll")
	procMidiInGetNumDevs = winmm.NewProc("midiInGetNumDevs")
	procMidiInGetDevCaps = winmm.NewProc("midiInGetDevCapsW")
	procMidiInOpen       = winmm.NewProc("midiInOpen")
	procMidiInStart      = winmm.NewProc("midiInStart")
	procMidiInStop       = winmm.NewProc("midiInStop")
	procMidiInClose      = winmm.NewProc("midiInClose")
)

// winmm callbacks are a limited resource; one trampoline serves every device.
var (
	callbackOnce sync.Once
	callbackPtr  uintptr
)

// device is one opened winmm input. It is passed to the callback as
// dwInstance and kept alive in Transport.devices until closed.
type device struct {
	sink    contracts.Sink
	id      contracts.SourceID
	handle  HMIDIIN
	builder *packet.Builder
	msg     [3]byte
}

// Transport feeds a sink from every winmm MIDI input device.
type Transport struct {
	logger  contracts.Logger
	mu      sync.Mutex
	sink    contracts.Sink
	devices []*device
	started bool
}

// NewTransport creates a winmm transport.
func NewTransport(options *contracts.PortOptions) (contracts.Transport, error) {
	options.Logger.Info("winmm MIDI transport created")
	return &Transport{logger: options.Logger}, nil
}

// Start opens every input device and connects it to sink.
func (t *Transport) Start(ctx context.Context, sink contracts.Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return contracts.ErrTransportStarted
	}

	r0, _, _ := procMidiInGetNumDevs.Call()
	numDevices := uint32(r0)
	if numDevices == 0 {
		t.logger.Warn(ErrNoMIDIDevices.Error())
		return ErrNoMIDIDevices
	}

	callbackOnce.Do(func() { callbackPtr = windows.NewCallback(midiInCallback) })
	t.sink = sink
	t.started = true

	var errs error
	for i := uint32(0); i < numDevices; i++ {
		d, err := t.open(ctx, i)
		if err != nil {
			t.logger.Error("Failed to open MIDI device",
				t.logger.Field().Int("deviceID", int(i)),
				t.logger.Field().Error("error", err))
			errs = multierr.Append(errs, err)
			continue
		}
		t.devices = append(t.devices, d)
	}
	return errs
}

func (t *Transport) open(ctx context.Context, deviceID uint32) (*device, error) {
	var caps midiInCaps
	r1, _, _ := procMidiInGetDevCaps.Call(
		uintptr(deviceID),
		uintptr(unsafe.Pointer(&caps)),
		unsafe.Sizeof(caps),
	)
	if r1 != 0 {
		return nil, fmt.Errorf("failed to get information for MIDI device %d", deviceID)
	}
	name := windows.UTF16ToString(caps.szPname[:])

	id, err := t.sink.Connect(ctx, contracts.SourceInfo{
		Key:   fmt.Sprintf("winmm:%d:%d:%d", deviceID, caps.wMid, caps.wPid),
		Name:  name,
		Title: name,
	})
	if err != nil {
		return nil, err
	}

	d := &device{sink: t.sink, id: id, builder: packet.NewBuilder(1, 3)}
	r1, _, err = procMidiInOpen.Call(
		uintptr(unsafe.Pointer(&d.handle)),
		uintptr(deviceID),
		callbackPtr,
		uintptr(unsafe.Pointer(d)),
		uintptr(CALLBACK_FUNCTION|MIDI_IO_STATUS),
	)
	if r1 != 0 {
		return nil, multierr.Append(fmt.Errorf("failed to open MIDI device %d: %v", deviceID, err), t.sink.Disconnect(ctx, id))
	}

	r1, _, err = procMidiInStart.Call(uintptr(d.handle))
	if r1 != 0 {
		procMidiInClose.Call(uintptr(d.handle))
		return nil, multierr.Append(fmt.Errorf("failed to start MIDI device %d: %v", deviceID, err), t.sink.Disconnect(ctx, id))
	}

	t.logger.Info("MIDI device connected",
		t.logger.Field().Int("deviceID", int(deviceID)),
		t.logger.Field().String("deviceName", name))
	return d, nil
}

// messageLength returns how many bytes of a packed short message are used.
func messageLength(status byte) int {
	switch {
	case status >= 0xF8:
		return 1
	case status&0xF0 == 0xC0, status&0xF0 == 0xD0, status == 0xF1, status == 0xF3:
		return 2
	case status == 0xF6:
		return 1
	default:
		return 3
	}
}

// midiInCallback runs on the winmm driver thread.
func midiInCallback(hMidiIn uintptr, wMsg uint32, dwInstance uintptr, dwParam1 uintptr, dwParam2 uintptr) uintptr {
	d := (*device)(unsafe.Pointer(dwInstance))

	if wMsg != MIM_DATA {
		return 0
	}

	d.msg[0] = byte(dwParam1 & 0xFF)
	d.msg[1] = byte((dwParam1 >> 8) & 0xFF)
	d.msg[2] = byte((dwParam1 >> 16) & 0xFF)

	// dwParam2 is milliseconds since midiInStart.
	d.builder.Reset(d.id)
	if d.builder.Add(packet.Timestamp(uint64(dwParam2)*1e6), d.msg[:messageLength(d.msg[0])]) != nil {
		return 0
	}
	d.sink.Receive(d.id, d.builder.Batch())
	return 0
}

// Stop closes every device and disconnects it from the sink.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		t.logger.Warn("Stop called on a winmm transport that is not started")
		return nil
	}

	var errs error
	for _, d := range t.devices {
		if r1, _, err := procMidiInStop.Call(uintptr(d.handle)); r1 != 0 {
			errs = multierr.Append(errs, fmt.Errorf("failed to stop MIDI capture: %v", err))
		}
		if r1, _, err := procMidiInClose.Call(uintptr(d.handle)); r1 != 0 {
			errs = multierr.Append(errs, fmt.Errorf("failed to close MIDI device: %v", err))
		}
		t.sink.Flush(d.id)
		errs = multierr.Append(errs, t.sink.Disconnect(context.Background(), d.id))
	}
	t.devices = nil
	t.started = false
	t.logger.Info("winmm transport stopped")
	return errs
}
