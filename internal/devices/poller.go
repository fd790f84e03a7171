// Package devices samples gamepads and steering wheels and turns their state
// changes into button events.
package devices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"gtrainer/internal/edge"
	"gtrainer/internal/input"
	"gtrainer/internal/workerutil"
)

// DefaultPollInterval is the nominal tick period (about 60 Hz).
const DefaultPollInterval = 16 * time.Millisecond

// ErrNotConnected is returned by readers for an empty slot or unplugged device.
var ErrNotConnected = errors.New("device not connected")

// GamepadReader reads one XInput user slot.
type GamepadReader interface {
	ReadGamepad(slot int) (input.GamepadState, error)
}

// WheelDevice is an opened steering wheel handle.
type WheelDevice interface {
	ID() string
	Name() string
	// Hardware returns the USB vendor and product IDs, zero when unknown.
	Hardware() HardwareID
	Read() (input.WheelState, error)
	Close() error
}

// WheelEnumerator lists the wheels currently attached.
// Every call returns freshly opened handles owned by the caller.
type WheelEnumerator interface {
	EnumerateWheels() ([]WheelDevice, error)
}

// EventSink receives rising edges. The input bus implements it.
type EventSink interface {
	Publish(ev input.ButtonEvent)
}

// PollerOptions configures NewPoller.
type PollerOptions struct {
	// ExcludeNames lists case-insensitive substrings of wheel product names to
	// skip. XInput pads are also visible to the joystick API and would
	// otherwise report every press twice. Nil uses DefaultExcludeNames.
	ExcludeNames []string
}

// DefaultExcludeNames hides XInput pads whose product name is known.
var DefaultExcludeNames = []string{"xbox", "xinput"}

// HardwareID is a USB vendor and product pair.
type HardwareID struct {
	Vendor  uint16
	Product uint16
}

func (h HardwareID) String() string {
	return fmt.Sprintf("VID_%04X&PID_%04X", h.Vendor, h.Product)
}

const microsoftVendorID = 0x045E

// xboxProductIDs are Microsoft controllers and receivers served by XInput.
// Other Microsoft joysticks, such as SideWinder wheels, stay visible.
var xboxProductIDs = map[uint16]struct{}{
	0x028E: {}, // Xbox 360 Controller
	0x028F: {}, // Xbox 360 Wireless Controller
	0x0291: {}, // Xbox 360 Wireless Receiver (third party)
	0x02A1: {}, // Xbox 360 Wireless Receiver
	0x0719: {}, // Xbox 360 Wireless Receiver
	0x02D1: {}, // Xbox One Controller
	0x02DD: {}, // Xbox One Controller (2015)
	0x02E0: {}, // Xbox One S Controller (Bluetooth)
	0x02E3: {}, // Xbox One Elite Controller
	0x02EA: {}, // Xbox One S Controller
	0x02FD: {}, // Xbox One S Controller (Bluetooth)
	0x02FF: {}, // Xbox Wireless Adapter
	0x0B00: {}, // Xbox Elite Series 2
	0x0B05: {}, // Xbox Elite Series 2 (Bluetooth)
	0x0B12: {}, // Xbox Series X|S Controller
	0x0B13: {}, // Xbox Series X|S Controller (Bluetooth)
	0x0B20: {}, // Xbox Series X|S Controller (Bluetooth LE)
	0x0B22: {}, // Xbox Elite Series 2 (Bluetooth LE)
}

// IsXboxController reports whether h is a Microsoft pad that XInput already
// reports.
func (h HardwareID) IsXboxController() bool {
	if h.Vendor != microsoftVendorID {
		return false
	}
	_, ok := xboxProductIDs[h.Product]
	return ok
}

type padSlot struct {
	connected bool
	prev      input.GamepadState
}

type wheelSlot struct {
	dev    WheelDevice
	name   string
	prev   input.WheelState
	seeded bool
}

// Poller owns every device snapshot. Poll is safe to call from one goroutine
// while the query methods are called from others.
type Poller struct {
	gamepads GamepadReader
	wheels   WheelEnumerator
	sink     EventSink
	exclude  []string

	mu          sync.Mutex
	pads        [input.MaxGamepadSlots]padSlot
	wheelSlots  []*wheelSlot
	initialized bool
	closed      bool
}

// NewPoller builds a poller. Either backend may be nil to disable that family.
func NewPoller(gamepads GamepadReader, wheels WheelEnumerator, sink EventSink, opts PollerOptions) *Poller {
	exclude := opts.ExcludeNames
	if exclude == nil {
		exclude = DefaultExcludeNames
	}
	normalized := make([]string, 0, len(exclude))
	for _, name := range exclude {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			normalized = append(normalized, name)
		}
	}
	return &Poller{
		gamepads: gamepads,
		wheels:   wheels,
		sink:     sink,
		exclude:  normalized,
	}
}

// Init performs the one-time wheel scan. Enumeration failures are logged and
// leave the poller with no wheels. Calling Init again is a no-op.
func (p *Poller) Init() {
	p.mu.Lock()
	if p.initialized || p.closed {
		p.mu.Unlock()
		return
	}
	p.initialized = true
	p.mu.Unlock()

	added := p.RefreshWheels()
	slog.Info("[INFO-DEVICES] device scan complete", "wheels", added)
}

// RefreshWheels enumerates again and starts tracking wheels that appeared
// since the last scan. Handles for wheels already tracked are closed.
// It returns the number of wheels added.
func (p *Poller) RefreshWheels() int {
	if p.wheels == nil {
		return 0
	}
	found, err := p.wheels.EnumerateWheels()
	if err != nil {
		slog.Warn("[WARN-DEVICES] wheel enumeration failed", "error", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	added := 0
	for _, dev := range found {
		if dev == nil {
			continue
		}
		name := dev.Name()
		switch {
		case p.closed:
			closeWheel(dev, "poller closed")
		case p.excluded(name, dev.Hardware()):
			slog.Debug("[DEBUG-DEVICES] skipping excluded wheel", "id", dev.ID(), "name", name, "hardware", dev.Hardware().String())
			closeWheel(dev, "excluded")
		case p.trackedLocked(dev.ID()):
			closeWheel(dev, "already tracked")
		default:
			p.wheelSlots = append(p.wheelSlots, &wheelSlot{dev: dev, name: name})
			slog.Info("[INFO-DEVICES] wheel attached", "id", dev.ID(), "name", name)
			added++
		}
	}
	return added
}

// excluded matches the hardware ID first: winmm names HID devices after the
// generic driver, so the product name is not always available.
func (p *Poller) excluded(name string, hw HardwareID) bool {
	if hw.IsXboxController() {
		return true
	}
	lower := strings.ToLower(name)
	for _, pattern := range p.exclude {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func (p *Poller) trackedLocked(id string) bool {
	return slices.ContainsFunc(p.wheelSlots, func(w *wheelSlot) bool { return w.dev.ID() == id })
}

// Poll runs one tick: sample every device, compute rising edges, and publish
// them once the snapshot lock is released.
func (p *Poller) Poll() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	var events []input.ButtonEvent
	events = p.pollGamepadsLocked(events)
	events = p.pollWheelsLocked(events)
	p.mu.Unlock()

	if p.sink == nil {
		return
	}
	for _, ev := range events {
		p.sink.Publish(ev)
	}
}

func (p *Poller) pollGamepadsLocked(events []input.ButtonEvent) []input.ButtonEvent {
	if p.gamepads == nil {
		return events
	}
	for slot := range p.pads {
		pad := &p.pads[slot]
		cur, err := readGamepad(p.gamepads, slot)
		if err != nil {
			if pad.connected {
				slog.Info("[INFO-DEVICES] gamepad disconnected", "slot", slot, "error", err)
			}
			*pad = padSlot{}
			continue
		}
		if !pad.connected {
			slog.Info("[INFO-DEVICES] gamepad connected", "slot", slot)
			pad.connected = true
			pad.prev = cur
			continue
		}
		events = append(events, edge.Gamepad(slot, pad.prev, cur)...)
		pad.prev = cur
	}
	return events
}

func (p *Poller) pollWheelsLocked(events []input.ButtonEvent) []input.ButtonEvent {
	kept := p.wheelSlots[:0]
	for _, w := range p.wheelSlots {
		cur, err := readWheel(w.dev)
		if err != nil {
			slog.Warn("[WARN-DEVICES] wheel read failed, removing device", "id", w.dev.ID(), "name", w.name, "error", err)
			closeWheel(w.dev, "read failed")
			continue
		}
		if w.seeded {
			events = append(events, edge.Wheel(w.dev.ID(), w.prev, cur)...)
		}
		w.prev = cur.Clone()
		w.seeded = true
		kept = append(kept, w)
	}
	clear(p.wheelSlots[len(kept):])
	p.wheelSlots = kept
	return events
}

func readGamepad(r GamepadReader, slot int) (state input.GamepadState, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("gamepad %d read panicked: %v", slot, rec)
		}
	}()
	return r.ReadGamepad(slot)
}

func readWheel(dev WheelDevice) (state input.WheelState, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("wheel read panicked: %v", rec)
		}
	}()
	return dev.Read()
}

func closeWheel(dev WheelDevice, reason string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("[WARN-DEVICES] wheel close panicked", "id", dev.ID(), "panic", rec)
		}
	}()
	if err := dev.Close(); err != nil {
		slog.Debug("[DEBUG-DEVICES] wheel close failed", "id", dev.ID(), "reason", reason, "error", err)
	}
}

// Run polls every interval on a recovered worker goroutine until ctx is done.
func (p *Poller) Run(ctx context.Context, wg *sync.WaitGroup, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	workerutil.RunPeriodic(ctx, "device-poller", wg, interval, p.Poll, workerutil.RecoveryOptions{
		OnFatal: func(worker string, maxRetries int) {
			slog.Error("[ERROR-DEVICES] device polling stopped", "worker", worker, "maxRetries", maxRetries)
		},
	})
}

// ConnectedGamepads returns the connected XInput slots in ascending order.
func (p *Poller) ConnectedGamepads() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int
	for slot, pad := range p.pads {
		if pad.connected {
			out = append(out, slot)
		}
	}
	return out
}

// ConnectedWheelNames returns the product names of tracked wheels in
// enumeration order.
func (p *Poller) ConnectedWheelNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.wheelSlots))
	for _, w := range p.wheelSlots {
		out = append(out, w.name)
	}
	return out
}

// HasGamepad reports whether any XInput slot is connected.
func (p *Poller) HasGamepad() bool {
	return len(p.ConnectedGamepads()) > 0
}

// HasWheel reports whether any wheel is tracked.
func (p *Poller) HasWheel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.wheelSlots) > 0
}

// Close stops polling and releases every wheel handle. It is idempotent.
func (p *Poller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	wheels := p.wheelSlots
	p.wheelSlots = nil
	p.pads = [input.MaxGamepadSlots]padSlot{}
	p.mu.Unlock()

	for _, w := range wheels {
		closeWheel(w.dev, "shutdown")
	}
}
