package emulator

import (
	"context"
	"sync"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/game"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/sensor"
	"github.com/seekerror/logw"
)

// Protocol identifies the latched protocol. A one-way latch: once known it
// only changes on a transport reset.
type Protocol uint8

const (
	Unknown Protocol = iota
	ProtocolMillennium
	ProtocolPegasus
	ProtocolChessnut
)

func (p Protocol) String() string {
	switch p {
	case ProtocolMillennium:
		return "millennium"
	case ProtocolPegasus:
		return "pegasus"
	case ProtocolChessnut:
		return "chessnut"
	default:
		return "unknown"
	}
}

// Bridge feeds inbound bytes to the emulators until one recognises a complete
// frame, then latches onto it and frees the rest. Before the latch, outbound
// game events are broadcast to every live emulator so whichever is active
// produces the correct initial responses.
type Bridge struct {
	rules rules.Rules
	src   Source
	send  Sender
	leds  Surface
	hint  Protocol

	mu        sync.Mutex
	protocol  Protocol
	emulators []Emulator
	latched   Emulator
	onLatch   func(ctx context.Context, p Protocol)
}

// BridgeOption configures a bridge.
type BridgeOption func(*Bridge)

// WithHint tries the hinted protocol first during auto-detection, e.g. from
// the BLE service UUID the app connected to. The hint is not trusted: actual
// data decides.
func WithHint(p Protocol) BridgeOption {
	return func(b *Bridge) {
		b.hint = p
	}
}

// WithLatchCallback notifies when a protocol latches.
func WithLatchCallback(fn func(ctx context.Context, p Protocol)) BridgeOption {
	return func(b *Bridge) {
		b.onLatch = fn
	}
}

// NewBridge returns a bridge with all three emulators live.
func NewBridge(r rules.Rules, src Source, send Sender, leds Surface, opts ...BridgeOption) *Bridge {
	b := &Bridge{rules: r, src: src, send: send, leds: leds}
	for _, fn := range opts {
		fn(b)
	}
	b.instantiate()
	return b
}

// Protocol returns the latched protocol, or Unknown.
func (b *Bridge) Protocol() Protocol {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.protocol
}

// OnByte feeds one inbound byte. Returns true if some emulator consumed a
// complete frame.
func (b *Bridge) OnByte(ctx context.Context, v byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.latched != nil {
		return b.latched.ParseByte(ctx, v)
	}

	for _, e := range b.order() {
		if !e.ParseByte(ctx, v) {
			continue
		}

		b.latched = e
		b.protocol = protocolOf(e)
		b.emulators = []Emulator{e}
		logw.Infof(ctx, "Protocol latched: %v", b.protocol)

		if b.onLatch != nil {
			fn := b.onLatch
			p := b.protocol
			go fn(ctx, p)
		}
		return true
	}
	return false
}

// OnDisconnect resets the bridge to Unknown with fresh emulators.
func (b *Bridge) OnDisconnect(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.protocol = Unknown
	b.latched = nil
	b.instantiate()
	logw.Infof(ctx, "Bridge reset: protocol auto-detection restarted")
}

// ManagerEvent mirrors a game event: to the latched emulator, or to all while
// undetected.
func (b *Bridge) ManagerEvent(ctx context.Context, evt game.Event) {
	for _, e := range b.live() {
		e.ManagerEvent(ctx, evt)
	}
}

// ManagerMove mirrors a confirmed move.
func (b *Bridge) ManagerMove(ctx context.Context, m core.Move, pos *rules.Position) {
	for _, e := range b.live() {
		e.ManagerMove(ctx, m, pos)
	}
}

// ManagerTakeback mirrors a takeback.
func (b *Bridge) ManagerTakeback(ctx context.Context, pos *rules.Position) {
	for _, e := range b.live() {
		e.ManagerTakeback(ctx, pos)
	}
}

// ManagerKey mirrors a key press.
func (b *Bridge) ManagerKey(ctx context.Context, k sensor.Key) {
	for _, e := range b.live() {
		e.ManagerKey(ctx, k)
	}
}

func (b *Bridge) live() []Emulator {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Emulator(nil), b.emulators...)
}

func (b *Bridge) instantiate() {
	b.emulators = []Emulator{
		NewMillennium(b.rules, b.src, b.send, b.leds),
		NewPegasus(b.rules, b.src, b.send, b.leds),
		NewChessnut(b.rules, b.src, b.send, b.leds),
	}
}

// order returns the emulators in detection priority: the hinted protocol
// first, then the default Millennium, Pegasus, Chessnut order.
func (b *Bridge) order() []Emulator {
	if b.hint == Unknown {
		return b.emulators
	}

	ret := make([]Emulator, 0, len(b.emulators))
	for _, e := range b.emulators {
		if protocolOf(e) == b.hint {
			ret = append(ret, e)
		}
	}
	for _, e := range b.emulators {
		if protocolOf(e) != b.hint {
			ret = append(ret, e)
		}
	}
	return ret
}

func protocolOf(e Emulator) Protocol {
	switch e.(type) {
	case *Millennium:
		return ProtocolMillennium
	case *Pegasus:
		return ProtocolPegasus
	case *Chessnut:
		return ProtocolChessnut
	default:
		return Unknown
	}
}
