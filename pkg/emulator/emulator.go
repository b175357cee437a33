// Package emulator impersonates proprietary chessboard protocols (Millennium
// ChessLink, DGT Pegasus, Chessnut Air) to third-party apps, translating
// between on-wire frames and the internal game state. The bridge auto-detects
// which protocol the connected app speaks and latches onto it.
package emulator

import (
	"context"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/game"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/sensor"
)

// Sender transmits an outbound frame to the connected app.
type Sender func(ctx context.Context, data []byte)

// Surface is the emulator's access to the physical board: apps drive LEDs and
// sounds through their protocol. May be nil when no board is attached.
type Surface interface {
	SetLEDs(ctx context.Context, p sensor.Pattern)
	LEDsOff(ctx context.Context)
	Beep(ctx context.Context, s sensor.Sound)
}

// Source provides the game state the emulators report to apps.
type Source interface {
	Position() *rules.Position
}

// Emulator is one protocol persona. Every emulator implements the full
// capability surface; the noopEvents base provides default no-ops.
type Emulator interface {
	Name() string

	// ParseByte consumes one inbound wire byte. Returns true when a complete,
	// valid frame was recognised; the bridge latches on the first true.
	ParseByte(ctx context.Context, b byte) bool

	// ManagerEvent, ManagerMove, ManagerTakeback and ManagerKey mirror game
	// progress out to the app.
	ManagerEvent(ctx context.Context, evt game.Event)
	ManagerMove(ctx context.Context, m core.Move, pos *rules.Position)
	ManagerTakeback(ctx context.Context, pos *rules.Position)
	ManagerKey(ctx context.Context, k sensor.Key)

	// Reset clears parser and protocol state for a fresh connection.
	Reset(ctx context.Context)
}

// noopEvents provides default no-op manager handlers.
type noopEvents struct{}

func (noopEvents) ManagerEvent(ctx context.Context, evt game.Event)                 {}
func (noopEvents) ManagerMove(ctx context.Context, m core.Move, p *rules.Position) {}
func (noopEvents) ManagerTakeback(ctx context.Context, p *rules.Position)          {}
func (noopEvents) ManagerKey(ctx context.Context, k sensor.Key)                    {}
