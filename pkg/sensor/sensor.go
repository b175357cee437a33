// Package sensor contains the board I/O layer: it turns the vendor sensor mat
// into a totally-ordered stream of piece and key events, mirrors the physical
// occupancy, and accepts LED and sound commands.
package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/core"
)

// EventKind discriminates sensor events.
type EventKind uint8

const (
	// EventLift reports a piece lifted from a square.
	EventLift EventKind = iota
	// EventPlace reports a piece placed on a square.
	EventPlace
	// EventKey reports a key press under the display.
	EventKey
	// EventResync reports a gap in the sensor stream. The consumer must
	// re-read the full occupancy before trusting further events.
	EventResync
)

func (k EventKind) String() string {
	switch k {
	case EventLift:
		return "lift"
	case EventPlace:
		return "place"
	case EventKey:
		return "key"
	case EventResync:
		return "resync"
	default:
		return "?"
	}
}

// Key identifies the board keys under the display.
type Key uint8

const (
	KeyBack Key = iota
	KeyTick
	KeyUp
	KeyDown
	KeyHelp
	KeyPlay
)

// Event is a single sensor event. Time is monotonic since the driver opened.
type Event struct {
	Kind   EventKind
	Square core.Square
	Key    Key
	Time   time.Duration
}

func (e Event) String() string {
	switch e.Kind {
	case EventLift, EventPlace:
		return fmt.Sprintf("%v(%v)", e.Kind, e.Square)
	case EventKey:
		return fmt.Sprintf("key(%v)", e.Key)
	default:
		return e.Kind.String()
	}
}

// Sound identifies the audible cues of the board.
type Sound uint8

const (
	SoundGeneral Sound = iota
	SoundWrongMove
)

// PatternKind discriminates LED patterns.
type PatternKind uint8

const (
	// PatternSquares lights each listed square individually.
	PatternSquares PatternKind = iota
	// PatternRay lights the from/to squares of a move.
	PatternRay
)

// Pattern is an LED command. Intensity is 0-3.
type Pattern struct {
	Kind      PatternKind
	Squares   []core.Square
	From, To  core.Square
	Intensity uint8
}

// LightSquares returns a pattern lighting the given squares.
func LightSquares(intensity uint8, squares ...core.Square) Pattern {
	return Pattern{Kind: PatternSquares, Squares: squares, Intensity: intensity}
}

// LightRay returns a pattern lighting the from/to squares of a move.
func LightRay(from, to core.Square, intensity uint8) Pattern {
	return Pattern{Kind: PatternRay, From: from, To: to, Intensity: intensity}
}

// Driver is the vendor-specific sensor mat driver. Implementations frame the
// raw transport and deliver events exactly once in order.
type Driver interface {
	// Events returns the driver's event stream. Closed when the driver closes.
	Events() <-chan Event
	// Scan reads the full physical occupancy from the mat.
	Scan(ctx context.Context) (core.Occupancy, error)
	// SetLEDs applies an LED pattern.
	SetLEDs(ctx context.Context, p Pattern) error
	// LEDsOff extinguishes all LEDs.
	LEDsOff(ctx context.Context) error
	// Beep plays a sound cue.
	Beep(ctx context.Context, s Sound) error
	// Close releases the transport.
	Close() error
}
