// Package game contains the game manager: the single authoritative owner of
// the logical game state. It drains board events through the move detection
// core on one goroutine and fans resulting game events out to subscribers.
package game

import (
	"fmt"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/rules"
)

// EventKind discriminates game events.
type EventKind uint8

const (
	EventNewGame EventKind = iota
	EventWhiteTurn
	EventBlackTurn
	EventTerminated
	EventPieceLifted
	EventPiecePlaced
	EventMoveMade
	EventTakeback
	EventDrawOffered
)

func (k EventKind) String() string {
	switch k {
	case EventNewGame:
		return "new-game"
	case EventWhiteTurn:
		return "white-turn"
	case EventBlackTurn:
		return "black-turn"
	case EventTerminated:
		return "terminated"
	case EventPieceLifted:
		return "piece-lifted"
	case EventPiecePlaced:
		return "piece-placed"
	case EventMoveMade:
		return "move-made"
	case EventTakeback:
		return "takeback"
	case EventDrawOffered:
		return "draw-offered"
	default:
		return "?"
	}
}

// Event is a game event. The populated fields depend on the kind: Square for
// piece events, Move and Index for moves, Outcome for termination, Color for
// the offering side of a draw offer. Pos is the position after the event for
// kinds that change it.
type Event struct {
	Kind    EventKind
	Square  core.Square
	Move    core.Move
	Index   int
	Outcome rules.Outcome
	Color   core.Color
	Pos     *rules.Position
}

func (e Event) String() string {
	switch e.Kind {
	case EventPieceLifted, EventPiecePlaced:
		return fmt.Sprintf("%v(%v)", e.Kind, e.Square)
	case EventMoveMade:
		return fmt.Sprintf("%v(%v)", e.Kind, e.Move)
	case EventTerminated:
		return fmt.Sprintf("%v(%v)", e.Kind, e.Outcome)
	case EventDrawOffered:
		return fmt.Sprintf("%v(%v)", e.Kind, e.Color)
	default:
		return e.Kind.String()
	}
}

// TurnEvent returns the turn event for the given color.
func TurnEvent(c core.Color) EventKind {
	if c == core.White {
		return EventWhiteTurn
	}
	return EventBlackTurn
}
