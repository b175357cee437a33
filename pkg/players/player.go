// Package players contains the move-producer abstraction that unifies
// human-at-the-board, local engine, Hand+Brain and remote opponents, plus the
// manager that routes turns and board events between two of them.
package players

import (
	"context"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/uciengine"
	"github.com/seekerror/stdlib/pkg/lang"
)

// Type discriminates player variants.
type Type uint8

const (
	Human Type = iota
	Engine
	HandBrain
	Lichess
)

func (t Type) String() string {
	switch t {
	case Human:
		return "human"
	case Engine:
		return "engine"
	case HandBrain:
		return "hand+brain"
	case Lichess:
		return "lichess"
	default:
		return "?"
	}
}

// State is a player's lifecycle state.
type State uint8

const (
	Idle State = iota
	Ready
	Thinking
	Done
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Thinking:
		return "thinking"
	case Done:
		return "done"
	case Error:
		return "error"
	default:
		return "?"
	}
}

// PieceEventKind discriminates the board events routed to the player to move.
type PieceEventKind uint8

const (
	PieceLifted PieceEventKind = iota
	PiecePlaced
)

// UCI is the engine surface players depend on, satisfied by
// *uciengine.Handle.
type UCI interface {
	Play(ctx context.Context, fen string, limit uciengine.Limit, rootMoves ...core.Move) (core.Move, error)
	Configure(opts uciengine.Options)
	Release(ctx context.Context)
}

// Moves is how players feed produced moves back into the game.
type Moves interface {
	// ComputerMove requires the user to physically execute the move,
	// LED-guided; the move applies when executed.
	ComputerMove(m core.Move)
	// ApplyRemoteMove applies the move directly, without the board driving.
	ApplyRemoteMove(m core.Move)
	// RestrictMoves limits which legal moves the board accepts; nil lifts it.
	RestrictMoves(f func(m core.Move) bool)
}

// Player produces moves for one color. RequestMove is asynchronous: the
// player later submits through its Moves sink, or goes to Error. Transitions
// are single-threaded from the player's perspective; concurrent computation
// marshals results back through the player's own path.
type Player interface {
	Name() string
	Type() Type
	State() State

	// RequestMove solicits a move for the side to move in pos. At most one
	// request is outstanding per player; the manager enforces this.
	RequestMove(ctx context.Context, pos *rules.Position)
	// CancelRequest withdraws an outstanding request. In-flight computation
	// completes but its result is discarded.
	CancelRequest()

	// PieceEvent delivers a board event while this player is to move.
	PieceEvent(ctx context.Context, kind PieceEventKind, sq core.Square, pos *rules.Position)

	// MoveMade, Takeback and NewGame are informational, delivered to both
	// players regardless of turn.
	MoveMade(ctx context.Context, m core.Move, pos *rules.Position)
	Takeback(ctx context.Context, pos *rules.Position)
	NewGame(ctx context.Context)

	// CorrectionExit restores the player's LED/status state after correction
	// mode ends.
	CorrectionExit(ctx context.Context, pos *rules.Position)

	// Hint optionally suggests a move for the human driving this player.
	Hint(ctx context.Context, pos *rules.Position) lang.Optional[core.Move]

	// Close releases resources, e.g. engine handle references.
	Close(ctx context.Context)
}
