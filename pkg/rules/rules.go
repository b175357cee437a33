// Package rules is a facade over the chess rules library. The rest of the
// runtime never reaches into the library directly, which keeps the move
// detection core testable against alternate rule sets.
package rules

import (
	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/seekerror/stdlib/pkg/lang"
)

// Initial is the standard starting position in FEN notation.
const Initial = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Reason describes why a game ended.
type Reason uint8

const (
	NoReason Reason = iota
	Checkmate
	Stalemate
	Draw
	Resignation
)

func (r Reason) String() string {
	switch r {
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	case Draw:
		return "draw"
	case Resignation:
		return "resignation"
	default:
		return "none"
	}
}

// Outcome is the result of a finished game. Winner is meaningful for
// Checkmate and Resignation only.
type Outcome struct {
	Reason Reason
	Winner core.Color
}

func (o Outcome) String() string {
	if o.Reason == Checkmate || o.Reason == Resignation {
		if o.Winner == core.White {
			return "1-0"
		}
		return "0-1"
	}
	return "1/2-1/2"
}

// Placement is a piece on a square.
type Placement struct {
	Square core.Square
	Color  core.Color
	Piece  core.PieceType
}

// Rules provides move generation, legality and position bookkeeping. Position
// values are immutable snapshots; Apply returns a new position.
type Rules interface {
	// FromFEN decodes a position from FEN notation.
	FromFEN(fen string) (*Position, error)
	// FEN encodes the position in FEN notation.
	FEN(pos *Position) string
	// LegalMoves returns all legal moves in the position.
	LegalMoves(pos *Position) []core.Move
	// IsLegal reports whether the move is legal in the position.
	IsLegal(pos *Position, m core.Move) bool
	// Apply plays a legal move and returns the resulting position.
	Apply(pos *Position, m core.Move) (*Position, error)
	// PieceAt returns the piece on the given square, if any.
	PieceAt(pos *Position, sq core.Square) (Placement, bool)
	// ColorToMove returns the side to move.
	ColorToMove(pos *Position) core.Color
	// Outcome returns the game result, if the position is terminal.
	Outcome(pos *Position) lang.Optional[Outcome]
	// NeedsPromotion reports whether moving from-to requires a promotion choice.
	NeedsPromotion(pos *Position, from, to core.Square) bool
}

// Occupancy derives the physical occupancy implied by a position.
func Occupancy(r Rules, pos *Position) core.Occupancy {
	var ret core.Occupancy
	for sq := core.ZeroSquare; sq < core.NumSquares; sq++ {
		if _, ok := r.PieceAt(pos, sq); ok {
			ret = ret.Set(sq)
		}
	}
	return ret
}

// BoardText encodes the position as 64 characters, rank 8 first, file a to h
// within each rank, '.' for empty and the algebraic piece letter otherwise
// (uppercase = white). This is the board-state layout of the Millennium wire
// protocol.
func BoardText(r Rules, pos *Position) string {
	buf := make([]byte, 0, 64)
	for rank := 7; rank >= 0; rank-- {
		for file := 0; file < 8; file++ {
			if p, ok := r.PieceAt(pos, core.NewSquare(file, rank)); ok {
				buf = append(buf, p.Piece.Letter(p.Color))
			} else {
				buf = append(buf, '.')
			}
		}
	}
	return string(buf)
}
