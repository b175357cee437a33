// Package assist contains the optional coach: given a position and a color it
// produces suggestions (a piece type, a move, highlighted squares, an
// evaluation or text) for the human to-move. Decoupled from move production.
package assist

import (
	"context"
	"fmt"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/rules"
)

// SuggestionKind discriminates suggestions.
type SuggestionKind uint8

const (
	// SuggestPieceType names a piece type and the squares holding it.
	SuggestPieceType SuggestionKind = iota
	// SuggestMove proposes a concrete move.
	SuggestMove
	// SuggestSquares highlights squares. An empty set signals "clear".
	SuggestSquares
	// SuggestEvaluation reports a centipawn evaluation.
	SuggestEvaluation
	// SuggestText is free-form advice.
	SuggestText
)

// Suggestion is one piece of advice from an assistant.
type Suggestion struct {
	Kind       SuggestionKind
	Piece      core.PieceType
	Squares    []core.Square
	Move       core.Move
	Confidence float64
	CP         int
	Text       string
}

// PieceSuggestion names a piece type and the squares holding it.
func PieceSuggestion(p core.PieceType, squares []core.Square) Suggestion {
	return Suggestion{Kind: SuggestPieceType, Piece: p, Squares: squares}
}

// MoveSuggestion proposes a concrete move.
func MoveSuggestion(m core.Move, confidence float64) Suggestion {
	return Suggestion{Kind: SuggestMove, Move: m, Squares: []core.Square{m.From, m.To}, Confidence: confidence}
}

// Highlight highlights squares.
func Highlight(squares ...core.Square) Suggestion {
	return Suggestion{Kind: SuggestSquares, Squares: squares}
}

// Clear signals that any shown suggestion should be removed.
func Clear() Suggestion {
	return Highlight()
}

// Evaluation reports a centipawn score, positive meaning white is better.
func Evaluation(cp int) Suggestion {
	return Suggestion{Kind: SuggestEvaluation, CP: cp}
}

// Advice is free-form text.
func Advice(text string) Suggestion {
	return Suggestion{Kind: SuggestText, Text: text}
}

func (s Suggestion) String() string {
	switch s.Kind {
	case SuggestPieceType:
		return fmt.Sprintf("piece(%v %v)", s.Piece, s.Squares)
	case SuggestMove:
		return fmt.Sprintf("move(%v)", s.Move)
	case SuggestSquares:
		return fmt.Sprintf("squares(%v)", s.Squares)
	case SuggestEvaluation:
		return fmt.Sprintf("eval(%v)", s.CP)
	default:
		return fmt.Sprintf("text(%v)", s.Text)
	}
}

// Callback receives suggestions asynchronously.
type Callback func(ctx context.Context, s Suggestion)

// Assistant computes suggestions for the side to move. Implementations
// deliver results through the callback from their own goroutine.
type Assistant interface {
	Name() string
	// AutoSuggest reports whether the assistant runs on every turn, as
	// opposed to on request only.
	AutoSuggest() bool
	// Suggest computes a suggestion for the given color in the position.
	// Asynchronous; if the color is not to move, any shown suggestion is
	// cleared instead.
	Suggest(ctx context.Context, pos *rules.Position, c core.Color)
	// ClearSuggestion asks listeners to drop any shown suggestion.
	ClearSuggestion(ctx context.Context)
	// Close releases resources.
	Close(ctx context.Context)
}
