package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/notnil/chess"
	"github.com/seekerror/stdlib/pkg/lang"
)

// Position is an immutable position snapshot. The zero value is not usable;
// obtain positions from Rules.FromFEN or Rules.Apply.
type Position struct {
	inner *chess.Position
}

func (p *Position) String() string {
	return p.inner.String()
}

// standard implements Rules on top of the notnil/chess library.
type standard struct{}

// NewStandard returns the standard chess rules.
func NewStandard() Rules {
	return standard{}
}

func (standard) FromFEN(fen string) (*Position, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("invalid FEN '%v': %w", fen, err)
	}
	g := chess.NewGame(opt, chess.UseNotation(chess.UCINotation{}))
	return &Position{inner: g.Position()}, nil
}

func (standard) FEN(pos *Position) string {
	return pos.inner.String()
}

func (standard) LegalMoves(pos *Position) []core.Move {
	valid := pos.inner.ValidMoves()
	ret := make([]core.Move, 0, len(valid))
	for _, m := range valid {
		ret = append(ret, fromChessMove(m))
	}
	return ret
}

func (s standard) IsLegal(pos *Position, m core.Move) bool {
	for _, valid := range pos.inner.ValidMoves() {
		if fromChessMove(valid).Equals(m) {
			return true
		}
	}
	return false
}

func (s standard) Apply(pos *Position, m core.Move) (*Position, error) {
	if !s.IsLegal(pos, m) {
		return nil, fmt.Errorf("illegal move %v in '%v'", m, pos.inner.String())
	}
	cm, err := chess.UCINotation{}.Decode(pos.inner, m.String())
	if err != nil {
		return nil, fmt.Errorf("invalid move %v: %w", m, err)
	}
	return &Position{inner: pos.inner.Update(cm)}, nil
}

func (standard) PieceAt(pos *Position, sq core.Square) (Placement, bool) {
	p := pos.inner.Board().Piece(chess.Square(sq))
	if p == chess.NoPiece {
		return Placement{}, false
	}
	return Placement{Square: sq, Color: fromChessColor(p.Color()), Piece: fromChessPieceType(p.Type())}, true
}

func (standard) ColorToMove(pos *Position) core.Color {
	return fromChessColor(pos.inner.Turn())
}

func (standard) Outcome(pos *Position) lang.Optional[Outcome] {
	switch pos.inner.Status() {
	case chess.Checkmate:
		return lang.Some(Outcome{Reason: Checkmate, Winner: fromChessColor(pos.inner.Turn()).Opponent()})
	case chess.Stalemate:
		return lang.Some(Outcome{Reason: Stalemate})
	}

	// The fifty-move rule is not position-terminal in the library; adjudicate
	// it from the halfmove clock so over-the-board games do finish.
	if halfMoveClock(pos.inner.String()) >= 100 {
		return lang.Some(Outcome{Reason: Draw})
	}
	return lang.Optional[Outcome]{}
}

func (s standard) NeedsPromotion(pos *Position, from, to core.Square) bool {
	p, ok := s.PieceAt(pos, from)
	if !ok || p.Piece != core.Pawn || p.Color != s.ColorToMove(pos) {
		return false
	}
	return (p.Color == core.White && to.Rank() == 7) || (p.Color == core.Black && to.Rank() == 0)
}

func halfMoveClock(fen string) int {
	parts := strings.Split(fen, " ")
	if len(parts) != 6 {
		return 0
	}
	n, err := strconv.Atoi(parts[4])
	if err != nil {
		return 0
	}
	return n
}

func fromChessMove(m *chess.Move) core.Move {
	ret := core.Move{From: core.Square(m.S1()), To: core.Square(m.S2())}
	if m.Promo() != chess.NoPieceType {
		ret.Promotion = fromChessPieceType(m.Promo())
	}
	return ret
}

func fromChessColor(c chess.Color) core.Color {
	if c == chess.Black {
		return core.Black
	}
	return core.White
}

func fromChessPieceType(t chess.PieceType) core.PieceType {
	switch t {
	case chess.Pawn:
		return core.Pawn
	case chess.Knight:
		return core.Knight
	case chess.Bishop:
		return core.Bishop
	case chess.Rook:
		return core.Rook
	case chess.Queen:
		return core.Queen
	case chess.King:
		return core.King
	default:
		return core.NoPiece
	}
}
