package rules_test

import (
	"testing"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialPosition(t *testing.T) {
	r := rules.NewStandard()
	pos, err := r.FromFEN(rules.Initial)
	require.NoError(t, err)

	assert.Equal(t, rules.Initial, r.FEN(pos))
	assert.Equal(t, core.White, r.ColorToMove(pos))
	assert.Len(t, r.LegalMoves(pos), 20)
	assert.Equal(t, core.StartingOccupancy, rules.Occupancy(r, pos))

	p, ok := r.PieceAt(pos, core.E1)
	require.True(t, ok)
	assert.Equal(t, core.King, p.Piece)
	assert.Equal(t, core.White, p.Color)

	_, ok = r.PieceAt(pos, core.E4)
	assert.False(t, ok)
}

func TestApply(t *testing.T) {
	r := rules.NewStandard()
	pos, err := r.FromFEN(rules.Initial)
	require.NoError(t, err)

	m := core.Move{From: core.E2, To: core.E4}
	require.True(t, r.IsLegal(pos, m))

	next, err := r.Apply(pos, m)
	require.NoError(t, err)
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1", r.FEN(next))
	assert.Equal(t, core.Black, r.ColorToMove(next))

	// The original position is untouched.
	assert.Equal(t, rules.Initial, r.FEN(pos))

	_, err = r.Apply(pos, core.Move{From: core.E2, To: core.E5})
	assert.Error(t, err)
}

func TestCastlingOccupancy(t *testing.T) {
	r := rules.NewStandard()
	pos, err := r.FromFEN("r1bqk1nr/pppp1ppp/2n5/2b1p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 4")
	require.NoError(t, err)

	next, err := r.Apply(pos, core.Move{From: core.E1, To: core.G1})
	require.NoError(t, err)

	occ := rules.Occupancy(r, next)
	assert.True(t, occ.IsSet(core.G1))
	assert.True(t, occ.IsSet(core.F1))
	assert.False(t, occ.IsSet(core.E1))
	assert.False(t, occ.IsSet(core.H1))
}

func TestOutcome(t *testing.T) {
	r := rules.NewStandard()

	pos, err := r.FromFEN(rules.Initial)
	require.NoError(t, err)
	_, ok := r.Outcome(pos).V()
	assert.False(t, ok)

	// Fool's mate.
	mate, err := r.FromFEN("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	require.NoError(t, err)
	o, ok := r.Outcome(mate).V()
	require.True(t, ok)
	assert.Equal(t, rules.Checkmate, o.Reason)
	assert.Equal(t, core.Black, o.Winner)
	assert.Equal(t, "0-1", o.String())

	// Stalemate.
	stale, err := r.FromFEN("k7/8/1Q6/8/8/8/8/7K b - - 0 1")
	require.NoError(t, err)
	o, ok = r.Outcome(stale).V()
	require.True(t, ok)
	assert.Equal(t, rules.Stalemate, o.Reason)

	// Fifty-move rule.
	dry, err := r.FromFEN("k7/8/8/8/8/8/8/1R5K w - - 100 80")
	require.NoError(t, err)
	o, ok = r.Outcome(dry).V()
	require.True(t, ok)
	assert.Equal(t, rules.Draw, o.Reason)
}

func TestNeedsPromotion(t *testing.T) {
	r := rules.NewStandard()
	pos, err := r.FromFEN("8/4P2k/8/8/8/8/4p3/K7 w - - 0 1")
	require.NoError(t, err)

	assert.True(t, r.NeedsPromotion(pos, core.E7, core.E8))
	assert.False(t, r.NeedsPromotion(pos, core.E2, core.E1)) // black pawn, white to move
	assert.False(t, r.NeedsPromotion(pos, core.A1, core.A2))
}

func TestBoardText(t *testing.T) {
	r := rules.NewStandard()
	pos, err := r.FromFEN(rules.Initial)
	require.NoError(t, err)

	text := rules.BoardText(r, pos)
	require.Len(t, text, 64)
	assert.Equal(t, "rnbqkbnr", text[:8])
	assert.Equal(t, "pppppppp", text[8:16])
	assert.Equal(t, "........", text[16:24])
	assert.Equal(t, "PPPPPPPP", text[48:56])
	assert.Equal(t, "RNBQKBNR", text[56:])
}
