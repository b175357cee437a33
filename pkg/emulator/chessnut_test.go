package emulator

import (
	"context"
	"testing"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChessnut(t *testing.T) (*Chessnut, *wire, *surface) {
	r := rules.NewStandard()
	pos, err := r.FromFEN(rules.Initial)
	require.NoError(t, err)

	w := &wire{}
	s := &surface{}
	return NewChessnut(r, &source{pos: pos}, w.send, s), w, s
}

func feedChessnut(ctx context.Context, e Emulator, data []byte) bool {
	ret := false
	for _, b := range data {
		if e.ParseByte(ctx, b) {
			ret = true
		}
	}
	return ret
}

func TestChessnutEnableReporting(t *testing.T) {
	ctx := context.Background()
	e, w, _ := newChessnut(t)

	require.True(t, feedChessnut(ctx, e, []byte{chessnutEnableReporting, 0x01, 0x01}))
	require.Len(t, w.frames, 2)

	assert.Equal(t, []byte{chessnutAck, 0x01, 0x00}, w.frames[0])

	frame := w.frames[1]
	require.Len(t, frame, 38)
	assert.Equal(t, byte(chessnutBoardHeader1), frame[0])
	assert.Equal(t, byte(chessnutBoardHeader2), frame[1])

	// Rank 8 first, two squares per byte from file h: h8=black rook (8) in
	// the low nibble, g8=black knight (5) in the high nibble.
	assert.Equal(t, byte(0x58), frame[2])
	// f8=black bishop (3), e8=black king (2).
	assert.Equal(t, byte(0x23), frame[3])
	// Rank 1 last: h1=white rook (6), g1=white knight (10).
	assert.Equal(t, byte(0xa6), frame[30])
	// b1=white knight (10), a1=white rook (6).
	assert.Equal(t, byte(0x6a), frame[33])
	// Empty middle ranks.
	assert.Equal(t, byte(0x00), frame[10])
	// Trailing status bytes.
	assert.Equal(t, []byte{0, 0, 0, 0}, frame[34:])
}

func TestChessnutBattery(t *testing.T) {
	ctx := context.Background()
	e, w, _ := newChessnut(t)

	require.True(t, feedChessnut(ctx, e, []byte{chessnutBattery, 0x01, 0x00}))
	require.Len(t, w.frames, 1)
	assert.Equal(t, []byte{chessnutBatteryResp, 0x02, 100}, w.frames[0])
}

func TestChessnutLeds(t *testing.T) {
	ctx := context.Background()
	e, _, s := newChessnut(t)

	// Rank 8 first, bit 7 = file a. Light e2 and e4.
	payload := make([]byte, 8)
	payload[6] = 0x08 // rank 2, file e
	payload[4] = 0x08 // rank 4, file e

	require.True(t, feedChessnut(ctx, e, append([]byte{chessnutLeds, 0x08}, payload...)))

	require.Len(t, s.patterns, 1)
	assert.Equal(t, sensor.PatternSquares, s.patterns[0].Kind)
	assert.ElementsMatch(t, []core.Square{core.E2, core.E4}, s.patterns[0].Squares)
}

func TestChessnutReportsOnMove(t *testing.T) {
	ctx := context.Background()
	e, w, _ := newChessnut(t)

	// Nothing is notified until reporting is enabled.
	e.ManagerMove(ctx, core.Move{From: core.E2, To: core.E4}, nil)
	assert.Empty(t, w.frames)

	require.True(t, feedChessnut(ctx, e, []byte{chessnutEnableReporting, 0x01, 0x01}))
	w.frames = nil

	e.ManagerMove(ctx, core.Move{From: core.E2, To: core.E4}, nil)
	require.Len(t, w.frames, 1)
	assert.Len(t, w.frames[0], 38)
}
