package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardMirrorsOccupancy(t *testing.T) {
	ctx := context.Background()

	sim := NewSim(core.StartingOccupancy)
	board, err := Open(ctx, sim)
	require.NoError(t, err)
	defer board.Close()

	assert.Equal(t, core.StartingOccupancy, board.Occupancy())

	sim.Lift(core.E2)
	evt := <-board.Events()
	assert.Equal(t, EventLift, evt.Kind)
	assert.Equal(t, core.E2, evt.Square)
	assert.False(t, board.Occupancy().IsSet(core.E2))

	sim.Place(core.E4)
	evt = <-board.Events()
	assert.Equal(t, EventPlace, evt.Kind)
	assert.True(t, board.Occupancy().IsSet(core.E4))
}

func TestBoardEventOrder(t *testing.T) {
	ctx := context.Background()

	sim := NewSim(core.StartingOccupancy)
	board, err := Open(ctx, sim)
	require.NoError(t, err)
	defer board.Close()

	sim.Lift(core.G1)
	sim.Place(core.F3)
	sim.Press(KeyTick)

	expected := []EventKind{EventLift, EventPlace, EventKey}
	for _, kind := range expected {
		select {
		case evt := <-board.Events():
			assert.Equal(t, kind, evt.Kind)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %v", kind)
		}
	}
}

func TestBoardCommands(t *testing.T) {
	ctx := context.Background()

	sim := NewSim(core.StartingOccupancy)
	board, err := Open(ctx, sim)
	require.NoError(t, err)
	defer board.Close()

	board.SetLEDs(ctx, LightRay(core.E2, core.E4, 3))
	p, ok := sim.Pattern()
	require.True(t, ok)
	assert.Equal(t, PatternRay, p.Kind)

	board.LEDsOff(ctx)
	_, ok = sim.Pattern()
	assert.False(t, ok)

	board.Beep(ctx, SoundWrongMove)
	assert.Equal(t, []Sound{SoundWrongMove}, sim.Sounds())
	assert.False(t, board.Degraded())
}

func TestBoardRescan(t *testing.T) {
	ctx := context.Background()

	sim := NewSim(core.StartingOccupancy)
	board, err := Open(ctx, sim)
	require.NoError(t, err)
	defer board.Close()

	moved := core.StartingOccupancy.Clear(core.E2).Set(core.E4)
	sim.SetOccupancy(moved)

	occ, err := board.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, moved, occ)
	assert.Equal(t, moved, board.Occupancy())
}

func TestOccupancyFromPlacement(t *testing.T) {
	tests := []struct {
		placement string
		expected  core.Occupancy
	}{
		{"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR", core.StartingOccupancy},
		{"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR",
			core.StartingOccupancy.Clear(core.E2).Set(core.E4)},
		{"8/8/8/8/8/8/8/8", core.EmptyOccupancy},
		// A full FEN is tolerated; trailing fields are ignored.
		{"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", core.StartingOccupancy},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.expected, occupancyFromPlacement(tt.placement), "placement: %v", tt.placement)
	}
}
