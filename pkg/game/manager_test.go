package game_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/game"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/sensor"
	"github.com/adrian-dybwad/centaur/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures subscriber callbacks.
type recorder struct {
	mu     sync.Mutex
	kinds  []game.EventKind
	moves  []core.Move
	keys   []sensor.Key
	draws  []core.Color
	resets int
}

func (r *recorder) callbacks() game.Callbacks {
	return game.Callbacks{
		Event: func(ctx context.Context, evt game.Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.kinds = append(r.kinds, evt.Kind)
			if evt.Kind == game.EventMoveMade {
				r.moves = append(r.moves, evt.Move)
			}
			if evt.Kind == game.EventDrawOffered {
				r.draws = append(r.draws, evt.Color)
			}
		},
		Key: func(ctx context.Context, k sensor.Key) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.keys = append(r.keys, k)
		},
	}
}

func (r *recorder) snapshot() []game.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]game.EventKind(nil), r.kinds...)
}

func (r *recorder) lastMoves() []core.Move {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Move(nil), r.moves...)
}

func newManager(t *testing.T) (*game.Manager, *sensor.Sim, *recorder) {
	ctx := context.Background()

	sim := sensor.NewSim(core.StartingOccupancy)
	board, err := sensor.Open(ctx, sim)
	require.NoError(t, err)
	t.Cleanup(func() { board.Close() })

	m, err := game.New(ctx, rules.NewStandard(), board, nil)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	rec := &recorder{}
	m.Subscribe(rec.callbacks())
	return m, sim, rec
}

func contains(kinds []game.EventKind, k game.EventKind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}

func TestMoveEventOrdering(t *testing.T) {
	m, sim, rec := newManager(t)

	sim.Move(core.E2, core.E4)

	require.Eventually(t, func() bool {
		return contains(rec.snapshot(), game.EventBlackTurn)
	}, 2*time.Second, 10*time.Millisecond)

	kinds := rec.snapshot()
	assert.Equal(t, []game.EventKind{
		game.EventPieceLifted,
		game.EventPiecePlaced,
		game.EventMoveMade,
		game.EventBlackTurn,
	}, kinds)
	assert.Equal(t, []core.Move{{From: core.E2, To: core.E4}}, rec.lastMoves())

	pos := m.Position()
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1", rules.NewStandard().FEN(pos))
}

func TestTakebackEvent(t *testing.T) {
	_, sim, rec := newManager(t)

	sim.Move(core.E2, core.E4)
	require.Eventually(t, func() bool {
		return contains(rec.snapshot(), game.EventBlackTurn)
	}, 2*time.Second, 10*time.Millisecond)

	sim.Move(core.E4, core.E2)
	require.Eventually(t, func() bool {
		return contains(rec.snapshot(), game.EventTakeback)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestKeysReachSubscribers(t *testing.T) {
	_, sim, rec := newManager(t)

	sim.Press(sensor.KeyPlay)

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.keys) == 1 && rec.keys[0] == sensor.KeyPlay
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRemoteAndForcedMoves(t *testing.T) {
	m, sim, rec := newManager(t)

	m.ApplyRemoteMove(core.Move{From: core.E2, To: core.E4})
	require.Eventually(t, func() bool {
		return contains(rec.snapshot(), game.EventBlackTurn)
	}, 2*time.Second, 10*time.Millisecond)

	// Black must now execute e7e5 physically.
	m.ComputerMove(core.Move{From: core.E7, To: core.E5})
	sim.Move(core.E7, core.E5)

	require.Eventually(t, func() bool {
		return contains(rec.snapshot(), game.EventWhiteTurn)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []core.Move{
		{From: core.E2, To: core.E4},
		{From: core.E7, To: core.E5},
	}, rec.lastMoves())
}

func TestDrawOfferEvent(t *testing.T) {
	m, _, rec := newManager(t)

	// A draw offer surfaces to subscribers without ending the game.
	m.RequestDraw(core.White)

	require.Eventually(t, func() bool {
		return contains(rec.snapshot(), game.EventDrawOffered)
	}, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []core.Color{core.White}, rec.draws)
	assert.False(t, contains(rec.kinds, game.EventTerminated))
}

func TestSubscriberPanicIsContained(t *testing.T) {
	m, sim, rec := newManager(t)

	m.Subscribe(game.Callbacks{
		Event: func(ctx context.Context, evt game.Event) {
			panic("faulty listener")
		},
	})

	sim.Move(core.E2, core.E4)

	require.Eventually(t, func() bool {
		return contains(rec.snapshot(), game.EventBlackTurn)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnsubscribe(t *testing.T) {
	m, sim, rec := newManager(t)

	other := &recorder{}
	sub := m.Subscribe(other.callbacks())
	m.Unsubscribe(sub)

	sim.Move(core.E2, core.E4)

	require.Eventually(t, func() bool {
		return contains(rec.snapshot(), game.EventBlackTurn)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, other.snapshot())
}

func TestMoveWithMoveLogAttached(t *testing.T) {
	ctx := context.Background()

	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sim := sensor.NewSim(core.StartingOccupancy)
	board, err := sensor.Open(ctx, sim)
	require.NoError(t, err)
	t.Cleanup(func() { board.Close() })

	m, err := game.New(ctx, rules.NewStandard(), board, db)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	rec := &recorder{}
	m.Subscribe(rec.callbacks())

	sim.Move(core.E2, core.E4)
	require.Eventually(t, func() bool {
		return contains(rec.snapshot(), game.EventBlackTurn)
	}, 2*time.Second, 10*time.Millisecond)
}
