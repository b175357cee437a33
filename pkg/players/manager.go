package players

import (
	"context"
	"sync"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/game"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/seekerror/logw"
)

// Manager aggregates the two players of a game, routes physical events to the
// one to move and serialises turn progression: at most one outstanding move
// request per color.
type Manager struct {
	rules rules.Rules
	game  *game.Manager

	white, black Player

	mu      sync.Mutex
	pending map[core.Color]bool
	sub     *game.Subscription
}

// NewManager wires the players to the game manager's event stream.
func NewManager(ctx context.Context, r rules.Rules, g *game.Manager, white, black Player) *Manager {
	m := &Manager{
		rules:   r,
		game:    g,
		white:   white,
		black:   black,
		pending: map[core.Color]bool{},
	}

	m.sub = g.Subscribe(game.Callbacks{
		Event:      m.onEvent,
		Correction: m.onCorrection,
	})

	logw.Infof(ctx, "Players: white=%v (%v), black=%v (%v)", white.Name(), white.Type(), black.Name(), black.Type())
	return m
}

// Player returns the player of the given color.
func (m *Manager) Player(c core.Color) Player {
	if c == core.White {
		return m.white
	}
	return m.black
}

// Current returns the player to move.
func (m *Manager) Current() Player {
	return m.Player(m.rules.ColorToMove(m.game.Position()))
}

// Start solicits the first move if the side to move is machine-driven.
func (m *Manager) Start(ctx context.Context) {
	m.requestMove(ctx, m.rules.ColorToMove(m.game.Position()))
}

// CancelAll withdraws any outstanding move requests from both players.
func (m *Manager) CancelAll() {
	m.white.CancelRequest()
	m.black.CancelRequest()
	m.reset()
}

// Close detaches from the game and closes both players.
func (m *Manager) Close(ctx context.Context) {
	m.game.Unsubscribe(m.sub)
	m.white.Close(ctx)
	m.black.Close(ctx)
}

func (m *Manager) onEvent(ctx context.Context, evt game.Event) {
	switch evt.Kind {
	case game.EventNewGame:
		m.reset()
		m.white.NewGame(ctx)
		m.black.NewGame(ctx)

	case game.EventWhiteTurn:
		m.requestMove(ctx, core.White)

	case game.EventBlackTurn:
		m.requestMove(ctx, core.Black)

	case game.EventMoveMade:
		mover := m.rules.ColorToMove(evt.Pos).Opponent()
		m.clearPending(mover)
		// Both players observe every move so their hint subsystems stay
		// current.
		m.white.MoveMade(ctx, evt.Move, evt.Pos)
		m.black.MoveMade(ctx, evt.Move, evt.Pos)

	case game.EventTakeback:
		m.reset()
		m.white.Takeback(ctx, evt.Pos)
		m.black.Takeback(ctx, evt.Pos)

	case game.EventPieceLifted:
		m.Current().PieceEvent(ctx, PieceLifted, evt.Square, m.game.Position())

	case game.EventPiecePlaced:
		m.Current().PieceEvent(ctx, PiecePlaced, evt.Square, m.game.Position())

	case game.EventTerminated:
		m.reset()
		m.white.CancelRequest()
		m.black.CancelRequest()
	}
}

func (m *Manager) onCorrection(ctx context.Context, active bool) {
	if !active {
		m.Current().CorrectionExit(ctx, m.game.Position())
	}
}

// requestMove solicits a move, enforcing at most one outstanding request per
// color.
func (m *Manager) requestMove(ctx context.Context, c core.Color) {
	m.mu.Lock()
	if m.pending[c] {
		m.mu.Unlock()
		logw.Debugf(ctx, "Move request for %v already pending", c)
		return
	}
	m.pending[c] = true
	m.mu.Unlock()

	m.Player(c).RequestMove(ctx, m.game.Position())
}

func (m *Manager) clearPending(c core.Color) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[c] = false
}

func (m *Manager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = map[core.Color]bool{}
}
