package players

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/uciengine"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/lang"
	"go.uber.org/atomic"
)

// DefaultMoveTime is the per-move engine budget when none is configured.
const DefaultMoveTime = 5 * time.Second

// EnginePlayer produces moves from a UCI engine subprocess. The user executes
// the engine's choice physically, guided by LEDs.
type EnginePlayer struct {
	name   string
	rules  rules.Rules
	handle UCI
	moves  Moves

	limit uciengine.Limit
	opts  uciengine.Options

	state atomic.Int32
	gen   atomic.Uint64 // bumped to discard in-flight results

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewEngine returns a player over the given engine handle. The options,
// typically an ELO section, are re-applied on every move request.
func NewEngine(name string, r rules.Rules, handle UCI, opts uciengine.Options, limit uciengine.Limit, moves Moves) *EnginePlayer {
	if limit.MoveTime <= 0 {
		limit.MoveTime = DefaultMoveTime
	}
	return &EnginePlayer{
		name:   name,
		rules:  r,
		handle: handle,
		moves:  moves,
		limit:  limit,
		opts:   opts,
	}
}

func (p *EnginePlayer) Name() string {
	return p.name
}

func (p *EnginePlayer) Type() Type {
	return Engine
}

func (p *EnginePlayer) State() State {
	return State(p.state.Load())
}

func (p *EnginePlayer) RequestMove(ctx context.Context, pos *rules.Position) {
	p.state.Store(int32(Thinking))
	gen := p.gen.Load()

	cctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		defer cancel()

		p.handle.Configure(p.opts)
		m, err := p.handle.Play(cctx, p.rules.FEN(pos), p.limit)
		if p.gen.Load() != gen {
			return // request superseded: discard
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				p.state.Store(int32(Idle))
				return
			}
			logw.Errorf(ctx, "Engine %v failed: %v", p.name, err)
			p.state.Store(int32(Error))
			return
		}

		p.state.Store(int32(Done))
		p.moves.ComputerMove(m)
	}()
}

func (p *EnginePlayer) CancelRequest() {
	p.gen.Inc()

	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.state.Store(int32(Idle))
}

func (p *EnginePlayer) PieceEvent(ctx context.Context, kind PieceEventKind, sq core.Square, pos *rules.Position) {
	// The user is executing the forced move; the core tracks it.
}

func (p *EnginePlayer) MoveMade(ctx context.Context, m core.Move, pos *rules.Position) {
	p.state.Store(int32(Idle))
}

func (p *EnginePlayer) Takeback(ctx context.Context, pos *rules.Position) {
	p.CancelRequest()
}

func (p *EnginePlayer) NewGame(ctx context.Context) {
	p.CancelRequest()
}

func (p *EnginePlayer) CorrectionExit(ctx context.Context, pos *rules.Position) {}

// Hint returns the engine's preferred move at a short budget.
func (p *EnginePlayer) Hint(ctx context.Context, pos *rules.Position) lang.Optional[core.Move] {
	m, err := p.handle.Play(ctx, p.rules.FEN(pos), uciengine.Limit{MoveTime: time.Second})
	if err != nil {
		return lang.Optional[core.Move]{}
	}
	return lang.Some(m)
}

func (p *EnginePlayer) Close(ctx context.Context) {
	p.CancelRequest()
	p.handle.Release(ctx)
}
