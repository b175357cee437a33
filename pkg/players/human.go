package players

import (
	"context"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/seekerror/stdlib/pkg/lang"
	"go.uber.org/atomic"
)

// HumanPlayer plays from the physical board: its moves arrive through the
// move detection core, so requesting a move only marks it ready.
type HumanPlayer struct {
	name  string
	state atomic.Int32
}

func NewHuman(name string) *HumanPlayer {
	return &HumanPlayer{name: name}
}

func (p *HumanPlayer) Name() string {
	return p.name
}

func (p *HumanPlayer) Type() Type {
	return Human
}

func (p *HumanPlayer) State() State {
	return State(p.state.Load())
}

func (p *HumanPlayer) RequestMove(ctx context.Context, pos *rules.Position) {
	p.state.Store(int32(Ready))
}

func (p *HumanPlayer) CancelRequest() {
	p.state.Store(int32(Idle))
}

func (p *HumanPlayer) PieceEvent(ctx context.Context, kind PieceEventKind, sq core.Square, pos *rules.Position) {
	// The detection core interprets the events; nothing to do.
}

func (p *HumanPlayer) MoveMade(ctx context.Context, m core.Move, pos *rules.Position) {
	p.state.Store(int32(Idle))
}

func (p *HumanPlayer) Takeback(ctx context.Context, pos *rules.Position) {}

func (p *HumanPlayer) NewGame(ctx context.Context) {
	p.state.Store(int32(Idle))
}

func (p *HumanPlayer) CorrectionExit(ctx context.Context, pos *rules.Position) {}

func (p *HumanPlayer) Hint(ctx context.Context, pos *rules.Position) lang.Optional[core.Move] {
	return lang.Optional[core.Move]{}
}

func (p *HumanPlayer) Close(ctx context.Context) {}
