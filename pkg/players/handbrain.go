package players

import (
	"context"
	"sync"

	"github.com/adrian-dybwad/centaur/pkg/assist"
	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/uciengine"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/lang"
)

// HandBrainMode selects who picks the piece type.
type HandBrainMode uint8

const (
	// HandBrainNormal: the brain (engine) hints a piece type, the hand (user)
	// chooses which piece of that type to move and where.
	HandBrainNormal HandBrainMode = iota
	// HandBrainReverse: the hand picks a type by bumping a piece, the brain
	// finds the best move of that type.
	HandBrainReverse
)

func (m HandBrainMode) String() string {
	if m == HandBrainReverse {
		return "reverse"
	}
	return "normal"
}

// HandBrainPhase is the Reverse-mode phase machine.
type HandBrainPhase uint8

const (
	PhaseIdle HandBrainPhase = iota
	PhaseWaitingPieceSelection
	PhaseComputingMove
	PhaseWaitingExecution
)

func (p HandBrainPhase) String() string {
	switch p {
	case PhaseWaitingPieceSelection:
		return "waiting-piece-selection"
	case PhaseComputingMove:
		return "computing-move"
	case PhaseWaitingExecution:
		return "waiting-execution"
	default:
		return "idle"
	}
}

// HandBrainPlayer plays Hand+Brain chess with an engine as the brain. The
// suggestion callback is the player's display surface: piece-type hints and
// computed moves are published through it and the wiring maps them to LEDs
// and status text.
type HandBrainPlayer struct {
	name   string
	mode   HandBrainMode
	rules  rules.Rules
	handle UCI
	moves  Moves
	hints  assist.Callback
	limit  uciengine.Limit

	mu       sync.Mutex
	state    State
	phase    HandBrainPhase
	selected core.PieceType
	pending  lang.Optional[core.Move] // computed move awaiting execution
	lastLift lang.Optional[core.Square]
	pos      *rules.Position
	gen      uint64 // supersedes in-flight computation
}

// NewHandBrain returns a Hand+Brain player in the given mode.
func NewHandBrain(name string, mode HandBrainMode, r rules.Rules, handle UCI, limit uciengine.Limit, moves Moves, hints assist.Callback) *HandBrainPlayer {
	if limit.MoveTime <= 0 {
		limit.MoveTime = DefaultMoveTime
	}
	return &HandBrainPlayer{
		name:   name,
		mode:   mode,
		rules:  r,
		handle: handle,
		moves:  moves,
		hints:  hints,
		limit:  limit,
	}
}

func (p *HandBrainPlayer) Name() string {
	return p.name
}

func (p *HandBrainPlayer) Type() Type {
	return HandBrain
}

func (p *HandBrainPlayer) Mode() HandBrainMode {
	return p.mode
}

func (p *HandBrainPlayer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Phase returns the Reverse-mode phase.
func (p *HandBrainPlayer) Phase() HandBrainPhase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Selected returns the currently selected piece type, if any.
func (p *HandBrainPlayer) Selected() core.PieceType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}

func (p *HandBrainPlayer) RequestMove(ctx context.Context, pos *rules.Position) {
	p.mu.Lock()
	p.pos = pos
	p.state = Thinking
	p.mu.Unlock()

	if p.mode == HandBrainNormal {
		p.computeTypeHint(ctx, pos)
		return
	}

	p.mu.Lock()
	p.phase = PhaseWaitingPieceSelection
	p.selected = core.NoPiece
	p.pending = lang.Optional[core.Move]{}
	p.mu.Unlock()
	p.hints(ctx, assist.Advice("Bump a piece to choose its type"))
}

func (p *HandBrainPlayer) CancelRequest() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.state = Idle
	p.phase = PhaseIdle
}

// PieceEvent implements the Reverse-mode bump gesture and lift reselection.
func (p *HandBrainPlayer) PieceEvent(ctx context.Context, kind PieceEventKind, sq core.Square, pos *rules.Position) {
	if p.mode != HandBrainReverse {
		return
	}

	switch kind {
	case PieceLifted:
		p.mu.Lock()
		p.lastLift = lang.Some(sq)
		phase, selected := p.phase, p.selected
		p.mu.Unlock()

		// Lifting a different own piece type while a move is computed or
		// awaited restarts computation for the lifted type.
		if phase == PhaseComputingMove || phase == PhaseWaitingExecution {
			if pl, ok := p.rules.PieceAt(pos, sq); ok && pl.Color == p.rules.ColorToMove(pos) && pl.Piece != selected {
				p.selectType(ctx, pl.Piece, pos)
			}
		}

	case PiecePlaced:
		p.mu.Lock()
		last, ok := p.lastLift.V()
		p.lastLift = lang.Optional[core.Square]{}
		p.mu.Unlock()

		if ok && last == sq {
			p.bump(ctx, sq, pos)
		}
	}
}

func (p *HandBrainPlayer) MoveMade(ctx context.Context, m core.Move, pos *rules.Position) {
	p.mu.Lock()
	p.gen++
	p.state = Idle
	p.phase = PhaseIdle
	p.selected = core.NoPiece
	p.pending = lang.Optional[core.Move]{}
	p.mu.Unlock()

	p.moves.RestrictMoves(nil)
	p.hints(ctx, assist.Clear())
}

func (p *HandBrainPlayer) Takeback(ctx context.Context, pos *rules.Position) {
	p.CancelRequest()
	p.moves.RestrictMoves(nil)
	p.hints(ctx, assist.Clear())
}

func (p *HandBrainPlayer) NewGame(ctx context.Context) {
	p.CancelRequest()
	p.hints(ctx, assist.Clear())
}

// CorrectionExit restores the LED and status state of the current phase.
func (p *HandBrainPlayer) CorrectionExit(ctx context.Context, pos *rules.Position) {
	p.mu.Lock()
	phase := p.phase
	pending := p.pending
	selected := p.selected
	p.mu.Unlock()

	switch phase {
	case PhaseWaitingPieceSelection:
		p.hints(ctx, assist.Advice("Bump a piece to choose its type"))
	case PhaseWaitingExecution:
		if m, ok := pending.V(); ok {
			p.hints(ctx, assist.MoveSuggestion(m, 1.0))
		}
	case PhaseComputingMove:
		if selected != core.NoPiece {
			p.hints(ctx, assist.PieceSuggestion(selected, p.squaresOf(pos, selected)))
		}
	}
}

func (p *HandBrainPlayer) Hint(ctx context.Context, pos *rules.Position) lang.Optional[core.Move] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

func (p *HandBrainPlayer) Close(ctx context.Context) {
	p.CancelRequest()
	p.handle.Release(ctx)
}

// computeTypeHint is the Normal-mode brain: find the engine's best move,
// publish its piece type, and accept any legal move of that type.
func (p *HandBrainPlayer) computeTypeHint(ctx context.Context, pos *rules.Position) {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	go func() {
		m, err := p.handle.Play(ctx, p.rules.FEN(pos), p.limit)
		if err != nil {
			logw.Errorf(ctx, "Brain failed: %v", err)
			p.mu.Lock()
			p.state = Error
			p.mu.Unlock()
			return
		}

		pl, ok := p.rules.PieceAt(pos, m.From)
		if !ok {
			return
		}

		p.mu.Lock()
		if p.gen != gen {
			p.mu.Unlock()
			return
		}
		p.selected = pl.Piece
		p.state = Ready
		p.mu.Unlock()

		pt := pl.Piece
		p.moves.RestrictMoves(func(m core.Move) bool {
			from, ok := p.rules.PieceAt(pos, m.From)
			return ok && from.Piece == pt
		})
		p.hints(ctx, assist.PieceSuggestion(pt, p.squaresOf(pos, pt)))
	}()
}

// bump handles a lift+place on the same square: the Reverse-mode type
// selection gesture.
func (p *HandBrainPlayer) bump(ctx context.Context, sq core.Square, pos *rules.Position) {
	p.mu.Lock()
	phase := p.phase
	selected := p.selected
	p.mu.Unlock()

	if phase == PhaseIdle {
		return
	}

	pl, ok := p.rules.PieceAt(pos, sq)
	if !ok || pl.Color != p.rules.ColorToMove(pos) {
		// Opponent piece: the detection core already flagged the divergence.
		logw.Debugf(ctx, "Ignoring bump of opponent piece on %v", sq)
		return
	}
	if pl.Piece == selected && phase != PhaseWaitingPieceSelection {
		return // same type: keep the current computation
	}

	p.selectType(ctx, pl.Piece, pos)
}

// selectType starts (or restarts) computing the best move of the given type.
func (p *HandBrainPlayer) selectType(ctx context.Context, pt core.PieceType, pos *rules.Position) {
	root := p.movesOf(pos, pt)
	if len(root) == 0 {
		// No legal moves of that type: flash its squares and keep waiting.
		p.hints(ctx, assist.Highlight(p.squaresOf(pos, pt)...))
		logw.Debugf(ctx, "Rejected selection %v: no legal moves", pt)
		return
	}

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.selected = pt
	p.phase = PhaseComputingMove
	p.pending = lang.Optional[core.Move]{}
	p.mu.Unlock()

	p.moves.RestrictMoves(func(m core.Move) bool {
		from, ok := p.rules.PieceAt(pos, m.From)
		return ok && from.Piece == pt
	})
	p.hints(ctx, assist.PieceSuggestion(pt, p.squaresOf(pos, pt)))

	go func() {
		m, err := p.handle.Play(ctx, p.rules.FEN(pos), p.limit, root...)
		if err != nil {
			logw.Errorf(ctx, "Brain failed for %v: %v", pt, err)
			return
		}

		p.mu.Lock()
		if p.gen != gen {
			p.mu.Unlock()
			return // superseded by a reselection
		}
		p.phase = PhaseWaitingExecution
		p.pending = lang.Some(m)
		p.state = Ready
		p.mu.Unlock()

		p.hints(ctx, assist.MoveSuggestion(m, 1.0))
	}()
}

func (p *HandBrainPlayer) squaresOf(pos *rules.Position, pt core.PieceType) []core.Square {
	toMove := p.rules.ColorToMove(pos)
	var ret []core.Square
	for sq := core.ZeroSquare; sq < core.NumSquares; sq++ {
		if pl, ok := p.rules.PieceAt(pos, sq); ok && pl.Piece == pt && pl.Color == toMove {
			ret = append(ret, sq)
		}
	}
	return ret
}

func (p *HandBrainPlayer) movesOf(pos *rules.Position, pt core.PieceType) []core.Move {
	var ret []core.Move
	for _, m := range p.rules.LegalMoves(pos) {
		if pl, ok := p.rules.PieceAt(pos, m.From); ok && pl.Piece == pt {
			ret = append(ret, m)
		}
	}
	return ret
}
