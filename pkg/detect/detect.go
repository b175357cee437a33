// Package detect contains the move detection core. It interprets the stream
// of per-square lift/place events against the logical position, reconstructs
// legal moves including compound sequences (castling, captures, en passant,
// promotions), detects takebacks and new games, and drives the guided
// correction mode when the physical board diverges from the logical position.
//
// The core is a passive state machine: all methods must be called from the
// single game goroutine.
package detect

import (
	"context"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/sensor"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/lang"
)

// Effects is the core's outbound surface: LED guidance, sound cues and the
// promotion prompt. Implementations must not call back into the core
// synchronously.
type Effects interface {
	SetLEDs(ctx context.Context, p sensor.Pattern)
	LEDsOff(ctx context.Context)
	Beep(ctx context.Context, s sensor.Sound)
	// RequestPromotion asks the UI collaborator for a promotion choice. The
	// answer arrives later via Core.AnswerPromotion.
	RequestPromotion(ctx context.Context, from, to core.Square)
}

// Observer receives the outcomes of event classification. Calls are made from
// the game goroutine; a MoveMade call strictly precedes the Turn or
// Terminated call it causes.
type Observer interface {
	OnNewGame(ctx context.Context, pos *rules.Position)
	OnMoveMade(ctx context.Context, index int, m core.Move, pos *rules.Position)
	OnTakeback(ctx context.Context, pos *rules.Position)
	OnTurn(ctx context.Context, c core.Color)
	OnTerminated(ctx context.Context, o rules.Outcome)
}

// newGameStable is how long the board must be quiet on the starting occupancy
// before a new game is declared.
const newGameStable = time.Second

// newGameDebounce suppresses repeated new-game triggers.
const newGameDebounce = time.Second

// Core owns the logical position, the snapshot history and the in-progress
// move state. Not thread-safe: single game-goroutine writer.
type Core struct {
	rules rules.Rules
	fx    Effects
	obs   Observer

	pos       *rules.Position
	positions []*rules.Position // one per confirmed move, plus initial
	history   []core.Occupancy  // parallel to positions

	occ core.Occupancy // mirror of the sensor, folded from events

	source     lang.Optional[core.Square]
	dests      map[core.Square]bool
	forced     lang.Optional[core.Move]
	promotion  lang.Optional[core.Move] // pending UI choice, Promotion unset
	extraLifts map[core.Square]bool     // secondary lifts (castling rook, captured piece)

	filter func(core.Move) bool // nil = all legal moves acceptable

	correction bool
	expected   core.Occupancy

	lastEvent   time.Time // for new-game stability
	lastNewGame time.Time
}

// New returns a core at the standard starting position with the given
// physical occupancy.
func New(r rules.Rules, fx Effects, obs Observer, occ core.Occupancy) (*Core, error) {
	return NewAt(r, fx, obs, rules.Initial, occ)
}

// NewAt returns a core at the given position, for resuming saved games.
func NewAt(r rules.Rules, fx Effects, obs Observer, fen string, occ core.Occupancy) (*Core, error) {
	pos, err := r.FromFEN(fen)
	if err != nil {
		return nil, err
	}

	c := &Core{rules: r, fx: fx, obs: obs, occ: occ}
	c.reset(pos)
	return c, nil
}

// Position returns the current logical position.
func (c *Core) Position() *rules.Position {
	return c.pos
}

// Moves returns the number of confirmed moves.
func (c *Core) Moves() int {
	return len(c.positions) - 1
}

// InCorrection reports whether correction mode is active.
func (c *Core) InCorrection() bool {
	return c.correction
}

// PromotionPending reports whether a promotion prompt is outstanding.
func (c *Core) PromotionPending() bool {
	_, ok := c.promotion.V()
	return ok
}

// Expected returns the occupancy implied by the logical position.
func (c *Core) Expected() core.Occupancy {
	return c.history[len(c.history)-1]
}

// NewGame discards the current game and restarts from the initial position.
func (c *Core) NewGame(ctx context.Context) {
	pos, _ := c.rules.FromFEN(rules.Initial)
	c.reset(pos)
	c.fx.LEDsOff(ctx)
	c.fx.Beep(ctx, sensor.SoundGeneral)

	c.obs.OnNewGame(ctx, c.pos)
	c.obs.OnTurn(ctx, core.White)
}

// SetMoveFilter restricts which legal moves the board will accept, e.g. to
// moves of a chosen piece type in Hand+Brain play. A nil filter accepts every
// legal move. The filter does not constrain forced or remote moves.
func (c *Core) SetMoveFilter(f func(core.Move) bool) {
	c.filter = f
}

// SetForcedMove requires the current player to physically execute exactly the
// given move, guided by a from/to LED ray.
func (c *Core) SetForcedMove(ctx context.Context, m core.Move) {
	c.forced = lang.Some(m)
	c.fx.SetLEDs(ctx, sensor.LightRay(m.From, m.To, 3))
	logw.Debugf(ctx, "Forced move %v", m)
}

// ApplyRemoteMove applies a move directly, bypassing the physical board. Used
// when a remote opponent moves and the board is not driving.
func (c *Core) ApplyRemoteMove(ctx context.Context, m core.Move) error {
	return c.applyMove(ctx, m)
}

// HandleLift classifies a lift event.
func (c *Core) HandleLift(ctx context.Context, sq core.Square) {
	c.occ = c.occ.Clear(sq)
	c.lastEvent = time.Now()

	if _, ok := c.promotion.V(); ok {
		return // blocked until the promotion prompt is answered
	}
	if c.correction {
		c.updateCorrection(ctx)
		return
	}

	own := c.pieceOfSideToMove(sq)

	switch {
	case own && !c.moveInProgress():
		c.beginMove(ctx, sq)

	case own && c.moveInProgress():
		// Secondary lift of a compound move, e.g. the rook of a castling
		// pattern. Remember it; the placements resolve the compound.
		c.extraLifts[sq] = true

	case !own && c.moveInProgress():
		// Possibly the capture phase of the player's move: the victim leaves
		// its square before the capturer lands on it.
		c.extraLifts[sq] = true

	default:
		if c.occ == c.Expected() {
			// The lift removed a piece the logical position had already
			// captured, e.g. the en passant victim after the move applied.
			c.absorb(ctx)
			return
		}
		// Opponent piece lifted with nothing in progress. Either an illegal
		// physical action, or the start of physically executing a move the
		// logical position is already ahead of. Correction guidance handles
		// both: it guides toward the expected occupancy.
		c.enterCorrection(ctx)
	}
}

// HandlePlace classifies a place event.
func (c *Core) HandlePlace(ctx context.Context, sq core.Square) {
	c.occ = c.occ.Set(sq)
	c.lastEvent = time.Now()

	if _, ok := c.promotion.V(); ok {
		return
	}
	if c.correction {
		c.updateCorrection(ctx)
		return
	}

	if src, ok := c.source.V(); ok {
		switch {
		case sq == src:
			// Piece placed back: cancel the move in progress.
			c.clearMoveState(ctx)

		case c.dests[sq]:
			c.completeMove(ctx, src, sq)

		default:
			c.rejectPlacement(ctx)
		}
		return
	}

	// No move in progress by the side to move.
	switch {
	case c.occ == c.Expected():
		// The board settled back onto the expected occupancy: the tail of a
		// compound move, or a stray lift undone.
		c.absorb(ctx)

	case c.isTakeback():
		c.takeback(ctx)

	default:
		// A whole move may have been executed without the side-to-move
		// classification seeing a source, e.g. an opponent-driven board.
		if m, ok := c.matchMoveByOccupancy(); ok {
			if err := c.applyMove(ctx, m); err != nil {
				logw.Errorf(ctx, "Matched move %v failed: %v", m, err)
				c.enterCorrection(ctx)
			}
			return
		}
		c.fx.Beep(ctx, sensor.SoundWrongMove)
		c.enterCorrection(ctx)
	}
}

// HandleResync discards any in-progress move and revalidates the board
// against the given re-read occupancy.
func (c *Core) HandleResync(ctx context.Context, occ core.Occupancy) {
	c.occ = occ
	c.clearMoveState(ctx)

	if c.occ == c.Expected() {
		if c.correction {
			c.exitCorrection(ctx)
		}
		return
	}
	c.enterCorrection(ctx)
}

// AnswerPromotion resolves a pending promotion prompt and completes the move.
// Callers enforce the prompt timeout and default to queen.
func (c *Core) AnswerPromotion(ctx context.Context, pt core.PieceType) {
	m, ok := c.promotion.V()
	if !ok {
		return
	}
	c.promotion = lang.Optional[core.Move]{}

	m.Promotion = pt
	if !c.rules.IsLegal(c.pos, m) {
		logw.Errorf(ctx, "Illegal promotion %v", m)
		c.fx.Beep(ctx, sensor.SoundWrongMove)
		c.enterCorrection(ctx)
		return
	}
	if err := c.applyMove(ctx, m); err != nil {
		logw.Errorf(ctx, "Promotion %v failed: %v", m, err)
		c.enterCorrection(ctx)
	}
}

// CheckNewGame detects the pieces being set back up: a quiet board on the
// starting occupancy while the logical position has advanced. Debounced.
func (c *Core) CheckNewGame(ctx context.Context, now time.Time) bool {
	if c.moveInProgress() || c.PromotionPending() {
		return false
	}
	if c.occ != core.StartingOccupancy {
		return false
	}
	if c.rules.FEN(c.pos) == rules.Initial {
		return false
	}
	if now.Sub(c.lastEvent) < newGameStable || now.Sub(c.lastNewGame) < newGameDebounce {
		return false
	}

	c.lastNewGame = now
	logw.Infof(ctx, "Starting position detected: new game")
	c.NewGame(ctx)
	return true
}

func (c *Core) reset(pos *rules.Position) {
	c.pos = pos
	c.positions = []*rules.Position{pos}
	c.history = []core.Occupancy{rules.Occupancy(c.rules, pos)}
	c.source = lang.Optional[core.Square]{}
	c.dests = nil
	c.forced = lang.Optional[core.Move]{}
	c.promotion = lang.Optional[core.Move]{}
	c.extraLifts = map[core.Square]bool{}
	c.filter = nil
	c.correction = false
	c.lastNewGame = time.Now()
}

func (c *Core) pieceOfSideToMove(sq core.Square) bool {
	p, ok := c.rules.PieceAt(c.pos, sq)
	return ok && p.Color == c.rules.ColorToMove(c.pos)
}

// beginMove starts tracking a move from the lifted square. The source itself
// is always a destination so the piece can be put back.
func (c *Core) beginMove(ctx context.Context, sq core.Square) {
	c.source = lang.Some(sq)
	c.dests = map[core.Square]bool{sq: true}

	if f, ok := c.forced.V(); ok {
		// Only the forced move may be executed. Lifting the wrong piece
		// leaves put-back as the sole destination.
		if sq == f.From {
			c.dests[f.To] = true
		}
		return
	}

	for _, m := range c.rules.LegalMoves(c.pos) {
		if m.From == sq && c.accepts(m) {
			c.dests[m.To] = true
		}
	}
}

func (c *Core) accepts(m core.Move) bool {
	return c.filter == nil || c.filter(m)
}

// completeMove resolves a placement on a legal destination into a move.
func (c *Core) completeMove(ctx context.Context, from, to core.Square) {
	if f, ok := c.forced.V(); ok {
		if err := c.applyMove(ctx, f); err != nil {
			logw.Errorf(ctx, "Forced move %v failed: %v", f, err)
			c.enterCorrection(ctx)
		}
		return
	}

	if len(c.extraLifts) > 0 {
		// More pieces are in the air than a simple move explains: a capture
		// or castling pattern. Resolve against the legal compounds.
		c.resolveCompound(ctx, from, to)
		return
	}

	if c.rules.NeedsPromotion(c.pos, from, to) {
		c.promotion = lang.Some(core.Move{From: from, To: to})
		c.fx.Beep(ctx, sensor.SoundGeneral)
		c.fx.RequestPromotion(ctx, from, to)
		return
	}

	m := core.Move{From: from, To: to}
	if !c.rules.IsLegal(c.pos, m) || !c.accepts(m) {
		c.rejectPlacement(ctx)
		return
	}
	if err := c.applyMove(ctx, m); err != nil {
		logw.Errorf(ctx, "Move %v failed: %v", m, err)
		c.enterCorrection(ctx)
	}
}

// resolveCompound disambiguates a multi-lift pattern. A candidate move from
// the source is viable if the current occupancy is a partial execution of it:
// every physically occupied square is occupied in the move's implied
// occupancy, the remaining differences being pieces still in the air. An
// exact occupancy match commits immediately; a unique viable candidate
// commits when its moving piece lands; otherwise the core waits for further
// placements to disambiguate.
func (c *Core) resolveCompound(ctx context.Context, from, to core.Square) {
	type candidate struct {
		move    core.Move
		implied core.Occupancy
	}

	var viable []candidate
	for _, m := range c.rules.LegalMoves(c.pos) {
		if m.From != from || !c.accepts(m) {
			continue
		}
		next, err := c.rules.Apply(c.pos, m)
		if err != nil {
			continue
		}
		implied := rules.Occupancy(c.rules, next)
		if c.occ&^implied != 0 {
			continue // occupies a square the move leaves empty
		}
		viable = append(viable, candidate{move: m, implied: implied})
	}

	for _, cand := range viable {
		if cand.implied == c.occ {
			if err := c.applyMove(ctx, cand.move); err != nil {
				logw.Errorf(ctx, "Compound move %v failed: %v", cand.move, err)
				c.enterCorrection(ctx)
			}
			return
		}
	}

	if len(viable) == 1 && viable[0].move.To == to {
		if err := c.applyMove(ctx, viable[0].move); err != nil {
			logw.Errorf(ctx, "Compound move %v failed: %v", viable[0].move, err)
			c.enterCorrection(ctx)
		}
		return
	}

	if len(viable) > 0 {
		return // still ambiguous: wait for the remaining placements
	}
	c.rejectPlacement(ctx)
}

// rejectPlacement handles a placement outside the legal destinations: a
// takeback if the board returned to the previous snapshot, correction mode
// otherwise.
func (c *Core) rejectPlacement(ctx context.Context) {
	c.fx.Beep(ctx, sensor.SoundWrongMove)
	if c.isTakeback() {
		c.takeback(ctx)
		return
	}
	c.enterCorrection(ctx)
}

func (c *Core) isTakeback() bool {
	if len(c.history) < 2 {
		return false
	}
	return c.occ == c.history[len(c.history)-2]
}

// takeback pops the last confirmed move.
func (c *Core) takeback(ctx context.Context) {
	n := len(c.positions)
	c.positions = c.positions[:n-1]
	c.history = c.history[:n-1]
	c.pos = c.positions[n-2]
	c.clearMoveState(ctx)
	c.forced = lang.Optional[core.Move]{}
	c.correction = false

	c.fx.Beep(ctx, sensor.SoundGeneral)
	logw.Infof(ctx, "Takeback: %v", c.rules.FEN(c.pos))
	c.obs.OnTakeback(ctx, c.pos)
}

// matchMoveByOccupancy finds the unique acceptable move whose resulting
// occupancy equals the current physical occupancy. Used for opponent-driven
// placements and for moves finished under correction guidance. A pending
// forced move narrows the candidates to itself; the move filter applies.
func (c *Core) matchMoveByOccupancy() (core.Move, bool) {
	if f, ok := c.forced.V(); ok {
		if next, err := c.rules.Apply(c.pos, f); err == nil && rules.Occupancy(c.rules, next) == c.occ {
			return f, true
		}
		return core.Move{}, false
	}

	var found core.Move
	matches := 0
	for _, m := range c.rules.LegalMoves(c.pos) {
		if !c.accepts(m) {
			continue
		}
		next, err := c.rules.Apply(c.pos, m)
		if err != nil {
			continue
		}
		if rules.Occupancy(c.rules, next) == c.occ {
			found = m
			matches++
		}
	}
	return found, matches == 1
}

// applyMove commits the move: logical position, history, state, cues, events.
func (c *Core) applyMove(ctx context.Context, m core.Move) error {
	next, err := c.rules.Apply(c.pos, m)
	if err != nil {
		return err
	}

	index := len(c.positions) - 1
	c.pos = next
	c.positions = append(c.positions, next)
	c.history = append(c.history, rules.Occupancy(c.rules, next))
	c.clearMoveState(ctx)
	c.forced = lang.Optional[core.Move]{}
	c.filter = nil
	c.correction = false

	c.fx.Beep(ctx, sensor.SoundGeneral)
	c.fx.SetLEDs(ctx, sensor.LightSquares(3, m.To))
	logw.Infof(ctx, "Move %v: %v", m, c.rules.FEN(next))

	c.obs.OnMoveMade(ctx, index, m, next)
	if o, ok := c.rules.Outcome(next).V(); ok {
		c.fx.Beep(ctx, sensor.SoundGeneral)
		c.obs.OnTerminated(ctx, o)
	} else {
		c.obs.OnTurn(ctx, c.rules.ColorToMove(next))
	}
	return nil
}

// absorb accepts the board settling back onto the expected occupancy without
// a move, e.g. the rook placement completing castling.
func (c *Core) absorb(ctx context.Context) {
	if len(c.extraLifts) > 0 || c.correction {
		c.fx.LEDsOff(ctx)
	}
	c.extraLifts = map[core.Square]bool{}
	c.correction = false
}

func (c *Core) clearMoveState(ctx context.Context) {
	c.source = lang.Optional[core.Square]{}
	c.dests = nil
	c.extraLifts = map[core.Square]bool{}
	c.fx.LEDsOff(ctx)
}

func (c *Core) moveInProgress() bool {
	_, ok := c.source.V()
	return ok
}
