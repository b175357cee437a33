package game

import (
	"context"
	"sync"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/detect"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/sensor"
	"github.com/google/uuid"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/iox"
	"go.uber.org/atomic"
)

// DefaultPromotionTimeout is how long the promotion prompt waits before
// defaulting to a queen.
const DefaultPromotionTimeout = 60 * time.Second

// tickInterval paces new-game detection and prompt timeouts.
const tickInterval = 250 * time.Millisecond

// MoveLog persists the per-game move log. Best effort: failures are logged,
// never fatal to the game.
type MoveLog interface {
	// StartGame opens a fresh game log and returns its id.
	StartGame(ctx context.Context) (string, error)
	// AppendMove records (index, uci, fenAfter).
	AppendMove(ctx context.Context, gameID string, index int, uci, fenAfter string) error
	// TruncateMove removes the entry for index, for takebacks.
	TruncateMove(ctx context.Context, gameID string, index int) error
	// SetResult records the final result.
	SetResult(ctx context.Context, gameID string, result string) error
}

// Callbacks are a subscriber's entry points. Nil members are skipped. All
// callbacks run on the game goroutine; panics are recovered so a faulty
// listener cannot take the game down.
type Callbacks struct {
	Event    func(ctx context.Context, evt Event)
	Move     func(ctx context.Context, index int, m core.Move, pos *rules.Position)
	Key      func(ctx context.Context, k sensor.Key)
	Takeback func(ctx context.Context, pos *rules.Position)
	// Promotion is the UI prompt for a promotion choice, answered via
	// Manager.AnswerPromotion. Absent an answer the manager defaults to queen
	// after the promotion timeout.
	Promotion func(ctx context.Context, from, to core.Square)
	// Correction reports correction mode being entered (true) or exited
	// (false), so listeners can restore their LED and status state.
	Correction func(ctx context.Context, active bool)
}

// Subscription identifies a registered listener.
type Subscription struct {
	id uuid.UUID
	cb Callbacks
}

// Manager is the game manager. Exactly one internal goroutine advances game
// state; all exported methods are safe for concurrent use.
type Manager struct {
	rules rules.Rules
	board *sensor.Board
	core  *detect.Core
	log   MoveLog

	msgs chan msg
	pos  atomic.Pointer[rules.Position]

	promotionTimeout time.Duration
	promotionSince   time.Time

	gameID string

	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription

	quit iox.AsyncCloser
}

type msg interface{}

type (
	msgRemoteMove      struct{ m core.Move }
	msgForcedMove      struct{ m core.Move }
	msgPromotion       struct{ pt core.PieceType }
	msgNewGame         struct{}
	msgResign          struct{ c core.Color }
	msgDrawOffer       struct{ c core.Color }
	msgSetPromoTimeout struct{ d time.Duration }
	msgRestrict        struct{ f func(core.Move) bool }
)

// New starts a game manager over the given board. log may be nil to disable
// persistence.
func New(ctx context.Context, r rules.Rules, board *sensor.Board, log MoveLog) (*Manager, error) {
	m := &Manager{
		rules:            r,
		board:            board,
		log:              log,
		msgs:             make(chan msg, 128),
		promotionTimeout: DefaultPromotionTimeout,
		subs:             map[uuid.UUID]*Subscription{},
		quit:             iox.NewAsyncCloser(),
	}

	c, err := detect.New(r, effects{m}, observer{m}, board.Occupancy())
	if err != nil {
		return nil, err
	}
	m.core = c
	m.pos.Store(c.Position())
	m.startLog(ctx)

	go m.process(ctx)

	logw.Infof(ctx, "Game manager started")
	return m, nil
}

// Subscribe registers callbacks and returns the subscription handle.
func (m *Manager) Subscribe(cb Callbacks) *Subscription {
	s := &Subscription{id: uuid.New(), cb: cb}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.id] = s
	return s
}

// Unsubscribe drops the subscription.
func (m *Manager) Unsubscribe(s *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, s.id)
}

// Position returns a snapshot of the current logical position.
func (m *Manager) Position() *rules.Position {
	return m.pos.Load()
}

// Occupancy returns the last known physical occupancy.
func (m *Manager) Occupancy() core.Occupancy {
	return m.board.Occupancy()
}

// ComputerMove requires the player to physically execute the given move,
// guided by LEDs.
func (m *Manager) ComputerMove(mv core.Move) {
	m.post(msgForcedMove{m: mv})
}

// ApplyRemoteMove applies an opponent move directly, without the physical
// board driving.
func (m *Manager) ApplyRemoteMove(mv core.Move) {
	m.post(msgRemoteMove{m: mv})
}

// AnswerPromotion resolves an outstanding promotion prompt.
func (m *Manager) AnswerPromotion(pt core.PieceType) {
	m.post(msgPromotion{pt: pt})
}

// NewGame abandons the current game and restarts from the initial position.
func (m *Manager) NewGame() {
	m.post(msgNewGame{})
}

// Resign ends the game as a loss for the given color.
func (m *Manager) Resign(c core.Color) {
	m.post(msgResign{c: c})
}

// RequestDraw surfaces a draw offer by the given color to subscribers. The
// offer does not end the game; whoever represents the opponent (app, remote
// player, UI) decides what to do with it.
func (m *Manager) RequestDraw(c core.Color) {
	m.post(msgDrawOffer{c: c})
}

// SetPromotionTimeout overrides the promotion prompt timeout.
func (m *Manager) SetPromotionTimeout(d time.Duration) {
	m.post(msgSetPromoTimeout{d: d})
}

// RestrictMoves limits which legal moves the board accepts, e.g. to a piece
// type in Hand+Brain play. Nil lifts the restriction.
func (m *Manager) RestrictMoves(f func(core.Move) bool) {
	m.post(msgRestrict{f: f})
}

// Close stops the game goroutine.
func (m *Manager) Close() {
	m.quit.Close()
}

func (m *Manager) post(v msg) {
	select {
	case m.msgs <- v:
	case <-m.quit.Closed():
	}
}

// process is the game goroutine: the only writer of the logical position.
func (m *Manager) process(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-m.board.Events():
			if !ok {
				return
			}
			m.handleBoard(ctx, evt)

		case v := <-m.msgs:
			m.handleMsg(ctx, v)

		case now := <-ticker.C:
			m.handleTick(ctx, now)

		case <-m.quit.Closed():
			return
		case <-ctx.Done():
			return
		}
		m.pos.Store(m.core.Position())
	}
}

func (m *Manager) handleBoard(ctx context.Context, evt sensor.Event) {
	before := m.core.InCorrection()
	defer func() {
		if after := m.core.InCorrection(); after != before {
			m.emitCorrection(ctx, after)
		}
	}()

	switch evt.Kind {
	case sensor.EventLift:
		m.emit(ctx, Event{Kind: EventPieceLifted, Square: evt.Square, Pos: m.core.Position()})
		m.core.HandleLift(ctx, evt.Square)
		m.armPromotionTimer()

	case sensor.EventPlace:
		m.emit(ctx, Event{Kind: EventPiecePlaced, Square: evt.Square, Pos: m.core.Position()})
		m.core.HandlePlace(ctx, evt.Square)
		m.armPromotionTimer()

	case sensor.EventKey:
		m.emitKey(ctx, evt.Key)

	case sensor.EventResync:
		occ, err := m.board.Rescan(ctx)
		if err != nil {
			logw.Errorf(ctx, "Rescan after resync failed: %v", err)
		}
		m.core.HandleResync(ctx, occ)
	}
}

func (m *Manager) handleMsg(ctx context.Context, v msg) {
	switch v := v.(type) {
	case msgForcedMove:
		m.core.SetForcedMove(ctx, v.m)

	case msgRemoteMove:
		if err := m.core.ApplyRemoteMove(ctx, v.m); err != nil {
			logw.Errorf(ctx, "Remote move %v rejected: %v", v.m, err)
		}

	case msgPromotion:
		m.core.AnswerPromotion(ctx, v.pt)

	case msgNewGame:
		m.core.NewGame(ctx)

	case msgResign:
		o := rules.Outcome{Reason: rules.Resignation, Winner: v.c.Opponent()}
		m.setResult(ctx, v.c.Opponent())
		m.emit(ctx, Event{Kind: EventTerminated, Outcome: o, Pos: m.core.Position()})

	case msgDrawOffer:
		m.emit(ctx, Event{Kind: EventDrawOffered, Color: v.c, Pos: m.core.Position()})

	case msgSetPromoTimeout:
		m.promotionTimeout = v.d

	case msgRestrict:
		m.core.SetMoveFilter(v.f)
	}
}

func (m *Manager) handleTick(ctx context.Context, now time.Time) {
	if m.core.PromotionPending() && now.Sub(m.promotionSince) > m.promotionTimeout {
		logw.Infof(ctx, "Promotion prompt timed out: defaulting to queen")
		m.core.AnswerPromotion(ctx, core.Queen)
		return
	}
	m.core.CheckNewGame(ctx, now)
}

func (m *Manager) armPromotionTimer() {
	if m.core.PromotionPending() && m.promotionSince.IsZero() {
		m.promotionSince = time.Now()
	}
	if !m.core.PromotionPending() {
		m.promotionSince = time.Time{}
	}
}

// emit delivers an event to every subscriber, recovering panics. The position
// snapshot is refreshed first so Position() is current inside callbacks.
func (m *Manager) emit(ctx context.Context, evt Event) {
	m.pos.Store(m.core.Position())
	logw.Debugf(ctx, "Event %v", evt)
	for _, s := range m.snapshot() {
		safely(ctx, func() {
			if s.cb.Event != nil {
				s.cb.Event(ctx, evt)
			}
			switch evt.Kind {
			case EventMoveMade:
				if s.cb.Move != nil {
					s.cb.Move(ctx, evt.Index, evt.Move, evt.Pos)
				}
			case EventTakeback:
				if s.cb.Takeback != nil {
					s.cb.Takeback(ctx, evt.Pos)
				}
			}
		})
	}
}

func (m *Manager) emitKey(ctx context.Context, k sensor.Key) {
	for _, s := range m.snapshot() {
		safely(ctx, func() {
			if s.cb.Key != nil {
				s.cb.Key(ctx, k)
			}
		})
	}
}

func (m *Manager) emitCorrection(ctx context.Context, active bool) {
	m.pos.Store(m.core.Position())
	for _, s := range m.snapshot() {
		safely(ctx, func() {
			if s.cb.Correction != nil {
				s.cb.Correction(ctx, active)
			}
		})
	}
}

func (m *Manager) emitPromotion(ctx context.Context, from, to core.Square) {
	m.promotionSince = time.Now()
	for _, s := range m.snapshot() {
		safely(ctx, func() {
			if s.cb.Promotion != nil {
				s.cb.Promotion(ctx, from, to)
			}
		})
	}
}

func (m *Manager) snapshot() []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	ret := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		ret = append(ret, s)
	}
	return ret
}

func (m *Manager) startLog(ctx context.Context) {
	if m.log == nil {
		return
	}
	id, err := m.log.StartGame(ctx)
	if err != nil {
		logw.Errorf(ctx, "Move log unavailable: %v", err)
		m.gameID = ""
		return
	}
	m.gameID = id
}

func (m *Manager) setResult(ctx context.Context, winner core.Color) {
	if m.log == nil || m.gameID == "" {
		return
	}
	result := "1-0"
	if winner == core.Black {
		result = "0-1"
	}
	if err := m.log.SetResult(ctx, m.gameID, result); err != nil {
		logw.Errorf(ctx, "Result persist failed: %v", err)
	}
}

func safely(ctx context.Context, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logw.Errorf(ctx, "Subscriber panic recovered: %v", r)
		}
	}()
	fn()
}

// effects adapts the board to the detection core's outbound surface.
type effects struct {
	m *Manager
}

func (e effects) SetLEDs(ctx context.Context, p sensor.Pattern) {
	e.m.board.SetLEDs(ctx, p)
}

func (e effects) LEDsOff(ctx context.Context) {
	e.m.board.LEDsOff(ctx)
}

func (e effects) Beep(ctx context.Context, s sensor.Sound) {
	e.m.board.Beep(ctx, s)
}

func (e effects) RequestPromotion(ctx context.Context, from, to core.Square) {
	e.m.emitPromotion(ctx, from, to)
}

// observer receives detection outcomes and turns them into game events and
// move-log writes.
type observer struct {
	m *Manager
}

func (o observer) OnNewGame(ctx context.Context, pos *rules.Position) {
	o.m.startLog(ctx)
	o.m.emit(ctx, Event{Kind: EventNewGame, Pos: pos})
}

func (o observer) OnMoveMade(ctx context.Context, index int, mv core.Move, pos *rules.Position) {
	if o.m.log != nil && o.m.gameID != "" {
		if err := o.m.log.AppendMove(ctx, o.m.gameID, index, mv.String(), o.m.rules.FEN(pos)); err != nil {
			logw.Errorf(ctx, "Move log append failed: %v", err)
		}
	}
	o.m.emit(ctx, Event{Kind: EventMoveMade, Move: mv, Index: index, Pos: pos})
}

func (o observer) OnTakeback(ctx context.Context, pos *rules.Position) {
	if o.m.log != nil && o.m.gameID != "" {
		if err := o.m.log.TruncateMove(ctx, o.m.gameID, o.m.coreMoves()); err != nil {
			logw.Errorf(ctx, "Move log truncate failed: %v", err)
		}
	}
	o.m.emit(ctx, Event{Kind: EventTakeback, Pos: pos})
}

func (o observer) OnTurn(ctx context.Context, c core.Color) {
	o.m.emit(ctx, Event{Kind: TurnEvent(c), Pos: o.m.core.Position()})
}

func (o observer) OnTerminated(ctx context.Context, out rules.Outcome) {
	if o.m.log != nil && o.m.gameID != "" {
		if err := o.m.log.SetResult(ctx, o.m.gameID, out.String()); err != nil {
			logw.Errorf(ctx, "Result persist failed: %v", err)
		}
	}
	o.m.emit(ctx, Event{Kind: EventTerminated, Outcome: out, Pos: o.m.core.Position()})
}

func (m *Manager) coreMoves() int {
	return m.core.Moves()
}
