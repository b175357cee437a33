package detect_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/detect"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fx records the core's outbound effects.
type fx struct {
	patterns []sensor.Pattern
	beeps    []sensor.Sound
	promos   [][2]core.Square
	offs     int
}

func (f *fx) SetLEDs(ctx context.Context, p sensor.Pattern) { f.patterns = append(f.patterns, p) }
func (f *fx) LEDsOff(ctx context.Context)                   { f.offs++ }
func (f *fx) Beep(ctx context.Context, s sensor.Sound)      { f.beeps = append(f.beeps, s) }
func (f *fx) RequestPromotion(ctx context.Context, from, to core.Square) {
	f.promos = append(f.promos, [2]core.Square{from, to})
}

func (f *fx) lastPattern() sensor.Pattern {
	if len(f.patterns) == 0 {
		return sensor.Pattern{}
	}
	return f.patterns[len(f.patterns)-1]
}

// obs records detection outcomes as compact strings.
type obs struct {
	events []string
}

func (o *obs) OnNewGame(ctx context.Context, pos *rules.Position) {
	o.events = append(o.events, "newgame")
}

func (o *obs) OnMoveMade(ctx context.Context, index int, m core.Move, pos *rules.Position) {
	o.events = append(o.events, fmt.Sprintf("move:%v", m))
}

func (o *obs) OnTakeback(ctx context.Context, pos *rules.Position) {
	o.events = append(o.events, "takeback")
}

func (o *obs) OnTurn(ctx context.Context, c core.Color) {
	o.events = append(o.events, fmt.Sprintf("turn:%v", c))
}

func (o *obs) OnTerminated(ctx context.Context, out rules.Outcome) {
	o.events = append(o.events, fmt.Sprintf("end:%v", out))
}

type harness struct {
	core *detect.Core
	fx   *fx
	obs  *obs
	r    rules.Rules
}

func newHarness(t *testing.T) *harness {
	return newHarnessAt(t, rules.Initial)
}

func newHarnessAt(t *testing.T, fen string) *harness {
	r := rules.NewStandard()
	pos, err := r.FromFEN(fen)
	require.NoError(t, err)

	h := &harness{fx: &fx{}, obs: &obs{}, r: r}
	c, err := detect.NewAt(r, h.fx, h.obs, fen, rules.Occupancy(r, pos))
	require.NoError(t, err)
	h.core = c
	return h
}

func (h *harness) move(from, to core.Square) {
	ctx := context.Background()
	h.core.HandleLift(ctx, from)
	h.core.HandlePlace(ctx, to)
}

func TestBasicMove(t *testing.T) {
	h := newHarness(t)

	h.move(core.E2, core.E4)

	assert.Equal(t, []string{"move:e2e4", "turn:b"}, h.obs.events)
	assert.False(t, h.core.Expected().IsSet(core.E2))
	assert.True(t, h.core.Expected().IsSet(core.E4))
	assert.False(t, h.core.InCorrection())
}

func TestCancelledMove(t *testing.T) {
	h := newHarness(t)

	h.move(core.E2, core.E2)

	assert.Empty(t, h.obs.events)
	assert.Equal(t, core.StartingOccupancy, h.core.Expected())
}

// castle reaches the position after 1.e4 e5 2.Nf3 Nc6 3.Bc4 Bc5 over the
// board.
func castle(h *harness) {
	for _, m := range [][2]core.Square{
		{core.E2, core.E4}, {core.E7, core.E5},
		{core.G1, core.F3}, {core.B8, core.C6},
		{core.F1, core.C4}, {core.F8, core.C5},
	} {
		h.move(m[0], m[1])
	}
	h.obs.events = nil
}

func TestCastlingKingFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	castle(h)

	h.core.HandleLift(ctx, core.E1)
	h.core.HandleLift(ctx, core.H1)
	h.core.HandlePlace(ctx, core.G1)
	h.core.HandlePlace(ctx, core.F1)

	assert.Equal(t, []string{"move:e1g1", "turn:b"}, h.obs.events)
	assert.False(t, h.core.InCorrection())
}

func TestCastlingRookFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	castle(h)

	h.core.HandleLift(ctx, core.E1)
	h.core.HandleLift(ctx, core.H1)
	h.core.HandlePlace(ctx, core.F1)
	h.core.HandlePlace(ctx, core.G1)

	assert.Equal(t, []string{"move:e1g1", "turn:b"}, h.obs.events)
	assert.False(t, h.core.InCorrection())
}

func TestTakeback(t *testing.T) {
	h := newHarness(t)

	h.move(core.E2, core.E4)
	h.obs.events = nil

	// The mover retracts after the turn already switched.
	h.move(core.E4, core.E2)

	assert.Equal(t, []string{"takeback"}, h.obs.events)
	assert.Equal(t, rules.Initial, h.r.FEN(h.core.Position()))
	assert.False(t, h.core.InCorrection())
}

func TestCorrectionGuidance(t *testing.T) {
	h := newHarness(t)

	// Knight to e5 is illegal from the start position.
	h.move(core.B1, core.E5)

	require.True(t, h.core.InCorrection())
	assert.Contains(t, h.fx.beeps, sensor.SoundWrongMove)

	pattern := h.fx.lastPattern()
	assert.Equal(t, sensor.PatternSquares, pattern.Kind)
	assert.ElementsMatch(t, []core.Square{core.B1, core.E5}, pattern.Squares)

	// Returning the knight exits correction without any game event.
	h.move(core.E5, core.B1)

	assert.False(t, h.core.InCorrection())
	assert.Empty(t, h.obs.events)
}

func TestCaptureCapturerFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.move(core.E2, core.E4)
	h.move(core.D7, core.D5)
	h.obs.events = nil

	h.core.HandleLift(ctx, core.E4)
	h.core.HandleLift(ctx, core.D5)
	h.core.HandlePlace(ctx, core.D5)

	assert.Equal(t, []string{"move:e4d5", "turn:b"}, h.obs.events)
	assert.False(t, h.core.InCorrection())
}

func TestCaptureVictimFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.move(core.E2, core.E4)
	h.move(core.D7, core.D5)
	h.obs.events = nil

	h.core.HandleLift(ctx, core.D5)
	h.core.HandleLift(ctx, core.E4)
	h.core.HandlePlace(ctx, core.D5)

	assert.Equal(t, []string{"move:e4d5", "turn:b"}, h.obs.events)
	assert.False(t, h.core.InCorrection())
}

func TestEnPassantTrailingRemoval(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.move(core.E2, core.E4)
	h.move(core.A7, core.A6)
	h.move(core.E4, core.E5)
	h.move(core.D7, core.D5)
	h.obs.events = nil

	h.move(core.E5, core.D6)
	// The captured pawn leaves its square after the move applied.
	h.core.HandleLift(ctx, core.D5)

	assert.Equal(t, []string{"move:e5d6", "turn:b"}, h.obs.events)
	assert.False(t, h.core.InCorrection())
	assert.Equal(t, rules.Occupancy(h.r, h.core.Position()), h.core.Expected())
}

func TestPromotionPrompt(t *testing.T) {
	ctx := context.Background()
	h := newHarnessAt(t, "8/4P2k/8/8/8/8/8/K7 w - - 0 1")

	h.move(core.E7, core.E8)

	require.True(t, h.core.PromotionPending())
	require.Equal(t, [][2]core.Square{{core.E7, core.E8}}, h.fx.promos)
	assert.Empty(t, h.obs.events)

	h.core.AnswerPromotion(ctx, core.Knight)

	require.False(t, h.core.PromotionPending())
	require.NotEmpty(t, h.obs.events)
	assert.Equal(t, "move:e7e8n", h.obs.events[0])
}

func TestForcedMove(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.core.SetForcedMove(ctx, core.Move{From: core.E2, To: core.E4})

	pattern := h.fx.lastPattern()
	assert.Equal(t, sensor.PatternRay, pattern.Kind)
	assert.Equal(t, core.E2, pattern.From)
	assert.Equal(t, core.E4, pattern.To)

	// Lifting the wrong piece allows put-back only.
	h.move(core.D2, core.D2)
	assert.Empty(t, h.obs.events)

	h.move(core.E2, core.E4)
	assert.Equal(t, []string{"move:e2e4", "turn:b"}, h.obs.events)
}

func TestForcedMoveRejectsOtherDestination(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.core.SetForcedMove(ctx, core.Move{From: core.E2, To: core.E4})

	h.core.HandleLift(ctx, core.E2)
	h.core.HandlePlace(ctx, core.E3)

	assert.True(t, h.core.InCorrection())
	assert.Empty(t, h.obs.events)

	h.move(core.E3, core.E2)
	assert.False(t, h.core.InCorrection())
}

func TestRemoteMove(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.core.ApplyRemoteMove(ctx, core.Move{From: core.E2, To: core.E4}))
	assert.Equal(t, []string{"move:e2e4", "turn:b"}, h.obs.events)

	assert.Error(t, h.core.ApplyRemoteMove(ctx, core.Move{From: core.E2, To: core.E4}))
}

func TestResync(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.core.HandleLift(ctx, core.E2)
	h.core.HandleResync(ctx, core.StartingOccupancy)
	assert.False(t, h.core.InCorrection())

	h.core.HandleResync(ctx, core.StartingOccupancy.Clear(core.A1))
	assert.True(t, h.core.InCorrection())

	h.core.HandleResync(ctx, core.StartingOccupancy)
	assert.False(t, h.core.InCorrection())
}

func TestNewGameDetection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.move(core.E2, core.E4)
	h.move(core.E7, core.E5)
	h.obs.events = nil

	// Pieces set back up while the logical position has advanced.
	h.core.HandleResync(ctx, core.StartingOccupancy)

	later := time.Now().Add(2 * time.Second)
	require.True(t, h.core.CheckNewGame(ctx, later))
	assert.Equal(t, []string{"newgame", "turn:w"}, h.obs.events)
	assert.Equal(t, rules.Initial, h.r.FEN(h.core.Position()))
	assert.False(t, h.core.InCorrection())

	// Debounced: an immediate re-check does not fire again.
	assert.False(t, h.core.CheckNewGame(ctx, later))
}

func TestMoveFilter(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// Only knight moves are acceptable.
	h.core.SetMoveFilter(func(m core.Move) bool {
		return m.From == core.B1 || m.From == core.G1
	})

	h.core.HandleLift(ctx, core.E2)
	h.core.HandlePlace(ctx, core.E4)
	assert.Empty(t, h.obs.events)
	require.True(t, h.core.InCorrection())
	h.move(core.E4, core.E2)
	require.False(t, h.core.InCorrection())

	h.move(core.G1, core.F3)
	assert.Equal(t, []string{"move:g1f3", "turn:b"}, h.obs.events)
}

func TestCheckmateTerminates(t *testing.T) {
	h := newHarness(t)

	h.move(core.F2, core.F3)
	h.move(core.E7, core.E5)
	h.move(core.G2, core.G4)
	h.obs.events = nil

	h.move(core.D8, core.H4)

	assert.Equal(t, []string{"move:d8h4", "end:0-1"}, h.obs.events)
}
