package assist

import (
	"context"
	"sync"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/uciengine"
	"github.com/seekerror/logw"
	"go.uber.org/atomic"
)

// DefaultLimit is the per-suggestion analysis budget, deliberately lower than
// opponent engines so the coach stays snappy.
const DefaultLimit = 2 * time.Second

// Analyser is the engine surface the assistant uses, satisfied by
// *uciengine.Handle.
type Analyser interface {
	Analyse(ctx context.Context, fen string, limit uciengine.Limit, multipv int) ([]uciengine.EvaluationSample, error)
	Release(ctx context.Context)
}

// Engine is a UCI-backed assistant. It analyses the position and suggests the
// engine's preferred move along with its evaluation.
type Engine struct {
	name   string
	rules  rules.Rules
	handle Analyser
	cb     Callback

	limit       uciengine.Limit
	autoSuggest atomic.Bool
	gen         atomic.Uint64

	mu       sync.Mutex
	thinking bool
}

// NewEngine returns an assistant over the given engine handle.
func NewEngine(name string, r rules.Rules, handle Analyser, cb Callback) *Engine {
	e := &Engine{
		name:   name,
		rules:  r,
		handle: handle,
		cb:     cb,
		limit:  uciengine.Limit{MoveTime: DefaultLimit},
	}
	e.autoSuggest.Store(true)
	return e
}

func (e *Engine) Name() string {
	return e.name
}

func (e *Engine) AutoSuggest() bool {
	return e.autoSuggest.Load()
}

// SetAutoSuggest toggles per-turn suggestions.
func (e *Engine) SetAutoSuggest(enabled bool) {
	e.autoSuggest.Store(enabled)
}

func (e *Engine) Suggest(ctx context.Context, pos *rules.Position, c core.Color) {
	if e.rules.ColorToMove(pos) != c {
		e.ClearSuggestion(ctx)
		return
	}
	if _, ok := e.rules.Outcome(pos).V(); ok {
		return
	}

	e.mu.Lock()
	if e.thinking {
		e.mu.Unlock()
		return
	}
	e.thinking = true
	e.mu.Unlock()

	gen := e.gen.Load()
	go func() {
		defer func() {
			e.mu.Lock()
			e.thinking = false
			e.mu.Unlock()
		}()

		samples, err := e.handle.Analyse(ctx, e.rules.FEN(pos), e.limit, 1)
		if err != nil {
			logw.Errorf(ctx, "Assistant analysis failed: %v", err)
			return
		}
		if len(samples) == 0 || len(samples[0].PV) == 0 {
			return
		}
		if e.gen.Load() != gen {
			return // superseded by a move, a new game or Close
		}

		best := samples[0]
		e.cb(ctx, MoveSuggestion(best.PV[0], 1.0))
		e.cb(ctx, Evaluation(signedCP(best.CP, c)))
	}()
}

func (e *Engine) ClearSuggestion(ctx context.Context) {
	e.cb(ctx, Clear())
}

// OnMove invalidates any in-flight analysis.
func (e *Engine) OnMove() {
	e.gen.Inc()
}

// OnNewGame invalidates any in-flight analysis.
func (e *Engine) OnNewGame() {
	e.gen.Inc()
}

func (e *Engine) Close(ctx context.Context) {
	e.gen.Inc()
	e.handle.Release(ctx)
}

// signedCP converts a side-to-move score into a white-positive score.
func signedCP(cp int, toMove core.Color) int {
	if toMove == core.Black {
		return -cp
	}
	return cp
}
